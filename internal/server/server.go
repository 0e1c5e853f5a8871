// ABOUTME: Reference relay server for local testing
// ABOUTME: Serves one PCM source over best-effort UDP or reliable TCP
package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/Resonate-Protocol/relay-go/internal/discovery"
	"github.com/Resonate-Protocol/relay-go/internal/metrics"
	"github.com/Resonate-Protocol/relay-go/pkg/protocol"
	"github.com/google/uuid"
)

const (
	// DefaultChunkMs is the reliable-mode write size in milliseconds of audio
	DefaultChunkMs = 100

	// DefaultLead is how far ahead of real time the server may run
	DefaultLead = 500 * time.Millisecond
)

// Config holds server configuration
type Config struct {
	Mode        string // "udp" or "tcp"
	BindAddress string
	Port        int // 0 picks a free port
	Name        string
	EnableMDNS  bool

	// ChunkMs is the reliable-mode chunk length (default: 100)
	ChunkMs int

	// PayloadSize is the audio bytes per datagram (default: 1020)
	PayloadSize int

	// Lead bounds how far ahead of real time audio is sent (default: 500ms)
	Lead time.Duration

	Source *Source
}

// Server streams a source to relay players
type Server struct {
	config   Config
	serverID string
	metrics  *metrics.Metrics

	// Listeners; exactly one is set after Start binds
	udpConn  *net.UDPConn
	listener net.Listener
	addr     net.Addr

	// mDNS discovery
	mdnsManager *discovery.Manager

	// Best-effort sessions keyed by client address
	udpSessions map[string]context.CancelFunc
	sessionsMu  sync.Mutex

	ready    chan struct{}
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New creates a new server instance
func New(config Config) (*Server, error) {
	if config.Source == nil {
		return nil, errors.New("server needs a source")
	}
	if config.Mode != "udp" && config.Mode != "tcp" {
		return nil, fmt.Errorf("unknown transport mode %q", config.Mode)
	}
	if config.ChunkMs <= 0 {
		config.ChunkMs = DefaultChunkMs
	}
	if config.PayloadSize <= 0 {
		config.PayloadSize = protocol.DefaultPayloadSize
	}
	if config.Lead <= 0 {
		config.Lead = DefaultLead
	}
	if config.Name == "" {
		config.Name = "Relay Server"
	}

	frame := config.Source.Format().FrameSize()
	config.PayloadSize -= config.PayloadSize % frame
	if config.PayloadSize == 0 {
		config.PayloadSize = frame
	}

	return &Server{
		config:      config,
		serverID:    uuid.New().String(),
		metrics:     metrics.Get(),
		udpSessions: make(map[string]context.CancelFunc),
		ready:       make(chan struct{}),
		stopChan:    make(chan struct{}),
	}, nil
}

// Start binds the configured transport and serves until ctx ends or Stop is called
func (s *Server) Start(ctx context.Context) error {
	addr := net.JoinHostPort(s.config.BindAddress, strconv.Itoa(s.config.Port))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	switch s.config.Mode {
	case "udp":
		udpAddr, err := net.ResolveUDPAddr("udp", addr)
		if err != nil {
			return fmt.Errorf("invalid bind address: %w", err)
		}
		conn, err := net.ListenUDP("udp", udpAddr)
		if err != nil {
			return fmt.Errorf("failed to bind %s: %w", addr, err)
		}
		s.udpConn = conn
		s.addr = conn.LocalAddr()
	case "tcp":
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			return fmt.Errorf("failed to bind %s: %w", addr, err)
		}
		s.listener = ln
		s.addr = ln.Addr()
	}

	log.Printf("Server starting: %s (ID: %s) on %s/%s serving %s (%dms)",
		s.config.Name, s.serverID, s.addr, s.config.Mode, s.config.Source.Name(), s.config.Source.DurationMs())

	if s.config.EnableMDNS {
		format := s.config.Source.Format()
		s.mdnsManager = discovery.NewManager(discovery.Config{
			ServiceName: s.config.Name,
			Port:        s.port(),
			Mode:        s.config.Mode,
			SampleRate:  format.SampleRate,
			Channels:    format.Channels,
		})
		if err := s.mdnsManager.Advertise(); err != nil {
			log.Printf("Failed to start mDNS advertisement: %v", err)
		}
	}

	close(s.ready)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if s.udpConn != nil {
			s.serveUDP(ctx)
		} else {
			s.serveTCP(ctx)
		}
	}()

	select {
	case <-ctx.Done():
	case <-s.stopChan:
	}
	log.Printf("Server shutting down...")

	cancel()
	if s.mdnsManager != nil {
		s.mdnsManager.Stop()
	}
	if s.udpConn != nil {
		s.udpConn.Close()
	}
	if s.listener != nil {
		s.listener.Close()
	}

	s.wg.Wait()
	log.Printf("Server stopped cleanly")
	return nil
}

// Stop stops the server
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopChan)
	})
}

// Ready is closed once the server is bound
func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

// Addr returns the bound address; valid after Ready
func (s *Server) Addr() net.Addr {
	return s.addr
}

func (s *Server) port() int {
	switch a := s.addr.(type) {
	case *net.UDPAddr:
		return a.Port
	case *net.TCPAddr:
		return a.Port
	}
	return s.config.Port
}

// pacer keeps sending at most lead ahead of wall-clock time
type pacer struct {
	base time.Time
	sent time.Duration
	lead time.Duration
}

func newPacer(lead time.Duration) *pacer {
	return &pacer{base: time.Now(), lead: lead}
}

// reset restarts the clock, so the next lead worth of audio goes out at once
func (p *pacer) reset() {
	p.base = time.Now()
	p.sent = 0
}

// delay returns how long to wait before the next send
func (p *pacer) delay() time.Duration {
	return time.Until(p.base.Add(p.sent - p.lead))
}

func (p *pacer) advance(d time.Duration) {
	p.sent += d
}

// wait sleeps until the next send is due; false when ctx ended
func (p *pacer) wait(ctx context.Context) bool {
	d := p.delay()
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
