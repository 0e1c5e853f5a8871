// ABOUTME: Reliable TCP client with header negotiation and transport control
// ABOUTME: Streams PCM in order; Pause, Resume and Seek are relayed to the server
package relay

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"sync"
	"sync/atomic"

	"github.com/Resonate-Protocol/relay-go/internal/metrics"
	"github.com/Resonate-Protocol/relay-go/pkg/audio/output"
	"github.com/Resonate-Protocol/relay-go/pkg/protocol"
)

// TCPClient plays a header-prefixed PCM byte stream
type TCPClient struct {
	engine

	config   TCPConfig
	conn     net.Conn
	commands *commandSender
	gate     pauseGate

	headerMu sync.RWMutex
	header   *protocol.StreamHeader

	scrubbing atomic.Bool
}

// NewTCPClient creates a reliable client; defaults are applied to config
func NewTCPClient(config TCPConfig, sink output.Sink, listener Listener) *TCPClient {
	config.applyDefaults()

	c := &TCPClient{config: config}
	c.engine.init("tcp", config.SessionID, config.Timing, sink, listener)
	return c
}

// Start connects and spawns the stream, command and progress workers.
// A connection failure is returned immediately and never retried.
func (c *TCPClient) Start(ctx context.Context) error {
	if err := c.life.begin(ctx); err != nil {
		return err
	}

	dialer := net.Dialer{Timeout: c.config.DialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", c.config.ServerAddr)
	if err != nil {
		c.life.abort()
		return &protocol.ConnectError{Addr: c.config.ServerAddr, Err: err}
	}
	c.conn = conn
	c.life.attach(conn.Close, nil)
	c.commands = newCommandSender(conn, c.config.CommandQueueSize, c.config.CommandTimeout, c.life.shortID(), &c.stats)

	log.Printf("[%s] Connected to %s (tcp)", c.life.shortID(), c.config.ServerAddr)
	metrics.Get().SessionsStarted.WithLabelValues(c.mode).Inc()
	metrics.Get().ActiveSessions.WithLabelValues(c.mode).Inc()

	c.life.spawn("stream", c.stream)
	c.life.spawn("commands", c.commands.run)
	c.life.spawn("progress", func(ctx context.Context) { c.reportProgress(ctx, c.scrubbing.Load) })
	c.life.supervise()
	return nil
}

// stream is the receiver and playback worker: negotiate the header,
// configure the sink, then write chunks in arrival order
func (c *TCPClient) stream(ctx context.Context) {
	defer c.finish()

	c.state.store(StateBuffering)
	reader := bufio.NewReaderSize(c.conn, c.config.ChunkSize)

	header, err := c.negotiate(reader)
	if err != nil {
		c.streamFailed(ctx, err, "protocol")
		return
	}

	if err := c.configureSink(header.SampleRate, header.Channels); err != nil {
		log.Printf("[%s] Failed to configure audio output: %v", c.life.shortID(), err)
		c.life.setErr(fmt.Errorf("failed to configure audio output: %w", err))
		metrics.Get().SessionErrors.WithLabelValues(c.mode, "output").Inc()
		return
	}
	if c.gate.isPaused() {
		c.sink.Pause()
		c.state.store(StatePaused)
	} else {
		c.state.store(StatePlaying)
	}
	if header.HasDuration() {
		c.listener.OnDurationKnown(header.Duration())
	}

	frameSize := header.FrameSize()
	buf := make([]byte, c.config.ChunkSize)
	var carry []byte

	for {
		n, err := reader.Read(buf)
		if n > 0 {
			c.stats.bytesReceived.Add(int64(n))
			metrics.Get().BytesReceived.Add(float64(n))

			data := buf[:n]
			if len(carry) > 0 {
				data = append(carry, data...)
			}
			aligned := len(data) - len(data)%frameSize
			if aligned > 0 {
				if werr := c.write(ctx, data[:aligned]); werr != nil {
					if ctx.Err() == nil && !errors.Is(werr, output.ErrClosed) && !errors.Is(werr, output.ErrInterrupted) {
						log.Printf("[%s] Audio output write failed: %v", c.life.shortID(), werr)
						c.life.setErr(fmt.Errorf("audio output write failed: %w", werr))
						metrics.Get().SessionErrors.WithLabelValues(c.mode, "output").Inc()
					}
					return
				}
			}
			carry = append([]byte(nil), data[aligned:]...)
		}

		if err != nil {
			if errors.Is(err, io.EOF) {
				log.Printf("[%s] Server closed the stream", c.life.shortID())
				break
			}
			c.streamFailed(ctx, &protocol.TransportError{Op: "read", Err: err}, "transport")
			if ctx.Err() != nil {
				return
			}
			break
		}
	}

	c.drain(ctx)
}

// negotiate reads and validates the header line
func (c *TCPClient) negotiate(reader *bufio.Reader) (protocol.StreamHeader, error) {
	line, err := protocol.ReadHeaderLine(reader)
	if err != nil {
		return protocol.StreamHeader{}, err
	}
	header, err := protocol.ParseHeader(line)
	if err != nil {
		return protocol.StreamHeader{}, err
	}

	c.headerMu.Lock()
	c.header = &header
	c.headerMu.Unlock()

	if header.HasDuration() {
		log.Printf("[%s] Stream header: %dHz %dch, duration %dms",
			c.life.shortID(), header.SampleRate, header.Channels, header.Duration())
	} else {
		log.Printf("[%s] Stream header: %dHz %dch", c.life.shortID(), header.SampleRate, header.Channels)
	}
	return header, nil
}

// streamFailed absorbs errors caused by our own shutdown and records
// anything else as the session error
func (c *TCPClient) streamFailed(ctx context.Context, err error, kind string) {
	if ctx.Err() != nil || c.life.isStopping() {
		return
	}
	log.Printf("[%s] Stream failed: %v", c.life.shortID(), err)
	c.life.setErr(err)
	metrics.Get().SessionErrors.WithLabelValues(c.mode, kind).Inc()
}

// write waits out a pause, then hands p to the sink. Pause waits for a
// write that got through the gate.
func (c *TCPClient) write(ctx context.Context, p []byte) error {
	if !c.gate.enter(ctx) {
		return ctx.Err()
	}
	defer c.gate.leave()
	return c.writeFrames(p)
}

// Pause stops local output and asks the server to pause. No audio is
// written to the sink after it returns until Resume.
func (c *TCPClient) Pause() error {
	if c.commands == nil {
		return ErrNotStarted
	}
	first := c.gate.pause()
	if err := c.sink.Pause(); err != nil && !errors.Is(err, output.ErrNotConfigured) {
		log.Printf("[%s] Audio output pause: %v", c.life.shortID(), err)
	}
	if !first {
		return nil
	}
	c.state.transition(StatePlaying, StatePaused)
	c.commands.enqueue(protocol.Pause())
	return nil
}

// Resume restarts local output and asks the server to continue
func (c *TCPClient) Resume() error {
	if c.commands == nil {
		return ErrNotStarted
	}
	if err := c.sink.Resume(); err != nil && !errors.Is(err, output.ErrNotConfigured) {
		log.Printf("[%s] Audio output resume: %v", c.life.shortID(), err)
	}
	if !c.gate.resume() {
		return nil
	}
	c.state.transition(StatePaused, StatePlaying)
	c.commands.enqueue(protocol.Play())
	return nil
}

// TogglePause pauses when playing and resumes when paused
func (c *TCPClient) TogglePause() error {
	if c.gate.isPaused() {
		return c.Resume()
	}
	return c.Pause()
}

// Paused reports whether the client is paused
func (c *TCPClient) Paused() bool {
	return c.gate.isPaused()
}

// Seek discards queued audio, restarts the position at targetMs and asks
// the server to continue from there. Targets beyond a known duration are
// clamped to it.
func (c *TCPClient) Seek(targetMs int64) error {
	if c.commands == nil {
		return ErrNotStarted
	}
	if targetMs < 0 {
		return fmt.Errorf("invalid seek target: %dms", targetMs)
	}
	if header, ok := c.Header(); ok && header.HasDuration() && targetMs > header.Duration() {
		targetMs = header.Duration()
	}

	if err := c.seekTo(targetMs); err != nil {
		return err
	}
	log.Printf("[%s] Seek to %dms", c.life.shortID(), targetMs)
	c.commands.enqueue(protocol.Seek(targetMs))
	return nil
}

// SetScrubbing suppresses progress reports while the user drags a
// position control
func (c *TCPClient) SetScrubbing(scrubbing bool) {
	c.scrubbing.Store(scrubbing)
}

// Header returns the negotiated header once known
func (c *TCPClient) Header() (protocol.StreamHeader, bool) {
	c.headerMu.RLock()
	defer c.headerMu.RUnlock()
	if c.header == nil {
		return protocol.StreamHeader{}, false
	}
	return *c.header, true
}

// Stats returns a snapshot of session statistics
func (c *TCPClient) Stats() Stats {
	return c.snapshot()
}
