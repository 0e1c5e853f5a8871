// ABOUTME: Main player application orchestration
// ABOUTME: Coordinates discovery, the audio sink, the relay client and the TUI
package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/Resonate-Protocol/relay-go/internal/config"
	"github.com/Resonate-Protocol/relay-go/internal/discovery"
	"github.com/Resonate-Protocol/relay-go/internal/ui"
	"github.com/Resonate-Protocol/relay-go/pkg/audio/output"
	"github.com/Resonate-Protocol/relay-go/pkg/relay"
	tea "github.com/charmbracelet/bubbletea"
)

// Config holds player configuration
type Config struct {
	Player config.PlayerConfig
	UseTUI bool
}

// session is what both relay clients offer the app
type session interface {
	Start(ctx context.Context) error
	Shutdown()
	Done() <-chan struct{}
	Err() error
	Close() error
	State() relay.State
}

// transport is the reliable-mode control surface
type transport interface {
	TogglePause() error
	Seek(targetMs int64) error
	SetScrubbing(scrubbing bool)
}

// mixer is implemented by sinks with software volume
type mixer interface {
	SetVolume(volume int)
	SetMuted(muted bool)
}

// Player represents the main player application
type Player struct {
	config Config

	sink output.Sink
	udp  *relay.UDPClient
	tcp  *relay.TCPClient

	serverAddr string
	tuiProg    *tea.Program
	controls   *ui.Controls
}

// New creates a new player
func New(config Config) *Player {
	return &Player{config: config}
}

// Run plays one session. It returns when the stream ends, the user quits or
// ctx is cancelled.
func (p *Player) Run(ctx context.Context) error {
	cfg := p.config.Player

	addr, err := p.resolveServer(ctx)
	if err != nil {
		return err
	}
	p.serverAddr = addr
	cfg.Server = addr

	sink, err := newSink(cfg.Output)
	if err != nil {
		return err
	}
	p.sink = sink
	if m, ok := sink.(mixer); ok {
		m.SetVolume(cfg.Volume)
	}

	if p.config.UseTUI {
		p.controls = ui.NewControls()
		p.tuiProg, err = ui.Run(p.controls)
		if err != nil {
			return fmt.Errorf("failed to start TUI: %w", err)
		}
		go func() {
			if _, err := p.tuiProg.Run(); err != nil {
				log.Printf("TUI error: %v", err)
			}
		}()
		defer p.tuiProg.Quit()
	}

	listener := relay.ListenerFuncs{
		DurationKnown: func(ms int64) { p.updateTUI(ui.DurationMsg{Ms: ms}) },
		Progress:      func(ms int64) { p.updateTUI(ui.ProgressMsg{Ms: ms}) },
	}

	var client session
	switch cfg.Mode {
	case "udp":
		p.udp = relay.NewUDPClient(cfg.UDP(), sink, listener)
		client = p.udp
	case "tcp":
		p.tcp = relay.NewTCPClient(cfg.TCP(), sink, listener)
		client = p.tcp
	default:
		return fmt.Errorf("unknown transport mode %q", cfg.Mode)
	}

	if err := client.Start(ctx); err != nil {
		sink.Release()
		return err
	}
	defer client.Close()

	connected := true
	p.updateTUI(ui.StatusMsg{
		Connected:  &connected,
		ServerName: addr,
		Mode:       cfg.Mode,
		Volume:     cfg.Volume,
	})

	loopCtx, stopLoops := context.WithCancel(ctx)
	defer stopLoops()
	if p.controls != nil {
		go p.handleControls(loopCtx)
		go p.statsUpdateLoop(loopCtx, client)
	}

	var quit <-chan struct{}
	if p.controls != nil {
		quit = p.controls.Quit
	}

	select {
	case <-client.Done():
		err := client.Err()
		p.updateTUI(ui.EndedMsg{Err: err})
		if err != nil {
			return err
		}
		log.Printf("Stream finished")
		if p.controls != nil {
			// leave the final screen up until the user quits
			select {
			case <-quit:
			case <-ctx.Done():
			}
		}
		return nil
	case <-quit:
		log.Printf("Received quit signal from TUI")
	case <-ctx.Done():
		log.Printf("Shutdown signal received")
	}

	client.Shutdown()
	client.Close()
	if err := client.Err(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// resolveServer returns the configured address or browses mDNS for one
func (p *Player) resolveServer(ctx context.Context) (string, error) {
	cfg := &p.config.Player
	if cfg.Server != "" {
		return cfg.Server, nil
	}

	log.Printf("Starting server discovery...")
	findCtx, cancel := context.WithTimeout(ctx, cfg.DiscoveryTimeout())
	defer cancel()

	server, err := discovery.FindServer(findCtx, discovery.Config{Mode: cfg.Mode})
	if err != nil {
		return "", err
	}

	// best-effort players take their format from the advertisement
	if server.SampleRate > 0 {
		cfg.SampleRate = server.SampleRate
	}
	if server.Channels > 0 {
		cfg.Channels = server.Channels
	}

	log.Printf("Discovered server %s at %s", server.Name, server.Addr())
	return server.Addr(), nil
}

func newSink(name string) (output.Sink, error) {
	switch name {
	case "", "oto":
		return output.NewOto(), nil
	case "null":
		return output.NewNull(), nil
	default:
		return nil, fmt.Errorf("unknown output %q", name)
	}
}

// handleControls processes user actions from the TUI
func (p *Player) handleControls(ctx context.Context) {
	var t transport
	if p.tcp != nil {
		t = p.tcp
	}
	m, _ := p.sink.(mixer)

	for {
		select {
		case msg := <-p.controls.Changes:
			if err := applyControl(msg, t, m); err != nil {
				log.Printf("Control %v failed: %v", msg.Action, err)
			}
		case <-ctx.Done():
			return
		}
	}
}

// applyControl maps one TUI action onto the client and sink; either may be nil
func applyControl(msg ui.ControlMsg, t transport, m mixer) error {
	switch msg.Action {
	case ui.ActionVolume:
		if m != nil {
			m.SetVolume(msg.Volume)
		}
	case ui.ActionMute:
		if m != nil {
			m.SetMuted(msg.Muted)
		}
	case ui.ActionTogglePause:
		if t != nil {
			return t.TogglePause()
		}
	case ui.ActionSeek:
		if t != nil {
			return t.Seek(msg.Ms)
		}
	case ui.ActionScrub:
		if t != nil {
			t.SetScrubbing(msg.Scrubbing)
		}
	}
	return nil
}

// statsUpdateLoop periodically updates the TUI with session statistics
func (p *Player) statsUpdateLoop(ctx context.Context, client session) {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.updateTUI(p.status(client))
		case <-ctx.Done():
			return
		}
	}
}

func (p *Player) status(client session) ui.StatusMsg {
	msg := ui.StatusMsg{State: client.State().String()}

	var stats relay.Stats
	switch {
	case p.udp != nil:
		stats = p.udp.Stats()
		header := p.udp.Header()
		msg.SampleRate, msg.Channels = header.SampleRate, header.Channels
	case p.tcp != nil:
		stats = p.tcp.Stats()
		if header, ok := p.tcp.Header(); ok {
			msg.SampleRate, msg.Channels = header.SampleRate, header.Channels
		}
	}
	msg.Stats = &stats
	return msg
}

func (p *Player) updateTUI(msg tea.Msg) {
	if p.tuiProg != nil {
		p.tuiProg.Send(msg)
	}
}
