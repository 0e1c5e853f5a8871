// ABOUTME: Outbound transport directives and the local pause gate
// ABOUTME: One sender goroutine drains a bounded queue; failures are logged only
package relay

import (
	"context"
	"errors"
	"log"
	"net"
	"sync"
	"time"

	"github.com/Resonate-Protocol/relay-go/internal/metrics"
	"github.com/Resonate-Protocol/relay-go/pkg/protocol"
)

var errQueueFull = errors.New("command queue full")

// commandSender writes directives on the data connection. Enqueue never
// blocks the caller; delivery is best-effort and never retried.
type commandSender struct {
	conn    net.Conn
	queue   chan protocol.Directive
	timeout time.Duration
	logID   string
	stats   *counters
}

func newCommandSender(conn net.Conn, size int, timeout time.Duration, logID string, stats *counters) *commandSender {
	return &commandSender{
		conn:    conn,
		queue:   make(chan protocol.Directive, size),
		timeout: timeout,
		logID:   logID,
		stats:   stats,
	}
}

func (s *commandSender) enqueue(d protocol.Directive) {
	select {
	case s.queue <- d:
	default:
		s.dropped(&protocol.CommandError{Directive: d, Err: errQueueFull})
	}
}

func (s *commandSender) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case d := <-s.queue:
			s.send(d)
		}
	}
}

func (s *commandSender) send(d protocol.Directive) {
	if err := s.conn.SetWriteDeadline(time.Now().Add(s.timeout)); err != nil {
		s.dropped(&protocol.CommandError{Directive: d, Err: err})
		return
	}
	if _, err := s.conn.Write(protocol.FormatDirective(d)); err != nil {
		s.dropped(&protocol.CommandError{Directive: d, Err: err})
		return
	}

	s.stats.commandsSent.Add(1)
	metrics.Get().CommandsSent.WithLabelValues(d.Command).Inc()
	log.Printf("[%s] Sent %s", s.logID, d)
}

func (s *commandSender) dropped(err *protocol.CommandError) {
	s.stats.commandsDropped.Add(1)
	metrics.Get().CommandsDropped.WithLabelValues(err.Directive.Command).Inc()
	log.Printf("[%s] %v", s.logID, err)
}

// pauseGate holds the write path while paused. A writer brackets each
// sink write with enter and leave; pause waits for that write to finish.
type pauseGate struct {
	mu      sync.Mutex
	paused  bool
	resumed chan struct{}
	idle    chan struct{} // closed by leave; nil when no write is in flight
}

// pause closes the gate and waits for a write in flight; false if the
// gate was already closed
func (g *pauseGate) pause() bool {
	g.mu.Lock()
	if g.paused {
		g.mu.Unlock()
		return false
	}
	g.paused = true
	g.resumed = make(chan struct{})
	idle := g.idle
	g.mu.Unlock()

	if idle != nil {
		<-idle
	}
	return true
}

// resume opens the gate; false if it was already open
func (g *pauseGate) resume() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.paused {
		return false
	}
	g.paused = false
	close(g.resumed)
	return true
}

// enter waits for the gate to open and marks a write in flight; false
// if ctx ends first
func (g *pauseGate) enter(ctx context.Context) bool {
	for {
		if !g.wait(ctx) {
			return false
		}
		g.mu.Lock()
		if !g.paused {
			g.idle = make(chan struct{})
			g.mu.Unlock()
			return true
		}
		g.mu.Unlock()
	}
}

// leave ends the write started by enter
func (g *pauseGate) leave() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.idle != nil {
		close(g.idle)
		g.idle = nil
	}
}

func (g *pauseGate) isPaused() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.paused
}

// wait blocks while paused; false if ctx ends first
func (g *pauseGate) wait(ctx context.Context) bool {
	g.mu.Lock()
	if !g.paused {
		g.mu.Unlock()
		return true
	}
	resumed := g.resumed
	g.mu.Unlock()

	select {
	case <-resumed:
		return true
	case <-ctx.Done():
		return false
	}
}
