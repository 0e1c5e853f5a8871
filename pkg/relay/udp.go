// ABOUTME: Best-effort UDP client with jitter buffer and loss concealment
// ABOUTME: Receiver fills the buffer; the driver plays it in sequence order
package relay

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"time"

	"github.com/Resonate-Protocol/relay-go/internal/metrics"
	"github.com/Resonate-Protocol/relay-go/pkg/audio"
	"github.com/Resonate-Protocol/relay-go/pkg/audio/output"
	"github.com/Resonate-Protocol/relay-go/pkg/jitter"
	"github.com/Resonate-Protocol/relay-go/pkg/protocol"
)

// UDPClient plays a sequence-numbered datagram stream
type UDPClient struct {
	engine

	config UDPConfig
	header protocol.StreamHeader
	buffer *jitter.Buffer
	conn   net.Conn

	// expected is the next sequence number to play; driver-owned
	expected uint32
	silence  []byte

	receiverDone chan struct{}
}

// NewUDPClient creates a best-effort client; defaults are applied to config
func NewUDPClient(config UDPConfig, sink output.Sink, listener Listener) *UDPClient {
	config.applyDefaults()

	c := &UDPClient{
		config:       config,
		header:       config.Header(),
		buffer:       jitter.New(),
		silence:      audio.Silence(config.PayloadSize),
		receiverDone: make(chan struct{}),
	}
	c.engine.init("udp", config.SessionID, config.Timing, sink, listener)
	return c
}

// Start validates the configured format, connects, sends START and spawns
// the receiver, driver and progress workers. It does not wait for playback.
func (c *UDPClient) Start(ctx context.Context) error {
	if err := c.header.Validate(); err != nil {
		return err
	}
	if err := c.life.begin(ctx); err != nil {
		return err
	}

	dialer := net.Dialer{Timeout: c.config.DialTimeout}
	conn, err := dialer.DialContext(ctx, "udp", c.config.ServerAddr)
	if err != nil {
		c.life.abort()
		return &protocol.ConnectError{Addr: c.config.ServerAddr, Err: err}
	}
	c.conn = conn
	c.life.attach(conn.Close, c.sendStop)

	log.Printf("[%s] Connected to %s (udp, %dHz %dch)",
		c.life.shortID(), c.config.ServerAddr, c.header.SampleRate, c.header.Channels)
	metrics.Get().SessionsStarted.WithLabelValues(c.mode).Inc()
	metrics.Get().ActiveSessions.WithLabelValues(c.mode).Inc()

	if _, err := conn.Write(protocol.StartMessage); err != nil {
		log.Printf("[%s] Failed to send START: %v", c.life.shortID(), err)
	}

	c.life.spawn("receiver", c.receive)
	c.life.spawn("driver", c.drive)
	c.life.spawn("progress", func(ctx context.Context) { c.reportProgress(ctx, nil) })
	c.life.supervise()
	return nil
}

// sendStop tells the server to stop transmitting; fire-and-forget
func (c *UDPClient) sendStop() {
	if c.conn == nil {
		return
	}
	if _, err := c.conn.Write(protocol.StopMessage); err != nil {
		log.Printf("[%s] Failed to send STOP: %v", c.life.shortID(), err)
	}
}

// receive reads datagrams into the jitter buffer until shutdown, a
// transport error or the idle timeout
func (c *UDPClient) receive(ctx context.Context) {
	defer close(c.receiverDone)

	buf := make([]byte, protocol.MaxDatagramSize)
	var lastPacket time.Time

	for ctx.Err() == nil {
		if err := c.conn.SetReadDeadline(time.Now().Add(c.config.ReceiveTimeout)); err != nil {
			c.receiveFailed(ctx, err)
			return
		}

		n, err := c.conn.Read(buf)
		if err != nil {
			if protocol.IsTimeout(err) {
				if c.config.IdleTimeout > 0 && !lastPacket.IsZero() && time.Since(lastPacket) >= c.config.IdleTimeout {
					log.Printf("[%s] No audio for %v, treating as end of stream", c.life.shortID(), c.config.IdleTimeout)
					return
				}
				continue
			}
			c.receiveFailed(ctx, err)
			return
		}

		pkt, err := protocol.ParsePacket(buf[:n])
		if err != nil {
			c.stats.malformed.Add(1)
			metrics.Get().MalformedPackets.Inc()
			log.Printf("[%s] Dropping datagram: %v", c.life.shortID(), err)
			continue
		}

		lastPacket = time.Now()
		c.stats.packetsReceived.Add(1)
		metrics.Get().PacketsReceived.Inc()
		c.buffer.Push(pkt)
	}
}

// receiveFailed absorbs errors caused by our own shutdown and records
// anything else as the session error
func (c *UDPClient) receiveFailed(ctx context.Context, err error) {
	if ctx.Err() != nil || c.life.isStopping() {
		return
	}
	log.Printf("[%s] Unexpected receive error: %v", c.life.shortID(), err)
	c.life.setErr(&protocol.TransportError{Op: "receive", Err: err})
	metrics.Get().SessionErrors.WithLabelValues(c.mode, "transport").Inc()
}

func (c *UDPClient) receiverEnded() bool {
	select {
	case <-c.receiverDone:
		return true
	default:
		return false
	}
}

// drive is the playback worker: Buffering, Playing, Draining, Stopped
func (c *UDPClient) drive(ctx context.Context) {
	defer c.finish()

	if err := c.configureSink(c.header.SampleRate, c.header.Channels); err != nil {
		log.Printf("[%s] Failed to configure audio output: %v", c.life.shortID(), err)
		c.life.setErr(fmt.Errorf("failed to configure audio output: %w", err))
		metrics.Get().SessionErrors.WithLabelValues(c.mode, "output").Inc()
		return
	}

	c.state.store(StateBuffering)
	if !c.waitForFill(ctx) {
		return
	}

	c.state.store(StatePlaying)
	log.Printf("[%s] Playback started with %d packets buffered", c.life.shortID(), c.buffer.Len())

	for ctx.Err() == nil {
		played, err := c.playNext(ctx)
		if err != nil {
			if ctx.Err() == nil && !errors.Is(err, output.ErrClosed) && !errors.Is(err, output.ErrInterrupted) {
				log.Printf("[%s] Audio output write failed: %v", c.life.shortID(), err)
				c.life.setErr(fmt.Errorf("audio output write failed: %w", err))
				metrics.Get().SessionErrors.WithLabelValues(c.mode, "output").Inc()
			}
			return
		}
		if played {
			continue
		}

		// empty buffer: keep polling, never re-enter Buffering
		if c.receiverEnded() && c.buffer.Len() == 0 {
			break
		}
		if !sleepCtx(ctx, c.timing.PollInterval) {
			return
		}
	}

	if ctx.Err() == nil {
		c.drain(ctx)
	}
}

// waitForFill polls until TargetFill packets are buffered or the receiver
// has ended; false if ctx ends first
func (c *UDPClient) waitForFill(ctx context.Context) bool {
	for {
		depth := c.buffer.Len()
		metrics.Get().JitterDepth.Set(float64(depth))
		if depth >= c.config.TargetFill || c.receiverEnded() {
			return true
		}
		if !sleepCtx(ctx, c.timing.PollInterval) {
			return false
		}
	}
}

// playNext handles the lowest buffered packet against the cursor. It
// returns false when the buffer is empty. Gap filling stops early if
// ctx ends.
//
//	seq == expected: write it, advance
//	seq <  expected: stale or duplicate, discard unwritten
//	seq >  expected: write seq-expected silence blocks, advance the
//	                 cursor to seq and keep the packet for the next call
func (c *UDPClient) playNext(ctx context.Context) (bool, error) {
	pkt, ok := c.buffer.Pop()
	if !ok {
		return false, nil
	}
	metrics.Get().JitterDepth.Set(float64(c.buffer.Len()))

	switch {
	case pkt.Seq == c.expected:
		if err := c.writeFrames(pkt.Payload); err != nil {
			return true, err
		}
		c.expected++
		c.stats.packetsPlayed.Add(1)
		metrics.Get().PacketsPlayed.Inc()

	case pkt.Seq < c.expected:
		c.stats.staleDiscarded.Add(1)
		metrics.Get().StalePackets.Inc()

	default:
		missing := pkt.Seq - c.expected
		for i := uint32(0); i < missing; i++ {
			if err := ctx.Err(); err != nil {
				return true, err
			}
			if err := c.writeFrames(c.silence); err != nil {
				return true, err
			}
			c.stats.silenceBlocks.Add(1)
			metrics.Get().SilenceBlocks.Inc()
		}
		c.expected += missing
		c.buffer.Push(pkt)
	}
	return true, nil
}

// Stats returns a snapshot of session statistics
func (c *UDPClient) Stats() Stats {
	s := c.snapshot()
	s.BufferDepth = c.buffer.Len()
	return s
}

// Header returns the stream format in use
func (c *UDPClient) Header() protocol.StreamHeader {
	return c.header
}
