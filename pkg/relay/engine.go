// ABOUTME: Behaviour shared by the UDP and TCP clients
// ABOUTME: Sink ownership, draining, progress reporting, stats and public controls
package relay

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Resonate-Protocol/relay-go/internal/metrics"
	"github.com/Resonate-Protocol/relay-go/pkg/audio/output"
)

// Stats contains session statistics
type Stats struct {
	PacketsReceived int64
	PacketsPlayed   int64
	SilenceBlocks   int64
	StaleDiscarded  int64
	Malformed       int64
	BufferDepth     int // packets
	BytesReceived   int64
	FramesWritten   int64
	FramesPlayed    int64
	CommandsSent    int64
	CommandsDropped int64
}

type counters struct {
	packetsReceived atomic.Int64
	packetsPlayed   atomic.Int64
	silenceBlocks   atomic.Int64
	staleDiscarded  atomic.Int64
	malformed       atomic.Int64
	bytesReceived   atomic.Int64
	framesWritten   atomic.Int64
	commandsSent    atomic.Int64
	commandsDropped atomic.Int64
}

// engine is embedded by both clients. The sink is configured, written,
// stopped and released only from the playback worker; control calls may
// pause, resume and flush it concurrently, and shutdown interrupts a
// write blocked on it.
type engine struct {
	mode     string
	sink     output.Sink
	listener Listener
	timing   Timing

	life     *lifecycle
	state    stateValue
	stats    counters
	position positionTracker

	// frames written but dropped by seek flushes; drain does not wait for them
	discarded atomic.Int64

	configured  atomic.Bool
	releaseOnce sync.Once
}

func (e *engine) init(mode, sessionID string, timing Timing, sink output.Sink, listener Listener) {
	if listener == nil {
		listener = NopListener{}
	}
	e.mode = mode
	e.sink = sink
	e.listener = listener
	e.timing = timing
	e.life = newLifecycle(sessionID, timing.ShutdownGrace)
	e.life.onShutdown = sink.Interrupt
}

// configureSink opens the sink for the negotiated format and starts the
// first position segment
func (e *engine) configureSink(sampleRate, channels int) error {
	if err := e.sink.Configure(sampleRate, channels); err != nil {
		return err
	}
	e.configured.Store(true)
	e.position.start(sampleRate, e.sink)
	return nil
}

// writeFrames writes to the sink and accounts the frames
func (e *engine) writeFrames(p []byte) error {
	frames, err := e.sink.Write(p)
	if frames > 0 {
		e.stats.framesWritten.Add(int64(frames))
		metrics.Get().FramesWritten.WithLabelValues(e.mode).Add(float64(frames))
	}
	return err
}

// drain waits until the sink has sounded everything written, the played
// counter stalls for DrainStall, or ctx ends
func (e *engine) drain(ctx context.Context) {
	if !e.configured.Load() {
		return
	}
	e.state.store(StateDraining)

	written := e.stats.framesWritten.Load() - e.discarded.Load()
	last := e.sink.FramesPlayed()
	lastChange := time.Now()

	for last < written {
		if !sleepCtx(ctx, e.timing.PollInterval) {
			return
		}
		played := e.sink.FramesPlayed()
		if played != last {
			last = played
			lastChange = time.Now()
			continue
		}
		if time.Since(lastChange) >= e.timing.DrainStall {
			log.Printf("[%s] Output stalled while draining (%d of %d frames played)",
				e.life.shortID(), last, written)
			return
		}
	}
}

// finish is the playback worker's terminal transition: stop and release
// the sink once, then end the session
func (e *engine) finish() {
	e.releaseSink()
	e.state.store(StateStopped)
	metrics.Get().ActiveSessions.WithLabelValues(e.mode).Dec()

	if e.life.shutdown() {
		// nobody asked us to stop: the stream ended on its own
		if err := e.life.getErr(); err != nil {
			log.Printf("[%s] Session ended with error: %v", e.life.shortID(), err)
		} else {
			log.Printf("[%s] Stream ended", e.life.shortID())
			metrics.Get().SessionsEnded.WithLabelValues(e.mode).Inc()
		}
		e.listener.OnStreamEnded()
	}
}

// seekTo flushes the sink, restarts the position at targetMs and writes
// off whatever the flush dropped
func (e *engine) seekTo(targetMs int64) error {
	if err := e.position.seek(targetMs, e.sink); err != nil {
		return err
	}
	if e.configured.Load() {
		// a flushed sink has nothing pending
		dropped := e.stats.framesWritten.Load() - e.position.segmentStart()
		if dropped > 0 {
			e.discarded.Store(dropped)
		}
	}
	return nil
}

func (e *engine) releaseSink() {
	e.releaseOnce.Do(func() {
		if err := e.sink.Stop(); err != nil {
			log.Printf("[%s] Audio output stop: %v", e.life.shortID(), err)
		}
		if err := e.sink.Release(); err != nil {
			log.Printf("[%s] Audio output release: %v", e.life.shortID(), err)
		}
	})
}

// reportProgress calls OnProgress every ProgressInterval until ctx ends
func (e *engine) reportProgress(ctx context.Context, suppressed func() bool) {
	ticker := time.NewTicker(e.timing.ProgressInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if suppressed != nil && suppressed() {
				continue
			}
			segment := e.position.currentSegment()
			ms, ok := e.position.position(e.sink)
			if !ok || e.position.currentSegment() != segment {
				continue
			}
			metrics.Get().PositionMs.WithLabelValues(e.mode).Set(float64(ms))
			e.listener.OnProgress(ms)
		}
	}
}

// Position returns the estimated playback position in milliseconds
func (e *engine) Position() int64 {
	ms, _ := e.position.position(e.sink)
	return ms
}

// State returns the playback driver state
func (e *engine) State() State {
	return e.state.load()
}

// Running reports whether the session is active
func (e *engine) Running() bool {
	return e.life.isRunning()
}

// SessionID returns the session identifier used in logs
func (e *engine) SessionID() string {
	return e.life.sessionID
}

// Shutdown stops the session. Safe to call more than once and from any
// goroutine; it does not wait for workers to exit.
func (e *engine) Shutdown() {
	if e.life.shutdown() {
		log.Printf("[%s] Shutdown requested", e.life.shortID())
	}
}

// Wait blocks until every worker has exited
func (e *engine) Wait() {
	e.life.wait()
}

// Done is closed once every worker has exited
func (e *engine) Done() <-chan struct{} {
	return e.life.done
}

// Err returns the error that ended the session, or nil for end of stream
// and user shutdown
func (e *engine) Err() error {
	return e.life.getErr()
}

// Close shuts down and waits for the workers. A client whose playback
// worker never ran releases its sink here, after every worker has exited.
func (e *engine) Close() error {
	e.Shutdown()
	e.Wait()
	e.releaseSink()
	return nil
}

func (e *engine) snapshot() Stats {
	return Stats{
		PacketsReceived: e.stats.packetsReceived.Load(),
		PacketsPlayed:   e.stats.packetsPlayed.Load(),
		SilenceBlocks:   e.stats.silenceBlocks.Load(),
		StaleDiscarded:  e.stats.staleDiscarded.Load(),
		Malformed:       e.stats.malformed.Load(),
		BytesReceived:   e.stats.bytesReceived.Load(),
		FramesWritten:   e.stats.framesWritten.Load(),
		FramesPlayed:    e.sink.FramesPlayed(),
		CommandsSent:    e.stats.commandsSent.Load(),
		CommandsDropped: e.stats.commandsDropped.Load(),
	}
}
