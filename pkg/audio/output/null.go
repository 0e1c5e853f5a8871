// ABOUTME: Null audio output that discards PCM at real-time pace
// ABOUTME: Used for headless runs and for exercising the engine without a device
package output

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Resonate-Protocol/relay-go/pkg/audio"
)

const (
	nullQueueMs  = 250
	nullPollTime = 5 * time.Millisecond
)

// Null plays nothing but consumes frames at the configured rate, so
// FramesPlayed behaves like a real device.
type Null struct {
	mu       sync.Mutex
	format   audio.Format
	capacity int64 // frames

	written int64
	played  int64
	playing bool
	mark    time.Time // wall time that played corresponds to

	configured  bool
	stopped     bool
	interrupted bool
}

// NewNull creates a new Null output
func NewNull() *Null {
	return &Null{}
}

// Configure sets the rate frames are consumed at
func (n *Null) Configure(sampleRate, channels int) error {
	format := audio.Format{SampleRate: sampleRate, Channels: channels, BitDepth: 16}
	if sampleRate <= 0 || channels <= 0 {
		return fmt.Errorf("invalid output format: %dHz %dch", sampleRate, channels)
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	if n.stopped {
		return ErrClosed
	}
	if n.configured {
		return errors.New("audio output already configured")
	}

	n.format = format
	n.capacity = format.MsToFrames(nullQueueMs)
	n.playing = true
	n.mark = time.Now()
	n.configured = true
	return nil
}

// advanceLocked moves played forward by the wall time elapsed since mark
func (n *Null) advanceLocked(now time.Time) {
	if !n.playing {
		n.mark = now
		return
	}

	rate := int64(n.format.SampleRate)
	elapsed := int64(now.Sub(n.mark)) * rate / int64(time.Second)
	pending := n.written - n.played

	if elapsed >= pending {
		// underrun: the clock idles until more audio arrives
		n.played = n.written
		n.mark = now
		return
	}

	n.played += elapsed
	n.mark = n.mark.Add(time.Duration(elapsed * int64(time.Second) / rate))
}

// Write accepts whole frames, blocking while more than the queue
// capacity is pending
func (n *Null) Write(p []byte) (int, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if !n.configured {
		return 0, ErrNotConfigured
	}

	frames := int64(len(p) / n.format.FrameSize())
	for {
		if n.stopped {
			return 0, ErrClosed
		}
		if n.interrupted {
			return 0, ErrInterrupted
		}
		n.advanceLocked(time.Now())
		if n.written-n.played+frames <= n.capacity || n.written == n.played {
			break
		}
		n.mu.Unlock()
		time.Sleep(nullPollTime)
		n.mu.Lock()
	}

	n.written += frames
	return int(frames), nil
}

// Pause freezes the played counter
func (n *Null) Pause() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if !n.configured {
		return ErrNotConfigured
	}
	n.advanceLocked(time.Now())
	n.playing = false
	return nil
}

// Resume restarts the played counter
func (n *Null) Resume() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if !n.configured {
		return ErrNotConfigured
	}
	n.advanceLocked(time.Now())
	n.playing = true
	return nil
}

// Flush drops pending frames
func (n *Null) Flush() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if !n.configured {
		return nil
	}
	n.advanceLocked(time.Now())
	n.written = n.played
	return nil
}

// FramesPlayed returns frames consumed so far
func (n *Null) FramesPlayed() int64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.configured && !n.stopped {
		n.advanceLocked(time.Now())
	}
	return n.played
}

// Interrupt fails the pending and all later writes
func (n *Null) Interrupt() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.interrupted = true
}

// Stop halts consumption and fails pending writes
func (n *Null) Stop() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.configured && !n.stopped {
		n.advanceLocked(time.Now())
	}
	n.stopped = true
	n.playing = false
	return nil
}

// Release is the same as Stop for the null output
func (n *Null) Release() error {
	return n.Stop()
}
