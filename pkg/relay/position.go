// ABOUTME: Playback position estimate derived from the sink frame counter
// ABOUTME: Segment based so seeks reset the base without losing monotonicity
package relay

import (
	"fmt"
	"sync"

	"github.com/Resonate-Protocol/relay-go/pkg/audio/output"
)

// positionTracker computes
//
//	position = baseOffsetMs + (framesPlayed - framesAtSegmentStart) * 1000 / rate
//
// and never reports a smaller value within one segment. A seek starts a
// new segment. Safe for the driver, the reporter and control calls at once.
type positionTracker struct {
	mu sync.Mutex

	rate                 int64
	baseOffsetMs         int64
	framesAtSegmentStart int64
	segment              uint64
	lastMs               int64
	ready                bool
}

// start begins the first segment once the sink is configured. A seek made
// before the header arrived is kept as the base.
func (p *positionTracker) start(sampleRate int, sink output.Sink) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.rate = int64(sampleRate)
	p.framesAtSegmentStart = sink.FramesPlayed()
	p.lastMs = p.baseOffsetMs
	p.ready = true
}

// position returns the current estimate; ok is false before start
func (p *positionTracker) position(sink output.Sink) (ms int64, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.ready || p.rate <= 0 {
		return p.baseOffsetMs, false
	}

	played := sink.FramesPlayed() - p.framesAtSegmentStart
	ms = p.baseOffsetMs + played*1000/p.rate
	if ms < p.lastMs {
		ms = p.lastMs
	}
	p.lastMs = ms
	return ms, true
}

// seek flushes the sink and starts a new segment at targetMs. The flush
// and frame capture happen under the lock so no report mixes segments.
func (p *positionTracker) seek(targetMs int64, sink output.Sink) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ready {
		if err := sink.Flush(); err != nil {
			return fmt.Errorf("failed to flush audio output: %w", err)
		}
		p.framesAtSegmentStart = sink.FramesPlayed()
	}
	p.baseOffsetMs = targetMs
	p.lastMs = targetMs
	p.segment++
	return nil
}

// segmentStart returns the frame count the current segment began at
func (p *positionTracker) segmentStart() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.framesAtSegmentStart
}

func (p *positionTracker) currentSegment() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.segment
}
