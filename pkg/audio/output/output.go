// ABOUTME: Audio sink interface definition
// ABOUTME: Common interface for PCM playback backends
package output

import "errors"

// ErrClosed is returned by Write after Stop or Release
var ErrClosed = errors.New("audio sink closed")

// ErrNotConfigured is returned when the sink is used before Configure
var ErrNotConfigured = errors.New("audio sink not configured")

// ErrInterrupted is returned by Write after Interrupt
var ErrInterrupted = errors.New("audio sink write interrupted")

// Sink is a 16-bit little-endian PCM output device
type Sink interface {
	// Configure opens the device for the given stream format
	Configure(sampleRate, channels int) error

	// Write queues PCM for playback, blocking while the device queue is full.
	// Returns the number of whole frames accepted.
	Write(p []byte) (int, error)

	// Pause stops sounding audio without discarding the queue
	Pause() error

	// Resume continues after Pause
	Resume() error

	// Flush discards audio that is queued but not yet sounded
	Flush() error

	// FramesPlayed returns the frames sounded so far; never decreases
	FramesPlayed() int64

	// Interrupt wakes a blocked Write and fails every later one with
	// ErrInterrupted. Queued audio and the device are left alone.
	Interrupt()

	// Stop halts playback; later writes fail with ErrClosed
	Stop() error

	// Release frees the device. Safe to call more than once.
	Release() error
}
