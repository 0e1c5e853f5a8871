// ABOUTME: Audio output package for playing raw PCM
// ABOUTME: Provides the Sink boundary plus oto and null implementations
// Package output provides the audio sinks the relay engine renders into.
//
// A Sink paces playback itself: Write blocks while its internal queue is
// full, and FramesPlayed reports how much audio has actually been sounded.
// The engine derives the playback position from that counter.
//
// Implementations:
//   - Oto: the system audio device via ebitengine/oto
//   - Null: discards audio at real-time pace, for headless runs
//
// Example:
//
//	out := output.NewOto()
//	err := out.Configure(44100, 2)
//	frames, err := out.Write(pcm)
package output
