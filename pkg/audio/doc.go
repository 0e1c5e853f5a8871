// ABOUTME: Audio fundamentals package providing PCM helpers
// ABOUTME: Defines Format and frame/time/sample conversions for 16-bit PCM
// Package audio provides fundamental types for raw PCM streams.
//
// The relay engine never decodes compressed audio: everything on the wire is
// signed 16-bit little-endian PCM, mono or stereo. This package answers the
// questions the engine keeps asking about such a stream:
//   - how many bytes make a frame
//   - how many milliseconds a frame count represents
//   - what a block of silence looks like
//
// Example:
//
//	format := audio.Format{SampleRate: 44100, Channels: 2, BitDepth: 16}
//	ms := format.FramesToMs(played)
//	block := audio.Silence(1020)
package audio
