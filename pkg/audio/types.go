// ABOUTME: Audio type definitions
// ABOUTME: Defines the PCM format and frame/time/sample conversions
package audio

import "encoding/binary"

const (
	// 16-bit audio range constants
	Max16Bit = 32767
	Min16Bit = -32768
)

// Format describes a raw PCM stream
type Format struct {
	SampleRate int
	Channels   int
	BitDepth   int
}

// FrameSize returns the bytes in one frame (one sample for every channel)
func (f Format) FrameSize() int {
	return f.Channels * f.BitDepth / 8
}

// BytesPerSecond returns the byte rate of the stream
func (f Format) BytesPerSecond() int {
	return f.SampleRate * f.FrameSize()
}

// FramesToMs converts a frame count to milliseconds of audio
func (f Format) FramesToMs(frames int64) int64 {
	if f.SampleRate <= 0 {
		return 0
	}
	return frames * 1000 / int64(f.SampleRate)
}

// MsToFrames converts milliseconds to a frame count
func (f Format) MsToFrames(ms int64) int64 {
	return ms * int64(f.SampleRate) / 1000
}

// MsToBytes converts milliseconds to a frame-aligned byte count
func (f Format) MsToBytes(ms int64) int64 {
	return f.MsToFrames(ms) * int64(f.FrameSize())
}

// Silence returns n zero bytes, which is silence for signed PCM
func Silence(n int) []byte {
	return make([]byte, n)
}

// EncodeS16LE packs int16 samples as little-endian bytes
func EncodeS16LE(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

// DecodeS16LE unpacks little-endian bytes into int16 samples
func DecodeS16LE(data []byte) []int16 {
	samples := make([]int16, len(data)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(data[i*2:]))
	}
	return samples
}
