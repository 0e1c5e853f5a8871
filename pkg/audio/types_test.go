// ABOUTME: Tests for audio types
// ABOUTME: Tests frame sizing, time conversion and sample packing
package audio

import (
	"bytes"
	"testing"
)

func TestFrameSize(t *testing.T) {
	tests := []struct {
		name     string
		format   Format
		expected int
	}{
		{"stereo 16-bit", Format{SampleRate: 44100, Channels: 2, BitDepth: 16}, 4},
		{"mono 16-bit", Format{SampleRate: 8000, Channels: 1, BitDepth: 16}, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.format.FrameSize(); got != tt.expected {
				t.Errorf("expected %d, got %d", tt.expected, got)
			}
		})
	}
}

func TestFramesToMs(t *testing.T) {
	f := Format{SampleRate: 44100, Channels: 2, BitDepth: 16}

	tests := []struct {
		frames   int64
		expected int64
	}{
		{0, 0},
		{44100, 1000},
		{22050, 500},
		{441, 10},
		{440, 9}, // truncates
	}

	for _, tt := range tests {
		if got := f.FramesToMs(tt.frames); got != tt.expected {
			t.Errorf("FramesToMs(%d): expected %d, got %d", tt.frames, tt.expected, got)
		}
	}

	if (Format{}).FramesToMs(100) != 0 {
		t.Error("zero sample rate should yield zero ms")
	}
}

func TestMsToBytes(t *testing.T) {
	f := Format{SampleRate: 44100, Channels: 2, BitDepth: 16}

	if got := f.MsToBytes(100); got != 17640 {
		t.Errorf("expected 17640 bytes per 100ms, got %d", got)
	}
	if got := f.MsToFrames(60000); got != 2646000 {
		t.Errorf("expected 2646000 frames per minute, got %d", got)
	}
	if got := f.BytesPerSecond(); got != 176400 {
		t.Errorf("expected 176400 bytes/s, got %d", got)
	}
}

func TestSilence(t *testing.T) {
	block := Silence(1020)
	if len(block) != 1020 {
		t.Fatalf("expected 1020 bytes, got %d", len(block))
	}
	if !bytes.Equal(block, make([]byte, 1020)) {
		t.Error("silence must be all zero bytes")
	}
}

func TestS16LERoundTrip(t *testing.T) {
	samples := []int16{0, 1, -1, Max16Bit, Min16Bit, 12345}

	data := EncodeS16LE(samples)
	if len(data) != len(samples)*2 {
		t.Fatalf("expected %d bytes, got %d", len(samples)*2, len(data))
	}
	if data[2] != 0x01 || data[3] != 0x00 {
		t.Errorf("expected little-endian encoding, got %x", data[2:4])
	}

	decoded := DecodeS16LE(data)
	for i := range samples {
		if decoded[i] != samples[i] {
			t.Errorf("sample %d: expected %d, got %d", i, samples[i], decoded[i])
		}
	}
}
