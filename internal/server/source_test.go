// ABOUTME: Tests for PCM sources and pacing
// ABOUTME: Covers tone generation, WAV loading, offsets and the send pacer
package server

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/matryer/is"
)

// makeWAV builds a minimal RIFF/WAVE file around pcm
func makeWAV(sampleRate, channels, bits int, pcm []byte) []byte {
	var buf bytes.Buffer
	blockAlign := channels * bits / 8

	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(36+len(pcm)))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(1))
	binary.Write(&buf, binary.LittleEndian, uint16(channels))
	binary.Write(&buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(&buf, binary.LittleEndian, uint32(sampleRate*blockAlign))
	binary.Write(&buf, binary.LittleEndian, uint16(blockAlign))
	binary.Write(&buf, binary.LittleEndian, uint16(bits))

	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, uint32(len(pcm)))
	buf.Write(pcm)

	return buf.Bytes()
}

func writeWAV(t *testing.T, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "clip.wav")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("failed to write wav: %v", err)
	}
	return path
}

func TestToneSource(t *testing.T) {
	is := is.New(t)
	source := NewToneSource(440, 8000, 2, 1500)

	is.Equal(source.Len(), 8000*3/2*4)
	is.Equal(source.DurationMs(), int64(1500))

	header := source.Header()
	is.Equal(header.SampleRate, 8000)
	is.Equal(header.Channels, 2)
	is.Equal(header.SampleWidthBits, 16)
	is.Equal(header.Duration(), int64(1500))

	pcm := source.Slice(0, source.Len())
	// both channels carry the same sample
	for i := 0; i+3 < 400; i += 4 {
		is.Equal(pcm[i:i+2], pcm[i+2:i+4])
	}
	// the first sample of a sine is zero, later ones are not
	is.Equal(pcm[0:2], []byte{0, 0})
	is.True(!bytes.Equal(pcm[4:6], []byte{0, 0}))
}

func TestNewSourceDropsPartialFrame(t *testing.T) {
	source := NewSource("x", 8000, 2, make([]byte, 10))
	if source.Len() != 8 {
		t.Errorf("expected 8 bytes, got %d", source.Len())
	}
}

func TestSourceOffset(t *testing.T) {
	// 8000Hz mono: 16 bytes per millisecond
	source := NewSource("x", 8000, 1, make([]byte, 16000))

	tests := []struct {
		ms   int64
		want int
	}{
		{-5, 0},
		{0, 0},
		{250, 4000},
		{1000, 16000},
		{5000, 16000},
	}
	for _, tt := range tests {
		if got := source.Offset(tt.ms); got != tt.want {
			t.Errorf("Offset(%d) = %d, want %d", tt.ms, got, tt.want)
		}
	}

	if got := source.Slice(15990, 100); len(got) != 10 {
		t.Errorf("expected short tail slice, got %d bytes", len(got))
	}
	if got := source.Slice(16000, 100); got != nil {
		t.Errorf("expected nil past the end, got %d bytes", len(got))
	}
}

func TestLoadWAV(t *testing.T) {
	is := is.New(t)
	pcm := make([]byte, 44100*4/10) // 100ms stereo
	for i := range pcm {
		pcm[i] = byte(i)
	}

	source, err := LoadWAV(writeWAV(t, makeWAV(44100, 2, 16, pcm)))
	is.NoErr(err)

	is.Equal(source.Name(), "clip")
	is.Equal(source.Format().SampleRate, 44100)
	is.Equal(source.Format().Channels, 2)
	is.Equal(source.DurationMs(), int64(100))
	is.Equal(source.Slice(0, len(pcm)), pcm)
}

func TestLoadWAVRejects(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		errorMsg string
	}{
		{"8-bit", makeWAV(8000, 1, 8, make([]byte, 100)), "bit depth"},
		{"six channels", makeWAV(8000, 6, 16, make([]byte, 120)), "channel count"},
		{"not a wav", []byte("definitely not riff data"), "WAV"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadWAV(writeWAV(t, tt.data))
			if err == nil || !strings.Contains(err.Error(), tt.errorMsg) {
				t.Errorf("expected error containing %q, got %v", tt.errorMsg, err)
			}
		})
	}

	if _, err := LoadWAV(filepath.Join(t.TempDir(), "missing.wav")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestPacer(t *testing.T) {
	p := newPacer(200 * time.Millisecond)

	if d := p.delay(); d > 0 {
		t.Errorf("expected first send immediately, got %v", d)
	}

	p.advance(100 * time.Millisecond)
	if d := p.delay(); d > 0 {
		t.Errorf("expected send inside the lead, got %v", d)
	}

	p.advance(300 * time.Millisecond)
	if d := p.delay(); d < 150*time.Millisecond {
		t.Errorf("expected to wait once past the lead, got %v", d)
	}

	p.reset()
	if d := p.delay(); d > 0 {
		t.Errorf("expected reset to allow an immediate send, got %v", d)
	}
}

// makeMP3 builds silent MPEG-1 Layer III frames: 128kbps, 44.1kHz, mono,
// with zeroed side info and main data
func makeMP3(frames int) []byte {
	const frameLen = 144 * 128000 / 44100
	var buf bytes.Buffer
	for i := 0; i < frames; i++ {
		frame := make([]byte, frameLen)
		copy(frame, []byte{0xFF, 0xFB, 0x90, 0xC4})
		buf.Write(frame)
	}
	return buf.Bytes()
}

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

func TestLoadMP3(t *testing.T) {
	is := is.New(t)

	source, err := LoadMP3(writeFile(t, "silence.mp3", makeMP3(20)))
	is.NoErr(err)
	is.Equal(source.Name(), "silence")
	is.Equal(source.Format().SampleRate, 44100)
	is.Equal(source.Format().Channels, 2)
	is.True(source.Len() > 0)
	is.Equal(source.Len()%4, 0)
}

func TestLoadMP3Rejects(t *testing.T) {
	if _, err := LoadMP3(writeFile(t, "notes.mp3", []byte("this is not audio"))); err == nil {
		t.Error("expected error for non-MP3 data")
	}
	if _, err := LoadMP3(filepath.Join(t.TempDir(), "missing.mp3")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoadFileByExtension(t *testing.T) {
	is := is.New(t)

	wavSource, err := LoadFile(writeFile(t, "clip.WAV", makeWAV(8000, 1, 16, make([]byte, 1600))))
	is.NoErr(err)
	is.Equal(wavSource.Format().SampleRate, 8000)

	mp3Source, err := LoadFile(writeFile(t, "clip.mp3", makeMP3(10)))
	is.NoErr(err)
	is.Equal(mp3Source.Format().Channels, 2)

	_, err = LoadFile(writeFile(t, "clip.ogg", []byte("OggS")))
	is.True(err != nil)
	is.True(strings.Contains(err.Error(), "unsupported source file"))
}
