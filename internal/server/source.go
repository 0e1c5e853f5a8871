// ABOUTME: PCM sources served by the reference server
// ABOUTME: Loads 16-bit WAV or MP3 files, or generates a sine test tone in memory
package server

import (
	"bytes"
	"fmt"
	"io"
	"log"
	"math"
	"os"
	"path/filepath"
	"strings"

	"gitee.com/general252/go-wav"
	"github.com/Resonate-Protocol/relay-go/pkg/audio"
	"github.com/Resonate-Protocol/relay-go/pkg/protocol"
	"github.com/hajimehoshi/go-mp3"
)

// Source is a complete PCM stream held in memory
type Source struct {
	name   string
	format audio.Format
	pcm    []byte
}

// NewSource wraps raw 16-bit little-endian PCM. Trailing partial frames are dropped.
func NewSource(name string, sampleRate, channels int, pcm []byte) *Source {
	format := audio.Format{SampleRate: sampleRate, Channels: channels, BitDepth: 16}
	whole := len(pcm) - len(pcm)%format.FrameSize()
	return &Source{name: name, format: format, pcm: pcm[:whole]}
}

// NewToneSource generates a sine wave at half amplitude
func NewToneSource(frequency float64, sampleRate, channels int, durationMs int64) *Source {
	format := audio.Format{SampleRate: sampleRate, Channels: channels, BitDepth: 16}
	frames := format.MsToFrames(durationMs)
	samples := make([]int16, frames*int64(channels))

	for i := int64(0); i < frames; i++ {
		t := float64(i) / float64(sampleRate)
		value := int16(math.Sin(2*math.Pi*frequency*t) * audio.Max16Bit * 0.5)
		for ch := 0; ch < channels; ch++ {
			samples[i*int64(channels)+int64(ch)] = value
		}
	}

	return NewSource(fmt.Sprintf("%gHz tone", frequency), sampleRate, channels, audio.EncodeS16LE(samples))
}

// LoadWAV reads a 16-bit PCM WAV file
func LoadWAV(path string) (*Source, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read WAV file: %w", err)
	}

	reader := wav.NewReader(bytes.NewReader(data))
	format, err := reader.Format()
	if err != nil {
		return nil, fmt.Errorf("failed to parse WAV header: %w", err)
	}

	if format.AudioFormat != wav.AudioFormatPCM {
		return nil, fmt.Errorf("unsupported WAV encoding %d (only PCM)", format.AudioFormat)
	}
	if format.BitsPerSample != 16 {
		return nil, fmt.Errorf("unsupported bit depth %d (only 16-bit)", format.BitsPerSample)
	}
	if format.NumChannels != 1 && format.NumChannels != 2 {
		return nil, fmt.Errorf("unsupported channel count %d", format.NumChannels)
	}

	pcm, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read WAV data: %w", err)
	}

	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	source := NewSource(name, int(format.SampleRate), int(format.NumChannels), pcm)

	log.Printf("Loaded WAV: %s (%dHz, %d channels, %dms)",
		name, format.SampleRate, format.NumChannels, source.DurationMs())

	return source, nil
}

// LoadMP3 decodes an MP3 file. The decoder always produces 16-bit stereo.
func LoadMP3(path string) (*Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open MP3 file: %w", err)
	}
	defer f.Close()

	decoder, err := mp3.NewDecoder(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode MP3: %w", err)
	}

	pcm, err := io.ReadAll(decoder)
	if err != nil {
		return nil, fmt.Errorf("failed to read MP3 data: %w", err)
	}

	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	source := NewSource(name, decoder.SampleRate(), 2, pcm)

	log.Printf("Loaded MP3: %s (%dHz, %dms)", name, decoder.SampleRate(), source.DurationMs())

	return source, nil
}

// LoadFile picks the loader by file extension
func LoadFile(path string) (*Source, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav":
		return LoadWAV(path)
	case ".mp3":
		return LoadMP3(path)
	default:
		return nil, fmt.Errorf("unsupported source file %s (want .wav or .mp3)", path)
	}
}

// Name returns a display name
func (s *Source) Name() string { return s.name }

// Format returns the PCM format
func (s *Source) Format() audio.Format { return s.format }

// Len returns the PCM length in bytes
func (s *Source) Len() int { return len(s.pcm) }

// DurationMs returns the playing time
func (s *Source) DurationMs() int64 {
	return s.format.FramesToMs(int64(len(s.pcm) / s.format.FrameSize()))
}

// Header returns the stream header announced to reliable clients
func (s *Source) Header() protocol.StreamHeader {
	duration := s.DurationMs()
	return protocol.StreamHeader{
		SampleRate:      s.format.SampleRate,
		Channels:        s.format.Channels,
		SampleWidthBits: s.format.BitDepth,
		DurationMs:      &duration,
	}
}

// Offset converts a position to a frame-aligned byte offset, clamped to the end
func (s *Source) Offset(ms int64) int {
	if ms <= 0 {
		return 0
	}
	offset := s.format.MsToBytes(ms)
	if offset > int64(len(s.pcm)) {
		return len(s.pcm)
	}
	return int(offset)
}

// Slice returns up to n bytes starting at offset
func (s *Source) Slice(offset, n int) []byte {
	if offset >= len(s.pcm) {
		return nil
	}
	end := offset + n
	if end > len(s.pcm) {
		end = len(s.pcm)
	}
	return s.pcm[offset:end]
}
