// ABOUTME: Stream header negotiation for reliable streaming
// ABOUTME: Reads the newline-terminated JSON header and validates stream parameters
package protocol

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/Resonate-Protocol/relay-go/pkg/audio"
)

const (
	// MaxHeaderLength bounds the header line, terminator excluded
	MaxHeaderLength = 4096

	// DefaultSampleWidthBits is the only sample width the engine renders
	DefaultSampleWidthBits = 16

	// DefaultChannels applies when a header carries only a duration
	DefaultChannels = 2
)

// StreamHeader carries the negotiated stream parameters. It is created once
// per connection and never modified.
type StreamHeader struct {
	SampleRate      int
	Channels        int
	SampleWidthBits int
	DurationMs      *int64 // nil when the server did not announce one
}

// HasDuration reports whether the server announced a total duration
func (h StreamHeader) HasDuration() bool {
	return h.DurationMs != nil
}

// Duration returns the announced duration in milliseconds, or 0
func (h StreamHeader) Duration() int64 {
	if h.DurationMs == nil {
		return 0
	}
	return *h.DurationMs
}

// FrameSize returns the byte size of one frame (one sample per channel)
func (h StreamHeader) FrameSize() int {
	return h.Format().FrameSize()
}

// Validate checks the invariants every header must satisfy
func (h StreamHeader) Validate() error {
	if h.SampleRate <= 0 {
		return &ProtocolError{Reason: fmt.Sprintf("sample rate must be positive, got %d", h.SampleRate)}
	}
	if h.Channels != 1 && h.Channels != 2 {
		return &ProtocolError{Reason: fmt.Sprintf("channel count must be 1 or 2, got %d", h.Channels)}
	}
	if h.SampleWidthBits != DefaultSampleWidthBits {
		return &ProtocolError{Reason: fmt.Sprintf("sample width must be 16 bits, got %d", h.SampleWidthBits)}
	}
	if h.DurationMs != nil && *h.DurationMs < 0 {
		return &ProtocolError{Reason: fmt.Sprintf("duration must not be negative, got %d", *h.DurationMs)}
	}
	return nil
}

// ReadHeaderLine reads up to and including the first newline. A connection
// that closes before the terminator yields a ProtocolError; any other read
// failure is returned as a TransportError.
func ReadHeaderLine(r *bufio.Reader) ([]byte, error) {
	var line []byte
	for {
		b, err := r.ReadByte()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, &ProtocolError{Reason: "connection closed before header terminator", Err: err}
			}
			return nil, &TransportError{Op: "read header", Err: err}
		}
		if b == '\n' {
			return bytes.TrimSuffix(line, []byte{'\r'}), nil
		}
		if len(line) >= MaxHeaderLength {
			return nil, &ProtocolError{Reason: fmt.Sprintf("header exceeds %d bytes", MaxHeaderLength)}
		}
		line = append(line, b)
	}
}

// ParseHeader parses a header line such as
//
//	{"sample_rate": 44100, "channels": 2, "sample_width": 2}
//	{"sample_rate": 44100, "duration_ms": 120000}
//
// sample_width may be given in bytes (2) or bits (16).
func ParseHeader(line []byte) (StreamHeader, error) {
	dec := json.NewDecoder(bytes.NewReader(line))
	dec.UseNumber()

	var fields map[string]interface{}
	if err := dec.Decode(&fields); err != nil {
		return StreamHeader{}, &ProtocolError{Reason: "header is not a JSON object", Err: err}
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return StreamHeader{}, &ProtocolError{Reason: "trailing data after header object"}
	}

	sampleRate, ok, err := intField(fields, "sample_rate")
	if err != nil {
		return StreamHeader{}, err
	}
	if !ok {
		return StreamHeader{}, &ProtocolError{Reason: "header missing sample_rate"}
	}

	channels, hasChannels, err := intField(fields, "channels")
	if err != nil {
		return StreamHeader{}, err
	}
	duration, hasDuration, err := intField(fields, "duration_ms")
	if err != nil {
		return StreamHeader{}, err
	}
	if !hasChannels && !hasDuration {
		return StreamHeader{}, &ProtocolError{Reason: "header needs channels or duration_ms"}
	}
	if !hasChannels {
		channels = DefaultChannels
	}

	width, hasWidth, err := intField(fields, "sample_width")
	if err != nil {
		return StreamHeader{}, err
	}
	bits := int64(DefaultSampleWidthBits)
	if hasWidth {
		switch width {
		case 2, 16:
			bits = 16
		default:
			return StreamHeader{}, &ProtocolError{Reason: fmt.Sprintf("unsupported sample_width %d", width)}
		}
	}

	header := StreamHeader{
		SampleRate:      int(sampleRate),
		Channels:        int(channels),
		SampleWidthBits: int(bits),
	}
	if hasDuration {
		header.DurationMs = &duration
	}

	if err := header.Validate(); err != nil {
		return StreamHeader{}, err
	}

	return header, nil
}

// intField extracts an integer field, reporting whether it was present
func intField(fields map[string]interface{}, key string) (int64, bool, error) {
	raw, ok := fields[key]
	if !ok || raw == nil {
		return 0, false, nil
	}

	num, isNumber := raw.(json.Number)
	if !isNumber {
		return 0, true, &ProtocolError{Reason: fmt.Sprintf("%s is not numeric", key)}
	}

	v, err := num.Int64()
	if err != nil {
		return 0, true, &ProtocolError{Reason: fmt.Sprintf("%s is not an integer", key), Err: err}
	}

	return v, true, nil
}

// Format returns the PCM format described by the header
func (h StreamHeader) Format() audio.Format {
	return audio.Format{
		SampleRate: h.SampleRate,
		Channels:   h.Channels,
		BitDepth:   h.SampleWidthBits,
	}
}

// FormatHeader returns the newline-terminated header line a server sends.
// sample_width is written in bytes.
func FormatHeader(h StreamHeader) []byte {
	fields := struct {
		SampleRate  int    `json:"sample_rate"`
		Channels    int    `json:"channels"`
		SampleWidth int    `json:"sample_width"`
		DurationMs  *int64 `json:"duration_ms,omitempty"`
	}{
		SampleRate:  h.SampleRate,
		Channels:    h.Channels,
		SampleWidth: h.SampleWidthBits / 8,
		DurationMs:  h.DurationMs,
	}

	line, _ := json.Marshal(fields)
	return append(line, '\n')
}
