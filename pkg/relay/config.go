// ABOUTME: Client configuration with defaults
// ABOUTME: Shared timing knobs plus per-mode UDP and TCP settings
package relay

import (
	"net"
	"strconv"
	"time"

	"github.com/Resonate-Protocol/relay-go/pkg/protocol"
	"github.com/google/uuid"
)

const (
	DefaultTargetFill       = 100
	DefaultChunkSize        = 4096
	DefaultCommandQueueSize = 16

	DefaultPollInterval     = 20 * time.Millisecond
	DefaultReceiveTimeout   = time.Second
	DefaultProgressInterval = 250 * time.Millisecond
	DefaultShutdownGrace    = 50 * time.Millisecond
	DefaultDrainStall       = time.Second
	DefaultDialTimeout      = 5 * time.Second
	DefaultCommandTimeout   = 2 * time.Second
)

// Timing holds the intervals shared by both clients
type Timing struct {
	// PollInterval is how often the driver rechecks while waiting (default: 20ms)
	PollInterval time.Duration

	// ProgressInterval is the progress report period (default: 250ms)
	ProgressInterval time.Duration

	// ShutdownGrace is how long Shutdown waits before closing the connection (default: 50ms)
	ShutdownGrace time.Duration

	// DrainStall ends draining once the sink stops advancing for this long (default: 1s)
	DrainStall time.Duration

	// DialTimeout bounds connection setup (default: 5s)
	DialTimeout time.Duration
}

func (t *Timing) applyDefaults() {
	if t.PollInterval <= 0 {
		t.PollInterval = DefaultPollInterval
	}
	if t.ProgressInterval <= 0 {
		t.ProgressInterval = DefaultProgressInterval
	}
	if t.ShutdownGrace <= 0 {
		t.ShutdownGrace = DefaultShutdownGrace
	}
	if t.DrainStall <= 0 {
		t.DrainStall = DefaultDrainStall
	}
	if t.DialTimeout <= 0 {
		t.DialTimeout = DefaultDialTimeout
	}
}

// UDPConfig configures a best-effort client
type UDPConfig struct {
	// ServerAddr is the server address (host:port); a bare host uses port 50007
	ServerAddr string

	// SampleRate and Channels describe the stream; there is no in-band header
	// in best-effort mode (default: 44100Hz, 2 channels)
	SampleRate int
	Channels   int

	// PayloadSize is the audio bytes per datagram, used for silence blocks (default: 1020)
	PayloadSize int

	// TargetFill is the packet count buffered before playback starts (default: 100)
	TargetFill int

	// ReceiveTimeout bounds each blocking receive (default: 1s)
	ReceiveTimeout time.Duration

	// IdleTimeout ends the stream when no datagram arrives for this long
	// after packets have flowed. Zero disables it.
	IdleTimeout time.Duration

	// SessionID tags log lines (default: random UUID)
	SessionID string

	Timing
}

func (c *UDPConfig) applyDefaults() {
	c.ServerAddr = withDefaultPort(c.ServerAddr)
	if c.SampleRate == 0 {
		c.SampleRate = 44100
	}
	if c.Channels == 0 {
		c.Channels = protocol.DefaultChannels
	}
	if c.PayloadSize <= 0 {
		c.PayloadSize = protocol.DefaultPayloadSize
	}
	if c.TargetFill <= 0 {
		c.TargetFill = DefaultTargetFill
	}
	if c.ReceiveTimeout <= 0 {
		c.ReceiveTimeout = DefaultReceiveTimeout
	}
	if c.SessionID == "" {
		c.SessionID = uuid.New().String()
	}
	c.Timing.applyDefaults()
}

// Header returns the configured stream header
func (c UDPConfig) Header() protocol.StreamHeader {
	return protocol.StreamHeader{
		SampleRate:      c.SampleRate,
		Channels:        c.Channels,
		SampleWidthBits: protocol.DefaultSampleWidthBits,
	}
}

// TCPConfig configures a reliable client
type TCPConfig struct {
	// ServerAddr is the server address (host:port); a bare host uses port 50007
	ServerAddr string

	// ChunkSize is the read size for PCM data (default: 4096)
	ChunkSize int

	// CommandQueueSize bounds pending directives (default: 16)
	CommandQueueSize int

	// CommandTimeout is the write deadline per directive (default: 2s)
	CommandTimeout time.Duration

	// SessionID tags log lines (default: random UUID)
	SessionID string

	Timing
}

func (c *TCPConfig) applyDefaults() {
	c.ServerAddr = withDefaultPort(c.ServerAddr)
	if c.ChunkSize <= 0 {
		c.ChunkSize = DefaultChunkSize
	}
	if c.CommandQueueSize <= 0 {
		c.CommandQueueSize = DefaultCommandQueueSize
	}
	if c.CommandTimeout <= 0 {
		c.CommandTimeout = DefaultCommandTimeout
	}
	if c.SessionID == "" {
		c.SessionID = uuid.New().String()
	}
	c.Timing.applyDefaults()
}

func withDefaultPort(addr string) string {
	if addr == "" {
		return net.JoinHostPort("localhost", strconv.Itoa(protocol.DefaultPort))
	}
	if _, _, err := net.SplitHostPort(addr); err != nil {
		return net.JoinHostPort(addr, strconv.Itoa(protocol.DefaultPort))
	}
	return addr
}
