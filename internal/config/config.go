// ABOUTME: YAML configuration for the relay player and reference server
// ABOUTME: Loads a file over built-in defaults and validates each section
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/Resonate-Protocol/relay-go/pkg/protocol"
	"github.com/Resonate-Protocol/relay-go/pkg/relay"
	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration file
type Config struct {
	Player  PlayerConfig  `yaml:"player"`
	Server  ServerConfig  `yaml:"server"`
	Metrics MetricsConfig `yaml:"metrics"`
	Logging LoggingConfig `yaml:"logging"`
}

// PlayerConfig configures the streaming client
type PlayerConfig struct {
	Mode   string `yaml:"mode"`   // udp or tcp
	Server string `yaml:"server"` // host:port; empty means discover via mDNS
	Output string `yaml:"output"` // oto or null
	Volume int    `yaml:"volume"`

	// Best-effort stream format (no in-band header)
	SampleRate  int `yaml:"sample_rate"`
	Channels    int `yaml:"channels"`
	PayloadSize int `yaml:"payload_size"`
	TargetFill  int `yaml:"target_fill"`

	IdleTimeoutMs int `yaml:"idle_timeout_ms"`
	ChunkSize     int `yaml:"chunk_size"`

	DiscoveryTimeoutSec int `yaml:"discovery_timeout_sec"`
}

// ServerConfig configures the reference server
type ServerConfig struct {
	Mode        string `yaml:"mode"`
	BindAddress string `yaml:"bind_address"`
	Port        int    `yaml:"port"`
	Name        string `yaml:"name"`
	Advertise   bool   `yaml:"advertise"`

	// Source is a WAV or MP3 file path, or "tone"
	Source     string  `yaml:"source"`
	ToneHz     float64 `yaml:"tone_hz"`
	SampleRate int     `yaml:"sample_rate"`
	Channels   int     `yaml:"channels"`
	DurationMs int64   `yaml:"duration_ms"`

	PayloadSize int `yaml:"payload_size"`
	ChunkMs     int `yaml:"chunk_ms"`
}

// MetricsConfig configures the Prometheus endpoint; empty Address disables it
type MetricsConfig struct {
	Address string `yaml:"address"`
}

// LoggingConfig configures log output
type LoggingConfig struct {
	File string `yaml:"file"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		Player: PlayerConfig{
			Mode:                "tcp",
			Output:              "oto",
			Volume:              100,
			SampleRate:          44100,
			Channels:            protocol.DefaultChannels,
			PayloadSize:         protocol.DefaultPayloadSize,
			TargetFill:          relay.DefaultTargetFill,
			ChunkSize:           relay.DefaultChunkSize,
			DiscoveryTimeoutSec: 5,
		},
		Server: ServerConfig{
			Mode:        "tcp",
			BindAddress: "0.0.0.0",
			Port:        protocol.DefaultPort,
			Name:        "Relay Server",
			Advertise:   true,
			Source:      "tone",
			ToneHz:      440,
			SampleRate:  44100,
			Channels:    protocol.DefaultChannels,
			DurationMs:  180000,
			PayloadSize: protocol.DefaultPayloadSize,
			ChunkMs:     100,
		},
		Logging: LoggingConfig{
			File: "relay-player.log",
		},
	}
}

// Load reads a YAML file over the defaults and validates the result
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// Validate checks every section
func (c *Config) Validate() error {
	if err := c.Player.Validate(); err != nil {
		return fmt.Errorf("player config: %w", err)
	}
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server config: %w", err)
	}
	return nil
}

// Validate validates player configuration
func (p *PlayerConfig) Validate() error {
	if err := validateMode(p.Mode); err != nil {
		return err
	}
	if p.Output != "oto" && p.Output != "null" {
		return fmt.Errorf("output must be 'oto' or 'null', got %q", p.Output)
	}
	if p.Volume < 0 || p.Volume > 100 {
		return fmt.Errorf("volume must be between 0 and 100, got %d", p.Volume)
	}
	if err := validateFormat(p.SampleRate, p.Channels); err != nil {
		return err
	}
	if p.PayloadSize <= 0 || p.PayloadSize > protocol.MaxDatagramSize-protocol.SeqHeaderSize {
		return fmt.Errorf("payload_size must be between 1 and %d, got %d",
			protocol.MaxDatagramSize-protocol.SeqHeaderSize, p.PayloadSize)
	}
	if p.PayloadSize%(p.Channels*2) != 0 {
		return fmt.Errorf("payload_size %d is not a whole number of frames", p.PayloadSize)
	}
	if p.TargetFill <= 0 {
		return fmt.Errorf("target_fill must be positive, got %d", p.TargetFill)
	}
	if p.IdleTimeoutMs < 0 {
		return fmt.Errorf("idle_timeout_ms must not be negative, got %d", p.IdleTimeoutMs)
	}
	if p.ChunkSize <= 0 {
		return fmt.Errorf("chunk_size must be positive, got %d", p.ChunkSize)
	}
	return nil
}

// Validate validates server configuration
func (s *ServerConfig) Validate() error {
	if err := validateMode(s.Mode); err != nil {
		return err
	}
	if s.Port < 1 || s.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", s.Port)
	}
	if s.Source == "" {
		return fmt.Errorf("source is required")
	}
	if s.Source == "tone" {
		if s.ToneHz <= 0 {
			return fmt.Errorf("tone_hz must be positive, got %g", s.ToneHz)
		}
		if err := validateFormat(s.SampleRate, s.Channels); err != nil {
			return err
		}
		if s.DurationMs <= 0 {
			return fmt.Errorf("duration_ms must be positive, got %d", s.DurationMs)
		}
	}
	if s.PayloadSize <= 0 || s.PayloadSize > protocol.MaxDatagramSize-protocol.SeqHeaderSize {
		return fmt.Errorf("payload_size must be between 1 and %d, got %d",
			protocol.MaxDatagramSize-protocol.SeqHeaderSize, s.PayloadSize)
	}
	if s.ChunkMs < 10 || s.ChunkMs > 1000 {
		return fmt.Errorf("chunk_ms must be between 10 and 1000, got %d", s.ChunkMs)
	}
	return nil
}

func validateMode(mode string) error {
	if mode != "udp" && mode != "tcp" {
		return fmt.Errorf("mode must be 'udp' or 'tcp', got %q", mode)
	}
	return nil
}

func validateFormat(sampleRate, channels int) error {
	if sampleRate < 8000 || sampleRate > 192000 {
		return fmt.Errorf("sample_rate must be between 8000 and 192000, got %d", sampleRate)
	}
	if channels != 1 && channels != 2 {
		return fmt.Errorf("channels must be 1 or 2, got %d", channels)
	}
	return nil
}

// UDP converts the player section into a best-effort client config
func (p PlayerConfig) UDP() relay.UDPConfig {
	return relay.UDPConfig{
		ServerAddr:  p.Server,
		SampleRate:  p.SampleRate,
		Channels:    p.Channels,
		PayloadSize: p.PayloadSize,
		TargetFill:  p.TargetFill,
		IdleTimeout: time.Duration(p.IdleTimeoutMs) * time.Millisecond,
	}
}

// TCP converts the player section into a reliable client config
func (p PlayerConfig) TCP() relay.TCPConfig {
	return relay.TCPConfig{
		ServerAddr: p.Server,
		ChunkSize:  p.ChunkSize,
	}
}

// DiscoveryTimeout returns how long to browse for a server
func (p PlayerConfig) DiscoveryTimeout() time.Duration {
	return time.Duration(p.DiscoveryTimeoutSec) * time.Second
}
