// ABOUTME: Entry point for the reference relay server
// ABOUTME: Cobra CLI that serves a WAV or MP3 file, or a test tone, over UDP or TCP
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/Resonate-Protocol/relay-go/internal/config"
	"github.com/Resonate-Protocol/relay-go/internal/metrics"
	"github.com/Resonate-Protocol/relay-go/internal/server"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "relay-server",
	Short: "Reference server streaming raw PCM to relay players",
	Long: `relay-server streams one source to relay players. In udp mode each
START datagram receives the whole source as sequence-numbered datagrams. In
tcp mode each connection gets a JSON header followed by PCM and may send
PAUSE, PLAY and SEEK_<ms>.`,
	SilenceUsage: true,
	RunE:         run,
}

func init() {
	flags := rootCmd.Flags()
	flags.String("config", "", "YAML config file")
	flags.String("mode", "tcp", "Transport: udp or tcp")
	flags.Int("port", 50007, "Listen port")
	flags.String("name", "", "Server friendly name (default: hostname-relay-server)")
	flags.String("source", "tone", "WAV or MP3 file to stream, or 'tone'")
	flags.Float64("tone-hz", 440, "Test tone frequency")
	flags.Int64("duration-ms", 180000, "Test tone length")
	flags.Bool("no-mdns", false, "Disable mDNS advertisement")
	flags.String("log-file", "relay-server.log", "Log file path")
	flags.String("metrics-addr", "", "Serve Prometheus metrics on this address")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	logFile, _ := cmd.Flags().GetString("log-file")
	f, err := os.OpenFile(logFile, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		return fmt.Errorf("error opening log file: %w", err)
	}
	defer f.Close()

	// Log to both file and stdout
	log.SetOutput(io.MultiWriter(os.Stdout, f))

	sc := cfg.Server
	if !cmd.Flags().Changed("name") && sc.Name == config.Default().Server.Name {
		hostname, err := os.Hostname()
		if err != nil {
			hostname = "unknown"
		}
		sc.Name = fmt.Sprintf("%s-relay-server", hostname)
	}

	var source *server.Source
	if sc.Source == "tone" {
		source = server.NewToneSource(sc.ToneHz, sc.SampleRate, sc.Channels, sc.DurationMs)
	} else {
		source, err = server.LoadFile(sc.Source)
		if err != nil {
			return err
		}
	}

	if cfg.Metrics.Address != "" {
		go serveMetrics(cfg.Metrics.Address)
	}

	srv, err := server.New(server.Config{
		Mode:        sc.Mode,
		BindAddress: sc.BindAddress,
		Port:        sc.Port,
		Name:        sc.Name,
		EnableMDNS:  sc.Advertise,
		ChunkMs:     sc.ChunkMs,
		PayloadSize: sc.PayloadSize,
		Source:      source,
	})
	if err != nil {
		return err
	}

	log.Printf("Logging to: %s", logFile)
	log.Printf("Press Ctrl-C to stop")

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("server error: %w", err)
	}

	log.Printf("Server stopped")
	return nil
}

// loadConfig reads the config file, then applies any flags given explicitly
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.Default()

	if path, _ := cmd.Flags().GetString("config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	flags := cmd.Flags()
	if flags.Changed("mode") {
		cfg.Server.Mode, _ = flags.GetString("mode")
	}
	if flags.Changed("port") {
		cfg.Server.Port, _ = flags.GetInt("port")
	}
	if flags.Changed("name") {
		cfg.Server.Name, _ = flags.GetString("name")
	}
	if flags.Changed("source") {
		cfg.Server.Source, _ = flags.GetString("source")
	}
	if flags.Changed("tone-hz") {
		cfg.Server.ToneHz, _ = flags.GetFloat64("tone-hz")
	}
	if flags.Changed("duration-ms") {
		cfg.Server.DurationMs, _ = flags.GetInt64("duration-ms")
	}
	if noMDNS, _ := flags.GetBool("no-mdns"); noMDNS {
		cfg.Server.Advertise = false
	}
	if flags.Changed("metrics-addr") {
		cfg.Metrics.Address, _ = flags.GetString("metrics-addr")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())

	log.Printf("Serving metrics on %s/metrics", addr)
	if err := http.ListenAndServe(addr, mux); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Printf("Metrics server error: %v", err)
	}
}
