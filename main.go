// ABOUTME: Entry point for the relay player
// ABOUTME: Cobra CLI with udp and tcp subcommands that start the player application
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

	"github.com/Resonate-Protocol/relay-go/internal/app"
	"github.com/Resonate-Protocol/relay-go/internal/config"
	"github.com/Resonate-Protocol/relay-go/internal/metrics"
	"github.com/Resonate-Protocol/relay-go/internal/version"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "relay-player",
	Short: "Real-time PCM streaming player",
	Long: `relay-player plays raw PCM streamed by a relay server, either
best-effort over UDP with loss concealment or reliably over TCP with
pause, resume and seek.`,
	SilenceUsage: true,
}

var udpCmd = &cobra.Command{
	Use:   "udp",
	Short: "Play a best-effort UDP stream",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPlayer(cmd, "udp")
	},
}

var tcpCmd = &cobra.Command{
	Use:   "tcp",
	Short: "Play a reliable TCP stream with transport controls",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPlayer(cmd, "tcp")
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(version.String())
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "YAML config file")
	flags.String("server", "", "Server address host[:port] (default: discover via mDNS)")
	flags.String("output", "oto", "Audio output: oto or null")
	flags.Int("volume", 100, "Initial volume 0-100")
	flags.String("log-file", "relay-player.log", "Log file path")
	flags.Bool("no-tui", false, "Disable TUI, stream logs to stdout")
	flags.String("metrics-addr", "", "Serve Prometheus metrics on this address")
	flags.Int("discovery-timeout", 5, "Seconds to browse for a server")

	udpCmd.Flags().Int("sample-rate", 44100, "Stream sample rate")
	udpCmd.Flags().Int("channels", 2, "Stream channel count")
	udpCmd.Flags().Int("payload-size", 1020, "Audio bytes per datagram")
	udpCmd.Flags().Int("target-fill", 100, "Packets buffered before playback")
	udpCmd.Flags().Int("idle-timeout-ms", 0, "End the stream after this much silence on the wire (0 disables)")

	tcpCmd.Flags().Int("chunk-size", 4096, "Read size for PCM data")

	rootCmd.AddCommand(udpCmd, tcpCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runPlayer(cmd *cobra.Command, mode string) error {
	cfg, err := loadConfig(cmd, mode)
	if err != nil {
		return err
	}

	noTUI, _ := cmd.Flags().GetBool("no-tui")
	useTUI := !noTUI

	f, err := os.OpenFile(cfg.Logging.File, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		return fmt.Errorf("error opening log file: %w", err)
	}
	defer func() { _ = f.Close() }()

	if useTUI {
		// TUI mode: log only to file
		log.SetOutput(f)
	} else {
		log.SetOutput(io.MultiWriter(os.Stdout, f))
		log.Printf("Starting %s (%s)", version.String(), mode)
	}

	if cfg.Metrics.Address != "" {
		go serveMetrics(cfg.Metrics.Address)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	player := app.New(app.Config{Player: cfg.Player, UseTUI: useTUI})
	if err := player.Run(ctx); err != nil {
		log.Printf("Player error: %v", err)
		return err
	}

	log.Printf("Player stopped")
	return nil
}

// loadConfig reads the config file, then applies any flags given explicitly
func loadConfig(cmd *cobra.Command, mode string) (*config.Config, error) {
	cfg := config.Default()

	if path, _ := cmd.Flags().GetString("config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	cfg.Player.Mode = mode

	flags := cmd.Flags()
	setString := func(name string, dst *string) {
		if flags.Changed(name) {
			*dst, _ = flags.GetString(name)
		}
	}
	setInt := func(name string, dst *int) {
		if flags.Lookup(name) != nil && flags.Changed(name) {
			*dst, _ = flags.GetInt(name)
		}
	}

	setString("server", &cfg.Player.Server)
	setString("output", &cfg.Player.Output)
	setString("log-file", &cfg.Logging.File)
	setString("metrics-addr", &cfg.Metrics.Address)
	setInt("volume", &cfg.Player.Volume)
	setInt("discovery-timeout", &cfg.Player.DiscoveryTimeoutSec)
	setInt("sample-rate", &cfg.Player.SampleRate)
	setInt("channels", &cfg.Player.Channels)
	setInt("payload-size", &cfg.Player.PayloadSize)
	setInt("target-fill", &cfg.Player.TargetFill)
	setInt("idle-timeout-ms", &cfg.Player.IdleTimeoutMs)
	setInt("chunk-size", &cfg.Player.ChunkSize)

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
