// ABOUTME: Prometheus metrics for the relay client and reference server
// ABOUTME: Registered once per process and shared by every session
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics contains all Prometheus metrics for relay sessions
type Metrics struct {
	// Session metrics
	SessionsStarted *prometheus.CounterVec
	SessionsEnded   *prometheus.CounterVec
	SessionErrors   *prometheus.CounterVec
	ActiveSessions  *prometheus.GaugeVec

	// Best-effort receive path
	PacketsReceived  prometheus.Counter
	PacketsPlayed    prometheus.Counter
	MalformedPackets prometheus.Counter
	StalePackets     prometheus.Counter
	SilenceBlocks    prometheus.Counter
	JitterDepth      prometheus.Gauge

	// Reliable receive path
	BytesReceived prometheus.Counter

	// Playback
	FramesWritten *prometheus.CounterVec
	PositionMs    *prometheus.GaugeVec

	// Command channel
	CommandsSent    *prometheus.CounterVec
	CommandsDropped *prometheus.CounterVec

	// Reference server
	ServerSessions    *prometheus.CounterVec
	ServerPacketsSent prometheus.Counter
	ServerBytesSent   prometheus.Counter
	ServerDirectives  *prometheus.CounterVec
}

var (
	once     sync.Once
	instance *Metrics
)

// Get returns the process-wide metrics, registering them on first use
func Get() *Metrics {
	once.Do(func() {
		instance = newMetrics()
	})
	return instance
}

// Handler serves the registered metrics
func Handler() http.Handler {
	Get()
	return promhttp.Handler()
}

func newMetrics() *Metrics {
	return &Metrics{
		SessionsStarted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_sessions_started_total",
			Help: "Total number of client sessions started",
		}, []string{"mode"}),
		SessionsEnded: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_sessions_ended_total",
			Help: "Total number of client sessions that reached end of stream",
		}, []string{"mode"}),
		SessionErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_session_errors_total",
			Help: "Total number of client sessions ended by an error",
		}, []string{"mode", "kind"}),
		ActiveSessions: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "relay_active_sessions",
			Help: "Current number of running client sessions",
		}, []string{"mode"}),

		PacketsReceived: promauto.NewCounter(prometheus.CounterOpts{
			Name: "relay_packets_received_total",
			Help: "Total number of audio datagrams received",
		}),
		PacketsPlayed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "relay_packets_played_total",
			Help: "Total number of audio datagrams written to the sink",
		}),
		MalformedPackets: promauto.NewCounter(prometheus.CounterOpts{
			Name: "relay_packets_malformed_total",
			Help: "Total number of datagrams too short to carry audio",
		}),
		StalePackets: promauto.NewCounter(prometheus.CounterOpts{
			Name: "relay_packets_stale_total",
			Help: "Total number of packets discarded behind the playback cursor",
		}),
		SilenceBlocks: promauto.NewCounter(prometheus.CounterOpts{
			Name: "relay_silence_blocks_total",
			Help: "Total number of silence blocks substituted for missing packets",
		}),
		JitterDepth: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "relay_jitter_buffer_packets",
			Help: "Current number of packets held in the jitter buffer",
		}),

		BytesReceived: promauto.NewCounter(prometheus.CounterOpts{
			Name: "relay_stream_bytes_received_total",
			Help: "Total number of PCM bytes received in reliable mode",
		}),

		FramesWritten: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_frames_written_total",
			Help: "Total number of PCM frames written to the audio sink",
		}, []string{"mode"}),
		PositionMs: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "relay_position_milliseconds",
			Help: "Last reported playback position",
		}, []string{"mode"}),

		CommandsSent: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_commands_sent_total",
			Help: "Total number of transport directives sent to the server",
		}, []string{"command"}),
		CommandsDropped: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_commands_dropped_total",
			Help: "Total number of transport directives that could not be sent",
		}, []string{"command"}),

		ServerSessions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_server_sessions_total",
			Help: "Total number of sessions served by the reference server",
		}, []string{"mode"}),
		ServerPacketsSent: promauto.NewCounter(prometheus.CounterOpts{
			Name: "relay_server_packets_sent_total",
			Help: "Total number of audio datagrams sent by the reference server",
		}),
		ServerBytesSent: promauto.NewCounter(prometheus.CounterOpts{
			Name: "relay_server_stream_bytes_sent_total",
			Help: "Total number of PCM bytes sent over reliable sessions",
		}),
		ServerDirectives: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_server_directives_total",
			Help: "Total number of client directives handled by the reference server",
		}, []string{"command"}),
	}
}
