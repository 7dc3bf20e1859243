// Package metrics holds the Prometheus instruments for the voice pipeline.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	FramesCaptured prometheus.Counter
	FramesSent     prometheus.Counter
	FramesDropped  prometheus.Counter
	SendErrors     prometheus.Counter

	ChunksScheduled prometheus.Counter
	ChunksMalformed prometheus.Counter
	ChunkDuration   prometheus.Histogram
	ActivePlayback  prometheus.Gauge
	Interruptions   prometheus.Counter

	ServerEvents    *prometheus.CounterVec
	ConnectionState *prometheus.GaugeVec
	Connects        *prometheus.CounterVec
}

var connectionStates = []string{"disconnected", "connecting", "connected", "error"}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		FramesCaptured: factory.NewCounter(prometheus.CounterOpts{
			Name: "voice_capture_frames_total",
			Help: "Microphone frames delivered by the input device",
		}),
		FramesSent: factory.NewCounter(prometheus.CounterOpts{
			Name: "voice_capture_frames_sent_total",
			Help: "Encoded frames handed to the session channel",
		}),
		FramesDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "voice_capture_frames_dropped_total",
			Help: "Frames dropped because the send queue was full",
		}),
		SendErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "voice_capture_send_errors_total",
			Help: "Frames the session channel refused",
		}),
		ChunksScheduled: factory.NewCounter(prometheus.CounterOpts{
			Name: "voice_playback_chunks_scheduled_total",
			Help: "Audio chunks scheduled for playback",
		}),
		ChunksMalformed: factory.NewCounter(prometheus.CounterOpts{
			Name: "voice_playback_chunks_malformed_total",
			Help: "Inbound audio chunks dropped as malformed",
		}),
		ChunkDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "voice_playback_chunk_duration_seconds",
			Help:    "Duration of scheduled audio chunks",
			Buckets: []float64{0.02, 0.04, 0.08, 0.16, 0.32, 0.64, 1.28},
		}),
		ActivePlayback: factory.NewGauge(prometheus.GaugeOpts{
			Name: "voice_playback_active_items",
			Help: "Buffers currently queued or playing",
		}),
		Interruptions: factory.NewCounter(prometheus.CounterOpts{
			Name: "voice_interruptions_total",
			Help: "Server interruptions that flushed playback",
		}),
		ServerEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "voice_server_events_total",
			Help: "Inbound server events by type",
		}, []string{"type"}),
		ConnectionState: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "voice_connection_state",
			Help: "1 for the current connection state, 0 otherwise",
		}, []string{"state"}),
		Connects: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "voice_connect_attempts_total",
			Help: "Connect attempts by outcome",
		}, []string{"outcome"}),
	}
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) FrameCaptured() {
	if m != nil {
		m.FramesCaptured.Inc()
	}
}

func (m *Metrics) FrameSent() {
	if m != nil {
		m.FramesSent.Inc()
	}
}

func (m *Metrics) FrameDropped() {
	if m != nil {
		m.FramesDropped.Inc()
	}
}

func (m *Metrics) SendFailed() {
	if m != nil {
		m.SendErrors.Inc()
	}
}

func (m *Metrics) ChunkScheduled(seconds float64, active int) {
	if m != nil {
		m.ChunksScheduled.Inc()
		m.ChunkDuration.Observe(seconds)
		m.ActivePlayback.Set(float64(active))
	}
}

func (m *Metrics) ChunkMalformed() {
	if m != nil {
		m.ChunksMalformed.Inc()
	}
}

func (m *Metrics) Interrupted() {
	if m != nil {
		m.Interruptions.Inc()
		m.ActivePlayback.Set(0)
	}
}

func (m *Metrics) PlaybackFlushed() {
	if m != nil {
		m.ActivePlayback.Set(0)
	}
}

func (m *Metrics) ServerEvent(name string) {
	if m != nil {
		m.ServerEvents.WithLabelValues(name).Inc()
	}
}

func (m *Metrics) ConnectAttempt(outcome string) {
	if m != nil {
		m.Connects.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) SetConnectionState(state string) {
	if m == nil {
		return
	}
	for _, s := range connectionStates {
		v := 0.0
		if s == state {
			v = 1
		}
		m.ConnectionState.WithLabelValues(s).Set(v)
	}
}
