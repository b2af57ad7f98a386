// Package metrics exposes session lifecycle metrics in the Prometheus format.
package metrics

import (
	"net/http"

	"github.com/gluk-w/claworc/remote-access/internal/session"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Command results recorded by CommandResult.
const (
	ResultOK          = "ok"
	ResultDeclined    = "declined"
	ResultRateLimited = "rate_limited"
	ResultError       = "error"
)

// Recorder owns a registry and the session metrics registered in it.
type Recorder struct {
	registry    *prometheus.Registry
	open        prometheus.Gauge
	transitions *prometheus.CounterVec
	latency     prometheus.Histogram
	commands    *prometheus.CounterVec
}

// NewRecorder creates a Recorder with its own registry, including the Go
// runtime and process collectors.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		open: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "remote_access_sessions_open",
			Help: "Number of remote-access sessions currently open.",
		}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "remote_access_status_transitions_total",
			Help: "Status notifications emitted by sessions, by status and reason.",
		}, []string{"status", "reason"}),
		latency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "remote_access_sample_latency_seconds",
			Help:    "Connection latency measured by the quality sampler.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.075, 0.1, 0.12, 0.15, 0.25, 0.5, 1},
		}),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "remote_access_commands_total",
			Help: "Session commands received over the API, by command and result.",
		}, []string{"command", "result"}),
	}
	r.registry.MustRegister(
		r.open,
		r.transitions,
		r.latency,
		r.commands,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// Observe records a session update. It is safe to use as a session.Listener.
func (r *Recorder) Observe(u session.Update) {
	switch u.Type {
	case session.UpdateStatus:
		if u.Status == nil {
			return
		}
		r.transitions.WithLabelValues(string(u.Status.Status), string(u.Status.Reason)).Inc()
		switch u.Status.Reason {
		case session.ReasonOpened:
			r.open.Inc()
		case session.ReasonEnded, session.ReasonShutdown:
			r.open.Dec()
		}
	case session.UpdateQuality:
		if u.Quality != nil {
			r.latency.Observe(float64(u.Quality.LatencyMs) / 1000)
		}
	}
}

// CommandResult counts one API command and its outcome.
func (r *Recorder) CommandResult(command, result string) {
	r.commands.WithLabelValues(command, result).Inc()
}

// Registry returns the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}
