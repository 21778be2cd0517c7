// Package metrics exposes Prometheus instrumentation for voice calls.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const shutdownTimeout = 5 * time.Second

// CallMetrics records call lifecycle and speech pipeline outcomes.
// The zero value and a nil pointer are both safe to record into.
type CallMetrics struct {
	registry *prometheus.Registry

	callsStarted      prometheus.Counter
	callsEnded        *prometheus.CounterVec
	activeCalls       prometheus.Gauge
	turns             prometheus.Counter
	speechOutcomes    *prometheus.CounterVec
	recognitionErrors *prometheus.CounterVec
	replyFailures     prometheus.Counter
	replyLatency      prometheus.Histogram
}

func New() *CallMetrics {
	m := &CallMetrics{
		registry: prometheus.NewRegistry(),
		callsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "voicecall",
			Subsystem: "call",
			Name:      "started_total",
			Help:      "Total voice calls that reached the connecting state",
		}),
		callsEnded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "voicecall",
			Subsystem: "call",
			Name:      "ended_total",
			Help:      "Total voice calls ended, by reason",
		}, []string{"reason"}),
		activeCalls: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "voicecall",
			Subsystem: "call",
			Name:      "active",
			Help:      "Voice calls currently open",
		}),
		turns: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "voicecall",
			Subsystem: "call",
			Name:      "turns_total",
			Help:      "Completed listen, reply and speak cycles",
		}),
		speechOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "voicecall",
			Subsystem: "speech",
			Name:      "output_total",
			Help:      "Speech output attempts by strategy and outcome",
		}, []string{"path", "outcome"}),
		recognitionErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "voicecall",
			Subsystem: "speech",
			Name:      "recognition_errors_total",
			Help:      "Recognition failures by kind",
		}, []string{"kind"}),
		replyFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "voicecall",
			Subsystem: "backend",
			Name:      "reply_failures_total",
			Help:      "Chat replies that could not be fetched",
		}),
		replyLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "voicecall",
			Subsystem: "backend",
			Name:      "reply_seconds",
			Help:      "Latency of chat reply requests",
			Buckets:   prometheus.ExponentialBuckets(0.25, 2, 8),
		}),
	}

	m.registry.MustRegister(
		m.callsStarted,
		m.callsEnded,
		m.activeCalls,
		m.turns,
		m.speechOutcomes,
		m.recognitionErrors,
		m.replyFailures,
		m.replyLatency,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *CallMetrics) CallStarted() {
	if m == nil || m.registry == nil {
		return
	}
	m.callsStarted.Inc()
	m.activeCalls.Inc()
}

func (m *CallMetrics) CallEnded(reason string) {
	if m == nil || m.registry == nil {
		return
	}
	m.callsEnded.WithLabelValues(label(reason)).Inc()
	m.activeCalls.Dec()
}

func (m *CallMetrics) TurnCompleted() {
	if m == nil || m.registry == nil {
		return
	}
	m.turns.Inc()
}

// SpeechAttempt records one strategy of the output chain.
func (m *CallMetrics) SpeechAttempt(path string, err error) {
	if m == nil || m.registry == nil {
		return
	}
	outcome := "ok"
	switch {
	case errors.Is(err, context.Canceled):
		outcome = "canceled"
	case err != nil:
		outcome = "failed"
	}
	m.speechOutcomes.WithLabelValues(label(path), outcome).Inc()
}

func (m *CallMetrics) RecognitionError(kind string) {
	if m == nil || m.registry == nil {
		return
	}
	m.recognitionErrors.WithLabelValues(label(kind)).Inc()
}

// ReplyObserved records latency and, on failure, the failure counter.
func (m *CallMetrics) ReplyObserved(elapsed time.Duration, err error) {
	if m == nil || m.registry == nil {
		return
	}
	m.replyLatency.Observe(elapsed.Seconds())
	if err != nil {
		m.replyFailures.Inc()
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *CallMetrics) Handler() http.Handler {
	if m == nil || m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is done.
func (m *CallMetrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())

	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  30 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Warn("Failed to shut down metrics server cleanly", "err", err)
		}
	}()

	slog.Info("Metrics endpoint listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func label(value string) string {
	if value == "" {
		return "unknown"
	}
	if len(value) > 64 {
		return value[:64]
	}
	return value
}
