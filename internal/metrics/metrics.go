// Package metrics exports Prometheus metrics for conversations, intent
// resolution and speech synthesis.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/arsaha28/ccp/internal/conversation"
	"github.com/arsaha28/ccp/internal/intent"
	"github.com/arsaha28/ccp/internal/tts"
)

const namespace = "voiceagent"

const (
	statusSuccess = "success"
	statusError   = "error"
	statusTimeout = "timeout"
)

// Metrics owns a private registry so tests and multiple servers do not
// collide on the default one.
type Metrics struct {
	registry *prometheus.Registry

	turnsTotal          *prometheus.CounterVec
	resolverRequests    *prometheus.CounterVec
	resolverDuration    *prometheus.HistogramVec
	synthesisRequests   *prometheus.CounterVec
	synthesisDuration   *prometheus.HistogramVec
	captureErrorsTotal  prometheus.Counter
	conversationsActive prometheus.Gauge
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		turnsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "turns_total",
				Help:      "Total number of completed conversation turns",
			},
			[]string{"source", "outcome"}, // outcome: answered, failed
		),
		resolverRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "resolver_requests_total",
				Help:      "Total number of intent resolution calls",
			},
			[]string{"resolver", "status"},
		),
		resolverDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "resolver_request_duration_seconds",
				Help:      "Duration of intent resolution calls in seconds",
				Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 15},
			},
			[]string{"resolver"},
		),
		synthesisRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "synthesis_requests_total",
				Help:      "Total number of speech synthesis calls",
			},
			[]string{"provider", "status"},
		),
		synthesisDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "synthesis_duration_seconds",
				Help:      "Duration of speech synthesis calls in seconds",
				Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 20},
			},
			[]string{"provider"},
		),
		captureErrorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "capture_errors_total",
			Help:      "Total number of speech capture failures",
		}),
		conversationsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "conversations_active",
			Help:      "Number of connected realtime conversations",
		}),
	}
	m.registry.MustRegister(
		m.turnsTotal,
		m.resolverRequests,
		m.resolverDuration,
		m.synthesisRequests,
		m.synthesisDuration,
		m.captureErrorsTotal,
		m.conversationsActive,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveTurn counts a completed turn. It matches conversation.Hooks.OnTurn.
func (m *Metrics) ObserveTurn(t conversation.Turn, err error) {
	outcome := "answered"
	if err != nil || t.Failed {
		outcome = "failed"
	}
	m.turnsTotal.WithLabelValues(string(t.Source), outcome).Inc()
}

// ObserveCaptureError counts a speech capture failure.
func (m *Metrics) ObserveCaptureError(error) {
	m.captureErrorsTotal.Inc()
}

// ConversationStarted tracks an open realtime connection; call the
// returned func when it closes.
func (m *Metrics) ConversationStarted() func() {
	m.conversationsActive.Inc()
	return m.conversationsActive.Dec
}

// Resolver wraps r so every call is counted and timed under name.
func (m *Metrics) Resolver(name string, r intent.Resolver) intent.Resolver {
	return intent.ResolverFunc(func(ctx context.Context, q intent.Query) (intent.Result, error) {
		start := time.Now()
		res, err := r.DetectIntent(ctx, q)
		m.resolverDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
		m.resolverRequests.WithLabelValues(name, status(err)).Inc()
		return res, err
	})
}

// Synthesizer wraps s so every call is counted and timed under provider.
func (m *Metrics) Synthesizer(provider string, s tts.Synthesizer) tts.Synthesizer {
	return &instrumentedSynthesizer{m: m, provider: provider, next: s}
}

type instrumentedSynthesizer struct {
	m        *Metrics
	provider string
	next     tts.Synthesizer
}

func (s *instrumentedSynthesizer) Synthesize(ctx context.Context, req tts.Request) (tts.Audio, error) {
	start := time.Now()
	audio, err := s.next.Synthesize(ctx, req)
	s.m.synthesisDuration.WithLabelValues(s.provider).Observe(time.Since(start).Seconds())
	s.m.synthesisRequests.WithLabelValues(s.provider, status(err)).Inc()
	return audio, err
}

func status(err error) string {
	switch {
	case err == nil:
		return statusSuccess
	case errors.Is(err, context.DeadlineExceeded):
		return statusTimeout
	default:
		return statusError
	}
}
