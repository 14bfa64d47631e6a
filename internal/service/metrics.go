package service

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("genesis.service")

const metricsNamespace = "genesis"

// Metrics holds the refinement engine's prometheus collectors. A nil *Metrics records nothing.
type Metrics struct {
	declarations        prometheus.Counter
	hypothesesCreated   prometheus.Counter
	probesGenerated     *prometheus.CounterVec
	responsesProcessed  *prometheus.CounterVec
	fieldsConfirmed     *prometheus.CounterVec
	hypothesesResolved  *prometheus.CounterVec
	sessionsCompleted   *prometheus.CounterVec
	generationDuration  *prometheus.HistogramVec
	collaboratorFailure *prometheus.CounterVec
}

// NewMetrics registers the collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		declarations: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "declarations_total",
			Help:      "Uncertainty declarations processed.",
		}),
		hypothesesCreated: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "hypotheses_created_total",
			Help:      "Hypotheses created from declarations.",
		}),
		probesGenerated: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "probes_generated_total",
			Help:      "Probes generated, by strategy and content source.",
		}, []string{"strategy", "source"}),
		responsesProcessed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "responses_processed_total",
			Help:      "Probe responses applied, by probe type.",
		}, []string{"probe_type"}),
		fieldsConfirmed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "fields_confirmed_total",
			Help:      "Fields resolved to a confirmed value, by module.",
		}, []string{"module"}),
		hypothesesResolved: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "hypotheses_resolved_total",
			Help:      "Hypotheses resolved, by resolution method.",
		}, []string{"method"}),
		sessionsCompleted: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "sessions_completed_total",
			Help:      "Sessions completed, by reason.",
		}, []string{"reason"}),
		generationDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "probe_generation_duration_seconds",
			Help:      "Time spent generating probe content.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"provider", "source"}),
		collaboratorFailure: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "collaborator_failures_total",
			Help:      "Swallowed failures of best-effort collaborators.",
		}, []string{"collaborator"}),
	}
}

func (m *Metrics) declarationProcessed(hypotheses int) {
	if m == nil {
		return
	}
	m.declarations.Inc()
	m.hypothesesCreated.Add(float64(hypotheses))
}

func (m *Metrics) probeGenerated(strategy, source string) {
	if m == nil {
		return
	}
	m.probesGenerated.WithLabelValues(strategy, source).Inc()
}

func (m *Metrics) responseProcessed(probeType string) {
	if m == nil {
		return
	}
	m.responsesProcessed.WithLabelValues(probeType).Inc()
}

func (m *Metrics) fieldConfirmed(module string) {
	if m == nil {
		return
	}
	m.fieldsConfirmed.WithLabelValues(module).Inc()
}

func (m *Metrics) hypothesisResolved(method string) {
	if m == nil {
		return
	}
	m.hypothesesResolved.WithLabelValues(method).Inc()
}

func (m *Metrics) sessionCompleted(reason string) {
	if m == nil {
		return
	}
	m.sessionsCompleted.WithLabelValues(reason).Inc()
}

func (m *Metrics) observeGeneration(provider, source string, d time.Duration) {
	if m == nil {
		return
	}
	m.generationDuration.WithLabelValues(provider, source).Observe(d.Seconds())
}

func (m *Metrics) collaboratorFailed(name string) {
	if m == nil {
		return
	}
	m.collaboratorFailure.WithLabelValues(name).Inc()
}

func startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
