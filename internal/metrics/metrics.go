// Package metrics exposes the Prometheus collectors for the tutor, the
// review sweep, lesson delivery and LLM calls.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "masterypath"

// Registry owns a private Prometheus registry. All methods are safe on a
// nil *Registry, which records nothing.
type Registry struct {
	reg *prometheus.Registry

	answers     *prometheus.CounterVec
	outcomes    *prometheus.CounterVec
	gaps        prometheus.Histogram
	reviews     *prometheus.CounterVec
	dueAtoms    prometheus.Gauge
	sweepTime   prometheus.Histogram
	lessons     *prometheus.CounterVec
	llmRequests *prometheus.CounterVec
	llmLatency  *prometheus.HistogramVec
	llmTokens   *prometheus.CounterVec
	httpReqs    *prometheus.CounterVec
	httpLatency *prometheus.HistogramVec
}

// New registers every collector plus the Go and process collectors.
func New() *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),
		answers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "answers_total",
			Help: "Answers submitted, by kind (pp100 or review) and correctness.",
		}, []string{"kind", "correct"}),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "pp100_outcomes_total",
			Help: "Terminal PP100 session outcomes.",
		}, []string{"outcome"}),
		gaps: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "diagnosis_gaps",
			Help:    "Number of prerequisite gaps found per diagnosis.",
			Buckets: []float64{0, 1, 2, 3, 5, 8, 13},
		}),
		reviews: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "review_outcomes_total",
			Help: "Per-atom review outcomes.",
		}, []string{"passed"}),
		dueAtoms: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "review_due_atoms",
			Help: "Atoms due for review across all students at the last sweep.",
		}),
		sweepTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "review_sweep_duration_seconds",
			Help:    "Wall time of the review sweep.",
			Buckets: prometheus.DefBuckets,
		}),
		lessons: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "lessons_total",
			Help: "Lesson lookups by result (hit, miss, generated, error).",
		}, []string{"result"}),
		llmRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "llm_requests_total",
			Help: "LLM requests by model, purpose and status.",
		}, []string{"model", "purpose", "status"}),
		llmLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "llm_request_duration_seconds",
			Help:    "LLM request latency.",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"model"}),
		llmTokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "llm_tokens_total",
			Help: "LLM tokens by model and direction.",
		}, []string{"model", "direction"}),
		httpReqs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "http_requests_total",
			Help: "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		httpLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		}, []string{"method", "route"}),
	}
	r.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.answers, r.outcomes, r.gaps, r.reviews, r.dueAtoms, r.sweepTime,
		r.lessons, r.llmRequests, r.llmLatency, r.llmTokens, r.httpReqs, r.httpLatency,
	)
	return r
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{Registry: r.reg})
}

func (r *Registry) Answer(kind string, correct bool) {
	if r == nil {
		return
	}
	r.answers.WithLabelValues(kind, strconv.FormatBool(correct)).Inc()
}

func (r *Registry) Outcome(outcome string) {
	if r == nil {
		return
	}
	r.outcomes.WithLabelValues(outcome).Inc()
}

func (r *Registry) Diagnosis(gaps int) {
	if r == nil {
		return
	}
	r.gaps.Observe(float64(gaps))
}

func (r *Registry) Review(passed bool) {
	if r == nil {
		return
	}
	r.reviews.WithLabelValues(strconv.FormatBool(passed)).Inc()
}

// Sweep records the result of one review sweep.
func (r *Registry) Sweep(due int, took time.Duration) {
	if r == nil {
		return
	}
	r.dueAtoms.Set(float64(due))
	r.sweepTime.Observe(took.Seconds())
}

func (r *Registry) Lesson(result string) {
	if r == nil {
		return
	}
	r.lessons.WithLabelValues(result).Inc()
}

// LLMRequest records one provider call.
func (r *Registry) LLMRequest(model, purpose string, took time.Duration, inputTokens, outputTokens int, err error) {
	if r == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	r.llmRequests.WithLabelValues(model, purpose, status).Inc()
	r.llmLatency.WithLabelValues(model).Observe(took.Seconds())
	r.llmTokens.WithLabelValues(model, "input").Add(float64(inputTokens))
	r.llmTokens.WithLabelValues(model, "output").Add(float64(outputTokens))
}

func (r *Registry) HTTPRequest(method, route string, status int, took time.Duration) {
	if r == nil {
		return
	}
	r.httpReqs.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	r.httpLatency.WithLabelValues(method, route).Observe(took.Seconds())
}
