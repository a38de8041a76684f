package metrics

import (
	"sync"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	once            sync.Once
	compileDuration *prom.HistogramVec
	compileErrors   *prom.CounterVec
	repairs         prom.Counter
	runDuration     prom.Histogram
	runOutcomes     *prom.CounterVec
	activeRuns      prom.Gauge
}

// NewPrometheusRecorder constructs and registers Prometheus metrics (idempotent).
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{}
	pr.once.Do(func() {
		pr.compileDuration = prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "deckforge",
			Name:      "compile_duration_seconds",
			Help:      "Duration of individual compile attempts",
			Buckets:   prom.DefBuckets,
		}, []string{"engine", "result"})
		pr.compileErrors = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "deckforge",
			Name:      "compile_errors_total",
			Help:      "Classified compile failures by kind",
		}, []string{"kind"})
		pr.repairs = prom.NewCounter(prom.CounterOpts{
			Namespace: "deckforge",
			Name:      "repairs_total",
			Help:      "Total model repair round-trips",
		})
		pr.runDuration = prom.NewHistogram(prom.HistogramOpts{
			Namespace: "deckforge",
			Name:      "run_duration_seconds",
			Help:      "Total run duration",
			Buckets:   prom.DefBuckets,
		})
		pr.runOutcomes = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "deckforge",
			Name:      "run_outcomes_total",
			Help:      "Run outcomes by final status",
		}, []string{"outcome"})
		pr.activeRuns = prom.NewGauge(prom.GaugeOpts{
			Namespace: "deckforge",
			Name:      "active_runs",
			Help:      "Runs currently executing",
		})
		reg.MustRegister(pr.compileDuration, pr.compileErrors, pr.repairs, pr.runDuration, pr.runOutcomes, pr.activeRuns)
	})
	return pr
}

func (p *PrometheusRecorder) ObserveCompileDuration(engine string, d time.Duration, success bool) {
	if p == nil || p.compileDuration == nil {
		return
	}
	res := "failed"
	if success {
		res = "success"
	}
	p.compileDuration.WithLabelValues(engine, res).Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncCompileError(kind string) {
	if p == nil || p.compileErrors == nil {
		return
	}
	p.compileErrors.WithLabelValues(kind).Inc()
}

func (p *PrometheusRecorder) IncRepair() {
	if p == nil || p.repairs == nil {
		return
	}
	p.repairs.Inc()
}

func (p *PrometheusRecorder) ObserveRunDuration(d time.Duration) {
	if p == nil || p.runDuration == nil {
		return
	}
	p.runDuration.Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncRunOutcome(outcome RunOutcomeLabel) {
	if p == nil || p.runOutcomes == nil {
		return
	}
	p.runOutcomes.WithLabelValues(string(outcome)).Inc()
}

func (p *PrometheusRecorder) SetActiveRuns(n int) {
	if p == nil || p.activeRuns == nil {
		return
	}
	p.activeRuns.Set(float64(n))
}

var _ Recorder = (*PrometheusRecorder)(nil)
