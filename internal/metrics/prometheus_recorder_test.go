package metrics

import (
	"testing"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

func TestPrometheusRecorder(t *testing.T) {
	reg := prom.NewRegistry()
	pr := NewPrometheusRecorder(reg)
	pr.ObserveCompileDuration("pdflatex", 150*time.Millisecond, true)
	pr.IncCompileError("undefined_command")
	pr.IncRepair()
	pr.ObserveRunDuration(2 * time.Second)
	pr.IncRunOutcome(OutcomeSuccess)
	pr.SetActiveRuns(1)
	// Basic scrape to ensure metrics encode without panic
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if len(mfs) == 0 {
		t.Fatalf("expected metrics, got none")
	}
}

func TestNilRecorderIsSafe(t *testing.T) {
	var pr *PrometheusRecorder
	pr.ObserveCompileDuration("pdflatex", time.Second, false)
	pr.IncCompileError("timeout")
	pr.IncRepair()
	pr.ObserveRunDuration(time.Second)
	pr.IncRunOutcome(OutcomeFatal)
	pr.SetActiveRuns(0)
}
