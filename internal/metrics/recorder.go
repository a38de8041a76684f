// Package metrics records deck pipeline observability signals.
//
// Components receive a Recorder through dependency injection and default to
// NoopRecorder, so metrics cost nothing unless a real implementation is
// wired in (the serve command registers the Prometheus recorder).
package metrics

import "time"

// RunOutcomeLabel is the final status of a generation or revision run.
type RunOutcomeLabel string

const (
	OutcomeSuccess   RunOutcomeLabel = "success"
	OutcomeExhausted RunOutcomeLabel = "exhausted"
	OutcomeFatal     RunOutcomeLabel = "fatal"
)

// Recorder receives pipeline metrics. Implementations must be safe for
// concurrent use.
type Recorder interface {
	// ObserveCompileDuration records one compile attempt's wall time.
	ObserveCompileDuration(engine string, d time.Duration, success bool)
	// IncCompileError counts a classified compile failure.
	IncCompileError(kind string)
	// IncRepair counts one repair round-trip.
	IncRepair()
	// ObserveRunDuration records total run wall time.
	ObserveRunDuration(d time.Duration)
	// IncRunOutcome counts a finished run by final status.
	IncRunOutcome(outcome RunOutcomeLabel)
	// SetActiveRuns reports how many runs are currently executing.
	SetActiveRuns(n int)
}

// NoopRecorder discards all metrics.
type NoopRecorder struct{}

func (NoopRecorder) ObserveCompileDuration(string, time.Duration, bool) {}
func (NoopRecorder) IncCompileError(string)                             {}
func (NoopRecorder) IncRepair()                                         {}
func (NoopRecorder) ObserveRunDuration(time.Duration)                   {}
func (NoopRecorder) IncRunOutcome(RunOutcomeLabel)                      {}
func (NoopRecorder) SetActiveRuns(int)                                  {}

var _ Recorder = NoopRecorder{}
