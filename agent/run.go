package agent

import (
	"time"

	"github.com/hupe1980/agentloop/core"
	"github.com/hupe1980/agentloop/persist"
)

// Status is the lifecycle state of a Run.
type Status string

const (
	StatusPending   Status = "pending"
	StatusIterating Status = "iterating"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// IsTerminal reports whether no further iterations will happen.
func (s Status) IsTerminal() bool { return s == StatusCompleted || s == StatusFailed }

// Run is the record of one agent execution. The loop is its only writer
// while the run is iterating.
type Run struct {
	ID             string
	Task           string
	History        []core.Message
	IterationCount int
	MaxIterations  int
	// FinalAnswer is the argument the model passed to agent_final_answer.
	FinalAnswer   any
	FailureReason string
	Status        Status
	StartedAt     time.Time
	CompletedAt   time.Time
}

// NewRun creates a pending run whose history starts with the task.
func NewRun(task string, maxIterations int) *Run {
	return &Run{
		ID:            core.NewID(),
		Task:          task,
		History:       []core.Message{core.UserText{Content: task}},
		MaxIterations: maxIterations,
		Status:        StatusPending,
	}
}

// Result converts the run into its persisted form.
func (r *Run) Result() persist.Result {
	return persist.Result{
		RunID:          r.ID,
		Task:           r.Task,
		Status:         string(r.Status),
		FinalAnswer:    r.FinalAnswer,
		FailureReason:  r.FailureReason,
		IterationCount: r.IterationCount,
		MaxIterations:  r.MaxIterations,
		History:        core.EncodeHistory(r.History),
		StartedAt:      r.StartedAt,
		CompletedAt:    r.CompletedAt,
	}
}

// Duration returns how long the run took, or has taken so far.
func (r *Run) Duration() time.Duration {
	if r.StartedAt.IsZero() {
		return 0
	}
	if r.CompletedAt.IsZero() {
		return time.Since(r.StartedAt)
	}
	return r.CompletedAt.Sub(r.StartedAt)
}
