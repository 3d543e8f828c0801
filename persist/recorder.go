package persist

import (
	"context"
	"time"

	"github.com/hupe1980/agentloop/model"
)

// Result is the persisted outcome of an agent run.
type Result struct {
	RunID          string           `json:"run_id" cbor:"run_id"`
	Task           string           `json:"task" cbor:"task"`
	Status         string           `json:"status" cbor:"status"`
	FinalAnswer    any              `json:"final_answer,omitempty" cbor:"final_answer,omitempty"`
	FailureReason  string           `json:"failure_reason,omitempty" cbor:"failure_reason,omitempty"`
	IterationCount int              `json:"iteration_count" cbor:"iteration_count"`
	MaxIterations  int              `json:"max_iterations" cbor:"max_iterations"`
	History        []map[string]any `json:"history" cbor:"history"`
	StartedAt      time.Time        `json:"started_at" cbor:"started_at"`
	CompletedAt    time.Time        `json:"completed_at" cbor:"completed_at"`
}

// Recorder is the persistence collaborator of an agent run. Implementations
// must be safe for concurrent use across runs.
type Recorder interface {
	// RecordProgress stores the latest snapshot of an in-flight model call.
	RecordProgress(ctx context.Context, runID string, snap *model.Snapshot) error
	// RecordFinal stores the outcome of a run.
	RecordFinal(ctx context.Context, runID string, res Result) error
}

// NopRecorder discards everything.
type NopRecorder struct{}

// RecordProgress implements Recorder.
func (NopRecorder) RecordProgress(context.Context, string, *model.Snapshot) error { return nil }

// RecordFinal implements Recorder.
func (NopRecorder) RecordFinal(context.Context, string, Result) error { return nil }

var _ Recorder = NopRecorder{}
