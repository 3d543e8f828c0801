package model

import (
	"github.com/hupe1980/agentloop/core"
	"github.com/hupe1980/agentloop/internal/util"
)

// StreamState is the lifecycle of a normalizer.
type StreamState int

const (
	StateIdle StreamState = iota
	StateInMessage
	StateTerminal
)

func (s StreamState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateInMessage:
		return "in_message"
	case StateTerminal:
		return "terminal"
	default:
		return "unknown"
	}
}

// Normalizer consumes provider events for exactly one model call and keeps an
// always-current snapshot. Handle returns the text delta produced by the event
// (empty for non-text events). An explicit provider error event yields a
// *core.StreamingError and moves the normalizer to StateTerminal. Events
// arriving after StateTerminal are ignored.
type Normalizer interface {
	Handle(ev RawEvent) (string, error)
	Snapshot() *Snapshot
	State() StreamState
	FinishReason() string
}

// Accumulator implements the canonical transition table shared by all
// provider normalizers. Provider normalizers decode their events and call
// the matching method.
type Accumulator struct {
	snap   *Snapshot
	state  StreamState
	finish string
}

// NewAccumulator returns an idle accumulator for provider p.
func NewAccumulator(p Provider) *Accumulator {
	return &Accumulator{snap: NewSnapshot(p)}
}

// Snapshot returns the live snapshot. Callers that retain it across events must Clone it.
func (a *Accumulator) Snapshot() *Snapshot { return a.snap }

// State returns the current lifecycle state.
func (a *Accumulator) State() StreamState { return a.state }

// FinishReason returns the canonical finish reason once terminal.
func (a *Accumulator) FinishReason() string { return a.finish }

// Terminal reports whether no further events are applied.
func (a *Accumulator) Terminal() bool { return a.state == StateTerminal }

// Start handles message-start: the snapshot is reset to an empty shell.
func (a *Accumulator) Start(id, model string) {
	a.snap.Reset()
	a.snap.ID = id
	a.snap.Model = model
	a.state = StateInMessage
}

// ensureStarted covers providers without an explicit message-start event.
func (a *Accumulator) ensureStarted() {
	if a.state == StateIdle {
		a.state = StateInMessage
	}
}

// StartBlock registers a block at index. Tool-use blocks start with an empty JSON buffer.
func (a *Accumulator) StartBlock(index int, kind BlockKind, id, name string) *Block {
	a.ensureStarted()
	b := a.snap.EnsureBlock(index)
	b.Kind = kind
	if kind == BlockToolUse || kind == BlockProviderTool {
		b.ToolCallID = id
		b.Name = name
		b.PartialJSON = ""
		b.Input = nil
		b.Complete = false
	}
	return b
}

// AppendText appends to a text block and returns the text as the delta.
func (a *Accumulator) AppendText(index int, text string) string {
	a.ensureStarted()
	b := a.snap.EnsureBlock(index)
	b.Text += text
	return text
}

// AppendToolInput appends a partial JSON fragment. No delta is surfaced.
func (a *Accumulator) AppendToolInput(index int, partial string) {
	a.ensureStarted()
	b := a.snap.EnsureBlock(index)
	if b.Kind == BlockText && b.Text == "" {
		b.Kind = BlockToolUse
	}
	b.PartialJSON += partial
}

// SetToolInput stores a complete tool input value, for providers that send
// calls wholesale.
func (a *Accumulator) SetToolInput(index int, id, name string, input any) {
	b := a.StartBlock(index, BlockToolUse, id, name)
	b.Input = input
	b.Complete = true
}

// StopBlock parses a tool-use block's buffer. On parse failure the raw string
// is kept as the input; this never fails.
func (a *Accumulator) StopBlock(index int) {
	b, ok := a.snap.Block(index)
	if !ok || (b.Kind != BlockToolUse && b.Kind != BlockProviderTool) || b.Complete {
		return
	}
	b.Input = util.ParseArguments(b.PartialJSON)
	b.Complete = true
}

// StopAll stops every open tool-use block.
func (a *Accumulator) StopAll() {
	for i := range a.snap.Blocks {
		a.StopBlock(i)
	}
}

// MergeUsage handles usage-update.
func (a *Accumulator) MergeUsage(u map[string]int64) {
	a.snap.MergeUsage(u)
}

// Finish handles message-stop: it records the native and canonical reasons
// and enters StateTerminal.
func (a *Accumulator) Finish(stopReason, finishReason string) {
	a.StopAll()
	a.snap.StopReason = stopReason
	if finishReason == "" {
		finishReason = stopReason
	}
	a.snap.FinishReason = finishReason
	a.finish = finishReason
	a.state = StateTerminal
}

// Fail handles an error event and returns the StreamingError to surface.
func (a *Accumulator) Fail(provider Provider, typ, message string, raw []byte) error {
	a.snap.FinishReason = FinishError
	a.finish = FinishError
	a.state = StateTerminal
	return &core.StreamingError{Provider: string(provider), Type: typ, Message: message, Raw: raw}
}
