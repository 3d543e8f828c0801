package model

import (
	"context"
	"fmt"
	"sync"
)

// ScriptedCompleter is a lightweight in-memory Completer useful for tests and
// examples. Each call consumes the next scripted turn; once the script is
// exhausted the last turn repeats.
type ScriptedCompleter struct {
	mu       sync.Mutex
	turns    []func(req Request) (*Snapshot, error)
	requests []Request
}

// NewScriptedCompleter constructs an empty script.
func NewScriptedCompleter() *ScriptedCompleter {
	return &ScriptedCompleter{}
}

// AddText scripts a plain text answer.
func (m *ScriptedCompleter) AddText(text string) *ScriptedCompleter {
	return m.AddFunc(func(Request) (*Snapshot, error) {
		s := NewSnapshot(ProviderMock)
		s.EnsureBlock(0).Text = text
		s.StopReason, s.FinishReason = "end_turn", FinishStop
		return s, nil
	})
}

// AddToolCall scripts a turn with optional preceding text and one tool call.
func (m *ScriptedCompleter) AddToolCall(text, id, name string, args any) *ScriptedCompleter {
	return m.AddFunc(func(Request) (*Snapshot, error) {
		s := NewSnapshot(ProviderMock)
		idx := 0
		if text != "" {
			s.EnsureBlock(0).Text = text
			idx = 1
		}
		b := s.EnsureBlock(idx)
		b.Kind, b.ToolCallID, b.Name, b.Input, b.Complete = BlockToolUse, id, name, args, true
		s.StopReason, s.FinishReason = "tool_use", FinishToolCalls
		return s, nil
	})
}

// AddError scripts a failing call.
func (m *ScriptedCompleter) AddError(err error) *ScriptedCompleter {
	return m.AddFunc(func(Request) (*Snapshot, error) { return nil, err })
}

// AddFunc scripts an arbitrary turn.
func (m *ScriptedCompleter) AddFunc(fn func(req Request) (*Snapshot, error)) *ScriptedCompleter {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.turns = append(m.turns, fn)
	return m
}

// Requests returns the requests received so far.
func (m *ScriptedCompleter) Requests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Request, len(m.requests))
	copy(out, m.requests)
	return out
}

// Provider implements Completer.
func (m *ScriptedCompleter) Provider() Provider { return ProviderMock }

// SupportsNativeToolUse implements Completer.
func (m *ScriptedCompleter) SupportsNativeToolUse() bool { return true }

// Complete implements Completer. Streaming requests flush the full text once.
func (m *ScriptedCompleter) Complete(ctx context.Context, req Request, onFlush StreamFunc) (*Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.requests = append(m.requests, req)
	n := len(m.requests)
	var turn func(Request) (*Snapshot, error)
	if len(m.turns) > 0 {
		turn = m.turns[min(n, len(m.turns))-1]
	}
	m.mu.Unlock()

	if turn == nil {
		return nil, fmt.Errorf("scripted completer: no turns configured")
	}

	snap, err := turn(req)
	if err != nil {
		return nil, err
	}

	if onFlush != nil {
		if err := onFlush(snap.Text(), snap.Clone()); err != nil {
			return snap, err
		}
	}

	return snap, nil
}

var _ Completer = (*ScriptedCompleter)(nil)
var _ Completer = (*Client)(nil)
