package agent

import (
	"context"

	"github.com/hupe1980/agentloop/internal/util"
)

// InstructionProvider supplies the system prompt at runtime.
// Implementations can derive it from the run, the environment, etc.
type InstructionProvider interface {
	Instruction(ctx context.Context, run *Run) (string, error)
}

// InstructionFunc is a functional adapter to allow ordinary functions to be used as InstructionProviders.
type InstructionFunc func(ctx context.Context, run *Run) (string, error)

// Instruction implements InstructionProvider.
func (f InstructionFunc) Instruction(ctx context.Context, run *Run) (string, error) {
	return f(ctx, run)
}

// Instruction represents either a static system prompt or a dynamic provider.
type Instruction struct {
	text     string
	provider InstructionProvider
}

// NewInstructionFromText creates an Instruction from a static string. The
// text may reference run variables as {{.task}}, {{.run_id}} or any key of
// Options.Variables.
func NewInstructionFromText(text string) Instruction { return Instruction{text: text} }

// NewInstructionFromProvider creates an Instruction from a dynamic provider.
func NewInstructionFromProvider(p InstructionProvider) Instruction {
	return Instruction{provider: p}
}

// NewInstructionFromFunc creates an Instruction from a function.
func NewInstructionFromFunc(f func(ctx context.Context, run *Run) (string, error)) Instruction {
	return Instruction{provider: InstructionFunc(f)}
}

// IsStatic returns true if the instruction is backed by a static string.
func (i Instruction) IsStatic() bool { return i.provider == nil }

// Resolve returns the system prompt for run. Static text is rendered as a
// template against vars; provider output is used as is.
func (i Instruction) Resolve(ctx context.Context, run *Run, vars map[string]any) (string, error) {
	if i.provider != nil {
		return i.provider.Instruction(ctx, run)
	}

	return util.RenderTemplate(i.text, vars)
}
