package core

import (
	"errors"
	"fmt"
	"sync"
)

// ErrBudgetExhausted is returned by IterationBudget.Increment once the ceiling is passed.
var ErrBudgetExhausted = errors.New("iteration budget exhausted")

// IterationBudget enforces a maximum number of agent iterations per run.
type IterationBudget struct {
	max   int
	count int
	mu    sync.Mutex
}

// NewIterationBudget creates a new budget with a max number of iterations.
// If max == 0, unlimited iterations are allowed.
func NewIterationBudget(max int) *IterationBudget {
	return &IterationBudget{max: max}
}

// Increment increases the iteration counter and returns an error if the limit is exceeded.
func (b *IterationBudget) Increment() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.count++
	if b.max > 0 && b.count > b.max {
		return fmt.Errorf("%w: max %d", ErrBudgetExhausted, b.max)
	}

	return nil
}

// Count returns the number of completed iterations.
func (b *IterationBudget) Count() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.count
}

// Max returns the configured ceiling.
func (b *IterationBudget) Max() int { return b.max }

// Remaining returns how many iterations are left before hitting the limit.
func (b *IterationBudget) Remaining() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.max == 0 {
		return -1 // unlimited
	}

	return b.max - b.count
}

// IsLast reports whether the next iteration is the final allowed one.
func (b *IterationBudget) IsLast() bool {
	return b.Remaining() == 1
}

// Exhausted reports whether no iterations remain.
func (b *IterationBudget) Exhausted() bool {
	return b.Remaining() == 0
}
