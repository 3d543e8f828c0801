package core

import "github.com/google/uuid"

// NewID returns a random identifier for runs and synthesized call IDs.
func NewID() string { return uuid.NewString() }
