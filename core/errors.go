package core

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinels for errors.Is checks. Every typed error below unwraps to one of them.
var (
	ErrUnsupportedFeature = errors.New("unsupported feature")
	ErrStreaming          = errors.New("streaming error")
	ErrValidation         = errors.New("validation error")
	ErrUnknownTool        = errors.New("unknown tool")
	ErrUnknownMessageType = errors.New("unknown message type")
)

// UnsupportedFeatureError reports a capability a provider cannot express,
// e.g. a file referenced by URL on a provider that requires inline bytes.
type UnsupportedFeatureError struct {
	Provider string
	Feature  string
}

func (e *UnsupportedFeatureError) Error() string {
	return fmt.Sprintf("%s does not support %s", e.Provider, e.Feature)
}

func (e *UnsupportedFeatureError) Unwrap() error { return ErrUnsupportedFeature }

// NewUnsupportedFeatureError creates a new UnsupportedFeatureError.
func NewUnsupportedFeatureError(provider, feature string) *UnsupportedFeatureError {
	return &UnsupportedFeatureError{Provider: provider, Feature: feature}
}

// StreamingError carries an explicit error event emitted mid-stream.
type StreamingError struct {
	Provider string
	Type     string
	Message  string
	Raw      []byte
}

func (e *StreamingError) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("%s stream error: %s: %s", e.Provider, e.Type, e.Message)
	}
	return fmt.Sprintf("%s stream error: %s", e.Provider, e.Message)
}

func (e *StreamingError) Unwrap() error { return ErrStreaming }

// ValidationError reports tool arguments that fail the declared schema.
type ValidationError struct {
	Tool   string
	Reason string
	Schema map[string]any
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid arguments for tool %s: %s", e.Tool, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// UnknownToolError reports a tool name absent from the available tools.
type UnknownToolError struct {
	Name      string
	Available []string
}

func (e *UnknownToolError) Error() string {
	return fmt.Sprintf("unknown tool %q (available: %s)", e.Name, strings.Join(e.Available, ", "))
}

func (e *UnknownToolError) Unwrap() error { return ErrUnknownTool }

// UnknownMessageTypeError reports a stored message that matches no variant.
type UnknownMessageTypeError struct {
	Keys []string
}

func (e *UnknownMessageTypeError) Error() string {
	return fmt.Sprintf("unknown message type (keys: %s)", strings.Join(e.Keys, ", "))
}

func (e *UnknownMessageTypeError) Unwrap() error { return ErrUnknownMessageType }
