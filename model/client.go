package model

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/hupe1980/agentloop/logging"
)

// ErrIncompleteStream is returned when a stream ends before a terminal event.
var ErrIncompleteStream = errors.New("stream ended before completion")

// ClientOptions configures a Client.
type ClientOptions struct {
	// ChunkSize is the coalescing threshold for streamed text.
	ChunkSize int
	Logger    logging.Logger
}

// Client pairs an adapter with a transport and drives streaming and
// non-streaming calls.
type Client struct {
	adapter   Adapter
	transport Transport
	opts      ClientOptions
}

// NewClient creates a client for adapter a over transport t.
func NewClient(a Adapter, t Transport, optFns ...func(o *ClientOptions)) *Client {
	opts := ClientOptions{
		ChunkSize: DefaultChunkSize,
		Logger:    logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	return &Client{adapter: a, transport: t, opts: opts}
}

// Provider implements Completer.
func (c *Client) Provider() Provider { return c.adapter.Provider() }

// SupportsNativeToolUse implements Completer.
func (c *Client) SupportsNativeToolUse() bool { return c.adapter.SupportsNativeToolUse() }

// Adapter returns the underlying adapter.
func (c *Client) Adapter() Adapter { return c.adapter }

// Info returns metadata describing this client.
func (c *Client) Info() Info {
	return Info{Provider: c.adapter.Provider(), SupportsTools: c.adapter.SupportsNativeToolUse()}
}

// Complete performs one model call. With req.Stream set, events are fed into
// a fresh normalizer and onFlush (if non-nil) is called at every coalescing
// boundary and once at the terminal event.
func (c *Client) Complete(ctx context.Context, req Request, onFlush StreamFunc) (*Snapshot, error) {
	start := time.Now()

	payload, err := c.adapter.FormatOutbound(req)
	if err != nil {
		return nil, err
	}

	var snap *Snapshot
	if req.Stream {
		snap, err = c.stream(ctx, payload, onFlush)
	} else {
		snap, err = c.send(ctx, payload, onFlush)
	}

	var usage map[string]int64
	if snap != nil {
		usage = snap.Usage
	}

	if cl, ok := c.opts.Logger.(logging.CallLogger); ok {
		cl.LogLLMCall(req.Model, usage, time.Since(start), err == nil, err)
	} else {
		c.opts.Logger.Debug("model.call.complete", "provider", string(c.adapter.Provider()), "model", req.Model, "duration_ms", time.Since(start).Milliseconds(), "error", err != nil)
	}

	return snap, err
}

func (c *Client) send(ctx context.Context, payload any, onFlush StreamFunc) (*Snapshot, error) {
	body, err := c.transport.Send(ctx, payload)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", c.adapter.Provider(), err)
	}

	snap, err := c.adapter.ParseResponse(body)
	if err != nil {
		return nil, fmt.Errorf("%s: parse response: %w", c.adapter.Provider(), err)
	}

	if onFlush != nil {
		if err := onFlush(snap.Text(), snap.Clone()); err != nil {
			return snap, err
		}
	}

	return snap, nil
}

func (c *Client) stream(ctx context.Context, payload any, onFlush StreamFunc) (*Snapshot, error) {
	src, err := c.transport.Stream(ctx, payload)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", c.adapter.Provider(), err)
	}
	defer src.Close()

	norm := c.adapter.NewNormalizer()
	co := NewCoalescer(c.opts.ChunkSize)
	flushed := false

	emit := func(delta string) error {
		c.opts.Logger.Debug("model.stream.flush", "provider", string(c.adapter.Provider()), "bytes", len(delta))
		if onFlush == nil {
			return nil
		}
		return onFlush(delta, norm.Snapshot().Clone())
	}

	for {
		if err := ctx.Err(); err != nil {
			return norm.Snapshot(), err
		}

		ev, err := src.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return norm.Snapshot(), fmt.Errorf("%s: %w", c.adapter.Provider(), err)
		}

		delta, herr := norm.Handle(ev)
		if delta != "" {
			if out, ok := co.Add(delta); ok {
				if err := emit(out); err != nil {
					return norm.Snapshot(), err
				}
			}
		}
		if herr != nil {
			return norm.Snapshot(), herr
		}

		if norm.State() == StateTerminal && !flushed {
			flushed = true
			if err := emit(co.Flush()); err != nil {
				return norm.Snapshot(), err
			}
		}
	}

	if norm.State() != StateTerminal {
		return norm.Snapshot(), fmt.Errorf("%s: %w", c.adapter.Provider(), ErrIncompleteStream)
	}

	return norm.Snapshot(), nil
}
