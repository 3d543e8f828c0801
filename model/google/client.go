package google

import (
	"github.com/hupe1980/agentloop/logging"
	"github.com/hupe1980/agentloop/model"
	"github.com/hupe1980/agentloop/transport"
)

// Options configures NewClient.
type Options struct {
	APIKey    string
	BaseURL   string
	ChunkSize int
	Logger    logging.Logger
}

// NewClient creates a Gemini model.Client for modelID over the HTTP transport.
func NewClient(modelID string, optFns ...func(o *Options)) *model.Client {
	opts := Options{
		ChunkSize: model.DefaultChunkSize,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	t := transport.NewGoogle(opts.BaseURL, opts.APIKey, modelID, func(o *transport.Options) {
		if opts.Logger != nil {
			o.Logger = opts.Logger
		}
	})

	return model.NewClient(NewAdapter(), t, func(o *model.ClientOptions) {
		o.ChunkSize = opts.ChunkSize
		if opts.Logger != nil {
			o.Logger = opts.Logger
		}
	})
}
