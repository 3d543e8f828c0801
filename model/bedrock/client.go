package bedrock

import (
	"net/http"

	"github.com/hupe1980/agentloop/logging"
	"github.com/hupe1980/agentloop/model"
	"github.com/hupe1980/agentloop/transport"
)

// Options configures NewClient.
type Options struct {
	Region  string
	BaseURL string
	// HTTPClient must sign requests with SigV4.
	HTTPClient *http.Client
	ChunkSize  int
	Logger     logging.Logger
}

// NewClient creates a Converse model.Client for modelID.
func NewClient(modelID string, optFns ...func(o *Options)) *model.Client {
	opts := Options{
		Region:    "us-east-1",
		ChunkSize: model.DefaultChunkSize,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	t := transport.NewBedrock(opts.BaseURL, opts.Region, modelID, func(o *transport.Options) {
		if opts.HTTPClient != nil {
			o.HTTPClient = opts.HTTPClient
		}
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
