package transport

import (
	"fmt"
	"net/url"
)

// Default provider base URLs.
const (
	AnthropicBaseURL = "https://api.anthropic.com"
	OpenAIBaseURL    = "https://api.openai.com"
	GoogleBaseURL    = "https://generativelanguage.googleapis.com"
)

// NewAnthropic returns a transport for the Anthropic Messages API.
func NewAnthropic(baseURL, apiKey string, optFns ...func(o *Options)) *HTTP {
	if baseURL == "" {
		baseURL = AnthropicBaseURL
	}

	return NewHTTP(baseURL+"/v1/messages", append([]func(o *Options){func(o *Options) {
		o.StreamFlag = true
		o.Headers["x-api-key"] = apiKey
		o.Headers["anthropic-version"] = "2023-06-01"
	}}, optFns...)...)
}

// NewOpenAI returns a transport for the OpenAI Chat Completions API.
func NewOpenAI(baseURL, apiKey string, optFns ...func(o *Options)) *HTTP {
	if baseURL == "" {
		baseURL = OpenAIBaseURL
	}

	return NewHTTP(baseURL+"/v1/chat/completions", append([]func(o *Options){func(o *Options) {
		o.StreamFlag = true
		o.Headers["Authorization"] = "Bearer " + apiKey
	}}, optFns...)...)
}

// NewOpenAIResponses returns a transport for the OpenAI Responses API.
func NewOpenAIResponses(baseURL, apiKey string, optFns ...func(o *Options)) *HTTP {
	if baseURL == "" {
		baseURL = OpenAIBaseURL
	}

	return NewHTTP(baseURL+"/v1/responses", append([]func(o *Options){func(o *Options) {
		o.StreamFlag = true
		o.Headers["Authorization"] = "Bearer " + apiKey
	}}, optFns...)...)
}

// NewGoogle returns a transport for the Gemini generateContent API.
func NewGoogle(baseURL, apiKey, modelID string, optFns ...func(o *Options)) *HTTP {
	if baseURL == "" {
		baseURL = GoogleBaseURL
	}

	base := fmt.Sprintf("%s/v1beta/models/%s", baseURL, url.PathEscape(modelID))

	return NewHTTP(base+":generateContent", append([]func(o *Options){func(o *Options) {
		o.StreamEndpoint = base + ":streamGenerateContent?alt=sse"
		o.Headers["x-goog-api-key"] = apiKey
	}}, optFns...)...)
}

// NewBedrock returns a transport for the Bedrock Converse API. Requests must
// be signed by the supplied HTTPClient (SigV4); this transport does not sign.
func NewBedrock(baseURL, region, modelID string, optFns ...func(o *Options)) *HTTP {
	if baseURL == "" {
		baseURL = fmt.Sprintf("https://bedrock-runtime.%s.amazonaws.com", region)
	}

	base := fmt.Sprintf("%s/model/%s", baseURL, url.PathEscape(modelID))

	return NewHTTP(base+"/converse", append([]func(o *Options){func(o *Options) {
		o.StreamEndpoint = base + "/converse-stream"
		o.Framing = FramingEventStream
	}}, optFns...)...)
}
