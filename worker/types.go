// Package worker implements the OpenAI-compatible single-model HTTP
// server: model resolution and hot-swap, prompt composition, response
// envelope construction, and the structured-output pipeline.
package worker

import (
	"encoding/json"

	"github.com/user0131/llamapool/grammar"
)

// ChatMessage mirrors the OpenAI chat message shape. Role is one of
// "system", "user", or "assistant"; ordering is preserved end to end.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// responseFormatKind tags which of the three response_format shapes a
// request carried, per spec.md §9's "dynamic request shapes → tagged
// variants" design note.
type responseFormatKind int

const (
	responseFormatNone responseFormatKind = iota
	responseFormatSchema
	responseFormatOpaque
)

// ResponseFormat is the sum type modelling response_format: absent,
// an object carrying `{"json_schema":{"schema":...}}` (its "type"
// field is not checked), or anything else (opaque — passed through
// unconstrained).
type ResponseFormat struct {
	kind   responseFormatKind
	schema grammar.Schema
	raw    json.RawMessage
}

// UnmarshalJSON detects the json_schema.schema shape without losing
// property order, by round-tripping through grammar.ParseSchemaJSON
// rather than an ordinary map decode.
func (rf *ResponseFormat) UnmarshalJSON(data []byte) error {
	var probe struct {
		Type       string `json:"type"`
		JSONSchema *struct {
			Schema json.RawMessage `json:"schema"`
		} `json:"json_schema"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		rf.kind = responseFormatOpaque
		rf.raw = append(json.RawMessage(nil), data...)
		return nil
	}
	if probe.JSONSchema != nil && len(probe.JSONSchema.Schema) > 0 {
		schema, err := grammar.ParseSchemaJSON(probe.JSONSchema.Schema)
		if err != nil {
			// Malformed schema bodies still reach the worker as a schema
			// request: the zero Schema kept here fails Compile with a
			// SchemaError, so the structured pipeline's own fallback
			// (not a JSON decode error) is what the client sees.
			rf.kind = responseFormatSchema
			rf.schema = grammar.Schema{}
			rf.raw = append(json.RawMessage(nil), data...)
			return nil
		}
		rf.kind = responseFormatSchema
		rf.schema = schema
		return nil
	}
	rf.kind = responseFormatOpaque
	rf.raw = append(json.RawMessage(nil), data...)
	return nil
}

// ChatCompletionRequest is the body of both POST endpoints; Seed and
// ResponseFormat are only meaningful on the structured endpoint.
type ChatCompletionRequest struct {
	Model          string          `json:"model"`
	Messages       []ChatMessage   `json:"messages"`
	MaxTokens      *int            `json:"max_tokens,omitempty"`
	Temperature    *float64        `json:"temperature,omitempty"`
	TopP           *float64        `json:"top_p,omitempty"`
	ResponseFormat *ResponseFormat `json:"response_format,omitempty"`
	Seed           *int            `json:"seed,omitempty"`
}

const (
	minMaxTokens     = 1
	maxMaxTokens     = 32768
	defaultMaxTokens = 10000

	minTemperature     = 0.0
	maxTemperature     = 2.0
	defaultTemperature = 0.0

	minTopP     = 0.0
	maxTopP     = 1.0
	defaultTopP = 0.9
)

// resolved holds the request's sampling parameters after defaulting,
// prior to bounds validation.
type resolved struct {
	maxTokens   int
	temperature float64
	topP        float64
}

func (r ChatCompletionRequest) resolve() resolved {
	out := resolved{maxTokens: defaultMaxTokens, temperature: defaultTemperature, topP: defaultTopP}
	if r.MaxTokens != nil {
		out.maxTokens = *r.MaxTokens
	}
	if r.Temperature != nil {
		out.temperature = *r.Temperature
	}
	if r.TopP != nil {
		out.topP = *r.TopP
	}
	return out
}

// validate reports a ValidationError if sampling parameters fall
// outside the bounds in spec.md §6, so the request is refused before
// any engine call (testable property 8).
func (r resolved) validate() error {
	if r.maxTokens < minMaxTokens || r.maxTokens > maxMaxTokens {
		return &ValidationError{Msg: "max_tokens must be between 1 and 32768"}
	}
	if r.temperature < minTemperature || r.temperature > maxTemperature {
		return &ValidationError{Msg: "temperature must be between 0.0 and 2.0"}
	}
	if r.topP < minTopP || r.topP > maxTopP {
		return &ValidationError{Msg: "top_p must be between 0.0 and 1.0"}
	}
	return nil
}

// ValidationError reports an out-of-bounds request field, surfaced as
// HTTP 422.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

// ModelNotFoundError reports that request.model has no corresponding
// file under the models directory, surfaced as HTTP 404.
type ModelNotFoundError struct {
	Model string
}

func (e *ModelNotFoundError) Error() string { return "model not found: " + e.Model }
