package worker

import (
	"context"
	"encoding/json"

	"github.com/user0131/llamapool/engine"
)

// structuredResult is the outcome of runStructured: content is always
// set (either the reserialised compact JSON or the raw/wrapped text);
// parsed/refusal mirror message.parsed/message.refusal.
type structuredResult struct {
	content string
	parsed  interface{}
	refusal json.RawMessage
}

// jsonNull is the explicit refusal=null literal spec.md §4.C4's step 2
// writes into the grammar-success response.
var jsonNull = json.RawMessage("null")

// runStructured implements spec.md §4.C4's structured-output
// algorithm: compile a grammar from response_format's schema (if
// any), complete under it, and fall back to one ungrammared retry
// with an appended JSON-only instruction on any failure along that
// path.
func runStructured(ctx context.Context, w *Worker, prompt string, rf *ResponseFormat, modelPath string, params resolved) (structuredResult, error) {
	if rf == nil || rf.kind != responseFormatSchema {
		text, err := w.complete(ctx, modelPath, engine.CompletionParams{
			Prompt:      prompt,
			MaxTokens:   params.maxTokens,
			Temperature: params.temperature,
			TopP:        params.topP,
		})
		if err != nil {
			return structuredResult{}, err
		}
		return structuredResult{content: text.Text}, nil
	}

	g, compileErr := w.cache.CompileCached(ctx, rf.schema)
	if compileErr == nil {
		result, completeErr := w.complete(ctx, modelPath, engine.CompletionParams{
			Prompt:      prompt,
			MaxTokens:   params.maxTokens,
			Temperature: params.temperature,
			TopP:        params.topP,
			Grammar:     g.Compiled,
		})
		if completeErr == nil {
			var parsed interface{}
			if jsonErr := json.Unmarshal([]byte(result.Text), &parsed); jsonErr == nil {
				compact, _ := json.Marshal(parsed)
				return structuredResult{content: string(compact), parsed: parsed, refusal: jsonNull}, nil
			}
			// Falls through to the ungrammared retry below: the model
			// produced text that didn't parse even under grammar
			// constraint — treat it like a GrammarRuntimeError.
		}
		// A completeErr here (engine rejected the grammar) also falls
		// through to the retry below, same as a SchemaError from
		// CompileCached.
	}

	fallbackPrompt := prompt + jsonOnlyInstruction
	text, err := w.complete(ctx, modelPath, engine.CompletionParams{
		Prompt:      fallbackPrompt,
		MaxTokens:   params.maxTokens,
		Temperature: params.temperature,
		TopP:        params.topP,
	})
	if err != nil {
		return structuredResult{}, err
	}

	var parsed interface{}
	if jsonErr := json.Unmarshal([]byte(text.Text), &parsed); jsonErr == nil {
		compact, _ := json.Marshal(parsed)
		return structuredResult{content: string(compact), parsed: parsed, refusal: nil}, nil
	}

	wrapped := map[string]interface{}{"error": "failed to parse model output as JSON", "content": text.Text}
	compact, _ := json.Marshal(wrapped)
	return structuredResult{content: string(compact), parsed: wrapped}, nil
}
