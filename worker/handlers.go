package worker

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/user0131/llamapool/engine"
	"github.com/user0131/llamapool/modelregistry"
)

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// writeError maps a worker-domain error to its HTTP status and
// Japanese-language envelope, per spec.md §7.
func writeError(w http.ResponseWriter, err error) {
	switch e := err.(type) {
	case *ModelNotFoundError:
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "モデルが見つかりません"})
	case *ValidationError:
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"detail": e.Msg})
	case *engine.EngineError:
		writeJSON(w, http.StatusInternalServerError, map[string]string{"detail": "生成エラー: " + e.Error()})
	default:
		writeJSON(w, http.StatusInternalServerError, map[string]string{"detail": "生成エラー: " + err.Error()})
	}
}

// handleRoot serves GET / — liveness.
func (w *Worker) handleRoot(rw http.ResponseWriter, r *http.Request) {
	writeJSON(rw, http.StatusOK, map[string]string{"message": "llama-pool worker is running"})
}

// handleV1Info serves GET /v1.
func (w *Worker) handleV1Info(rw http.ResponseWriter, r *http.Request) {
	writeJSON(rw, http.StatusOK, map[string]interface{}{
		"object":  "api",
		"version": "v1",
		"message": "llama-pool worker OpenAI-compatible API",
	})
}

// handleModels serves GET /v1/models.
func (w *Worker) handleModels(rw http.ResponseWriter, r *http.Request) {
	models, err := modelregistry.ListModels(w.modelsDir, w.suffix)
	if err != nil {
		writeError(rw, err)
		return
	}

	now := time.Now().Unix()
	data := make([]map[string]interface{}, 0, len(models))
	for _, m := range models {
		data = append(data, map[string]interface{}{
			"id":         m.Name,
			"object":     "model",
			"created":    now,
			"owned_by":   "llamaapi",
			"permission": []interface{}{},
			"root":       m.Name,
			"parent":     nil,
		})
	}
	writeJSON(rw, http.StatusOK, map[string]interface{}{"object": "list", "data": data})
}

func decodeRequest(r *http.Request) (ChatCompletionRequest, error) {
	var req ChatCompletionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return ChatCompletionRequest{}, &ValidationError{Msg: "invalid request body: " + err.Error()}
	}
	return req, nil
}

// handleChatCompletions serves POST /v1/chat/completions: free-form
// completion, minimal envelope, no parsed/refusal/fingerprint fields.
func (w *Worker) handleChatCompletions(rw http.ResponseWriter, r *http.Request) {
	req, err := decodeRequest(r)
	if err != nil {
		writeError(rw, err)
		return
	}

	params := req.resolve()
	if err := params.validate(); err != nil {
		writeError(rw, err)
		return
	}

	desc, err := w.resolveModel(req.Model)
	if err != nil {
		writeError(rw, err)
		return
	}

	prompt := ComposePrompt(req.Messages)
	result, err := w.complete(r.Context(), desc.Path, engine.CompletionParams{
		Prompt:      prompt,
		MaxTokens:   params.maxTokens,
		Temperature: params.temperature,
		TopP:        params.topP,
	})
	if err != nil {
		writeError(rw, err)
		return
	}

	now := time.Now()
	promptTokens := plainTokenCount(prompt)
	completionTokens := plainTokenCount(result.Text)

	env := Envelope{
		ID:      plainCompletionID(now),
		Object:  "chat.completion",
		Created: now.Unix(),
		Model:   req.Model,
		Choices: []Choice{{
			Index:        0,
			Message:      CompletionMsg{Role: "assistant", Content: result.Text},
			FinishReason: "stop",
		}},
		Usage: Usage{
			PromptTokens:     promptTokens,
			CompletionTokens: completionTokens,
			TotalTokens:      promptTokens + completionTokens,
		},
	}
	writeJSON(rw, http.StatusOK, env)
}

// handleStructuredParse serves POST /v1/beta/chat/completions/parse:
// grammar-constrained structured output with fallback, per spec.md
// §4.C4's structured algorithm.
func (w *Worker) handleStructuredParse(rw http.ResponseWriter, r *http.Request) {
	req, err := decodeRequest(r)
	if err != nil {
		writeError(rw, err)
		return
	}

	params := req.resolve()
	if err := params.validate(); err != nil {
		writeError(rw, err)
		return
	}

	desc, err := w.resolveModel(req.Model)
	if err != nil {
		writeError(rw, err)
		return
	}

	prompt := ComposePrompt(req.Messages)
	sr, err := runStructured(r.Context(), w, prompt, req.ResponseFormat, desc.Path, params)
	if err != nil {
		writeError(rw, err)
		return
	}

	now := time.Now()
	seed := 0
	if req.Seed != nil {
		seed = *req.Seed
	}

	promptTokens := structuredTokenCount(prompt)
	completionTokens := structuredTokenCount(sr.content)

	env := Envelope{
		ID:      structuredCompletionID(),
		Object:  "chat.completion",
		Created: now.Unix(),
		Model:   req.Model,
		Choices: []Choice{{
			Index: 0,
			Message: CompletionMsg{
				Role:    "assistant",
				Content: sr.content,
				Parsed:  sr.parsed,
				Refusal: sr.refusal,
			},
			FinishReason: "stop",
		}},
		Usage: Usage{
			PromptTokens:        promptTokens,
			CompletionTokens:    completionTokens,
			TotalTokens:         promptTokens + completionTokens,
			PromptTokensDetails: &PromptTokensDetails{CachedTokens: 0},
		},
		SystemFingerprint: systemFingerprint(req.Model, seed, now),
	}
	writeJSON(rw, http.StatusOK, env)
}
