package worker

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Usage mirrors the OpenAI usage block. PromptTokensDetails is only
// populated on the structured endpoint.
type Usage struct {
	PromptTokens        int                  `json:"prompt_tokens"`
	CompletionTokens     int                 `json:"completion_tokens"`
	TotalTokens          int                 `json:"total_tokens"`
	PromptTokensDetails *PromptTokensDetails `json:"prompt_tokens_details,omitempty"`
}

// PromptTokensDetails is always {cached_tokens: 0} here — this worker
// never caches prompts across requests.
type PromptTokensDetails struct {
	CachedTokens int `json:"cached_tokens"`
}

// Choice is the single completion choice this worker ever returns —
// no multi-choice sampling, no streaming deltas.
type Choice struct {
	Index        int             `json:"index"`
	Message      CompletionMsg   `json:"message"`
	FinishReason string          `json:"finish_reason"`
}

// CompletionMsg is the assistant message returned in choices[0];
// Parsed/Refusal are only set on the structured endpoint's schema
// path. Refusal is json.RawMessage rather than interface{} so it can
// carry a literal JSON "null" — an explicit refusal=null, distinct
// from the field being absent entirely on the free-form endpoint.
type CompletionMsg struct {
	Role    string          `json:"role"`
	Content string          `json:"content"`
	Parsed  interface{}     `json:"parsed,omitempty"`
	Refusal json.RawMessage `json:"refusal,omitempty"`
}

// Envelope is the outer response object shared by both completion
// endpoints; SystemFingerprint is only present on the structured one.
type Envelope struct {
	ID                string   `json:"id"`
	Object            string   `json:"object"`
	Created           int64    `json:"created"`
	Model             string   `json:"model"`
	Choices           []Choice `json:"choices"`
	Usage             Usage    `json:"usage"`
	SystemFingerprint string   `json:"system_fingerprint,omitempty"`
}

// plainCompletionID implements /v1/chat/completions's ID scheme.
func plainCompletionID(now time.Time) string {
	return fmt.Sprintf("chatcmpl-%d", now.Unix())
}

// structuredCompletionID implements /v1/beta/chat/completions/parse's
// ID scheme: chatcmpl- followed by 24 hex characters drawn from a
// fresh random UUIDv4, per spec.md §4.C4.
func structuredCompletionID() string {
	id := uuid.New()
	hexDigits := strings.ReplaceAll(id.String(), "-", "")
	return "chatcmpl-" + hexDigits[:24]
}

// wordCount splits on ASCII whitespace, matching the original's
// naive word-count tokenizer.
func wordCount(text string) int {
	return len(strings.Fields(text))
}

// plainTokenCount is the token estimate used by /v1/chat/completions:
// word count alone, with no len/4 term. This asymmetry against
// structuredTokenCount is intentional — preserved for wire
// compatibility with existing clients (spec.md §4.C4, §9).
func plainTokenCount(text string) int {
	return wordCount(text)
}

// structuredTokenCount is the token estimate used by the structured
// endpoint: word count plus a quarter of the character length.
func structuredTokenCount(text string) int {
	n := wordCount(text) + len(text)/4
	if n < 1 {
		n = 1
	}
	return n
}

// systemFingerprint builds the structured endpoint's fingerprint:
// "fp_" + first 12 hex chars of md5("<model>_<seed>_<epoch_hours>").
func systemFingerprint(model string, seed int, now time.Time) string {
	epochHours := now.Unix() / 3600
	sum := md5.Sum([]byte(fmt.Sprintf("%s_%d_%d", model, seed, epochHours)))
	return "fp_" + hex.EncodeToString(sum[:])[:12]
}
