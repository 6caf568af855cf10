// Package engine defines the contract a worker uses to drive the
// underlying inference library. The real llama.cpp-style binding is
// an external collaborator (out of scope per the spec this module
// implements); this package owns only the interface plus a
// deterministic in-process stand-in used by tests and as a default
// runtime when no real binding is linked in.
package engine

import (
	"context"
	"fmt"
	"strings"
)

// EngineError wraps a load/complete/free failure so the worker can
// map it to HTTP 500 at the handler boundary without caring which
// underlying binding produced it.
type EngineError struct {
	Op  string
	Err error
}

func (e *EngineError) Error() string {
	return fmt.Sprintf("engine %s: %v", e.Op, e.Err)
}

func (e *EngineError) Unwrap() error { return e.Err }

func errf(op, format string, args ...interface{}) error {
	return &EngineError{Op: op, Err: fmt.Errorf(format, args...)}
}

// Handle is an opaque reference to a loaded model returned by Load and
// consumed by Complete/Free.
type Handle interface{}

// CompiledGrammar is the opaque marker handed back by the grammar
// package's Compile call; engines that support grammar-constrained
// decoding type-assert it to their own representation.
type CompiledGrammar interface{}

// CompletionParams carries the sampling parameters for one Complete
// call. Grammar is nil for unconstrained decoding.
type CompletionParams struct {
	Prompt      string
	MaxTokens   int
	Temperature float64
	TopP        float64
	Grammar     CompiledGrammar
}

// CompletionResult is the raw text returned by Complete, before the
// worker wraps it in an OpenAI-compatible envelope.
type CompletionResult struct {
	Text string
}

// Engine is the contract the worker depends on. Implementations need
// not be safe for concurrent use; the worker serializes access to a
// single resident Handle by construction.
type Engine interface {
	Load(ctx context.Context, path string, ctxWindow, threads int) (Handle, error)
	Complete(ctx context.Context, h Handle, req CompletionParams) (CompletionResult, error)
	Free(h Handle) error
}

// Simulated is a reference Engine that never touches a real model
// file. It deterministically echoes a templated completion derived
// from the prompt, so the full request pipeline — including
// grammar-constrained decoding — is exercisable in tests without a
// model binary on disk.
type Simulated struct{}

type simulatedHandle struct {
	path string
}

// Load "loads" path by simply remembering it; ctxWindow and threads
// are accepted for interface compatibility but otherwise unused.
func (Simulated) Load(ctx context.Context, path string, ctxWindow, threads int) (Handle, error) {
	if path == "" {
		return nil, errf("load", "empty model path")
	}
	return &simulatedHandle{path: path}, nil
}

// Complete echoes a short templated response. Simulated only checks
// whether req.Grammar is non-nil: if so it emits a fixed JSON object,
// otherwise a prose echo of the prompt. The grammar's contents are
// never inspected, so the JSON output does not follow its shape.
func (Simulated) Complete(ctx context.Context, h Handle, req CompletionParams) (CompletionResult, error) {
	sh, ok := h.(*simulatedHandle)
	if !ok || sh == nil {
		return CompletionResult{}, errf("complete", "invalid handle")
	}
	select {
	case <-ctx.Done():
		return CompletionResult{}, errf("complete", "context cancelled: %v", ctx.Err())
	default:
	}

	if req.Grammar != nil {
		return CompletionResult{Text: simulatedStructuredEcho(req.Prompt)}, nil
	}
	return CompletionResult{Text: simulatedProseEcho(req.Prompt)}, nil
}

// Free is a no-op for Simulated; real engines release native memory
// here and must tolerate being called twice.
func (Simulated) Free(h Handle) error { return nil }

func simulatedProseEcho(prompt string) string {
	trimmed := strings.TrimSpace(prompt)
	if trimmed == "" {
		return "I don't have enough context to respond."
	}
	return "Acknowledged: " + trimmed
}

func simulatedStructuredEcho(prompt string) string {
	return `{"result":"ok"}`
}
