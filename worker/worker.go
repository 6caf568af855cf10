package worker

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
	"github.com/user0131/llamapool/engine"
	"github.com/user0131/llamapool/grammar"
	"github.com/user0131/llamapool/modelregistry"
)

// Worker owns exactly one resident model at a time. Completions are
// serialized through mu: the engine handle is assumed non-reentrant,
// so only one request executes against it concurrently, and the
// model-swap path (free old handle, load new one) never overlaps an
// in-flight completion.
type Worker struct {
	logger zerolog.Logger
	eng    engine.Engine
	cache  *grammar.Cache

	modelsDir string
	suffix    string
	ctxWindow int
	threads   int

	mu          sync.Mutex
	currentPath string
	handle      engine.Handle
	loadCount   int // exercised by tests asserting hot-swap/reuse behaviour
}

// New builds a Worker. eng is injectable so tests can pass
// engine.Simulated{} without a real model binding.
func New(logger zerolog.Logger, eng engine.Engine, cache *grammar.Cache, modelsDir string, ctxWindow, threads int) *Worker {
	return &Worker{
		logger:    logger,
		eng:       eng,
		cache:     cache,
		modelsDir: modelsDir,
		suffix:    modelregistry.DefaultSuffix,
		ctxWindow: ctxWindow,
		threads:   threads,
	}
}

// LoadCount reports how many times Load actually ran against the
// engine, used by tests verifying the hot-swap invariant (testable
// property 5 / 7: re-requesting the same model performs zero
// additional loads).
func (w *Worker) LoadCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.loadCount
}

// resolveModel maps a request's model name to a path under
// modelsDir, returning ModelNotFoundError if absent.
func (w *Worker) resolveModel(name string) (modelregistry.ModelDescriptor, error) {
	desc, ok, err := modelregistry.Lookup(w.modelsDir, w.suffix, name)
	if err != nil {
		return modelregistry.ModelDescriptor{}, err
	}
	if !ok {
		return modelregistry.ModelDescriptor{}, &ModelNotFoundError{Model: name}
	}
	return desc, nil
}

// ensureLoaded hot-swaps the resident handle if it refers to a
// different path than path, tearing down the prior handle first.
// Must be called with w.mu held.
func (w *Worker) ensureLoaded(ctx context.Context, path string) (engine.Handle, error) {
	if w.handle != nil && w.currentPath == path {
		return w.handle, nil
	}

	if w.handle != nil {
		if err := w.eng.Free(w.handle); err != nil {
			w.logger.Warn().Err(err).Str("path", w.currentPath).Msg("failed to free prior model handle")
		}
		w.handle = nil
		w.currentPath = ""
	}

	h, err := w.eng.Load(ctx, path, w.ctxWindow, w.threads)
	if err != nil {
		return nil, err
	}
	w.handle = h
	w.currentPath = path
	w.loadCount++
	return h, nil
}

// complete serializes a completion request against the resident
// model, hot-swapping first if request.model resolves to a different
// path than the one currently loaded.
func (w *Worker) complete(ctx context.Context, modelPath string, params engine.CompletionParams) (engine.CompletionResult, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	h, err := w.ensureLoaded(ctx, modelPath)
	if err != nil {
		return engine.CompletionResult{}, err
	}
	return w.eng.Complete(ctx, h, params)
}
