package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/user0131/llamapool/config"
	"github.com/user0131/llamapool/engine"
	"github.com/user0131/llamapool/grammar"
	"github.com/user0131/llamapool/logger"
	"github.com/user0131/llamapool/worker"
)

func main() {
	log := logger.New("worker")

	cfg, err := config.LoadWorkerConfig(os.Args[1:])
	if err != nil {
		log.Error().Err(err).Msg("configuration error")
		os.Exit(1)
	}

	cache := grammar.NewCache(log, cfg.GrammarCacheURL)
	eng := engine.Simulated{}
	w := worker.New(log, eng, cache, cfg.ModelsDir, cfg.CtxWindow, cfg.Threads)

	r := worker.NewRouter(w, log)
	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: config.ForwardDeadline + 10*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		log.Info().Str("addr", srv.Addr).Str("models_dir", cfg.ModelsDir).Msg("worker listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-done
	log.Info().Msg("shutdown signal received")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	} else {
		log.Info().Msg("worker stopped gracefully")
	}
}
