package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/user0131/llamapool/backend"
	"github.com/user0131/llamapool/balancer"
	"github.com/user0131/llamapool/config"
	"github.com/user0131/llamapool/logger"
	"github.com/user0131/llamapool/middleware"
)

func main() {
	log := logger.New("balancer")

	cfg, err := config.LoadBalancerConfig(os.Args[1:])
	if err != nil {
		log.Error().Err(err).Msg("configuration error")
		os.Exit(1)
	}

	backends := make([]backend.Backend, cfg.NumBackends)
	for i := range backends {
		backends[i] = backend.Backend{Host: cfg.BackendHost, Port: cfg.BackendBase + i}
	}

	b := balancer.New(log, backends, config.ForwardDeadline, config.HealthProbeInterval)
	defer b.Close()

	forwardDeadline := middleware.NewTimeout(log, config.ForwardDeadline)
	r := balancer.NewRouter(b, log, forwardDeadline)

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
		log.Info().Str("addr", srv.Addr).Int("backends", cfg.NumBackends).Msg("balancer listening")
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
		log.Info().Msg("balancer stopped gracefully")
	}
}
