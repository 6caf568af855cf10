package main

import (
	"context"
	"os"
	"os/exec"
	"os/signal"
	"syscall"

	"github.com/user0131/llamapool/config"
	"github.com/user0131/llamapool/logger"
	"github.com/user0131/llamapool/supervisor"
)

// workerBinaryPath resolves the `worker` executable: either a path
// explicitly given via WORKER_BINARY, or a binary named `worker` found
// on PATH. The supervisor binary's own directory is not searched.
func workerBinaryPath() string {
	if p := os.Getenv("WORKER_BINARY"); p != "" {
		return p
	}
	if p, err := exec.LookPath("worker"); err == nil {
		return p
	}
	return "worker"
}

func main() {
	log := logger.New("supervisor")

	cfg, err := config.LoadSupervisorConfig(os.Args[1:])
	if err != nil {
		log.Error().Err(err).Msg("configuration error")
		os.Exit(1)
	}

	if advisory := supervisor.MemoryAdvisory(cfg.NumBackends); advisory != "" {
		log.Warn().Msg(advisory)
	}

	s := supervisor.New(log, workerBinaryPath(), cfg.ModelsDir, cfg.Host, cfg.BasePort, cfg.NumBackends)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := s.Start(ctx); err != nil {
		log.Error().Err(err).Msg("failed to start worker fleet")
		os.Exit(1)
	}
	log.Info().Int("backends", cfg.NumBackends).Int("base_port", cfg.BasePort).Msg("worker fleet started")

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	watchDone := make(chan struct{})
	go func() {
		s.Watch(ctx)
		close(watchDone)
	}()

	select {
	case <-sig:
		log.Info().Msg("shutdown signal received")
	case <-watchDone:
		log.Error().Msg("worker fleet exited unexpectedly")
	}

	cancel()
	s.Stop()
	log.Info().Msg("supervisor stopped")
}
