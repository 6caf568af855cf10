// Package supervisor spawns, monitors, and life-cycles a fleet of
// worker processes on a contiguous port range.
package supervisor

import (
	"context"
	"fmt"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
)

// LaunchCadence is the delay between successive worker spawns.
const LaunchCadence = 2 * time.Second

// StopGrace is how long a child is given to exit after SIGTERM before
// being force-killed.
const StopGrace = 5 * time.Second

// watchInterval is the supervisor's process-liveness poll rate.
const watchInterval = 1 * time.Second

// child tracks one spawned worker process. exited is closed exactly
// once, by the single goroutine that owns the Wait() call started at
// spawn time — exec.Cmd.Wait must only be called once per process, so
// both Stop and Watch observe liveness through this channel rather
// than calling Wait themselves.
type child struct {
	id     int
	port   int
	cmd    *exec.Cmd
	exited chan struct{}
}

// Supervisor spawns workerBinary <modelsDir> <host> <port> for N
// contiguous ports, each in its own process group so a single signal
// can stop the whole group cleanly.
type Supervisor struct {
	logger       zerolog.Logger
	workerBinary string
	modelsDir    string
	host         string
	basePort     int
	numBackends  int

	mu       sync.Mutex
	children []*child
}

// New builds a Supervisor. workerBinary is the path to the worker
// executable to spawn (resolved by cmd/supervisor from WORKER_BINARY
// or PATH).
func New(logger zerolog.Logger, workerBinary, modelsDir, host string, basePort, numBackends int) *Supervisor {
	return &Supervisor{
		logger:       logger,
		workerBinary: workerBinary,
		modelsDir:    modelsDir,
		host:         host,
		basePort:     basePort,
		numBackends:  numBackends,
	}
}

// MemoryAdvisory returns an informational log line estimating memory
// pressure for n concurrently resident models, ported from the
// original supervisor's per-backend memory warning. It gates nothing
// — purely advisory, matching the spec's "supervisor only
// participates at startup/shutdown" scoping.
func MemoryAdvisory(n int) string {
	if n <= 10 {
		return ""
	}
	const perBackendGB = 2.3
	estimated := float64(n) * perBackendGB
	return fmt.Sprintf("%d backends resident ~%.1fGB estimated; consider a host with sufficient memory headroom", n, estimated)
}

// Start launches all N workers at LaunchCadence and returns once the
// last one has been spawned. It does not wait for them to become
// ready — the balancer's probe-before-forward health checking covers
// that.
func (s *Supervisor) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := 0; i < s.numBackends; i++ {
		port := s.basePort + i
		c, err := s.spawn(port, i+1)
		if err != nil {
			s.logger.Error().Err(err).Int("backend", i+1).Int("port", port).Msg("failed to start worker")
			return err
		}
		s.children = append(s.children, c)
		s.logger.Info().Int("backend", i+1).Int("port", port).Int("pid", c.cmd.Process.Pid).Msg("worker started")

		if i < s.numBackends-1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(LaunchCadence):
			}
		}
	}
	return nil
}

func (s *Supervisor) spawn(port, id int) (*child, error) {
	cmd := exec.Command(s.workerBinary, s.modelsDir, s.host, fmt.Sprintf("%d", port))
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	c := &child{id: id, port: port, cmd: cmd, exited: make(chan struct{})}
	go func() {
		cmd.Wait()
		close(c.exited)
	}()
	return c, nil
}

// Stop sends SIGTERM to every child's process group, waits up to
// StopGrace for each to exit, then SIGKILLs stragglers.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	children := append([]*child(nil), s.children...)
	s.mu.Unlock()

	for _, c := range children {
		pgid, err := syscall.Getpgid(c.cmd.Process.Pid)
		if err != nil {
			continue
		}
		if err := syscall.Kill(-pgid, syscall.SIGTERM); err != nil {
			s.logger.Warn().Err(err).Int("backend", c.id).Msg("failed to signal worker process group")
		}
	}

	var wg sync.WaitGroup
	for _, c := range children {
		c := c
		wg.Add(1)
		go func() {
			defer wg.Done()
			select {
			case <-c.exited:
				s.logger.Info().Int("backend", c.id).Msg("worker exited cleanly")
			case <-time.After(StopGrace):
				if pgid, err := syscall.Getpgid(c.cmd.Process.Pid); err == nil {
					syscall.Kill(-pgid, syscall.SIGKILL)
				}
				<-c.exited
				s.logger.Warn().Int("backend", c.id).Msg("worker force-killed after grace period")
			}
		}()
	}
	wg.Wait()
}

// Watch polls child liveness at 1Hz until every child has exited or
// ctx is cancelled. It logs a warning if all children exit without
// the context being cancelled first (an unexpected mass death rather
// than an operator-requested shutdown).
func (s *Supervisor) Watch(ctx context.Context) {
	ticker := time.NewTicker(watchInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if s.allExited() {
				select {
				case <-ctx.Done():
				default:
					s.logger.Warn().Msg("all worker processes exited unexpectedly")
				}
				return
			}
		}
	}
}

func (s *Supervisor) allExited() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.children) == 0 {
		return false
	}
	for _, c := range s.children {
		select {
		case <-c.exited:
		default:
			return false
		}
	}
	return true
}
