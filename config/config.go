// Package config holds the three CLI-driven configuration shapes used
// by the worker, balancer, and supervisor binaries, plus the
// environment-variable overrides for operational knobs that sit
// outside the positional CLI contract.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Port range within which supervisor and balancer base ports must fall.
const (
	MinBasePort  = 8070
	MaxPortBound = 8100
	MaxBackends  = 30
)

// ConfigError reports invalid CLI arguments or an unusable models
// directory, surfaced as a process exit(1) with a stderr message.
type ConfigError struct {
	Msg string
}

func (e *ConfigError) Error() string { return e.Msg }

func configErrorf(format string, args ...interface{}) error {
	return &ConfigError{Msg: fmt.Sprintf(format, args...)}
}

// ConfigErrorf builds a ConfigError, exported for use by packages
// outside config (e.g. modelregistry) that surface the same
// process-exit-1 semantics on a bad directory or argument.
func ConfigErrorf(format string, args ...interface{}) error {
	return configErrorf(format, args...)
}

// WorkerConfig is the resolved configuration for `worker`.
type WorkerConfig struct {
	ModelsDir string
	Host      string
	Port      int
	Threads   int

	// CtxWindow is the engine context window size. Configurable via
	// WORKER_CTX_WINDOW; spec.md §9 settles on 4096 as the default
	// (the source mixed 2048/4096/32768 across variants).
	CtxWindow int

	// GrammarCacheURL, if set, points at a Redis instance used to
	// cache compiled grammars across process restarts. Empty means
	// the in-process cache only (see grammar.Cache).
	GrammarCacheURL string
}

// LoadWorkerConfig builds a WorkerConfig from CLI-style positional
// args (models_dir, host, port, threads) with env-var overrides for
// the extras. Mirrors the CLI contract of spec.md §6.
func LoadWorkerConfig(args []string) (*WorkerConfig, error) {
	_ = godotenv.Load()

	if len(args) < 1 {
		return nil, configErrorf("usage: worker <models_dir> [host=127.0.0.1] [port=8080] [threads=1]")
	}

	cfg := &WorkerConfig{
		ModelsDir:       args[0],
		Host:            "127.0.0.1",
		Port:            8080,
		Threads:         1,
		CtxWindow:       getEnvInt("WORKER_CTX_WINDOW", 4096),
		GrammarCacheURL: os.Getenv("REDIS_URL"),
	}

	if len(args) > 1 {
		cfg.Host = args[1]
	}
	if len(args) > 2 {
		p, err := strconv.Atoi(args[2])
		if err != nil {
			return nil, configErrorf("invalid port %q: %v", args[2], err)
		}
		cfg.Port = p
	}
	if len(args) > 3 {
		t, err := strconv.Atoi(args[3])
		if err != nil {
			return nil, configErrorf("invalid thread count %q: %v", args[3], err)
		}
		cfg.Threads = t
	}

	info, err := os.Stat(cfg.ModelsDir)
	if err != nil || !info.IsDir() {
		return nil, configErrorf("モデルディレクトリが存在しません: %s", cfg.ModelsDir)
	}

	return cfg, nil
}

// SupervisorConfig is the resolved configuration for `supervisor`.
type SupervisorConfig struct {
	ModelsDir   string
	Host        string
	BasePort    int
	NumBackends int
	Threads     int
}

// LoadSupervisorConfig builds a SupervisorConfig from CLI-style
// positional args (models_dir, host, base_port, N) and validates the
// N/port-range constraints of spec.md §6/§8.
func LoadSupervisorConfig(args []string) (*SupervisorConfig, error) {
	_ = godotenv.Load()

	if len(args) < 1 {
		return nil, configErrorf("usage: supervisor <models_dir> [host=127.0.0.1] [base_port=8070] [N=5]")
	}

	cfg := &SupervisorConfig{
		ModelsDir:   args[0],
		Host:        "127.0.0.1",
		BasePort:    MinBasePort,
		NumBackends: 5,
		Threads:     getEnvInt("WORKER_THREADS", 1),
	}

	if len(args) > 1 {
		cfg.Host = args[1]
	}
	if len(args) > 2 {
		p, err := strconv.Atoi(args[2])
		if err != nil {
			return nil, configErrorf("invalid base_port %q: %v", args[2], err)
		}
		cfg.BasePort = p
	}
	if len(args) > 3 {
		n, err := strconv.Atoi(args[3])
		if err != nil {
			return nil, configErrorf("invalid N %q: %v", args[3], err)
		}
		cfg.NumBackends = n
	}

	if err := ValidatePortWindow(cfg.BasePort, cfg.NumBackends); err != nil {
		return nil, err
	}

	info, err := os.Stat(cfg.ModelsDir)
	if err != nil || !info.IsDir() {
		return nil, configErrorf("モデルディレクトリが存在しません: %s", cfg.ModelsDir)
	}

	return cfg, nil
}

// BalancerConfig is the resolved configuration for `balancer`.
type BalancerConfig struct {
	BackendHost string
	BackendBase int
	NumBackends int
	Host        string
	Port        int
}

// LoadBalancerConfig builds a BalancerConfig from CLI-style positional
// args (backend_host, base_port, N, lb_host, lb_port).
func LoadBalancerConfig(args []string) (*BalancerConfig, error) {
	if len(args) < 3 {
		return nil, configErrorf("usage: balancer <backend_host> <base_port> <N> [lb_host=0.0.0.0] [lb_port=9000]")
	}

	backendBase, err := strconv.Atoi(args[1])
	if err != nil {
		return nil, configErrorf("invalid base_port %q: %v", args[1], err)
	}
	n, err := strconv.Atoi(args[2])
	if err != nil {
		return nil, configErrorf("invalid N %q: %v", args[2], err)
	}

	cfg := &BalancerConfig{
		BackendHost: args[0],
		BackendBase: backendBase,
		NumBackends: n,
		Host:        "0.0.0.0",
		Port:        9000,
	}

	if len(args) > 3 {
		cfg.Host = args[3]
	}
	if len(args) > 4 {
		p, err := strconv.Atoi(args[4])
		if err != nil {
			return nil, configErrorf("invalid lb_port %q: %v", args[4], err)
		}
		cfg.Port = p
	}

	if err := ValidatePortWindow(cfg.BackendBase, cfg.NumBackends); err != nil {
		return nil, err
	}

	return cfg, nil
}

// ValidatePortWindow enforces N ≤ 30 and base_port window ⊆ [8070,8100)
// per spec.md §6/§8.
func ValidatePortWindow(basePort, n int) error {
	if n > MaxBackends {
		return configErrorf("バックエンド数は最大%d台です: %d", MaxBackends, n)
	}
	if basePort < MinBasePort || basePort+n > MaxPortBound {
		return configErrorf("バックエンドポート範囲は%d-%dです: %d-%d", MinBasePort, MaxPortBound-1, basePort, basePort+n-1)
	}
	return nil
}

// HealthProbeInterval is the balancer's staleness threshold for
// re-probing a backend (spec.md §4.C6).
const HealthProbeInterval = 30 * time.Second

// ForwardDeadline is the balancer's per-request total deadline
// (spec.md §4.C6/§5).
const ForwardDeadline = 120 * time.Second

// LaunchCadence is the supervisor's delay between successive spawns
// (spec.md §5).
const LaunchCadence = 2 * time.Second

// StopGrace is how long the supervisor waits for a child to exit after
// SIGTERM before force-killing it (spec.md §4.C7).
const StopGrace = 5 * time.Second

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}
