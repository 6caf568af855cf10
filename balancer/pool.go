package balancer

import (
	"net"
	"net/http"
	"time"
)

// poolConfig is the fixed connection-pool shape: up to 100 idle
// connections kept in total, at most 20 connections per host, and a
// per-request deadline (120s as wired by cmd/balancer). There is no
// cap on the total number of concurrent connections across all hosts
// beyond the per-host limit. Unlike a multi-provider gateway this balancer
// only ever talks to one kind of upstream (a worker), so there is a
// single pool rather than one keyed per provider.
type poolConfig struct {
	maxIdleConns        int
	maxIdleConnsPerHost int
	maxConnsPerHost     int
	idleConnTimeout     time.Duration
	dialTimeout         time.Duration
	keepAlive           time.Duration
	requestTimeout      time.Duration
}

func defaultPoolConfig(requestTimeout time.Duration) poolConfig {
	return poolConfig{
		maxIdleConns:        100,
		maxIdleConnsPerHost: 20,
		maxConnsPerHost:     20,
		idleConnTimeout:     90 * time.Second,
		dialTimeout:         10 * time.Second,
		keepAlive:           30 * time.Second,
		requestTimeout:      requestTimeout,
	}
}

// newPooledClient builds the balancer's single shared HTTP client.
// New calls it once, when the Balancer is constructed (not lazily on
// first use); its idle connections are released via Close on shutdown.
func newPooledClient(cfg poolConfig) *http.Client {
	dialer := &net.Dialer{
		Timeout:   cfg.dialTimeout,
		KeepAlive: cfg.keepAlive,
	}
	transport := &http.Transport{
		DialContext:         dialer.DialContext,
		MaxIdleConns:        cfg.maxIdleConns,
		MaxIdleConnsPerHost: cfg.maxIdleConnsPerHost,
		MaxConnsPerHost:     cfg.maxConnsPerHost,
		IdleConnTimeout:     cfg.idleConnTimeout,
	}
	return &http.Client{
		Transport: transport,
		Timeout:   cfg.requestTimeout,
	}
}
