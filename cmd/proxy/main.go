package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gocacheproxy/proxy/internal/cache"
	"github.com/gocacheproxy/proxy/internal/config"
	"github.com/gocacheproxy/proxy/internal/logging"
	"github.com/gocacheproxy/proxy/internal/metrics"
	"github.com/gocacheproxy/proxy/internal/proxy"
	"github.com/gocacheproxy/proxy/internal/ratelimit"
	"github.com/gocacheproxy/proxy/internal/tracing"
)

// main starts the proxy on the port named by argv[1] (DefaultPort if
// absent or invalid, per config.ResolvePort), wires the cache, metrics and
// tracing stack, and runs until SIGINT/SIGTERM.
func main() {
	var portArg string
	if len(os.Args) > 1 {
		portArg = os.Args[1]
	}
	port := config.ResolvePort(portArg)

	cfg, err := config.Load(os.Getenv("PROXY_CONFIG"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	cfg.Server.Port = port
	config.SetInstance(cfg)

	log := logging.New("cacheproxy")
	m := metrics.New()

	shutdownTracing, err := tracing.Init(tracing.Config{
		ServiceName:    cfg.Tracing.ServiceName,
		ServiceVersion: cfg.Tracing.ServiceVersion,
		Environment:    cfg.Tracing.Environment,
		JaegerEndpoint: cfg.Tracing.JaegerEndpoint,
		OTLPEndpoint:   cfg.Tracing.OTLPEndpoint,
		SamplingRatio:  cfg.Tracing.SamplingRatio,
		Enabled:        cfg.Tracing.Enabled,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "init tracing: %v\n", err)
		os.Exit(1)
	}
	defer shutdownTracing()

	var c *cache.Cache
	if cfg.Cache.Enabled {
		c = cache.New(cfg.Cache.MaxTotalBytes, cfg.Cache.MaxElementBytes, log, m)
	}

	var limiter *ratelimit.Limiter
	if cfg.RateLimit.Enabled {
		limiter = ratelimit.New(cfg.RateLimit.Capacity, cfg.RateLimit.RefillRate)
	}

	if cfg.Metrics.Addr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", m.Handler())
			if err := http.ListenAndServe(cfg.Metrics.Addr, mux); err != nil {
				log.Error(context.Background(), "metrics listener failed", err, "addr", cfg.Metrics.Addr)
			}
		}()
	}

	acceptor := proxy.New(cfg.Server.Port, c, log, m, limiter)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		errChan <- acceptor.Run(ctx)
	}()

	select {
	case <-sigChan:
		log.Info(ctx, "received termination signal, shutting down")
		cancel()
	case err := <-errChan:
		if err != nil {
			log.Error(ctx, "acceptor exited", err)
		}
		return
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	select {
	case <-errChan:
		log.Info(ctx, "proxy stopped")
	case <-shutdownCtx.Done():
		log.Warn(ctx, "shutdown timed out waiting for acceptor to stop")
	}
}
