// Package config loads and holds the proxy's process-wide configuration:
// the listening port, the cache's byte budget, the optional per-IP
// connection rate limit, and the optional tracing/metrics exporters.
// Everything the core cache and forwarding pipeline need is passed to them
// explicitly as constructor arguments — this package exists for the
// ambient concerns around that core, not for the core itself.
package config

import (
	"fmt"
	"os"
	"strconv"
	"sync"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultPort is used when no CLI argument is given, or the given one
	// is out of the valid 1..65535 range.
	DefaultPort = 8080

	// DefaultMaxTotalBytes and DefaultMaxElementBytes match the example
	// defaults the cache specification names: 200 MiB aggregate budget,
	// 10 MiB per entry.
	DefaultMaxTotalBytes   = 200 * 1024 * 1024
	DefaultMaxElementBytes = 10 * 1024 * 1024

	// MaxRequestSize bounds the single recv() the connection worker
	// performs to read a client request.
	MaxRequestSize = 8192

	// MaxClients is the source's accept() backlog. The Acceptor does not
	// apply it: Go's net package has no backlog option, so the listener
	// uses the OS default backlog.
	MaxClients = 100
)

// Config aggregates every tunable of the process. YAML tags let an
// operator supply a config file; any field the file does not set keeps
// its documented default (a field the file sets explicitly, even to zero,
// takes the file's value).
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Cache     CacheConfig     `yaml:"cache"`
	RateLimit RateLimitConfig `yaml:"rateLimit"`
	Tracing   TracingConfig   `yaml:"tracing"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// ServerConfig controls the raw TCP listener.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// CacheConfig controls the LRU cache's admission budget. Enabled toggles
// steps 4 and 8 of the connection worker's state machine; the build-tag
// pair in cache_enabled.go/cache_disabled.go controls the compiled-in
// default, but an operator can still force it off at runtime here.
type CacheConfig struct {
	Enabled         bool `yaml:"enabled"`
	MaxTotalBytes   int  `yaml:"maxTotalBytes"`
	MaxElementBytes int  `yaml:"maxElementBytes"`
}

// RateLimitConfig controls the optional per-client-IP token bucket gate
// applied before a connection is read. Disabled by default: the base spec
// has no notion of rate limiting, so this only ever activates if an
// operator opts in.
type RateLimitConfig struct {
	Enabled    bool `yaml:"enabled"`
	Capacity   int  `yaml:"capacity"`
	RefillRate int  `yaml:"refillRate"`
}

// TracingConfig mirrors tracing.Config; kept separate so internal/config
// has no import-time dependency on internal/tracing.
type TracingConfig struct {
	Enabled        bool    `yaml:"enabled"`
	ServiceName    string  `yaml:"serviceName"`
	ServiceVersion string  `yaml:"serviceVersion"`
	Environment    string  `yaml:"environment"`
	JaegerEndpoint string  `yaml:"jaegerEndpoint"`
	OTLPEndpoint   string  `yaml:"otlpEndpoint"`
	SamplingRatio  float64 `yaml:"samplingRatio"`
}

// MetricsConfig controls the optional Prometheus exposition listener. It
// is entirely separate from the proxy's own raw-socket listener.
type MetricsConfig struct {
	Addr string `yaml:"addr"` // empty disables metrics exposition
}

// Default returns a Config populated with every documented default.
func Default() *Config {
	return &Config{
		Server: ServerConfig{Port: DefaultPort},
		Cache: CacheConfig{
			Enabled:         defaultCacheEnabled,
			MaxTotalBytes:   DefaultMaxTotalBytes,
			MaxElementBytes: DefaultMaxElementBytes,
		},
		RateLimit: RateLimitConfig{
			Enabled:    false,
			Capacity:   100,
			RefillRate: 50,
		},
		Tracing: TracingConfig{
			Enabled:       false,
			ServiceName:   "cacheproxy",
			SamplingRatio: 0.1,
		},
		Metrics: MetricsConfig{},
	}
}

// Load builds a Config starting from Default, then overlaying a YAML file
// at path (if it exists) and finally environment variables (if set). path
// may be empty, in which case only env overrides apply.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if yerr := yaml.Unmarshal(data, cfg); yerr != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, yerr)
			}
		case os.IsNotExist(err):
			// No file is not an error: the CLI contract is a bare port
			// argument, config files are an optional convenience.
		default:
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("PROXY_CACHE_MAX_TOTAL_BYTES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Cache.MaxTotalBytes = n
		}
	}
	if v := os.Getenv("PROXY_CACHE_MAX_ELEMENT_BYTES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Cache.MaxElementBytes = n
		}
	}
	if v := os.Getenv("PROXY_METRICS_ADDR"); v != "" {
		cfg.Metrics.Addr = v
	}
	if v := os.Getenv("PROXY_CACHE_ENABLED"); v != "" {
		cfg.Cache.Enabled = v == "1" || v == "true"
	}
}

// ResolvePort validates a CLI-supplied port argument per the proxy's CLI
// contract: valid range is 1..65535; anything else (including an absent
// argument) silently falls back to DefaultPort.
func ResolvePort(arg string) int {
	if arg == "" {
		return DefaultPort
	}
	n, err := strconv.Atoi(arg)
	if err != nil || n < 1 || n > 65535 {
		return DefaultPort
	}
	return n
}

var (
	instance *Config
	once     sync.Once
	mu       sync.RWMutex
)

// Instance returns the process-wide singleton, initializing it with
// Default on first use. Most of the codebase should prefer an explicit
// *Config passed down from main; Instance exists for the rare leaf that
// has no natural place to receive one, mirroring the teacher codebase's
// singleton pattern.
func Instance() *Config {
	once.Do(func() {
		mu.Lock()
		defer mu.Unlock()
		if instance == nil {
			instance = Default()
		}
	})
	mu.RLock()
	defer mu.RUnlock()
	return instance
}

// SetInstance overrides the singleton, used by main after loading the real
// configuration from disk/env/CLI.
func SetInstance(cfg *Config) {
	mu.Lock()
	defer mu.Unlock()
	instance = cfg
}
