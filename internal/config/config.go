// Package config provides configuration loading using koanf.
// Precedence: KERNEL_* environment variables, then compiled defaults.
package config

import (
	"context"
	"fmt"
	"math/bits"
	"runtime"
	"strings"
	"time"

	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"

	"github.com/aelexs/kernel-ipc/internal/domain"
)

// EnvPrefix is stripped from environment variable names before mapping them
// to config keys.
const EnvPrefix = "KERNEL_"

// sections are the nested config groups. An env var whose name starts with
// a section name has that first underscore mapped to the koanf delimiter:
// KERNEL_IPCD_HTTP_PORT -> ipcd.http_port.
var sections = []string{"ipcd", "platform", "otel"}

// Config holds all service configuration.
type Config struct {
	// Environment identifier: "local", "dev", "prod"
	Environment string `koanf:"environment"`

	LogLevel  string `koanf:"log_level"`
	LogFormat string `koanf:"log_format"`

	IPCD     IPCDConfig     `koanf:"ipcd"`
	Platform PlatformConfig `koanf:"platform"`
	OTEL     OTELConfig     `koanf:"otel"`
}

// IPCDConfig holds the kernel IPC service configuration.
type IPCDConfig struct {
	HTTPPort int    `koanf:"http_port"`
	GRPCPort int    `koanf:"grpc_port"`
	BindAddr string `koanf:"bind_addr"` // Loopback by default; the admin API has no auth

	// ReceiveTimeout bounds a single blocking receive issued through the
	// admin API. The core itself never times out a waiter.
	ReceiveTimeout time.Duration `koanf:"receive_timeout"`
}

// PlatformConfig is the static platform table. It is reported at startup
// and never consulted by the IPC core; SMPCores > 0 sets GOMAXPROCS.
type PlatformConfig struct {
	Arch     string `koanf:"arch"`
	PageSize int    `koanf:"page_size"`
	SMPCores int    `koanf:"smp_cores"`
}

// OTELConfig holds OpenTelemetry configuration.
type OTELConfig struct {
	Endpoint       string        `koanf:"endpoint"` // Empty disables OTLP export
	ServiceName    string        `koanf:"service_name"`
	MetricInterval time.Duration `koanf:"metric_interval"`
}

func defaults() *Config {
	return &Config{
		Environment: "local",
		LogLevel:    "info",
		LogFormat:   "json",

		IPCD: IPCDConfig{
			HTTPPort:       domain.DefaultHTTPPort,
			GRPCPort:       domain.DefaultGRPCPort,
			BindAddr:       "127.0.0.1",
			ReceiveTimeout: domain.DefaultReceiveTimeout,
		},
		Platform: PlatformConfig{
			Arch:     runtime.GOARCH,
			PageSize: 4096,
		},
		OTEL: OTELConfig{
			MetricInterval: 60 * time.Second,
		},
	}
}

// Load loads configuration from KERNEL_* environment variables over the
// compiled defaults, then validates it. Required keys missing in prod and
// out-of-range values are startup failures.
func Load(ctx context.Context) (*Config, error) {
	k := koanf.New(".")
	cfg := defaults()

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("load env vars: %w", err)
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func envKey(s string) string {
	key := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	for _, section := range sections {
		if rest, ok := strings.CutPrefix(key, section+"_"); ok {
			return section + "." + rest
		}
	}
	return key
}

func validate(cfg *Config) error {
	if err := validatePort("ipcd.http_port", cfg.IPCD.HTTPPort); err != nil {
		return err
	}
	if err := validatePort("ipcd.grpc_port", cfg.IPCD.GRPCPort); err != nil {
		return err
	}
	if cfg.IPCD.HTTPPort == cfg.IPCD.GRPCPort {
		return fmt.Errorf("%w: ipcd.http_port and ipcd.grpc_port are both %d", domain.ErrInvalidInput, cfg.IPCD.HTTPPort)
	}
	if cfg.IPCD.ReceiveTimeout <= 0 {
		return fmt.Errorf("%w: ipcd.receive_timeout must be positive", domain.ErrInvalidInput)
	}
	if cfg.Platform.PageSize <= 0 || bits.OnesCount(uint(cfg.Platform.PageSize)) != 1 {
		return fmt.Errorf("%w: platform.page_size %d is not a power of two", domain.ErrInvalidInput, cfg.Platform.PageSize)
	}
	if cfg.Platform.SMPCores < 0 {
		return fmt.Errorf("%w: platform.smp_cores must not be negative", domain.ErrInvalidInput)
	}

	if cfg.IsProd() && cfg.OTEL.Endpoint == "" {
		return fmt.Errorf("%w: otel.endpoint", domain.ErrConfigRequired)
	}

	return nil
}

func validatePort(key string, port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("%w: %s %d out of range", domain.ErrInvalidInput, key, port)
	}
	return nil
}

// IsLocal returns true if running in local development environment.
func (c *Config) IsLocal() bool {
	return c.Environment == "local"
}

// IsProd returns true if running in production environment.
func (c *Config) IsProd() bool {
	return c.Environment == "prod"
}
