// Package config loads the aggregation core's tunables from a YAML file,
// overridable via PORTFOLIOAGG_-prefixed environment variables.
package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/viper"
)

// RateLimitConfig configures one provider's outbound request rate.
type RateLimitConfig struct {
	RequestsPerMinute int `mapstructure:"requestsPerMinute" yaml:"requestsPerMinute"`
	BurstLimit        int `mapstructure:"burstLimit" yaml:"burstLimit"`
}

// CircuitBreakerConfig configures one provider's circuit breaker.
type CircuitBreakerConfig struct {
	FailureThreshold  int `mapstructure:"failureThreshold" yaml:"failureThreshold"`
	RecoveryTimeoutMs int `mapstructure:"recoveryTimeoutMs" yaml:"recoveryTimeoutMs"`
	HalfOpenRetries   int `mapstructure:"halfOpenRetries" yaml:"halfOpenRetries"`
}

// Config is the full set of tunables for the aggregation core.
type Config struct {
	CacheTTLMs      int                             `mapstructure:"cacheTtlMs" yaml:"cacheTtlMs"`
	PriceCacheTTLMs int                             `mapstructure:"priceCacheTtlMs" yaml:"priceCacheTtlMs"`
	MySQLDSN        string                          `mapstructure:"mysqlDsn" yaml:"mysqlDsn"`
	RateLimits      map[string]RateLimitConfig      `mapstructure:"rateLimits" yaml:"rateLimits"`
	CircuitBreakers map[string]CircuitBreakerConfig `mapstructure:"circuitBreakers" yaml:"circuitBreakers"`
}

// Default returns the baseline configuration used when no file is present
// and no environment overrides are set.
func Default() Config {
	return Config{
		CacheTTLMs:      300_000,
		PriceCacheTTLMs: 60_000,
		RateLimits: map[string]RateLimitConfig{
			"evm":       {RequestsPerMinute: 300, BurstLimit: 20},
			"solana":    {RequestsPerMinute: 300, BurstLimit: 20},
			"brokerage": {RequestsPerMinute: 120, BurstLimit: 10},
		},
		CircuitBreakers: map[string]CircuitBreakerConfig{
			"evm":       {FailureThreshold: 5, RecoveryTimeoutMs: 30_000, HalfOpenRetries: 2},
			"solana":    {FailureThreshold: 5, RecoveryTimeoutMs: 30_000, HalfOpenRetries: 2},
			"brokerage": {FailureThreshold: 5, RecoveryTimeoutMs: 30_000, HalfOpenRetries: 2},
		},
	}
}

// LoadConfig reads path (YAML) into a Config layered over Default(),
// with PORTFOLIOAGG_-prefixed environment variables taking precedence.
// A missing file is not an error: Default() plus env overrides is used.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("PORTFOLIOAGG")
	v.AutomaticEnv()

	cfg := Default()
	setDefaults(v, cfg)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !os.IsNotExist(err) {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper, cfg Config) {
	v.SetDefault("cacheTtlMs", cfg.CacheTTLMs)
	v.SetDefault("priceCacheTtlMs", cfg.PriceCacheTTLMs)
	v.SetDefault("mysqlDsn", cfg.MySQLDSN)
	v.SetDefault("rateLimits", cfg.RateLimits)
	v.SetDefault("circuitBreakers", cfg.CircuitBreakers)
}
