package config

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"

	"github.com/copyleftdev/powell/internal/logging"
)

// Config is the service configuration, read from the environment.
type Config struct {
	Environment string `env:"ENV" envDefault:"development"`
	HTTP        struct {
		Port            int           `env:"HTTP_PORT" envDefault:"8080"`
		ReadTimeout     time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"30s"`
		WriteTimeout    time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"30s"`
		IdleTimeout     time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"120s"`
		ShutdownTimeout time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT" envDefault:"30s"`
	}
	Logging logging.Config
	Powell  Powell
}

// Powell holds the defaults applied to minimization jobs that do not set
// their own values.
type Powell struct {
	Scale         float64 `env:"POWELL_SCALE" envDefault:"1"`
	MaxIterations int     `env:"POWELL_MAX_ITERATIONS" envDefault:"1000"`
	// CritLimit accepts "-inf" for no target value.
	CritLimit CritLimit `env:"POWELL_CRIT_LIMIT" envDefault:"-inf"`
	Tolerance float64   `env:"POWELL_TOLERANCE" envDefault:"1e-6"`
	// QueueSize bounds the number of jobs waiting for the worker.
	QueueSize int `env:"POWELL_QUEUE_SIZE" envDefault:"64"`
}

// CritLimit is a float64 that also parses "-inf", "inf" and "none".
type CritLimit float64

// UnmarshalText implements encoding.TextUnmarshaler for env parsing.
func (c *CritLimit) UnmarshalText(text []byte) error {
	s := strings.TrimSpace(strings.ToLower(string(text)))
	switch s {
	case "", "none", "-inf":
		*c = CritLimit(math.Inf(-1))
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("invalid crit limit %q: %w", string(text), err)
	}
	if math.IsNaN(v) {
		return fmt.Errorf("invalid crit limit %q", string(text))
	}
	*c = CritLimit(v)
	return nil
}

// Float64 returns the limit as a float64.
func (c CritLimit) Float64() float64 {
	return float64(c)
}

// Load parses the environment into a Config and validates it.
func Load() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the values env.Parse cannot.
func (c *Config) Validate() error {
	switch {
	case c.HTTP.Port <= 0 || c.HTTP.Port > 65535:
		return fmt.Errorf("HTTP_PORT out of range: %d", c.HTTP.Port)
	case !(c.Powell.Scale > 0) || math.IsInf(c.Powell.Scale, 1):
		return fmt.Errorf("POWELL_SCALE must be positive and finite, got %v", c.Powell.Scale)
	case c.Powell.MaxIterations < 0:
		return fmt.Errorf("POWELL_MAX_ITERATIONS must not be negative, got %d", c.Powell.MaxIterations)
	case !(c.Powell.Tolerance > 0):
		return fmt.Errorf("POWELL_TOLERANCE must be positive, got %v", c.Powell.Tolerance)
	case c.Powell.QueueSize < 1:
		return fmt.Errorf("POWELL_QUEUE_SIZE must be at least 1, got %d", c.Powell.QueueSize)
	}
	return nil
}
