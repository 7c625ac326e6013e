package observability

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Config selects which signals are exported.
type Config struct {
	Tracing    bool          `yaml:"tracing" mapstructure:"tracing"`
	Metrics    bool          `yaml:"metrics" mapstructure:"metrics"`
	Endpoint   string        `yaml:"endpoint" mapstructure:"endpoint" validate:"omitempty,hostname_port"`
	Insecure   bool          `yaml:"insecure" mapstructure:"insecure"`
	SampleRate float64       `yaml:"sample_rate" mapstructure:"sample_rate" validate:"gte=0,lte=1"`
	Interval   time.Duration `yaml:"interval" mapstructure:"interval"`
}

// ApplyDefaults fills unset export settings.
func (c *Config) ApplyDefaults() {
	if c.Endpoint == "" && (c.Tracing || c.Metrics) {
		c.Endpoint = "localhost:4318"
	}
	if c.SampleRate == 0 {
		c.SampleRate = 1.0
	}
	if c.Interval == 0 {
		c.Interval = 15 * time.Second
	}
}

// Setup installs the providers enabled in cfg and returns a function that
// flushes and shuts them down.
func Setup(ctx context.Context, cfg Config, serviceName, environment string) (func(context.Context) error, error) {
	var shutdowns []func(context.Context) error
	if !cfg.Tracing && !cfg.Metrics {
		return func(context.Context) error { return nil }, nil
	}
	res, err := newResource(serviceName, environment)
	if err != nil {
		return nil, fmt.Errorf("creating resource: %w", err)
	}

	if cfg.Tracing {
		tp, err := newTracerProvider(ctx, cfg, res)
		if err != nil {
			return nil, err
		}
		shutdowns = append(shutdowns, tp.Shutdown)
	}

	if cfg.Metrics {
		mp, err := newMeterProvider(ctx, cfg, res)
		if err != nil {
			for _, fn := range shutdowns {
				_ = fn(ctx)
			}
			return nil, err
		}
		shutdowns = append(shutdowns, mp.Shutdown)
	}

	return func(ctx context.Context) error {
		var errs []error
		for _, fn := range shutdowns {
			errs = append(errs, fn(ctx))
		}
		return errors.Join(errs...)
	}, nil
}
