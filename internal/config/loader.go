package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Load builds a Config by layering defaults, an optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New())
//  2. YAML file named by HIBIKIDO_CONFIG
//  3. env vars with prefix HIBIKIDO_, e.g. HIBIKIDO_OVERLAP_THRESHOLD
func Load(ctx context.Context) (*Config, error) {
	base := New()

	k := koanf.New(".")

	if path := os.Getenv("HIBIKIDO_CONFIG"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
		}
	}

	// HIBIKIDO_TICK_INTERVAL_MS -> tick_interval_ms. Underscores are kept to
	// match the koanf tags on the struct.
	envProvider := env.Provider("HIBIKIDO_", ".", func(s string) string {
		s = strings.ToLower(s)
		return strings.TrimPrefix(s, "hibikido_")
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch {
	case c.Addr == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.OverlapThreshold <= 0 || c.OverlapThreshold > 1:
		return fmt.Errorf("%w: overlap_threshold must be in (0, 1]", ErrInvalidConfig)
	case c.TickIntervalMS <= 0:
		return fmt.Errorf("%w: tick_interval_ms must be positive", ErrInvalidConfig)
	case c.TopK <= 0:
		return fmt.Errorf("%w: top_k must be positive", ErrInvalidConfig)
	case c.DefaultDurationS <= 0:
		return fmt.Errorf("%w: default_duration_s must be positive", ErrInvalidConfig)
	case c.Embedder != "hash" && c.Embedder != "openai":
		return fmt.Errorf("%w: embedder must be \"hash\" or \"openai\"", ErrInvalidConfig)
	}
	return nil
}
