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

// Keys the configuration must set explicitly; there is no sane default for a
// competition's gain matrix.
var requiredGainKeys = []string{"gain_matrix.tp", "gain_matrix.tn", "gain_matrix.fp", "gain_matrix.fn"}

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):.
//  1. defaults (New())
//  2. file (YAML) if ORACULUS_CONFIG is set
//  3. env (prefix ORACULUS_)
func Load(ctx context.Context) (*Config, error) {
	_ = ctx

	base := New()

	k := koanf.New(".")

	if path := os.Getenv("ORACULUS_CONFIG"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrLoadConfig, err)
		}
	}

	// Environment variables: ORACULUS_ADDR, ORACULUS_QUEUE_SIZE, ...
	// Map env keys like ORACULUS_QUEUE_SIZE -> queue_size (flat keys)
	// Preserve underscores to match koanf tags on the struct.
	envProvider := env.Provider("ORACULUS_", ".", func(s string) string {
		s = strings.ToLower(s)
		s = strings.TrimPrefix(s, "oraculus_")
		return s
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoadConfig, err)
	}

	// Unmarshal into a copy
	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoadConfig, err)
	}

	if err := validate(k, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// validate checks the loaded configuration. The koanf instance is consulted
// for key presence because zero gains are legal values.
func validate(k *koanf.Koanf, cfg *Config) error {
	if cfg.Addr == "" {
		return invalidf("addr must not be empty")
	}
	for _, key := range requiredGainKeys {
		if !k.Exists(key) {
			return invalidf("%s must be set", key)
		}
	}
	if len(cfg.GainThresholds) == 0 {
		return invalidf("gain_thresholds must not be empty")
	}
	for i, t := range cfg.GainThresholds {
		if t.Category == "" {
			return invalidf("gain_thresholds[%d].category must not be empty", i)
		}
	}
	if cfg.MasterData.Path == "" {
		return invalidf("master_data.path must not be empty")
	}
	if cfg.Submissions.Path == "" {
		return invalidf("submissions.path must not be empty")
	}
	if cfg.Database.Path == "" {
		return invalidf("database.path must not be empty")
	}
	if cfg.Zulip.Email == "" || cfg.Zulip.APIKey == "" || cfg.Zulip.Site == "" {
		return invalidf("zulip email, api_key and site must all be set")
	}
	if _, err := cfg.DeadlineTime(); err != nil {
		return err
	}
	return nil
}
