// Package config loads settings from a YAML file, the environment and
// command-line flags, in that order of increasing precedence.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// envPrefix namespaces the environment variables, e.g.
// CARDBOX_API__BASE_URL maps to api.base_url.
const envPrefix = "CARDBOX_"

// Database configures the local store.
type Database struct {
	Path string `koanf:"path" validate:"required"`
}

// API configures the remote store the sync layer talks to.
type API struct {
	BaseURL string        `koanf:"base_url" validate:"required,url"`
	Token   string        `koanf:"token"`
	Timeout time.Duration `koanf:"timeout" validate:"min=0"`
}

// Sync configures the background reconcile loop.
type Sync struct {
	Interval   time.Duration `koanf:"interval" validate:"min=0"`
	MaxRetries int           `koanf:"max_retries" validate:"min=0"`
}

// Study configures review sessions.
type Study struct {
	DailyNewLimit int           `koanf:"daily_new_limit" validate:"min=1"`
	Debounce      time.Duration `koanf:"debounce" validate:"min=0"`
}

// Scheduler configures the spaced-repetition engine.
type Scheduler struct {
	DesiredRetention float64 `koanf:"desired_retention" validate:"gt=0,lte=1"`
	MaximumInterval  int     `koanf:"maximum_interval" validate:"min=1"`
	DisableFuzz      bool    `koanf:"disable_fuzz"`
}

// Import configures markdown card sources.
type Import struct {
	ReposDir string `koanf:"repos_dir" validate:"required"`
}

// Config is the full application configuration.
type Config struct {
	Database  Database  `koanf:"database"`
	API       API       `koanf:"api"`
	Sync      Sync      `koanf:"sync"`
	Study     Study     `koanf:"study"`
	Scheduler Scheduler `koanf:"scheduler"`
	Import    Import    `koanf:"import"`
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	return Config{
		Database: Database{Path: "cardbox.db"},
		API: API{
			BaseURL: "http://localhost:8080/api",
			Timeout: 15 * time.Second,
		},
		Sync: Sync{
			Interval:   30 * time.Second,
			MaxRetries: 2,
		},
		Study: Study{
			DailyNewLimit: 20,
			Debounce:      time.Second,
		},
		Scheduler: Scheduler{
			DesiredRetention: 0.9,
			MaximumInterval:  36500,
		},
		Import: Import{ReposDir: "repos"},
	}
}

// Load builds the configuration from defaults, then the YAML file at path
// (if non-empty), then CARDBOX_* environment variables, then flags.
func Load(path string, flags *pflag.FlagSet) (Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", envToKey), nil); err != nil {
		return Config{}, fmt.Errorf("failed to load environment: %w", err)
	}

	if flags != nil {
		// Command verbs (--once, --import, --study, ...) share the flag set
		// with configuration keys; only dotted keys are configuration.
		cb := func(key, value string) (string, any) {
			if !strings.Contains(key, ".") {
				return "", nil
			}
			return key, value
		}
		if err := k.Load(posflag.ProviderWithValue(flags, ".", k, cb), nil); err != nil {
			return Config{}, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	cfg := Default()
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the configuration for out-of-range values.
func (c Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// envToKey maps CARDBOX_SECTION__FIELD_NAME to section.field_name.
func envToKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, envPrefix))
	return strings.ReplaceAll(s, "__", ".")
}
