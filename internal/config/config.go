// Package config loads modguard settings from modguard.yaml, MODGUARD_*
// environment variables and command-line flags, in increasing priority.
package config

import (
	"errors"
	"fmt"
	"reflect"
	"runtime"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/kolkov/modguard/agent"
	"github.com/kolkov/modguard/internal/guard/drift"
)

// EnvPrefix prefixes every environment variable, e.g. MODGUARD_TRACE.
const EnvPrefix = "MODGUARD"

// Config is the complete CLI configuration.
type Config struct {
	Agent agent.Config `mapstructure:",squash"`

	// WatchdogInterval is the constant-drift comparison period.
	WatchdogInterval time.Duration `mapstructure:"watchdog_interval" validate:"gt=0"`

	// Workers bounds concurrent load events in batch runs.
	Workers int `mapstructure:"workers" validate:"min=1"`

	// MetricsAddr serves Prometheus metrics when non-empty, e.g. ":9090".
	MetricsAddr string `mapstructure:"metrics_addr" validate:"omitempty,hostname_port"`
}

// Load reads the configuration.
//
// path selects an explicit config file; when empty, modguard.yaml is looked
// up in the working directory and its absence is not an error. Flags set on
// the command line override file and environment values; flag names map to
// keys by replacing '-' with '_' (--leak-double-release sets
// leak_double_release).
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	defaults := agent.DefaultConfig()
	v.SetDefault("trace", defaults.Trace)
	v.SetDefault("leak_unreleased", defaults.LeakUnreleased)
	v.SetDefault("leak_double_release", defaults.LeakDoubleRelease)
	v.SetDefault("unclosed_tracking", defaults.UnclosedTracking)
	v.SetDefault("constant_drift", defaults.ConstantDrift)
	v.SetDefault("thread_affinity", defaults.ThreadAffinity)
	v.SetDefault("watchdog_interval", drift.DefaultInterval)
	v.SetDefault("workers", runtime.NumCPU())
	v.SetDefault("metrics_addr", "")

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("modguard")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if flags != nil {
		var bindErr error
		flags.VisitAll(func(f *pflag.Flag) {
			if err := v.BindPFlag(strings.ReplaceAll(f.Name, "-", "_"), f); err != nil && bindErr == nil {
				bindErr = err
			}
		})
		if bindErr != nil {
			return nil, fmt.Errorf("failed to bind flags: %w", bindErr)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// No config file - use defaults
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

var validate = newValidator()

// newValidator reports fields by their config key.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("mapstructure"), ",")
		return name
	})
	return v
}

// validateConfig validates the configuration
func validateConfig(cfg *Config) error {
	err := validate.Struct(cfg)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("invalid config: %w", err)
	}
	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msgs = append(msgs, fmt.Sprintf("%s fails %s (got %v)", fe.Field(), constraint(fe), fe.Value()))
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}

func constraint(fe validator.FieldError) string {
	if fe.Param() == "" {
		return fe.Tag()
	}
	return fe.Tag() + "=" + fe.Param()
}
