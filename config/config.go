// Package config loads renderer settings from YAML files and CHART_*
// environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/gogpu/chart"
	"github.com/gogpu/chart/backend"
	"github.com/gogpu/chart/lod"
	"github.com/gogpu/chart/perf"
	"github.com/gogpu/chart/pool"
)

// EnvPrefix prefixes environment overrides, e.g. CHART_PERF_TARGET_FPS.
const EnvPrefix = "CHART"

// Config is the file form of the renderer options.
type Config struct {
	Backend BackendConfig `mapstructure:"backend" yaml:"backend"`
	Perf    perf.Config   `mapstructure:"perf" yaml:"perf"`
	Levels  []lod.Level   `mapstructure:"levels" yaml:"levels"`
	Pool    pool.Config   `mapstructure:"pool" yaml:"pool"`
	Cache   CacheConfig   `mapstructure:"cache" yaml:"cache"`
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`
}

// BackendConfig selects and configures the rendering backend.
type BackendConfig struct {
	// Priority lists backend names ("gpu", "shared", "software") in the
	// order Initialize tries them.
	Priority []string `mapstructure:"priority" yaml:"priority"`

	AcquireTimeout time.Duration `mapstructure:"acquire_timeout" yaml:"acquire_timeout"`

	// PresentMode is fifo, mailbox or immediate.
	PresentMode string `mapstructure:"present_mode" yaml:"present_mode"`
}

// CacheConfig sizes the normalized-series cache.
type CacheConfig struct {
	// Series is the number of normalized series kept.
	Series int `mapstructure:"series" yaml:"series"`
}

// LoggingConfig sets the slog level, e.g. "debug" or "warn".
type LoggingConfig struct {
	Level string `mapstructure:"level" yaml:"level"`
}

// Default returns the stock settings.
func Default() *Config {
	prio := backend.DefaultPriority()
	names := make([]string, len(prio))
	for i, t := range prio {
		names[i] = t.String()
	}
	return &Config{
		Backend: BackendConfig{
			Priority:       names,
			AcquireTimeout: backend.DefaultAcquireTimeout,
			PresentMode:    backend.PresentFifo.String(),
		},
		Perf:    perf.DefaultConfig(),
		Levels:  lod.DefaultLevels(),
		Pool:    pool.DefaultConfig(),
		Cache:   CacheConfig{Series: 64},
		Logging: LoggingConfig{Level: "warn"},
	}
}

// Load reads path (if not empty) over the defaults, then applies CHART_*
// environment overrides, and validates the result.
func Load(path string) (*Config, error) {
	v := viper.New()
	cfg := Default()
	setDefaults(v, cfg)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Slices decode into fresh storage so a shorter list replaces the default.
	cfg.Backend.Priority = nil
	cfg.Levels = nil
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	if !v.IsSet("levels") {
		cfg.Levels = lod.DefaultLevels()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// Save writes c to path as YAML.
func Save(path string, c *Config) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

// Validate checks every section.
func (c *Config) Validate() error {
	if _, err := backend.ParsePriority(c.Backend.Priority); err != nil {
		return err
	}
	if len(c.Backend.Priority) == 0 {
		return errors.New("backend.priority must list at least one backend")
	}
	if c.Backend.AcquireTimeout < 0 {
		return errors.New("backend.acquire_timeout must not be negative")
	}
	if _, err := parsePresentMode(c.Backend.PresentMode); err != nil {
		return err
	}
	if err := c.Perf.Validate(); err != nil {
		return err
	}
	if err := lod.Validate(c.Levels); err != nil {
		return err
	}
	if c.Pool.Capacity == 0 {
		return errors.New("pool.capacity must be positive")
	}
	if c.Cache.Series < 0 {
		return errors.New("cache.series must not be negative")
	}
	if _, err := c.Logging.SlogLevel(); err != nil {
		return err
	}
	return nil
}

// Options converts c into renderer options.
func (c *Config) Options() ([]chart.Option, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	prio, _ := backend.ParsePriority(c.Backend.Priority)
	mode, _ := parsePresentMode(c.Backend.PresentMode)
	return []chart.Option{
		chart.WithPriority(prio...),
		chart.WithLevels(c.Levels...),
		chart.WithTargetFPS(c.Perf.TargetFPS),
		chart.WithWindow(c.Perf.Window),
		chart.WithHysteresis(c.Perf.CoarsenAfter, c.Perf.RefineAfter, c.Perf.RefineMargin),
		chart.WithPoolConfig(c.Pool),
		chart.WithAcquireTimeout(c.Backend.AcquireTimeout),
		chart.WithPresentMode(mode),
		chart.WithCacheSize(c.Cache.Series),
	}, nil
}

// SlogLevel parses Level.
func (l LoggingConfig) SlogLevel() (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, fmt.Errorf("logging.level: %w", err)
	}
	return lvl, nil
}

func parsePresentMode(s string) (backend.PresentMode, error) {
	for _, m := range []backend.PresentMode{backend.PresentFifo, backend.PresentMailbox, backend.PresentImmediate} {
		if strings.EqualFold(s, m.String()) {
			return m, nil
		}
	}
	return 0, fmt.Errorf("backend.present_mode %q must be fifo, mailbox or immediate", s)
}

func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("backend.priority", cfg.Backend.Priority)
	v.SetDefault("backend.acquire_timeout", cfg.Backend.AcquireTimeout)
	v.SetDefault("backend.present_mode", cfg.Backend.PresentMode)

	v.SetDefault("perf.target_fps", cfg.Perf.TargetFPS)
	v.SetDefault("perf.window", cfg.Perf.Window)
	v.SetDefault("perf.coarsen_after", cfg.Perf.CoarsenAfter)
	v.SetDefault("perf.refine_after", cfg.Perf.RefineAfter)
	v.SetDefault("perf.refine_margin", cfg.Perf.RefineMargin)

	v.SetDefault("pool.capacity", cfg.Pool.Capacity)
	v.SetDefault("pool.alignment", cfg.Pool.Alignment)
	v.SetDefault("pool.fragmentation_threshold", cfg.Pool.FragmentationThreshold)

	v.SetDefault("cache.series", cfg.Cache.Series)
	v.SetDefault("logging.level", cfg.Logging.Level)
}
