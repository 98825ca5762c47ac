// Package config provides configuration management for the rally-coach
// pipeline. The configuration is constructed once at process start and
// passed by reference into every component that needs it; no component
// performs ambient environment lookups.
package config

import "time"

// Config represents the complete application configuration
type Config struct {
	App      AppConfig      `mapstructure:"app" validate:"required"`
	Engine   EngineConfig   `mapstructure:"engine" validate:"required"`
	Data     DataConfig     `mapstructure:"data" validate:"required"`
	Runs     RunsConfig     `mapstructure:"runs" validate:"required"`
	Format   FormatConfig   `mapstructure:"format" validate:"required"`
	Strategy StrategyConfig `mapstructure:"strategy" validate:"required"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
}

// AppConfig represents application-level configuration
type AppConfig struct {
	Name     string `mapstructure:"name" validate:"required"`
	LogLevel string `mapstructure:"log_level" validate:"required,loglevel"`
}

// EngineConfig configures the external verification engine (PAT console).
// ConsolePath may point at the executable itself or its installation
// directory. UseMono selects the runtime-shim launcher: "auto" wraps .exe
// binaries in mono, "always"/"never" force the decision.
type EngineConfig struct {
	ConsolePath    string `mapstructure:"console_path"`
	UseMono        string `mapstructure:"use_mono" validate:"omitempty,oneof=auto always never"`
	MonoPath       string `mapstructure:"mono_path"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds" validate:"required,gt=0"`
	Mode           string `mapstructure:"mode" validate:"required,oneof=real mock"`
}

// DataConfig configures the historical data sources.
type DataConfig struct {
	PlayersPath  string  `mapstructure:"players_path"`
	MatchesPath  string  `mapstructure:"matches_path"`
	WebBaseURL   string  `mapstructure:"web_base_url" validate:"omitempty,url"`
	WebCacheDir  string  `mapstructure:"web_cache_dir"`
	WebRateLimit float64 `mapstructure:"web_rate_limit" validate:"omitempty,gt=0"`
}

// RunsConfig configures where per-run artifact directories are created.
type RunsConfig struct {
	Dir string `mapstructure:"dir" validate:"required"`
}

// FormatConfig holds the game scoring constants.
type FormatConfig struct {
	Target int `mapstructure:"target" validate:"required,min=11,max=30"`
	Cap    int `mapstructure:"cap" validate:"required,min=21,max=50"`
	BestOf int `mapstructure:"best_of" validate:"required,min=1,max=7,oddint"`
}

// StrategyConfig holds strategy search defaults.
type StrategyConfig struct {
	Window  int     `mapstructure:"window" validate:"required,gt=0"`
	Budget  int     `mapstructure:"budget" validate:"required,gt=0"`
	L1Bound float64 `mapstructure:"l1_bound" validate:"required,gt=0,lte=1"`
}

// MetricsConfig represents metrics and monitoring configuration
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Port    int    `mapstructure:"port" validate:"omitempty,min=1,max=65535"`
	Path    string `mapstructure:"path"`
}

// EngineTimeout returns the per-attempt engine timeout as a duration.
func (c *Config) EngineTimeout() time.Duration {
	return time.Duration(c.Engine.TimeoutSeconds) * time.Second
}
