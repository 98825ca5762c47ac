package config

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Load reads and parses the configuration from file and environment variables.
// It expands environment variable placeholders in the YAML file (${VAR_NAME})
func Load(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = "config/config.yaml"
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found at %s: %w", configPath, err)
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Expand environment variables in the configuration (${VAR} syntax)
	expanded := os.ExpandEnv(string(data))

	v := viper.New()
	v.SetConfigType("yaml")
	applyDefaults(v)

	if err := v.ReadConfig(bytes.NewBufferString(expanded)); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	v.SetEnvPrefix("RALLY_COACH")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	return cfg, nil
}

// Default returns a configuration with built-in defaults only, without
// reading a file. Used by tests and by the CLI when no config file exists.
func Default() *Config {
	v := viper.New()
	applyDefaults(v)

	cfg := &Config{}
	// Unmarshalling defaults cannot fail: the keys mirror the struct tags.
	_ = v.Unmarshal(cfg)
	return cfg
}

func applyDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "rally-coach")
	v.SetDefault("app.log_level", "info")

	v.SetDefault("engine.use_mono", "auto")
	v.SetDefault("engine.mono_path", "mono")
	v.SetDefault("engine.timeout_seconds", 120)
	v.SetDefault("engine.mode", "mock")

	v.SetDefault("data.players_path", "data/players.csv")
	v.SetDefault("data.matches_path", "data/matches.csv")
	v.SetDefault("data.web_cache_dir", "data/cache")
	v.SetDefault("data.web_rate_limit", 2.0)

	v.SetDefault("runs.dir", "runs")

	v.SetDefault("format.target", 21)
	v.SetDefault("format.cap", 30)
	v.SetDefault("format.best_of", 3)

	v.SetDefault("strategy.window", 30)
	v.SetDefault("strategy.budget", 60)
	v.SetDefault("strategy.l1_bound", 0.3)

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.port", 9090)
	v.SetDefault("metrics.path", "/metrics")
}
