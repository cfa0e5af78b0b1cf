// Package config loads persistent diffai settings from .diffai.yaml and
// DIFFAI_* environment variables. CLI flags override everything here;
// resolution happens in the command layer.
package config

import (
	"strings"

	"github.com/spf13/viper"
)

// Config represents the persistent diffai configuration
type Config struct {
	// Epsilon is the default numeric comparison tolerance. Negative
	// means unset (exact comparison).
	Epsilon float64 `json:"epsilon" mapstructure:"epsilon"`

	// Output is the default output format: human, json, or yaml
	Output string `json:"output" mapstructure:"output"`

	// Color controls human-format coloring: auto, always, or never
	Color string `json:"color" mapstructure:"color"`

	// IgnoreKeysRegex is the default key-pruning pattern
	IgnoreKeysRegex string `json:"ignoreKeysRegex" mapstructure:"ignoreKeysRegex"`

	// ArrayIDKey is the default array identity key
	ArrayIDKey string `json:"arrayIdKey" mapstructure:"arrayIdKey"`

	// MLAnalysis enables the result classifiers for tensor inputs
	MLAnalysis bool `json:"mlAnalysis" mapstructure:"mlAnalysis"`

	Logging LoggingConfig `json:"logging" mapstructure:"logging"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Format string `json:"format" mapstructure:"format"`
	Level  string `json:"level" mapstructure:"level"`
}

// DefaultConfig returns the built-in defaults
func DefaultConfig() *Config {
	return &Config{
		Epsilon:    -1,
		Output:     "human",
		Color:      "auto",
		MLAnalysis: true,
		Logging: LoggingConfig{
			Format: "human",
			Level:  "info",
		},
	}
}

// EpsilonSet reports whether the config carries an explicit tolerance.
func (c *Config) EpsilonSet() bool {
	return c.Epsilon >= 0
}

// LoadConfig loads configuration from .diffai.yaml, searching dir then
// the home directory, with DIFFAI_* environment variables layered on
// top. A missing file yields the defaults.
func LoadConfig(dir string) (*Config, error) {
	v := viper.New()

	def := DefaultConfig()
	v.SetDefault("epsilon", def.Epsilon)
	v.SetDefault("output", def.Output)
	v.SetDefault("color", def.Color)
	v.SetDefault("mlAnalysis", def.MLAnalysis)
	v.SetDefault("logging.format", def.Logging.Format)
	v.SetDefault("logging.level", def.Logging.Level)

	v.SetConfigName(".diffai")
	v.SetConfigType("yaml")
	if dir != "" {
		v.AddConfigPath(dir)
	}
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME")

	v.SetEnvPrefix("DIFFAI")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
