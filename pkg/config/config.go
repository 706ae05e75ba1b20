// Package config loads and validates the YAML configuration that
// describes the brain, queues, and adapter wiring, per spec §6.
// Grounded on lookatitude-beluga-ai's viper-based config loader
// idiom: a typed struct decoded via viper.Unmarshal, with BUDDY_HOME/
// BUDDY_CONFIG env var resolution standing in for that repo's own
// env-prefixed settings.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// BrainConfig mirrors spec §6's `brain:` block.
type BrainConfig struct {
	ModelID           string  `mapstructure:"model_id"`
	SystemInstruction string  `mapstructure:"system_instruction"`
	Temperature       float64 `mapstructure:"temperature"`
	ArchivistInterval int     `mapstructure:"archivist_interval"`
	LightOffTimeout   int     `mapstructure:"light_off_timeout"`
	ProactiveLighting bool    `mapstructure:"proactive_lighting"`
}

// QueuesConfig mirrors spec §6's `queues:` block.
type QueuesConfig struct {
	InputMaxSize     int `mapstructure:"input_maxsize"`
	InterruptMaxSize int `mapstructure:"interrupt_maxsize"`
}

// AdapterEntry is one element of adapters.input[]/adapters.output[]:
// a logical class name plus its free-form implementation config.
type AdapterEntry struct {
	Class  string         `mapstructure:"class"`
	Config map[string]any `mapstructure:"config"`
}

// AdaptersConfig mirrors spec §6's `adapters:` block.
type AdaptersConfig struct {
	Input  []AdapterEntry `mapstructure:"input"`
	Output []AdapterEntry `mapstructure:"output"`
}

// Config is the root of the YAML configuration document.
type Config struct {
	Brain    BrainConfig    `mapstructure:"brain"`
	Queues   QueuesConfig   `mapstructure:"queues"`
	Adapters AdaptersConfig `mapstructure:"adapters"`
}

// ArchivistInterval returns the brain's archivist interval as a Duration.
func (c Config) ArchivistInterval() time.Duration {
	return time.Duration(c.Brain.ArchivistInterval) * time.Second
}

// LightOffTimeout returns the brain's light-off timeout as a Duration.
func (c Config) LightOffTimeout() time.Duration {
	return time.Duration(c.Brain.LightOffTimeout) * time.Second
}

// defaults applied before the file is read, matching the original's
// conservative fallbacks (15 minute distillation cadence, modest
// bounded queues).
func setDefaults(v *viper.Viper) {
	v.SetDefault("brain.temperature", 0.7)
	v.SetDefault("brain.archivist_interval", 900)
	v.SetDefault("brain.light_off_timeout", 180)
	v.SetDefault("brain.proactive_lighting", true)
	v.SetDefault("queues.input_maxsize", 256)
	v.SetDefault("queues.interrupt_maxsize", 32)
}

// Load resolves BUDDY_CONFIG (absolute, or relative to BUDDY_HOME) and
// decodes it into a Config. Unknown top-level keys are tolerated
// (viper ignores them); missing required fields (`brain.model_id`)
// are a fatal, fail-fast error per spec §7's Configuration error
// taxonomy.
func Load() (*Config, error) {
	path, err := ResolveConfigPath()
	if err != nil {
		return nil, err
	}
	return LoadFile(path)
}

// ResolveConfigPath implements spec §6's env var resolution:
// BUDDY_CONFIG is absolute or relative to BUDDY_HOME (BUDDY_HOME
// defaults to the current working directory).
func ResolveConfigPath() (string, error) {
	configPath := os.Getenv("BUDDY_CONFIG")
	if configPath == "" {
		return "", fmt.Errorf("config: BUDDY_CONFIG is not set")
	}
	if filepath.IsAbs(configPath) {
		return configPath, nil
	}

	home := os.Getenv("BUDDY_HOME")
	if home == "" {
		var err error
		home, err = os.Getwd()
		if err != nil {
			return "", fmt.Errorf("config: resolving BUDDY_HOME: %w", err)
		}
	}
	return filepath.Join(home, configPath), nil
}

// LoadFile reads and validates the YAML document at path.
func LoadFile(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: decoding %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return &cfg, nil
}

// Validate enforces the fail-fast invariants spec §7 requires at
// load time: a model_id is mandatory, and every adapter entry must
// name a class.
func (c Config) Validate() error {
	if c.Brain.ModelID == "" {
		return fmt.Errorf("brain.model_id is required")
	}
	for i, a := range c.Adapters.Input {
		if a.Class == "" {
			return fmt.Errorf("adapters.input[%d]: class is required", i)
		}
	}
	for i, a := range c.Adapters.Output {
		if a.Class == "" {
			return fmt.Errorf("adapters.output[%d]: class is required", i)
		}
	}
	return nil
}
