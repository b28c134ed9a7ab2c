package config

import (
	"fmt"
	"runtime"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete application configuration
type Config struct {
	Model      ModelConfig      `mapstructure:"model"`
	Sweep      SweepConfig      `mapstructure:"sweep"`
	Engine     EngineConfig     `mapstructure:"engine"`
	Checkpoint CheckpointConfig `mapstructure:"checkpoint"`
	Telegram   TelegramConfig   `mapstructure:"telegram"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// ModelConfig holds the SEIR parameter set
type ModelConfig struct {
	Population      int64   `mapstructure:"population"`
	InitialInfected int64   `mapstructure:"initial_infected"`
	Beta            float64 `mapstructure:"beta"`
	Sigma           float64 `mapstructure:"sigma"`
	Gamma           float64 `mapstructure:"gamma"`
}

// SweepConfig holds the Monte-Carlo study configuration
type SweepConfig struct {
	Horizon      float64 `mapstructure:"horizon"`
	Replications int     `mapstructure:"replications"`
	Threshold    int64   `mapstructure:"threshold"`
	CoverageFrom float64 `mapstructure:"coverage_from"`
	CoverageTo   float64 `mapstructure:"coverage_to"`
	CoverageStep float64 `mapstructure:"coverage_step"`
	Parallelism  int     `mapstructure:"parallelism"`
	Seed         uint64  `mapstructure:"seed"`
}

// EngineConfig selects and tunes the jump-process stepper
type EngineConfig struct {
	// Method is "direct" (exact SSA) or "tauleap" (adaptive leaping).
	Method   string  `mapstructure:"method"`
	Epsilon  float64 `mapstructure:"epsilon"`
	MaxSteps int     `mapstructure:"max_steps"`
}

// CheckpointConfig holds per-coverage-value result persistence configuration
type CheckpointConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	DBPath  string `mapstructure:"db_path"`
	SweepID string `mapstructure:"sweep_id"`
}

// TelegramConfig holds completion-notification configuration
type TelegramConfig struct {
	BotToken       string        `mapstructure:"bot_token"`
	ChatID         string        `mapstructure:"chat_id"`
	Enabled        bool          `mapstructure:"enabled"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryDelayBase time.Duration `mapstructure:"retry_delay_base"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from file and environment variables.
// An empty path skips the file and uses defaults plus environment only.
func Load(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("SEIRSWEEP")
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// setDefaults configures default values for all configuration options
func setDefaults(v *viper.Viper) {
	// Model defaults: R0 = beta/(sigma+gamma) = 17.5
	v.SetDefault("model.population", 1_000_000)
	v.SetDefault("model.initial_infected", 1)
	v.SetDefault("model.beta", 5.0)
	v.SetDefault("model.sigma", 1.0/7.0)
	v.SetDefault("model.gamma", 1.0/7.0)

	// Sweep defaults
	v.SetDefault("sweep.horizon", 1000.0)
	v.SetDefault("sweep.replications", 1000)
	v.SetDefault("sweep.threshold", 10)
	v.SetDefault("sweep.coverage_from", 0.0)
	v.SetDefault("sweep.coverage_to", 1.0)
	v.SetDefault("sweep.coverage_step", 0.1)
	v.SetDefault("sweep.parallelism", defaultParallelism())
	v.SetDefault("sweep.seed", 1)

	// Engine defaults
	v.SetDefault("engine.method", "tauleap")
	v.SetDefault("engine.epsilon", 0.03)
	v.SetDefault("engine.max_steps", 0)

	// Checkpoint defaults
	v.SetDefault("checkpoint.enabled", false)
	v.SetDefault("checkpoint.db_path", "./data/seirsweep.db")
	v.SetDefault("checkpoint.sweep_id", "")

	// Telegram defaults
	v.SetDefault("telegram.enabled", false)
	v.SetDefault("telegram.max_retries", 3)
	v.SetDefault("telegram.retry_delay_base", "1s")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// defaultParallelism leaves one CPU for the aggregation loop and the OS.
func defaultParallelism() int {
	if n := runtime.NumCPU() - 1; n > 1 {
		return n
	}
	return 1
}

// Validate checks that all configuration values are valid
func (c *Config) Validate() error {
	// Validate Model config
	if c.Model.Population < 1 {
		return fmt.Errorf("model.population must be at least 1")
	}
	if c.Model.InitialInfected < 0 {
		return fmt.Errorf("model.initial_infected must be non-negative")
	}
	if c.Model.Population < c.Model.InitialInfected+1 {
		return fmt.Errorf("model.population must be at least initial_infected + 1")
	}
	if c.Model.Beta < 0 || c.Model.Sigma < 0 || c.Model.Gamma < 0 {
		return fmt.Errorf("model rates must be non-negative")
	}
	if c.Model.Sigma+c.Model.Gamma == 0 {
		return fmt.Errorf("model.sigma and model.gamma must not both be zero")
	}

	// Validate Sweep config
	if c.Sweep.Replications < 1 {
		return fmt.Errorf("sweep.replications must be at least 1")
	}
	if c.Sweep.Threshold < 0 {
		return fmt.Errorf("sweep.threshold must be non-negative")
	}
	if c.Sweep.CoverageFrom < 0 || c.Sweep.CoverageTo > 1 {
		return fmt.Errorf("sweep coverage range must lie in [0, 1]")
	}
	if c.Sweep.CoverageTo < c.Sweep.CoverageFrom {
		return fmt.Errorf("sweep.coverage_to must not be below sweep.coverage_from")
	}
	if c.Sweep.CoverageStep <= 0 {
		return fmt.Errorf("sweep.coverage_step must be positive")
	}
	if c.Sweep.Parallelism < 1 {
		return fmt.Errorf("sweep.parallelism must be at least 1")
	}

	// Validate Engine config
	if c.Engine.Method != "direct" && c.Engine.Method != "tauleap" {
		return fmt.Errorf("engine.method must be one of: direct, tauleap")
	}
	if c.Engine.Epsilon <= 0 || c.Engine.Epsilon >= 1 {
		return fmt.Errorf("engine.epsilon must be in (0, 1)")
	}
	if c.Engine.MaxSteps < 0 {
		return fmt.Errorf("engine.max_steps must be non-negative")
	}

	// Validate Checkpoint config
	if c.Checkpoint.Enabled && c.Checkpoint.DBPath == "" {
		return fmt.Errorf("checkpoint.db_path is required when checkpointing is enabled")
	}

	// Validate Telegram config
	if c.Telegram.Enabled {
		if c.Telegram.BotToken == "" {
			return fmt.Errorf("telegram.bot_token is required when telegram is enabled")
		}
		if c.Telegram.ChatID == "" {
			return fmt.Errorf("telegram.chat_id is required when telegram is enabled")
		}
	}

	// Validate Logging config
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	return nil
}
