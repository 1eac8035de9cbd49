package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config is the root configuration of the demo harness.
type Config struct {
	// Log holds logging configuration.
	Log LogConfig `mapstructure:"log"`

	// FrameBudgetFPS is the host frame rate; each work slice gets roughly
	// a quarter of one frame. Zero keeps the host default.
	FrameBudgetFPS int `mapstructure:"frame_budget_fps"`

	// Workload describes the simulated task mix.
	Workload WorkloadConfig `mapstructure:"workload"`
}

// LogConfig defines logger settings.
type LogConfig struct {
	// Level: debug, info, warn, error
	Level string `mapstructure:"level"`
	// Format: console or json
	Format string `mapstructure:"format"`
}

// WorkloadConfig sets how many tasks of each priority the run schedules and
// how much simulated work each one carries.
type WorkloadConfig struct {
	Immediate    int `mapstructure:"immediate"`
	UserBlocking int `mapstructure:"user_blocking"`
	Normal       int `mapstructure:"normal"`
	Idle         int `mapstructure:"idle"`

	// Steps is the number of slices each task needs to finish.
	Steps int `mapstructure:"steps"`
	// StepCostMS is the busy time one step burns, in milliseconds.
	StepCostMS int `mapstructure:"step_cost_ms"`
}

// DefaultConfig returns a Config populated with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
		FrameBudgetFPS: 0,
		Workload: WorkloadConfig{
			Immediate:    1,
			UserBlocking: 2,
			Normal:       4,
			Idle:         2,
			Steps:        3,
			StepCostMS:   2,
		},
	}
}

// LoadConfig reads configuration from the provided path (if non-empty),
// otherwise it searches the working directory and supports environment
// overrides with the prefix WEFT. Example: WEFT_LOG_LEVEL=debug.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("WEFT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	// seed defaults so env-only configs work
	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.format", cfg.Log.Format)
	v.SetDefault("frame_budget_fps", cfg.FrameBudgetFPS)
	v.SetDefault("workload.immediate", cfg.Workload.Immediate)
	v.SetDefault("workload.user_blocking", cfg.Workload.UserBlocking)
	v.SetDefault("workload.normal", cfg.Workload.Normal)
	v.SetDefault("workload.idle", cfg.Workload.Idle)
	v.SetDefault("workload.steps", cfg.Workload.Steps)
	v.SetDefault("workload.step_cost_ms", cfg.Workload.StepCostMS)

	if path == "" {
		if envPath := os.Getenv("WEFT_CONFIG"); envPath != "" {
			path = envPath
		}
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("weft")
		v.AddConfigPath(".")
	}

	// A missing config file is fine when no path was given; defaults and
	// env carry the run.
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.Workload.Steps <= 0 {
		return nil, fmt.Errorf("workload.steps must be positive, got %d", cfg.Workload.Steps)
	}
	if cfg.Workload.StepCostMS < 0 {
		return nil, fmt.Errorf("workload.step_cost_ms must not be negative, got %d", cfg.Workload.StepCostMS)
	}

	return cfg, nil
}

// SetupLogger builds a zap.Logger from the provided configuration. The caller
// should defer logger.Sync().
func SetupLogger(c LogConfig) (*zap.Logger, error) {
	level := zap.NewAtomicLevel()
	switch strings.ToLower(c.Level) {
	case "debug":
		level.SetLevel(zap.DebugLevel)
	case "info":
		level.SetLevel(zap.InfoLevel)
	case "warn", "warning":
		level.SetLevel(zap.WarnLevel)
	case "error":
		level.SetLevel(zap.ErrorLevel)
	default:
		level.SetLevel(zap.InfoLevel)
	}

	encCfg := zap.NewDevelopmentEncoderConfig()
	var encoder zapcore.Encoder
	if strings.ToLower(c.Format) == "json" {
		encCfg = zap.NewProductionEncoderConfig()
		encoder = zapcore.NewJSONEncoder(encCfg)
	} else {
		encoder = zapcore.NewConsoleEncoder(encCfg)
	}

	core := zapcore.NewCore(encoder, zapcore.AddSync(os.Stderr), level)
	return zap.New(core, zap.AddCaller()), nil
}
