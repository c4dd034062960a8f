package metricsink

import (
	"fmt"

	"github.com/BurntSushi/toml"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// DefaultPath is where the table is written unless configured otherwise
const DefaultPath = "metrics.csv"

// Config defines the configuration for an aggregator
type Config struct {
	// Destination of the flushed table, relative to the working directory
	Path string `toml:"path"`

	// Level for the logger built when Logger is nil; empty disables logging
	LogLevel string `toml:"log-level"`

	// Optional logger
	Logger *zap.Logger `toml:"-"`

	// Optional sink replacing the file at Path
	Sink Sink `toml:"-"`
}

// DefaultConfig returns a default configuration
func DefaultConfig() Config {
	return Config{
		Path: DefaultPath,
	}
}

// LoadConfig reads a TOML configuration file on top of DefaultConfig.
func LoadConfig(path string) (Config, error) {
	config := DefaultConfig()
	if _, err := toml.DecodeFile(path, &config); err != nil {
		return Config{}, fmt.Errorf("failed to decode metrics config %q: %w", path, err)
	}
	if err := config.Validate(); err != nil {
		return Config{}, err
	}
	return config, nil
}

// Validate returns an error if the config is invalid.
func (c Config) Validate() error {
	if c.Path == "" && c.Sink == nil {
		return ErrNoPath
	}
	if c.LogLevel != "" {
		if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
			return fmt.Errorf("invalid log-level %q: %w", c.LogLevel, err)
		}
	}
	return nil
}

func (c Config) logger() (*zap.Logger, error) {
	if c.Logger != nil {
		return c.Logger, nil
	}
	if c.LogLevel == "" {
		return zap.NewNop(), nil
	}

	level, err := zap.ParseAtomicLevel(c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid log-level %q: %w", c.LogLevel, err)
	}
	zc := zap.NewProductionConfig()
	zc.Level = level
	logger, err := zc.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return logger.Named("metricsink"), nil
}
