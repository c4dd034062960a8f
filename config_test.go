package metricsink_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/BurntSushi/toml"
	"github.com/nikiz24/metricsink"
	"github.com/stretchr/testify/require"
)

func TestConfig_Parse(t *testing.T) {
	// Parse configuration.
	var c metricsink.Config
	_, err := toml.Decode(`
path = "out/metrics.csv"
log-level = "debug"
`, &c)
	require.NoError(t, err)

	require.Equal(t, "out/metrics.csv", c.Path)
	require.Equal(t, "debug", c.LogLevel)
}

func TestConfig_Validate(t *testing.T) {
	// DefaultConfig must validate correctly.
	require.NoError(t, metricsink.DefaultConfig().Validate())

	// Empty path without a sink is invalid.
	c := metricsink.DefaultConfig()
	c.Path = ""
	require.ErrorIs(t, c.Validate(), metricsink.ErrNoPath)

	// A sink stands in for the path.
	c.Sink = metricsink.SinkFunc(func([]metricsink.Metric) error { return nil })
	require.NoError(t, c.Validate())

	// Unknown log levels are invalid.
	c = metricsink.DefaultConfig()
	c.LogLevel = "chatty"
	require.Error(t, c.Validate())
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()

	path := filepath.Join(dir, "metricsink.toml")
	require.NoError(t, os.WriteFile(path, []byte(`log-level = "warn"`+"\n"), 0o644))

	c, err := metricsink.LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, metricsink.DefaultPath, c.Path)
	require.Equal(t, "warn", c.LogLevel)

	bad := filepath.Join(dir, "bad.toml")
	require.NoError(t, os.WriteFile(bad, []byte(`path = ""`+"\n"), 0o644))
	_, err = metricsink.LoadConfig(bad)
	require.ErrorIs(t, err, metricsink.ErrNoPath)

	_, err = metricsink.LoadConfig(filepath.Join(dir, "missing.toml"))
	require.Error(t, err)
}

func TestNewAggregator_InvalidConfig(t *testing.T) {
	_, err := metricsink.NewAggregator(metricsink.Config{})
	require.ErrorIs(t, err, metricsink.ErrNoPath)
}

func TestNewAggregator_LogLevel(t *testing.T) {
	c := metricsink.DefaultConfig()
	c.Path = filepath.Join(t.TempDir(), metricsink.DefaultPath)
	c.LogLevel = "error"

	agg, err := metricsink.NewAggregator(c)
	require.NoError(t, err)

	h := agg.Acquire()
	h.Record("x", 1)
	require.NoError(t, h.Close())
}
