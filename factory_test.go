package metricsink

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

// resetGlobal drops the process-wide aggregator when the test ends so the
// next run starts uninitialized again.
func resetGlobal(t *testing.T) {
	t.Helper()
	t.Cleanup(func() {
		initOnce = sync.Once{}
		globalAggregator = nil
	})
}

func TestGlobalAggregator(t *testing.T) {
	resetGlobal(t)

	core, logs := observer.New(zap.InfoLevel)
	path := filepath.Join(t.TempDir(), DefaultPath)
	require.NoError(t, Init(Config{Path: path, Logger: zap.New(core)}))
	require.ErrorIs(t, Init(DefaultConfig()), ErrAlreadyInitialized)
	require.Equal(t, 1, logs.FilterMessage("metricsink initialized").Len())

	// Concurrent first users all observe the same instance.
	const callers = 16
	seen := make([]*Aggregator, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			seen[i] = Default()
		}(i)
	}
	wg.Wait()
	for _, agg := range seen {
		require.Same(t, Default(), agg)
	}

	a := Acquire()
	a.Record("requests", 10)

	err := Scope(func(h *Handle) {
		h.Record("errors", 2)
	})
	require.NoError(t, err)

	status := GetStatus()
	require.Equal(t, uint64(1), status["live"])
	require.Equal(t, 2, status["metrics"])
	require.Equal(t, path, status["path"])
	require.Equal(t, false, status["poisoned"])

	_, err = os.Stat(path)
	require.True(t, os.IsNotExist(err))

	require.NoError(t, a.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "errors,2\nrequests,10\n", string(data))
}

func TestInit_AfterDefaultKeepsExisting(t *testing.T) {
	resetGlobal(t)
	chdir(t, t.TempDir())

	agg := Default()
	require.Equal(t, DefaultPath, agg.config.Path)

	err := Init(Config{Path: "other.csv", LogLevel: "debug"})
	require.ErrorIs(t, err, ErrAlreadyInitialized)
	require.Same(t, agg, Default())
}

func TestInit_InvalidConfig(t *testing.T) {
	resetGlobal(t)

	require.ErrorIs(t, Init(Config{}), ErrNoPath)

	// A rejected config does not consume the one-time initialization.
	core, _ := observer.New(zap.InfoLevel)
	path := filepath.Join(t.TempDir(), DefaultPath)
	require.NoError(t, Init(Config{Path: path, Logger: zap.New(core)}))
	require.Equal(t, path, Default().config.Path)
}

// chdir changes the working directory for the duration of the test, like
// testing.T.Chdir (Go 1.24+), restoring the previous directory on cleanup.
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { require.NoError(t, os.Chdir(prev)) })
}
