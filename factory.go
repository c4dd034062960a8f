package metricsink

import (
	"sync"

	"go.uber.org/zap"
)

// Global aggregator instance
var (
	globalAggregator *Aggregator
	initOnce         sync.Once
)

// Init configures the process-wide aggregator. It must run before the first
// Acquire anywhere in the process; afterwards it returns ErrAlreadyInitialized.
// If the aggregator cannot be built the default configuration is installed
// and the error is returned.
func Init(config Config) error {
	if err := config.Validate(); err != nil {
		return err
	}

	var (
		initErr   error
		installed bool
	)
	initOnce.Do(func() {
		agg, err := NewAggregator(config)
		if err != nil {
			initErr = err
			globalAggregator = newDefaultAggregator()
			return
		}
		globalAggregator = agg
		installed = true
	})
	if initErr != nil {
		return initErr
	}
	if !installed {
		return ErrAlreadyInitialized
	}

	globalAggregator.logger.Info("metricsink initialized", zap.String("path", config.Path))
	return nil
}

// Default returns the process-wide aggregator, creating it with
// DefaultConfig on first use.
func Default() *Aggregator {
	initOnce.Do(func() {
		globalAggregator = newDefaultAggregator()
	})
	return globalAggregator
}

func newDefaultAggregator() *Aggregator {
	agg, err := NewAggregator(DefaultConfig())
	if err != nil {
		panic(err)
	}
	return agg
}

// Acquire returns a new handle on the process-wide aggregator
func Acquire() *Handle {
	return Default().Acquire()
}

// Scope runs fn with a handle on the process-wide aggregator and releases it
// on every exit path.
func Scope(fn func(h *Handle)) error {
	return Default().Scope(fn)
}

// GetStatus returns the current status of the process-wide aggregator
func GetStatus() map[string]interface{} {
	agg := Default()

	agg.mutex.Lock()
	defer agg.mutex.Unlock()

	return map[string]interface{}{
		"path":     agg.config.Path,
		"live":     agg.live,
		"metrics":  len(agg.table),
		"poisoned": agg.poisoned,
	}
}
