package metricsink

import (
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// Metric is a single named value from the aggregation table
type Metric struct {
	Name  string
	Value uint64
}

// Aggregator is a lock-protected metrics table paired with a live-handle
// counter. The handle that brings the counter back to zero flushes the table.
type Aggregator struct {
	config Config
	sink   Sink
	logger *zap.Logger

	// mutex guards everything below.
	mutex    sync.Mutex
	live     uint64
	table    map[string]uint64
	poisoned bool
}

// NewAggregator creates a standalone aggregator. Most callers want the
// process-wide instance returned by Default instead.
func NewAggregator(config Config) (*Aggregator, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	logger, err := config.logger()
	if err != nil {
		return nil, err
	}

	sink := config.Sink
	if sink == nil {
		sink = NewFileSink(config.Path, logger)
	}

	return &Aggregator{
		config: config,
		sink:   sink,
		logger: logger,
		table:  make(map[string]uint64),
	}, nil
}

// Acquire registers a new live handle. It panics with ErrPoisoned if an
// earlier critical section panicked.
func (a *Aggregator) Acquire() *Handle {
	var live uint64
	err := a.critical(func() error {
		a.live++
		live = a.live
		return nil
	})
	if err != nil {
		panic(err)
	}

	a.logger.Debug("Acquired metrics handle", zap.Uint64("live", live))
	return &Handle{agg: a}
}

// Scope acquires a handle, runs fn with it and closes the handle on every
// exit path. A panic in fn propagates after the handle has been released.
func (a *Aggregator) Scope(fn func(h *Handle)) (err error) {
	h := a.Acquire()
	defer func() {
		if cerr := h.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	fn(h)
	return nil
}

// Live returns the number of handles that have not been closed yet
func (a *Aggregator) Live() uint64 {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	return a.live
}

// Snapshot returns the current table sorted by name
func (a *Aggregator) Snapshot() []Metric {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	return a.sortedLocked()
}

// record reports false when h was closed before the lock was taken.
func (a *Aggregator) record(h *Handle, name string, value uint64) bool {
	recorded := false
	err := a.critical(func() error {
		if h.closed.Load() {
			return nil
		}
		a.table[name] = value
		recorded = true
		return nil
	})
	if err != nil {
		panic(err)
	}
	return recorded
}

// release drops one live handle and flushes when it was the last one.
// The decrement sticks even when the flush fails.
func (a *Aggregator) release() error {
	return a.critical(func() error {
		if a.live == 0 {
			return fmt.Errorf("release with no live handles")
		}
		a.live--
		if a.live > 0 {
			a.logger.Debug("Released metrics handle", zap.Uint64("live", a.live))
			return nil
		}
		return a.flushLocked()
	})
}

func (a *Aggregator) flushLocked() error {
	metrics := a.sortedLocked()
	if err := a.sink.WriteMetrics(metrics); err != nil {
		a.logger.Error("Failed to flush metrics",
			zap.String("path", a.config.Path), zap.Error(err))
		return &FlushError{Path: a.config.Path, Err: err}
	}

	a.logger.Info("Flushed metrics",
		zap.String("path", a.config.Path), zap.Int("metrics", len(metrics)))
	return nil
}

func (a *Aggregator) sortedLocked() []Metric {
	metrics := make([]Metric, 0, len(a.table))
	for name, value := range a.table {
		metrics = append(metrics, Metric{Name: name, Value: value})
	}
	sort.Slice(metrics, func(i, j int) bool { return metrics[i].Name < metrics[j].Name })
	return metrics
}

// critical runs fn with the mutex held. A panic escaping fn leaves the
// table in an unknown state, so the aggregator is marked poisoned before the
// panic continues and every later critical section fails with ErrPoisoned.
func (a *Aggregator) critical(fn func() error) error {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	if a.poisoned {
		return ErrPoisoned
	}

	defer func() {
		if r := recover(); r != nil {
			a.poisoned = true
			panic(r)
		}
	}()

	return fn()
}
