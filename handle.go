package metricsink

import (
	"sync/atomic"

	"go.uber.org/zap"
)

// Handle is a scoped right to record metrics. Every handle counts towards the
// aggregator's live count until it is closed; closing the last one flushes.
type Handle struct {
	agg    *Aggregator
	closed atomic.Bool
}

// Record sets name to value, overwriting any earlier value for the same name.
// Values recorded through a closed handle are dropped. The closed check is
// made under the aggregator lock, so a Record racing Close either lands
// before the flush or is dropped.
func (h *Handle) Record(name string, value uint64) {
	if !h.agg.record(h, name, value) {
		h.agg.logger.Warn("Dropping metric recorded through a closed handle",
			zap.String("name", name), zap.Uint64("value", value))
	}
}

// Close releases the handle. If it was the last live handle the table is
// written out and any persistence failure is returned as a *FlushError.
// Only the first call has an effect; later calls return ErrHandleClosed.
func (h *Handle) Close() error {
	if !h.closed.CompareAndSwap(false, true) {
		return ErrHandleClosed
	}
	return h.agg.release()
}
