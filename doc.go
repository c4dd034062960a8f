// Package metricsink provides a process-wide metrics aggregator whose contents
// are persisted once, when the last interested party lets go of it.
//
// Call sites acquire a Handle, record named values through it and close it.
// Every acquisition bumps a shared live count; the Close that brings the count
// back to zero writes the whole table to disk as "name,value" lines sorted by
// name. Repeated names overwrite each other (last write wins) and the table is
// kept after a flush, so a later cycle persists everything recorded so far.
//
// Basic usage:
//
//	h := metricsink.Acquire()
//	defer func() {
//	  if err := h.Close(); err != nil {
//	    log.Fatal(err)
//	  }
//	}()
//
//	h.Record("requests", 10)
//	h.Record("errors", 2)
//
// Or, with the release guaranteed on every exit path:
//
//	err := metricsink.Scope(func(h *metricsink.Handle) {
//	  h.Record("requests", 10)
//	})
package metricsink
