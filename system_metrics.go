package metricsink

import (
	"os"
	"runtime"
	"strconv"
	"strings"
)

// Names recorded by RecordRuntimeMetrics
const (
	MetricMemoryAllocBytes      = "memory_alloc_bytes"
	MetricMemorySysBytes        = "memory_sys_bytes"
	MetricMemoryHeapInuseBytes  = "memory_heap_inuse_bytes"
	MetricMemoryStackInuseBytes = "memory_stack_inuse_bytes"
	MetricGoroutines            = "goroutines_num"
	MetricGCRuns                = "gc_runs_total"
	MetricGCPauseTotalNs        = "gc_pause_total_ns"
	MetricMemoryRSSBytes        = "memory_rss_bytes"
	MetricFileDescriptors       = "file_descriptors_num"
)

// RecordRuntimeMetrics records Go runtime memory and GC figures through h.
// RSS and open file descriptors are added where /proc is available.
func RecordRuntimeMetrics(h *Handle) {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	h.Record(MetricMemoryAllocBytes, ms.Alloc)
	h.Record(MetricMemorySysBytes, ms.Sys)
	h.Record(MetricMemoryHeapInuseBytes, ms.HeapInuse)
	h.Record(MetricMemoryStackInuseBytes, ms.StackInuse)
	h.Record(MetricGoroutines, uint64(runtime.NumGoroutine()))
	h.Record(MetricGCRuns, uint64(ms.NumGC))
	h.Record(MetricGCPauseTotalNs, ms.PauseTotalNs)

	if rss, ok := getProcessRSS(); ok {
		h.Record(MetricMemoryRSSBytes, rss)
	}
	if fdCount, ok := getOpenFileDescriptors(); ok {
		h.Record(MetricFileDescriptors, fdCount)
	}
}

// getProcessRSS returns the RSS (Resident Set Size) memory usage in bytes,
// or false when /proc/self/status is unavailable or has no VmRSS line.
func getProcessRSS() (uint64, bool) {
	data, err := os.ReadFile("/proc/self/status")
	if err != nil {
		return 0, false
	}
	return parseVmRSS(string(data))
}

func parseVmRSS(status string) (uint64, bool) {
	for _, line := range strings.Split(status, "\n") {
		if !strings.HasPrefix(line, "VmRSS:") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			return 0, false
		}
		kb, err := strconv.ParseUint(fields[1], 10, 64)
		if err != nil {
			return 0, false
		}
		return kb * 1024, true
	}
	return 0, false
}

// getOpenFileDescriptors returns the number of open file descriptors
func getOpenFileDescriptors() (uint64, bool) {
	entries, err := os.ReadDir("/proc/self/fd")
	if err != nil {
		return 0, false
	}
	return uint64(len(entries)), true
}
