package cost

import "github.com/prometheus/client_golang/prometheus"

// Metrics mirrors the six cost fields as Prometheus counters. It is optional:
// the core never requires one to be attached, it only records into it when
// non-nil, the same opt-in pattern trillian's storage layer uses for its own
// monitoring counters.
type Metrics struct {
	Seeks               prometheus.Counter
	StorageWrittenBytes prometheus.Counter
	StorageLoadedBytes  prometheus.Counter
	LoadedBytes         prometheus.Counter
	HashByteCalls       prometheus.Counter
	HashNodeCalls       prometheus.Counter
}

// NewMetrics registers and returns a Metrics bound to reg. Passing a nil
// registry is valid and yields counters that are never collected.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Seeks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hads_seek_total",
			Help: "Total number of backend seeks performed by the HADS engine.",
		}),
		StorageWrittenBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hads_storage_written_bytes_total",
			Help: "Total bytes written to the backend.",
		}),
		StorageLoadedBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hads_storage_loaded_bytes_total",
			Help: "Total bytes loaded from the backend.",
		}),
		LoadedBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hads_loaded_bytes_total",
			Help: "Total bytes loaded and decoded into in-memory values.",
		}),
		HashByteCalls: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hads_hash_byte_calls_total",
			Help: "Total bytes fed into hash computations.",
		}),
		HashNodeCalls: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hads_hash_node_calls_total",
			Help: "Total number of node hash computations.",
		}),
	}
	if reg != nil {
		reg.MustRegister(
			m.Seeks, m.StorageWrittenBytes, m.StorageLoadedBytes,
			m.LoadedBytes, m.HashByteCalls, m.HashNodeCalls,
		)
	}
	return m
}

// Observe adds c's fields onto m's counters. A nil m is a no-op, so callers
// can hold an optional *Metrics without branching at every call site.
func (m *Metrics) Observe(c Cost) {
	if m == nil {
		return
	}
	m.Seeks.Add(float64(c.SeekCount))
	m.StorageWrittenBytes.Add(float64(c.StorageWrittenBytes))
	m.StorageLoadedBytes.Add(float64(c.StorageLoadedBytes))
	m.LoadedBytes.Add(float64(c.LoadedBytes))
	m.HashByteCalls.Add(float64(c.HashByteCalls))
	m.HashNodeCalls.Add(float64(c.HashNodeCalls))
}
