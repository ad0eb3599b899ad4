package infra

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Metrics provides lightweight observability without external dependencies.
// Uses atomic operations for thread-safety. It satisfies cache.Recorder.
type Metrics struct {
	// Cache counters
	cacheFetches  atomic.Uint64
	cacheErrors   atomic.Uint64
	cacheRetries  atomic.Uint64
	cacheDedups   atomic.Uint64
	cacheDiscards atomic.Uint64

	// Fetch latency tracking
	latencySumNs atomic.Int64
	latencyCount atomic.Uint64

	// Mutation counters
	ordersPlaced     atomic.Uint64
	positionsClosed  atomic.Uint64
	mutationsFailed  atomic.Uint64
	mutationsBlocked atomic.Uint64

	// Gauges
	activeConnections atomic.Int32

	// Per-resource fetch counts
	perResource sync.Map // string -> *atomic.Uint64
}

// GlobalMetrics is the singleton metrics instance.
var GlobalMetrics = &Metrics{}

// RecordFetch records a successful upstream fetch with its latency.
func (m *Metrics) RecordFetch(resource string, latency time.Duration) {
	m.cacheFetches.Add(1)
	m.latencySumNs.Add(latency.Nanoseconds())
	m.latencyCount.Add(1)
	m.counter(resource).Add(1)
}

// RecordFetchError records a fetch that failed after all retries.
func (m *Metrics) RecordFetchError(string) {
	m.cacheErrors.Add(1)
}

// RecordRetry records one retry attempt.
func (m *Metrics) RecordRetry(string) {
	m.cacheRetries.Add(1)
}

// RecordDedup records a caller that joined a fetch already in flight.
func (m *Metrics) RecordDedup(string) {
	m.cacheDedups.Add(1)
}

// RecordDiscard records an out-of-order result that was dropped.
func (m *Metrics) RecordDiscard(string) {
	m.cacheDiscards.Add(1)
}

// RecordOrderPlaced records an accepted market order.
func (m *Metrics) RecordOrderPlaced() {
	m.ordersPlaced.Add(1)
}

// RecordPositionClosed records an accepted close.
func (m *Metrics) RecordPositionClosed() {
	m.positionsClosed.Add(1)
}

// RecordMutationFailed records a backend rejection or session failure.
func (m *Metrics) RecordMutationFailed() {
	m.mutationsFailed.Add(1)
}

// RecordMutationBlocked records a request rejected by the in-flight guard.
func (m *Metrics) RecordMutationBlocked() {
	m.mutationsBlocked.Add(1)
}

// SetActiveConnections sets the current active connection count.
func (m *Metrics) SetActiveConnections(count int32) {
	m.activeConnections.Store(count)
}

// IncrementConnections increments active connections by 1.
func (m *Metrics) IncrementConnections() {
	m.activeConnections.Add(1)
}

// DecrementConnections decrements active connections by 1.
func (m *Metrics) DecrementConnections() {
	m.activeConnections.Add(-1)
}

func (m *Metrics) counter(resource string) *atomic.Uint64 {
	if c, ok := m.perResource.Load(resource); ok {
		return c.(*atomic.Uint64)
	}
	c, _ := m.perResource.LoadOrStore(resource, &atomic.Uint64{})
	return c.(*atomic.Uint64)
}

// ResourceCount is the fetch count of one named resource.
type ResourceCount struct {
	Resource string `json:"resource"`
	Fetches  uint64 `json:"fetches"`
}

// MetricsSnapshot is a point-in-time view of all metrics.
type MetricsSnapshot struct {
	CacheFetches      uint64          `json:"cacheFetches"`
	CacheErrors       uint64          `json:"cacheErrors"`
	CacheRetries      uint64          `json:"cacheRetries"`
	CacheDedups       uint64          `json:"cacheDedups"`
	CacheDiscards     uint64          `json:"cacheDiscards"`
	AvgLatencyNs      int64           `json:"avgLatencyNs"`
	OrdersPlaced      uint64          `json:"ordersPlaced"`
	PositionsClosed   uint64          `json:"positionsClosed"`
	MutationsFailed   uint64          `json:"mutationsFailed"`
	MutationsBlocked  uint64          `json:"mutationsBlocked"`
	ActiveConnections int32           `json:"activeConnections"`
	Resources         []ResourceCount `json:"resources"`
	Timestamp         time.Time       `json:"timestamp"`
}

// Snapshot returns current metrics as a snapshot.
func (m *Metrics) Snapshot() MetricsSnapshot {
	var avgLatency int64
	count := m.latencyCount.Load()
	if count > 0 {
		avgLatency = m.latencySumNs.Load() / int64(count)
	}

	var resources []ResourceCount
	m.perResource.Range(func(k, v any) bool {
		resources = append(resources, ResourceCount{Resource: k.(string), Fetches: v.(*atomic.Uint64).Load()})
		return true
	})
	sort.Slice(resources, func(i, j int) bool { return resources[i].Resource < resources[j].Resource })

	return MetricsSnapshot{
		CacheFetches:      m.cacheFetches.Load(),
		CacheErrors:       m.cacheErrors.Load(),
		CacheRetries:      m.cacheRetries.Load(),
		CacheDedups:       m.cacheDedups.Load(),
		CacheDiscards:     m.cacheDiscards.Load(),
		AvgLatencyNs:      avgLatency,
		OrdersPlaced:      m.ordersPlaced.Load(),
		PositionsClosed:   m.positionsClosed.Load(),
		MutationsFailed:   m.mutationsFailed.Load(),
		MutationsBlocked:  m.mutationsBlocked.Load(),
		ActiveConnections: m.activeConnections.Load(),
		Resources:         resources,
		Timestamp:         time.Now(),
	}
}

// Reset clears all metrics (for testing).
func (m *Metrics) Reset() {
	m.cacheFetches.Store(0)
	m.cacheErrors.Store(0)
	m.cacheRetries.Store(0)
	m.cacheDedups.Store(0)
	m.cacheDiscards.Store(0)
	m.latencySumNs.Store(0)
	m.latencyCount.Store(0)
	m.ordersPlaced.Store(0)
	m.positionsClosed.Store(0)
	m.mutationsFailed.Store(0)
	m.mutationsBlocked.Store(0)
	m.activeConnections.Store(0)
	m.perResource.Range(func(k, _ any) bool {
		m.perResource.Delete(k)
		return true
	})
}
