package noteapi

import (
	"sync/atomic"
	"time"
)

// MetricID indexes one counter in [Metrics].
type MetricID uint16

const (
	// MetricIssueSuccess counts freshly issued token pairs.
	MetricIssueSuccess MetricID = iota
	// MetricRotateSuccess counts successful rotations.
	MetricRotateSuccess
	// MetricRotateFailure counts rotations rejected for any reason.
	MetricRotateFailure
	// MetricReuseDetected counts presentations of already-rotated tokens.
	MetricReuseDetected
	// MetricSessionCeilingHit counts rotations rejected by the absolute
	// session age ceiling.
	MetricSessionCeilingHit
	// MetricInvalidateAll counts whole-user invalidation calls.
	MetricInvalidateAll
	// MetricAbuseBlockApplied counts IP blocks applied by a guard.
	MetricAbuseBlockApplied
	// MetricCacheFailOpen counts abuse checks answered permissively because
	// the cache was unreachable.
	MetricCacheFailOpen
	// MetricBreakerOpened counts breaker transitions into the open state.
	MetricBreakerOpened
	// MetricBreakerClosed counts breaker recoveries into the closed state.
	MetricBreakerClosed
	// MetricRotateLatency is the rotation latency histogram.
	MetricRotateLatency
	metricIDCount
)

const (
	histBucketCount = 8
	cacheLineSize   = 64
)

// Counters sit on their own cache lines so concurrent increments of
// different metrics never contend.
type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

type metricHistogram struct {
	buckets [histBucketCount]uint64
}

// Metrics is a lock-free counter set. A nil or disabled Metrics accepts all
// calls and records nothing.
type Metrics struct {
	enabled    bool
	counters   [metricIDCount]paddedCounter
	histograms [metricIDCount]metricHistogram
}

// MetricsSnapshot is a point-in-time copy of every counter.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{enabled: cfg.Enabled}
}

func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

// Inc adds one to the counter.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

// Observe records a rotation duration. Only MetricRotateLatency carries a
// histogram.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || !m.enabled || id != MetricRotateLatency {
		return
	}
	atomic.AddUint64(&m.histograms[id].buckets[bucketIndex(d)], 1)
}

// Value reads a single counter.
func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

// Snapshot copies all counters and histograms at once.
func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil || !m.enabled {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}

	s := MetricsSnapshot{
		Counters:   make(map[MetricID]uint64, int(metricIDCount)),
		Histograms: make(map[MetricID][]uint64, 1),
	}
	for id := MetricID(0); id < metricIDCount; id++ {
		s.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}

	buckets := make([]uint64, histBucketCount)
	for i := 0; i < histBucketCount; i++ {
		buckets[i] = atomic.LoadUint64(&m.histograms[MetricRotateLatency].buckets[i])
	}
	s.Histograms[MetricRotateLatency] = buckets

	return s
}

func bucketIndex(d time.Duration) int {
	ms := d.Milliseconds()

	switch {
	case ms <= 5:
		return 0
	case ms <= 10:
		return 1
	case ms <= 25:
		return 2
	case ms <= 50:
		return 3
	case ms <= 100:
		return 4
	case ms <= 250:
		return 5
	case ms <= 500:
		return 6
	default:
		return 7
	}
}
