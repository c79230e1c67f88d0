package fitAuth

import (
	"sync/atomic"
	"time"
)

// MetricID identifies one session lifecycle counter or histogram.
type MetricID uint16

const (
	// MetricLoginSuccess counts logins that ended authenticated.
	MetricLoginSuccess MetricID = iota
	// MetricLoginFailure counts logins rejected by the backend or by persistence.
	MetricLoginFailure
	// MetricRegisterSuccess counts registrations that ended authenticated.
	MetricRegisterSuccess
	// MetricRegisterFailure counts failed registrations.
	MetricRegisterFailure
	// MetricRestoreHit counts startup restores that found a complete session.
	MetricRestoreHit
	// MetricRestoreMiss counts startup restores that found nothing usable.
	MetricRestoreMiss
	// MetricRestoreExpired counts restored sessions discarded because the
	// access token had already expired.
	MetricRestoreExpired
	// MetricSessionPersistFailure counts sessions the store failed to write.
	MetricSessionPersistFailure
	// MetricSessionSuperseded counts in-flight results dropped by a logout.
	MetricSessionSuperseded
	// MetricLogout counts user-initiated logouts.
	MetricLogout
	// MetricForcedLogoutTriggered counts every forced-logout request, including suppressed ones.
	MetricForcedLogoutTriggered
	// MetricForcedLogoutExecuted counts forced-logout sequences that ran.
	MetricForcedLogoutExecuted
	// MetricForcedLogoutSuppressed counts requests collapsed by the in-progress flag or the cooldown.
	MetricForcedLogoutSuppressed
	// MetricStoreClearFailure counts credential wipes that returned an error.
	MetricStoreClearFailure
	// MetricNavigationFallback counts logouts that used the fallback redirect.
	MetricNavigationFallback
	// MetricLoginLatency tracks the login round trip including persistence.
	MetricLoginLatency
	metricIDCount
)

const (
	histBucketCount = 8
	cacheLineSize   = 64
)

type metricHistogram struct {
	buckets [histBucketCount]uint64
}

type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Metrics holds lock-free lifecycle counters.
//
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [metricIDCount]paddedCounter
	histograms    [metricIDCount]metricHistogram
}

// MetricsSnapshot is a point-in-time copy of all counters and histograms.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

// NewMetrics returns a recorder configured by cfg.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled:       cfg.Enabled,
		enableLatency: cfg.Enabled && cfg.EnableLatencyHistograms,
	}
}

// Enabled reports whether counters are being recorded.
func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

// LatencyEnabled reports whether the login latency histogram is recorded.
func (m *Metrics) LatencyEnabled() bool {
	return m != nil && m.enableLatency
}

// Inc adds one to the counter for id. It is safe for concurrent use and is a no-op on a nil or disabled receiver.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

// Observe records d into the histogram for id. Only MetricLoginLatency has a
// histogram.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || !m.enabled || !m.enableLatency || id >= metricIDCount {
		return
	}
	if id != MetricLoginLatency {
		return
	}

	b := bucketIndex(d)
	atomic.AddUint64(&m.histograms[id].buckets[b], 1)
}

// Value returns the current counter value for id.
func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

// Snapshot copies every counter and histogram. A disabled recorder returns
// empty maps.
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

	if m.enableLatency {
		buckets := make([]uint64, histBucketCount)
		for i := 0; i < histBucketCount; i++ {
			buckets[i] = atomic.LoadUint64(&m.histograms[MetricLoginLatency].buckets[i])
		}
		s.Histograms[MetricLoginLatency] = buckets
	}

	return s
}

// login round trips are network bound, so the buckets sit an order of
// magnitude above server-side validation latencies.
func bucketIndex(d time.Duration) int {
	ms := d.Milliseconds()

	switch {
	case ms <= 50:
		return 0
	case ms <= 100:
		return 1
	case ms <= 250:
		return 2
	case ms <= 500:
		return 3
	case ms <= 1000:
		return 4
	case ms <= 2500:
		return 5
	case ms <= 5000:
		return 6
	default:
		return 7
	}
}
