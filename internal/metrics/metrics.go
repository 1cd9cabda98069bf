package metrics

import (
	"sync/atomic"
	"time"
)

// MetricID indexes a counter slot.
type MetricID uint16

const (
	MetricTokenIssued MetricID = iota
	MetricLoginSuccess
	MetricLoginFailure
	MetricRefreshSuccess
	MetricRefreshFailure
	MetricRefreshReuseDetected
	MetricRefreshFamilyRevoked
	MetricTokensRevoked
	MetricCodeIssued
	MetricCodeVerified
	MetricCodeInvalid
	MetricCodeExpired
	MetricCodeAttemptsExceeded
	MetricVerificationSent
	MetricVerificationConfirmed
	MetricMagicLinkSent
	MetricMagicLinkVerified
	MetricMagicLinkBrowserMismatch
	MetricPasswordResetRequested
	MetricPasswordResetConfirmed
	MetricDeliverySync
	MetricDeliveryQueued
	MetricDeliveryFailure
	MetricDeliverySuppressed
	MetricFederatedReturning
	MetricFederatedLinked
	MetricFederatedCreated
	MetricFederatedSelectionRequired
	MetricRegistration
	MetricAuditDropped
	MetricRefreshLatency
	MetricIDCount
)

const (
	HistBucketCount = 8
	cacheLineSize   = 64
)

type histogram struct {
	buckets [HistBucketCount]uint64
}

type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Config switches collection on. Latency histograms need Enabled too.
type Config struct {
	Enabled       bool
	EnableLatency bool
}

// Metrics holds the counters. A nil *Metrics is a valid no-op.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [MetricIDCount]paddedCounter
	histograms    [MetricIDCount]histogram
}

// Snapshot is a point-in-time copy of every counter and histogram.
type Snapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

func New(cfg Config) *Metrics {
	return &Metrics{
		enabled:       cfg.Enabled,
		enableLatency: cfg.Enabled && cfg.EnableLatency,
	}
}

func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

func (m *Metrics) Inc(id MetricID) {
	m.Add(id, 1)
}

func (m *Metrics) Add(id MetricID, n uint64) {
	if m == nil || !m.enabled || id >= MetricIDCount || n == 0 {
		return
	}
	atomic.AddUint64(&m.counters[id].value, n)
}

// Observe records d into the histogram of a latency metric.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || !m.enableLatency || id >= MetricIDCount {
		return
	}
	if !IsHistogram(id) {
		return
	}
	atomic.AddUint64(&m.histograms[id].buckets[bucketIndex(d)], 1)
}

func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= MetricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

func (m *Metrics) Snapshot() Snapshot {
	if m == nil || !m.enabled {
		return Snapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}

	s := Snapshot{
		Counters:   make(map[MetricID]uint64, int(MetricIDCount)),
		Histograms: make(map[MetricID][]uint64, 1),
	}
	for id := MetricID(0); id < MetricIDCount; id++ {
		if IsHistogram(id) {
			continue
		}
		s.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}

	if m.enableLatency {
		for id := MetricID(0); id < MetricIDCount; id++ {
			if !IsHistogram(id) {
				continue
			}
			buckets := make([]uint64, HistBucketCount)
			for i := 0; i < HistBucketCount; i++ {
				buckets[i] = atomic.LoadUint64(&m.histograms[id].buckets[i])
			}
			s.Histograms[id] = buckets
		}
	}

	return s
}

// IsHistogram reports whether id is a latency metric.
func IsHistogram(id MetricID) bool {
	return id == MetricRefreshLatency
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
