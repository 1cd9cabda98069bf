package metrics

import (
	"sync"
	"testing"
	"time"
)

func TestDisabledMetricsAreNoOps(t *testing.T) {
	m := New(Config{Enabled: false})
	m.Inc(MetricRefreshSuccess)
	if m.Value(MetricRefreshSuccess) != 0 {
		t.Fatal("disabled metrics must not count")
	}
	if len(m.Snapshot().Counters) != 0 {
		t.Fatal("disabled snapshot must be empty")
	}

	var nilMetrics *Metrics
	nilMetrics.Inc(MetricRefreshSuccess)
	nilMetrics.Observe(MetricRefreshLatency, time.Millisecond)
}

func TestConcurrentIncrements(t *testing.T) {
	m := New(Config{Enabled: true})
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				m.Inc(MetricCodeIssued)
			}
		}()
	}
	wg.Wait()
	if got := m.Value(MetricCodeIssued); got != 8000 {
		t.Fatalf("expected 8000, got %d", got)
	}
}

func TestLatencyHistogramBuckets(t *testing.T) {
	m := New(Config{Enabled: true, EnableLatency: true})
	m.Observe(MetricRefreshLatency, 3*time.Millisecond)
	m.Observe(MetricRefreshLatency, 40*time.Millisecond)
	m.Observe(MetricRefreshLatency, time.Second)
	m.Observe(MetricCodeIssued, time.Millisecond)

	snap := m.Snapshot()
	h := snap.Histograms[MetricRefreshLatency]
	if len(h) != HistBucketCount {
		t.Fatalf("expected %d buckets, got %d", HistBucketCount, len(h))
	}
	if h[0] != 1 || h[3] != 1 || h[7] != 1 {
		t.Fatalf("unexpected buckets %v", h)
	}
	if _, ok := snap.Counters[MetricRefreshLatency]; ok {
		t.Fatal("latency metric must not appear as a counter")
	}
}
