package prometheus

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/metrics/export/internaldefs"
)

type fakeSource struct {
	snapshot authcore.MetricsSnapshot
}

func (f fakeSource) MetricsSnapshot() authcore.MetricsSnapshot { return f.snapshot }

func TestCollectorCounters(t *testing.T) {
	c := NewCollectorFromSource(fakeSource{snapshot: authcore.MetricsSnapshot{
		Counters: map[authcore.MetricID]uint64{
			authcore.MetricLoginSuccess:         7,
			authcore.MetricRefreshReuseDetected: 2,
		},
	}})

	expected := `
# HELP authcore_login_success_total Successful password logins.
# TYPE authcore_login_success_total counter
authcore_login_success_total 7
# HELP authcore_refresh_reuse_detected_total Presentations of rotated, revoked or expired refresh tokens.
# TYPE authcore_refresh_reuse_detected_total counter
authcore_refresh_reuse_detected_total 2
`
	if err := testutil.CollectAndCompare(c, strings.NewReader(expected),
		"authcore_login_success_total", "authcore_refresh_reuse_detected_total"); err != nil {
		t.Fatalf("unexpected collector output: %v", err)
	}

	want := len(internaldefs.CounterDefs) + len(internaldefs.HistogramDefs)
	if got := testutil.CollectAndCount(c); got != want {
		t.Fatalf("expected %d series, got %d", want, got)
	}
}

func TestCollectorHistogramIsCumulative(t *testing.T) {
	c := NewCollectorFromSource(fakeSource{snapshot: authcore.MetricsSnapshot{
		Histograms: map[authcore.MetricID][]uint64{
			authcore.MetricRefreshLatency: {1, 2, 3, 4, 5, 6, 7, 8},
		},
	}})

	expected := `
# HELP authcore_refresh_latency_seconds Refresh-token rotation latency.
# TYPE authcore_refresh_latency_seconds histogram
authcore_refresh_latency_seconds_bucket{le="0.005"} 1
authcore_refresh_latency_seconds_bucket{le="0.01"} 3
authcore_refresh_latency_seconds_bucket{le="0.025"} 6
authcore_refresh_latency_seconds_bucket{le="0.05"} 10
authcore_refresh_latency_seconds_bucket{le="0.1"} 15
authcore_refresh_latency_seconds_bucket{le="0.25"} 21
authcore_refresh_latency_seconds_bucket{le="0.5"} 28
authcore_refresh_latency_seconds_bucket{le="+Inf"} 36
authcore_refresh_latency_seconds_sum 0
authcore_refresh_latency_seconds_count 36
`
	if err := testutil.CollectAndCompare(c, strings.NewReader(expected), "authcore_refresh_latency_seconds"); err != nil {
		t.Fatalf("unexpected histogram output: %v", err)
	}
}

func TestCollectorLint(t *testing.T) {
	c := NewCollectorFromSource(fakeSource{})
	problems, err := testutil.CollectAndLint(c)
	if err != nil {
		t.Fatalf("lint failed: %v", err)
	}
	for _, p := range problems {
		t.Errorf("lint problem on %s: %s", p.Metric, p.Text)
	}
}

func TestHandlerServesExposition(t *testing.T) {
	c := NewCollectorFromSource(fakeSource{snapshot: authcore.MetricsSnapshot{
		Counters: map[authcore.MetricID]uint64{authcore.MetricTokenIssued: 4},
	}})

	srv := httptest.NewServer(c.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if !strings.Contains(string(body), "authcore_token_issued_total 4") {
		t.Fatalf("expected token counter in body, got:\n%s", body)
	}
}
