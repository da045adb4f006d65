package prometheus

import (
	"net/http/httptest"
	"strings"
	"testing"

	phishgate "github.com/tmorgan-sec/phishgate"
)

type fakeSource struct {
	snapshot      phishgate.MetricsSnapshot
	auditDropped  uint64
	notifyDropped uint64
}

func (f *fakeSource) MetricsSnapshot() phishgate.MetricsSnapshot { return f.snapshot }
func (f *fakeSource) AuditDropped() uint64                       { return f.auditDropped }
func (f *fakeSource) NotifyDropped() uint64                      { return f.notifyDropped }

func populatedSource() *fakeSource {
	return &fakeSource{
		snapshot: phishgate.MetricsSnapshot{
			Counters: map[phishgate.MetricID]uint64{
				phishgate.MetricLoginSuccess:     7,
				phishgate.MetricTwoFactorSuccess: 3,
			},
			Histograms: map[phishgate.MetricID][]uint64{
				phishgate.MetricValidateLatency: {2, 1, 0, 0, 0, 0, 0, 1},
			},
		},
		auditDropped:  5,
		notifyDropped: 2,
	}
}

func TestRenderCounters(t *testing.T) {
	exporter := NewExporterFromSource(populatedSource())
	out := exporter.Render()

	for _, want := range []string{
		"# TYPE phishgate_login_success_total counter",
		"phishgate_login_success_total 7",
		"phishgate_two_factor_success_total 3",
		"phishgate_login_failure_total 0",
		"phishgate_audit_dropped_total 5",
		"phishgate_notify_dropped_total 2",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in output:\n%s", want, out)
		}
	}
}

func TestRenderHistogramIsCumulative(t *testing.T) {
	exporter := NewExporterFromSource(populatedSource())
	out := exporter.Render()

	for _, want := range []string{
		`phishgate_validate_latency_seconds_bucket{le="0.005"} 2`,
		`phishgate_validate_latency_seconds_bucket{le="0.01"} 3`,
		`phishgate_validate_latency_seconds_bucket{le="+Inf"} 4`,
		"phishgate_validate_latency_seconds_count 4",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in output:\n%s", want, out)
		}
	}
}

func TestRenderEmptySource(t *testing.T) {
	exporter := NewExporterFromSource(&fakeSource{
		snapshot: phishgate.MetricsSnapshot{
			Counters:   map[phishgate.MetricID]uint64{},
			Histograms: map[phishgate.MetricID][]uint64{},
		},
	})
	if out := exporter.Render(); out != "" {
		t.Fatalf("expected empty output, got:\n%s", out)
	}
}

func TestHandlerContentType(t *testing.T) {
	exporter := NewExporterFromSource(populatedSource())

	rec := httptest.NewRecorder()
	exporter.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	if got := rec.Header().Get("Content-Type"); !strings.HasPrefix(got, "text/plain") {
		t.Fatalf("unexpected content type %q", got)
	}
	if !strings.Contains(rec.Body.String(), "phishgate_login_success_total 7") {
		t.Fatalf("unexpected body:\n%s", rec.Body.String())
	}
}
