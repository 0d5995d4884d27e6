package prometheus

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/canvasforge/authcore"
)

type fakeSource struct {
	snap    authcore.MetricsSnapshot
	dropped uint64
}

func (f *fakeSource) MetricsSnapshot() authcore.MetricsSnapshot { return f.snap }
func (f *fakeSource) AuditDropped() uint64                      { return f.dropped }

func TestRenderContainsAllCounters(t *testing.T) {
	src := &fakeSource{
		snap: authcore.MetricsSnapshot{Counters: map[authcore.MetricID]uint64{
			authcore.MetricLoginSuccess:         3,
			authcore.MetricRefreshReuseDetected: 1,
		}},
		dropped: 2,
	}
	out := NewExporter(src).Render()

	for _, want := range []string{
		"authcore_login_success_total 3",
		"authcore_refresh_reuse_detected_total 1",
		"authcore_login_failure_total 0",
		"authcore_audit_dropped_total 2",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in:\n%s", want, out)
		}
	}
	for _, id := range authcore.MetricIDs() {
		if !strings.Contains(out, authcore.MetricName(id)) {
			t.Fatalf("missing metric %s", authcore.MetricName(id))
		}
	}
}

func TestHandlerContentType(t *testing.T) {
	src := &fakeSource{snap: authcore.MetricsSnapshot{Counters: map[authcore.MetricID]uint64{}}}
	rec := httptest.NewRecorder()
	NewExporter(src).Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	if got := rec.Header().Get("Content-Type"); !strings.HasPrefix(got, "text/plain") {
		t.Fatalf("content type = %q", got)
	}
	if !strings.Contains(rec.Body.String(), "# TYPE authcore_login_success_total counter") {
		t.Fatalf("body missing TYPE line:\n%s", rec.Body.String())
	}
}
