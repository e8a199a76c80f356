package metrics_test

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/romanqed/tonequeue/metrics"
)

func TestRecorderExposesObservedMetrics(t *testing.T) {
	rec := metrics.NewRecorder()
	rec.SetQueueDepth("queued", 3)
	rec.IncLeaseChurn("acked")
	rec.ObserveRenderDuration(12.5)
	rec.ObserveRefreshLatency(0.2)
	rec.IncRefreshFailure("transient")
	rec.SetSubscriberCount(2)

	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()
	rec.Handler().ServeHTTP(w, req)

	if w.Code != 200 {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	body := w.Body.String()
	for _, want := range []string{
		"tonequeue_queue_depth",
		"tonequeue_lease_churn_total",
		"tonequeue_render_duration_seconds",
		"tonequeue_credential_refresh_latency_seconds",
		"tonequeue_credential_refresh_failures_total",
		"tonequeue_progress_subscribers",
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected metrics output to contain %q", want)
		}
	}
}
