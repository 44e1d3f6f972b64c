package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestHandler_nilMetrics(t *testing.T) {
	var m *Metrics
	m.ObserveRouteRequest("route", time.Second)
	m.IncStaleResponse()
	m.ObserveOverlayRender(true, 2)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)

	m.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
	if got := rr.Body.String(); !strings.Contains(got, "metrics unavailable") {
		t.Fatalf("expected body to mention metrics unavailable, got %q", got)
	}
}

func TestHandler_exposesRegisteredMetrics(t *testing.T) {
	m := New()
	m.ObserveHTTPRequest(http.MethodGet, "/readyz", http.StatusOK, 12*time.Millisecond)
	m.ObserveRouteRequest("route", 80*time.Millisecond)
	m.ObserveRouteRequest("not_found", 20*time.Millisecond)
	m.IncStaleResponse()
	m.ObserveOverlayRender(true, 1)
	m.ObserveOverlayRender(false, 0)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)

	m.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	body := rr.Body.String()
	for _, want := range []string{
		"metroview_http_requests_total{method=\"GET\",path=\"/readyz\",status=\"200\"} 1",
		"metroview_route_requests_total{outcome=\"route\"} 1",
		"metroview_route_requests_total{outcome=\"not_found\"} 1",
		"metroview_route_request_duration_seconds_count 2",
		"metroview_route_stale_responses_total 1",
		"metroview_overlay_renders_total{result=\"drawn\"} 1",
		"metroview_overlay_renders_total{result=\"cleared\"} 1",
		"metroview_overlay_unresolved_stations_total 1",
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected %q in metrics output; body=%s", want, body)
		}
	}
}
