package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	dto "github.com/prometheus/client_model/go"
)

func findFamily(t *testing.T, m *Metrics, name string) *dto.MetricFamily {
	t.Helper()
	families, err := m.Registry.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	for _, f := range families {
		if f.GetName() == name {
			return f
		}
	}
	return nil
}

func TestNew_GathersMetrics(t *testing.T) {
	m := New()

	families, err := m.Registry.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}

	// Should include at least Go runtime and process collectors.
	if len(families) == 0 {
		t.Fatal("expected non-empty metric families from Gather()")
	}

	m.RequestsTotal.WithLabelValues("POST", "200", "/looproxy").Inc()
	if findFamily(t, m, "hopchain_http_requests_total") == nil {
		t.Error("expected hopchain_http_requests_total in gathered metrics")
	}
}

func TestNew_HopMetrics(t *testing.T) {
	m := New()

	m.HopDuration.WithLabelValues(HopFinal).Observe(0.2)
	m.HopResponses.WithLabelValues(HopForward, "502").Inc()
	m.HopErrors.WithLabelValues(HopFinal, "transport").Inc()
	m.FingerprintSelections.WithLabelValues("chrome120").Inc()

	for _, name := range []string{
		"hopchain_hop_duration_seconds",
		"hopchain_hop_responses_total",
		"hopchain_hop_errors_total",
		"hopchain_fingerprint_selections_total",
		"hopchain_worker_in_flight",
	} {
		if findFamily(t, m, name) == nil {
			t.Errorf("expected %s in gathered metrics", name)
		}
	}
}

func TestHandler_Exposition(t *testing.T) {
	m := New()
	m.HopResponses.WithLabelValues(HopFinal, "200").Inc()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", http.NoBody))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `hopchain_hop_responses_total{kind="final",status_code="200"} 1`) {
		t.Errorf("exposition missing hop counter:\n%s", rec.Body.String())
	}
}

func TestNormalizeMethod(t *testing.T) {
	tests := []struct {
		method string
		want   string
	}{
		{"GET", "GET"},
		{"POST", "POST"},
		{"PUT", "PUT"},
		{"DELETE", "DELETE"},
		{"PATCH", "PATCH"},
		{"HEAD", "HEAD"},
		{"OPTIONS", "OPTIONS"},
		{"FOOBAR", "other"},
		{"get", "other"},
		{"", "other"},
	}

	for _, tt := range tests {
		t.Run(tt.method, func(t *testing.T) {
			got := NormalizeMethod(tt.method)
			if got != tt.want {
				t.Errorf("NormalizeMethod(%q) = %q, want %q", tt.method, got, tt.want)
			}
		})
	}
}

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/proxy", "/proxy"},
		{"/proxy/status", "/proxy/status"},
		{"/looproxy", "/looproxy"},
		{"/impersonate", "/impersonate"},
		{"/health", "/health"},
		{"/healthz", "/healthz"},
		{"/metrics", "/metrics"},
		{"/proxyx", "other"},
		{"/unknown", "other"},
		{"/", "other"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got := NormalizePath(tt.path)
			if got != tt.want {
				t.Errorf("NormalizePath(%q) = %q, want %q", tt.path, got, tt.want)
			}
		})
	}
}
