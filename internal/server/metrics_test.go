package server

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/54b3r/supportbot-go/internal/logging"
)

// newMetricsTestServer builds a Server through New backed by a fresh
// isolated registry so tests do not pollute prometheus.DefaultRegisterer.
func newMetricsTestServer(t *testing.T, a Answerer, indexSize func() int) (*Server, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	s, err := New(a, nil, &Config{
		Logger:          logging.Discard(),
		IndexSize:       indexSize,
		MetricsRegistry: reg,
		MetricsGatherer: reg,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s, reg
}

// findMetric returns the first metric in family name whose labels include
// every pair in labels, or nil.
func findMetric(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) *dto.Metric {
	t.Helper()
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
	metrics:
		for _, m := range mf.GetMetric() {
			got := map[string]string{}
			for _, lp := range m.GetLabel() {
				got[lp.GetName()] = lp.GetValue()
			}
			for k, v := range labels {
				if got[k] != v {
					continue metrics
				}
			}
			return m
		}
	}
	return nil
}

func Test_Metrics_EndpointServesFamilies(t *testing.T) {
	t.Parallel()
	s, _ := newMetricsTestServer(t, &fakeAnswerer{snapshots: []string{"ok"}}, nil)

	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)

	// One chat so the counter vectors have a child to expose.
	resp, err := http.Post(srv.URL+"/api/chat", "application/json", strings.NewReader(`{"message":"hi"}`))
	if err != nil {
		t.Fatalf("POST /api/chat: %v", err)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	req, err := http.NewRequestWithContext(t.Context(), http.MethodGet, srv.URL+"/metrics", nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("want 200, got %d", resp.StatusCode)
	}
	ct := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("want text/plain content-type, got %q", ct)
	}
	body, _ := io.ReadAll(resp.Body)
	for _, want := range []string{"supportbot_chat_requests_total", "supportbot_http_requests_total"} {
		if !strings.Contains(string(body), want) {
			t.Errorf("metrics output missing %s", want)
		}
	}
}

func Test_Metrics_ChatOutcomes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		answer  *fakeAnswerer
		outcome string
	}{
		{"ok", &fakeAnswerer{snapshots: []string{"hi"}}, "ok"},
		{"error", &fakeAnswerer{err: errors.New("boom")}, "error"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			s, reg := newMetricsTestServer(t, tc.answer, nil)

			postChat(s, `{"message":"hi"}`)

			m := findMetric(t, reg, "supportbot_chat_requests_total", map[string]string{"outcome": tc.outcome})
			if m == nil {
				t.Fatalf("supportbot_chat_requests_total{outcome=%q} not found", tc.outcome)
			}
			if m.GetCounter().GetValue() != 1 {
				t.Errorf("want counter=1, got %v", m.GetCounter().GetValue())
			}
			if h := findMetric(t, reg, "supportbot_chat_duration_seconds", map[string]string{"outcome": tc.outcome}); h == nil || h.GetHistogram().GetSampleCount() != 1 {
				t.Errorf("chat duration not observed for %q", tc.outcome)
			}
			if g := findMetric(t, reg, "supportbot_chat_active_streams", nil); g == nil || g.GetGauge().GetValue() != 0 {
				t.Errorf("active streams gauge not back to 0")
			}
		})
	}
}

func Test_Metrics_HTTPRequestsUsePattern(t *testing.T) {
	t.Parallel()
	s, reg := newMetricsTestServer(t, &fakeAnswerer{}, nil)

	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	w = httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/nope", nil))

	if m := findMetric(t, reg, "supportbot_http_requests_total", map[string]string{
		"method": "GET", labelHandler: "GET /api/health", "code": "200",
	}); m == nil {
		t.Error("health request not counted under its route pattern")
	}
	if m := findMetric(t, reg, "supportbot_http_requests_total", map[string]string{
		labelHandler: "unmatched", "code": "404",
	}); m == nil {
		t.Error("unmatched request not counted")
	}
}

func Test_Metrics_IndexGauge(t *testing.T) {
	t.Parallel()
	size := 7
	_, reg := newMetricsTestServer(t, &fakeAnswerer{}, func() int { return size })

	m := findMetric(t, reg, "supportbot_index_chunks", nil)
	if m == nil {
		t.Fatal("supportbot_index_chunks not registered")
	}
	if v := m.GetGauge().GetValue(); v != 7 {
		t.Errorf("want index_chunks=7, got %v", v)
	}
}
