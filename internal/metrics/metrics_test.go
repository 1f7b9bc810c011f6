package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestStatusBucket(t *testing.T) {
	tests := []struct {
		code int
		want string
	}{
		{100, "1xx"},
		{200, "2xx"},
		{201, "2xx"},
		{301, "3xx"},
		{400, "4xx"},
		{404, "4xx"},
		{500, "5xx"},
		{503, "5xx"},
	}

	for _, tt := range tests {
		if got := statusBucket(tt.code); got != tt.want {
			t.Errorf("statusBucket(%d) = %s, want %s", tt.code, got, tt.want)
		}
	}
}

func TestScreeningsTotal_IncrementsCounter(t *testing.T) {
	ScreeningsTotal.Reset()

	ScreeningsTotal.WithLabelValues("critical").Inc()
	ScreeningsTotal.WithLabelValues("critical").Inc()

	m := &dto.Metric{}
	counter, err := ScreeningsTotal.GetMetricWithLabelValues("critical")
	if err != nil {
		t.Fatalf("GetMetricWithLabelValues failed: %v", err)
	}
	_ = counter.Write(m)

	if m.Counter.GetValue() != 2.0 {
		t.Errorf("expected counter value 2, got %f", m.Counter.GetValue())
	}
}

func TestCacheLookupsTotal_LabelsByTierAndResult(t *testing.T) {
	CacheLookupsTotal.Reset()

	CacheLookupsTotal.WithLabelValues("tor", "hit").Inc()
	CacheLookupsTotal.WithLabelValues("none", "miss").Inc()

	for _, tc := range []struct {
		tier, result string
		want         float64
	}{
		{"tor", "hit", 1},
		{"none", "miss", 1},
		{"vpn", "hit", 0},
	} {
		m := &dto.Metric{}
		counter, err := CacheLookupsTotal.GetMetricWithLabelValues(tc.tier, tc.result)
		if err != nil {
			t.Fatalf("GetMetricWithLabelValues(%s, %s) failed: %v", tc.tier, tc.result, err)
		}
		_ = counter.Write(m)
		if m.Counter.GetValue() != tc.want {
			t.Errorf("counter{tier=%s,result=%s} = %f, want %f", tc.tier, tc.result, m.Counter.GetValue(), tc.want)
		}
	}
}

func TestMiddleware_ObservesHistogram(t *testing.T) {
	HTTPRequestDuration.Reset()

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Middleware())
	r.GET("/test", func(c *gin.Context) {
		c.JSON(200, gin.H{"ok": true})
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/test", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	// Verify the histogram recorded one sample for the route pattern.
	ch := make(chan prometheus.Metric, 10)
	HTTPRequestDuration.Collect(ch)
	close(ch)

	found := false
	for metric := range ch {
		m := &dto.Metric{}
		_ = metric.Write(m)
		if m.Histogram != nil && m.Histogram.GetSampleCount() == 1 {
			found = true
		}
	}
	if !found {
		t.Error("expected histogram with 1 sample")
	}
}

func TestMetricsEndpoint(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/metrics", Handler())

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", w.Code)
	}

	body := w.Body.String()
	if len(body) == 0 {
		t.Error("Expected non-empty metrics response")
	}

	// Gauges are always exported, counters only after first observation.
	for _, name := range []string{
		"ipintel_active_websocket_clients",
		"ipintel_goroutines",
	} {
		if !strings.Contains(body, name) {
			t.Errorf("Expected metrics output to contain %s", name)
		}
	}

	ScreeningsTotal.WithLabelValues("high").Inc()

	w = httptest.NewRecorder()
	req = httptest.NewRequest("GET", "/metrics", nil)
	r.ServeHTTP(w, req)

	if !strings.Contains(w.Body.String(), "ipintel_screenings_total") {
		t.Error("Expected ipintel_screenings_total after incrementing")
	}
}

func TestMetrics_Registered(t *testing.T) {
	ScreeningsTotal.WithLabelValues("low").Inc()
	RuleHitsTotal.WithLabelValues("Clean").Inc()
	IntelRequestsTotal.WithLabelValues("success").Inc()
	WebhookDeliveriesTotal.WithLabelValues("delivered").Inc()

	gathered, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("Gather failed: %v", err)
	}

	found := make(map[string]bool)
	for _, mf := range gathered {
		found[mf.GetName()] = true
	}

	for _, name := range []string{
		"ipintel_screenings_total",
		"ipintel_rule_hits_total",
		"ipintel_intel_requests_total",
		"ipintel_webhook_deliveries_total",
		"ipintel_active_websocket_clients",
	} {
		if !found[name] {
			t.Errorf("metric %s not registered", name)
		}
	}
}
