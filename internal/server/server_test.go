package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/paydesk/ipintel/internal/config"
	"github.com/paydesk/ipintel/internal/reputation"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// mockIntel implements screening.IntelClient for testing
type mockIntel struct {
	record *reputation.Record
	err    error
	calls  atomic.Int64
}

func (m *mockIntel) Classify(ctx context.Context, ip string) (*reputation.Record, error) {
	m.calls.Add(1)
	if m.err != nil {
		return nil, m.err
	}
	rec := *m.record
	rec.IP = ip
	return &rec, nil
}

// testConfig returns a minimal config for testing
func testConfig() *config.Config {
	return &config.Config{
		Port:           "0",
		Env:            "development",
		LogLevel:       "error",
		LogFormat:      "text",
		AdminAPIKey:    "test-admin-secret",
		AllowedOrigins: []string{"*"},
		RateLimitRPM:   100000,
		RateLimitBurst: 10000,
		MaxWSClients:   10,
	}
}

// newTestServer creates a server with a mock intelligence provider
func newTestServer(t *testing.T, intel *mockIntel) *Server {
	t.Helper()
	s, err := New(testConfig(), WithIntelClient(intel))
	if err != nil {
		t.Fatalf("Failed to create server: %v", err)
	}
	return s
}

func postScreening(t *testing.T, s *Server, body string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/v1/screenings", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	s.router.ServeHTTP(w, req)
	return w
}

func parseBody(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var resp map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	return resp
}

// ---------------------------------------------------------------------------
// Health endpoint tests
// ---------------------------------------------------------------------------

func TestHealthEndpoint(t *testing.T) {
	s := newTestServer(t, &mockIntel{record: &reputation.Record{Country: "US"}})

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/health", nil)
	s.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", w.Code)
	}

	resp := parseBody(t, w)
	if resp["status"] != "healthy" {
		t.Errorf("Expected status 'healthy', got %v", resp["status"])
	}

	checks, ok := resp["checks"].(map[string]interface{})
	if !ok {
		t.Fatalf("Expected checks map, got %T", resp["checks"])
	}
	for _, name := range []string{"intel", "geodata"} {
		if _, ok := checks[name]; !ok {
			t.Errorf("Expected %q check in health response", name)
		}
	}
}

func TestLivenessEndpoint(t *testing.T) {
	s := newTestServer(t, &mockIntel{record: &reputation.Record{Country: "US"}})

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/health/live", nil)
	s.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", w.Code)
	}
}

func TestReadinessEndpoint(t *testing.T) {
	s := newTestServer(t, &mockIntel{record: &reputation.Record{Country: "US"}})

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/health/ready", nil)
	s.router.ServeHTTP(w, req)

	// Server hasn't called Run() so ready is false
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503 (not ready), got %d", w.Code)
	}
}

// ---------------------------------------------------------------------------
// Route registration tests
// ---------------------------------------------------------------------------

func TestCoreRoutesRegistered(t *testing.T) {
	s := newTestServer(t, &mockIntel{record: &reputation.Record{Country: "US"}})

	routes := s.router.Routes()
	expected := []string{
		"GET:/health",
		"GET:/health/live",
		"GET:/health/ready",
		"GET:/metrics",
		"GET:/ws",
		"POST:/v1/screenings",
		"GET:/v1/reputation/:ip",
		"GET:/v1/countries/:code",
		"GET:/v1/auth/info",
		"GET:/v1/webhooks/events",
		"POST:/v1/webhooks",
		"GET:/v1/webhooks",
		"DELETE:/v1/webhooks/:webhookId",
		"PUT:/v1/admin/reputation/:ip",
		"POST:/v1/admin/keys",
		"GET:/v1/admin/keys",
		"DELETE:/v1/admin/keys/:keyId",
	}

	routeSet := make(map[string]bool)
	for _, route := range routes {
		routeSet[route.Method+":"+route.Path] = true
	}

	for _, e := range expected {
		if !routeSet[e] {
			t.Errorf("Core route %s not registered", e)
		}
	}
}

// ---------------------------------------------------------------------------
// Screening flow tests
// ---------------------------------------------------------------------------

func TestScreeningCommercialVPN(t *testing.T) {
	intel := &mockIntel{record: &reputation.Record{Country: "DE", IsVPN: true, Confidence: 0.9}}
	s := newTestServer(t, intel)

	w := postScreening(t, s, `{"transaction_id":"tx_1","user_id":"user_1","user_country":"US","ip_address":"203.0.113.7"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}

	resp := parseBody(t, w)
	if resp["risk_score"] != float64(75) {
		t.Errorf("Expected risk_score 75, got %v", resp["risk_score"])
	}
	if resp["risk_level"] != "high" {
		t.Errorf("Expected risk_level high, got %v", resp["risk_level"])
	}
	if resp["should_block"] != false {
		t.Errorf("Expected should_block false, got %v", resp["should_block"])
	}
	if resp["countries_match"] != false {
		t.Errorf("Expected countries_match false, got %v", resp["countries_match"])
	}
	if resp["detected_country"] != "DE" {
		t.Errorf("Expected detected_country DE, got %v", resp["detected_country"])
	}

	rules, ok := resp["triggered_rules"].([]interface{})
	if !ok || len(rules) == 0 {
		t.Fatalf("Expected triggered rules, got %v", resp["triggered_rules"])
	}
	first := rules[0].(map[string]interface{})
	if first["rule_name"] != "Commercial VPN" {
		t.Errorf("Expected first rule Commercial VPN, got %v", first["rule_name"])
	}

	// Second screening of the same IP must hit the learned cache entry
	w = postScreening(t, s, `{"transaction_id":"tx_2","user_id":"user_1","user_country":"US","ip_address":"203.0.113.7"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200 on second screening, got %d", w.Code)
	}
	if got := intel.calls.Load(); got != 1 {
		t.Errorf("Expected 1 provider call (cache hit on repeat), got %d", got)
	}
}

func TestScreeningGeoMaskingVPN(t *testing.T) {
	intel := &mockIntel{record: &reputation.Record{Country: "US", IsVPN: true, Confidence: 0.9}}
	s := newTestServer(t, intel)

	w := postScreening(t, s, `{"transaction_id":"tx_1","user_id":"user_1","user_country":"US","ip_address":"198.51.100.4"}`)
	resp := parseBody(t, w)

	if resp["risk_score"] != float64(85) {
		t.Errorf("Expected risk_score 85, got %v", resp["risk_score"])
	}
	rules := resp["triggered_rules"].([]interface{})
	first := rules[0].(map[string]interface{})
	if first["rule_name"] != "Geo-Masking VPN" {
		t.Errorf("Expected Geo-Masking VPN, got %v", first["rule_name"])
	}
}

func TestScreeningSanctionedJurisdiction(t *testing.T) {
	intel := &mockIntel{record: &reputation.Record{Country: "US", Confidence: 0.9}}
	s := newTestServer(t, intel)

	w := postScreening(t, s, `{"transaction_id":"tx_1","user_id":"user_1","user_country":"IR","ip_address":"198.51.100.9"}`)
	resp := parseBody(t, w)

	if resp["risk_score"] != float64(95) {
		t.Errorf("Expected risk_score 95, got %v", resp["risk_score"])
	}
	if resp["risk_level"] != "critical" {
		t.Errorf("Expected critical, got %v", resp["risk_level"])
	}
	if resp["should_block"] != true {
		t.Errorf("Expected should_block true, got %v", resp["should_block"])
	}
	if resp["recommendation"] != "Block" {
		t.Errorf("Expected recommendation Block, got %v", resp["recommendation"])
	}
}

func TestScreeningTorExit(t *testing.T) {
	intel := &mockIntel{record: &reputation.Record{Country: "DE", IsTor: true, Confidence: 0.98}}
	s := newTestServer(t, intel)

	w := postScreening(t, s, `{"transaction_id":"tx_1","user_id":"user_1","user_country":"US","ip_address":"185.220.101.4"}`)
	resp := parseBody(t, w)

	if resp["risk_score"] != float64(100) {
		t.Errorf("Expected risk_score 100, got %v", resp["risk_score"])
	}
	if resp["should_block"] != true {
		t.Errorf("Expected should_block true, got %v", resp["should_block"])
	}

	security, ok := resp["security"].(map[string]interface{})
	if !ok {
		t.Fatalf("Expected security flags, got %v", resp["security"])
	}
	if security["is_tor"] != true {
		t.Errorf("Expected is_tor true, got %v", security["is_tor"])
	}
}

func TestScreeningDegradedOnProviderFailure(t *testing.T) {
	intel := &mockIntel{err: errors.New("provider down")}
	s := newTestServer(t, intel)

	w := postScreening(t, s, `{"transaction_id":"tx_1","user_id":"user_1","user_country":"US","ip_address":"203.0.113.50"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("Screening must not fail when the provider is down, got %d", w.Code)
	}

	resp := parseBody(t, w)
	if resp["detected_country"] != "unknown" {
		t.Errorf("Expected detected_country unknown, got %v", resp["detected_country"])
	}
	if resp["confidence"] != 0.2 {
		t.Errorf("Expected degraded confidence 0.2, got %v", resp["confidence"])
	}
	// Unknown country counts as a mismatch
	if resp["risk_score"] != float64(60) {
		t.Errorf("Expected risk_score 60, got %v", resp["risk_score"])
	}

	// Degraded results are not cached: the provider is retried next time
	_ = postScreening(t, s, `{"transaction_id":"tx_2","user_id":"user_1","user_country":"US","ip_address":"203.0.113.50"}`)
	if got := intel.calls.Load(); got != 2 {
		t.Errorf("Expected 2 provider calls (degraded result not cached), got %d", got)
	}
}

func TestScreeningValidation(t *testing.T) {
	s := newTestServer(t, &mockIntel{record: &reputation.Record{Country: "US"}})

	cases := []struct {
		name string
		body string
	}{
		{"missing fields", `{"transaction_id":"tx_1"}`},
		{"bad ip", `{"transaction_id":"tx_1","user_id":"u","user_country":"US","ip_address":"not-an-ip"}`},
		{"bad country", `{"transaction_id":"tx_1","user_id":"u","user_country":"USA1","ip_address":"1.2.3.4"}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := postScreening(t, s, tc.body)
			if w.Code != http.StatusBadRequest {
				t.Errorf("Expected 400, got %d: %s", w.Code, w.Body.String())
			}
		})
	}
}

// ---------------------------------------------------------------------------
// Admin endpoint tests
// ---------------------------------------------------------------------------

func TestAdminSeedThenScreen(t *testing.T) {
	intel := &mockIntel{record: &reputation.Record{Country: "US"}}
	s := newTestServer(t, intel)

	body := `{"country":"DE","is_vpn":true,"confidence":0.9}`
	w := httptest.NewRecorder()
	req := httptest.NewRequest("PUT", "/v1/admin/reputation/1.2.3.4", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Admin-Key", "test-admin-secret")
	s.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200 for admin seed, got %d: %s", w.Code, w.Body.String())
	}
	resp := parseBody(t, w)
	if resp["tier"] != "vpn" {
		t.Errorf("Expected tier vpn, got %v", resp["tier"])
	}

	// Seeded IP screens from the cache without touching the provider
	w = postScreening(t, s, `{"transaction_id":"tx_1","user_id":"user_1","user_country":"US","ip_address":"1.2.3.4"}`)
	sr := parseBody(t, w)
	if sr["risk_score"] != float64(75) {
		t.Errorf("Expected risk_score 75 from seeded record, got %v", sr["risk_score"])
	}
	if got := intel.calls.Load(); got != 0 {
		t.Errorf("Expected 0 provider calls for seeded IP, got %d", got)
	}
}

func TestAdminRequiresKey(t *testing.T) {
	s := newTestServer(t, &mockIntel{record: &reputation.Record{Country: "US"}})

	body := `{"country":"DE","is_vpn":true,"confidence":0.9}`

	w := httptest.NewRecorder()
	req := httptest.NewRequest("PUT", "/v1/admin/reputation/1.2.3.4", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	s.router.ServeHTTP(w, req)
	if w.Code != http.StatusForbidden {
		t.Errorf("Expected 403 without admin key, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	req = httptest.NewRequest("PUT", "/v1/admin/reputation/1.2.3.4", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Admin-Key", "wrong-key")
	s.router.ServeHTTP(w, req)
	if w.Code != http.StatusForbidden {
		t.Errorf("Expected 403 with wrong admin key, got %d", w.Code)
	}
}

// ---------------------------------------------------------------------------
// Auth enforcement tests
// ---------------------------------------------------------------------------

func TestAuthRequiredGatesScreening(t *testing.T) {
	cfg := testConfig()
	cfg.AuthRequired = true
	s, err := New(cfg, WithIntelClient(&mockIntel{record: &reputation.Record{Country: "US"}}))
	if err != nil {
		t.Fatalf("Failed to create server: %v", err)
	}

	w := postScreening(t, s, `{"transaction_id":"tx_1","user_id":"u","user_country":"US","ip_address":"1.2.3.4"}`)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 without API key, got %d", w.Code)
	}

	// Country lookups stay public even when screening is gated
	w = httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/v1/countries/IR", nil)
	s.router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("Expected 200 for public country route, got %d", w.Code)
	}
}

// ---------------------------------------------------------------------------
// Lookup endpoint tests
// ---------------------------------------------------------------------------

func TestCountryEndpoint(t *testing.T) {
	s := newTestServer(t, &mockIntel{record: &reputation.Record{Country: "US"}})

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/v1/countries/IR", nil)
	s.router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	resp := parseBody(t, w)
	if resp["sanctioned"] != true {
		t.Errorf("Expected IR sanctioned, got %v", resp["sanctioned"])
	}

	w = httptest.NewRecorder()
	req = httptest.NewRequest("GET", "/v1/countries/US", nil)
	s.router.ServeHTTP(w, req)
	resp = parseBody(t, w)
	if resp["sanctioned"] != false {
		t.Errorf("Expected US not sanctioned, got %v", resp["sanctioned"])
	}

	w = httptest.NewRecorder()
	req = httptest.NewRequest("GET", "/v1/countries/ZZZ", nil)
	s.router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for invalid code, got %d", w.Code)
	}
}

func TestReputationLookupNotFound(t *testing.T) {
	s := newTestServer(t, &mockIntel{record: &reputation.Record{Country: "US"}})

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/v1/reputation/203.0.113.99", nil)
	s.router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for unknown IP, got %d", w.Code)
	}
}

// ---------------------------------------------------------------------------
// Dashboard page test
// ---------------------------------------------------------------------------

func TestDashboardEndpoint(t *testing.T) {
	s := newTestServer(t, &mockIntel{record: &reputation.Record{Country: "US"}})

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/", nil)
	s.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected 200 for dashboard, got %d", w.Code)
	}

	if w.Header().Get("Content-Type") == "" {
		t.Error("Expected Content-Type header")
	}
}

func TestInfoEndpoint(t *testing.T) {
	s := newTestServer(t, &mockIntel{record: &reputation.Record{Country: "US"}})

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/api", nil)
	s.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	resp := parseBody(t, w)
	if resp["name"] != "ipintel" {
		t.Errorf("Expected name ipintel, got %v", resp["name"])
	}
}

// ---------------------------------------------------------------------------
// Middleware tests
// ---------------------------------------------------------------------------

func TestRequestIDHeader(t *testing.T) {
	s := newTestServer(t, &mockIntel{record: &reputation.Record{Country: "US"}})

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/health", nil)
	s.router.ServeHTTP(w, req)

	if w.Header().Get("X-Request-ID") == "" {
		t.Error("Expected X-Request-ID response header")
	}

	// Upstream request IDs pass through
	w = httptest.NewRecorder()
	req = httptest.NewRequest("GET", "/health", nil)
	req.Header.Set("X-Request-ID", "lb-supplied-id")
	s.router.ServeHTTP(w, req)

	if got := w.Header().Get("X-Request-ID"); got != "lb-supplied-id" {
		t.Errorf("Expected upstream request ID to pass through, got %q", got)
	}
}

func TestNotFoundRoute(t *testing.T) {
	s := newTestServer(t, &mockIntel{record: &reputation.Record{Country: "US"}})

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/v1/nonexistent", nil)
	s.router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", w.Code)
	}
}
