package screening

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/paydesk/ipintel/internal/geodata"
	"github.com/paydesk/ipintel/internal/reputation"
)

type captureEmitter struct {
	mu  sync.Mutex
	req *Request
	res *Result
}

func (e *captureEmitter) ScreeningCompleted(req *Request, res *Result) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.req = req
	e.res = res
}

func newTestService(store reputation.Store, intel IntelClient) *Service {
	return NewService(NewResolver(store, intel), NewEngine(geodata.Empty()))
}

func seedVPN(t *testing.T, store reputation.Store, ip, country string) {
	t.Helper()
	err := store.Upsert(context.Background(), &reputation.Record{
		IP: ip, Country: country, IsVPN: true, Confidence: 0.9, LastSeen: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
}

func TestScreenCommercialVPN(t *testing.T) {
	store := reputation.NewMemoryStore()
	seedVPN(t, store, "1.2.3.4", "DE")
	svc := newTestService(store, &mockIntel{err: errors.New("should not be called")})

	res := svc.Screen(context.Background(), &Request{
		TransactionID: "tx_1001",
		UserID:        "user_42",
		UserCountry:   "US",
		IPAddress:     "1.2.3.4",
	})

	if res.RiskScore != 75 {
		t.Errorf("RiskScore = %d, want 75", res.RiskScore)
	}
	if res.RiskLevel != RiskHigh {
		t.Errorf("RiskLevel = %s, want high", res.RiskLevel)
	}
	if res.ShouldBlock {
		t.Error("ShouldBlock = true, want false for a high verdict")
	}
	if res.CountriesMatch {
		t.Error("CountriesMatch = true, want false for US vs DE")
	}
	if !res.Security.IsVPN {
		t.Error("Security.IsVPN = false, want true")
	}
	if res.Security.IsTor || res.Security.IsProxy || res.Security.IsRelay {
		t.Errorf("unexpected flags: %+v", res.Security)
	}
	if res.DetectedCountry != "DE" || res.UserCountry != "US" {
		t.Errorf("countries = %q/%q, want US/DE", res.UserCountry, res.DetectedCountry)
	}
	if res.Recommendation != "Flag for Manual Review" {
		t.Errorf("Recommendation = %q, want Flag for Manual Review", res.Recommendation)
	}
	if res.ScreeningID == "" {
		t.Error("ScreeningID is empty")
	}
	if res.Timestamp.IsZero() {
		t.Error("Timestamp is zero")
	}
}

func TestScreenGeoMaskingVPN(t *testing.T) {
	store := reputation.NewMemoryStore()
	seedVPN(t, store, "1.2.3.4", "US")
	svc := newTestService(store, &mockIntel{err: errors.New("should not be called")})

	res := svc.Screen(context.Background(), &Request{
		TransactionID: "tx_1002",
		UserID:        "user_42",
		UserCountry:   "US",
		IPAddress:     "1.2.3.4",
	})

	if res.RiskScore != 85 {
		t.Errorf("RiskScore = %d, want 85", res.RiskScore)
	}
	if !res.CountriesMatch {
		t.Error("CountriesMatch = false, want true for US vs US")
	}
	if len(res.TriggeredRules) == 0 || res.TriggeredRules[0].RuleName != "Geo-Masking VPN" {
		t.Errorf("TriggeredRules = %+v, want Geo-Masking VPN first", res.TriggeredRules)
	}
}

func TestScreenCleanApproval(t *testing.T) {
	store := reputation.NewMemoryStore()
	if err := store.Upsert(context.Background(), &reputation.Record{
		IP: "2.2.2.2", Country: "US", Confidence: 0.85,
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	svc := newTestService(store, &mockIntel{err: errors.New("should not be called")})

	res := svc.Screen(context.Background(), &Request{
		TransactionID: "tx_1003",
		UserID:        "user_7",
		UserCountry:   "us",
		IPAddress:     "2.2.2.2",
	})

	if res.RiskScore != 0 || res.RiskLevel != RiskLow {
		t.Errorf("verdict = %d/%s, want 0/low", res.RiskScore, res.RiskLevel)
	}
	if res.UserCountry != "US" {
		t.Errorf("UserCountry = %q, want normalized US", res.UserCountry)
	}
	if !res.CountriesMatch {
		t.Error("CountriesMatch = false, want true after normalization")
	}
	if res.Recommendation != "Approve" {
		t.Errorf("Recommendation = %q, want Approve", res.Recommendation)
	}
	if res.ShouldBlock {
		t.Error("ShouldBlock = true, want false")
	}
}

func TestScreenTorBlocks(t *testing.T) {
	store := reputation.NewMemoryStore()
	if err := store.Upsert(context.Background(), &reputation.Record{
		IP: "6.6.6.6", Country: "NL", IsTor: true, Confidence: 0.99,
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	svc := newTestService(store, &mockIntel{err: errors.New("should not be called")})

	res := svc.Screen(context.Background(), &Request{
		TransactionID: "tx_1004",
		UserID:        "user_9",
		UserCountry:   "NL",
		IPAddress:     "6.6.6.6",
	})

	if res.RiskScore != 100 || res.RiskLevel != RiskCritical {
		t.Errorf("verdict = %d/%s, want 100/critical", res.RiskScore, res.RiskLevel)
	}
	if !res.ShouldBlock {
		t.Error("ShouldBlock = false, want true for a critical verdict")
	}
	if res.Recommendation != "Block" {
		t.Errorf("Recommendation = %q, want Block", res.Recommendation)
	}
}

func TestScreenNeverFails(t *testing.T) {
	// Cold cache and a dead provider still produce a verdict.
	store := reputation.NewMemoryStore()
	svc := newTestService(store, &mockIntel{err: errors.New("provider down")})

	res := svc.Screen(context.Background(), &Request{
		TransactionID: "tx_1005",
		UserID:        "user_1",
		UserCountry:   "US",
		IPAddress:     "203.0.113.50",
	})

	if res == nil {
		t.Fatal("Screen returned nil on provider failure")
	}
	if res.Confidence != DegradedConfidence {
		t.Errorf("Confidence = %v, want degraded %v", res.Confidence, DegradedConfidence)
	}
	if res.DetectedCountry != CountryUnknown {
		t.Errorf("DetectedCountry = %q, want unknown", res.DetectedCountry)
	}
	if res.RiskScore != 60 {
		t.Errorf("RiskScore = %d, want 60 (unknown country mismatches)", res.RiskScore)
	}
	if res.ShouldBlock {
		t.Error("degraded screening must not hard-block")
	}
}

func TestScreenNotifiesEmitter(t *testing.T) {
	store := reputation.NewMemoryStore()
	seedVPN(t, store, "1.2.3.4", "DE")
	emitter := &captureEmitter{}
	svc := newTestService(store, &mockIntel{err: errors.New("should not be called")}).WithEmitter(emitter)

	req := &Request{TransactionID: "tx_1006", UserID: "user_3", UserCountry: "US", IPAddress: "1.2.3.4"}
	res := svc.Screen(context.Background(), req)

	emitter.mu.Lock()
	defer emitter.mu.Unlock()
	if emitter.req == nil || emitter.res == nil {
		t.Fatal("emitter not invoked")
	}
	if emitter.req.TransactionID != "tx_1006" {
		t.Errorf("emitter saw transaction %q, want tx_1006", emitter.req.TransactionID)
	}
	if emitter.res.ScreeningID != res.ScreeningID {
		t.Errorf("emitter saw screening %q, want %q", emitter.res.ScreeningID, res.ScreeningID)
	}
}

func TestScreenIDsAreUnique(t *testing.T) {
	store := reputation.NewMemoryStore()
	seedVPN(t, store, "1.2.3.4", "DE")
	svc := newTestService(store, &mockIntel{err: errors.New("should not be called")})

	req := &Request{TransactionID: "tx_1007", UserID: "user_5", UserCountry: "US", IPAddress: "1.2.3.4"}
	a := svc.Screen(context.Background(), req)
	b := svc.Screen(context.Background(), req)

	if a.ScreeningID == b.ScreeningID {
		t.Errorf("two screenings share ID %q", a.ScreeningID)
	}
}
