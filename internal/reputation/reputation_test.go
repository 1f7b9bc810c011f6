package reputation

import (
	"context"
	"testing"
	"time"
)

func TestStorageTier(t *testing.T) {
	tests := []struct {
		name string
		rec  Record
		want Tier
	}{
		{"tor only", Record{IsTor: true}, TierTor},
		{"tor outranks vpn", Record{IsTor: true, IsVPN: true}, TierTor},
		{"vpn", Record{IsVPN: true}, TierVPN},
		{"proxy", Record{IsProxy: true}, TierVPN},
		{"relay", Record{IsRelay: true}, TierVPN},
		{"no flags", Record{}, TierClean},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.rec.StorageTier(); got != tc.want {
				t.Errorf("StorageTier() = %s, want %s", got, tc.want)
			}
		})
	}
}

func TestMemoryStoreLookupMiss(t *testing.T) {
	store := NewMemoryStore()

	_, _, err := store.Lookup(context.Background(), "198.51.100.7")
	if err != ErrNotFound {
		t.Errorf("Lookup on empty store = %v, want ErrNotFound", err)
	}
}

func TestMemoryStoreUpsertAndLookup(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	rec := &Record{
		IP:         "203.0.113.10",
		Country:    "DE",
		IsVPN:      true,
		Confidence: 0.9,
		LastSeen:   time.Now(),
	}
	if err := store.Upsert(ctx, rec); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	got, tier, err := store.Lookup(ctx, "203.0.113.10")
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if tier != TierVPN {
		t.Errorf("tier = %s, want vpn", tier)
	}
	if got.Country != "DE" || !got.IsVPN || got.Confidence != 0.9 {
		t.Errorf("unexpected record: %+v", got)
	}
}

func TestMemoryStoreWaterfallPrecedence(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	ip := "203.0.113.99"

	// Seed the same IP into all three tiers. Tor must win.
	if err := store.Upsert(ctx, &Record{IP: ip, Country: "NL"}); err != nil {
		t.Fatal(err)
	}
	if err := store.Upsert(ctx, &Record{IP: ip, Country: "SE", IsVPN: true}); err != nil {
		t.Fatal(err)
	}
	if err := store.Upsert(ctx, &Record{IP: ip, Country: "CH", IsTor: true}); err != nil {
		t.Fatal(err)
	}

	got, tier, err := store.Lookup(ctx, ip)
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if tier != TierTor {
		t.Errorf("tier = %s, want tor", tier)
	}
	if got.Country != "CH" {
		t.Errorf("Country = %s, want CH (the tor-tier record)", got.Country)
	}

	// All three tiers should still hold their entry; lookup just shadows.
	for _, tr := range []Tier{TierTor, TierVPN, TierClean} {
		if store.TierSize(tr) != 1 {
			t.Errorf("TierSize(%s) = %d, want 1", tr, store.TierSize(tr))
		}
	}
}

func TestMemoryStoreUpsertOverwrites(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	ip := "203.0.113.42"

	if err := store.Upsert(ctx, &Record{IP: ip, Country: "FR", IsVPN: true, Confidence: 0.5}); err != nil {
		t.Fatal(err)
	}
	if err := store.Upsert(ctx, &Record{IP: ip, Country: "ES", IsVPN: true, Confidence: 0.8}); err != nil {
		t.Fatal(err)
	}

	got, _, err := store.Lookup(ctx, ip)
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if got.Country != "ES" || got.Confidence != 0.8 {
		t.Errorf("record not overwritten: %+v", got)
	}
	if store.TierSize(TierVPN) != 1 {
		t.Errorf("TierSize(vpn) = %d, want 1", store.TierSize(TierVPN))
	}
}

func TestMemoryStoreLookupReturnsCopy(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	ip := "203.0.113.5"

	if err := store.Upsert(ctx, &Record{IP: ip, Country: "US"}); err != nil {
		t.Fatal(err)
	}

	first, _, _ := store.Lookup(ctx, ip)
	first.Country = "ZZ"

	second, _, _ := store.Lookup(ctx, ip)
	if second.Country != "US" {
		t.Error("mutating a looked-up record must not affect the store")
	}
}

func TestFlagged(t *testing.T) {
	if (&Record{}).Flagged() {
		t.Error("record with no flags should not be flagged")
	}
	for _, rec := range []*Record{
		{IsTor: true}, {IsVPN: true}, {IsProxy: true}, {IsRelay: true},
	} {
		if !rec.Flagged() {
			t.Errorf("record %+v should be flagged", rec)
		}
	}
}
