// Package reputation implements the tiered IP reputation cache.
//
// Known IPs are bucketed into three collections: confirmed Tor exit nodes,
// confirmed VPN/proxy/relay endpoints, and confirmed clean addresses.
// Lookup walks the tiers in that order and stops at the first hit, so an IP
// that somehow ends up in more than one tier always resolves to the
// riskiest classification. Writes go to exactly one tier; stale entries in
// lower tiers are shadowed by lookup precedence rather than cleaned up.
package reputation

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound means the IP is in none of the three tiers.
	ErrNotFound = errors.New("ip not found in any tier")
	// ErrUnavailable wraps backend failures. Callers treat a failed read
	// as a full miss and a failed write as best-effort.
	ErrUnavailable = errors.New("reputation store unavailable")
)

// Tier identifies one of the reputation collections, or marks a
// classification as freshly fetched from the external provider.
type Tier string

const (
	TierTor      Tier = "tor"
	TierVPN      Tier = "vpn"
	TierClean    Tier = "clean"
	TierExternal Tier = "external"
)

// lookupOrder is the waterfall: tor shadows vpn shadows clean.
var lookupOrder = []Tier{TierTor, TierVPN, TierClean}

// Record is one cached IP classification.
type Record struct {
	IP         string    `json:"ip"`
	Country    string    `json:"country"`
	IsVPN      bool      `json:"is_vpn"`
	IsProxy    bool      `json:"is_proxy"`
	IsTor      bool      `json:"is_tor"`
	IsRelay    bool      `json:"is_relay"`
	Confidence float64   `json:"confidence"`
	LastSeen   time.Time `json:"last_seen"`
}

// StorageTier derives the collection a record belongs in from its flags.
// Tor outranks VPN/proxy/relay, which outrank clean.
func (r *Record) StorageTier() Tier {
	switch {
	case r.IsTor:
		return TierTor
	case r.IsVPN || r.IsProxy || r.IsRelay:
		return TierVPN
	default:
		return TierClean
	}
}

// Flagged reports whether any security flag is set.
func (r *Record) Flagged() bool {
	return r.IsTor || r.IsVPN || r.IsProxy || r.IsRelay
}

// Store is the tiered reputation cache.
type Store interface {
	// Lookup walks the tor, vpn, and clean tiers in order and returns the
	// first hit plus the tier it was found in. Returns ErrNotFound on a
	// full miss and ErrUnavailable (wrapped) on backend failure.
	Lookup(ctx context.Context, ip string) (*Record, Tier, error)

	// Upsert writes the record into the tier derived from its flags,
	// overwriting any previous entry for the same IP in that tier.
	Upsert(ctx context.Context, rec *Record) error
}
