package screening

import (
	"context"
	"errors"
	"strings"

	"github.com/paydesk/ipintel/internal/logging"
	"github.com/paydesk/ipintel/internal/metrics"
	"github.com/paydesk/ipintel/internal/reputation"
	"github.com/paydesk/ipintel/internal/syncutil"
)

// DegradedConfidence marks a classification produced without any cache or
// provider data. Low on purpose so downstream consumers can spot it.
const DegradedConfidence = 0.2

// IntelClient is the external provider dependency of the resolver.
type IntelClient interface {
	Classify(ctx context.Context, ip string) (*reputation.Record, error)
}

// Resolver turns an IP into a classification: cache waterfall first, then
// the external provider with a learn-cache write, then a degraded stand-in
// when the provider is unreachable.
type Resolver struct {
	store reputation.Store
	intel IntelClient
	locks syncutil.ShardedMutex
}

// NewResolver creates a resolver over the given cache and provider.
func NewResolver(store reputation.Store, intel IntelClient) *Resolver {
	return &Resolver{store: store, intel: intel}
}

// Resolve never fails: every path returns a usable classification.
func (r *Resolver) Resolve(ctx context.Context, ip string) *Classification {
	rec, tier, err := r.store.Lookup(ctx, ip)
	if err == nil {
		metrics.CacheLookupsTotal.WithLabelValues(string(tier), "hit").Inc()
		return classificationFromRecord(rec, tier)
	}
	if !errors.Is(err, reputation.ErrNotFound) {
		// A failed read is a full miss; the provider still answers.
		logging.L(ctx).Warn("reputation lookup failed", "ip", ip, "error", err)
	}
	metrics.CacheLookupsTotal.WithLabelValues("none", "miss").Inc()

	// One provider call per IP at a time. A burst of screenings for the
	// same unknown address costs a single upstream lookup; the rest wait
	// here and read the learned record.
	unlock := r.locks.Lock(ip)
	defer unlock()

	if rec, tier, err := r.store.Lookup(ctx, ip); err == nil {
		metrics.CacheLookupsTotal.WithLabelValues(string(tier), "hit").Inc()
		return classificationFromRecord(rec, tier)
	}

	rec, err = r.intel.Classify(ctx, ip)
	if err != nil {
		metrics.DegradedScreeningsTotal.Inc()
		logging.L(ctx).Warn("classification degraded", "ip", ip, "error", err)
		return degradedClassification(ip)
	}

	// Learn-cache: the next lookup of this IP hits the tier directly.
	// Best-effort; a failed write must not fail the screening.
	if err := r.store.Upsert(ctx, rec); err != nil {
		logging.L(ctx).Warn("learn-cache write failed", "ip", ip, "error", err)
	}

	return classificationFromRecord(rec, reputation.TierExternal)
}

// classificationFromRecord copies a cache record into a classification,
// normalizing an absent country to the unknown marker.
func classificationFromRecord(rec *reputation.Record, tier reputation.Tier) *Classification {
	country := strings.ToUpper(strings.TrimSpace(rec.Country))
	if country == "" {
		country = CountryUnknown
	}
	return &Classification{
		IP:         rec.IP,
		IsTor:      rec.IsTor,
		IsVPN:      rec.IsVPN,
		IsProxy:    rec.IsProxy,
		IsRelay:    rec.IsRelay,
		Country:    country,
		Confidence: rec.Confidence,
		SourceTier: tier,
	}
}

// degradedClassification is the stand-in when neither cache nor provider
// could answer. Not written to the cache: an unresolved lookup must not
// poison future lookups with false clean data.
func degradedClassification(ip string) *Classification {
	return &Classification{
		IP:         ip,
		Country:    CountryUnknown,
		Confidence: DegradedConfidence,
		SourceTier: reputation.TierClean,
	}
}
