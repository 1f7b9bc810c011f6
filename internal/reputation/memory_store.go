package reputation

import (
	"context"
	"sync"
)

// MemoryStore is an in-memory implementation of Store for demo/test use.
type MemoryStore struct {
	mu    sync.RWMutex
	tiers map[Tier]map[string]*Record
}

// Compile-time check.
var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory tiered store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tiers: map[Tier]map[string]*Record{
			TierTor:   {},
			TierVPN:   {},
			TierClean: {},
		},
	}
}

func (s *MemoryStore) Lookup(ctx context.Context, ip string) (*Record, Tier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, tier := range lookupOrder {
		if rec, ok := s.tiers[tier][ip]; ok {
			cp := *rec
			return &cp, tier, nil
		}
	}
	return nil, "", ErrNotFound
}

func (s *MemoryStore) Upsert(ctx context.Context, rec *Record) error {
	cp := *rec

	s.mu.Lock()
	defer s.mu.Unlock()

	s.tiers[rec.StorageTier()][rec.IP] = &cp
	return nil
}

// TierSize returns the number of records in one tier. Test helper.
func (s *MemoryStore) TierSize(tier Tier) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tiers[tier])
}
