package reputation

import (
	"context"
	"database/sql"
	"fmt"
)

// tierTables maps each storage tier to its table. Fixed set, never built
// from user input.
var tierTables = map[Tier]string{
	TierTor:   "tor_ips",
	TierVPN:   "vpn_ips",
	TierClean: "clean_ips",
}

// PostgresStore persists the tiered IP cache in PostgreSQL, one table
// per tier.
type PostgresStore struct {
	db *sql.DB
}

// Compile-time check.
var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a PostgreSQL-backed tiered store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the tier tables if they don't exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	for _, tier := range lookupOrder {
		ddl := fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				ip         TEXT PRIMARY KEY,
				country    TEXT NOT NULL DEFAULT '',
				is_vpn     BOOLEAN NOT NULL DEFAULT FALSE,
				is_proxy   BOOLEAN NOT NULL DEFAULT FALSE,
				is_tor     BOOLEAN NOT NULL DEFAULT FALSE,
				is_relay   BOOLEAN NOT NULL DEFAULT FALSE,
				confidence DOUBLE PRECISION NOT NULL DEFAULT 0 CHECK (confidence >= 0 AND confidence <= 1),
				last_seen  TIMESTAMPTZ NOT NULL DEFAULT NOW()
			)`, tierTables[tier])
		if _, err := s.db.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("create %s: %w", tierTables[tier], err)
		}
	}
	return nil
}

func (s *PostgresStore) Lookup(ctx context.Context, ip string) (*Record, Tier, error) {
	for _, tier := range lookupOrder {
		q := fmt.Sprintf(`
			SELECT ip, country, is_vpn, is_proxy, is_tor, is_relay, confidence, last_seen
			FROM %s
			WHERE ip = $1`, tierTables[tier])

		rec := &Record{}
		err := s.db.QueryRowContext(ctx, q, ip).Scan(
			&rec.IP, &rec.Country,
			&rec.IsVPN, &rec.IsProxy, &rec.IsTor, &rec.IsRelay,
			&rec.Confidence, &rec.LastSeen,
		)
		if err == sql.ErrNoRows {
			continue
		}
		if err != nil {
			return nil, "", fmt.Errorf("%w: query %s: %v", ErrUnavailable, tierTables[tier], err)
		}
		return rec, tier, nil
	}
	return nil, "", ErrNotFound
}

func (s *PostgresStore) Upsert(ctx context.Context, rec *Record) error {
	q := fmt.Sprintf(`
		INSERT INTO %s (ip, country, is_vpn, is_proxy, is_tor, is_relay, confidence, last_seen)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (ip) DO UPDATE SET
			country    = EXCLUDED.country,
			is_vpn     = EXCLUDED.is_vpn,
			is_proxy   = EXCLUDED.is_proxy,
			is_tor     = EXCLUDED.is_tor,
			is_relay   = EXCLUDED.is_relay,
			confidence = EXCLUDED.confidence,
			last_seen  = EXCLUDED.last_seen`, tierTables[rec.StorageTier()])

	_, err := s.db.ExecContext(ctx, q,
		rec.IP, rec.Country,
		rec.IsVPN, rec.IsProxy, rec.IsTor, rec.IsRelay,
		rec.Confidence, rec.LastSeen,
	)
	if err != nil {
		return fmt.Errorf("%w: upsert %s: %v", ErrUnavailable, tierTables[rec.StorageTier()], err)
	}
	return nil
}
