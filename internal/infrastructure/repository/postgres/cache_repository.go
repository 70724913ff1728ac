package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nreshetnikov/image-recognition-service/internal/core/domain"
)

type CacheRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewCacheRepository(db *sql.DB) *CacheRepository {
	return &CacheRepository{db: db, now: func() time.Time { return time.Now().UTC() }}
}

func (r *CacheRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026083102)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS recognition_cache (
	fingerprint TEXT PRIMARY KEY,
	kind TEXT NOT NULL,
	labels JSONB,
	failure TEXT NOT NULL DEFAULT '',
	recorded_at TIMESTAMPTZ NOT NULL,
	expires_at TIMESTAMPTZ
);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

// Lookup treats expired success entries as absent; permanent failures come
// back no matter how old they are. Stale rows are left in place, the next
// Store for the fingerprint overwrites them.
func (r *CacheRepository) Lookup(ctx context.Context, fingerprint string) (*domain.CacheEntry, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT fingerprint, kind, labels, failure, recorded_at, expires_at
FROM recognition_cache
WHERE fingerprint = $1
`, fingerprint)

	var entry domain.CacheEntry
	var kind string
	var labelsRaw []byte
	var expiresAt sql.NullTime

	err := row.Scan(&entry.Fingerprint, &kind, &labelsRaw, &entry.Failure, &entry.RecordedAt, &expiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan cache entry: %w", err)
	}

	entry.Kind = domain.OutcomeKind(kind)
	if expiresAt.Valid {
		t := expiresAt.Time
		entry.ExpiresAt = &t
	}
	if len(labelsRaw) > 0 {
		if err := json.Unmarshal(labelsRaw, &entry.Labels); err != nil {
			return nil, fmt.Errorf("unmarshal cached labels: %w", err)
		}
	}

	if entry.Expired(r.now()) {
		return nil, nil
	}
	return &entry, nil
}

func (r *CacheRepository) Store(ctx context.Context, entry domain.CacheEntry) error {
	var labelsRaw any
	if entry.Labels != nil {
		raw, err := json.Marshal(entry.Labels)
		if err != nil {
			return fmt.Errorf("marshal cached labels: %w", err)
		}
		labelsRaw = raw
	}

	var expiresAt any
	if entry.ExpiresAt != nil {
		expiresAt = *entry.ExpiresAt
	}

	_, err := r.db.ExecContext(ctx, `
INSERT INTO recognition_cache (fingerprint, kind, labels, failure, recorded_at, expires_at)
VALUES ($1,$2,$3,$4,$5,$6)
ON CONFLICT (fingerprint) DO UPDATE
SET kind = EXCLUDED.kind,
    labels = EXCLUDED.labels,
    failure = EXCLUDED.failure,
    recorded_at = EXCLUDED.recorded_at,
    expires_at = EXCLUDED.expires_at
`, entry.Fingerprint, string(entry.Kind), labelsRaw, entry.Failure, entry.RecordedAt, expiresAt)
	if err != nil {
		return fmt.Errorf("store cache entry: %w", err)
	}
	return nil
}
