package kvstore

import (
	"context"
	"fmt"
	"time"

	"horse.fit/chatsense/internal/db"
	"horse.fit/chatsense/internal/globaltime"
)

// Postgres persists entries in the kv_entries table managed by db.Pool.
type Postgres struct {
	pool  *db.Pool
	clock globaltime.Clock
}

func NewPostgres(pool *db.Pool, clock globaltime.Clock) *Postgres {
	return &Postgres{pool: pool, clock: globaltime.OrSystem(clock)}
}

func (p *Postgres) Get(ctx context.Context, key string) ([]byte, bool, error) {
	const q = `
SELECT value
FROM chatsense.kv_entries
WHERE key = $1
  AND (expires_at IS NULL OR expires_at > $2)
LIMIT 1
`
	var value []byte
	err := p.pool.QueryRow(ctx, q, key, p.clock.Now().UTC()).Scan(&value)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("query kv entry: %w", err)
	}
	return value, true, nil
}

func (p *Postgres) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	const q = `
INSERT INTO chatsense.kv_entries (key, value, expires_at, updated_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (key)
DO UPDATE SET
	value = EXCLUDED.value,
	expires_at = EXCLUDED.expires_at,
	updated_at = EXCLUDED.updated_at
`
	now := p.clock.Now().UTC()
	if _, err := p.pool.Exec(ctx, q, key, value, expiryFor(now, ttl), now); err != nil {
		return fmt.Errorf("upsert kv entry: %w", err)
	}
	return nil
}

func (p *Postgres) Delete(ctx context.Context, key string) error {
	if _, err := p.pool.Exec(ctx, `DELETE FROM chatsense.kv_entries WHERE key = $1`, key); err != nil {
		return fmt.Errorf("delete kv entry: %w", err)
	}
	return nil
}

func (p *Postgres) DeletePrefix(ctx context.Context, prefix string) (int64, error) {
	tag, err := p.pool.Exec(ctx, `DELETE FROM chatsense.kv_entries WHERE left(key, $1) = $2`, len([]rune(prefix)), prefix)
	if err != nil {
		return 0, fmt.Errorf("delete kv prefix: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (p *Postgres) PurgeExpired(ctx context.Context) (int64, error) {
	res := p.pool.GORM().WithContext(ctx).
		Where("expires_at IS NOT NULL AND expires_at <= ?", p.clock.Now().UTC()).
		Delete(&db.KVEntry{})
	if res.Error != nil {
		return 0, fmt.Errorf("purge expired kv entries: %w", res.Error)
	}
	return res.RowsAffected, nil
}

func (p *Postgres) Close() error {
	return p.pool.Close()
}
