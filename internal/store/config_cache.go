package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/salesboost/internal/ir"
)

// CachedConfig is one cached config document.
type CachedConfig struct {
	StoreID       string
	Payload       []byte
	Hash          string
	FetchedAt     time.Time
	EngineVersion string
}

// PutConfig upserts the config document for a store.
// The previous copy for the same store is replaced.
func (s *Store) PutConfig(ctx context.Context, storeID string, payload []byte) error {
	if storeID == "" {
		return fmt.Errorf("put config: empty store id")
	}

	hash, err := ir.ConfigHash(payload)
	if err != nil {
		return fmt.Errorf("put config: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO config_cache (store_id, payload, hash, fetched_at, engine_version)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(store_id) DO UPDATE SET
			payload = excluded.payload,
			hash = excluded.hash,
			fetched_at = excluded.fetched_at,
			engine_version = excluded.engine_version
	`,
		storeID,
		payload,
		hash,
		s.now().UnixMilli(),
		ir.EngineVersion,
	)
	if err != nil {
		return fmt.Errorf("put config: %w", err)
	}

	return nil
}

// GetConfig returns the cached document for a store.
// Returns (CachedConfig{}, false, nil) when nothing is cached.
func (s *Store) GetConfig(ctx context.Context, storeID string) (CachedConfig, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT store_id, payload, hash, fetched_at, engine_version
		FROM config_cache
		WHERE store_id = ?
	`, storeID)

	c, err := scanConfig(row)
	if errors.Is(err, sql.ErrNoRows) {
		return CachedConfig{}, false, nil
	}
	if err != nil {
		return CachedConfig{}, false, fmt.Errorf("get config: %w", err)
	}
	return c, true, nil
}

// DeleteConfig removes the cached document for a store.
// Deleting a missing entry is not an error.
func (s *Store) DeleteConfig(ctx context.Context, storeID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM config_cache WHERE store_id = ?`, storeID); err != nil {
		return fmt.Errorf("delete config: %w", err)
	}
	return nil
}

// ListConfigs returns every cached document, most recently fetched first.
func (s *Store) ListConfigs(ctx context.Context) ([]CachedConfig, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT store_id, payload, hash, fetched_at, engine_version
		FROM config_cache
		ORDER BY fetched_at DESC, store_id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list configs: %w", err)
	}
	defer rows.Close()

	var out []CachedConfig
	for rows.Next() {
		c, err := scanConfig(rows)
		if err != nil {
			return nil, fmt.Errorf("list configs: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list configs: %w", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanConfig(row scanner) (CachedConfig, error) {
	var (
		c         CachedConfig
		fetchedAt int64
	)
	if err := row.Scan(&c.StoreID, &c.Payload, &c.Hash, &fetchedAt, &c.EngineVersion); err != nil {
		return CachedConfig{}, err
	}
	c.FetchedAt = time.UnixMilli(fetchedAt)
	return c, nil
}
