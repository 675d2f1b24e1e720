package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/pltm/engine/internal/model"
)

// APIKeyRecord is the persisted half of a managed API key: everything
// needed to verify a presented secret and know who it authenticates as.
type APIKeyRecord struct {
	ID         uuid.UUID
	SourceUser string
	KeyHash    string
	CreatedAt  time.Time
	RevokedAt  *time.Time
}

// CreateAPIKey persists a newly minted API key record. id and keyHash are
// generated by the caller (internal/auth) since hashing is a domain
// concern, not a storage one.
func (db *DB) CreateAPIKey(ctx context.Context, id uuid.UUID, sourceUser, keyHash string) error {
	_, err := db.pool.Exec(ctx,
		`INSERT INTO api_keys (id, source_user, key_hash) VALUES ($1, $2, $3)`,
		id, sourceUser, keyHash,
	)
	if err != nil {
		return model.Wrap(model.Internal, "storage.CreateAPIKey", err)
	}
	return nil
}

// GetAPIKey retrieves an API key record by ID. Returns a NotFound
// *model.Error when absent; callers must check RevokedAt themselves since a
// revoked key is still a valid row, just no longer an authenticating one.
func (db *DB) GetAPIKey(ctx context.Context, id uuid.UUID) (APIKeyRecord, error) {
	row := db.pool.QueryRow(ctx,
		`SELECT id, source_user, key_hash, created_at, revoked_at FROM api_keys WHERE id = $1`,
		id,
	)
	var rec APIKeyRecord
	err := row.Scan(&rec.ID, &rec.SourceUser, &rec.KeyHash, &rec.CreatedAt, &rec.RevokedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return APIKeyRecord{}, model.Wrap(model.NotFound, "storage.GetAPIKey", ErrNotFound)
		}
		return APIKeyRecord{}, model.Wrap(model.Internal, "storage.GetAPIKey", err)
	}
	return rec, nil
}

// RevokeAPIKey marks an API key as revoked. Idempotent: revoking an
// already-revoked key is not an error.
func (db *DB) RevokeAPIKey(ctx context.Context, id uuid.UUID) error {
	_, err := db.pool.Exec(ctx,
		`UPDATE api_keys SET revoked_at = now() WHERE id = $1 AND revoked_at IS NULL`,
		id,
	)
	if err != nil {
		return model.Wrap(model.Internal, "storage.RevokeAPIKey", err)
	}
	return nil
}
