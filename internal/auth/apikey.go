package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pltm/engine/internal/storage"
)

// apiKeySecretLen is the number of random bytes in the secret half of a
// minted API key, before base64url encoding.
const apiKeySecretLen = 24

// apiKeyStore is the subset of storage.DB this package needs, kept narrow
// so tests can fake it without pulling in a real database.
type apiKeyStore interface {
	CreateAPIKey(ctx context.Context, id uuid.UUID, sourceUser, keyHash string) error
	GetAPIKey(ctx context.Context, id uuid.UUID) (storage.APIKeyRecord, error)
}

// MintAPIKey generates a new API key for sourceUser, persists its Argon2id
// hash, and returns the one-time raw key the caller must present on
// subsequent token exchanges ("<id>.<secret>") — the secret itself is never
// stored, only its hash.
func MintAPIKey(ctx context.Context, store apiKeyStore, sourceUser string) (raw string, id uuid.UUID, err error) {
	secretBytes := make([]byte, apiKeySecretLen)
	if _, err := rand.Read(secretBytes); err != nil {
		return "", uuid.Nil, fmt.Errorf("auth: generate api key secret: %w", err)
	}
	secret := base64.RawURLEncoding.EncodeToString(secretBytes)

	hash, err := HashAPIKey(secret)
	if err != nil {
		return "", uuid.Nil, fmt.Errorf("auth: hash api key: %w", err)
	}

	id = uuid.New()
	if err := store.CreateAPIKey(ctx, id, sourceUser, hash); err != nil {
		return "", uuid.Nil, fmt.Errorf("auth: persist api key: %w", err)
	}

	return id.String() + "." + secret, id, nil
}

// AuthenticateAPIKey verifies a raw "<id>.<secret>" key against its stored
// hash and, on success, mints a bearer JWT scoped to the key's source_user
// with Claims.APIKeyID set. On any failure it still runs DummyVerify so a
// malformed key, an unknown ID, and a wrong secret all take the same time.
func AuthenticateAPIKey(ctx context.Context, store apiKeyStore, mgr *JWTManager, raw string) (string, time.Time, error) {
	idStr, secret, ok := strings.Cut(raw, ".")
	if !ok || idStr == "" || secret == "" {
		DummyVerify()
		return "", time.Time{}, fmt.Errorf("auth: malformed api key")
	}

	id, err := uuid.Parse(idStr)
	if err != nil {
		DummyVerify()
		return "", time.Time{}, fmt.Errorf("auth: malformed api key id")
	}

	rec, err := store.GetAPIKey(ctx, id)
	if err != nil {
		DummyVerify()
		return "", time.Time{}, fmt.Errorf("auth: api key not found")
	}
	if rec.RevokedAt != nil {
		DummyVerify()
		return "", time.Time{}, fmt.Errorf("auth: api key revoked")
	}

	valid, err := VerifyAPIKey(secret, rec.KeyHash)
	if err != nil || !valid {
		return "", time.Time{}, fmt.Errorf("auth: invalid api key")
	}

	return mgr.IssueAPIKeyToken(rec.SourceUser, id)
}
