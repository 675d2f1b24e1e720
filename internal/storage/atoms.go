package storage

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"

	"github.com/pltm/engine/internal/model"
)

// Insert writes a new atom. If a.ID is the zero UUID, one is generated.
// FirstObserved/LastAccessed default to now when zero.
func (db *DB) Insert(ctx context.Context, a model.Atom) (model.Atom, error) {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}

	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return model.Atom{}, model.Wrap(model.Internal, "storage.Insert", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO atoms (
			id, subject, predicate, object, atom_type, provenance, graph,
			confidence, strength, first_observed, last_accessed,
			assertion_count, access_count, contexts, source_user, metadata, embedding
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
	`,
		a.ID, a.Subject, a.Predicate, a.Object, a.AtomType, a.Provenance, a.Graph,
		a.Confidence, a.Strength, a.FirstObserved, a.LastAccessed,
		a.AssertionCount, a.AccessCount, a.Contexts, a.SourceUser, a.Metadata, a.Embedding,
	)
	if err != nil {
		return model.Atom{}, model.Wrap(model.Internal, "storage.Insert", err)
	}

	if err := enqueueOutboxUpsert(ctx, tx, a.ID); err != nil {
		return model.Atom{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return model.Atom{}, model.Wrap(model.Internal, "storage.Insert", err)
	}
	return a, nil
}

const atomColumns = `
	id, subject, predicate, object, atom_type, provenance, graph,
	confidence, strength, first_observed, last_accessed,
	assertion_count, access_count, contexts, source_user, metadata, embedding, superseded_by
`

func scanAtom(row pgx.Row) (model.Atom, error) {
	var a model.Atom
	var embedding *pgvector.Vector
	err := row.Scan(
		&a.ID, &a.Subject, &a.Predicate, &a.Object, &a.AtomType, &a.Provenance, &a.Graph,
		&a.Confidence, &a.Strength, &a.FirstObserved, &a.LastAccessed,
		&a.AssertionCount, &a.AccessCount, &a.Contexts, &a.SourceUser, &a.Metadata,
		&embedding, &a.SupersededBy,
	)
	if err != nil {
		return model.Atom{}, err
	}
	a.Embedding = embedding
	return a, nil
}

// Get retrieves an atom by ID. Returns a NotFound *model.Error when absent.
func (db *DB) Get(ctx context.Context, id uuid.UUID) (model.Atom, error) {
	row := db.pool.QueryRow(ctx, "SELECT "+atomColumns+" FROM atoms WHERE id = $1", id)
	a, err := scanAtom(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Atom{}, model.Wrap(model.NotFound, "storage.Get", ErrNotFound)
		}
		return model.Atom{}, model.Wrap(model.Internal, "storage.Get", err)
	}
	return a, nil
}

// Update persists mutable fields of an existing atom (confidence, strength,
// graph, access bookkeeping, superseded_by). Subject/predicate/object/
// atom_type are immutable once written — use Insert + supersession instead.
func (db *DB) Update(ctx context.Context, a model.Atom) error {
	tag, err := db.pool.Exec(ctx, `
		UPDATE atoms SET
			provenance = $2, graph = $3, confidence = $4, strength = $5,
			last_accessed = $6, assertion_count = $7, access_count = $8,
			contexts = $9, metadata = $10, superseded_by = $11
		WHERE id = $1
	`,
		a.ID, a.Provenance, a.Graph, a.Confidence, a.Strength,
		a.LastAccessed, a.AssertionCount, a.AccessCount,
		a.Contexts, a.Metadata, a.SupersededBy,
	)
	if err != nil {
		return model.Wrap(model.Internal, "storage.Update", err)
	}
	if tag.RowsAffected() == 0 {
		return model.Wrap(model.NotFound, "storage.Update", ErrNotFound)
	}
	return nil
}

// Delete removes an atom outright. Prefer transitioning Graph to HISTORICAL
// over deletion for anything that should remain auditable.
func (db *DB) Delete(ctx context.Context, id uuid.UUID) error {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return model.Wrap(model.Internal, "storage.Delete", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, "DELETE FROM atoms WHERE id = $1", id)
	if err != nil {
		return model.Wrap(model.Internal, "storage.Delete", err)
	}
	if tag.RowsAffected() == 0 {
		return model.Wrap(model.NotFound, "storage.Delete", ErrNotFound)
	}
	if err := enqueueOutboxDelete(ctx, tx, id); err != nil {
		return err
	}
	return model.Wrap(model.Internal, "storage.Delete", tx.Commit(ctx))
}

// FindByTriple looks up atoms matching an exact (subject, predicate, object)
// for a given caller. Used by the reconciler's identity-match stage.
func (db *DB) FindByTriple(ctx context.Context, sourceUser, subject, predicate, object string) ([]model.Atom, error) {
	rows, err := db.pool.Query(ctx, `
		SELECT `+atomColumns+` FROM atoms
		WHERE source_user = $1 AND subject = $2 AND predicate = $3 AND object = $4
	`, sourceUser, subject, predicate, object)
	if err != nil {
		return nil, model.Wrap(model.Internal, "storage.FindByTriple", err)
	}
	defer rows.Close()
	return collectAtoms(rows)
}

// GetBySubject returns every atom recorded for a subject, regardless of
// graph state, newest first.
func (db *DB) GetBySubject(ctx context.Context, sourceUser, subject string) ([]model.Atom, error) {
	rows, err := db.pool.Query(ctx, `
		SELECT `+atomColumns+` FROM atoms
		WHERE source_user = $1 AND subject = $2
		ORDER BY first_observed DESC
	`, sourceUser, subject)
	if err != nil {
		return nil, model.Wrap(model.Internal, "storage.GetBySubject", err)
	}
	defer rows.Close()
	return collectAtoms(rows)
}

// GetByGraph returns every atom in the given graph state for a caller, or
// for every caller when sourceUser is empty (the decay worker's scheduled
// sweep and idle refresh). Used by the decay worker (UNSUBSTANTIATED sweep)
// and by retrieval (SUBSTANTIATED scan).
func (db *DB) GetByGraph(ctx context.Context, sourceUser string, graph model.GraphState, limit int) ([]model.Atom, error) {
	if limit <= 0 {
		limit = 10000
	}
	rows, err := db.pool.Query(ctx, `
		SELECT `+atomColumns+` FROM atoms
		WHERE ($1 = '' OR source_user = $1) AND graph = $2
		ORDER BY last_accessed DESC
		LIMIT $3
	`, sourceUser, graph, limit)
	if err != nil {
		return nil, model.Wrap(model.Internal, "storage.GetByGraph", err)
	}
	defer rows.Close()
	return collectAtoms(rows)
}

// FTSSearch runs a full-text query against the subject/predicate/object
// tsvector column, newest-matching-first.
func (db *DB) FTSSearch(ctx context.Context, sourceUser, query string, limit int) ([]model.Atom, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.pool.Query(ctx, `
		SELECT `+atomColumns+` FROM atoms
		WHERE source_user = $1 AND search_vector @@ plainto_tsquery('english', $2)
		ORDER BY ts_rank(search_vector, plainto_tsquery('english', $2)) DESC
		LIMIT $3
	`, sourceUser, query, limit)
	if err != nil {
		return nil, model.Wrap(model.External, "storage.FTSSearch", err)
	}
	defer rows.Close()
	return collectAtoms(rows)
}

// VectorSearch returns the atoms nearest to embedding by cosine distance.
// Requires store.vector_enabled; callers should fall back to FTSSearch when
// the embedding column isn't populated.
func (db *DB) VectorSearch(ctx context.Context, sourceUser string, embedding pgvector.Vector, limit int) ([]model.Atom, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.pool.Query(ctx, `
		SELECT `+atomColumns+` FROM atoms
		WHERE source_user = $1 AND embedding IS NOT NULL
		ORDER BY embedding <=> $2
		LIMIT $3
	`, sourceUser, embedding, limit)
	if err != nil {
		return nil, model.Wrap(model.External, "storage.VectorSearch", err)
	}
	defer rows.Close()
	return collectAtoms(rows)
}

func collectAtoms(rows pgx.Rows) ([]model.Atom, error) {
	var atoms []model.Atom
	for rows.Next() {
		a, err := scanAtom(rows)
		if err != nil {
			return nil, model.Wrap(model.Internal, "storage.collectAtoms", err)
		}
		atoms = append(atoms, a)
	}
	if err := rows.Err(); err != nil {
		return nil, model.Wrap(model.Internal, "storage.collectAtoms", err)
	}
	return atoms, nil
}

// enqueueOutboxUpsert and enqueueOutboxDelete queue vector-index sync work
// inside the same transaction as the triggering write, mirroring the
// transactional-outbox pattern: the index converges asynchronously, but the
// durability-critical write never waits on it. See internal/search/outbox.go.
func enqueueOutboxUpsert(ctx context.Context, tx pgx.Tx, atomID uuid.UUID) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO atom_search_outbox (id, atom_id, operation, created_at, attempts)
		VALUES (gen_random_uuid(), $1, 'upsert', now(), 0)
		ON CONFLICT (atom_id, operation) DO UPDATE SET created_at = now(), attempts = 0, locked_until = NULL
	`, atomID)
	if err != nil {
		return model.Wrap(model.Internal, "storage.enqueueOutboxUpsert", err)
	}
	return notifyOutboxWrite(ctx, tx, atomID)
}

func enqueueOutboxDelete(ctx context.Context, tx pgx.Tx, atomID uuid.UUID) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO atom_search_outbox (id, atom_id, operation, created_at, attempts)
		VALUES (gen_random_uuid(), $1, 'delete', now(), 0)
		ON CONFLICT (atom_id, operation) DO UPDATE SET created_at = now(), attempts = 0, locked_until = NULL
	`, atomID)
	if err != nil {
		return model.Wrap(model.Internal, "storage.enqueueOutboxDelete", err)
	}
	return notifyOutboxWrite(ctx, tx, atomID)
}

// notifyOutboxWrite wakes any listener on ChannelAtoms so an outbox worker
// holding a dedicated LISTEN connection can drain the new entry immediately
// rather than waiting for its next poll tick. Best-effort: pg_notify fires
// on commit, so this can't fail the transaction on delivery, only on the
// call itself.
func notifyOutboxWrite(ctx context.Context, tx pgx.Tx, atomID uuid.UUID) error {
	if _, err := tx.Exec(ctx, `SELECT pg_notify($1, $2)`, ChannelAtoms, atomID.String()); err != nil {
		return model.Wrap(model.Internal, "storage.notifyOutboxWrite", err)
	}
	return nil
}

// InsertTx is Insert scoped to an already-open transaction, for callers
// running inside WithAtomLock that need to insert alongside other moves in
// the same commit (the reconciler's winner/loser transition).
func (db *DB) InsertTx(ctx context.Context, tx pgx.Tx, a model.Atom) (model.Atom, error) {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	_, err := tx.Exec(ctx, `
		INSERT INTO atoms (
			id, subject, predicate, object, atom_type, provenance, graph,
			confidence, strength, first_observed, last_accessed,
			assertion_count, access_count, contexts, source_user, metadata, embedding
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
	`,
		a.ID, a.Subject, a.Predicate, a.Object, a.AtomType, a.Provenance, a.Graph,
		a.Confidence, a.Strength, a.FirstObserved, a.LastAccessed,
		a.AssertionCount, a.AccessCount, a.Contexts, a.SourceUser, a.Metadata, a.Embedding,
	)
	if err != nil {
		return model.Atom{}, model.Wrap(model.Internal, "storage.InsertTx", err)
	}
	if err := enqueueOutboxUpsert(ctx, tx, a.ID); err != nil {
		return model.Atom{}, err
	}
	return a, nil
}

// UpdateTx is Update scoped to an already-open transaction.
func (db *DB) UpdateTx(ctx context.Context, tx pgx.Tx, a model.Atom) error {
	tag, err := tx.Exec(ctx, `
		UPDATE atoms SET
			provenance = $2, graph = $3, confidence = $4, strength = $5,
			last_accessed = $6, assertion_count = $7, access_count = $8,
			contexts = $9, metadata = $10, superseded_by = $11
		WHERE id = $1
	`,
		a.ID, a.Provenance, a.Graph, a.Confidence, a.Strength,
		a.LastAccessed, a.AssertionCount, a.AccessCount,
		a.Contexts, a.Metadata, a.SupersededBy,
	)
	if err != nil {
		return model.Wrap(model.Internal, "storage.UpdateTx", err)
	}
	if tag.RowsAffected() == 0 {
		return model.Wrap(model.NotFound, "storage.UpdateTx", ErrNotFound)
	}
	if err := enqueueOutboxUpsert(ctx, tx, a.ID); err != nil {
		return err
	}
	return nil
}

// FindByTripleTx is FindByTriple scoped to an already-open transaction, used
// to re-check identity match after acquiring the per-(subject,predicate)
// advisory lock, closing the race between the reconciler's pre-lock read
// and the lock grant.
func (db *DB) FindByTripleTx(ctx context.Context, tx pgx.Tx, sourceUser, subject, predicate, object string) ([]model.Atom, error) {
	rows, err := tx.Query(ctx, `
		SELECT `+atomColumns+` FROM atoms
		WHERE source_user = $1 AND subject = $2 AND predicate = $3 AND object = $4
	`, sourceUser, subject, predicate, object)
	if err != nil {
		return nil, model.Wrap(model.Internal, "storage.FindByTripleTx", err)
	}
	defer rows.Close()
	return collectAtoms(rows)
}

// FindConflictCandidatesTx returns every non-HISTORICAL atom sharing a
// subject with candidate, for the reconciler's similarity-filter stage to
// narrow down within the same transaction as the eventual write.
func (db *DB) FindConflictCandidatesTx(ctx context.Context, tx pgx.Tx, sourceUser, subject string) ([]model.Atom, error) {
	rows, err := tx.Query(ctx, `
		SELECT `+atomColumns+` FROM atoms
		WHERE source_user = $1 AND subject = $2 AND graph != $3
	`, sourceUser, subject, model.GraphHistorical)
	if err != nil {
		return nil, model.Wrap(model.Internal, "storage.FindConflictCandidatesTx", err)
	}
	defer rows.Close()
	return collectAtoms(rows)
}

// WithAtomLock runs fn holding a transaction-scoped Postgres advisory lock
// keyed by (subject, predicate), so concurrent writers touching the same
// fact serialize instead of racing the reconciler. This is the keyed
// advisory lock called for in the design notes — never a global mutex.
func (db *DB) WithAtomLock(ctx context.Context, subject, predicate string, fn func(tx pgx.Tx) error) error {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return model.Wrap(model.Internal, "storage.WithAtomLock", err)
	}
	defer tx.Rollback(ctx)

	key := subject + "\x00" + predicate
	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock(hashtext($1))", key); err != nil {
		return model.Wrap(model.Internal, "storage.WithAtomLock", err)
	}
	if err := fn(tx); err != nil {
		return err
	}
	return model.Wrap(model.Internal, "storage.WithAtomLock", tx.Commit(ctx))
}
