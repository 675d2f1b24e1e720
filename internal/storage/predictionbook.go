package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/pltm/engine/internal/model"
)

// LogClaim inserts a new prediction-book row.
func (db *DB) LogClaim(ctx context.Context, c model.Claim) (model.Claim, error) {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	_, err := db.pool.Exec(ctx, `
		INSERT INTO prediction_book (
			id, source_user, domain, statement, felt_confidence,
			adjusted_confidence, epistemic_status, has_verified, logged_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, c.ID, c.SourceUser, c.Domain, c.Statement, c.FeltConfidence, c.AdjustedConfidence,
		c.EpistemicStatus, c.HasVerified, c.LoggedAt)
	if err != nil {
		return model.Claim{}, model.Wrap(model.Internal, "storage.LogClaim", err)
	}
	return c, nil
}

// ResolveClaim records the verdict, calibration error, correction metadata,
// and resolution time for a previously logged claim.
func (db *DB) ResolveClaim(ctx context.Context, claimID uuid.UUID, verdict model.Verdict, calibrationError float64, correctionSource, correctionDetail string, resolvedAt time.Time) error {
	tag, err := db.pool.Exec(ctx, `
		UPDATE prediction_book
		SET verdict = $2, calibration_error = $3, correction_source = $4,
			correction_detail = $5, resolved_at = $6
		WHERE id = $1
	`, claimID, verdict, calibrationError, correctionSource, correctionDetail, resolvedAt)
	if err != nil {
		return model.Wrap(model.Internal, "storage.ResolveClaim", err)
	}
	if tag.RowsAffected() == 0 {
		return model.Wrap(model.NotFound, "storage.ResolveClaim", ErrNotFound)
	}
	return nil
}

// GetClaim retrieves a single prediction-book row.
func (db *DB) GetClaim(ctx context.Context, claimID uuid.UUID) (model.Claim, error) {
	row := db.pool.QueryRow(ctx, `
		SELECT id, source_user, domain, statement, felt_confidence, adjusted_confidence,
			epistemic_status, has_verified, logged_at, resolved_at, verdict,
			calibration_error, correction_source, correction_detail
		FROM prediction_book WHERE id = $1
	`, claimID)
	return scanClaim(row)
}

// FindUnresolvedClaimByText returns the most recently logged unresolved claim
// whose statement contains text, used by resolve_claim's claim_text lookup.
func (db *DB) FindUnresolvedClaimByText(ctx context.Context, text string) (model.Claim, error) {
	row := db.pool.QueryRow(ctx, `
		SELECT id, source_user, domain, statement, felt_confidence, adjusted_confidence,
			epistemic_status, has_verified, logged_at, resolved_at, verdict,
			calibration_error, correction_source, correction_detail
		FROM prediction_book
		WHERE statement ILIKE '%' || $1 || '%' AND resolved_at IS NULL
		ORDER BY logged_at DESC LIMIT 1
	`, text)
	return scanClaim(row)
}

// ListClaimsByDomain returns claims logged in domain, optionally restricted
// to resolved ones, used by calibration snapshot computation.
func (db *DB) ListClaimsByDomain(ctx context.Context, domain string, onlyResolved bool) ([]model.Claim, error) {
	query := `
		SELECT id, source_user, domain, statement, felt_confidence, adjusted_confidence,
			epistemic_status, has_verified, logged_at, resolved_at, verdict,
			calibration_error, correction_source, correction_detail
		FROM prediction_book WHERE domain = $1
	`
	if onlyResolved {
		query += " AND resolved_at IS NOT NULL"
	}
	rows, err := db.pool.Query(ctx, query, domain)
	if err != nil {
		return nil, model.Wrap(model.Internal, "storage.ListClaimsByDomain", err)
	}
	defer rows.Close()
	return collectClaims(rows)
}

// ListAllResolvedClaims returns every resolved claim across all domains, used
// for the cross-domain overall calibration summary.
func (db *DB) ListAllResolvedClaims(ctx context.Context) ([]model.Claim, error) {
	rows, err := db.pool.Query(ctx, `
		SELECT id, source_user, domain, statement, felt_confidence, adjusted_confidence,
			epistemic_status, has_verified, logged_at, resolved_at, verdict,
			calibration_error, correction_source, correction_detail
		FROM prediction_book WHERE resolved_at IS NOT NULL
	`)
	if err != nil {
		return nil, model.Wrap(model.Internal, "storage.ListAllResolvedClaims", err)
	}
	defer rows.Close()
	return collectClaims(rows)
}

// ListDistinctDomains returns every domain that has at least one resolved
// claim, used when get_calibration is called without a domain filter.
func (db *DB) ListDistinctDomains(ctx context.Context) ([]string, error) {
	rows, err := db.pool.Query(ctx, `
		SELECT DISTINCT domain FROM prediction_book WHERE resolved_at IS NOT NULL
	`)
	if err != nil {
		return nil, model.Wrap(model.Internal, "storage.ListDistinctDomains", err)
	}
	defer rows.Close()

	var domains []string
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, model.Wrap(model.Internal, "storage.ListDistinctDomains", err)
		}
		domains = append(domains, d)
	}
	return domains, rows.Err()
}

// CountUnresolvedClaims counts claims with no recorded verdict yet, optionally
// scoped to a single domain (an empty domain counts across all domains).
func (db *DB) CountUnresolvedClaims(ctx context.Context, domain string) (int, error) {
	var count int
	var err error
	if domain == "" {
		err = db.pool.QueryRow(ctx, `SELECT count(*) FROM prediction_book WHERE resolved_at IS NULL`).Scan(&count)
	} else {
		err = db.pool.QueryRow(ctx, `SELECT count(*) FROM prediction_book WHERE resolved_at IS NULL AND domain = $1`, domain).Scan(&count)
	}
	if err != nil {
		return 0, model.Wrap(model.Internal, "storage.CountUnresolvedClaims", err)
	}
	return count, nil
}

func collectClaims(rows pgx.Rows) ([]model.Claim, error) {
	var claims []model.Claim
	for rows.Next() {
		c, err := scanClaim(rows)
		if err != nil {
			return nil, model.Wrap(model.Internal, "storage.collectClaims", err)
		}
		claims = append(claims, c)
	}
	return claims, rows.Err()
}

func scanClaim(row pgx.Row) (model.Claim, error) {
	var c model.Claim
	var verdict *model.Verdict
	var correctionSource, correctionDetail *string
	err := row.Scan(
		&c.ID, &c.SourceUser, &c.Domain, &c.Statement, &c.FeltConfidence, &c.AdjustedConfidence,
		&c.EpistemicStatus, &c.HasVerified, &c.LoggedAt, &c.ResolvedAt, &verdict,
		&c.CalibrationError, &correctionSource, &correctionDetail,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Claim{}, model.Wrap(model.NotFound, "storage.scanClaim", ErrNotFound)
		}
		return model.Claim{}, err
	}
	if verdict != nil {
		c.Verdict = *verdict
	}
	if correctionSource != nil {
		c.CorrectionSource = *correctionSource
	}
	if correctionDetail != nil {
		c.CorrectionDetail = *correctionDetail
	}
	return c, nil
}
