package storage

import (
	"context"

	"github.com/pltm/engine/internal/model"
)

// UpsertCalibrationSnapshot persists a freshly computed per-domain
// calibration snapshot to the Postgres calibration_cache table. The cache is
// derived and stale-tolerant: readers may serve a slightly out-of-date
// snapshot rather than block on recomputation.
func (db *DB) UpsertCalibrationSnapshot(ctx context.Context, s model.CalibrationSnapshot) error {
	_, err := db.pool.Exec(ctx, `
		INSERT INTO calibration_cache (
			domain, total_claims, verified_claims, correct_claims, accuracy_ratio,
			avg_felt_confidence, avg_calibration_error, overconfidence_ratio, last_updated
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (domain) DO UPDATE SET
			total_claims = EXCLUDED.total_claims,
			verified_claims = EXCLUDED.verified_claims,
			correct_claims = EXCLUDED.correct_claims,
			accuracy_ratio = EXCLUDED.accuracy_ratio,
			avg_felt_confidence = EXCLUDED.avg_felt_confidence,
			avg_calibration_error = EXCLUDED.avg_calibration_error,
			overconfidence_ratio = EXCLUDED.overconfidence_ratio,
			last_updated = EXCLUDED.last_updated
	`, s.Domain, s.TotalClaims, s.VerifiedClaims, s.CorrectClaims, s.AccuracyRatio,
		s.AvgFeltConfidence, s.AvgCalibrationError, s.OverconfidenceRatio, s.ComputedAt)
	if err != nil {
		return model.Wrap(model.Internal, "storage.UpsertCalibrationSnapshot", err)
	}
	return nil
}

// GetCalibrationSnapshot returns the most recently cached snapshot for
// domain, or NotFound if none has ever been computed.
func (db *DB) GetCalibrationSnapshot(ctx context.Context, domain string) (model.CalibrationSnapshot, error) {
	var s model.CalibrationSnapshot
	s.Domain = domain
	err := db.pool.QueryRow(ctx, `
		SELECT total_claims, verified_claims, correct_claims, accuracy_ratio,
			avg_felt_confidence, avg_calibration_error, overconfidence_ratio, last_updated
		FROM calibration_cache WHERE domain = $1
	`, domain).Scan(&s.TotalClaims, &s.VerifiedClaims, &s.CorrectClaims, &s.AccuracyRatio,
		&s.AvgFeltConfidence, &s.AvgCalibrationError, &s.OverconfidenceRatio, &s.ComputedAt)
	if err != nil {
		return model.CalibrationSnapshot{}, model.Wrap(model.NotFound, "storage.GetCalibrationSnapshot", ErrNotFound)
	}
	return s, nil
}

// RecordIntervention logs a pre-claim check to epistemic_interventions, the
// audit trail of every check_before_claiming call and its outcome.
func (db *DB) RecordIntervention(ctx context.Context, claim, domain string, feltConfidence, adjustedConfidence float64, action string, shouldHaveVerified, didVerify bool) error {
	if len(claim) > 500 {
		claim = claim[:500]
	}
	_, err := db.pool.Exec(ctx, `
		INSERT INTO epistemic_interventions (
			id, claim, domain, felt_confidence, adjusted_confidence,
			action_taken, should_have_verified, did_verify, outcome, created_at
		) VALUES (gen_random_uuid(), $1, $2, $3, $4, $5, $6, $7, 'pending', now())
	`, claim, domain, feltConfidence, adjustedConfidence, action, shouldHaveVerified, didVerify)
	if err != nil {
		return model.Wrap(model.Internal, "storage.RecordIntervention", err)
	}
	return nil
}
