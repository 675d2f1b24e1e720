package epistemic

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/pltm/engine/internal/model"
)

// SnapshotCache is an embedded local cache of per-domain calibration
// snapshots backed by modernc.org/sqlite. The Monitor writes every rebuilt
// snapshot here as well as to Postgres, so a local, file-backed copy exists
// that needs no running database server. Monitor.GetCalibration does not
// read from this cache; it always queries Postgres.
type SnapshotCache struct {
	db *sql.DB
}

// OpenSnapshotCache opens (creating if necessary) the sqlite file at path.
// An empty path opens an in-memory database, useful for tests.
func OpenSnapshotCache(path string) (*SnapshotCache, error) {
	if path == "" {
		path = ":memory:"
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("epistemic: open snapshot cache: %w", err)
	}
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS calibration_snapshots (
			domain TEXT PRIMARY KEY,
			computed_at_unix INTEGER NOT NULL,
			total_claims INTEGER NOT NULL,
			correct_claims INTEGER NOT NULL,
			accuracy_ratio REAL NOT NULL,
			avg_felt_confidence REAL NOT NULL,
			avg_calibration_error REAL NOT NULL,
			overconfidence_ratio REAL NOT NULL,
			verdict TEXT NOT NULL
		)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("epistemic: create snapshot cache schema: %w", err)
	}
	return &SnapshotCache{db: db}, nil
}

// Close releases the underlying sqlite handle.
func (c *SnapshotCache) Close() error {
	return c.db.Close()
}

// Put upserts a snapshot into the local cache.
func (c *SnapshotCache) Put(s model.CalibrationSnapshot) error {
	_, err := c.db.Exec(`
		INSERT INTO calibration_snapshots (
			domain, computed_at_unix, total_claims, correct_claims, accuracy_ratio,
			avg_felt_confidence, avg_calibration_error, overconfidence_ratio, verdict
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(domain) DO UPDATE SET
			computed_at_unix = excluded.computed_at_unix,
			total_claims = excluded.total_claims,
			correct_claims = excluded.correct_claims,
			accuracy_ratio = excluded.accuracy_ratio,
			avg_felt_confidence = excluded.avg_felt_confidence,
			avg_calibration_error = excluded.avg_calibration_error,
			overconfidence_ratio = excluded.overconfidence_ratio,
			verdict = excluded.verdict
	`, s.Domain, s.ComputedAt.Unix(), s.TotalClaims, s.CorrectClaims, s.AccuracyRatio,
		s.AvgFeltConfidence, s.AvgCalibrationError, s.OverconfidenceRatio, string(s.Verdict))
	return err
}

// Get returns the cached snapshot for domain, or false if absent. The curve
// is not cached locally (it's cheap to recompute and rarely needed from the
// offline fallback path); only the headline figures are served.
func (c *SnapshotCache) Get(ctx context.Context, domain string) (model.CalibrationSnapshot, bool, error) {
	var s model.CalibrationSnapshot
	var computedAtUnix int64
	var verdict string
	s.Domain = domain
	err := c.db.QueryRowContext(ctx, `
		SELECT computed_at_unix, total_claims, correct_claims, accuracy_ratio,
			avg_felt_confidence, avg_calibration_error, overconfidence_ratio, verdict
		FROM calibration_snapshots WHERE domain = ?
	`, domain).Scan(&computedAtUnix, &s.TotalClaims, &s.CorrectClaims, &s.AccuracyRatio,
		&s.AvgFeltConfidence, &s.AvgCalibrationError, &s.OverconfidenceRatio, &verdict)
	if err == sql.ErrNoRows {
		return model.CalibrationSnapshot{}, false, nil
	}
	if err != nil {
		return model.CalibrationSnapshot{}, false, err
	}
	s.VerifiedClaims = s.TotalClaims
	s.Verdict = model.CalibrationVerdict(verdict)
	s.ComputedAt = time.Unix(computedAtUnix, 0).UTC()
	return s, true, nil
}
