package epistemic

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/pltm/engine/internal/model"
)

func TestComputeCalibrationSnapshot(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	errA, errB := 0.1, 0.4
	claims := []model.Claim{
		{FeltConfidence: 0.9, Verdict: model.VerdictCorrect, CalibrationError: &errA},
		{FeltConfidence: 0.9, Verdict: model.VerdictIncorrect, CalibrationError: &errB},
		{FeltConfidence: 0.3, Verdict: model.VerdictCorrect, CalibrationError: &errA},
	}

	snap := compute("dates", claims, now)

	assert.Equal(t, 3, snap.TotalClaims)
	// Ratios are rounded to three decimals: 2/3 is reported as 0.667.
	assert.InDelta(t, 0.667, snap.AccuracyRatio, 1e-9)
	assert.InDelta(t, (0.9+0.9+0.3)/3.0, snap.AvgFeltConfidence, 1e-9)
	// Only the two felt>0.7 claims count toward overconfidence_ratio, one of
	// which was wrong.
	assert.InDelta(t, 0.5, snap.OverconfidenceRatio, 1e-9)
	assert.Equal(t, now, snap.ComputedAt)
	assert.Len(t, snap.Curve, numBuckets)
}

func TestComputeCalibrationSnapshotEmpty(t *testing.T) {
	snap := compute("dates", nil, time.Now())
	assert.Equal(t, 0, snap.TotalClaims)
	assert.Empty(t, snap.Curve)
}

func TestComputeCalibrationSnapshotSeverelyOverconfident(t *testing.T) {
	now := time.Now()
	var claims []model.Claim
	for i := 0; i < 2; i++ {
		e := 0.1
		claims = append(claims, model.Claim{FeltConfidence: 0.9, Verdict: model.VerdictCorrect, CalibrationError: &e})
	}
	for i := 0; i < 8; i++ {
		e := 0.7
		claims = append(claims, model.Claim{FeltConfidence: 0.9, Verdict: model.VerdictIncorrect, CalibrationError: &e})
	}

	snap := compute("dates", claims, now)
	assert.InDelta(t, 0.2, snap.AccuracyRatio, 1e-9)
	assert.InDelta(t, 0.9, snap.AvgFeltConfidence, 1e-9)
	assert.InDelta(t, 0.8, snap.OverconfidenceRatio, 1e-9)
	assert.Equal(t, model.CalibrationSeverelyOverconfident, snap.Verdict)
}

func TestCalibrationVerdictThresholds(t *testing.T) {
	assert.Equal(t, model.CalibrationWellCalibrated, calibrationVerdict(0.85, 0.9, 0.1))
	assert.Equal(t, model.CalibrationSeverelyOverconfident, calibrationVerdict(0.2, 0.9, 0.8))
	assert.Equal(t, model.CalibrationOverconfident, calibrationVerdict(0.7, 0.9, 0.1))
	assert.Equal(t, model.CalibrationUnderconfident, calibrationVerdict(0.9, 0.7, 0.0))
	assert.Equal(t, model.CalibrationHighConfidenceFailures, calibrationVerdict(0.6, 0.65, 0.5))
}

func TestBucketIndexClampsToRange(t *testing.T) {
	assert.Equal(t, 0, bucketIndex(-1))
	assert.Equal(t, numBuckets-1, bucketIndex(1.0))
	assert.Equal(t, numBuckets-1, bucketIndex(2.0))
	assert.Equal(t, 0, bucketIndex(0.0))
	assert.Equal(t, 4, bucketIndex(0.9))
}

func TestActualForVerdicts(t *testing.T) {
	assert.Equal(t, 1.0, actualFor(model.VerdictCorrect))
	assert.Equal(t, 0.0, actualFor(model.VerdictIncorrect))
	assert.Equal(t, 0.5, actualFor(model.VerdictPartial))
	assert.Equal(t, 0.5, actualFor(model.VerdictUnknown))
}
