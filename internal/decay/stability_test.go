package decay

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/pltm/engine/internal/model"
	"github.com/pltm/engine/internal/ontology"
)

func TestStabilityImmutableNeverDecays(t *testing.T) {
	now := time.Now()
	a := model.Atom{
		AtomType:     ontology.TypeInvariant,
		LastAccessed: now.Add(-10000 * time.Hour),
		Confidence:   0.9,
	}
	assert.Equal(t, 1.0, Stability(a, now))
}

func TestStabilityFreshAtomIsNearOne(t *testing.T) {
	now := time.Now()
	a := model.Atom{
		AtomType:     ontology.TypeEntity,
		LastAccessed: now,
		Confidence:   0.9,
	}
	assert.InDelta(t, 1.0, Stability(a, now), 1e-9)
}

func TestStabilityDecaysOverTime(t *testing.T) {
	now := time.Now()
	a := model.Atom{
		AtomType:     ontology.TypeState, // decay_rate 0.50, fastest-decaying type
		LastAccessed: now.Add(-1000 * time.Hour),
		Confidence:   0.9,
	}
	s := Stability(a, now)
	assert.True(t, s >= 0 && s <= 1)
	assert.Less(t, s, 0.5)
}

func TestStabilityClampsFutureLastAccessed(t *testing.T) {
	now := time.Now()
	a := model.Atom{
		AtomType:     ontology.TypeEntity,
		LastAccessed: now.Add(10 * time.Hour), // clock skew: "accessed" in the future
		Confidence:   0.9,
	}
	assert.InDelta(t, 1.0, Stability(a, now), 1e-9)
}

func TestStabilityZeroConfidenceIsDegenerate(t *testing.T) {
	now := time.Now()
	a := model.Atom{AtomType: ontology.TypeBelief, LastAccessed: now, Confidence: 0}
	assert.Equal(t, 0.0, Stability(a, now))
}

func TestStabilityHigherConfidenceDecaysSlower(t *testing.T) {
	now := time.Now()
	low := model.Atom{AtomType: ontology.TypeBelief, LastAccessed: now.Add(-500 * time.Hour), Confidence: 0.3}
	high := model.Atom{AtomType: ontology.TypeBelief, LastAccessed: now.Add(-500 * time.Hour), Confidence: 0.9}
	assert.Greater(t, Stability(high, now), Stability(low, now))
}

func TestReconsolidateBumpsConfidenceAndAccess(t *testing.T) {
	now := time.Now()
	a := model.Atom{Confidence: 0.5, AccessCount: 2, LastAccessed: now.Add(-time.Hour)}
	r := Reconsolidate(a, now)
	assert.InDelta(t, 0.75, r.Confidence, 1e-9)
	assert.Equal(t, 3, r.AccessCount)
	assert.Equal(t, now, r.LastAccessed)
}

func TestReconsolidateClampsConfidenceAtOne(t *testing.T) {
	a := model.Atom{Confidence: 0.9}
	r := Reconsolidate(a, time.Now())
	assert.Equal(t, 1.0, r.Confidence)
}

func TestPredictedScheduleImmutableNeverReached(t *testing.T) {
	a := model.Atom{AtomType: ontology.TypeInvariant, Confidence: 0.9}
	for _, p := range PredictedSchedule(a) {
		assert.False(t, p.Reached)
	}
}

func TestPredictedScheduleZeroConfidenceAlreadyCrossed(t *testing.T) {
	now := time.Now()
	a := model.Atom{AtomType: ontology.TypeBelief, LastAccessed: now, Confidence: 0}
	for _, p := range PredictedSchedule(a) {
		assert.True(t, p.Reached)
		assert.Equal(t, now, p.At)
	}
}

func TestPredictedScheduleMonotonicallyLaterForLowerThresholds(t *testing.T) {
	now := time.Now()
	a := model.Atom{AtomType: ontology.TypePreference, LastAccessed: now, Confidence: 0.8}
	points := PredictedSchedule(a)
	for i := 1; i < len(points); i++ {
		assert.True(t, points[i].At.After(points[i-1].At), "threshold %v should cross later than %v", points[i].Threshold, points[i-1].Threshold)
	}
}
