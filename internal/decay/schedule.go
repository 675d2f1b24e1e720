package decay

import (
	"math"
	"time"

	"github.com/pltm/engine/internal/model"
	"github.com/pltm/engine/internal/ontology"
)

// predictedThresholds is the fixed set of stability thresholds reported by
// PredictedSchedule.
var predictedThresholds = []float64{0.9, 0.75, 0.5, 0.25, 0.1}

// PredictedSchedule solves exp(-t/strength) = threshold for t, for each
// threshold in predictedThresholds, and returns the wall-clock time each
// crossing is predicted to occur relative to the atom's last_accessed.
//
// Solving for t: t = -strength * ln(threshold), where strength = decay_rate
// * confidence * 100, matching Stability's formula. An immutable or
// zero-decay-rate atom never crosses any threshold below 1.0, so every
// point is reported unreached. A zero-confidence atom has already crossed
// every threshold at last_accessed, since its stability is 0 immediately.
func PredictedSchedule(a model.Atom) []model.PredictedDecayPoint {
	def := ontology.Lookup(a.AtomType)
	points := make([]model.PredictedDecayPoint, len(predictedThresholds))

	if def.Immutable || def.DecayRate == 0 {
		for i, th := range predictedThresholds {
			points[i] = model.PredictedDecayPoint{Threshold: th, Reached: false}
		}
		return points
	}

	if a.Confidence <= 0 {
		for i, th := range predictedThresholds {
			points[i] = model.PredictedDecayPoint{Threshold: th, At: a.LastAccessed, Reached: true}
		}
		return points
	}

	strength := def.DecayRate * a.Confidence * 100

	for i, th := range predictedThresholds {
		tHours := -strength * math.Log(th)
		points[i] = model.PredictedDecayPoint{
			Threshold: th,
			At:        a.LastAccessed.Add(time.Duration(tHours * float64(time.Hour))),
			Reached:   true,
		}
	}
	return points
}
