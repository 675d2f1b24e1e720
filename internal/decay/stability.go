// Package decay implements the stability formula, dissolution of
// unsubstantiated atoms, reconsolidation on retrieval hits, and the
// background sweep that keeps both running without blocking foreground
// writes. The background worker uses the same ticker/drain-channel shape
// as the other background loops in this codebase (see internal/search's
// outbox worker); the stability arithmetic itself is pure domain logic.
package decay

import (
	"math"
	"time"

	"github.com/pltm/engine/internal/model"
	"github.com/pltm/engine/internal/ontology"
)

// Stability computes an atom's current stability in [0, 1]:
//
//	strength   = decay_rate * confidence * 100   (scales decay_rate*confidence to an hours constant)
//	stability  = exp(-t / strength)              if decay_rate > 0
//	stability  = 1.0                             if decay_rate == 0 (INVARIANT)
//
// where t is the elapsed time in hours since last_accessed. Edge cases:
//   - decay_rate == 0 (an immutable atom, or an ontology entry with no decay):
//     stability is always 1 — the atom never decays.
//   - confidence == 0: stability is 0 immediately — a degenerate memory
//     never had any strength to decay from.
//   - now before last_accessed (clock skew or a future-dated access):
//     elapsed is clamped to zero, stability is 1.
//   - very large elapsed time: the exponential underflows to 0 rather than
//     producing a negative or NaN value; math.Exp already saturates at 0
//     for sufficiently negative arguments, so no explicit clamp is needed
//     there, but the result is still clamped into [0, 1] defensively.
func Stability(a model.Atom, now time.Time) float64 {
	def := ontology.Lookup(a.AtomType)
	if def.Immutable || def.DecayRate == 0 {
		return 1.0
	}
	if a.Confidence <= 0 {
		return 0.0
	}

	elapsedHours := now.Sub(a.LastAccessed).Hours()
	if elapsedHours < 0 {
		elapsedHours = 0
	}

	strength := def.DecayRate * a.Confidence * 100
	s := math.Exp(-elapsedHours / strength)
	return clamp01(s)
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

// Reconsolidate applies the reconsolidation bump triggered by a retrieval
// hit: confidence = min(1, confidence*1.5). It also refreshes last_accessed
// and bumps access_count, since a reconsolidated atom is by definition one
// that was just accessed.
func Reconsolidate(a model.Atom, now time.Time) model.Atom {
	a.Confidence = math.Min(1.0, a.Confidence*1.5)
	a.LastAccessed = now
	a.AccessCount++
	return a
}
