package reconcile

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pltm/engine/internal/model"
	"github.com/pltm/engine/internal/ontology"
)

// detectConflicts runs the similarity filter and then the semantic conflict
// test over existing, returning the subset that genuinely conflicts with
// candidate.
func (r *Reconciler) detectConflicts(candidate model.Atom, existing []model.Atom) []model.Atom {
	var conflicts []model.Atom
	for _, e := range existing {
		if e.ID == candidate.ID {
			continue
		}
		sim := objectSimilarity(candidate, e)
		if !r.passesSimilarityFilter(candidate, e, sim) {
			continue
		}
		if r.isSemanticConflict(candidate, e, sim) {
			conflicts = append(conflicts, e)
		}
	}
	return conflicts
}

// passesSimilarityFilter keeps matches whose object is either near-duplicate
// (above the configured similarity threshold) or, under an exclusive
// predicate relationship, far enough apart to be a candidate conflict.
func (r *Reconciler) passesSimilarityFilter(candidate, e model.Atom, sim float64) bool {
	if sim >= r.cfg.SimilarityThreshold {
		return true
	}
	// Far apart, but still a candidate when the predicates are opposed or
	// the shared predicate is exclusive — the object dissimilarity itself
	// is what makes these pairs interesting to the semantic test.
	if ontology.AreOpposite(candidate.Predicate, e.Predicate) {
		return true
	}
	if candidate.Predicate == e.Predicate && ontology.Lookup(candidate.AtomType).Exclusive {
		return true
	}
	return false
}

// isSemanticConflict is the final conflict test applied to a pair that
// already passed the similarity filter.
func (r *Reconciler) isSemanticConflict(candidate, e model.Atom, sim float64) bool {
	if isSubstring(candidate.Object, e.Object) {
		return false // refinement, not conflict
	}

	def := ontology.Lookup(candidate.AtomType)
	if def.Contextual && !contextsOverlap(candidate.Contexts, e.Contexts) {
		return false
	}

	if ontology.AreOpposite(candidate.Predicate, e.Predicate) {
		return sim >= oppositeSimilarityFloor
	}

	if candidate.Predicate == e.Predicate && def.Exclusive {
		return sim < r.cfg.DuplicateThreshold
	}

	return false
}

func isSubstring(a, b string) bool {
	if a == b || a == "" || b == "" {
		return false
	}
	la, lb := strings.ToLower(a), strings.ToLower(b)
	return strings.Contains(la, lb) || strings.Contains(lb, la)
}

// resolve applies the tie-break ordering across candidate and every atom it
// conflicts with, returning the winner and the rest as losers.
func resolve(candidate model.Atom, conflicts []model.Atom) (winner model.Atom, losers []model.Atom) {
	pool := append([]model.Atom{candidate}, conflicts...)

	winner = pool[0]
	for _, a := range pool[1:] {
		if beats(a, winner) {
			winner = a
		}
	}
	for _, a := range pool {
		if a.ID != winner.ID {
			losers = append(losers, a)
		}
	}
	return winner, losers
}

// beats reports whether a wins a tie-break against b, in the order:
// confidence, provenance rank, first_observed recency, assertion_count.
func beats(a, b model.Atom) bool {
	switch {
	case a.Confidence != b.Confidence:
		return a.Confidence > b.Confidence
	case a.Provenance.Rank() != b.Provenance.Rank():
		return a.Provenance.Rank() > b.Provenance.Rank()
	case !a.FirstObserved.Equal(b.FirstObserved):
		return a.FirstObserved.After(b.FirstObserved)
	default:
		return a.AssertionCount > b.AssertionCount
	}
}

// supersede transitions a losing atom to HISTORICAL, freezing its
// last_accessed (confidence is left untouched, also frozen by virtue of no
// further reconsolidation ever being applied to a HISTORICAL atom).
func supersede(a model.Atom, winnerID uuid.UUID, now time.Time) model.Atom {
	a.Graph = model.GraphHistorical
	a.SupersededBy = &winnerID
	return a
}
