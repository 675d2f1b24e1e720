package retrieval

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pltm/engine/internal/model"
	"github.com/pltm/engine/internal/ontology"
)

func tripleCandidate(relevance float64, subject, predicate, object string) Candidate {
	return Candidate{
		Atom: model.Atom{
			ID:             uuid.New(),
			Subject:        subject,
			Predicate:      predicate,
			Object:         object,
			AtomType:       ontology.TypeBelief,
			Confidence:     0.8,
			LastAccessed:   time.Now(),
			AssertionCount: 1,
		},
		Relevance: relevance,
	}
}

func TestMMRSelectsUpToLimit(t *testing.T) {
	now := time.Now()
	candidates := []Candidate{
		tripleCandidate(0.9, "alice", "likes", "python"),
		tripleCandidate(0.8, "alice", "likes", "golang"),
		tripleCandidate(0.7, "bob", "works_at", "acme"),
	}
	selected := MMR(candidates, 0, 0, 2, now)
	assert.Len(t, selected, 2)
}

func TestMMRPrefersDiverseOverTopTwoSimilar(t *testing.T) {
	now := time.Now()
	candidates := []Candidate{
		tripleCandidate(0.95, "alice", "likes", "python programming"),
		tripleCandidate(0.94, "alice", "likes", "python programming language"),
		tripleCandidate(0.10, "bob", "works_at", "acme corp"),
	}
	selected := MMR(candidates, 0.5, 0, 2, now)
	require.Len(t, selected, 2)
	// The second pick should not be the near-duplicate of the first.
	ids := map[uuid.UUID]bool{selected[0].Atom.ID: true, selected[1].Atom.ID: true}
	assert.True(t, ids[candidates[2].Atom.ID], "expected the dissimilar candidate to be selected alongside the top relevance result")
}

func TestMMRDefaultsAppliedWhenZero(t *testing.T) {
	now := time.Now()
	candidates := []Candidate{
		tripleCandidate(0.5, "a", "p", "o1"),
		tripleCandidate(0.5, "a", "p", "o2"),
	}
	selected := MMR(candidates, 0, 0, 1, now)
	assert.Len(t, selected, 1)
}
