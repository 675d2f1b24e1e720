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

func newCandidate(relevance, confidence float64, lastAccessed time.Time) Candidate {
	return Candidate{
		Atom: model.Atom{
			ID:             uuid.New(),
			AtomType:       ontology.TypeBelief,
			Confidence:     confidence,
			LastAccessed:   lastAccessed,
			AssertionCount: 1,
		},
		Relevance: relevance,
	}
}

func TestAttentionSortsByScoreDescending(t *testing.T) {
	now := time.Now()
	candidates := []Candidate{
		newCandidate(0.2, 0.5, now),
		newCandidate(0.9, 0.9, now),
		newCandidate(0.5, 0.5, now),
	}
	scored := Attention(candidates, model.AttentionWeights{}, 0, now)
	require.Len(t, scored, 3)
	for i := 1; i < len(scored); i++ {
		assert.GreaterOrEqual(t, scored[i-1].Score, scored[i].Score)
	}
}

func TestAttentionRespectsLimit(t *testing.T) {
	now := time.Now()
	candidates := []Candidate{
		newCandidate(0.1, 0.1, now),
		newCandidate(0.9, 0.9, now),
		newCandidate(0.5, 0.5, now),
	}
	scored := Attention(candidates, model.AttentionWeights{}, 2, now)
	assert.Len(t, scored, 2)
}

func TestAttentionDefaultWeightsUsedWhenZero(t *testing.T) {
	now := time.Now()
	c := newCandidate(1.0, 1.0, now)
	scored := Attention([]Candidate{c}, model.AttentionWeights{}, 0, now)
	require.Len(t, scored, 1)
	w := model.DefaultAttentionWeights()
	expected := w.Alpha*1.0 + w.Beta*1.0 + w.Gamma*1.0 + w.Delta*1.0
	assert.InDelta(t, expected, scored[0].Score, 1e-6)
}

func TestMultiHeadMergesByMaxScorePerAtom(t *testing.T) {
	now := time.Now()
	c := newCandidate(0.9, 0.1, now)
	heads := []model.AttentionWeights{
		{Alpha: 1, Beta: 0, Gamma: 0, Delta: 0},
		{Alpha: 0, Beta: 1, Gamma: 0, Delta: 0},
	}
	merged := MultiHead([]Candidate{c}, heads, 0, now)
	require.Len(t, merged, 1)
	assert.InDelta(t, 0.9, merged[0].Score, 1e-9)
}

func TestMultiHeadDeduplicatesAcrossHeads(t *testing.T) {
	now := time.Now()
	a := newCandidate(0.5, 0.5, now)
	b := newCandidate(0.9, 0.9, now)
	candidates := []Candidate{a, b}
	heads := []model.AttentionWeights{
		model.DefaultAttentionWeights(),
		{Alpha: 0.2, Beta: 0.2, Gamma: 0.3, Delta: 0.3},
	}
	merged := MultiHead(candidates, heads, 0, now)
	assert.Len(t, merged, 2)
}
