package retrieval

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/pltm/engine/internal/model"
)

func TestRecencyIsOneForJustAccessed(t *testing.T) {
	now := time.Now()
	a := model.Atom{LastAccessed: now}
	assert.InDelta(t, 1.0, Recency(a, now), 1e-9)
}

func TestRecencyDecaysTowardZero(t *testing.T) {
	now := time.Now()
	recent := model.Atom{LastAccessed: now.Add(-1 * time.Hour)}
	old := model.Atom{LastAccessed: now.Add(-1000 * time.Hour)}
	assert.Greater(t, Recency(recent, now), Recency(old, now))
}

func TestCosineSimilarityIdenticalVectors(t *testing.T) {
	v := []float32{1, 2, 3}
	assert.InDelta(t, 1.0, CosineSimilarity(v, v), 1e-9)
}

func TestCosineSimilarityOrthogonal(t *testing.T) {
	assert.InDelta(t, 0.0, CosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-9)
}

func TestCosineSimilarityMismatchedLengths(t *testing.T) {
	assert.Equal(t, 0.0, CosineSimilarity([]float32{1, 2}, []float32{1}))
}

func TestTokenOverlapRelevanceExactMatch(t *testing.T) {
	a := model.Atom{Subject: "alice", Predicate: "likes", Object: "python"}
	assert.InDelta(t, 1.0, TokenOverlapRelevance("alice likes python", a), 1e-9)
}

func TestTokenOverlapRelevanceNoOverlap(t *testing.T) {
	a := model.Atom{Subject: "bob", Predicate: "dislikes", Object: "java"}
	assert.Equal(t, 0.0, TokenOverlapRelevance("alice likes python", a))
}

func TestTokenOverlapRelevanceEmptyQuery(t *testing.T) {
	a := model.Atom{Subject: "bob", Predicate: "likes", Object: "java"}
	assert.Equal(t, 0.0, TokenOverlapRelevance("", a))
}
