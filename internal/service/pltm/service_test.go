package pltm

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pltm/engine/internal/model"
)

func TestTripleText(t *testing.T) {
	assert.Equal(t, "user likes Python", tripleText("user", "likes", "Python"))
}

func TestDefaultConfidenceAppliesWhenZero(t *testing.T) {
	assert.Equal(t, 0.7, defaultConfidence(0))
}

func TestDefaultConfidencePreservesNonZero(t *testing.T) {
	assert.Equal(t, 0.42, defaultConfidence(0.42))
}

func TestDefaultProvenanceAppliesWhenEmpty(t *testing.T) {
	assert.Equal(t, model.ProvenanceUserStated, defaultProvenance(""))
}

func TestDefaultProvenancePreservesExplicit(t *testing.T) {
	assert.Equal(t, model.ProvenanceExtracted, defaultProvenance(model.ProvenanceExtracted))
}

func TestFilterByGraphKeepsOnlyAllowed(t *testing.T) {
	atoms := []model.Atom{
		{ID: mustUUID(1), Graph: model.GraphSubstantiated},
		{ID: mustUUID(2), Graph: model.GraphUnsubstantiated},
		{ID: mustUUID(3), Graph: model.GraphHistorical},
	}
	got := filterByGraph(atoms, []model.GraphState{model.GraphSubstantiated, model.GraphHistorical})
	assert.Len(t, got, 2)
	assert.Equal(t, model.GraphSubstantiated, got[0].Graph)
	assert.Equal(t, model.GraphHistorical, got[1].Graph)
}

func TestFilterByGraphEmptyAllowList(t *testing.T) {
	atoms := []model.Atom{{Graph: model.GraphSubstantiated}}
	assert.Empty(t, filterByGraph(atoms, nil))
}

func TestLimitOrDefaultUsesRequestedWhenPositive(t *testing.T) {
	svc := &Service{cfg: Config{DefaultLimit: 20}}
	assert.Equal(t, 5, svc.limitOrDefault(5))
}

func TestLimitOrDefaultFallsBackToConfig(t *testing.T) {
	svc := &Service{cfg: Config{DefaultLimit: 20}}
	assert.Equal(t, 20, svc.limitOrDefault(0))
}

func TestDefaultConfigMatchesDocumentedDefaults(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, model.DefaultAttentionWeights(), cfg.AttentionWeights)
	assert.Equal(t, 0.6, cfg.MMRLambda)
	assert.Equal(t, 0.25, cfg.MMRMinDissim)
	assert.True(t, cfg.VectorEnabled)
}

func mustUUID(n byte) (u [16]byte) {
	u[15] = n
	return u
}
