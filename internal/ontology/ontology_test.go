package ontology

import (
	"testing"

	"github.com/pltm/engine/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookupCanonicalTypes(t *testing.T) {
	cases := []struct {
		atomType  string
		decayRate float64
	}{
		{TypeEntity, 0.01},
		{TypeAffiliation, 0.03},
		{TypeSocial, 0.05},
		{TypeSkill, 0.02},
		{TypePreference, 0.08},
		{TypeBelief, 0.10},
		{TypeEvent, 0.06},
		{TypeState, 0.50},
		{TypeHypothesis, 0.15},
		{TypeInvariant, 0.00},
	}
	for _, c := range cases {
		def := Lookup(c.atomType)
		assert.Equal(t, c.atomType, def.Name)
		assert.InDelta(t, c.decayRate, def.DecayRate, 1e-9)
	}
}

func TestLookupUnknownTypeFallsBackToRelation(t *testing.T) {
	def := Lookup("SOMETHING_NEW_FROM_THE_EXTRACTOR")
	assert.Equal(t, TypeRelation, def.Name)
	assert.Nil(t, def.AllowedPredicates)
}

func TestValidatePredicateRejectsOutOfOntologyPredicate(t *testing.T) {
	assert.True(t, ValidatePredicate(TypeAffiliation, "employed_by"))
	assert.False(t, ValidatePredicate(TypeAffiliation, "prefers"))
}

func TestValidatePredicateRelationBucketAdmitsAnything(t *testing.T) {
	assert.True(t, ValidatePredicate(TypeRelation, "anything_goes"))
}

func TestValidateReturnsOntologyViolation(t *testing.T) {
	a := model.Atom{AtomType: TypeState, Predicate: "prefers"}
	err := Validate(a)
	require.Error(t, err)
	assert.Equal(t, model.OntologyViolation, model.KindOf(err))
}

func TestExclusiveAndImmutableFlags(t *testing.T) {
	assert.True(t, Lookup(TypeState).Exclusive)
	assert.True(t, Lookup(TypeAffiliation).Exclusive)
	assert.True(t, Lookup(TypeInvariant).Immutable)
	assert.True(t, Lookup(TypeSkill).Progressive)
	assert.True(t, Lookup(TypePreference).Contextual)
	assert.True(t, Lookup(TypeEvent).Temporal)
}

func TestOpposites(t *testing.T) {
	o, ok := Opposite("likes")
	require.True(t, ok)
	assert.Equal(t, "dislikes", o)
	assert.True(t, AreOpposite("likes", "dislikes"))
	assert.True(t, AreOpposite("dislikes", "likes"))
	assert.False(t, AreOpposite("likes", "prefers"))
}

func TestOppositesCoverKnownPredicatePairs(t *testing.T) {
	assert.True(t, AreOpposite("trusts", "distrusts"))
	assert.True(t, AreOpposite("supports", "opposes"))
}
