package reconcile

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pltm/engine/internal/model"
	"github.com/pltm/engine/internal/ontology"
)

func preferenceAtom(object string, confidence float64, contexts []string) model.Atom {
	return model.Atom{
		ID:         uuid.New(),
		Subject:    "user",
		Predicate:  "likes",
		Object:     object,
		AtomType:   ontology.TypePreference,
		Provenance: model.ProvenanceUserStated,
		Confidence: confidence,
		Contexts:   contexts,
	}
}

func TestIsSemanticConflictOppositePredicates(t *testing.T) {
	r := New(nil, nil, nil, DefaultConfig())
	existing := preferenceAtom("Python", 0.9, nil)
	candidate := existing
	candidate.ID = uuid.New()
	candidate.Predicate = "dislikes"
	candidate.Object = "Python"

	assert.True(t, r.isSemanticConflict(candidate, existing, 1.0))
}

func TestIsSemanticConflictOppositePredicatesBelowFloor(t *testing.T) {
	r := New(nil, nil, nil, DefaultConfig())
	existing := preferenceAtom("Python", 0.9, nil)
	candidate := existing
	candidate.ID = uuid.New()
	candidate.Predicate = "dislikes"
	candidate.Object = "something unrelated entirely"

	assert.False(t, r.isSemanticConflict(candidate, existing, 0.1))
}

func TestIsSemanticConflictContextualDisjointNotAConflict(t *testing.T) {
	r := New(nil, nil, nil, DefaultConfig())
	existing := preferenceAtom("Python", 0.9, []string{"data_science"})
	candidate := existing
	candidate.ID = uuid.New()
	candidate.Object = "JavaScript"
	candidate.Contexts = []string{"web_dev"}

	assert.False(t, r.isSemanticConflict(candidate, existing, 0.9))
}

func TestIsSemanticConflictExclusiveFarObjects(t *testing.T) {
	r := New(nil, nil, nil, DefaultConfig())
	existing := model.Atom{
		Subject: "user", Predicate: "works_at", Object: "Google",
		AtomType: ontology.TypeAffiliation, Provenance: model.ProvenanceUserStated, Confidence: 0.9,
	}
	candidate := existing
	candidate.Object = "Meta"

	assert.True(t, r.isSemanticConflict(candidate, existing, 0.1))
}

func TestIsSemanticConflictExclusiveNearDuplicateNotAConflict(t *testing.T) {
	r := New(nil, nil, nil, DefaultConfig())
	existing := model.Atom{
		Subject: "user", Predicate: "works_at", Object: "Google Inc",
		AtomType: ontology.TypeAffiliation, Provenance: model.ProvenanceUserStated, Confidence: 0.9,
	}
	candidate := existing
	candidate.Object = "Google"

	assert.False(t, r.isSemanticConflict(candidate, existing, 0.95))
}

func TestIsSemanticConflictSubstringIsRefinement(t *testing.T) {
	r := New(nil, nil, nil, DefaultConfig())
	existing := model.Atom{
		Subject: "user", Predicate: "skilled_in", Object: "Go",
		AtomType: ontology.TypeSkill, Provenance: model.ProvenanceUserStated, Confidence: 0.5,
	}
	candidate := existing
	candidate.Object = "Go concurrency patterns"

	assert.False(t, r.isSemanticConflict(candidate, existing, 0.9))
}

func TestResolveConfidenceWins(t *testing.T) {
	candidate := preferenceAtom("Python", 0.9, nil)
	existing := preferenceAtom("Java", 0.3, nil)
	winner, losers := resolve(candidate, []model.Atom{existing})
	assert.Equal(t, candidate.ID, winner.ID)
	require.Len(t, losers, 1)
	assert.Equal(t, existing.ID, losers[0].ID)
}

func TestResolveProvenanceBreaksConfidenceTie(t *testing.T) {
	candidate := preferenceAtom("Python", 0.9, nil)
	candidate.Provenance = model.ProvenanceInferred
	existing := preferenceAtom("Java", 0.9, nil)
	existing.Provenance = model.ProvenanceUserStated

	winner, _ := resolve(candidate, []model.Atom{existing})
	assert.Equal(t, existing.ID, winner.ID)
}

func TestResolveRecencyBreaksRemainingTie(t *testing.T) {
	now := time.Now()
	candidate := preferenceAtom("Python", 0.9, nil)
	candidate.Provenance = model.ProvenanceUserStated
	candidate.FirstObserved = now
	existing := preferenceAtom("Java", 0.9, nil)
	existing.Provenance = model.ProvenanceUserStated
	existing.FirstObserved = now.Add(-time.Hour)

	winner, _ := resolve(candidate, []model.Atom{existing})
	assert.Equal(t, candidate.ID, winner.ID)
}

func TestResolveAssertionCountIsFinalTieBreak(t *testing.T) {
	now := time.Now()
	candidate := preferenceAtom("Python", 0.9, nil)
	candidate.Provenance = model.ProvenanceUserStated
	candidate.FirstObserved = now
	candidate.AssertionCount = 1
	existing := preferenceAtom("Java", 0.9, nil)
	existing.Provenance = model.ProvenanceUserStated
	existing.FirstObserved = now
	existing.AssertionCount = 5

	winner, _ := resolve(candidate, []model.Atom{existing})
	assert.Equal(t, existing.ID, winner.ID)
}

func TestSupersedeSetsHistoricalAndLink(t *testing.T) {
	loser := preferenceAtom("Java", 0.5, nil)
	winnerID := uuid.New()
	now := time.Now()
	moved := supersede(loser, winnerID, now)
	assert.Equal(t, model.GraphHistorical, moved.Graph)
	require.NotNil(t, moved.SupersededBy)
	assert.Equal(t, winnerID, *moved.SupersededBy)
}

func TestContextsOverlapEmptyIsVacuouslyTrue(t *testing.T) {
	assert.True(t, contextsOverlap(nil, nil))
}

func TestContextsOverlapDisjoint(t *testing.T) {
	assert.False(t, contextsOverlap([]string{"a"}, []string{"b"}))
}

func TestContextsOverlapShared(t *testing.T) {
	assert.True(t, contextsOverlap([]string{"a", "b"}, []string{"b", "c"}))
}

func TestFindDuplicateRequiresSameTripleAndOverlappingContexts(t *testing.T) {
	existing := preferenceAtom("Python", 0.9, []string{"work"})
	candidate := existing
	candidate.ID = uuid.New()
	candidate.Contexts = []string{"work"}

	dup, ok := findDuplicate(candidate, []model.Atom{existing})
	assert.True(t, ok)
	assert.Equal(t, existing.ID, dup.ID)
}

func TestFindDuplicateRejectsDisjointContexts(t *testing.T) {
	existing := preferenceAtom("Python", 0.9, []string{"work"})
	candidate := existing
	candidate.ID = uuid.New()
	candidate.Contexts = []string{"hobby"}

	_, ok := findDuplicate(candidate, []model.Atom{existing})
	assert.False(t, ok)
}

func TestSequenceSimilarityIdentical(t *testing.T) {
	assert.InDelta(t, 1.0, sequenceSimilarity("Google Inc", "Google Inc"), 1e-9)
}

func TestSequenceSimilarityDisjoint(t *testing.T) {
	assert.Equal(t, 0.0, sequenceSimilarity("Google", "unrelated term"))
}
