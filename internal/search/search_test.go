package search

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/pltm/engine/internal/model"
)

func TestHydrateDropsMissingAtoms(t *testing.T) {
	present := uuid.New()
	missing := uuid.New()
	atoms := map[uuid.UUID]model.Atom{
		present: {ID: present, Subject: "user", Predicate: "likes", Object: "Go"},
	}
	results := []Result{
		{AtomID: present, Score: 0.8},
		{AtomID: missing, Score: 0.9},
	}

	candidates := Hydrate(results, atoms)
	assert.Len(t, candidates, 1)
	assert.Equal(t, present, candidates[0].Atom.ID)
	assert.InDelta(t, 0.8, candidates[0].Relevance, 1e-9)
}

func TestHydrateEmptyResults(t *testing.T) {
	assert.Empty(t, Hydrate(nil, map[uuid.UUID]model.Atom{}))
}
