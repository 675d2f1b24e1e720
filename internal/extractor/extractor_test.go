package extractor

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pltm/engine/internal/model"
	"github.com/pltm/engine/internal/ontology"
)

type stubLLM struct {
	candidates []Candidate
	err        error
	calls      int
}

func (s *stubLLM) Extract(_ context.Context, _ string) ([]Candidate, error) {
	s.calls++
	return s.candidates, s.err
}

func TestExtractEmptyTextReturnsNil(t *testing.T) {
	m := New(nil, nil)
	atoms, err := m.Extract(context.Background(), "user-1", "")
	require.NoError(t, err)
	assert.Nil(t, atoms)
}

func TestExtractRuleStageTakesPriorityOverFallback(t *testing.T) {
	fallback := &stubLLM{}
	m := New(fallback, nil)

	atoms, err := m.Extract(context.Background(), "user-1", "I like Python")
	require.NoError(t, err)
	require.Len(t, atoms, 1)
	assert.Equal(t, 0, fallback.calls, "fallback must not run when the rule stage finds a match")
	assert.Equal(t, model.ProvenanceUserStated, atoms[0].Provenance)
	assert.Equal(t, model.GraphUnsubstantiated, atoms[0].Graph)
	assert.Equal(t, "user-1", atoms[0].SourceUser)
	assert.Equal(t, "likes", atoms[0].Predicate)
}

func TestExtractFallsBackToLLMWhenNoRuleMatches(t *testing.T) {
	fallback := &stubLLM{candidates: []Candidate{
		{Subject: "user", Predicate: "knows", Object: "Alice", AtomType: ontology.TypeSocial},
	}}
	m := New(fallback, nil)

	atoms, err := m.Extract(context.Background(), "user-1", "something rules can't parse")
	require.NoError(t, err)
	require.Len(t, atoms, 1)
	assert.Equal(t, 1, fallback.calls)
	assert.Equal(t, model.ProvenanceExtracted, atoms[0].Provenance)
	assert.Equal(t, "knows", atoms[0].Predicate)
}

func TestExtractNoFallbackConfiguredReturnsEmptyWhenRulesMiss(t *testing.T) {
	m := New(nil, nil)
	atoms, err := m.Extract(context.Background(), "user-1", "something rules can't parse")
	require.NoError(t, err)
	assert.Empty(t, atoms)
}

func TestExtractFallbackErrorIsSwallowed(t *testing.T) {
	fallback := &stubLLM{err: errors.New("boom")}
	m := New(fallback, nil)

	atoms, err := m.Extract(context.Background(), "user-1", "something rules can't parse")
	require.NoError(t, err)
	assert.Nil(t, atoms)
}

func TestExtractDropsCandidateWithUnknownPredicate(t *testing.T) {
	fallback := &stubLLM{candidates: []Candidate{
		{Subject: "user", Predicate: "not_a_real_predicate", Object: "X", AtomType: ontology.TypeSocial},
		{Subject: "user", Predicate: "knows", Object: "Bob", AtomType: ontology.TypeSocial},
	}}
	m := New(fallback, nil)

	atoms, err := m.Extract(context.Background(), "user-1", "unmatched by rules")
	require.NoError(t, err)
	require.Len(t, atoms, 1)
	assert.Equal(t, "Bob", atoms[0].Object)
}
