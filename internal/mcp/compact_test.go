package mcp

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/pltm/engine/internal/model"
)

func TestCompactAtom(t *testing.T) {
	a := model.Atom{
		ID:            uuid.New(),
		Subject:       "user",
		Predicate:     "prefers",
		Object:        "dark roast coffee",
		AtomType:      "PREFERENCE",
		Provenance:    model.ProvenanceUserStated,
		Graph:         model.GraphSubstantiated,
		Confidence:    0.85,
		Strength:      0.9,
		FirstObserved: time.Now(),
		LastAccessed:  time.Now(),
		AccessCount:   3,
		Contexts:      []string{"work"},
		SourceUser:    "alice",
		Metadata:      map[string]any{"internal": "bookkeeping"},
	}

	m := compactAtom(a)

	assert.Equal(t, a.ID, m["id"])
	assert.Equal(t, "user", m["subject"])
	assert.Equal(t, "prefers", m["predicate"])
	assert.Equal(t, "dark roast coffee", m["object"])
	assert.Equal(t, "PREFERENCE", m["atom_type"])
	assert.Equal(t, model.ProvenanceUserStated, m["provenance"])
	assert.Equal(t, model.GraphSubstantiated, m["graph"])
	assert.Equal(t, 0.85, m["confidence"])
	assert.Equal(t, []string{"work"}, m["contexts"])
	assert.Equal(t, 3, m["access_count"])

	// Dropped internals.
	_, hasEmbedding := m["embedding"]
	_, hasMetadata := m["metadata"]
	_, hasStrength := m["strength"]
	assert.False(t, hasEmbedding, "embedding should be dropped")
	assert.False(t, hasMetadata, "metadata should be dropped")
	assert.False(t, hasStrength, "strength should be dropped")
}

func TestCompactAtomOmitsEmptyContexts(t *testing.T) {
	m := compactAtom(model.Atom{ID: uuid.New()})
	_, hasContexts := m["contexts"]
	assert.False(t, hasContexts)
}

func TestCompactScoredAtom(t *testing.T) {
	a := model.Atom{ID: uuid.New(), Subject: "user", Predicate: "likes", Object: "Go"}
	s := model.ScoredAtom{Atom: a, Score: 0.72, Relevance: 0.8, Confidence: 0.7, Recency: 0.6, Stability: 0.5}

	m := compactScoredAtom(s)

	assert.Equal(t, a.ID, m["id"])
	assert.Equal(t, 0.72, m["score"])
	assert.Equal(t, 0.8, m["relevance"])
	assert.Equal(t, 0.6, m["recency"])
	assert.Equal(t, 0.5, m["stability"])
}

func TestCompactClaimUnresolved(t *testing.T) {
	c := model.Claim{
		ID:                 uuid.New(),
		Domain:              "medical",
		Statement:           "the rash is likely contact dermatitis",
		FeltConfidence:      0.7,
		AdjustedConfidence:  0.49,
		LoggedAt:            time.Now(),
	}

	m := compactClaim(c)
	assert.Equal(t, c.ID, m["id"])
	assert.Equal(t, "medical", m["domain"])
	assert.Equal(t, 0.7, m["felt_confidence"])
	assert.Equal(t, 0.49, m["adjusted_confidence"])
	_, hasResolvedAt := m["resolved_at"]
	assert.False(t, hasResolvedAt)
}

func TestCompactClaimResolved(t *testing.T) {
	resolvedAt := time.Now()
	calErr := 0.2
	c := model.Claim{
		ID:               uuid.New(),
		Domain:           "general",
		Statement:        "test",
		FeltConfidence:   0.8,
		ResolvedAt:       &resolvedAt,
		Verdict:          model.VerdictCorrect,
		CalibrationError: &calErr,
	}

	m := compactClaim(c)
	assert.Equal(t, resolvedAt, m["resolved_at"])
	assert.Equal(t, model.VerdictCorrect, m["verdict"])
	assert.Equal(t, 0.2, m["calibration_error"])
}

func TestCompactClaimTruncatesStatement(t *testing.T) {
	long := strings.Repeat("x", 300)
	m := compactClaim(model.Claim{ID: uuid.New(), Statement: long})
	s := m["statement"].(string)
	assert.True(t, strings.HasSuffix(s, "..."))
	assert.LessOrEqual(t, len(s), maxCompactContextLen+3)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "hello", truncate("hello", 10))
	assert.Equal(t, "hel...", truncate("hello world", 3))
	assert.Equal(t, "", truncate("", 5))
}
