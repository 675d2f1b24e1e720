package pltm

import (
	"time"
)

// Atom is the public representation of a stored memory atom.
// It mirrors internal/model.Atom for use in extension interfaces, with no
// internal package imports — safe for external consumers to depend on.
type Atom struct {
	ID        string
	Subject   string
	Predicate string
	Object    string
	AtomType  string

	Provenance string
	Graph      string

	Confidence float64
	Strength   float64

	FirstObserved time.Time
	LastAccessed  time.Time

	AssertionCount int
	AccessCount    int

	Contexts   []string
	SourceUser string
	Metadata   map[string]any
}

// ScoredAtom pairs an Atom with its retrieval score and score breakdown.
type ScoredAtom struct {
	Atom       Atom
	Score      float64
	Relevance  float64
	Confidence float64
	Recency    float64
	Stability  float64
}

// AttentionWeights is the (alpha, beta, gamma, delta) weight vector applied
// during attention retrieval: alpha*relevance + beta*confidence +
// gamma*recency + delta*stability.
type AttentionWeights struct {
	Alpha float64
	Beta  float64
	Gamma float64
	Delta float64
}

// SearchFilters narrows a vector search to a subset of a user's graph.
// Mirrors search.Filters for use in the public Searcher interface.
type SearchFilters struct {
	AtomType *string
	Graph    *string
}

// SearchResult holds an atom ID and similarity score from a Searcher.
type SearchResult struct {
	AtomID string
	Score  float32
}
