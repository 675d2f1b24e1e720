// Package search provides vector search capabilities using external search
// indexes with transparent fallback to text-based (and token-overlap)
// search when no index is configured.
package search

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/pltm/engine/internal/model"
	"github.com/pltm/engine/internal/retrieval"
)

// Result holds an atom ID and its raw similarity score from the search
// index. The caller hydrates full Atom objects from Postgres (source of
// truth).
type Result struct {
	AtomID uuid.UUID
	Score  float32
}

// Filters narrows a Search call beyond the source-user scope every query
// already carries.
type Filters struct {
	AtomType  *string
	Graph     *model.GraphState
	TimeRange *TimeRange
}

// TimeRange bounds FirstObserved.
type TimeRange struct {
	From *time.Time
	To   *time.Time
}

// Searcher is the interface for vector search indexes. Implementations must
// be safe for concurrent use.
type Searcher interface {
	// Search returns atom IDs matching the query vector, scoped to
	// sourceUser and filtered by the optional Filters. Returns IDs + raw
	// similarity scores; the caller hydrates from Postgres.
	Search(ctx context.Context, sourceUser string, embedding []float32, filters Filters, limit int) ([]Result, error)

	// Healthy returns nil if the search index is reachable, or an error
	// describing the problem.
	Healthy(ctx context.Context) error
}

// CandidateFinder performs ANN search for internal use (conflict detection,
// retrieval candidate gathering). Unlike Searcher (caller-facing, with
// filter parameters), CandidateFinder is optimized for minimal-filter,
// single-subject ANN lookups.
//
// QdrantIndex implements both Searcher and CandidateFinder; callers that
// hold a Searcher can type-assert to CandidateFinder when they need
// internal ANN access.
type CandidateFinder interface {
	// FindSimilar returns atom IDs similar to the given embedding within a
	// source user's scope. excludeID is removed from results (the atom the
	// embedding came from, if any).
	FindSimilar(ctx context.Context, sourceUser string, embedding []float32, excludeID uuid.UUID, limit int) ([]Result, error)
}

// Hydrate resolves a set of raw search results into retrieval.Candidates,
// dropping any result whose atom was deleted or superseded between the
// index query and Postgres hydration.
func Hydrate(results []Result, atoms map[uuid.UUID]model.Atom) []retrieval.Candidate {
	out := make([]retrieval.Candidate, 0, len(results))
	for _, r := range results {
		a, ok := atoms[r.AtomID]
		if !ok {
			continue
		}
		out = append(out, retrieval.Candidate{Atom: a, Relevance: float64(r.Score)})
	}
	return out
}
