package pltm

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/pltm/engine/internal/model"
)

// StoreAtomRequest is the payload for storing a new fact, reconciled
// against the existing graph. Mirrors model.StoreAtomRequest for use from
// an embedding host without an internal package import.
type StoreAtomRequest struct {
	Subject    string
	Predicate  string
	Object     string
	AtomType   string
	Provenance string
	Confidence float64
	Contexts   []string
	SourceUser string
	Metadata   map[string]any
}

// StoreAtomResult reports the outcome of a StoreAtom call.
type StoreAtomResult struct {
	Atom          Atom
	Outcome       string
	SupersededIDs []string
}

// StoreAtom records a new fact for source_user, reconciling it against the
// existing graph: duplicates reinforce, contradictions supersede the
// weaker claim. Equivalent to the pltm_store MCP tool, exposed here for
// host applications embedding the engine directly rather than over MCP.
func (e *Engine) StoreAtom(ctx context.Context, req StoreAtomRequest) (StoreAtomResult, error) {
	result, err := e.svc.StoreAtom(ctx, model.StoreAtomRequest{
		Subject:    req.Subject,
		Predicate:  req.Predicate,
		Object:     req.Object,
		AtomType:   req.AtomType,
		Provenance: model.Provenance(req.Provenance),
		Confidence: req.Confidence,
		Contexts:   req.Contexts,
		SourceUser: req.SourceUser,
		Metadata:   req.Metadata,
	})
	if err != nil {
		return StoreAtomResult{}, err
	}
	superseded := make([]string, len(result.SupersededIDs))
	for i, id := range result.SupersededIDs {
		superseded[i] = id.String()
	}
	return StoreAtomResult{
		Atom:          toPublicAtom(result.Atom),
		Outcome:       result.Outcome,
		SupersededIDs: superseded,
	}, nil
}

// GetAtom fetches a single atom by ID.
func (e *Engine) GetAtom(ctx context.Context, id string) (Atom, error) {
	atomID, err := uuid.Parse(id)
	if err != nil {
		return Atom{}, fmt.Errorf("pltm: invalid atom id %q: %w", id, err)
	}
	a, err := e.svc.GetAtom(ctx, atomID)
	if err != nil {
		return Atom{}, err
	}
	return toPublicAtom(a), nil
}

// AttentionRetrieve runs the weighted-attention retrieval pass for query,
// scoped to sourceUser, returning up to limit scored atoms.
func (e *Engine) AttentionRetrieve(ctx context.Context, sourceUser, query string, limit int) ([]ScoredAtom, error) {
	scored, err := e.svc.AttentionRetrieve(ctx, model.AttentionRetrieveRequest{
		Query:      query,
		SourceUser: sourceUser,
		Limit:      limit,
	})
	if err != nil {
		return nil, err
	}
	out := make([]ScoredAtom, len(scored))
	for i, s := range scored {
		out[i] = ScoredAtom{
			Atom:       toPublicAtom(s.Atom),
			Score:      s.Score,
			Relevance:  s.Relevance,
			Confidence: s.Confidence,
			Recency:    s.Recency,
			Stability:  s.Stability,
		}
	}
	return out, nil
}
