// Package extractor turns a free-text utterance into zero or more
// candidate atoms. It runs a deterministic rule stage first and only falls
// back to an LLM when no rule matches, grounded on the two-stage
// cheap-then-precise shape of internal/conflicts (embedding scorer first,
// LLM validator second) and on internal/conflicts/validator.go's call
// conventions for the LLM stage itself.
package extractor

import (
	"context"
	"log/slog"

	"github.com/pltm/engine/internal/model"
	"github.com/pltm/engine/internal/ontology"
)

// Extractor maps an utterance to candidate atoms for a given caller.
type Extractor interface {
	Extract(ctx context.Context, sourceUser, text string) ([]model.Atom, error)
}

// Model runs the rule stage first, falling back to an LLM extractor only
// when the rules find nothing. Both stages produce atoms with
// provenance in {USER_STATED, EXTRACTED} and graph=UNSUBSTANTIATED — the
// caller may override either after the call returns.
type Model struct {
	fallback LLMExtractor
	logger   *slog.Logger
}

// LLMExtractor is the fallback stage, implemented by OllamaExtractor,
// OpenAIExtractor, or NoopExtractor.
type LLMExtractor interface {
	Extract(ctx context.Context, text string) ([]Candidate, error)
}

// Candidate is a raw (subject, predicate, object, atom_type) tuple before
// provenance/graph defaults are applied and the predicate is validated
// against the ontology.
type Candidate struct {
	Subject   string
	Predicate string
	Object    string
	AtomType  string
}

// New constructs a Model. fallback may be nil, in which case only the rule
// stage runs.
func New(fallback LLMExtractor, logger *slog.Logger) *Model {
	return &Model{fallback: fallback, logger: logger}
}

// Extract runs the rule stage, then the LLM fallback when the rule stage
// finds nothing. Candidates whose predicate doesn't resolve to an allowed
// predicate for their atom_type are dropped rather than erroring — an
// extractor produces best-effort candidates, not a strict validation API.
func (m *Model) Extract(ctx context.Context, sourceUser, text string) ([]model.Atom, error) {
	if text == "" {
		return nil, nil
	}

	candidates := matchRules(text)
	provenance := model.ProvenanceUserStated

	if len(candidates) == 0 && m.fallback != nil {
		var err error
		candidates, err = m.fallback.Extract(ctx, text)
		if err != nil {
			if m.logger != nil {
				m.logger.Warn("extractor: LLM fallback failed", "error", err)
			}
			return nil, nil
		}
		provenance = model.ProvenanceExtracted
	}

	atoms := make([]model.Atom, 0, len(candidates))
	for _, c := range candidates {
		if !ontology.ValidatePredicate(c.AtomType, c.Predicate) {
			if m.logger != nil {
				m.logger.Debug("extractor: dropping candidate with unknown predicate",
					"atom_type", c.AtomType, "predicate", c.Predicate)
			}
			continue
		}
		atoms = append(atoms, model.Atom{
			Subject:    c.Subject,
			Predicate:  c.Predicate,
			Object:     c.Object,
			AtomType:   c.AtomType,
			Provenance: provenance,
			Graph:      model.GraphUnsubstantiated,
			Confidence: 0.7,
			SourceUser: sourceUser,
		})
	}
	return atoms, nil
}
