// Package reconcile decides, for each candidate atom, whether to insert,
// reinforce an existing atom, or resolve a semantic conflict with one or
// more existing atoms. Every winner/loser transition for a single candidate
// happens inside one Postgres transaction serialized by a keyed advisory
// lock, grounded on internal/conflicts/scorer.go's pairwise scoring
// pipeline and storage.WithAtomLock's transaction-scoped lock contract.
package reconcile

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/pltm/engine/internal/clock"
	"github.com/pltm/engine/internal/decay"
	"github.com/pltm/engine/internal/model"
	"github.com/pltm/engine/internal/ontology"
	"github.com/pltm/engine/internal/retrieval"
	"github.com/pltm/engine/internal/storage"
)

// Config holds the reconcile.* configuration keys.
type Config struct {
	// SimilarityThreshold filters the candidate set in the similarity-filter
	// stage of conflict detection.
	SimilarityThreshold float64
	// DuplicateThreshold is the similarity above which two objects under
	// the same exclusive predicate are treated as synonyms rather than a
	// conflict.
	DuplicateThreshold float64
}

// DefaultConfig matches the documented defaults for reconcile.* keys.
func DefaultConfig() Config {
	return Config{SimilarityThreshold: 0.6, DuplicateThreshold: 0.9}
}

// oppositeSimilarityFloor is the minimum object similarity for an
// opposite-predicate pair to count as a genuine conflict rather than two
// unrelated facts that happen to use opposed predicates.
const oppositeSimilarityFloor = 0.7

// Reconciler resolves candidate atoms against the existing graph.
type Reconciler struct {
	db     *storage.DB
	clock  clock.Clock
	logger *slog.Logger
	cfg    Config
}

// New constructs a Reconciler.
func New(db *storage.DB, clk clock.Clock, logger *slog.Logger, cfg Config) *Reconciler {
	return &Reconciler{db: db, clock: clk, logger: logger, cfg: cfg}
}

// Outcome labels returned in model.StoreAtomResult.
const (
	OutcomeInserted   = "inserted"
	OutcomeReinforced = "reinforced"
	OutcomeSuperseded = "superseded"
)

// Reconcile runs the full store_atom pipeline for candidate: conflict
// detection, resolution, and the resulting graph transition, all inside one
// transaction serialized on (subject, predicate).
func (r *Reconciler) Reconcile(ctx context.Context, candidate model.Atom) (model.Atom, string, []uuid.UUID, error) {
	if err := candidate.Validate(); err != nil {
		return model.Atom{}, "", nil, err
	}
	if err := ontology.Validate(candidate); err != nil {
		return model.Atom{}, "", nil, err
	}

	now := r.clock.Now()
	if candidate.ID == uuid.Nil {
		candidate.ID = uuid.New()
	}
	if candidate.FirstObserved.IsZero() {
		candidate.FirstObserved = now
	}
	candidate.LastAccessed = now
	if candidate.Graph == "" {
		candidate.Graph = defaultGraph(candidate.Provenance)
	}

	var result model.Atom
	var outcome string
	var superseded []uuid.UUID

	err := r.db.WithAtomLock(ctx, candidate.Subject, candidate.Predicate, func(tx pgx.Tx) error {
		existing, err := r.db.FindConflictCandidatesTx(ctx, tx, candidate.SourceUser, candidate.Subject)
		if err != nil {
			return err
		}
		if len(existing) == 0 {
			stored, err := r.db.InsertTx(ctx, tx, candidate)
			if err != nil {
				return err
			}
			result, outcome = stored, OutcomeInserted
			return nil
		}

		if dup, ok := findDuplicate(candidate, existing); ok {
			reinforced := reinforce(dup, now)
			if err := r.db.UpdateTx(ctx, tx, reinforced); err != nil {
				return err
			}
			result, outcome = reinforced, OutcomeReinforced
			return nil
		}

		conflicts := r.detectConflicts(candidate, existing)
		if len(conflicts) == 0 {
			stored, err := r.db.InsertTx(ctx, tx, candidate)
			if err != nil {
				return err
			}
			result, outcome = stored, OutcomeInserted
			return nil
		}

		winner, losers := resolve(candidate, conflicts)

		if winner.ID != candidate.ID {
			// Candidate lost outright; it is never stored.
			for _, loser := range losers {
				moved := supersede(loser, winner.ID, now)
				if err := r.db.UpdateTx(ctx, tx, moved); err != nil {
					return err
				}
				superseded = append(superseded, loser.ID)
			}
			boosted := decay.Reconsolidate(winner, now)
			boosted.Graph = model.GraphSubstantiated
			if err := r.db.UpdateTx(ctx, tx, boosted); err != nil {
				return err
			}
			result, outcome = boosted, OutcomeSuperseded
			return nil
		}

		winner.Graph = model.GraphSubstantiated
		stored, err := r.db.InsertTx(ctx, tx, winner)
		if err != nil {
			return err
		}
		for _, loser := range losers {
			moved := supersede(loser, stored.ID, now)
			if err := r.db.UpdateTx(ctx, tx, moved); err != nil {
				return err
			}
			superseded = append(superseded, loser.ID)
		}
		result, outcome = stored, OutcomeSuperseded
		return nil
	})
	if err != nil {
		return model.Atom{}, "", nil, err
	}
	return result, outcome, superseded, nil
}

func defaultGraph(p model.Provenance) model.GraphState {
	if p == model.ProvenanceUserStated {
		return model.GraphSubstantiated
	}
	return model.GraphUnsubstantiated
}

// findDuplicate reports the existing atom that is an exact-triple
// re-insertion of candidate with overlapping (or mutually empty) contexts.
func findDuplicate(candidate model.Atom, existing []model.Atom) (model.Atom, bool) {
	for _, e := range existing {
		if e.Predicate == candidate.Predicate && e.Object == candidate.Object && contextsOverlap(e.Contexts, candidate.Contexts) {
			return e, true
		}
	}
	return model.Atom{}, false
}

func contextsOverlap(a, b []string) bool {
	if len(a) == 0 || len(b) == 0 {
		return true
	}
	set := make(map[string]struct{}, len(a))
	for _, c := range a {
		set[c] = struct{}{}
	}
	for _, c := range b {
		if _, ok := set[c]; ok {
			return true
		}
	}
	return false
}

func reinforce(a model.Atom, now time.Time) model.Atom {
	a.AssertionCount++
	a.LastAccessed = now
	return decay.Reconsolidate(a, now)
}

// objectSimilarity compares two atoms' objects using embeddings when both
// are present, otherwise falling back to string-level token overlap — the
// same fallback the similarity filter uses.
func objectSimilarity(a, b model.Atom) float64 {
	if a.Embedding != nil && b.Embedding != nil {
		return retrieval.CosineSimilarity(a.Embedding.Slice(), b.Embedding.Slice())
	}
	return sequenceSimilarity(a.Object, b.Object)
}

// sequenceSimilarity is a normalized token-overlap measure over object
// strings, used whenever no embedding is available for either side.
func sequenceSimilarity(a, b string) float64 {
	ta, tb := tokenSet(a), tokenSet(b)
	if len(ta) == 0 && len(tb) == 0 {
		return 1
	}
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}
	union := make(map[string]struct{}, len(ta)+len(tb))
	for t := range ta {
		union[t] = struct{}{}
	}
	for t := range tb {
		union[t] = struct{}{}
	}
	var intersection int
	for t := range ta {
		if _, ok := tb[t]; ok {
			intersection++
		}
	}
	return float64(intersection) / float64(len(union))
}

func tokenSet(s string) map[string]struct{} {
	fields := strings.Fields(strings.ToLower(s))
	out := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		out[f] = struct{}{}
	}
	return out
}
