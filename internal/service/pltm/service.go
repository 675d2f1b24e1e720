// Package pltm wires the engine's independently-testable components
// (storage, reconcile, decay, retrieval, search, epistemic, extractor) into
// the operations named by the RPC surface. Every method here corresponds
// 1:1 to an entry in internal/model/api.go and to one tool registered by
// internal/mcp.
package pltm

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"

	"github.com/pltm/engine/internal/clock"
	"github.com/pltm/engine/internal/decay"
	"github.com/pltm/engine/internal/epistemic"
	"github.com/pltm/engine/internal/model"
	"github.com/pltm/engine/internal/reconcile"
	"github.com/pltm/engine/internal/retrieval"
	"github.com/pltm/engine/internal/search"
	"github.com/pltm/engine/internal/service/embedding"
	"github.com/pltm/engine/internal/storage"
)

// Config holds the retrieve.* defaults applied when a request leaves the
// corresponding field zero.
type Config struct {
	AttentionWeights model.AttentionWeights
	MMRLambda        float64
	MMRMinDissim     float64
	// VectorEnabled gates whether StoreAtom embeds candidates and whether
	// retrieval consults the Searcher at all. When false, relevance is
	// computed by retrieval.TokenOverlapRelevance over an FTS candidate pool.
	VectorEnabled bool
	DefaultLimit  int
}

// DefaultConfig matches the documented retrieve.* defaults.
func DefaultConfig() Config {
	return Config{
		AttentionWeights: model.DefaultAttentionWeights(),
		MMRLambda:        0.6,
		MMRMinDissim:     0.25,
		VectorEnabled:    true,
		DefaultLimit:     20,
	}
}

// Service implements every RPC-facing operation by delegating to the
// already-independently-tested component packages. It holds no business
// logic of its own beyond wiring: embedding a query, gathering a candidate
// pool, and handing both to the right component.
type Service struct {
	db         *storage.DB
	embedder   embedding.Provider // nil disables embedding; falls back to token-overlap relevance
	searcher   search.Searcher    // nil disables vector search; falls back to FTS
	reconciler *reconcile.Reconciler
	decay      *decay.Engine
	epistemic  *epistemic.Monitor
	extractor  extractorModel
	clock      clock.Clock
	logger     *slog.Logger
	cfg        Config
}

// extractorModel is the subset of *extractor.Model the service needs,
// narrowed to ease testing with a stub.
type extractorModel interface {
	Extract(ctx context.Context, sourceUser, text string) ([]model.Atom, error)
}

// New constructs a Service. embedder and searcher may be nil (vector search
// disabled); every other argument is required.
func New(
	db *storage.DB,
	embedder embedding.Provider,
	searcher search.Searcher,
	reconciler *reconcile.Reconciler,
	decayEngine *decay.Engine,
	monitor *epistemic.Monitor,
	extractorModel extractorModel,
	clk clock.Clock,
	logger *slog.Logger,
	cfg Config,
) *Service {
	return &Service{
		db:         db,
		embedder:   embedder,
		searcher:   searcher,
		reconciler: reconciler,
		decay:      decayEngine,
		epistemic:  monitor,
		extractor:  extractorModel,
		clock:      clk,
		logger:     logger,
		cfg:        cfg,
	}
}

// embedText returns nil, nil when the vector backend is disabled or no
// embedder is configured — callers treat a nil vector as "skip embedding"
// rather than an error, matching service.Search's own degrade-gracefully
// convention for a missing provider.
func (s *Service) embedText(ctx context.Context, text string) (*pgvector.Vector, error) {
	if !s.cfg.VectorEnabled || s.embedder == nil || text == "" {
		return nil, nil
	}
	vec, err := s.embedder.Embed(ctx, text)
	if err != nil {
		if s.logger != nil {
			s.logger.Warn("pltm: embedding failed, continuing without it", "error", err)
		}
		return nil, nil
	}
	return &vec, nil
}

func tripleText(subject, predicate, object string) string {
	return fmt.Sprintf("%s %s %s", subject, predicate, object)
}

// defaultConfidence matches the extractor's own default (internal/extractor's
// rule stage uses the same constant) so a caller who omits confidence gets
// consistent behavior across every entry point into the graph.
func defaultConfidence(c float64) float64 {
	if c == 0 {
		return 0.7
	}
	return c
}

func defaultProvenance(p model.Provenance) model.Provenance {
	if p == "" {
		return model.ProvenanceUserStated
	}
	return p
}

// StoreAtom validates, optionally embeds, and reconciles a candidate atom
// against the existing graph, returning the stored (or reinforced, or
// superseding) atom.
func (s *Service) StoreAtom(ctx context.Context, req model.StoreAtomRequest) (model.StoreAtomResult, error) {
	candidate := model.Atom{
		Subject:    req.Subject,
		Predicate:  req.Predicate,
		Object:     req.Object,
		AtomType:   req.AtomType,
		Provenance: defaultProvenance(req.Provenance),
		Confidence: defaultConfidence(req.Confidence),
		Strength:   1.0,
		Contexts:   req.Contexts,
		SourceUser: req.SourceUser,
		Metadata:   req.Metadata,
	}

	if vec, err := s.embedText(ctx, tripleText(candidate.Subject, candidate.Predicate, candidate.Object)); err == nil {
		candidate.Embedding = vec
	}

	stored, outcome, superseded, err := s.reconciler.Reconcile(ctx, candidate)
	if err != nil {
		return model.StoreAtomResult{}, model.Wrap(model.KindOf(err), "StoreAtom", err)
	}
	s.decay.Touch()
	return model.StoreAtomResult{Atom: stored, Outcome: outcome, SupersededIDs: superseded}, nil
}

// ExtractAndStore runs the two-stage extractor over a free-text utterance
// and reconciles each resulting candidate, one at a time, so a partial
// extraction still yields whatever atoms validated and reconciled cleanly.
func (s *Service) ExtractAndStore(ctx context.Context, sourceUser, text string) ([]model.StoreAtomResult, error) {
	if s.extractor == nil {
		return nil, nil
	}
	candidates, err := s.extractor.Extract(ctx, sourceUser, text)
	if err != nil {
		return nil, model.Wrap(model.Internal, "ExtractAndStore", err)
	}
	results := make([]model.StoreAtomResult, 0, len(candidates))
	for _, c := range candidates {
		req := model.StoreAtomRequest{
			Subject:    c.Subject,
			Predicate:  c.Predicate,
			Object:     c.Object,
			AtomType:   c.AtomType,
			Provenance: c.Provenance,
			Confidence: c.Confidence,
			Contexts:   c.Contexts,
			SourceUser: c.SourceUser,
			Metadata:   c.Metadata,
		}
		res, err := s.StoreAtom(ctx, req) // candidate already has source_user from the extractor call
		if err != nil {
			if s.logger != nil {
				s.logger.Warn("pltm: extracted candidate failed to reconcile", "error", err)
			}
			continue
		}
		results = append(results, res)
	}
	return results, nil
}

// GetAtom fetches a single atom by ID and bumps its access bookkeeping.
func (s *Service) GetAtom(ctx context.Context, id uuid.UUID) (model.Atom, error) {
	atom, err := s.db.Get(ctx, id)
	if err != nil {
		return model.Atom{}, model.Wrap(model.KindOf(err), "GetAtom", err)
	}
	atom.AccessCount++
	atom.LastAccessed = s.clock.Now()
	if err := s.db.Update(ctx, atom); err != nil {
		return model.Atom{}, model.Wrap(model.KindOf(err), "GetAtom", err)
	}
	return atom, nil
}

// FindTriples filters atoms by partial triple and graph membership.
// With a Subject it returns the exact triple when Predicate and Object are
// both set, and otherwise every atom of that subject; without a Subject it
// returns the atoms in each requested graph state. Predicate and Object are
// only used together with a Subject and each other.
func (s *Service) FindTriples(ctx context.Context, req model.FindTriplesRequest) ([]model.Atom, error) {
	var subject string
	if req.Subject != nil {
		subject = *req.Subject
	}

	var atoms []model.Atom
	var err error
	switch {
	case subject != "" && req.Predicate != nil && req.Object != nil:
		atoms, err = s.db.FindByTriple(ctx, req.SourceUser, subject, *req.Predicate, *req.Object)
	case subject != "":
		atoms, err = s.db.GetBySubject(ctx, req.SourceUser, subject)
	case len(req.Graph) > 0:
		for _, g := range req.Graph {
			var part []model.Atom
			part, err = s.db.GetByGraph(ctx, req.SourceUser, g, req.Limit)
			if err != nil {
				break
			}
			atoms = append(atoms, part...)
		}
	default:
		return nil, model.Wrap(model.InvalidArgument, "FindTriples", fmt.Errorf("subject or graph filter required"))
	}
	if err != nil {
		return nil, model.Wrap(model.KindOf(err), "FindTriples", err)
	}

	if len(req.Graph) > 0 && subject != "" {
		atoms = filterByGraph(atoms, req.Graph)
	}
	if req.Limit > 0 && len(atoms) > req.Limit {
		atoms = atoms[:req.Limit]
	}
	return atoms, nil
}

func filterByGraph(atoms []model.Atom, graphs []model.GraphState) []model.Atom {
	allowed := make(map[model.GraphState]struct{}, len(graphs))
	for _, g := range graphs {
		allowed[g] = struct{}{}
	}
	out := make([]model.Atom, 0, len(atoms))
	for _, a := range atoms {
		if _, ok := allowed[a.Graph]; ok {
			out = append(out, a)
		}
	}
	return out
}

// DeleteAtom removes an atom outright (as opposed to the graduated
// dissolution the decay worker performs).
func (s *Service) DeleteAtom(ctx context.Context, id uuid.UUID) error {
	if err := s.db.Delete(ctx, id); err != nil {
		return model.Wrap(model.KindOf(err), "DeleteAtom", err)
	}
	return nil
}

// candidatePool gathers the retrieval candidate set for sourceUser/query:
// a vector search through the Searcher when enabled, falling back to FTS
// plus token-overlap relevance otherwise — the same automatic-fallback
// shape internal/search.Hydrate's caller always follows.
func (s *Service) candidatePool(ctx context.Context, sourceUser, query string, limit int) ([]retrieval.Candidate, error) {
	if s.cfg.VectorEnabled && s.embedder != nil && s.searcher != nil {
		vec, err := s.embedder.Embed(ctx, query)
		if err == nil {
			results, err := s.searcher.Search(ctx, sourceUser, vec.Slice(), search.Filters{}, limit)
			if err == nil {
				atoms := make(map[uuid.UUID]model.Atom, len(results))
				for _, r := range results {
					a, err := s.db.Get(ctx, r.AtomID)
					if err != nil {
						continue
					}
					atoms[r.AtomID] = a
				}
				return search.Hydrate(results, atoms), nil
			}
			if s.logger != nil {
				s.logger.Warn("pltm: vector search failed, falling back to FTS", "error", err)
			}
		}
	}

	pool := limit
	if pool <= 0 {
		pool = s.cfg.DefaultLimit
	}
	atoms, err := s.db.FTSSearch(ctx, sourceUser, query, pool*4)
	if err != nil {
		return nil, err
	}
	candidates := make([]retrieval.Candidate, 0, len(atoms))
	for _, a := range atoms {
		candidates = append(candidates, retrieval.Candidate{
			Atom:      a,
			Relevance: retrieval.TokenOverlapRelevance(query, a),
		})
	}
	return candidates, nil
}

func (s *Service) limitOrDefault(limit int) int {
	if limit > 0 {
		return limit
	}
	return s.cfg.DefaultLimit
}

// AttentionRetrieve scores candidates by the weighted attention formula and
// returns the top results.
func (s *Service) AttentionRetrieve(ctx context.Context, req model.AttentionRetrieveRequest) ([]model.ScoredAtom, error) {
	limit := s.limitOrDefault(req.Limit)
	candidates, err := s.candidatePool(ctx, req.SourceUser, req.Query, limit)
	if err != nil {
		return nil, model.Wrap(model.KindOf(err), "AttentionRetrieve", err)
	}
	weights := s.cfg.AttentionWeights
	if req.Weights != nil {
		weights = *req.Weights
	}
	return retrieval.Attention(candidates, weights, limit, s.clock.Now()), nil
}

// AttentionMultiHead runs retrieval under several weight vectors and merges
// by max score per atom.
func (s *Service) AttentionMultiHead(ctx context.Context, req model.MultiHeadRequest) ([]model.ScoredAtom, error) {
	limit := s.limitOrDefault(req.Limit)
	candidates, err := s.candidatePool(ctx, req.SourceUser, req.Query, limit)
	if err != nil {
		return nil, model.Wrap(model.KindOf(err), "AttentionMultiHead", err)
	}
	heads := req.Heads
	if len(heads) == 0 {
		heads = []model.AttentionWeights{s.cfg.AttentionWeights}
	}
	return retrieval.MultiHead(candidates, heads, limit, s.clock.Now()), nil
}

// MMRRetrieve returns a diversified top-k selection via maximal marginal
// relevance.
func (s *Service) MMRRetrieve(ctx context.Context, req model.MMRRequest) ([]model.ScoredAtom, error) {
	limit := s.limitOrDefault(req.Limit)
	candidates, err := s.candidatePool(ctx, req.SourceUser, req.Query, limit)
	if err != nil {
		return nil, model.Wrap(model.KindOf(err), "MMRRetrieve", err)
	}
	lambda := req.Lambda
	if lambda == 0 {
		lambda = s.cfg.MMRLambda
	}
	minDissim := req.MinDissimilarity
	if minDissim == 0 {
		minDissim = s.cfg.MMRMinDissim
	}
	return retrieval.MMR(candidates, lambda, minDissim, limit, s.clock.Now()), nil
}

// entropyPool fetches a broad, unscored atom pool for a source user — the
// entropy operators need raw atoms, not relevance-ranked candidates, since
// their whole purpose is to surface what attention would never rank highly.
func (s *Service) entropyPool(ctx context.Context, sourceUser string, limit int) ([]model.Atom, error) {
	pool := limit * 5
	if pool <= 0 {
		pool = s.cfg.DefaultLimit * 5
	}
	substantiated, err := s.db.GetByGraph(ctx, sourceUser, model.GraphSubstantiated, pool)
	if err != nil {
		return nil, err
	}
	unsubstantiated, err := s.db.GetByGraph(ctx, sourceUser, model.GraphUnsubstantiated, pool)
	if err != nil {
		return nil, err
	}
	return append(substantiated, unsubstantiated...), nil
}

// InjectEntropyRandom surfaces atoms weighted toward the least-accessed,
// countering attention retrieval's tendency to keep surfacing the same
// well-worn atoms.
func (s *Service) InjectEntropyRandom(ctx context.Context, req model.EntropyInjectionRequest) ([]model.Atom, error) {
	limit := s.limitOrDefault(req.Limit)
	pool, err := s.entropyPool(ctx, req.SourceUser, limit)
	if err != nil {
		return nil, model.Wrap(model.KindOf(err), "InjectEntropyRandom", err)
	}
	return retrieval.RandomInjection(pool, limit, rand.New(rand.NewSource(s.clock.Now().UnixNano()))), nil
}

// InjectEntropyAntipodal surfaces the atoms least similar to a given
// anchor atom.
func (s *Service) InjectEntropyAntipodal(ctx context.Context, req model.EntropyInjectionRequest) ([]model.Atom, error) {
	if req.AnchorAtomID == nil {
		return nil, model.Wrap(model.InvalidArgument, "InjectEntropyAntipodal", fmt.Errorf("anchor_atom_id is required"))
	}
	anchor, err := s.db.Get(ctx, *req.AnchorAtomID)
	if err != nil {
		return nil, model.Wrap(model.KindOf(err), "InjectEntropyAntipodal", err)
	}
	limit := s.limitOrDefault(req.Limit)
	pool, err := s.entropyPool(ctx, req.SourceUser, limit)
	if err != nil {
		return nil, model.Wrap(model.KindOf(err), "InjectEntropyAntipodal", err)
	}
	return retrieval.AntipodalInjection(anchor, pool, limit), nil
}

// InjectEntropyTemporal surfaces a mix of the oldest and newest atoms.
func (s *Service) InjectEntropyTemporal(ctx context.Context, req model.EntropyInjectionRequest) ([]model.Atom, error) {
	limit := s.limitOrDefault(req.Limit)
	pool, err := s.entropyPool(ctx, req.SourceUser, limit)
	if err != nil {
		return nil, model.Wrap(model.KindOf(err), "InjectEntropyTemporal", err)
	}
	return retrieval.TemporalInjection(pool, limit, s.clock.Now()), nil
}

// DecayStability reports an atom's current stability and predicted
// dissolution schedule.
func (s *Service) DecayStability(ctx context.Context, req model.DecayStabilityRequest) (model.DecayStabilityResult, error) {
	atom, err := s.db.Get(ctx, req.AtomID)
	if err != nil {
		return model.DecayStabilityResult{}, model.Wrap(model.KindOf(err), "DecayStability", err)
	}
	now := s.clock.Now()
	return model.DecayStabilityResult{
		AtomID:    atom.ID,
		Stability: decay.Stability(atom, now),
		Schedule:  decay.PredictedSchedule(atom),
	}, nil
}

// DecayRun triggers an out-of-band decay sweep, normally invoked only by
// the background worker but exposed for operator-triggered runs.
func (s *Service) DecayRun(ctx context.Context, req model.DecayRunRequest) (model.DecayRunResult, error) {
	result, err := s.decay.RunDissolution(ctx, req.SourceUser)
	if err != nil {
		return model.DecayRunResult{}, model.Wrap(model.KindOf(err), "DecayRun", err)
	}
	return result, nil
}

// CheckBeforeClaiming runs the pre-claim epistemic gate.
func (s *Service) CheckBeforeClaiming(ctx context.Context, req model.CheckBeforeClaimingRequest) (model.CheckResult, error) {
	result, err := s.epistemic.CheckBeforeClaiming(ctx, req)
	if err != nil {
		return model.CheckResult{}, model.Wrap(model.KindOf(err), "CheckBeforeClaiming", err)
	}
	return result, nil
}

// LogClaim appends a new row to the prediction book.
func (s *Service) LogClaim(ctx context.Context, req model.LogClaimRequest) (model.Claim, error) {
	claim, err := s.epistemic.LogClaim(ctx, req)
	if err != nil {
		return model.Claim{}, model.Wrap(model.KindOf(err), "LogClaim", err)
	}
	return claim, nil
}

// ResolveClaim resolves a previously logged claim against its actual
// outcome and rebuilds the domain's calibration cache.
func (s *Service) ResolveClaim(ctx context.Context, req model.ResolveClaimRequest) (model.Claim, error) {
	claim, err := s.epistemic.ResolveClaim(ctx, req)
	if err != nil {
		return model.Claim{}, model.Wrap(model.KindOf(err), "ResolveClaim", err)
	}
	return claim, nil
}

// GetCalibration returns the calibration report, optionally scoped to a
// single domain.
func (s *Service) GetCalibration(ctx context.Context, req model.GetCalibrationRequest) (model.CalibrationReport, error) {
	report, err := s.epistemic.GetCalibration(ctx, req)
	if err != nil {
		return model.CalibrationReport{}, model.Wrap(model.KindOf(err), "GetCalibration", err)
	}
	return report, nil
}
