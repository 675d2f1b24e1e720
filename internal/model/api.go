package model

import (
	"time"

	"github.com/google/uuid"
)

// StoreAtomRequest is the payload for the store_atom RPC operation.
type StoreAtomRequest struct {
	Subject    string         `json:"subject"`
	Predicate  string         `json:"predicate"`
	Object     string         `json:"object"`
	AtomType   string         `json:"atom_type"`
	Provenance Provenance     `json:"provenance"`
	Confidence float64        `json:"confidence"`
	Contexts   []string       `json:"contexts,omitempty"`
	SourceUser string         `json:"source_user"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// StoreAtomResult is the response for store_atom. Outcome distinguishes a
// plain insert from a reinforced duplicate or a reconciled conflict.
type StoreAtomResult struct {
	Atom    Atom   `json:"atom"`
	Outcome string `json:"outcome"` // inserted | reinforced | superseded
	// SupersededIDs lists atoms that lost a reconciliation conflict against
	// the stored atom, if any.
	SupersededIDs []uuid.UUID `json:"superseded_ids,omitempty"`
}

// FindTriplesRequest filters atoms by partial triple and graph membership.
type FindTriplesRequest struct {
	Subject    *string      `json:"subject,omitempty"`
	Predicate  *string      `json:"predicate,omitempty"`
	Object     *string      `json:"object,omitempty"`
	Graph      []GraphState `json:"graph,omitempty"`
	SourceUser string       `json:"source_user"`
	Limit      int          `json:"limit,omitempty"`
}

// AttentionRetrieveRequest drives the weighted attention retrieval pass.
type AttentionRetrieveRequest struct {
	Query      string   `json:"query"`
	SourceUser string   `json:"source_user"`
	Contexts   []string `json:"contexts,omitempty"`
	Limit      int      `json:"limit,omitempty"`
	// Weights overrides the default (relevance, confidence, recency, stability)
	// weight vector. Nil uses retrieve.attention_weights from config.
	Weights *AttentionWeights `json:"weights,omitempty"`
}

// AttentionWeights is the (alpha, beta, gamma, delta) weight vector for the
// attention score: alpha*relevance + beta*confidence + gamma*recency + delta*stability.
type AttentionWeights struct {
	Alpha float64 `json:"alpha"`
	Beta  float64 `json:"beta"`
	Gamma float64 `json:"gamma"`
	Delta float64 `json:"delta"`
}

// DefaultAttentionWeights matches retrieve.attention_weights' documented default.
func DefaultAttentionWeights() AttentionWeights {
	return AttentionWeights{Alpha: 0.5, Beta: 0.2, Gamma: 0.15, Delta: 0.15}
}

// ScoredAtom pairs an atom with its retrieval score and score breakdown.
type ScoredAtom struct {
	Atom       Atom    `json:"atom"`
	Score      float64 `json:"score"`
	Relevance  float64 `json:"relevance"`
	Confidence float64 `json:"confidence"`
	Recency    float64 `json:"recency"`
	Stability  float64 `json:"stability"`
}

// MultiHeadRequest runs attention retrieval under several weight vectors
// and merges results by max score per atom.
type MultiHeadRequest struct {
	Query      string             `json:"query"`
	SourceUser string             `json:"source_user"`
	Contexts   []string           `json:"contexts,omitempty"`
	Limit      int                `json:"limit,omitempty"`
	Heads      []AttentionWeights `json:"heads"`
}

// MMRRequest drives maximal-marginal-relevance diversified retrieval.
type MMRRequest struct {
	Query      string   `json:"query"`
	SourceUser string   `json:"source_user"`
	Contexts   []string `json:"contexts,omitempty"`
	Limit      int      `json:"limit,omitempty"`
	// Lambda trades relevance (1.0) for diversity (0.0). Zero value uses the
	// configured default (0.6).
	Lambda float64 `json:"lambda,omitempty"`
	// MinDissimilarity is the minimum pairwise dissimilarity enforced between
	// selected atoms. Zero value uses the configured default (0.25).
	MinDissimilarity float64 `json:"min_dissimilarity,omitempty"`
}

// EntropyInjectionRequest asks the retriever to surface atoms the attention
// pass would otherwise never reach.
type EntropyInjectionRequest struct {
	SourceUser string `json:"source_user"`
	Limit      int    `json:"limit,omitempty"`
	// Anchor is required for the antipodal operator: the atom to find the
	// least similar counterpart to.
	AnchorAtomID *uuid.UUID `json:"anchor_atom_id,omitempty"`
}

// DecayStabilityRequest asks for the current stability of a single atom.
type DecayStabilityRequest struct {
	AtomID uuid.UUID `json:"atom_id"`
}

// DecayStabilityResult reports an atom's computed stability and predicted
// decay schedule.
type DecayStabilityResult struct {
	AtomID    uuid.UUID          `json:"atom_id"`
	Stability float64            `json:"stability"`
	Schedule  []PredictedDecayPoint `json:"schedule"`
}

// PredictedDecayPoint is the timestamp at which stability is predicted to
// cross a given threshold.
type PredictedDecayPoint struct {
	Threshold float64   `json:"threshold"`
	At        time.Time `json:"at"`
	// Reached is false when the threshold will never be crossed (e.g. an
	// immutable atom, or decay_rate of zero).
	Reached bool `json:"reached"`
}

// DecayRunRequest triggers an out-of-band decay sweep, normally run only by
// the background worker.
type DecayRunRequest struct {
	SourceUser string `json:"source_user,omitempty"`
}

// DecayRunResult summarizes a completed decay sweep.
type DecayRunResult struct {
	Scanned     int `json:"scanned"`
	Dissolved   int `json:"dissolved"`
	Reconsolidated int `json:"reconsolidated"`
}

// CheckBeforeClaimingRequest is the pre-claim epistemic gate input.
type CheckBeforeClaimingRequest struct {
	SourceUser      string          `json:"source_user"`
	Domain          string          `json:"domain"`
	Statement       string          `json:"statement"`
	Confidence      float64         `json:"confidence"`
	HasVerified     bool            `json:"has_verified,omitempty"`
	EpistemicStatus EpistemicStatus `json:"epistemic_status,omitempty"`
}

// LogClaimRequest records a claim in the prediction book.
type LogClaimRequest struct {
	SourceUser      string          `json:"source_user"`
	Domain          string          `json:"domain"`
	Statement       string          `json:"statement"`
	FeltConfidence  float64         `json:"felt_confidence"`
	EpistemicStatus EpistemicStatus `json:"epistemic_status,omitempty"`
	HasVerified     bool            `json:"has_verified,omitempty"`
}

// ResolveClaimRequest resolves a previously logged claim, found either by
// ClaimID or (when ClaimID is the zero value) by a substring match against
// ClaimText among unresolved claims, newest first.
type ResolveClaimRequest struct {
	ClaimID          uuid.UUID `json:"claim_id,omitempty"`
	ClaimText        string    `json:"claim_text,omitempty"`
	Verdict          Verdict   `json:"verdict"`
	CorrectionSource string    `json:"source,omitempty"`
	CorrectionDetail string    `json:"detail,omitempty"`
}

// GetCalibrationRequest asks for the calibration report, optionally scoped to
// a single domain. An empty Domain returns every domain with resolved claims.
type GetCalibrationRequest struct {
	Domain string `json:"domain,omitempty"`
}
