package mcp

import (
	"github.com/pltm/engine/internal/model"
)

const maxCompactContextLen = 200

// compactAtom returns a minimal representation of an atom for MCP responses.
// Drops internal bookkeeping (embedding, superseded_by, assertion_count)
// that agents don't act on directly.
func compactAtom(a model.Atom) map[string]any {
	m := map[string]any{
		"id":             a.ID,
		"subject":        a.Subject,
		"predicate":      a.Predicate,
		"object":         a.Object,
		"atom_type":      a.AtomType,
		"provenance":     a.Provenance,
		"graph":          a.Graph,
		"confidence":     a.Confidence,
		"first_observed": a.FirstObserved,
		"last_accessed":  a.LastAccessed,
		"access_count":   a.AccessCount,
	}
	if len(a.Contexts) > 0 {
		m["contexts"] = a.Contexts
	}
	return m
}

// compactScoredAtom wraps a compact atom with its retrieval score breakdown.
func compactScoredAtom(s model.ScoredAtom) map[string]any {
	m := compactAtom(s.Atom)
	m["score"] = s.Score
	m["relevance"] = s.Relevance
	m["recency"] = s.Recency
	m["stability"] = s.Stability
	return m
}

// compactClaim returns a minimal representation of a prediction-book claim.
func compactClaim(c model.Claim) map[string]any {
	m := map[string]any{
		"id":                  c.ID,
		"domain":              c.Domain,
		"statement":           truncate(c.Statement, maxCompactContextLen),
		"felt_confidence":     c.FeltConfidence,
		"adjusted_confidence": c.AdjustedConfidence,
		"epistemic_status":    c.EpistemicStatus,
		"has_verified":        c.HasVerified,
		"logged_at":           c.LoggedAt,
	}
	if c.ResolvedAt != nil {
		m["resolved_at"] = *c.ResolvedAt
		m["verdict"] = c.Verdict
	}
	if c.CalibrationError != nil {
		m["calibration_error"] = *c.CalibrationError
	}
	return m
}

func truncate(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen]) + "..."
}
