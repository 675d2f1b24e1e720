// Package retrieval implements attention-weighted scoring, multi-head
// fusion, MMR diversity selection, and the entropy injection operators.
// Relevance itself is computed upstream (embedding cosine similarity via
// internal/search, or token-overlap fallback when no embedding is
// available) and handed in on each Candidate; this package owns combining
// relevance with confidence, recency, and stability, and the set-level
// selection logic that sits on top of a single score.
package retrieval

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/pltm/engine/internal/decay"
	"github.com/pltm/engine/internal/model"
)

// Candidate is an atom paired with its precomputed relevance to the query.
type Candidate struct {
	Atom      model.Atom
	Relevance float64
}

// recencyWindowHours bounds how quickly recency decays to near zero; chosen
// so an atom accessed a week ago still scores around 0.5, matching the
// retriever's intent to favor but not over-weight freshly touched atoms.
const recencyWindowHours = 168.0

// Recency is a bounded decreasing function of time since last_accessed,
// using a 1/(1+age/window) shape.
func Recency(a model.Atom, now time.Time) float64 {
	hours := now.Sub(a.LastAccessed).Hours()
	if hours < 0 {
		hours = 0
	}
	return 1.0 / (1.0 + hours/recencyWindowHours)
}

// CosineSimilarity returns the cosine similarity of two equal-length
// vectors in [-1, 1], or 0 if either vector has zero magnitude or the
// lengths differ.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, magA, magB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		magA += float64(a[i]) * float64(a[i])
		magB += float64(b[i]) * float64(b[i])
	}
	if magA == 0 || magB == 0 {
		return 0
	}
	return dot / (math.Sqrt(magA) * math.Sqrt(magB))
}

// TokenOverlapRelevance is the fallback relevance function used when no
// embedding is available for the query or the candidate: normalized
// token-overlap (intersection over union of lowercased tokens drawn from
// subject/predicate/object).
func TokenOverlapRelevance(query string, a model.Atom) float64 {
	qTokens := tokenize(query)
	if len(qTokens) == 0 {
		return 0
	}
	aTokens := tokenize(a.Subject + " " + a.Predicate + " " + a.Object)
	if len(aTokens) == 0 {
		return 0
	}

	union := make(map[string]struct{}, len(qTokens)+len(aTokens))
	for t := range qTokens {
		union[t] = struct{}{}
	}
	for t := range aTokens {
		union[t] = struct{}{}
	}

	var intersection int
	for t := range qTokens {
		if _, ok := aTokens[t]; ok {
			intersection++
		}
	}
	if len(union) == 0 {
		return 0
	}
	return float64(intersection) / float64(len(union))
}

func tokenize(s string) map[string]struct{} {
	fields := strings.Fields(strings.ToLower(s))
	out := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		out[f] = struct{}{}
	}
	return out
}

// score combines relevance, confidence, recency, and stability into a
// single ScoredAtom under the given weight vector.
func score(c Candidate, w model.AttentionWeights, now time.Time) model.ScoredAtom {
	confidence := c.Atom.Confidence
	recency := Recency(c.Atom, now)
	stability := decay.Stability(c.Atom, now)

	total := w.Alpha*c.Relevance + w.Beta*confidence + w.Gamma*recency + w.Delta*stability

	return model.ScoredAtom{
		Atom:       c.Atom,
		Score:      total,
		Relevance:  c.Relevance,
		Confidence: confidence,
		Recency:    recency,
		Stability:  stability,
	}
}

func sortByScoreDesc(scored []model.ScoredAtom) {
	sort.Slice(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})
}
