package retrieval

import (
	"time"

	"github.com/google/uuid"

	"github.com/pltm/engine/internal/model"
)

// Attention scores every candidate under weights and returns the top limit
// atoms sorted by descending score. A zero-value weights uses
// model.DefaultAttentionWeights.
func Attention(candidates []Candidate, weights model.AttentionWeights, limit int, now time.Time) []model.ScoredAtom {
	if weights == (model.AttentionWeights{}) {
		weights = model.DefaultAttentionWeights()
	}

	scored := make([]model.ScoredAtom, 0, len(candidates))
	for _, c := range candidates {
		scored = append(scored, score(c, weights, now))
	}
	sortByScoreDesc(scored)

	if limit > 0 && len(scored) > limit {
		scored = scored[:limit]
	}
	return scored
}

// MultiHead runs Attention once per head and merges the results by keeping,
// for each atom ID, the highest score seen across all heads. The merged set
// is re-sorted and truncated to limit.
func MultiHead(candidates []Candidate, heads []model.AttentionWeights, limit int, now time.Time) []model.ScoredAtom {
	best := make(map[uuid.UUID]model.ScoredAtom)

	for _, w := range heads {
		for _, s := range Attention(candidates, w, 0, now) {
			if existing, ok := best[s.Atom.ID]; !ok || s.Score > existing.Score {
				best[s.Atom.ID] = s
			}
		}
	}

	merged := make([]model.ScoredAtom, 0, len(best))
	for _, s := range best {
		merged = append(merged, s)
	}
	sortByScoreDesc(merged)

	if limit > 0 && len(merged) > limit {
		merged = merged[:limit]
	}
	return merged
}
