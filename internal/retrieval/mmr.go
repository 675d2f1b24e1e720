package retrieval

import (
	"math"
	"time"

	"github.com/pltm/engine/internal/model"
)

const (
	// DefaultLambda trades relevance (1.0) for diversity (0.0).
	DefaultLambda = 0.6
	// DefaultMinDissimilarity is the minimum pairwise dissimilarity enforced
	// between selected atoms.
	DefaultMinDissimilarity = 0.25
)

// AtomSimilarity returns the similarity of two atoms: cosine similarity of
// their embeddings when both are present, otherwise token overlap over
// their triple text.
func AtomSimilarity(a, b model.Atom) float64 {
	if a.Embedding != nil && b.Embedding != nil {
		return CosineSimilarity(a.Embedding.Slice(), b.Embedding.Slice())
	}
	return TokenOverlapRelevance(a.Subject+" "+a.Predicate+" "+a.Object, b)
}

// MMR greedily selects up to limit candidates maximizing
// lambda*relevance - (1-lambda)*max(sim(a,s) for s in selected), skipping
// any candidate whose minimum dissimilarity to the selected set falls below
// minDissim. candidates should be an over-sampled pool (Service.MMRRetrieve
// passes the same candidate pool Attention scores: the vector index's
// over-fetched hits, or up to 4*limit full-text matches).
//
// A zero lambda or minDissim argument uses the documented defaults
// (0.6, 0.25).
func MMR(candidates []Candidate, lambda, minDissim float64, limit int, now time.Time) []model.ScoredAtom {
	if lambda == 0 {
		lambda = DefaultLambda
	}
	if minDissim == 0 {
		minDissim = DefaultMinDissimilarity
	}

	pool := make([]model.ScoredAtom, 0, len(candidates))
	for _, c := range candidates {
		pool = append(pool, score(c, model.DefaultAttentionWeights(), now))
	}
	sortByScoreDesc(pool)

	var selected []model.ScoredAtom

	for len(selected) < limit && len(pool) > 0 {
		bestIdx := -1
		bestMMR := math.Inf(-1)

		for i, cand := range pool {
			maxSim := 0.0
			minDissimToSelected := 1.0
			for _, s := range selected {
				sim := AtomSimilarity(cand.Atom, s.Atom)
				if sim > maxSim {
					maxSim = sim
				}
				if 1-sim < minDissimToSelected {
					minDissimToSelected = 1 - sim
				}
			}
			if len(selected) > 0 && minDissimToSelected < minDissim {
				continue
			}
			mmrScore := lambda*cand.Relevance - (1-lambda)*maxSim
			if mmrScore > bestMMR {
				bestMMR = mmrScore
				bestIdx = i
			}
		}

		if bestIdx == -1 {
			break
		}
		selected = append(selected, pool[bestIdx])
		pool = append(pool[:bestIdx], pool[bestIdx+1:]...)
	}

	return selected
}
