package retrieval

import (
	"math/rand"
	"sort"
	"time"

	"github.com/pltm/engine/internal/model"
)

// RandomInjection samples n atoms biased toward the least-accessed domains:
// candidates are sorted by ascending access_count and the front slice is
// shuffled before truncation, so the operator favors rarely touched atoms
// without being fully deterministic.
func RandomInjection(candidates []model.Atom, n int, rng *rand.Rand) []model.Atom {
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}
	pool := make([]model.Atom, len(candidates))
	copy(pool, candidates)

	sort.Slice(pool, func(i, j int) bool {
		return pool[i].AccessCount < pool[j].AccessCount
	})

	window := len(pool)
	if n*3 < window {
		window = n * 3
	}
	rng.Shuffle(window, func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })

	if n > len(pool) {
		n = len(pool)
	}
	return pool[:n]
}

// AntipodalInjection returns the n atoms least similar to anchor, the
// opposite of what attention retrieval would ever surface.
func AntipodalInjection(anchor model.Atom, candidates []model.Atom, n int) []model.Atom {
	type scored struct {
		atom model.Atom
		sim  float64
	}
	scoredAtoms := make([]scored, 0, len(candidates))
	for _, c := range candidates {
		if c.ID == anchor.ID {
			continue
		}
		scoredAtoms = append(scoredAtoms, scored{atom: c, sim: AtomSimilarity(anchor, c)})
	}
	sort.Slice(scoredAtoms, func(i, j int) bool {
		return scoredAtoms[i].sim < scoredAtoms[j].sim
	})

	if n > len(scoredAtoms) {
		n = len(scoredAtoms)
	}
	out := make([]model.Atom, n)
	for i := 0; i < n; i++ {
		out[i] = scoredAtoms[i].atom
	}
	return out
}

// TemporalInjection returns a mix of the oldest and newest atoms by
// last_accessed, biasing the set away from mid-recency clustering. n is
// split evenly between the oldest and newest halves.
func TemporalInjection(candidates []model.Atom, n int, now time.Time) []model.Atom {
	pool := make([]model.Atom, len(candidates))
	copy(pool, candidates)
	sort.Slice(pool, func(i, j int) bool {
		return pool[i].LastAccessed.Before(pool[j].LastAccessed)
	})

	if n > len(pool) {
		n = len(pool)
	}
	oldestN := (n + 1) / 2
	newestN := n - oldestN

	out := make([]model.Atom, 0, n)
	out = append(out, pool[:oldestN]...)
	if newestN > 0 {
		out = append(out, pool[len(pool)-newestN:]...)
	}
	return out
}
