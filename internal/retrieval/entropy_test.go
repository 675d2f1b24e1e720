package retrieval

import (
	"math/rand"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pltm/engine/internal/model"
)

func plainAtom(subject, predicate, object string, accessCount int, lastAccessed time.Time) model.Atom {
	return model.Atom{
		ID:           uuid.New(),
		Subject:      subject,
		Predicate:    predicate,
		Object:       object,
		AccessCount:  accessCount,
		LastAccessed: lastAccessed,
	}
}

func TestRandomInjectionFavorsLeastAccessed(t *testing.T) {
	now := time.Now()
	atoms := []model.Atom{
		plainAtom("a", "p", "o1", 100, now),
		plainAtom("a", "p", "o2", 0, now),
		plainAtom("a", "p", "o3", 50, now),
	}
	out := RandomInjection(atoms, 1, rand.New(rand.NewSource(42)))
	require.Len(t, out, 1)
	assert.Equal(t, 0, out[0].AccessCount)
}

func TestRandomInjectionCapsAtAvailable(t *testing.T) {
	atoms := []model.Atom{plainAtom("a", "p", "o1", 0, time.Now())}
	out := RandomInjection(atoms, 5, nil)
	assert.Len(t, out, 1)
}

func TestAntipodalInjectionExcludesAnchor(t *testing.T) {
	anchor := plainAtom("alice", "likes", "python", 0, time.Now())
	candidates := []model.Atom{
		anchor,
		plainAtom("alice", "likes", "python", 0, time.Now()), // identical text, not the anchor
		plainAtom("bob", "works_at", "acme", 0, time.Now()),
	}
	out := AntipodalInjection(anchor, candidates, 2)
	require.Len(t, out, 2)
	for _, a := range out {
		assert.NotEqual(t, anchor.ID, a.ID)
	}
}

func TestAntipodalInjectionReturnsLeastSimilarFirst(t *testing.T) {
	anchor := plainAtom("alice", "likes", "python", 0, time.Now())
	near := plainAtom("alice", "likes", "python language", 0, time.Now())
	far := plainAtom("bob", "works_at", "acme corp", 0, time.Now())
	out := AntipodalInjection(anchor, []model.Atom{near, far}, 2)
	require.Len(t, out, 2)
	assert.Equal(t, far.ID, out[0].ID)
}

func TestTemporalInjectionMixesOldestAndNewest(t *testing.T) {
	now := time.Now()
	oldest := plainAtom("a", "p", "o1", 0, now.Add(-1000*time.Hour))
	mid := plainAtom("a", "p", "o2", 0, now.Add(-500*time.Hour))
	newest := plainAtom("a", "p", "o3", 0, now)
	out := TemporalInjection([]model.Atom{mid, oldest, newest}, 2, now)
	require.Len(t, out, 2)
	ids := map[uuid.UUID]bool{out[0].ID: true, out[1].ID: true}
	assert.True(t, ids[oldest.ID])
	assert.True(t, ids[newest.ID])
	assert.False(t, ids[mid.ID])
}
