package epistemic

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pltm/engine/internal/model"
)

func TestSnapshotCachePutGet(t *testing.T) {
	cache, err := OpenSnapshotCache("")
	require.NoError(t, err)
	defer cache.Close()

	snap := model.CalibrationSnapshot{
		Domain:        "dates",
		ComputedAt:    time.Now().Truncate(time.Second),
		TotalClaims:   5,
		AccuracyRatio: 0.8,
		Verdict:       model.CalibrationOverconfident,
	}
	require.NoError(t, cache.Put(snap))

	got, ok, err := cache.Get(context.Background(), "dates")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, snap.TotalClaims, got.TotalClaims)
	require.InDelta(t, snap.AccuracyRatio, got.AccuracyRatio, 1e-9)
	require.Equal(t, snap.Verdict, got.Verdict)
}

func TestSnapshotCacheGetMissing(t *testing.T) {
	cache, err := OpenSnapshotCache("")
	require.NoError(t, err)
	defer cache.Close()

	_, ok, err := cache.Get(context.Background(), "nobody")
	require.NoError(t, err)
	require.False(t, ok)
}
