package search

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMaxOutboxAttempts(t *testing.T) {
	assert.Equal(t, 10, maxOutboxAttempts)
}

func TestPartitionUpsertEntriesAllMissing(t *testing.T) {
	entries := []outboxEntry{
		{ID: uuid.New(), AtomID: uuid.New(), Operation: "upsert"},
		{ID: uuid.New(), AtomID: uuid.New(), Operation: "upsert"},
	}
	ready, readyAtoms, pending := partitionUpsertEntries(entries, nil)
	assert.Empty(t, ready)
	assert.Empty(t, readyAtoms)
	assert.Len(t, pending, 2)
}

func TestPartitionUpsertEntriesAllReady(t *testing.T) {
	a1 := uuid.New()
	a2 := uuid.New()
	entries := []outboxEntry{
		{ID: uuid.New(), AtomID: a1, Operation: "upsert"},
		{ID: uuid.New(), AtomID: a2, Operation: "upsert"},
	}
	atoms := []AtomForIndex{{ID: a1}, {ID: a2}}
	ready, readyAtoms, pending := partitionUpsertEntries(entries, atoms)
	assert.Len(t, ready, 2)
	assert.Len(t, readyAtoms, 2)
	assert.Empty(t, pending)
}

func TestPartitionUpsertEntriesMixed(t *testing.T) {
	a1 := uuid.New()
	missing := uuid.New()
	entries := []outboxEntry{
		{ID: uuid.New(), AtomID: a1, Operation: "upsert"},
		{ID: uuid.New(), AtomID: missing, Operation: "upsert"},
	}
	atoms := []AtomForIndex{{ID: a1}}
	ready, readyAtoms, pending := partitionUpsertEntries(entries, atoms)
	require.Len(t, ready, 1)
	require.Len(t, readyAtoms, 1)
	require.Len(t, pending, 1)
	assert.Equal(t, a1, ready[0].AtomID)
	assert.Equal(t, missing, pending[0].AtomID)
}

func TestPartitionUpsertEntriesEmptyInputs(t *testing.T) {
	ready, readyAtoms, pending := partitionUpsertEntries(nil, nil)
	assert.Empty(t, ready)
	assert.Empty(t, readyAtoms)
	assert.Empty(t, pending)
}

func TestNewOutboxWorker(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(nil, nil))
	w := NewOutboxWorker(nil, nil, nil, logger, 5*time.Second, 50)

	require.NotNil(t, w)
	assert.Nil(t, w.pool)
	assert.Nil(t, w.index)
	assert.NotNil(t, w.logger)
	assert.Equal(t, 5*time.Second, w.pollInterval)
	assert.Equal(t, 50, w.batchSize)
	assert.NotNil(t, w.done)
	assert.NotNil(t, w.drainCh)
	assert.False(t, w.started.Load())
}

func TestOutboxWorkerStartStop(t *testing.T) {
	w := NewOutboxWorker(nil, nil, nil, slog.Default(), 100*time.Millisecond, 10)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w.Start(ctx)
	assert.True(t, w.started.Load())

	// Calling Start again is a no-op.
	w.Start(ctx)
	assert.True(t, w.started.Load())

	drainCtx, drainCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer drainCancel()
	w.Drain(drainCtx)

	select {
	case <-w.done:
	default:
		t.Fatal("done channel should be closed after drain")
	}
}

func TestOutboxWorkerDrainIdempotent(t *testing.T) {
	w := NewOutboxWorker(nil, nil, nil, slog.Default(), 100*time.Millisecond, 10)
	w.Start(context.Background())

	drainCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	w.Drain(drainCtx)

	drainCtx2, cancel2 := context.WithTimeout(context.Background(), time.Second)
	defer cancel2()
	w.Drain(drainCtx2) // must not panic on a second call
}

func TestOutboxWorkerDrainWithoutStart(t *testing.T) {
	w := NewOutboxWorker(nil, nil, nil, slog.Default(), time.Second, 10)

	drainCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	w.Drain(drainCtx) // must not hang or panic when Start was never called
}
