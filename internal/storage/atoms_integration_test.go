//go:build integration

package storage_test

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pltm/engine/internal/model"
	"github.com/pltm/engine/internal/storage"
	"github.com/pltm/engine/internal/testutil"
)

var testDB *storage.DB

// TestMain boots a real Postgres+pgvector container once for the whole
// package. Only runs under `-tags=integration`.
func TestMain(m *testing.M) {
	tc := testutil.MustStartPostgres()

	code := func() int {
		defer tc.Terminate()

		ctx := context.Background()
		logger := testutil.TestLogger()

		var err error
		testDB, err = tc.NewTestDB(ctx, logger)
		if err != nil {
			fmt.Fprintf(os.Stderr, "atoms_integration_test: failed to create test DB: %v\n", err)
			return 1
		}
		defer testDB.Close(ctx)

		return m.Run()
	}()

	os.Exit(code)
}

func newTestAtom(sourceUser string) model.Atom {
	return model.Atom{
		Subject:        "user",
		Predicate:      "likes",
		Object:         "dark roast coffee",
		AtomType:       "preference",
		Provenance:     model.ProvenanceUserStated,
		Graph:          model.GraphSubstantiated,
		Confidence:     0.8,
		Strength:       0.5,
		AssertionCount: 1,
		SourceUser:     sourceUser,
	}
}

func TestInsertGetRoundTrip(t *testing.T) {
	ctx := t.Context()
	sourceUser := "itest-" + uuid.New().String()[:8]

	stored, err := testDB.Insert(ctx, newTestAtom(sourceUser))
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, stored.ID)

	got, err := testDB.Get(ctx, stored.ID)
	require.NoError(t, err)
	assert.Equal(t, stored.Subject, got.Subject)
	assert.Equal(t, stored.Object, got.Object)
	assert.Equal(t, sourceUser, got.SourceUser)
}

func TestGetMissingReturnsNotFound(t *testing.T) {
	ctx := t.Context()

	_, err := testDB.Get(ctx, uuid.New())
	require.Error(t, err)
	assert.Equal(t, model.NotFound, model.KindOf(err))
}

func TestFindByTripleAndDelete(t *testing.T) {
	ctx := t.Context()
	sourceUser := "itest-" + uuid.New().String()[:8]

	stored, err := testDB.Insert(ctx, newTestAtom(sourceUser))
	require.NoError(t, err)

	found, err := testDB.FindByTriple(ctx, sourceUser, stored.Subject, stored.Predicate, stored.Object)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, stored.ID, found[0].ID)

	require.NoError(t, testDB.Delete(ctx, stored.ID))

	_, err = testDB.Get(ctx, stored.ID)
	require.Error(t, err)
	assert.Equal(t, model.NotFound, model.KindOf(err))
}
