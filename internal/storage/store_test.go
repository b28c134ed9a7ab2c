package storage

import (
	"database/sql"
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/epistoch/seirsweep/internal/sweep"
)

func mustOpen(t *testing.T) *sql.DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "checkpoint.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestOpenMigratesIdempotently(t *testing.T) {
	path := filepath.Join(t.TempDir(), "checkpoint.db")

	db, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	// Reopening an already-migrated database must be a no-op.
	db, err = Open(path)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	_, err = Open("")
	assert.Error(t, err)
}

func TestSaveAndLookup(t *testing.T) {
	store, err := New(mustOpen(t), "sweep-a")
	require.NoError(t, err)

	row := sweep.Row{Coverage: 0.3, Probability: 0.41, MeanSize: 120000.5, Epidemics: 410, Failures: 3, Replications: 1000}
	require.NoError(t, store.Save(row))

	got, found, err := store.Lookup(0.3)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, row, got)

	_, found, err = store.Lookup(0.4)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestSaveUpserts(t *testing.T) {
	store, err := New(mustOpen(t), "sweep-a")
	require.NoError(t, err)

	row := sweep.Row{Coverage: 0.5, Probability: 0.2, MeanSize: 10, Replications: 100}
	require.NoError(t, store.Save(row))
	row.Probability = 0.25
	require.NoError(t, store.Save(row))

	got, found, err := store.Lookup(0.5)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 0.25, got.Probability)
}

// NaN mean sizes round-trip through a NULL column.
func TestNaNMeanSizeRoundTrip(t *testing.T) {
	store, err := New(mustOpen(t), "sweep-a")
	require.NoError(t, err)

	require.NoError(t, store.Save(sweep.Row{Coverage: 1, Probability: 0, MeanSize: math.NaN(), Replications: 1000}))

	got, found, err := store.Lookup(1)
	require.NoError(t, err)
	require.True(t, found)
	assert.True(t, math.IsNaN(got.MeanSize))
}

func TestRowsOrderedByCoverage(t *testing.T) {
	db := mustOpen(t)
	store, err := New(db, "sweep-a")
	require.NoError(t, err)

	for _, coverage := range []float64{0.9, 0.1, 0.5} {
		require.NoError(t, store.Save(sweep.Row{Coverage: coverage, MeanSize: 1, Replications: 10}))
	}

	// Rows from other sweeps are invisible.
	other, err := New(db, "sweep-b")
	require.NoError(t, err)
	require.NoError(t, other.Save(sweep.Row{Coverage: 0.2, MeanSize: 1, Replications: 10}))

	rows, err := store.Rows()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []float64{0.1, 0.5, 0.9}, []float64{rows[0].Coverage, rows[1].Coverage, rows[2].Coverage})
}

func TestNewValidation(t *testing.T) {
	_, err := New(nil, "sweep-a")
	assert.Error(t, err)
	_, err = New(mustOpen(t), "")
	assert.Error(t, err)
}
