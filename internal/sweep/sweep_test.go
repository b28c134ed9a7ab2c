package sweep

import (
	"context"
	"math"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/epistoch/seirsweep/internal/engine"
	"github.com/epistoch/seirsweep/internal/model"
)

func point(recovered int64, n int64) model.Point {
	return model.Point{State: model.State{model.Susceptible: n - recovered, model.Recovered: recovered}}
}

// A size of exactly threshold is a fade-out; threshold+1 is an epidemic.
func TestAggregateThresholdBoundary(t *testing.T) {
	const vaccinated, threshold = 100, 10

	atThreshold := Aggregate(0.1, []model.Point{point(vaccinated+threshold, 1000)}, vaccinated, threshold, 1)
	assert.Zero(t, atThreshold.Epidemics)
	assert.Zero(t, atThreshold.Probability)
	assert.True(t, math.IsNaN(atThreshold.MeanSize))

	aboveThreshold := Aggregate(0.1, []model.Point{point(vaccinated+threshold+1, 1000)}, vaccinated, threshold, 1)
	assert.Equal(t, 1, aboveThreshold.Epidemics)
	assert.Equal(t, 1.0, aboveThreshold.Probability)
	assert.Equal(t, float64(threshold+1), aboveThreshold.MeanSize)
}

func TestAggregateMeanOverEpidemicSubsetOnly(t *testing.T) {
	finals := []model.Point{
		point(2, 1000),   // fade-out, size 2
		point(500, 1000), // epidemic, size 500
		point(700, 1000), // epidemic, size 700
	}
	row := Aggregate(0, finals, 0, 10, 3)

	assert.InDelta(t, 2.0/3.0, row.Probability, 1e-12)
	assert.InDelta(t, 600.0, row.MeanSize, 1e-12)
	assert.Zero(t, row.Failures)
}

// An empty epidemic subset must surface as NaN, never as a silent zero.
func TestAggregateEmptySubsetIsNaN(t *testing.T) {
	row := Aggregate(0.9, []model.Point{point(1, 1000), point(3, 1000)}, 0, 10, 2)
	assert.Zero(t, row.Probability)
	assert.True(t, math.IsNaN(row.MeanSize))
}

func TestAggregateCountsFailures(t *testing.T) {
	row := Aggregate(0.5, []model.Point{point(500, 1000)}, 0, 10, 4)
	assert.Equal(t, 3, row.Failures)
	assert.Equal(t, 1.0, row.Probability, "probability is over surviving replications")

	empty := Aggregate(0.5, nil, 0, 10, 4)
	assert.Equal(t, 4, empty.Failures)
	assert.True(t, math.IsNaN(empty.MeanSize))
}

func TestCoverages(t *testing.T) {
	seq := Coverages(0, 1, 0.1)
	require.Len(t, seq, 11)
	assert.Equal(t, 0.0, seq[0])
	assert.Equal(t, 1.0, seq[10])
	for i, p := range seq {
		assert.InDelta(t, 0.1*float64(i), p, 1e-12)
	}

	assert.Nil(t, Coverages(0, 1, 0))
	assert.Nil(t, Coverages(1, 0, 0.1))
	assert.Equal(t, []float64{0.5}, Coverages(0.5, 0.5, 0.1))
}

func TestConfigValidate(t *testing.T) {
	valid := Config{
		Params:       model.Params{Beta: 2, Sigma: 0.5, Gamma: 0.5, N: 500},
		I0:           1,
		Horizon:      100,
		Replications: 10,
		Threshold:    10,
		Coverages:    []float64{0, 0.5, 1},
		Parallelism:  2,
	}
	require.NoError(t, valid.Validate())

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no replications", func(c *Config) { c.Replications = 0 }},
		{"no parallelism", func(c *Config) { c.Parallelism = 0 }},
		{"negative threshold", func(c *Config) { c.Threshold = -1 }},
		{"no coverages", func(c *Config) { c.Coverages = nil }},
		{"coverage above one", func(c *Config) { c.Coverages = []float64{0.5, 1.2} }},
		{"bad params", func(c *Config) { c.Params.Beta = -1 }},
		{"population too small", func(c *Config) { c.Params.N = 1; c.I0 = 1 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := valid
			tc.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

// memStore is an in-memory Checkpointer for pipeline tests.
type memStore struct {
	rows  map[float64]Row
	saved int
}

func newMemStore() *memStore { return &memStore{rows: make(map[float64]Row)} }

func (m *memStore) Lookup(coverage float64) (Row, bool, error) {
	row, ok := m.rows[coverage]
	return row, ok, nil
}

func (m *memStore) Save(row Row) error {
	m.rows[row.Coverage] = row
	m.saved++
	return nil
}

func testConfig() Config {
	return Config{
		Params:       model.Params{Beta: 5, Sigma: 1, Gamma: 1, N: 300},
		I0:           1,
		Horizon:      500,
		Replications: 150,
		Threshold:    10,
		Coverages:    Coverages(0, 1, 0.1),
		Parallelism:  4,
		Seed:         1,
	}
}

func TestPipelineEndToEnd(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping Monte-Carlo study in short mode")
	}

	pipeline, err := New(testConfig(), engine.Direct{}, nil)
	require.NoError(t, err)

	rows, err := pipeline.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 11)

	assert.True(t, sort.SliceIsSorted(rows, func(i, j int) bool { return rows[i].Coverage < rows[j].Coverage }))

	for _, row := range rows {
		assert.GreaterOrEqual(t, row.Probability, 0.0)
		assert.LessOrEqual(t, row.Probability, 1.0)
		assert.Zero(t, row.Failures)
	}

	// R0 = 2.5: unvaccinated introductions grow into epidemics with
	// substantial probability, and full vaccination prevents them entirely.
	assert.Greater(t, rows[0].Probability, 0.3)
	assert.False(t, math.IsNaN(rows[0].MeanSize))
	assert.Zero(t, rows[10].Probability, "no susceptibles at p=1")
	assert.True(t, math.IsNaN(rows[10].MeanSize))

	// Higher coverage never increases outbreak probability beyond Monte-Carlo
	// noise.
	for i := 1; i < len(rows); i++ {
		assert.LessOrEqual(t, rows[i].Probability, rows[i-1].Probability+0.15,
			"probability rose from p=%g to p=%g", rows[i-1].Coverage, rows[i].Coverage)
	}
}

// requireRowsEqual compares rows treating NaN mean sizes as equal, which
// reflect.DeepEqual does not.
func requireRowsEqual(t *testing.T, want, got []Row) {
	t.Helper()
	require.Len(t, got, len(want))
	for i := range want {
		w, g := want[i], got[i]
		if math.IsNaN(w.MeanSize) {
			require.True(t, math.IsNaN(g.MeanSize), "row %d mean size", i)
			w.MeanSize, g.MeanSize = 0, 0
		}
		require.Equal(t, w, g, "row %d", i)
	}
}

func TestPipelineDeterministicAcrossRuns(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping Monte-Carlo study in short mode")
	}

	cfg := testConfig()
	cfg.Coverages = []float64{0, 0.5}
	cfg.Replications = 50

	first, err := New(cfg, engine.Direct{}, nil)
	require.NoError(t, err)
	a, err := first.Run(context.Background())
	require.NoError(t, err)

	second, err := New(cfg, engine.Direct{}, nil)
	require.NoError(t, err)
	b, err := second.Run(context.Background())
	require.NoError(t, err)

	requireRowsEqual(t, a, b)
}

func TestPipelineCheckpointResume(t *testing.T) {
	cfg := testConfig()
	cfg.Coverages = []float64{0.8, 1.0}
	cfg.Replications = 20

	store := newMemStore()
	pipeline, err := New(cfg, engine.Direct{}, store)
	require.NoError(t, err)

	rows, err := pipeline.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, 2, store.saved)

	// A second run restores every level from the store without re-running.
	resumed, err := New(cfg, engine.Direct{}, store)
	require.NoError(t, err)
	again, err := resumed.Run(context.Background())
	require.NoError(t, err)
	requireRowsEqual(t, rows, again)
	assert.Equal(t, 2, store.saved, "restored levels must not be saved again")
}

func TestPipelineRejectsBadConfig(t *testing.T) {
	_, err := New(Config{}, engine.Direct{}, nil)
	require.Error(t, err)

	_, err = New(testConfig(), nil, nil)
	require.Error(t, err)
}
