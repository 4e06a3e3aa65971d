package models

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"augustus/core"
	"augustus/vectorized"
)

func TestGaussianDistribution(t *testing.T) {
	g := GaussianDistribution{Mean: 550.2, Variance: 48.2}
	pdf := g.PDF([]float64{550.0})
	assert.InDelta(t, 0.05743893, pdf[0], 1e-8)
	assert.InDelta(t, math.Log(pdf[0]), g.LogPDF([]float64{550.0})[0], 1e-12)

	cdf := g.CDF([]float64{550.2, math.Inf(1), math.Inf(-1)})
	assert.InDeltaSlice(t, []float64{0.5, 1, 0}, cdf, 1e-12)

	// one standard deviation either side of the mean
	standard := GaussianDistribution{Mean: 0, Variance: 1}
	assert.InDelta(t, 0.682689492, standard.CDF([]float64{1})[0]-standard.CDF([]float64{-1})[0], 1e-9)
}

func TestPoissonDistribution(t *testing.T) {
	p := PoissonDistribution{Mean: 3}
	assert.InDelta(t, 0.22404181, p.PDF([]float64{2})[0], 1e-8)
	assert.InDelta(t, math.Log(0.22404181), p.LogPDF([]float64{2})[0], 1e-7)
	assert.InDelta(t, 0.42319008, p.CDF([]float64{2})[0], 1e-8)
}

func baselineTable(t *testing.T, values []float64) *core.DataTable {
	return numericTable(t, map[string][]float64{"x": values})
}

func TestBaselineModelZValue(t *testing.T) {
	m := &BaselineModel{
		ModelBase: core.ModelBase{FunctionName: "regression"},
		TestDistributions: TestDistributions{
			Field:         "x",
			TestStatistic: "zValue",
			Baseline:      GaussianDistribution{Mean: 10, Variance: 4},
		},
	}
	score, err := m.CalculateScore(baselineTable(t, []float64{10, 14, nan}), core.NewFunctionTable(), core.NopPerformance{})
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 2}, score[""].Float64s()[:2])
	assert.Equal(t, []vectorized.Mask{V, V, M}, masks(score[""]))

	m.TestDistributions.Baseline = GaussianDistribution{Mean: 10}
	_, err = m.CalculateScore(baselineTable(t, []float64{1}), core.NewFunctionTable(), core.NopPerformance{})
	assert.True(t, core.IsValidationError(err))

	m.TestDistributions.Baseline = PoissonDistribution{Mean: 10}
	_, err = m.CalculateScore(baselineTable(t, []float64{1}), core.NewFunctionTable(), core.NopPerformance{})
	assert.True(t, core.IsValidationError(err))

	m.TestDistributions.TestStatistic = "chiSquareDistribution"
	_, err = m.CalculateScore(baselineTable(t, []float64{1}), core.NewFunctionTable(), core.NopPerformance{})
	assert.True(t, core.IsValidationError(err))
}

func cusumModel(stateID string) *BaselineModel {
	return &BaselineModel{
		ModelBase: core.ModelBase{FunctionName: "regression"},
		StateID:   stateID,
		TestDistributions: TestDistributions{
			Field:         "x",
			TestStatistic: "CUSUM",
			ResetValue:    0,
			Baseline:      GaussianDistribution{Mean: 0, Variance: 1},
			Alternate:     GaussianDistribution{Mean: 1, Variance: 1},
		},
	}
}

func TestBaselineModelCUSUM(t *testing.T) {
	// with unit variances the log likelihood ratio is x - 0.5
	table := baselineTable(t, []float64{1, 1, -3, nan, 2})
	perf := core.NewPerformanceTable()
	perf.Begin("test")
	score, err := cusumModel("").CalculateScore(table, core.NewFunctionTable(), perf)
	perf.End("test")
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{0.5, 1, 0, 0, 1.5}, score[""].Float64s(), 1e-12)
	assert.Nil(t, score[""].Mask)
	assert.Equal(t, 1, perf.Calls("test", "BaselineModel CUSUM", "fill CUSUM"))
	assert.Equal(t, 0, table.State.Len())

	t.Run("ResetValue", func(t *testing.T) {
		m := cusumModel("")
		m.TestDistributions.ResetValue = 0.75
		score, err := m.CalculateScore(baselineTable(t, []float64{1, -3}), core.NewFunctionTable(), core.NopPerformance{})
		require.NoError(t, err)
		assert.InDeltaSlice(t, []float64{0.75, 0.75}, score[""].Float64s(), 1e-12)
	})

	t.Run("StateContinues", func(t *testing.T) {
		state := core.NewDataTableState()
		m := cusumModel("alarm")
		first, err := core.BuildDataTable([]core.FieldDeclaration{{Name: "x", Type: doubleType}},
			map[string]interface{}{"x": []float64{1, 2}}, nil, state)
		require.NoError(t, err)
		score, err := m.CalculateScore(first, core.NewFunctionTable(), core.NopPerformance{})
		require.NoError(t, err)
		assert.InDeltaSlice(t, []float64{0.5, 2}, score[""].Float64s(), 1e-12)

		saved, ok := state.Get("alarm")
		require.True(t, ok)
		assert.InDelta(t, 2, saved.Number, 1e-12)

		second, err := core.BuildDataTable([]core.FieldDeclaration{{Name: "x", Type: doubleType}},
			map[string]interface{}{"x": []float64{1}}, nil, state)
		require.NoError(t, err)
		score, err = m.CalculateScore(second, core.NewFunctionTable(), core.NopPerformance{})
		require.NoError(t, err)
		assert.InDeltaSlice(t, []float64{2.5}, score[""].Float64s(), 1e-12)
	})

	t.Run("PoissonRatio", func(t *testing.T) {
		m := cusumModel("")
		m.TestDistributions.Baseline = PoissonDistribution{Mean: 2}
		m.TestDistributions.Alternate = PoissonDistribution{Mean: 4}
		score, err := m.CalculateScore(baselineTable(t, []float64{3}), core.NewFunctionTable(), core.NopPerformance{})
		require.NoError(t, err)
		// 3 log 2 - 2
		assert.InDelta(t, 3*math.Ln2-2, score[""].Float64s()[0], 1e-12)
	})

	t.Run("NeedsAlternate", func(t *testing.T) {
		m := cusumModel("")
		m.TestDistributions.Alternate = nil
		_, err := m.CalculateScore(table, core.NewFunctionTable(), core.NopPerformance{})
		assert.True(t, core.IsValidationError(err))
	})

	t.Run("StringField", func(t *testing.T) {
		strings, err := core.BuildDataTable([]core.FieldDeclaration{{Name: "x", Type: categoricalType}},
			map[string]interface{}{"x": []string{"a"}}, nil, nil)
		require.NoError(t, err)
		_, err = cusumModel("").CalculateScore(strings, core.NewFunctionTable(), core.NopPerformance{})
		assert.True(t, core.IsValidationError(err))
	})
}
