package models

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"augustus/core"
	"augustus/vectorized"
)

func scoreClusters(t *testing.T, m *ClusteringModel, table *core.DataTable) core.Score {
	t.Helper()
	score, err := m.CalculateScore(table, core.NewFunctionTable(), core.NopPerformance{})
	require.NoError(t, err)
	return score
}

func twoCenters(metric Metric) *ClusteringModel {
	return &ClusteringModel{
		ModelBase:       core.ModelBase{FunctionName: "clustering"},
		ModelClass:      "centerBased",
		Kind:            Distance,
		Metric:          metric,
		CompareFunction: "absDiff",
		Fields:          []*ClusteringField{{Field: "x"}, {Field: "y"}, {Field: "label", NotCenterField: true}},
		Clusters: []*Cluster{
			{ID: "near", Name: "Near", Center: []string{"0", "0"}},
			{ID: "far", Name: "Far", Center: []string{"10", "10"}},
		},
	}
}

func TestClusteringModelCenterBased(t *testing.T) {
	table := numericTable(t, map[string][]float64{
		"x": {0, 10, 4, nan},
		"y": {0, 10, 5, 1},
	})

	t.Run("SquaredEuclidean", func(t *testing.T) {
		score := scoreClusters(t, twoCenters(SquaredEuclidean{}), table)
		assert.Equal(t, []string{"near", "far", "near", "near"}, score[""].Strings())
		assert.Equal(t, []string{"Near", "Far", "Near", "Near"}, score["predictedDisplayValue"].Strings())
		assert.Equal(t, []int64{1, 2, 1, 1}, score["clusterId"].Int64s())
		assert.Equal(t, []int64{1, 2, 1, 1}, score["entityId"].Int64s())
		assert.Equal(t, []float64{0, 0, 41, 1}, score["affinity"].Float64s())
		assert.Equal(t, []float64{0, 200, 41, 1}, score["all.near"].Float64s())
		assert.Equal(t, []float64{200, 0, 61, 81}, score["all.far"].Float64s())
		assert.Nil(t, score[""].Mask)
	})

	t.Run("Euclidean", func(t *testing.T) {
		score := scoreClusters(t, twoCenters(Euclidean{}), table)
		assert.InDeltaSlice(t, []float64{0, 0, math.Sqrt(41), 1}, score["clusterAffinity"].Float64s(), 1e-12)
	})

	t.Run("MissingValueWeights", func(t *testing.T) {
		m := twoCenters(SquaredEuclidean{})
		m.MissingValueWeights = []float64{1, 1}
		score := scoreClusters(t, m, table)
		assert.Equal(t, []float64{0, 200, 41, 2}, score["all.near"].Float64s())
		assert.Equal(t, []float64{200, 0, 61, 162}, score["all.far"].Float64s())

		m.MissingValueWeights = []float64{1}
		_, err := m.CalculateScore(table, core.NewFunctionTable(), core.NopPerformance{})
		assert.True(t, core.IsValidationError(err))
	})

	t.Run("ClusterIdsDefaultToIndex", func(t *testing.T) {
		m := twoCenters(CityBlock{})
		m.Clusters[0].ID = ""
		m.Clusters[1].ID = ""
		score := scoreClusters(t, m, table)
		assert.Equal(t, []string{"1", "2", "1", "1"}, score[""].Strings())
		assert.Equal(t, []float64{0, 20, 9, 1}, score["all.1"].Float64s())
	})

	t.Run("CenterLength", func(t *testing.T) {
		m := twoCenters(CityBlock{})
		m.Clusters[1].Center = []string{"1"}
		_, err := m.CalculateScore(table, core.NewFunctionTable(), core.NopPerformance{})
		assert.True(t, core.IsValidationError(err))
	})

	t.Run("NegativeWeight", func(t *testing.T) {
		m := twoCenters(CityBlock{})
		m.Fields[0].FieldWeight = floatPtr(-1)
		_, err := m.CalculateScore(table, core.NewFunctionTable(), core.NopPerformance{})
		assert.True(t, core.IsValidationError(err))
	})
}

func TestClusteringModelInvalidInput(t *testing.T) {
	decls := []core.FieldDeclaration{{Name: "x", Type: doubleType}, {Name: "y", Type: doubleType}}
	table, err := core.BuildDataTable(decls,
		map[string]interface{}{"x": []float64{0, 10}, "y": []float64{0, 10}},
		map[string][]vectorized.Mask{"y": {V, I}}, nil)
	require.NoError(t, err)
	score := scoreClusters(t, twoCenters(SquaredEuclidean{}), table)
	assert.Equal(t, []vectorized.Mask{V, I}, masks(score[""]))
	assert.Equal(t, []vectorized.Mask{V, I}, masks(score["affinity"]))
}

func TestClusteringModelStringField(t *testing.T) {
	decls := []core.FieldDeclaration{
		{Name: "x", Type: categoricalType},
		{Name: "y", Type: doubleType},
	}
	table, err := core.BuildDataTable(decls, map[string]interface{}{"x": []string{"a"}, "y": []float64{1}}, nil, nil)
	require.NoError(t, err)
	_, err = twoCenters(SquaredEuclidean{}).CalculateScore(table, core.NewFunctionTable(), core.NopPerformance{})
	assert.True(t, core.IsValidationError(err))
}

func TestClusteringModelSimilarity(t *testing.T) {
	table := numericTable(t, map[string][]float64{
		"a": {1, 0},
		"b": {1, 0},
		"c": {0, 1},
	})
	model := func(kind ComparisonKind, metric Metric) *ClusteringModel {
		return &ClusteringModel{
			ModelBase: core.ModelBase{FunctionName: "clustering"},
			Kind:      kind,
			Metric:    metric,
			Fields:    []*ClusteringField{{Field: "a"}, {Field: "b"}, {Field: "c"}},
			Clusters: []*Cluster{
				{ID: "k1", Center: []string{"1", "1", "0"}},
				{ID: "k2", Center: []string{"0", "1", "1"}},
			},
		}
	}

	score := scoreClusters(t, model(Similarity, Jaccard{}), table)
	assert.Equal(t, []string{"k1", "k2"}, score[""].Strings())
	assert.InDeltaSlice(t, []float64{1, 0}, score["all.k1"].Float64s(), 1e-12)
	assert.InDeltaSlice(t, []float64{1.0 / 3, 0.5}, score["all.k2"].Float64s(), 1e-12)

	// the same values read as distances pick the other cluster
	score = scoreClusters(t, model(Distance, Jaccard{}), table)
	assert.Equal(t, []string{"k2", "k1"}, score[""].Strings())

	score = scoreClusters(t, model(Similarity, SimpleMatching{}), table)
	assert.InDeltaSlice(t, []float64{1, 0}, score["all.k1"].Float64s(), 1e-12)

	score = scoreClusters(t, model(Similarity, Tanimoto{}), table)
	assert.InDeltaSlice(t, []float64{0.2, 0.5}, score["all.k2"].Float64s(), 1e-12)

	general := BinarySimilarity{C11: 1, D11: 1, D10: 1, D01: 1}
	score = scoreClusters(t, model(Similarity, general), table)
	assert.InDeltaSlice(t, []float64{1.0 / 3, 0.5}, score["all.k2"].Float64s(), 1e-12)

	_, err := ParseComparisonKind("closeness")
	assert.True(t, core.IsValidationError(err))
}

func TestCompareFunctions(t *testing.T) {
	table := numericTable(t, map[string][]float64{"x": {2, 4}})
	single := func(f *ClusteringField, center string) *ClusteringModel {
		return &ClusteringModel{
			ModelBase: core.ModelBase{FunctionName: "clustering"},
			Metric:    CityBlock{},
			Fields:    []*ClusteringField{f},
			Clusters:  []*Cluster{{ID: "c", Center: []string{center}}},
		}
	}

	score := scoreClusters(t, single(&ClusteringField{Field: "x", CompareFunction: "gaussSim", SimilarityScale: floatPtr(2)}, "2"), table)
	assert.InDeltaSlice(t, []float64{1, 0.5}, score["affinity"].Float64s(), 1e-12)

	score = scoreClusters(t, single(&ClusteringField{Field: "x", CompareFunction: "delta"}, "2"), table)
	assert.Equal(t, []float64{0, 1}, score["affinity"].Float64s())

	score = scoreClusters(t, single(&ClusteringField{Field: "x", CompareFunction: "equal"}, "2"), table)
	assert.Equal(t, []float64{1, 0}, score["affinity"].Float64s())

	score = scoreClusters(t, single(&ClusteringField{Field: "x", FieldWeight: floatPtr(3)}, "1"), table)
	assert.Equal(t, []float64{3, 9}, score["affinity"].Float64s())

	_, err := single(&ClusteringField{Field: "x", CompareFunction: "gaussSim"}, "2").CalculateScore(table, core.NewFunctionTable(), core.NopPerformance{})
	assert.True(t, core.IsValidationError(err))

	_, err = single(&ClusteringField{Field: "x", CompareFunction: "table"}, "2").CalculateScore(table, core.NewFunctionTable(), core.NopPerformance{})
	assert.True(t, core.IsValidationError(err), "table needs integer data")

	t.Run("Table", func(t *testing.T) {
		integers := vectorized.NewFieldType(vectorized.INTEGER, vectorized.CONTINUOUS)
		table, err := core.BuildDataTable([]core.FieldDeclaration{{Name: "k", Type: integers}},
			map[string]interface{}{"k": []int64{0, 1, 2, 5}}, nil, nil)
		require.NoError(t, err)
		f := &ClusteringField{Field: "k", CompareFunction: "table", Comparisons: [][]float64{
			{0, 0.5, 1},
			{0.5, 0, 0.7},
			{1, 0.7, 0},
		}}
		score := scoreClusters(t, single(f, "1"), table)
		assert.Equal(t, []vectorized.Mask{V, V, V, I}, masks(score["affinity"]))
		assert.Equal(t, []float64{0.5, 0, 0.7}, score["affinity"].Float64s()[:3])

		_, err = single(f, "7").CalculateScore(table, core.NewFunctionTable(), core.NopPerformance{})
		assert.True(t, core.IsValidationError(err))
	})
}

func TestClusteringModelDistributionBased(t *testing.T) {
	table := numericTable(t, map[string][]float64{"x": {3}, "y": {4}})
	model := func(metric Metric, covariance [][]float64) *ClusteringModel {
		return &ClusteringModel{
			ModelBase:  core.ModelBase{FunctionName: "clustering"},
			ModelClass: "distributionBased",
			Metric:     metric,
			Fields:     []*ClusteringField{{Field: "x"}, {Field: "y"}},
			Clusters:   []*Cluster{{ID: "origin", Center: []string{"0", "0"}, Covariances: covariance}},
		}
	}

	score := scoreClusters(t, model(SquaredEuclidean{}, [][]float64{{1, 0}, {0, 1}}), table)
	assert.InDelta(t, 25, score["affinity"].Float64s()[0], 1e-12)

	score = scoreClusters(t, model(SquaredEuclidean{}, [][]float64{{2, 0}, {0, 2}}), table)
	assert.InDelta(t, 12.5, score["affinity"].Float64s()[0], 1e-12)

	score = scoreClusters(t, model(Euclidean{}, [][]float64{{2, 0}, {0, 2}}), table)
	assert.InDelta(t, math.Sqrt(12.5), score["affinity"].Float64s()[0], 1e-12)

	_, err := model(Chebychev{}, [][]float64{{1, 0}, {0, 1}}).CalculateScore(table, core.NewFunctionTable(), core.NopPerformance{})
	assert.True(t, core.IsValidationError(err))

	_, err = model(SquaredEuclidean{}, [][]float64{{1, 0}}).CalculateScore(table, core.NewFunctionTable(), core.NopPerformance{})
	assert.True(t, core.IsValidationError(err))
}

func TestMetrics(t *testing.T) {
	t.Run("Chebychev", func(t *testing.T) {
		state, err := Chebychev{}.Initialize(2, 2, false)
		require.NoError(t, err)
		Chebychev{}.Accumulate(state, []float64{1, 3}, 2, false)
		Chebychev{}.Accumulate(state, []float64{4, 1}, 1, false)
		assert.Equal(t, []float64{4, 6}, Chebychev{}.Finalize(state, nil, false, nil))
	})

	t.Run("Minkowski", func(t *testing.T) {
		metric := Minkowski{P: 3}
		state, err := metric.Initialize(2, 2, false)
		require.NoError(t, err)
		metric.Accumulate(state, []float64{1, 2}, 1, false)
		metric.Accumulate(state, []float64{2, -2}, 1, false)
		assert.InDeltaSlice(t, []float64{math.Cbrt(9), math.Cbrt(16)}, metric.Finalize(state, nil, false, nil), 1e-12)

		_, err = Minkowski{}.Initialize(1, 1, false)
		assert.True(t, core.IsValidationError(err))
	})

	t.Run("AdjustM", func(t *testing.T) {
		state, err := CityBlock{}.Initialize(2, 1, false)
		require.NoError(t, err)
		CityBlock{}.Accumulate(state, []float64{-1, 2}, 1, false)
		assert.Equal(t, []float64{2, 2}, CityBlock{}.Finalize(state, []float64{2, 1}, false, nil))
	})

	t.Run("Projection", func(t *testing.T) {
		state, err := SquaredEuclidean{}.Initialize(1, 2, true)
		require.NoError(t, err)
		SquaredEuclidean{}.Accumulate(state, []float64{1}, 1, true)
		SquaredEuclidean{}.Accumulate(state, []float64{0}, 1, true)
		// the unit displacement along x sees only the top-left variance
		covariance := mat.NewDense(2, 2, []float64{4, 0, 0, 9})
		assert.InDeltaSlice(t, []float64{0.25}, SquaredEuclidean{}.Finalize(state, nil, true, covariance), 1e-12)
	})
}
