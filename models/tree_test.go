package models

import (
	"math"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"augustus/core"
	"augustus/vectorized"
)

const (
	V = vectorized.Valid
	M = vectorized.Missing
	I = vectorized.Invalid
)

var nan = math.NaN()

// numericTable builds a table of double fields; NaN inputs are MISSING
func numericTable(t *testing.T, inputs map[string][]float64) *core.DataTable {
	t.Helper()
	names := make([]string, 0, len(inputs))
	raw := make(map[string]interface{}, len(inputs))
	for name, values := range inputs {
		names = append(names, name)
		raw[name] = values
	}
	sort.Strings(names)
	decls := make([]core.FieldDeclaration, len(names))
	for i, name := range names {
		decls[i] = core.FieldDeclaration{Name: name, Type: doubleType}
	}
	table, err := core.BuildDataTable(decls, raw, nil, nil)
	require.NoError(t, err)
	return table
}

func masks(col *vectorized.DataColumn) []vectorized.Mask {
	out := make([]vectorized.Mask, col.Len())
	for i := range out {
		out[i] = col.MaskAt(i)
	}
	return out
}

func strPtr(s string) *string     { return &s }
func floatPtr(x float64) *float64 { return &x }

func lessThan(field, value string) core.Predicate {
	return &core.SimplePredicate{Field: field, Operator: "lessThan", Value: value}
}

func greaterOrEqual(field, value string) core.Predicate {
	return &core.SimplePredicate{Field: field, Operator: "greaterOrEqual", Value: value}
}

func scoreTree(t *testing.T, m *TreeModel, table *core.DataTable) core.Score {
	t.Helper()
	score, err := m.CalculateScore(table, core.NewFunctionTable(), core.NopPerformance{})
	require.NoError(t, err)
	return score
}

// letterTree splits on x and then on y; the third root child catches
// rows whose x is missing
func letterTree(strategy MissingValueStrategy) *TreeModel {
	high := &Node{ID: "high", Score: strPtr("H"), DefaultChild: "hn", Predicate: greaterOrEqual("x", "5"), Children: []*Node{
		{ID: "hy", Score: strPtr("B"), Predicate: lessThan("y", "0")},
		{ID: "hn", Score: strPtr("C"), Predicate: greaterOrEqual("y", "0")},
	}}
	root := &Node{ID: "root", Score: strPtr("R"), DefaultChild: "high", Children: []*Node{
		{ID: "low", Score: strPtr("A"), Predicate: lessThan("x", "5")},
		high,
		{ID: "missing", Score: strPtr("M"), Predicate: &core.SimplePredicate{Field: "x", Operator: "isMissing"}},
	}}
	return &TreeModel{
		ModelBase:            core.ModelBase{FunctionName: "classification"},
		MissingValueStrategy: strategy,
		Root:                 root,
	}
}

func TestTreeModelMissingValueStrategy(t *testing.T) {
	inputs := map[string][]float64{
		"x": {1, 7, 7, nan, 7},
		"y": {0, -1, 1, 0, nan},
	}

	tests := []struct {
		name      string
		strategy  MissingValueStrategy
		predicted []string
		masks     []vectorized.Mask
		entities  []string
	}{
		{"None", MissingNone, []string{"A", "B", "C", "M", ""}, []vectorized.Mask{V, V, V, V, I}, []string{"low", "hy", "hn", "missing", ""}},
		{"LastPrediction", LastPrediction, []string{"A", "B", "C", "R", "H"}, []vectorized.Mask{V, V, V, V, V}, []string{"low", "hy", "hn", "root", "high"}},
		{"NullPrediction", NullPrediction, []string{"A", "B", "C", "", ""}, []vectorized.Mask{V, V, V, I, I}, []string{"low", "hy", "hn", "", ""}},
		{"DefaultChild", DefaultChild, []string{"A", "B", "C", "C", "C"}, []vectorized.Mask{V, V, V, V, V}, []string{"low", "hy", "hn", "hn", "hn"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			score := scoreTree(t, letterTree(tt.strategy), numericTable(t, inputs))
			predicted := score[""]
			assert.Equal(t, tt.masks, masks(predicted))
			for i, want := range tt.predicted {
				if tt.masks[i] == V {
					assert.Equal(t, want, predicted.Strings()[i], "row %d", i)
					assert.Equal(t, tt.entities[i], score["entityId"].Strings()[i], "row %d", i)
				}
			}
			assert.Equal(t, tt.masks, masks(score["entityId"]))
			_, hasConfidence := score["confidence"]
			assert.False(t, hasConfidence)
		})
	}
}

func TestTreeModelUnsupportedStrategies(t *testing.T) {
	table := numericTable(t, map[string][]float64{"x": {1}, "y": {1}})
	for _, strategy := range []MissingValueStrategy{WeightedConfidence, AggregateNodes} {
		_, err := letterTree(strategy).CalculateScore(table, core.NewFunctionTable(), core.NopPerformance{})
		require.Error(t, err)
		assert.True(t, core.IsValidationError(err))
	}

	_, err := ParseMissingValueStrategy("guess")
	assert.True(t, core.IsValidationError(err))
	s, err := ParseMissingValueStrategy("defaultChild")
	require.NoError(t, err)
	assert.Equal(t, DefaultChild, s)
	n, err := ParseNoTrueChildStrategy("")
	require.NoError(t, err)
	assert.Equal(t, ReturnNullPrediction, n)
}

func TestTreeModelDefaultChildErrors(t *testing.T) {
	table := numericTable(t, map[string][]float64{"x": {nan}, "y": {0}})
	m := letterTree(DefaultChild)
	m.Root.DefaultChild = "nowhere"
	_, err := m.CalculateScore(table, core.NewFunctionTable(), core.NopPerformance{})
	assert.True(t, core.IsValidationError(err))

	m.Root.DefaultChild = ""
	_, err = m.CalculateScore(table, core.NewFunctionTable(), core.NopPerformance{})
	assert.True(t, core.IsValidationError(err))
}

func TestTreeModelScoreDistributions(t *testing.T) {
	m := &TreeModel{
		ModelBase:            core.ModelBase{FunctionName: "classification"},
		MissingValueStrategy: DefaultChild,
		MissingValuePenalty:  0.5,
		Root: &Node{DefaultChild: "a", Children: []*Node{
			{ID: "a", Predicate: lessThan("x", "5"), ScoreDistributions: []ScoreDistribution{
				{Value: "yes", RecordCount: 3, Confidence: floatPtr(0.75)},
				{Value: "no", RecordCount: 1, Confidence: floatPtr(0.25)},
			}},
			{ID: "b", Predicate: greaterOrEqual("x", "5"), ScoreDistributions: []ScoreDistribution{
				{Value: "no", RecordCount: 4, Confidence: floatPtr(0.9)},
			}},
		}},
	}
	score := scoreTree(t, m, numericTable(t, map[string][]float64{"x": {1, 9, nan}}))

	assert.Equal(t, []string{"yes", "no", "yes"}, score[""].Strings())
	assert.Nil(t, score[""].Mask)
	assert.InDeltaSlice(t, []float64{0.75, 0.9, 0.375}, score["confidence"].Float64s(), 1e-12)
	assert.InDeltaSlice(t, []float64{0.75, 1, 0.75}, score["probability"].Float64s(), 1e-12)
	assert.InDeltaSlice(t, []float64{0.75, 0, 0.75}, score["probability.yes"].Float64s(), 1e-12)
	assert.InDeltaSlice(t, []float64{0.25, 1, 0.25}, score["probability.no"].Float64s(), 1e-12)
	assert.Equal(t, []string{"", "confidence", "entityId", "probability", "probability.no", "probability.yes"}, score.Keys())
}

func TestTreeModelFirstMatchingChildWins(t *testing.T) {
	m := &TreeModel{
		ModelBase: core.ModelBase{FunctionName: "classification"},
		Root: &Node{ID: "root", Score: strPtr("R"), Children: []*Node{
			{ID: "first", Score: strPtr("F"), Predicate: greaterOrEqual("x", "1")},
			{ID: "second", Score: strPtr("S"), Predicate: greaterOrEqual("x", "0")},
		}},
	}
	table := numericTable(t, map[string][]float64{"x": {5, 0.5, 1}})
	for run := 0; run < 3; run++ {
		score := scoreTree(t, m, table)
		assert.Equal(t, []string{"F", "S", "F"}, score[""].Strings(), "run %d", run)
		assert.Equal(t, []string{"first", "second", "first"}, score["entityId"].Strings(), "run %d", run)
	}
}

func TestTreeModelRegression(t *testing.T) {
	m := &TreeModel{
		ModelBase:           core.ModelBase{FunctionName: "regression"},
		NoTrueChildStrategy: ReturnLastPrediction,
		Root: &Node{Score: strPtr("0.5"), Children: []*Node{
			{Score: strPtr("-1"), Predicate: lessThan("x", "5")},
			{Score: strPtr("2.5"), Predicate: &core.SimplePredicate{Field: "x", Operator: "greaterThan", Value: "5"}},
		}},
	}
	table := numericTable(t, map[string][]float64{"x": {1, 5, 9}})
	score := scoreTree(t, m, table)
	assert.Equal(t, []float64{-1, 0.5, 2.5}, score[""].Float64s())
	assert.Equal(t, vectorized.DOUBLE, score[""].FieldType.DataType())

	m.NoTrueChildStrategy = ReturnNullPrediction
	score = scoreTree(t, m, table)
	assert.Equal(t, []vectorized.Mask{V, I, V}, masks(score[""]))

	m.FunctionName = "clustering"
	_, err := m.CalculateScore(table, core.NewFunctionTable(), core.NopPerformance{})
	assert.True(t, core.IsValidationError(err))
}

func TestTreeModelInDocument(t *testing.T) {
	m := letterTree(LastPrediction)
	m.ModelName = "letters"
	m.MiningSchema = []*core.MiningField{{Name: "x"}, {Name: "y"}}
	m.Output = []*core.OutputField{
		{Name: "letter", Feature: "predictedValue"},
		{Name: "node", Feature: "entityId"},
	}
	doc := &core.Document{
		DataDictionary: []core.FieldDeclaration{{Name: "x", Type: doubleType}, {Name: "y", Type: doubleType}},
		Models:         []core.Model{m},
	}
	perf := core.NewPerformanceTable()
	table, err := doc.Prepare(map[string]interface{}{"x": []float64{1, 7}, "y": []float64{0, 3}}, nil, nil)
	require.NoError(t, err)
	require.NoError(t, doc.Calculate(table, nil, perf))

	letter, ok := table.Output.Lookup("letter")
	require.True(t, ok)
	assert.Equal(t, []string{"A", "C"}, letter.Strings())
	node, _ := table.Output.Lookup("node")
	assert.Equal(t, []string{"low", "hn"}, node.Strings())
	assert.True(t, table.Fields.Has("letters.entityId"))

	_, err = perf.Report("time")
	require.NoError(t, err)
	assert.Equal(t, 1, perf.Calls("PMML", `model "letters"`, "TreeModel"))
}
