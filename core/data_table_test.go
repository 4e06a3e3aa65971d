package core

import (
	"bytes"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"augustus/vectorized"
)

var (
	testDouble  = vectorized.NewFieldType(vectorized.DOUBLE, vectorized.CONTINUOUS)
	testInteger = vectorized.NewFieldType(vectorized.INTEGER, vectorized.CONTINUOUS)
	testString  = vectorized.NewFieldType(vectorized.STRING, vectorized.CATEGORICAL)
	testBoolean = vectorized.NewFieldType(vectorized.BOOLEAN, vectorized.CATEGORICAL)
)

// newTestTable builds a table from already typed columns
func newTestTable(t *testing.T, length int, columns map[string]*vectorized.DataColumn) *DataTable {
	t.Helper()
	table := NewDataTable(length)
	for _, name := range sortedNames(columns) {
		require.NoError(t, table.Fields.Set(name, columns[name]))
	}
	return table
}

func sortedNames(columns map[string]*vectorized.DataColumn) []string {
	names := make([]string, 0, len(columns))
	for n := range columns {
		names = append(names, n)
	}
	for i := 1; i < len(names); i++ {
		for j := i; j > 0 && names[j] < names[j-1]; j-- {
			names[j], names[j-1] = names[j-1], names[j]
		}
	}
	return names
}

func doubles(values []float64, mask ...vectorized.Mask) *vectorized.DataColumn {
	if len(mask) == 0 {
		return vectorized.NewDataColumn(testDouble, values, nil)
	}
	return vectorized.NewDataColumn(testDouble, values, mask)
}

func integers(values []int64, mask ...vectorized.Mask) *vectorized.DataColumn {
	if len(mask) == 0 {
		return vectorized.NewDataColumn(testInteger, values, nil)
	}
	return vectorized.NewDataColumn(testInteger, values, mask)
}

func strs(values []string, mask ...vectorized.Mask) *vectorized.DataColumn {
	if len(mask) == 0 {
		return vectorized.NewDataColumn(testString, values, nil)
	}
	return vectorized.NewDataColumn(testString, values, mask)
}

func TestFields(t *testing.T) {
	t.Run("SetRefusesOvershadowing", func(t *testing.T) {
		fields := NewFields(2)
		require.NoError(t, fields.Set("x", doubles([]float64{1, 2})))
		err := fields.Set("x", doubles([]float64{3, 4}))
		require.Error(t, err)
		assert.True(t, IsValidationError(err))
	})

	t.Run("SetChecksLength", func(t *testing.T) {
		fields := NewFields(2)
		assert.Error(t, fields.Set("x", doubles([]float64{1, 2, 3})))
	})

	t.Run("GetUnknownField", func(t *testing.T) {
		_, err := NewFields(0).Get("nope")
		require.Error(t, err)
		assert.True(t, IsValidationError(err))
		assert.Contains(t, err.Error(), "nope")
	})

	t.Run("BindReplaces", func(t *testing.T) {
		fields := NewFields(1)
		require.NoError(t, fields.Bind("x", doubles([]float64{1})))
		require.NoError(t, fields.Bind("x", doubles([]float64{2})))
		col, err := fields.Get("x")
		require.NoError(t, err)
		assert.Equal(t, []float64{2}, col.Float64s())
		assert.Equal(t, []string{"x"}, fields.Names())
	})

	t.Run("ReplaceNeedsExistingName", func(t *testing.T) {
		assert.Error(t, NewFields(1).Replace("x", doubles([]float64{1})))
	})
}

func TestBuildDataTable(t *testing.T) {
	declarations := []FieldDeclaration{
		{Name: "x", Type: testDouble},
		{Name: "color", Type: testString},
		{Name: "absent", Type: testDouble},
	}

	t.Run("IngestsDeclaredFields", func(t *testing.T) {
		table, err := BuildDataTable(declarations, map[string]interface{}{
			"x":     []interface{}{1.5, nil, "abc"},
			"color": []string{"red", "green", "blue"},
			"extra": []int64{1, 2, 3},
		}, nil, nil)
		require.NoError(t, err)
		assert.Equal(t, 3, table.Len())
		assert.Equal(t, []string{"x", "color"}, table.Fields.Names())

		x, err := table.Field("x")
		require.NoError(t, err)
		assert.Equal(t, []vectorized.Mask{vectorized.Valid, vectorized.Missing, vectorized.Invalid}, x.Mask)
		assert.False(t, table.Fields.Has("extra"))
	})

	t.Run("UnequalLengthsAreIngestErrors", func(t *testing.T) {
		_, err := BuildDataTable(declarations, map[string]interface{}{
			"x":     []float64{1, 2},
			"color": []string{"red"},
		}, nil, nil)
		require.Error(t, err)
		assert.True(t, IsDataIngestError(err))
	})

	t.Run("KeepsGivenState", func(t *testing.T) {
		state := NewDataTableState()
		table, err := BuildDataTable(declarations, map[string]interface{}{"x": []float64{1}}, nil, state)
		require.NoError(t, err)
		assert.Same(t, state, table.State)
	})
}

func TestSubTable(t *testing.T) {
	table := newTestTable(t, 4, map[string]*vectorized.DataColumn{
		"x": doubles([]float64{1, 2, 3, 4}, vectorized.Valid, vectorized.Missing, vectorized.Valid, vectorized.Valid),
	})

	t.Run("Selection", func(t *testing.T) {
		sub := table.SubTable([]bool{false, true, true, false})
		assert.Equal(t, 2, sub.Len())
		x, err := sub.Field("x")
		require.NoError(t, err)
		assert.Equal(t, []float64{2, 3}, x.Float64s())
		assert.Equal(t, []vectorized.Mask{vectorized.Missing, vectorized.Valid}, x.Mask)
		assert.Same(t, table.State, sub.State)
	})

	t.Run("ChildFieldsStayInChild", func(t *testing.T) {
		sub := table.SubTable(nil)
		require.NoError(t, sub.Fields.Set("y", doubles([]float64{0, 0, 0, 0})))
		assert.True(t, sub.Fields.Has("x"))
		assert.False(t, table.Fields.Has("y"))
	})

	t.Run("ScopeIsEmpty", func(t *testing.T) {
		scope := table.Scope()
		assert.Equal(t, 4, scope.Len())
		assert.Equal(t, 0, scope.Fields.Count())
		assert.Same(t, table.State, scope.State)
	})
}

func TestLook(t *testing.T) {
	table := newTestTable(t, 2, map[string]*vectorized.DataColumn{
		"x": doubles([]float64{1.5, 0}, vectorized.Valid, vectorized.Invalid),
	})
	var buf bytes.Buffer
	table.Look(&buf, 10, 0)
	out := buf.String()
	assert.Contains(t, out, "1.5")
	assert.Contains(t, out, "INVALID")
}

func TestDataTableState(t *testing.T) {
	extreme := "4.5"
	state := NewDataTableState()
	state.Set("cusum", &StateValue{Number: 2.5})
	state.Set("agg", &StateValue{
		Extreme:  &extreme,
		Multiset: map[string]int64{"a": 2},
		Groups:   map[string]*StateValue{"g": {Numerator: 3, Denominator: 2}},
	})
	state.Set("cusum", &StateValue{Number: 3})

	assert.Equal(t, []string{"cusum", "agg"}, state.Keys())

	data, err := state.Encode()
	require.NoError(t, err)
	decoded, err := DecodeDataTableState(data)
	require.NoError(t, err)
	assert.Equal(t, state.Keys(), decoded.Keys())
	for _, k := range state.Keys() {
		want, _ := state.Get(k)
		got, _ := decoded.Get(k)
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("state %q mismatch (-want +got):\n%s", k, diff)
		}
	}

	t.Run("RejectsUnknownVersion", func(t *testing.T) {
		_, err := DecodeDataTableState([]byte(`{"version":99,"entries":[]}`))
		assert.Error(t, err)
	})

	t.Run("MergeClones", func(t *testing.T) {
		other := NewDataTableState()
		other.Merge(state)
		v, _ := other.Get("agg")
		v.Multiset["a"] = 100
		original, _ := state.Get("agg")
		assert.Equal(t, int64(2), original.Multiset["a"])
	})

	t.Run("Delete", func(t *testing.T) {
		s := NewDataTableState()
		s.Set("a", &StateValue{})
		s.Set("b", &StateValue{})
		s.Delete("a")
		assert.Equal(t, []string{"b"}, s.Keys())
		assert.Equal(t, 1, s.Len())
	})
}
