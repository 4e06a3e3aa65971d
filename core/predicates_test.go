package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"augustus/vectorized"
)

func predicate(t *testing.T, p Predicate, table *DataTable) *PredicateResult {
	t.Helper()
	result, err := p.Evaluate(table, NewFunctionTable(), NopPerformance{})
	require.NoError(t, err)
	return result
}

// state renders each row as "T", "F" or "?"
func state(r *PredicateResult) string {
	out := make([]byte, len(r.Selection))
	for i := range out {
		switch {
		case r.Unknowns[i]:
			out[i] = '?'
		case r.Selection[i]:
			out[i] = 'T'
		default:
			out[i] = 'F'
		}
	}
	return string(out)
}

func TestSimplePredicate(t *testing.T) {
	table := newTestTable(t, 4, map[string]*vectorized.DataColumn{
		"x":     doubles([]float64{1, 5, 0, 9}, V, V, M, I),
		"color": strs([]string{"red", "blue", "red", "green"}),
	})

	t.Run("Ordering", func(t *testing.T) {
		r := predicate(t, &SimplePredicate{Field: "x", Operator: "lessThan", Value: "5"}, table)
		assert.Equal(t, "TF??", state(r))
		assert.True(t, r.EncounteredUnknowns)
		assert.True(t, r.IsFalse(1))
		assert.False(t, r.IsFalse(2))
	})

	t.Run("Equality", func(t *testing.T) {
		r := predicate(t, &SimplePredicate{Field: "color", Operator: "equal", Value: "red"}, table)
		assert.Equal(t, "TFTF", state(r))
		assert.False(t, r.EncounteredUnknowns)
	})

	t.Run("IsMissingIsAlwaysKnown", func(t *testing.T) {
		r := predicate(t, &SimplePredicate{Field: "x", Operator: "isMissing"}, table)
		assert.Equal(t, "FFTF", state(r))
		r = predicate(t, &SimplePredicate{Field: "x", Operator: "isNotMissing"}, table)
		assert.Equal(t, "TTFT", state(r))
	})

	t.Run("CategoricalCannotBeOrdered", func(t *testing.T) {
		_, err := (&SimplePredicate{Field: "color", Operator: "greaterThan", Value: "red"}).Evaluate(table, NewFunctionTable(), NopPerformance{})
		require.Error(t, err)
		assert.True(t, IsValidationError(err))
	})

	t.Run("UnknownOperator", func(t *testing.T) {
		_, err := (&SimplePredicate{Field: "x", Operator: "approximately", Value: "1"}).Evaluate(table, NewFunctionTable(), NopPerformance{})
		assert.True(t, IsValidationError(err))
	})

	t.Run("BadValue", func(t *testing.T) {
		_, err := (&SimplePredicate{Field: "x", Operator: "equal", Value: "abc"}).Evaluate(table, NewFunctionTable(), NopPerformance{})
		assert.True(t, IsValidationError(err))
	})
}

func TestSimpleSetPredicate(t *testing.T) {
	table := newTestTable(t, 4, map[string]*vectorized.DataColumn{
		"color": strs([]string{"red", "blue", "", "green"}, V, V, M, V),
	})
	r := predicate(t, &SimpleSetPredicate{Field: "color", BooleanOperator: "isIn", Values: []string{"red", "green"}}, table)
	assert.Equal(t, "TF?T", state(r))
	r = predicate(t, &SimpleSetPredicate{Field: "color", BooleanOperator: "isNotIn", Values: []string{"red", "green"}}, table)
	assert.Equal(t, "FT?F", state(r))
}

func TestCompoundPredicate(t *testing.T) {
	// a and b cover every combination of true, false and unknown
	table := newTestTable(t, 9, map[string]*vectorized.DataColumn{
		"a": integers([]int64{1, 1, 1, 0, 0, 0, 0, 0, 0}, V, V, V, V, V, V, M, M, M),
		"b": integers([]int64{1, 0, 0, 1, 0, 0, 1, 0, 0}, V, V, M, V, V, M, V, V, M),
	})
	a := &SimplePredicate{Field: "a", Operator: "equal", Value: "1"}
	b := &SimplePredicate{Field: "b", Operator: "equal", Value: "1"}

	tests := []struct {
		operator string
		want     string
	}{
		{"and", "TF?FFF?F?"},
		{"or", "TTTTF?T??"},
		{"xor", "FT?TF????"},
		{"surrogate", "TTTFFFTF?"},
	}
	for _, tt := range tests {
		t.Run(tt.operator, func(t *testing.T) {
			r := predicate(t, &CompoundPredicate{BooleanOperator: tt.operator, Predicates: []Predicate{a, b}}, table)
			assert.Equal(t, tt.want, state(r))
			assert.True(t, r.EncounteredUnknowns)
		})
	}

	t.Run("Not", func(t *testing.T) {
		r := predicate(t, &NotPredicate{Predicate: a}, table)
		assert.Equal(t, "FFFTTT???", state(r))
	})

	t.Run("Constants", func(t *testing.T) {
		assert.Equal(t, "TTTTTTTTT", state(predicate(t, TruePredicate{}, table)))
		assert.Equal(t, "FFFFFFFFF", state(predicate(t, FalsePredicate{}, table)))
	})

	t.Run("NeedsTwoChildren", func(t *testing.T) {
		_, err := (&CompoundPredicate{BooleanOperator: "and", Predicates: []Predicate{a}}).Evaluate(table, NewFunctionTable(), NopPerformance{})
		assert.True(t, IsValidationError(err))
	})

	t.Run("Select", func(t *testing.T) {
		selection, err := Select(&CompoundPredicate{BooleanOperator: "or", Predicates: []Predicate{a, b}}, table, NewFunctionTable(), NopPerformance{})
		require.NoError(t, err)
		assert.Equal(t, []bool{true, true, true, true, false, false, true, false, false}, selection)
	})
}
