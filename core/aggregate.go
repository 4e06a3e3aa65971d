package core

import (
	"fmt"
	"sort"

	"augustus/vectorized"
)

// Aggregate computes a running count, sum, average, min, max or multiset
// over the rows seen so far. With a StateID the running value continues
// from the previous calculation; with a GroupField it is kept per group
// and each row holds a map of group to running value.
type Aggregate struct {
	Field      string
	Function   string
	GroupField *string
	SQLWhere   *string
	StateID    *string
}

var aggregateFunctions = map[string]bool{
	"count": true, "sum": true, "average": true, "min": true, "max": true, "multiset": true,
}

// Evaluate returns the running value for every row
func (a *Aggregate) Evaluate(table *DataTable, functions *FunctionTable, perf Performance) (*vectorized.DataColumn, error) {
	if !aggregateFunctions[a.Function] {
		return nil, NewValidationError("unrecognized Aggregate function %q", a.Function)
	}
	col, err := table.Field(a.Field)
	if err != nil {
		return nil, err
	}
	if (a.Function == "sum" || a.Function == "average") && !isNumberSig(sigOf(col)) {
		return nil, NewValidationError("Aggregate %s requires a numeric field, not %s", a.Function, col.FieldType.DataType())
	}

	where := vectorized.ValidRows(col.Mask, col.Len())
	if a.SQLWhere != nil {
		expr, err := DefaultFormulaCache().Parse(*a.SQLWhere)
		if err != nil {
			return nil, err
		}
		filter, err := expr.Evaluate(table, functions, perf)
		if err != nil {
			return nil, err
		}
		if filter.FieldType.DataType() != vectorized.BOOLEAN {
			return nil, NewValidationError("Aggregate sqlWhere %q must be boolean, not %s", *a.SQLWhere, filter.FieldType.DataType())
		}
		values := filter.Bools()
		for i := range where {
			where[i] = where[i] && filter.MaskAt(i) == vectorized.Valid && values[i]
		}
	}

	perf.Begin("Aggregate")
	defer perf.End("Aggregate")

	var previous *StateValue
	if a.StateID != nil {
		previous, _ = table.State.Get(*a.StateID)
	}

	if a.GroupField == nil {
		result, final := a.running(col, where, previous)
		if a.StateID != nil {
			table.State.Set(*a.StateID, final)
			GetTracer().Verbose(TraceComponentState, "Updated aggregate state", TraceContext("stateId", *a.StateID, "function", a.Function))
		}
		return result, nil
	}
	return a.grouped(table, col, where, previous)
}

func (a *Aggregate) grouped(table *DataTable, col *vectorized.DataColumn, where []bool, previous *StateValue) (*vectorized.DataColumn, error) {
	groupCol, err := table.Field(*a.GroupField)
	if err != nil {
		return nil, err
	}
	length := col.Len()
	groupOf := make([]string, length)
	var order []string
	seen := map[string]bool{}
	for i := 0; i < length; i++ {
		if groupCol.MaskAt(i) != vectorized.Valid {
			where[i] = false
			continue
		}
		g := groupCol.FieldType.ValueToString(groupCol.Value(i))
		groupOf[i] = g
		if !seen[g] {
			seen[g] = true
			order = append(order, g)
		}
	}

	final := &StateValue{Groups: map[string]*StateValue{}}
	if previous != nil {
		for _, g := range sortedGroupKeys(previous) {
			final.Groups[g] = previous.Groups[g].Clone()
			if !seen[g] {
				// a group with no rows in this batch keeps its last value
				seen[g] = true
				order = append(order, g)
			}
		}
	}
	sort.Strings(order)

	perGroup := make(map[string]*vectorized.DataColumn, len(order))
	for _, g := range order {
		selection := make([]bool, length)
		for i := range selection {
			selection[i] = where[i] && groupOf[i] == g
		}
		var start *StateValue
		if previous != nil {
			start = previous.Groups[g]
		}
		result, last := a.running(col, selection, start)
		perGroup[g] = result
		final.Groups[g] = last
	}

	out := make([]interface{}, length)
	for i := range out {
		row := make(map[string]interface{}, len(order))
		for _, g := range order {
			c := perGroup[g]
			if c.MaskAt(i) == vectorized.Valid {
				row[g] = c.FieldType.ValueToNative(c.Value(i))
			}
		}
		out[i] = row
	}
	if a.StateID != nil {
		table.State.Set(*a.StateID, final)
		GetTracer().Verbose(TraceComponentState, "Updated grouped aggregate state", TraceContext("stateId", *a.StateID, "groups", len(order)))
	}
	return vectorized.NewDataColumn(objectType, out, nil), nil
}

// running folds the selected rows into the running value, starting from
// start, and returns the value after every row plus the final value
func (a *Aggregate) running(col *vectorized.DataColumn, selection []bool, start *StateValue) (*vectorized.DataColumn, *StateValue) {
	length := col.Len()
	state := start.Clone()
	if state == nil {
		state = &StateValue{}
	}

	switch a.Function {
	case "count":
		out := make([]int64, length)
		n := int64(state.Number)
		for i := range out {
			if selection[i] {
				n++
			}
			out[i] = n
		}
		state.Number = float64(n)
		return vectorized.NewDataColumn(integerType, out, nil), state

	case "sum":
		values := floats(col)
		out := make([]float64, length)
		sum := state.Number
		for i := range out {
			if selection[i] {
				sum += values[i]
			}
			out[i] = sum
		}
		state.Number = sum
		return floatColumn(out, nil), state

	case "average":
		values := floats(col)
		out := make([]float64, length)
		mask := vectorized.NewMask(length)
		num, den := state.Numerator, state.Denominator
		for i := range out {
			if selection[i] {
				num += values[i]
				den++
			}
			if den == 0 {
				mask[i] = vectorized.Invalid
				continue
			}
			out[i] = num / den
		}
		state.Numerator, state.Denominator = num, den
		return floatColumn(out, mask), state

	case "min", "max":
		ft := vectorized.NewFieldType(col.FieldType.DataType(), vectorized.CONTINUOUS)
		if col.FieldType.IsOrdinalString() {
			ft = col.FieldType
		}
		data := ft.Storage().MakeData(length)
		mask := vectorized.NewMask(length)
		var extreme interface{}
		if state.Extreme != nil {
			if v, err := ft.StringToValue(*state.Extreme); err == nil {
				extreme = v
			}
		}
		for i := 0; i < length; i++ {
			if selection[i] {
				v := col.Value(i)
				if extreme == nil {
					extreme = v
				} else if c := ft.Compare(v, extreme); (a.Function == "min" && c < 0) || (a.Function == "max" && c > 0) {
					extreme = v
				}
			}
			if extreme == nil {
				mask[i] = vectorized.Invalid
				continue
			}
			vectorized.SetStored(data, i, extreme)
		}
		if extreme != nil {
			s := ft.ValueToString(extreme)
			state.Extreme = &s
		}
		return vectorized.NewDataColumn(ft, data, vectorized.NormalizeMask(mask)), state

	default:
		counts := make(map[string]int64, len(state.Multiset))
		for k, n := range state.Multiset {
			counts[k] = n
		}
		out := make([]interface{}, length)
		for i := range out {
			if selection[i] {
				counts[col.FieldType.ValueToString(col.Value(i))]++
			}
			snapshot := make(map[string]int64, len(counts))
			for k, n := range counts {
				snapshot[k] = n
			}
			out[i] = snapshot
		}
		state.Multiset = counts
		return vectorized.NewDataColumn(objectType, out, nil), state
	}
}

func (a *Aggregate) String() string {
	return fmt.Sprintf("Aggregate(%s, %s)", a.Function, a.Field)
}
