package core

import (
	"augustus/vectorized"
)

// PredicateResult is the three-valued outcome of a predicate per row.
// Selection is true only where the predicate is known to hold; Unknowns
// marks rows whose outcome depends on MISSING or INVALID data.
type PredicateResult struct {
	Selection           []bool
	Unknowns            []bool
	EncounteredUnknowns bool
}

// IsFalse reports whether row i is known to be false
func (r *PredicateResult) IsFalse(i int) bool {
	return !r.Selection[i] && !r.Unknowns[i]
}

// Predicate selects rows of a table
type Predicate interface {
	Evaluate(table *DataTable, functions *FunctionTable, perf Performance) (*PredicateResult, error)
}

// Select evaluates p for row selection: unknown rows are not selected
func Select(p Predicate, table *DataTable, functions *FunctionTable, perf Performance) ([]bool, error) {
	result, err := p.Evaluate(table, functions, perf)
	if err != nil {
		return nil, err
	}
	return result.Selection, nil
}

func newPredicateResult(length int) *PredicateResult {
	return &PredicateResult{Selection: make([]bool, length), Unknowns: make([]bool, length)}
}

func (r *PredicateResult) setUnknown(i int) {
	r.Unknowns[i] = true
	r.Selection[i] = false
	r.EncounteredUnknowns = true
}

// SimplePredicate compares a field with a constant
type SimplePredicate struct {
	Field    string
	Operator string
	Value    string
}

// Evaluate applies the operator row by row. Ordering operators on a
// categorical field are a ValidationError.
func (p *SimplePredicate) Evaluate(table *DataTable, functions *FunctionTable, perf Performance) (*PredicateResult, error) {
	col, err := table.Field(p.Field)
	if err != nil {
		return nil, err
	}
	perf.Begin("SimplePredicate")
	defer perf.End("SimplePredicate")

	length := col.Len()
	result := newPredicateResult(length)
	switch p.Operator {
	case "isMissing", "isNotMissing":
		want := p.Operator == "isMissing"
		for i := 0; i < length; i++ {
			result.Selection[i] = (col.MaskAt(i) == vectorized.Missing) == want
		}
		return result, nil
	}

	var test func(c int) bool
	ordering := true
	switch p.Operator {
	case "equal":
		test, ordering = func(c int) bool { return c == 0 }, false
	case "notEqual":
		test, ordering = func(c int) bool { return c != 0 }, false
	case "lessThan":
		test = func(c int) bool { return c < 0 }
	case "lessOrEqual":
		test = func(c int) bool { return c <= 0 }
	case "greaterThan":
		test = func(c int) bool { return c > 0 }
	case "greaterOrEqual":
		test = func(c int) bool { return c >= 0 }
	default:
		return nil, NewValidationError("unrecognized SimplePredicate operator %q", p.Operator)
	}
	if ordering && col.FieldType.OpType() == vectorized.CATEGORICAL {
		return nil, NewValidationError("SimplePredicate %s cannot order categorical field %q", p.Operator, p.Field)
	}
	value, err := col.FieldType.StringToValue(p.Value)
	if err != nil {
		return nil, NewValidationError("SimplePredicate value %q is not a legal value of %q: %v", p.Value, p.Field, err)
	}
	for i := 0; i < length; i++ {
		if col.MaskAt(i) != vectorized.Valid {
			result.setUnknown(i)
			continue
		}
		result.Selection[i] = test(col.FieldType.Compare(col.Value(i), value))
	}
	GetTracer().Verbose(TraceComponentPredicate, "Evaluated SimplePredicate", TraceContext("field", p.Field, "operator", p.Operator, "unknowns", result.EncounteredUnknowns))
	return result, nil
}

// SimpleSetPredicate tests membership in a constant array
type SimpleSetPredicate struct {
	Field           string
	BooleanOperator string
	Values          []string
}

// Evaluate marks rows whose value is (isIn) or is not (isNotIn) in the set
func (p *SimpleSetPredicate) Evaluate(table *DataTable, functions *FunctionTable, perf Performance) (*PredicateResult, error) {
	col, err := table.Field(p.Field)
	if err != nil {
		return nil, err
	}
	want := true
	switch p.BooleanOperator {
	case "", "isIn":
	case "isNotIn":
		want = false
	default:
		return nil, NewValidationError("unrecognized SimpleSetPredicate booleanOperator %q", p.BooleanOperator)
	}
	perf.Begin("SimpleSetPredicate")
	defer perf.End("SimpleSetPredicate")

	members := make([]interface{}, len(p.Values))
	for j, text := range p.Values {
		v, err := col.FieldType.StringToValue(text)
		if err != nil {
			return nil, NewValidationError("SimpleSetPredicate value %q is not a legal value of %q: %v", text, p.Field, err)
		}
		members[j] = v
	}

	length := col.Len()
	result := newPredicateResult(length)
	for i := 0; i < length; i++ {
		if col.MaskAt(i) != vectorized.Valid {
			result.setUnknown(i)
			continue
		}
		v := col.Value(i)
		found := false
		for _, m := range members {
			if col.FieldType.Compare(v, m) == 0 {
				found = true
				break
			}
		}
		result.Selection[i] = found == want
	}
	return result, nil
}

// CompoundPredicate combines predicates with three-valued and, or, xor
// or surrogate logic
type CompoundPredicate struct {
	BooleanOperator string
	Predicates      []Predicate
}

// Evaluate evaluates every child on the whole table, then combines them
// row by row. False and unknown is false; true or unknown is true.
func (p *CompoundPredicate) Evaluate(table *DataTable, functions *FunctionTable, perf Performance) (*PredicateResult, error) {
	switch p.BooleanOperator {
	case "and", "or", "xor", "surrogate":
	default:
		return nil, NewValidationError("unrecognized CompoundPredicate booleanOperator %q", p.BooleanOperator)
	}
	if len(p.Predicates) < 2 {
		return nil, NewValidationError("CompoundPredicate %s needs at least two predicates", p.BooleanOperator)
	}
	children := make([]*PredicateResult, len(p.Predicates))
	encountered := false
	for j, child := range p.Predicates {
		r, err := child.Evaluate(table, functions, perf)
		if err != nil {
			return nil, err
		}
		children[j] = r
		encountered = encountered || r.EncounteredUnknowns
	}

	perf.Begin("CompoundPredicate")
	defer perf.End("CompoundPredicate")

	length := table.Len()
	result := newPredicateResult(length)
	for i := 0; i < length; i++ {
		switch p.BooleanOperator {
		case "and":
			anyFalse, anyUnknown := false, false
			for _, c := range children {
				if c.Unknowns[i] {
					anyUnknown = true
				} else if !c.Selection[i] {
					anyFalse = true
				}
			}
			switch {
			case anyFalse:
			case anyUnknown:
				result.setUnknown(i)
			default:
				result.Selection[i] = true
			}
		case "or":
			anyTrue, anyUnknown := false, false
			for _, c := range children {
				if c.Selection[i] {
					anyTrue = true
				} else if c.Unknowns[i] {
					anyUnknown = true
				}
			}
			switch {
			case anyTrue:
				result.Selection[i] = true
			case anyUnknown:
				result.setUnknown(i)
			}
		case "xor":
			odd := false
			unknown := false
			for _, c := range children {
				if c.Unknowns[i] {
					unknown = true
					break
				}
				odd = odd != c.Selection[i]
			}
			if unknown {
				result.setUnknown(i)
			} else {
				result.Selection[i] = odd
			}
		case "surrogate":
			decided := false
			for _, c := range children {
				if !c.Unknowns[i] {
					result.Selection[i] = c.Selection[i]
					decided = true
					break
				}
			}
			if !decided {
				result.setUnknown(i)
			}
		}
	}
	result.EncounteredUnknowns = result.EncounteredUnknowns || encountered
	return result, nil
}

// NotPredicate negates a predicate; unknown stays unknown
type NotPredicate struct {
	Predicate Predicate
}

func (p *NotPredicate) Evaluate(table *DataTable, functions *FunctionTable, perf Performance) (*PredicateResult, error) {
	inner, err := p.Predicate.Evaluate(table, functions, perf)
	if err != nil {
		return nil, err
	}
	result := newPredicateResult(len(inner.Selection))
	for i := range inner.Selection {
		if inner.Unknowns[i] {
			result.setUnknown(i)
			continue
		}
		result.Selection[i] = !inner.Selection[i]
	}
	result.EncounteredUnknowns = result.EncounteredUnknowns || inner.EncounteredUnknowns
	return result, nil
}

// TruePredicate selects every row
type TruePredicate struct{}

func (TruePredicate) Evaluate(table *DataTable, functions *FunctionTable, perf Performance) (*PredicateResult, error) {
	result := newPredicateResult(table.Len())
	for i := range result.Selection {
		result.Selection[i] = true
	}
	return result, nil
}

// FalsePredicate selects no row
type FalsePredicate struct{}

func (FalsePredicate) Evaluate(table *DataTable, functions *FunctionTable, perf Performance) (*PredicateResult, error) {
	return newPredicateResult(table.Len()), nil
}
