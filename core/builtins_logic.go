package core

import (
	"fmt"
	"strings"

	"augustus/vectorized"
)

// comparator returns a row-wise three-way comparison of a and b. ordered
// rejects kinds that only support equality (booleans).
func comparator(name string, a, b *vectorized.DataColumn, ordered bool) (func(i int) int, error) {
	sa, sb := sigOf(a), sigOf(b)
	switch {
	case isNumberSig(sa) && isNumberSig(sb):
		if sa == vectorized.SigInteger && sb == vectorized.SigInteger {
			left, right := a.Int64s(), b.Int64s()
			return func(i int) int { return compareInt64(left[i], right[i]) }, nil
		}
		left, right := floats(a), floats(b)
		return func(i int) int { return compareFloat64(left[i], right[i]) }, nil

	case sa != sb:
		return nil, NewValidationError("function %q has no signature matching its arguments (%s, %s)", name, a.FieldType.DataType(), b.FieldType.DataType())

	case sa == vectorized.SigString:
		left, right := a.Strings(), b.Strings()
		if a.FieldType.IsOrdinalString() {
			ft := a.FieldType
			return func(i int) int { return ft.Compare(left[i], right[i]) }, nil
		}
		return func(i int) int { return strings.Compare(left[i], right[i]) }, nil

	case sa == vectorized.SigBool:
		if ordered {
			return nil, NewValidationError("function %q cannot order boolean arguments", name)
		}
		left, right := a.Bools(), b.Bools()
		return func(i int) int {
			if left[i] == right[i] {
				return 0
			}
			if !left[i] {
				return -1
			}
			return 1
		}, nil

	case sa == vectorized.SigDate || sa == vectorized.SigTime || sa == vectorized.SigDateTime:
		left, right := a.Int64s(), b.Int64s()
		return func(i int) int { return compareInt64(left[i], right[i]) }, nil

	default:
		left, right := a.Objects(), b.Objects()
		return func(i int) int {
			if left[i] == right[i] {
				return 0
			}
			return strings.Compare(fmt.Sprint(left[i]), fmt.Sprint(right[i]))
		}, nil
	}
}

func compareInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func compareFloat64(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func comparison(name, description string, ordered bool, test func(c int) bool) *FunctionDefinition {
	return &FunctionDefinition{
		Name: name, Category: ComparisonFunc, MinArgs: 2, MaxArgs: 2,
		Description: description,
		Evaluator: func(length int, args []*vectorized.DataColumn) (*vectorized.DataColumn, error) {
			cmp, err := comparator(name, args[0], args[1], ordered)
			if err != nil {
				return nil, err
			}
			out := make([]bool, length)
			for i := range out {
				out[i] = test(cmp(i))
			}
			return boolColumn(out, vectorized.MapAnyMissingInvalid(args[0].Mask, args[1].Mask)), nil
		},
	}
}

func (ft *FunctionTable) registerComparisonFunctions() {
	ft.register(comparison("equal", "True when the arguments are equal", false, func(c int) bool { return c == 0 }))
	ft.register(comparison("notEqual", "True when the arguments differ", false, func(c int) bool { return c != 0 }))
	ft.register(comparison("lessThan", "True when the first argument is smaller", true, func(c int) bool { return c < 0 }))
	ft.register(comparison("lessOrEqual", "True when the first argument is not larger", true, func(c int) bool { return c <= 0 }))
	ft.register(comparison("greaterThan", "True when the first argument is larger", true, func(c int) bool { return c > 0 }))
	ft.register(comparison("greaterOrEqual", "True when the first argument is not smaller", true, func(c int) bool { return c >= 0 }))

	ft.register(missingTest("isMissing", "True for MISSING values", true))
	ft.register(missingTest("isNotMissing", "True for values that are not MISSING", false))

	ft.register(membership("isIn", "True when the first argument equals any of the others", true))
	ft.register(membership("isNotIn", "True when the first argument equals none of the others", false))

	ft.register(betweenTest("between", "True when low <= x <= high", true))
	ft.register(betweenTest("notBetween", "True when x < low or x > high", false))
}

// missingTest reports MISSING rows as data; INVALID rows stay INVALID
func missingTest(name, description string, wantMissing bool) *FunctionDefinition {
	return &FunctionDefinition{
		Name: name, Category: ComparisonFunc, MinArgs: 1, MaxArgs: 1,
		Description: description,
		Evaluator: func(length int, args []*vectorized.DataColumn) (*vectorized.DataColumn, error) {
			out := make([]bool, length)
			var mask []vectorized.Mask
			for i := range out {
				switch args[0].MaskAt(i) {
				case vectorized.Missing:
					out[i] = wantMissing
				case vectorized.Invalid:
					if mask == nil {
						mask = vectorized.NewMask(length)
					}
					mask[i] = vectorized.Invalid
				default:
					out[i] = !wantMissing
				}
			}
			return boolColumn(out, mask), nil
		},
	}
}

func membership(name, description string, in bool) *FunctionDefinition {
	return &FunctionDefinition{
		Name: name, Category: ComparisonFunc, MinArgs: 2, MaxArgs: -1,
		Description: description,
		Evaluator: func(length int, args []*vectorized.DataColumn) (*vectorized.DataColumn, error) {
			found := make([]bool, length)
			masks := []([]vectorized.Mask){args[0].Mask}
			for _, candidate := range args[1:] {
				cmp, err := comparator(name, args[0], candidate, false)
				if err != nil {
					return nil, err
				}
				for i := range found {
					if !found[i] && candidate.MaskAt(i) == vectorized.Valid && cmp(i) == 0 {
						found[i] = true
					}
				}
				masks = append(masks, candidate.Mask)
			}
			if !in {
				for i := range found {
					found[i] = !found[i]
				}
			}
			return boolColumn(found, vectorized.MapAnyMissingInvalid(masks...)), nil
		},
	}
}

func betweenTest(name, description string, inside bool) *FunctionDefinition {
	return &FunctionDefinition{
		Name: name, Category: ComparisonFunc, MinArgs: 3, MaxArgs: 3,
		Description: description,
		Evaluator: func(length int, args []*vectorized.DataColumn) (*vectorized.DataColumn, error) {
			low, err := comparator(name, args[0], args[1], true)
			if err != nil {
				return nil, err
			}
			high, err := comparator(name, args[0], args[2], true)
			if err != nil {
				return nil, err
			}
			out := make([]bool, length)
			for i := range out {
				in := low(i) >= 0 && high(i) <= 0
				out[i] = in == inside
			}
			return boolColumn(out, vectorized.MapAnyMissingInvalid(args[0].Mask, args[1].Mask, args[2].Mask)), nil
		},
	}
}

func requireBooleans(name string, args []*vectorized.DataColumn) error {
	for _, a := range args {
		if a.FieldType.DataType() != vectorized.BOOLEAN {
			return NewValidationError("function %q requires all arguments to be boolean, not %s", name, a.FieldType.DataType())
		}
	}
	return nil
}

// kleene combines boolean columns with three-valued logic: a row is
// decided as soon as any valid argument decides it, and is otherwise
// unknown (INVALID if any argument is INVALID, else MISSING)
func kleene(length int, args []*vectorized.DataColumn, decisive bool) *vectorized.DataColumn {
	out := make([]bool, length)
	var mask []vectorized.Mask
	for i := range out {
		decided := false
		unknown := vectorized.Valid
		for _, a := range args {
			switch m := a.MaskAt(i); m {
			case vectorized.Valid:
				if a.Bools()[i] == decisive {
					decided = true
				}
			default:
				if m > unknown {
					unknown = m
				}
			}
			if decided {
				break
			}
		}
		switch {
		case decided:
			out[i] = decisive
		case unknown != vectorized.Valid:
			if mask == nil {
				mask = vectorized.NewMask(length)
			}
			mask[i] = unknown
		default:
			out[i] = !decisive
		}
	}
	return boolColumn(out, mask)
}

func (ft *FunctionTable) registerLogicalFunctions() {
	ft.register(&FunctionDefinition{
		Name: "and", Category: LogicalFunc, MinArgs: 2, MaxArgs: -1,
		Description: "Three-valued conjunction",
		Evaluator: func(length int, args []*vectorized.DataColumn) (*vectorized.DataColumn, error) {
			if err := requireBooleans("and", args); err != nil {
				return nil, err
			}
			return kleene(length, args, false), nil
		},
	})
	ft.register(&FunctionDefinition{
		Name: "or", Category: LogicalFunc, MinArgs: 2, MaxArgs: -1,
		Description: "Three-valued disjunction",
		Evaluator: func(length int, args []*vectorized.DataColumn) (*vectorized.DataColumn, error) {
			if err := requireBooleans("or", args); err != nil {
				return nil, err
			}
			return kleene(length, args, true), nil
		},
	})
	ft.register(&FunctionDefinition{
		Name: "xor", Category: LogicalFunc, MinArgs: 2, MaxArgs: -1,
		Description: "True when an odd number of arguments are true",
		Evaluator: func(length int, args []*vectorized.DataColumn) (*vectorized.DataColumn, error) {
			if err := requireBooleans("xor", args); err != nil {
				return nil, err
			}
			out := make([]bool, length)
			masks := make([][]vectorized.Mask, len(args))
			for j, a := range args {
				for i, v := range a.Bools() {
					out[i] = out[i] != v
				}
				masks[j] = a.Mask
			}
			return boolColumn(out, vectorized.MapAnyMissingInvalid(masks...)), nil
		},
	})
	ft.register(&FunctionDefinition{
		Name: "not", Category: LogicalFunc, MinArgs: 1, MaxArgs: 1,
		Description: "Boolean negation",
		Evaluator: func(length int, args []*vectorized.DataColumn) (*vectorized.DataColumn, error) {
			if err := requireBooleans("not", args); err != nil {
				return nil, err
			}
			out := make([]bool, length)
			for i, v := range args[0].Bools() {
				out[i] = !v
			}
			return boolColumn(out, args[0].Mask), nil
		},
	})
	ft.functions["if"] = &ifThenElse{}
}

// ifThenElse evaluates its branches only on the rows that select them
type ifThenElse struct{}

func (ifThenElse) Evaluate(table *DataTable, functions *FunctionTable, perf Performance, args []Expression) (*vectorized.DataColumn, error) {
	if err := checkArity("if", len(args), 2, 3); err != nil {
		return nil, err
	}
	condition, err := args[0].Evaluate(table, functions, perf)
	if err != nil {
		return nil, err
	}
	if condition.FieldType.DataType() != vectorized.BOOLEAN {
		return nil, NewValidationError("first argument of function \"if\" must resolve to a boolean, not %s", condition.FieldType.DataType())
	}

	perf.Begin("built-in \"if\"")
	defer perf.End("built-in \"if\"")

	length := table.Len()
	values := condition.Bools()
	thenRows := make([]bool, length)
	elseRows := make([]bool, length)
	for i := range thenRows {
		if condition.MaskAt(i) != vectorized.Valid {
			continue
		}
		thenRows[i] = values[i]
		elseRows[i] = !values[i]
	}

	perf.Pause("built-in \"if\"")
	thenColumn, err := args[1].Evaluate(table.SubTable(thenRows), functions, perf)
	if err != nil {
		perf.Unpause("built-in \"if\"")
		return nil, err
	}
	var elseColumn *vectorized.DataColumn
	if len(args) == 3 {
		elseColumn, err = args[2].Evaluate(table.SubTable(elseRows), functions, perf)
		if err != nil {
			perf.Unpause("built-in \"if\"")
			return nil, err
		}
	}
	perf.Unpause("built-in \"if\"")

	resultType := thenColumn.FieldType
	if elseColumn != nil && !elseColumn.FieldType.Equal(resultType) {
		st, se := sigOf(thenColumn), sigOf(elseColumn)
		switch {
		case isNumberSig(st) && isNumberSig(se):
			resultType, _ = numberResult("if", []*vectorized.DataColumn{thenColumn, elseColumn})
		case st == se:
			resultType = signatureFieldType(st)
		default:
			return nil, NewValidationError("function \"if\" branches have incompatible types %s and %s", thenColumn.FieldType.DataType(), elseColumn.FieldType.DataType())
		}
		thenColumn = vectorized.Cast(resultType, thenColumn)
		elseColumn = vectorized.Cast(resultType, elseColumn)
	}

	// rows that take no branch stay MISSING, or INVALID with the condition
	result := vectorized.MaskedColumn(resultType, length, vectorized.Missing)
	for i := range result.Mask {
		if condition.MaskAt(i) == vectorized.Invalid {
			result.Mask[i] = vectorized.Invalid
		}
	}
	result = result.Scatter(thenRows, thenColumn)
	if elseColumn != nil {
		result = result.Scatter(elseRows, elseColumn)
	}
	return result, nil
}
