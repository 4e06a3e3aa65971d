package core

import (
	"fmt"
	"sort"

	"augustus/vectorized"
)

// FunctionCategory groups built-in functions for listings
type FunctionCategory int

const (
	ArithmeticFunc FunctionCategory = iota
	MathFunc
	ComparisonFunc
	LogicalFunc
	StringFunc
	DateFunc
	UserFunc
)

func (fc FunctionCategory) String() string {
	switch fc {
	case ArithmeticFunc:
		return "arithmetic"
	case MathFunc:
		return "math"
	case ComparisonFunc:
		return "comparison"
	case LogicalFunc:
		return "logical"
	case StringFunc:
		return "string"
	case DateFunc:
		return "date"
	case UserFunc:
		return "user-defined"
	default:
		return "unknown"
	}
}

// Function is anything an Apply element can call. Implementations decide
// when (and on which rows) their argument expressions are evaluated.
type Function interface {
	Evaluate(table *DataTable, functions *FunctionTable, perf Performance, args []Expression) (*vectorized.DataColumn, error)
}

// ColumnEvaluator computes a built-in function from fully evaluated
// argument columns of length rows
type ColumnEvaluator func(length int, args []*vectorized.DataColumn) (*vectorized.DataColumn, error)

// FunctionDefinition is a built-in function with eager arguments
type FunctionDefinition struct {
	Name        string
	Category    FunctionCategory
	MinArgs     int
	MaxArgs     int // -1 for unlimited
	Description string
	Evaluator   ColumnEvaluator
}

// Evaluate checks the arity, evaluates every argument on the whole table
// and runs the evaluator
func (fd *FunctionDefinition) Evaluate(table *DataTable, functions *FunctionTable, perf Performance, args []Expression) (*vectorized.DataColumn, error) {
	if err := checkArity(fd.Name, len(args), fd.MinArgs, fd.MaxArgs); err != nil {
		return nil, err
	}
	columns, err := evaluateArguments(table, functions, perf, args)
	if err != nil {
		return nil, err
	}
	key := fmt.Sprintf("built-in %q", fd.Name)
	perf.Begin(key)
	defer perf.End(key)
	return fd.Evaluator(table.Len(), columns)
}

func checkArity(name string, n, min, max int) error {
	if n < min {
		if min == max {
			return NewValidationError("function %q requires exactly %d arguments", name, min)
		}
		return NewValidationError("function %q requires at least %d arguments", name, min)
	}
	if max >= 0 && n > max {
		if min == max {
			return NewValidationError("function %q requires exactly %d arguments", name, max)
		}
		return NewValidationError("function %q requires at most %d arguments", name, max)
	}
	return nil
}

// evaluateArguments evaluates each argument on the whole table. Untyped
// constants take the data type of the first typed, non-string argument so
// that equal(x, "3") compares numbers when x is numeric; a literal that
// does not parse as that type stays a string.
func evaluateArguments(table *DataTable, functions *FunctionTable, perf Performance, args []Expression) ([]*vectorized.DataColumn, error) {
	columns := make([]*vectorized.DataColumn, len(args))
	var target *vectorized.FieldType
	for i, arg := range args {
		if c, ok := arg.(*Constant); ok && c.DataType == nil {
			continue
		}
		col, err := arg.Evaluate(table, functions, perf)
		if err != nil {
			return nil, err
		}
		if target == nil && col.FieldType.DataType() != vectorized.STRING && col.FieldType.DataType() != vectorized.OBJECT {
			target = col.FieldType
		}
		columns[i] = col
	}
	for i, arg := range args {
		if columns[i] != nil {
			continue
		}
		c := arg.(*Constant)
		var col *vectorized.DataColumn
		var err error
		if target != nil {
			col, err = c.evaluateAs(target, table.Len())
		}
		// literals that do not parse as the target stay strings
		if target == nil || err != nil {
			col, err = c.Evaluate(table, functions, perf)
		}
		if err != nil {
			return nil, err
		}
		columns[i] = col
	}
	return columns, nil
}

// FunctionTable is the namespace of functions visible to Apply elements:
// every built-in plus the DefineFunctions calculated so far
type FunctionTable struct {
	functions map[string]Function
}

// NewFunctionTable creates a table holding all built-in functions
func NewFunctionTable() *FunctionTable {
	ft := &FunctionTable{functions: make(map[string]Function)}
	ft.registerArithmeticFunctions()
	ft.registerMathFunctions()
	ft.registerComparisonFunctions()
	ft.registerLogicalFunctions()
	ft.registerStringFunctions()
	ft.registerDateFunctions()
	return ft
}

func (ft *FunctionTable) register(def *FunctionDefinition) {
	ft.functions[def.Name] = def
}

// Lookup returns the function called name
func (ft *FunctionTable) Lookup(name string) (Function, bool) {
	fn, ok := ft.functions[name]
	return fn, ok
}

// Define adds a function. Names already in use cannot be redefined.
func (ft *FunctionTable) Define(name string, fn Function) error {
	if _, ok := ft.functions[name]; ok {
		return NewValidationError("DefineFunction %q overshadows previously defined function", name)
	}
	ft.functions[name] = fn
	return nil
}

// Names lists every function name in sorted order
func (ft *FunctionTable) Names() []string {
	names := make([]string, 0, len(ft.functions))
	for name := range ft.functions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Definition returns the built-in definition of name, if it is a built-in
func (ft *FunctionTable) Definition(name string) (*FunctionDefinition, bool) {
	def, ok := ft.functions[name].(*FunctionDefinition)
	return def, ok
}

var (
	doubleType   = vectorized.NewFieldType(vectorized.DOUBLE, vectorized.CONTINUOUS)
	integerType  = vectorized.NewFieldType(vectorized.INTEGER, vectorized.CONTINUOUS)
	stringType   = vectorized.NewFieldType(vectorized.STRING, vectorized.CONTINUOUS)
	booleanType  = vectorized.NewFieldType(vectorized.BOOLEAN, vectorized.CONTINUOUS)
	objectType   = vectorized.NewFieldType(vectorized.OBJECT, vectorized.ANY)
	dateType     = vectorized.NewFieldType(vectorized.DATE, vectorized.CONTINUOUS)
	timeType     = vectorized.NewFieldType(vectorized.TIME, vectorized.CONTINUOUS)
	dateTimeType = vectorized.NewFieldType(vectorized.DATETIME, vectorized.CONTINUOUS)
)

// signatureFieldType is the result type of a function whose signature
// yields sig
func signatureFieldType(sig vectorized.SignatureType) *vectorized.FieldType {
	switch sig {
	case vectorized.SigFloat:
		return doubleType
	case vectorized.SigInteger:
		return integerType
	case vectorized.SigString:
		return stringType
	case vectorized.SigBool:
		return booleanType
	case vectorized.SigDate:
		return dateType
	case vectorized.SigTime:
		return timeType
	case vectorized.SigDateTime:
		return dateTimeType
	default:
		return objectType
	}
}

func sigOf(col *vectorized.DataColumn) vectorized.SignatureType {
	return col.FieldType.DataType().Signature()
}

func isNumberSig(sig vectorized.SignatureType) bool {
	return sig == vectorized.SigFloat || sig == vectorized.SigInteger
}

// numberResult requires numeric arguments and returns integer when all
// are integers, double otherwise
func numberResult(name string, args []*vectorized.DataColumn) (*vectorized.FieldType, error) {
	allInts := true
	for _, a := range args {
		switch sigOf(a) {
		case vectorized.SigInteger:
		case vectorized.SigFloat:
			allInts = false
		default:
			return nil, NewValidationError("function %q requires numeric arguments, not %s", name, a.FieldType.DataType())
		}
	}
	if allInts {
		return integerType, nil
	}
	return doubleType, nil
}

// orderedResult is numberResult extended to arguments that all share one
// temporal family
func orderedResult(name string, args []*vectorized.DataColumn) (*vectorized.FieldType, error) {
	if len(args) > 0 {
		first := sigOf(args[0])
		if first == vectorized.SigDate || first == vectorized.SigTime || first == vectorized.SigDateTime {
			for _, a := range args[1:] {
				if sigOf(a) != first {
					return nil, NewValidationError("function %q requires all arguments to be %s if any one is", name, args[0].FieldType.DataType())
				}
			}
			return signatureFieldType(first), nil
		}
	}
	return numberResult(name, args)
}

func floats(col *vectorized.DataColumn) []float64 {
	values, err := col.AsFloat64()
	if err != nil {
		return make([]float64, col.Len())
	}
	return values
}

// floatColumn wraps double results; NaN and infinities on otherwise valid
// rows become INVALID
func floatColumn(values []float64, mask []vectorized.Mask) *vectorized.DataColumn {
	mask = vectorized.CopyMask(mask, len(values))
	mask = vectorized.NaNToInvalid(values, mask)
	return vectorized.NewDataColumn(doubleType, values, vectorized.NormalizeMask(mask))
}

func boolColumn(values []bool, mask []vectorized.Mask) *vectorized.DataColumn {
	return vectorized.NewDataColumn(booleanType, values, vectorized.NormalizeMask(mask))
}

func validAt(cols []*vectorized.DataColumn, i int) bool {
	for _, c := range cols {
		if c.MaskAt(i) != vectorized.Valid {
			return false
		}
	}
	return true
}
