package core

import (
	"fmt"
	"strings"

	"augustus/vectorized"
)

// Expression is one node of a transformation tree. Evaluate returns a
// column with one row per row of table.
type Expression interface {
	Evaluate(table *DataTable, functions *FunctionTable, perf Performance) (*vectorized.DataColumn, error)
}

// Calculable is a document element that changes the table or function
// namespace when calculated (DerivedField, DefineFunction, models)
type Calculable interface {
	Calculate(table *DataTable, functions *FunctionTable, perf Performance) error
}

// Constant broadcasts one literal. Without a declared DataType it is a
// continuous string.
type Constant struct {
	Value    string
	DataType *vectorized.DataType
}

// NewConstant builds a typed constant
func NewConstant(value string, dataType vectorized.DataType) *Constant {
	return &Constant{Value: value, DataType: &dataType}
}

// FieldType returns the type the constant evaluates to
func (c *Constant) FieldType() *vectorized.FieldType {
	if c.DataType == nil {
		return vectorized.NewFieldType(vectorized.STRING, vectorized.CONTINUOUS)
	}
	return vectorized.NewFieldType(*c.DataType, vectorized.CONTINUOUS)
}

// EvaluateOne converts the literal once
func (c *Constant) EvaluateOne() (interface{}, error) {
	text := c.Value
	if c.DataType != nil && *c.DataType != vectorized.STRING {
		text = strings.TrimSpace(text)
	}
	ft := c.FieldType()
	value, err := ft.StringToValue(text)
	if err != nil {
		return nil, NewValidationError("Constant %q cannot be cast as %s: %v", c.Value, ft.DataType(), err)
	}
	return value, nil
}

// Evaluate broadcasts the converted literal over the table
func (c *Constant) Evaluate(table *DataTable, functions *FunctionTable, perf Performance) (*vectorized.DataColumn, error) {
	perf.Begin("Constant")
	defer perf.End("Constant")
	value, err := c.EvaluateOne()
	if err != nil {
		return nil, err
	}
	return vectorized.ConstantColumn(c.FieldType(), value, table.Len()), nil
}

// evaluateAs broadcasts the literal as another field type; used when an
// untyped constant is compared with a typed argument
func (c *Constant) evaluateAs(ft *vectorized.FieldType, length int) (*vectorized.DataColumn, error) {
	value, err := ft.StringToValue(strings.TrimSpace(c.Value))
	if err != nil {
		return nil, NewValidationError("Constant %q cannot be cast as %s: %v", c.Value, ft.DataType(), err)
	}
	return vectorized.ConstantColumn(vectorized.NewFieldType(ft.DataType(), vectorized.CONTINUOUS), value, length), nil
}

func (c *Constant) String() string {
	if c.DataType == nil {
		return fmt.Sprintf("Constant(%q)", c.Value)
	}
	return fmt.Sprintf("Constant(%q, %s)", c.Value, *c.DataType)
}

// FieldRef reads a field that is already defined in the table
type FieldRef struct {
	Field        string
	MapMissingTo *string
}

// Evaluate looks the field up; an undefined name is a ValidationError
func (f *FieldRef) Evaluate(table *DataTable, functions *FunctionTable, perf Performance) (*vectorized.DataColumn, error) {
	perf.Begin("FieldRef")
	defer perf.End("FieldRef")
	col, err := table.Field(f.Field)
	if err != nil {
		return nil, err
	}
	if f.MapMissingTo == nil {
		return col, nil
	}
	return mapMissing(col, *f.MapMissingTo)
}

func (f *FieldRef) String() string {
	return fmt.Sprintf("FieldRef(%s)", f.Field)
}

// Apply calls a built-in or user-defined function
type Apply struct {
	Function              string
	Arguments             []Expression
	MapMissingTo          *string
	InvalidValueTreatment vectorized.InvalidValueTreatment
}

// Evaluate dispatches to the function table. Invalid-value treatment is
// applied to the result before mapMissingTo.
func (a *Apply) Evaluate(table *DataTable, functions *FunctionTable, perf Performance) (*vectorized.DataColumn, error) {
	fn, ok := functions.Lookup(a.Function)
	if !ok {
		return nil, NewValidationError("unknown function %q", a.Function)
	}
	col, err := fn.Evaluate(table, functions, perf, a.Arguments)
	if err != nil {
		return nil, err
	}
	return applyTreatments(col, a.InvalidValueTreatment, a.MapMissingTo)
}

func (a *Apply) String() string {
	parts := make([]string, len(a.Arguments))
	for i, arg := range a.Arguments {
		parts[i] = fmt.Sprint(arg)
	}
	return fmt.Sprintf("Apply(%s, [%s])", a.Function, strings.Join(parts, ", "))
}

func mapMissing(col *vectorized.DataColumn, replacement string) (*vectorized.DataColumn, error) {
	data, mask, err := vectorized.ApplyMapMissingTo(col.FieldType, col.Data, col.Mask, &replacement)
	if err != nil {
		return nil, NewValidationError("%v", err)
	}
	if sameMask(mask, col.Mask) {
		return col, nil
	}
	return vectorized.NewDataColumn(col.FieldType, data, mask), nil
}

func applyTreatments(col *vectorized.DataColumn, policy vectorized.InvalidValueTreatment, mapMissingTo *string) (*vectorized.DataColumn, error) {
	mask, err := vectorized.ApplyInvalidValueTreatment(col.Mask, policy)
	if err != nil {
		if rowErr, ok := err.(*vectorized.InvalidRowError); ok {
			return nil, &InvalidValueError{Row: rowErr.Row}
		}
		return nil, err
	}
	if !sameMask(mask, col.Mask) {
		col = col.WithMask(mask)
	}
	if mapMissingTo == nil {
		return col, nil
	}
	return mapMissing(col, *mapMissingTo)
}

func sameMask(a, b []vectorized.Mask) bool {
	if len(a) == 0 || len(b) == 0 {
		return len(a) == len(b)
	}
	return &a[0] == &b[0]
}
