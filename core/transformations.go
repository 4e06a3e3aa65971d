package core

import (
	"fmt"

	"augustus/vectorized"
)

// DerivedField names the result of an expression and adds it to the
// table when calculated
type DerivedField struct {
	Name       string
	DataType   *vectorized.DataType
	OpType     vectorized.OpType
	Values     []vectorized.FieldValue
	Intervals  []vectorized.Interval
	IsCyclic   bool
	Expression Expression
}

// FieldType returns the declared type, or nil when no dataType is given
// and the expression's own type is kept
func (d *DerivedField) FieldType() (*vectorized.FieldType, error) {
	if d.DataType == nil {
		return nil, nil
	}
	ft, err := vectorized.NewDeclaredFieldType(*d.DataType, d.OpType, d.Values, d.Intervals, d.IsCyclic)
	if err != nil {
		return nil, NewValidationError("DerivedField %q: %v", d.Name, err)
	}
	return ft, nil
}

// Evaluate computes the expression and casts it to the declared type.
// The cast is skipped when the types already agree and no Values are
// declared.
func (d *DerivedField) Evaluate(table *DataTable, functions *FunctionTable, perf Performance) (*vectorized.DataColumn, error) {
	if d.Expression == nil {
		return nil, NewValidationError("DerivedField %q has no expression", d.Name)
	}
	perf.Begin("DerivedField")
	defer perf.End("DerivedField")

	col, err := d.Expression.Evaluate(table, functions, perf)
	if err != nil {
		return nil, err
	}
	ft, err := d.FieldType()
	if err != nil {
		return nil, err
	}
	if ft == nil || (ft.Equal(col.FieldType) && len(d.Values) == 0) {
		return col, nil
	}

	key := fmt.Sprintf("cast (%q)", d.Name)
	perf.Begin(key)
	cast := vectorized.Cast(ft, col)
	perf.End(key)
	GetTracer().Debug(TraceComponentCast, "Cast derived field", TraceContext("field", d.Name, "from", col.FieldType.String(), "to", ft.String()))
	return cast, nil
}

// Calculate evaluates the field and adds it to the table. A name that is
// already in the table is a ValidationError.
func (d *DerivedField) Calculate(table *DataTable, functions *FunctionTable, perf Performance) error {
	col, err := d.Evaluate(table, functions, perf)
	if err != nil {
		return err
	}
	GetTracer().Verbose(TraceComponentTransform, "Calculated derived field", TraceContext("field", d.Name, "rows", col.Len()))
	return table.Fields.Set(d.Name, col)
}

// ParameterField is one formal parameter of a DefineFunction. Without a
// DataType the argument is bound as it is.
type ParameterField struct {
	Name     string
	DataType *vectorized.DataType
	OpType   *vectorized.OpType
}

func (p ParameterField) bind(col *vectorized.DataColumn) *vectorized.DataColumn {
	if p.DataType == nil && p.OpType == nil {
		return col
	}
	dt := col.FieldType.DataType()
	if p.DataType != nil {
		dt = *p.DataType
	}
	optype := col.FieldType.OpType()
	if p.OpType != nil {
		optype = *p.OpType
	}
	return vectorized.Cast(vectorized.NewFieldType(dt, optype), col)
}

// DefineFunction is a user-defined function. Its body sees only its
// parameters, never the caller's fields.
type DefineFunction struct {
	Name       string
	DataType   *vectorized.DataType
	OpType     vectorized.OpType
	Parameters []ParameterField
	Expression Expression
}

// Calculate registers the function; redefining a name is an error
func (d *DefineFunction) Calculate(table *DataTable, functions *FunctionTable, perf Performance) error {
	if d.Expression == nil {
		return NewValidationError("DefineFunction %q has no expression", d.Name)
	}
	if err := functions.Define(d.Name, d); err != nil {
		return err
	}
	GetTracer().Debug(TraceComponentFunction, "Defined function", TraceContext("function", d.Name, "parameters", len(d.Parameters)))
	return nil
}

// Evaluate binds the evaluated arguments to the parameters in a fresh
// scope and runs the body there. Time spent in the body is attributed
// to the body's own spans.
func (d *DefineFunction) Evaluate(table *DataTable, functions *FunctionTable, perf Performance, args []Expression) (*vectorized.DataColumn, error) {
	if err := checkArity(d.Name, len(args), len(d.Parameters), len(d.Parameters)); err != nil {
		return nil, err
	}
	columns := make([]*vectorized.DataColumn, len(args))
	for i, arg := range args {
		col, err := arg.Evaluate(table, functions, perf)
		if err != nil {
			return nil, err
		}
		columns[i] = col
	}

	key := fmt.Sprintf("user-defined %q", d.Name)
	perf.Begin(key)
	defer perf.End(key)

	scope := table.Scope()
	for i, p := range d.Parameters {
		if err := scope.Fields.Bind(p.Name, p.bind(columns[i])); err != nil {
			return nil, err
		}
	}

	perf.Pause(key)
	result, err := d.Expression.Evaluate(scope, functions, perf)
	perf.Unpause(key)
	if err != nil {
		return nil, err
	}
	if d.DataType != nil {
		result = vectorized.Cast(vectorized.NewFieldType(*d.DataType, d.OpType), result)
	}
	return result, nil
}
