package pmml

import (
	"go.uber.org/multierr"

	"augustus/core"
	"augustus/vectorized"
)

func registerExpressions(l *Loader) {
	l.Register("Constant", KindExpression, buildConstant)
	l.Register("FieldRef", KindExpression, buildFieldRef)
	l.Register("Apply", KindExpression, buildApply)
	l.Register("NormContinuous", KindExpression, buildNormContinuous)
	l.Register("NormDiscrete", KindExpression, buildNormDiscrete)
	l.Register("Discretize", KindExpression, buildDiscretize)
	l.Register("MapValues", KindExpression, buildMapValues)
	l.Register("Aggregate", KindExpression, buildAggregate)
	l.Register("Formula", KindExpression, buildFormula)
}

// transformations reads a TransformationDictionary or LocalTransformations
// block: DefineFunctions and DerivedFields, in document order
func (l *Loader) transformations(e *Element) ([]core.Calculable, error) {
	var out []core.Calculable
	var errs error
	for _, c := range e.Children {
		var calculable core.Calculable
		var err error
		switch c.Tag {
		case "DerivedField":
			calculable, err = l.derivedField(c)
		case "DefineFunction":
			calculable, err = l.defineFunction(c)
		case "Extension":
			continue
		default:
			err = errorf(c, "unsupported element in <%s>", e.Tag)
		}
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		out = append(out, calculable)
	}
	return out, errs
}

func (l *Loader) derivedField(e *Element) (*core.DerivedField, error) {
	name, err := requiredAttr(e, "name")
	if err != nil {
		return nil, err
	}
	dt, err := dataTypeAttr(e, "dataType")
	if err != nil {
		return nil, err
	}
	ot, err := opTypeAttr(e, "optype")
	if err != nil {
		return nil, err
	}
	cyclic, err := boolAttr(e, "isCyclic", false)
	if err != nil {
		return nil, err
	}
	values, intervals, err := valuesAndIntervals(e)
	if err != nil {
		return nil, err
	}
	expr, err := l.expressionChild(e)
	if err != nil {
		return nil, err
	}
	field := &core.DerivedField{
		Name:       name,
		DataType:   dt,
		Values:     values,
		Intervals:  intervals,
		IsCyclic:   cyclic,
		Expression: expr,
	}
	switch {
	case ot != nil:
		field.OpType = *ot
	case dt != nil:
		field.OpType = defaultOpType(*dt)
	}
	return field, nil
}

func (l *Loader) defineFunction(e *Element) (*core.DefineFunction, error) {
	name, err := requiredAttr(e, "name")
	if err != nil {
		return nil, err
	}
	dt, err := dataTypeAttr(e, "dataType")
	if err != nil {
		return nil, err
	}
	ot, err := opTypeAttr(e, "optype")
	if err != nil {
		return nil, err
	}
	fn := &core.DefineFunction{Name: name, DataType: dt}
	if ot != nil {
		fn.OpType = *ot
	} else if dt != nil {
		fn.OpType = defaultOpType(*dt)
	}
	for _, p := range e.ChildrenOf("ParameterField") {
		pname, err := requiredAttr(p, "name")
		if err != nil {
			return nil, err
		}
		pdt, err := dataTypeAttr(p, "dataType")
		if err != nil {
			return nil, err
		}
		pot, err := opTypeAttr(p, "optype")
		if err != nil {
			return nil, err
		}
		fn.Parameters = append(fn.Parameters, core.ParameterField{Name: pname, DataType: pdt, OpType: pot})
	}
	if fn.Expression, err = l.expressionChild(e); err != nil {
		return nil, err
	}
	return fn, nil
}

func buildConstant(l *Loader, e *Element) (interface{}, error) {
	dt, err := dataTypeAttr(e, "dataType")
	if err != nil {
		return nil, err
	}
	return &core.Constant{Value: e.Text, DataType: dt}, nil
}

func buildFieldRef(l *Loader, e *Element) (interface{}, error) {
	field, err := requiredAttr(e, "field")
	if err != nil {
		return nil, err
	}
	return &core.FieldRef{Field: field, MapMissingTo: stringAttr(e, "mapMissingTo")}, nil
}

func buildApply(l *Loader, e *Element) (interface{}, error) {
	function, err := requiredAttr(e, "function")
	if err != nil {
		return nil, err
	}
	treatment, err := invalidValueTreatmentAttr(e)
	if err != nil {
		return nil, err
	}
	apply := &core.Apply{
		Function:              function,
		MapMissingTo:          stringAttr(e, "mapMissingTo"),
		InvalidValueTreatment: treatment,
	}
	for _, c := range e.Children {
		if k, ok := l.kindOf(c); !ok || k != KindExpression {
			continue
		}
		arg, err := l.Expression(c)
		if err != nil {
			return nil, err
		}
		apply.Arguments = append(apply.Arguments, arg)
	}
	return apply, nil
}

func buildNormContinuous(l *Loader, e *Element) (interface{}, error) {
	field, err := requiredAttr(e, "field")
	if err != nil {
		return nil, err
	}
	outliers, err := core.ParseOutlierTreatment(e.AttrDefault("outliers", ""))
	if err != nil {
		return nil, errorf(e, "%v", err)
	}
	mapMissingTo, err := floatAttr(e, "mapMissingTo")
	if err != nil {
		return nil, err
	}
	norm := &core.NormContinuous{Field: field, Outliers: outliers, MapMissingTo: mapMissingTo}
	for _, c := range e.ChildrenOf("LinearNorm") {
		orig, err := floatAttr(c, "orig")
		if err != nil {
			return nil, err
		}
		n, err := floatAttr(c, "norm")
		if err != nil {
			return nil, err
		}
		if orig == nil || n == nil {
			return nil, errorf(c, "LinearNorm needs orig and norm")
		}
		norm.LinearNorms = append(norm.LinearNorms, core.LinearNorm{Orig: *orig, Norm: *n})
	}
	if len(norm.LinearNorms) < 2 {
		return nil, errorf(e, "NormContinuous needs at least two LinearNorms")
	}
	return norm, nil
}

func buildNormDiscrete(l *Loader, e *Element) (interface{}, error) {
	field, err := requiredAttr(e, "field")
	if err != nil {
		return nil, err
	}
	value, err := requiredAttr(e, "value")
	if err != nil {
		return nil, err
	}
	mapMissingTo, err := floatAttr(e, "mapMissingTo")
	if err != nil {
		return nil, err
	}
	return &core.NormDiscrete{Field: field, Value: value, MapMissingTo: mapMissingTo}, nil
}

func buildDiscretize(l *Loader, e *Element) (interface{}, error) {
	field, err := requiredAttr(e, "field")
	if err != nil {
		return nil, err
	}
	dt, err := dataTypeAttr(e, "dataType")
	if err != nil {
		return nil, err
	}
	d := &core.Discretize{
		Field:        field,
		DefaultValue: stringAttr(e, "defaultValue"),
		MapMissingTo: stringAttr(e, "mapMissingTo"),
		DataType:     dt,
	}
	for _, c := range e.ChildrenOf("DiscretizeBin") {
		binValue, err := requiredAttr(c, "binValue")
		if err != nil {
			return nil, err
		}
		i := c.Child("Interval")
		if i == nil {
			return nil, errorf(c, "DiscretizeBin needs an Interval")
		}
		iv, err := interval(i)
		if err != nil {
			return nil, err
		}
		d.Bins = append(d.Bins, core.DiscretizeBin{BinValue: binValue, Interval: iv})
	}
	return d, nil
}

func buildMapValues(l *Loader, e *Element) (interface{}, error) {
	output, err := requiredAttr(e, "outputColumn")
	if err != nil {
		return nil, err
	}
	dt, err := dataTypeAttr(e, "dataType")
	if err != nil {
		return nil, err
	}
	m := &core.MapValues{
		OutputColumn: output,
		DefaultValue: stringAttr(e, "defaultValue"),
		MapMissingTo: stringAttr(e, "mapMissingTo"),
		DataType:     dt,
	}
	for _, c := range e.ChildrenOf("FieldColumnPair") {
		field, err := requiredAttr(c, "field")
		if err != nil {
			return nil, err
		}
		column, err := requiredAttr(c, "column")
		if err != nil {
			return nil, err
		}
		m.FieldColumnPairs = append(m.FieldColumnPairs, core.FieldColumnPair{Field: field, Column: column})
	}
	table := e.Child("InlineTable")
	if table == nil {
		if e.Child("TableLocator") != nil {
			return nil, errorf(e, "TableLocator is not supported; use an InlineTable")
		}
		return nil, errorf(e, "MapValues needs an InlineTable")
	}
	for _, row := range table.ChildrenOf("row") {
		cells := make(map[string]string, len(row.Children))
		for _, cell := range row.Children {
			cells[cell.Tag] = cell.Text
		}
		m.Rows = append(m.Rows, cells)
	}
	return m, nil
}

func buildAggregate(l *Loader, e *Element) (interface{}, error) {
	field, err := requiredAttr(e, "field")
	if err != nil {
		return nil, err
	}
	function, err := requiredAttr(e, "function")
	if err != nil {
		return nil, err
	}
	return &core.Aggregate{
		Field:      field,
		Function:   function,
		GroupField: stringAttr(e, "groupField"),
		SQLWhere:   stringAttr(e, "sqlWhere"),
		StateID:    stringAttr(e, "stateId"),
	}, nil
}

func buildFormula(l *Loader, e *Element) (interface{}, error) {
	if e.Text == "" {
		return nil, errorf(e, "Formula has no text")
	}
	return &core.Formula{Text: e.Text}, nil
}

func outputDataType(e *Element) (*vectorized.DataType, vectorized.OpType, error) {
	dt, err := dataTypeAttr(e, "dataType")
	if err != nil {
		return nil, 0, err
	}
	ot, err := opTypeAttr(e, "optype")
	if err != nil {
		return nil, 0, err
	}
	switch {
	case ot != nil:
		return dt, *ot, nil
	case dt != nil:
		return dt, defaultOpType(*dt), nil
	}
	return nil, vectorized.CONTINUOUS, nil
}
