package pmml

import (
	"go.uber.org/multierr"

	"augustus/core"
	"augustus/vectorized"
)

// dataDictionary reads every <DataField>, reporting all bad fields
func dataDictionary(e *Element) ([]core.FieldDeclaration, error) {
	var out []core.FieldDeclaration
	var errs error
	seen := map[string]bool{}
	for _, c := range e.ChildrenOf("DataField") {
		decl, err := dataField(c)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		if seen[decl.Name] {
			errs = multierr.Append(errs, errorf(c, "field %q is declared twice", decl.Name))
			continue
		}
		seen[decl.Name] = true
		out = append(out, decl)
	}
	return out, errs
}

func dataField(e *Element) (core.FieldDeclaration, error) {
	name, err := requiredAttr(e, "name")
	if err != nil {
		return core.FieldDeclaration{}, err
	}
	dataType, err := requiredAttr(e, "dataType")
	if err != nil {
		return core.FieldDeclaration{}, err
	}
	dt, err := vectorized.ParseDataType(dataType)
	if err != nil {
		return core.FieldDeclaration{}, errorf(e, "%v", err)
	}
	optype, err := requiredAttr(e, "optype")
	if err != nil {
		return core.FieldDeclaration{}, err
	}
	ot, err := vectorized.ParseOpType(optype)
	if err != nil {
		return core.FieldDeclaration{}, errorf(e, "%v", err)
	}
	cyclic, err := boolAttr(e, "isCyclic", false)
	if err != nil {
		return core.FieldDeclaration{}, err
	}
	values, intervals, err := valuesAndIntervals(e)
	if err != nil {
		return core.FieldDeclaration{}, err
	}
	ft, err := vectorized.NewDeclaredFieldType(dt, ot, values, intervals, cyclic)
	if err != nil {
		return core.FieldDeclaration{}, errorf(e, "field %q: %v", name, err)
	}
	return core.FieldDeclaration{Name: name, Type: ft}, nil
}

func valuesAndIntervals(e *Element) ([]vectorized.FieldValue, []vectorized.Interval, error) {
	var values []vectorized.FieldValue
	for _, v := range e.ChildrenOf("Value") {
		value, err := requiredAttr(v, "value")
		if err != nil {
			return nil, nil, err
		}
		property, err := vectorized.ParseValueProperty(v.AttrDefault("property", ""))
		if err != nil {
			return nil, nil, errorf(v, "%v", err)
		}
		values = append(values, vectorized.FieldValue{
			Value:        value,
			DisplayValue: v.AttrDefault("displayValue", ""),
			Property:     property,
		})
	}
	var intervals []vectorized.Interval
	for _, i := range e.ChildrenOf("Interval") {
		iv, err := interval(i)
		if err != nil {
			return nil, nil, err
		}
		intervals = append(intervals, iv)
	}
	return values, intervals, nil
}

// interval reads an <Interval>; margins stay strings so that they can
// be dates as well as numbers
func interval(e *Element) (vectorized.Interval, error) {
	closure, err := requiredAttr(e, "closure")
	if err != nil {
		return vectorized.Interval{}, err
	}
	c, err := vectorized.ParseClosure(closure)
	if err != nil {
		return vectorized.Interval{}, errorf(e, "%v", err)
	}
	iv := vectorized.Interval{
		Closure:     c,
		LeftMargin:  stringAttr(e, "leftMargin"),
		RightMargin: stringAttr(e, "rightMargin"),
	}
	if iv.LeftMargin == nil && iv.RightMargin == nil {
		return iv, errorf(e, "an Interval needs a leftMargin, a rightMargin or both")
	}
	return iv, nil
}
