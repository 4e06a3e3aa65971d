package pmml

import (
	"augustus/core"
)

func registerPredicates(l *Loader) {
	l.Register("SimplePredicate", KindPredicate, buildSimplePredicate)
	l.Register("SimpleSetPredicate", KindPredicate, buildSimpleSetPredicate)
	l.Register("CompoundPredicate", KindPredicate, buildCompoundPredicate)
	l.Register("True", KindPredicate, func(*Loader, *Element) (interface{}, error) { return core.TruePredicate{}, nil })
	l.Register("False", KindPredicate, func(*Loader, *Element) (interface{}, error) { return core.FalsePredicate{}, nil })
}

func buildSimplePredicate(l *Loader, e *Element) (interface{}, error) {
	field, err := requiredAttr(e, "field")
	if err != nil {
		return nil, err
	}
	operator, err := requiredAttr(e, "operator")
	if err != nil {
		return nil, err
	}
	p := &core.SimplePredicate{Field: field, Operator: operator}
	if operator != "isMissing" && operator != "isNotMissing" {
		if p.Value, err = requiredAttr(e, "value"); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func buildSimpleSetPredicate(l *Loader, e *Element) (interface{}, error) {
	field, err := requiredAttr(e, "field")
	if err != nil {
		return nil, err
	}
	operator, err := requiredAttr(e, "booleanOperator")
	if err != nil {
		return nil, err
	}
	array := e.Child("Array")
	if array == nil {
		return nil, errorf(e, "SimpleSetPredicate needs an Array")
	}
	values, err := arrayValues(array)
	if err != nil {
		return nil, err
	}
	return &core.SimpleSetPredicate{Field: field, BooleanOperator: operator, Values: values}, nil
}

func buildCompoundPredicate(l *Loader, e *Element) (interface{}, error) {
	operator, err := requiredAttr(e, "booleanOperator")
	if err != nil {
		return nil, err
	}
	p := &core.CompoundPredicate{BooleanOperator: operator}
	for _, c := range e.Children {
		if k, ok := l.kindOf(c); !ok || k != KindPredicate {
			continue
		}
		child, err := l.Predicate(c)
		if err != nil {
			return nil, err
		}
		p.Predicates = append(p.Predicates, child)
	}
	if len(p.Predicates) < 2 {
		return nil, errorf(e, "CompoundPredicate needs at least two predicates")
	}
	return p, nil
}
