package pmml

import (
	"go.uber.org/multierr"

	"augustus/core"
)

// modelBase reads the parts every model element shares
func (l *Loader) modelBase(e *Element) (core.ModelBase, error) {
	base := core.ModelBase{
		ModelName:    e.AttrDefault("modelName", ""),
		FunctionName: e.AttrDefault("functionName", ""),
	}
	scorable, err := boolAttr(e, "isScorable", true)
	if err != nil {
		return base, err
	}
	base.NotScorable = !scorable

	var errs error
	schema := e.Child("MiningSchema")
	if schema == nil {
		errs = multierr.Append(errs, errorf(e, "model needs a MiningSchema"))
	} else {
		for _, c := range schema.ChildrenOf("MiningField") {
			f, err := miningField(c)
			if err != nil {
				errs = multierr.Append(errs, err)
				continue
			}
			base.MiningSchema = append(base.MiningSchema, f)
		}
	}
	if lt := e.Child("LocalTransformations"); lt != nil {
		calculables, err := l.transformations(lt)
		errs = multierr.Append(errs, err)
		base.LocalTransformations = calculables
	}
	if output := e.Child("Output"); output != nil {
		for _, c := range output.ChildrenOf("OutputField") {
			f, err := l.outputField(c)
			if err != nil {
				errs = multierr.Append(errs, err)
				continue
			}
			base.Output = append(base.Output, f)
		}
	}
	return base, errs
}

func miningField(e *Element) (*core.MiningField, error) {
	name, err := requiredAttr(e, "name")
	if err != nil {
		return nil, err
	}
	f := &core.MiningField{
		Name:                    name,
		UsageType:               e.AttrDefault("usageType", "active"),
		MissingValueReplacement: stringAttr(e, "missingValueReplacement"),
	}
	if f.OpType, err = opTypeAttr(e, "optype"); err != nil {
		return nil, err
	}
	if f.LowValue, err = floatAttr(e, "lowValue"); err != nil {
		return nil, err
	}
	if f.HighValue, err = floatAttr(e, "highValue"); err != nil {
		return nil, err
	}
	if f.Outliers, err = core.ParseOutlierTreatment(e.AttrDefault("outliers", "")); err != nil {
		return nil, errorf(e, "%v", err)
	}
	if f.InvalidValueTreatment, err = invalidValueTreatmentAttr(e); err != nil {
		return nil, err
	}
	return f, nil
}

func (l *Loader) outputField(e *Element) (*core.OutputField, error) {
	name, err := requiredAttr(e, "name")
	if err != nil {
		return nil, err
	}
	dt, ot, err := outputDataType(e)
	if err != nil {
		return nil, err
	}
	f := &core.OutputField{
		Name:        name,
		DisplayName: e.AttrDefault("displayName", ""),
		DataType:    dt,
		OpType:      ot,
		Feature:     e.AttrDefault("feature", ""),
		Value:       e.AttrDefault("value", ""),
	}
	switch f.Feature {
	case "transformedValue", "decision":
		if f.Expression, err = l.expressionChild(e); err != nil {
			return nil, err
		}
	}
	if d := e.Child("Decisions"); d != nil {
		decisions := &core.Decisions{
			BusinessProblem: d.AttrDefault("businessProblem", ""),
			Description:     d.AttrDefault("description", ""),
		}
		for _, c := range d.ChildrenOf("Decision") {
			value, err := requiredAttr(c, "value")
			if err != nil {
				return nil, err
			}
			decisions.Decisions = append(decisions.Decisions, core.Decision{
				Value:        value,
				DisplayValue: c.AttrDefault("displayValue", ""),
				Description:  c.AttrDefault("description", ""),
			})
		}
		f.Decisions = decisions
	}
	return f, nil
}
