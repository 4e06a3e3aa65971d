package core

import (
	"fmt"
	"math"
	"sort"

	"augustus/vectorized"
)

// Score holds what a model computes. The "" key is the predicted value;
// other keys are model features such as "entityId", "probability.yes"
// or "all.cluster1".
type Score map[string]*vectorized.DataColumn

// Keys lists the score keys in sorted order, "" first
func (s Score) Keys() []string {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Model is implemented by every model element
type Model interface {
	Base() *ModelBase
	CalculateScore(table *DataTable, functions *FunctionTable, perf Performance) (Score, error)
}

// ModelBase carries the parts common to every model element
type ModelBase struct {
	ModelName            string
	FunctionName         string
	NotScorable          bool
	MiningSchema         []*MiningField
	LocalTransformations []Calculable
	Output               []*OutputField
}

// Base lets embedding types satisfy part of Model
func (m *ModelBase) Base() *ModelBase { return m }

// ActiveFields lists the mining fields that must come from the input
func (m *ModelBase) ActiveFields() []string {
	var out []string
	for _, f := range m.MiningSchema {
		if f.IsActive() {
			out = append(out, f.Name)
		}
	}
	return out
}

func (m *ModelBase) label() string {
	if m.ModelName != "" {
		return fmt.Sprintf("model %q", m.ModelName)
	}
	return "model"
}

// CalculateModel runs one model on table: mining schema treatments and
// local transformations on a sub-table, then the model's own score.
// The predicted value becomes table.Score; a named model also publishes
// its score as fields "name" and "name.feature". Output fields are added
// to table.Output under their display names.
func CalculateModel(m Model, table *DataTable, functions *FunctionTable, perf Performance) error {
	base := m.Base()
	label := base.label()
	perf.Begin(label)
	defer perf.End(label)
	tracer := GetTracer()

	sub := table.SubTable(nil)
	var score Score
	if base.NotScorable {
		score = Score{"": vectorized.MaskedColumn(doubleType, table.Len(), vectorized.Invalid)}
		tracer.Debug(TraceComponentModel, "Model is not scorable", TraceContext("model", base.ModelName))
	} else {
		for _, f := range base.MiningSchema {
			if err := f.Apply(sub); err != nil {
				return err
			}
		}
		for _, t := range base.LocalTransformations {
			if err := t.Calculate(sub, functions, perf); err != nil {
				return err
			}
		}
		var err error
		if score, err = m.CalculateScore(sub, functions, perf); err != nil {
			return err
		}
	}
	table.Score = score[""]

	if base.ModelName != "" && table.Score != nil {
		for _, key := range score.Keys() {
			col := score[key]
			name := base.ModelName
			if key != "" {
				name += "." + key
			}
			if err := table.Fields.Set(name, col); err != nil {
				return err
			}
			if err := sub.Fields.Bind(name, col); err != nil {
				return err
			}
		}
	}

	for _, of := range base.Output {
		col, err := of.Format(sub, functions, perf, score)
		if err != nil {
			return err
		}
		if err := sub.Fields.Bind(of.Name, col); err != nil {
			return err
		}
		if err := table.Output.Bind(of.DisplayLabel(), col); err != nil {
			return err
		}
	}
	for _, name := range sub.Output.Names() {
		col, _ := sub.Output.Lookup(name)
		if err := table.Output.Bind(name, col); err != nil {
			return err
		}
	}
	tracer.Debug(TraceComponentModel, "Calculated model", TraceContext("model", base.ModelName, "rows", table.Len(), "features", len(score)))
	return nil
}

// MiningField prepares one input field of a model
type MiningField struct {
	Name                    string
	UsageType               string
	OpType                  *vectorized.OpType
	LowValue                *float64
	HighValue               *float64
	Outliers                OutlierTreatment
	InvalidValueTreatment   vectorized.InvalidValueTreatment
	MissingValueReplacement *string
}

// IsActive reports whether the field is an input of the model
func (f *MiningField) IsActive() bool {
	return f.UsageType == "" || f.UsageType == "active"
}

// Apply replaces the field in table with its treated version: optype
// cast, outliers, invalid value treatment and missing value replacement,
// in that order. Inactive fields absent from the table are skipped.
func (f *MiningField) Apply(table *DataTable) error {
	col, ok := table.Fields.Lookup(f.Name)
	if !ok {
		if f.IsActive() {
			return &DataIngestError{Field: f.Name}
		}
		return nil
	}
	original := col

	if f.OpType != nil && *f.OpType != col.FieldType.OpType() {
		col = vectorized.Cast(vectorized.NewFieldType(col.FieldType.DataType(), *f.OpType), col)
	}

	if (f.LowValue != nil || f.HighValue != nil) && f.Outliers != OutliersAsIs && isNumberSig(sigOf(col)) {
		values := floats(col)
		low := math.Inf(-1)
		if f.LowValue != nil {
			low = *f.LowValue
		}
		high := math.Inf(1)
		if f.HighValue != nil {
			high = *f.HighValue
		}
		switch f.Outliers {
		case OutliersAsMissingValues:
			selection := make([]bool, len(values))
			for i, x := range values {
				selection[i] = col.MaskAt(i) == vectorized.Valid && (x < low || x > high)
			}
			mask := vectorized.OutliersAsMissing(col.Mask, original.Mask, selection)
			if !sameMask(mask, col.Mask) {
				col = col.WithMask(mask)
			}
		case OutliersAsExtremeValues:
			var data interface{}
			for i, x := range values {
				if col.MaskAt(i) != vectorized.Valid || (x >= low && x <= high) {
					continue
				}
				if data == nil {
					data = vectorized.CopyData(col.Data)
				}
				if x < low {
					vectorized.SetStored(data, i, low)
				} else {
					vectorized.SetStored(data, i, high)
				}
			}
			if data != nil {
				col = vectorized.NewDataColumn(col.FieldType, data, col.Mask)
			}
		}
	}

	mask, err := vectorized.ApplyInvalidValueTreatment(col.Mask, f.InvalidValueTreatment)
	if err != nil {
		if rowErr, ok := err.(*vectorized.InvalidRowError); ok {
			return &InvalidValueError{Field: f.Name, Row: rowErr.Row}
		}
		return err
	}
	if !sameMask(mask, col.Mask) {
		col = col.WithMask(mask)
	}

	if f.MissingValueReplacement != nil {
		data, mask, err := vectorized.ApplyMapMissingTo(col.FieldType, col.Data, col.Mask, f.MissingValueReplacement)
		if err != nil {
			return NewValidationError("MiningField %q missingValueReplacement: %v", f.Name, err)
		}
		if !sameMask(mask, col.Mask) {
			col = vectorized.NewDataColumn(col.FieldType, data, mask)
		}
	}

	if col == original {
		return nil
	}
	return table.Fields.Replace(f.Name, col)
}

// Decision is one possible business decision of an OutputField
type Decision struct {
	Value        string
	DisplayValue string
	Description  string
}

// Decisions maps output values to Decision objects
type Decisions struct {
	BusinessProblem string
	Description     string
	Decisions       []Decision
}

// OutputField extracts one named result of a model
type OutputField struct {
	Name        string
	DisplayName string
	DataType    *vectorized.DataType
	OpType      vectorized.OpType
	Feature     string
	Value       string
	Expression  Expression
	Decisions   *Decisions
}

// DisplayLabel is the name the output is published under
func (o *OutputField) DisplayLabel() string {
	if o.DisplayName != "" {
		return o.DisplayName
	}
	return o.Name
}

// Format computes the output column from the model's score
func (o *OutputField) Format(table *DataTable, functions *FunctionTable, perf Performance, score Score) (*vectorized.DataColumn, error) {
	key := fmt.Sprintf("OutputField %q", o.Name)
	perf.Begin(key)
	defer perf.End(key)

	var col *vectorized.DataColumn
	switch o.Feature {
	case "":
		c, err := table.Field(o.Name)
		if err != nil {
			return nil, err
		}
		col = c

	case "predictedValue":
		col = score[""]
		if col == nil {
			return nil, NewValidationError("OutputField %q: model has no predicted value", o.Name)
		}

	case "predictedDisplayValue":
		if c, ok := score["predictedDisplayValue"]; ok {
			return c, nil
		}
		predicted := score[""]
		if predicted == nil {
			return nil, NewValidationError("OutputField %q: model has no predicted value", o.Name)
		}
		out := make([]string, predicted.Len())
		for i := range out {
			if predicted.MaskAt(i) == vectorized.Valid {
				out[i] = predicted.FieldType.ValueToDisplay(predicted.Value(i))
			}
		}
		return stringColumn(out, predicted.Mask), nil

	case "transformedValue", "decision":
		if o.Expression == nil {
			return nil, NewValidationError("OutputField %q with feature %s needs an expression", o.Name, o.Feature)
		}
		perf.Pause(key)
		c, err := o.Expression.Evaluate(table, functions, perf)
		perf.Unpause(key)
		if err != nil {
			return nil, err
		}
		if o.Feature == "decision" {
			return o.decide(c)
		}
		col = c

	default:
		name := o.Feature
		if o.Value != "" {
			name = o.Feature + "." + o.Value
		}
		c, ok := score[name]
		if !ok {
			return nil, NewValidationError("OutputField %q: model does not provide feature %q", o.Name, name)
		}
		col = c
	}

	if o.DataType != nil {
		col = vectorized.Cast(vectorized.NewFieldType(*o.DataType, o.OpType), col)
	}
	GetTracer().Verbose(TraceComponentOutput, "Formatted output field", TraceContext("field", o.DisplayLabel(), "feature", o.Feature))
	return col, nil
}

func (o *OutputField) decide(col *vectorized.DataColumn) (*vectorized.DataColumn, error) {
	if o.Decisions == nil {
		return nil, NewValidationError("OutputField %q with feature decision needs a Decisions block", o.Name)
	}
	byValue := make(map[string]*Decision, len(o.Decisions.Decisions))
	for j := range o.Decisions.Decisions {
		d := &o.Decisions.Decisions[j]
		if _, dup := byValue[d.Value]; !dup {
			byValue[d.Value] = d
		}
	}
	length := col.Len()
	out := make([]interface{}, length)
	mask := vectorized.CopyMask(col.Mask, length)
	for i := range out {
		if mask[i] != vectorized.Valid {
			continue
		}
		d, ok := byValue[col.FieldType.ValueToString(col.Value(i))]
		if !ok {
			mask[i] = vectorized.Missing
			continue
		}
		out[i] = d
	}
	return vectorized.NewDataColumn(objectType, out, vectorized.NormalizeMask(mask)), nil
}
