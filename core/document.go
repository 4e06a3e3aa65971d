package core

import (
	"github.com/pkg/errors"

	"augustus/vectorized"
)

// Document is a loaded PMML document: the data dictionary, the global
// transformations and the top-level models, ready to calculate
type Document struct {
	Version                  string
	DataDictionary           []FieldDeclaration
	TransformationDictionary []Calculable
	Models                   []Model
}

// RequiredFields lists every active mining field of every model that is
// not produced by the transformation dictionary
func (d *Document) RequiredFields() []string {
	derived := map[string]bool{}
	for _, t := range d.TransformationDictionary {
		if f, ok := t.(*DerivedField); ok {
			derived[f.Name] = true
		}
	}
	seen := map[string]bool{}
	var out []string
	for _, m := range d.Models {
		for _, name := range m.Base().ActiveFields() {
			if derived[name] || seen[name] {
				continue
			}
			seen[name] = true
			out = append(out, name)
		}
	}
	return out
}

// Prepare builds the DataTable for one batch of input. An active mining
// field that the input lacks is a DataIngestError raised before any
// scoring starts.
func (d *Document) Prepare(inputs map[string]interface{}, masks map[string][]vectorized.Mask, state *DataTableState) (*DataTable, error) {
	for _, name := range d.RequiredFields() {
		if _, ok := inputs[name]; !ok {
			GetTracer().Error(TraceComponentInput, "Input lacks a required field", TraceContext("field", name))
			return nil, &DataIngestError{Field: name}
		}
	}
	return BuildDataTable(d.DataDictionary, inputs, masks, state)
}

// Calculate runs the transformation dictionary in document order and
// then the models. A single model's predicted value is table.Score;
// several models each run on their own sub-table and their predicted
// values go to table.Scores in order. A nil functions starts from the
// built-ins and a nil perf records nothing.
func (d *Document) Calculate(table *DataTable, functions *FunctionTable, perf Performance) error {
	if functions == nil {
		functions = NewFunctionTable()
	}
	if perf == nil {
		perf = NopPerformance{}
	}
	perf.Begin("PMML")
	defer perf.End("PMML")

	for _, t := range d.TransformationDictionary {
		if err := t.Calculate(table, functions, perf); err != nil {
			return err
		}
	}

	switch len(d.Models) {
	case 0:
		table.Score = nil
	case 1:
		return CalculateModel(d.Models[0], table, functions, perf)
	default:
		table.Score = nil
		table.Scores = make([]*vectorized.DataColumn, len(d.Models))
		for j, m := range d.Models {
			sub := table.SubTable(nil)
			if err := CalculateModel(m, sub, functions, perf); err != nil {
				return errors.Wrapf(err, "model %d", j)
			}
			table.Scores[j] = sub.Score
			for _, name := range sub.Output.Names() {
				col, _ := sub.Output.Lookup(name)
				if err := table.Output.Bind(name, col); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// Score prepares a table from the inputs and calculates it with fresh
// functions and no timing
func (d *Document) Score(inputs map[string]interface{}, state *DataTableState) (*DataTable, error) {
	table, err := d.Prepare(inputs, nil, state)
	if err != nil {
		return nil, err
	}
	if err := d.Calculate(table, nil, nil); err != nil {
		return nil, err
	}
	return table, nil
}
