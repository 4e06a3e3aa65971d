package core

import (
	"fmt"
	"sort"
	"strconv"

	"augustus/vectorized"
)

// OutlierTreatment says what happens to values beyond the outermost
// breakpoints or bounds
type OutlierTreatment int

const (
	OutliersAsIs OutlierTreatment = iota
	OutliersAsMissingValues
	OutliersAsExtremeValues
)

// ParseOutlierTreatment maps the PMML spelling; empty means asIs
func ParseOutlierTreatment(name string) (OutlierTreatment, error) {
	switch name {
	case "", "asIs":
		return OutliersAsIs, nil
	case "asMissingValues":
		return OutliersAsMissingValues, nil
	case "asExtremeValues":
		return OutliersAsExtremeValues, nil
	}
	return OutliersAsIs, NewValidationError("unrecognized outlier treatment %q", name)
}

// LinearNorm is one (orig, norm) breakpoint
type LinearNorm struct {
	Orig float64
	Norm float64
}

// NormContinuous maps a number through a piecewise linear function
type NormContinuous struct {
	Field        string
	LinearNorms  []LinearNorm
	Outliers     OutlierTreatment
	MapMissingTo *float64
}

// Evaluate interpolates every valid row. Breakpoints may be declared in
// any order; a value equal to a breakpoint maps to its norm exactly.
// Under asMissingValues the first breakpoint itself counts as an outlier
// and the last does not.
func (n *NormContinuous) Evaluate(table *DataTable, functions *FunctionTable, perf Performance) (*vectorized.DataColumn, error) {
	if len(n.LinearNorms) < 2 {
		return nil, NewValidationError("NormContinuous of %q needs at least two LinearNorms", n.Field)
	}
	col, err := table.Field(n.Field)
	if err != nil {
		return nil, err
	}
	if !isNumberSig(sigOf(col)) {
		return nil, NewValidationError("NormContinuous field %q must be numeric, not %s", n.Field, col.FieldType.DataType())
	}

	perf.Begin("NormContinuous")
	defer perf.End("NormContinuous")

	norms := append([]LinearNorm(nil), n.LinearNorms...)
	sort.SliceStable(norms, func(i, j int) bool { return norms[i].Orig < norms[j].Orig })
	first, last := norms[0], norms[len(norms)-1]

	values := floats(col)
	out := make([]float64, len(values))
	mask := vectorized.CopyMask(col.Mask, len(values))
	for i, x := range values {
		if mask[i] != vectorized.Valid {
			continue
		}
		switch {
		case n.Outliers == OutliersAsMissingValues && (x <= first.Orig || x > last.Orig):
			mask[i] = vectorized.Missing
		case x < first.Orig || x > last.Orig:
			if n.Outliers == OutliersAsExtremeValues {
				if x < first.Orig {
					out[i] = first.Norm
				} else {
					out[i] = last.Norm
				}
			} else if x < first.Orig {
				out[i] = interpolate(x, norms[0], norms[1])
			} else {
				out[i] = interpolate(x, norms[len(norms)-2], last)
			}
		default:
			out[i] = normInside(x, norms)
		}
	}
	// outliers made MISSING above are replaced too
	if n.MapMissingTo != nil {
		for i, m := range mask {
			if m == vectorized.Missing {
				out[i] = *n.MapMissingTo
				mask[i] = vectorized.Valid
			}
		}
	}
	return floatColumn(out, mask), nil
}

func normInside(x float64, norms []LinearNorm) float64 {
	k := sort.Search(len(norms), func(j int) bool { return norms[j].Orig >= x })
	if norms[k].Orig == x {
		return norms[k].Norm
	}
	return interpolate(x, norms[k-1], norms[k])
}

func interpolate(x float64, a, b LinearNorm) float64 {
	return a.Norm + (x-a.Orig)/(b.Orig-a.Orig)*(b.Norm-a.Norm)
}

// NormDiscrete is the indicator of one field value: 1 where the field
// equals Value, 0 elsewhere
type NormDiscrete struct {
	Field        string
	Value        string
	MapMissingTo *float64
}

// Evaluate yields an integer column
func (n *NormDiscrete) Evaluate(table *DataTable, functions *FunctionTable, perf Performance) (*vectorized.DataColumn, error) {
	col, err := table.Field(n.Field)
	if err != nil {
		return nil, err
	}
	perf.Begin("NormDiscrete")
	defer perf.End("NormDiscrete")

	target, err := col.FieldType.StringToValue(n.Value)
	if err != nil {
		return nil, NewValidationError("NormDiscrete value %q is not a legal value of %q: %v", n.Value, n.Field, err)
	}
	length := col.Len()
	out := make([]int64, length)
	mask := vectorized.CopyMask(col.Mask, length)
	for i := 0; i < length; i++ {
		switch mask[i] {
		case vectorized.Valid:
			if col.FieldType.Compare(col.Value(i), target) == 0 {
				out[i] = 1
			}
		case vectorized.Missing:
			if n.MapMissingTo != nil {
				out[i] = int64(*n.MapMissingTo)
				mask[i] = vectorized.Valid
			}
		}
	}
	return vectorized.NewDataColumn(integerType, out, vectorized.NormalizeMask(mask)), nil
}

// FanOutByValue builds one indicator DerivedField per distinct valid
// value of a field, named "field.value", in order of first appearance
func FanOutByValue(table *DataTable, field string) ([]*DerivedField, error) {
	col, err := table.Field(field)
	if err != nil {
		return nil, err
	}
	seen := map[string]bool{}
	var out []*DerivedField
	integer := vectorized.INTEGER
	for i := 0; i < col.Len(); i++ {
		if col.MaskAt(i) != vectorized.Valid {
			continue
		}
		value := col.FieldType.ValueToString(col.Value(i))
		if seen[value] {
			continue
		}
		seen[value] = true
		out = append(out, &DerivedField{
			Name:       fmt.Sprintf("%s.%s", field, value),
			DataType:   &integer,
			OpType:     vectorized.CONTINUOUS,
			Expression: &NormDiscrete{Field: field, Value: value},
		})
	}
	return out, nil
}

// DiscretizeBin assigns BinValue to the rows inside its interval
type DiscretizeBin struct {
	BinValue string
	Interval vectorized.Interval
}

// Discretize bins a continuous field
type Discretize struct {
	Field        string
	Bins         []DiscretizeBin
	DefaultValue *string
	MapMissingTo *string
	DataType     *vectorized.DataType
}

type bounds struct {
	closure     vectorized.Closure
	left, right *float64
}

func (b bounds) contains(x float64) bool {
	if b.left != nil {
		if b.closure == vectorized.OpenClosed || b.closure == vectorized.OpenOpen {
			if x <= *b.left {
				return false
			}
		} else if x < *b.left {
			return false
		}
	}
	if b.right != nil {
		if b.closure == vectorized.OpenOpen || b.closure == vectorized.ClosedOpen {
			if x >= *b.right {
				return false
			}
		} else if x > *b.right {
			return false
		}
	}
	return true
}

func parseMargin(s *string) (*float64, error) {
	if s == nil {
		return nil, nil
	}
	f, err := strconv.ParseFloat(*s, 64)
	if err != nil {
		return nil, NewValidationError("interval margin %q is not a number", *s)
	}
	return &f, nil
}

func (d *Discretize) outputType() *vectorized.FieldType {
	dt := vectorized.STRING
	if d.DataType != nil {
		dt = *d.DataType
	}
	if dt == vectorized.STRING {
		return vectorized.NewFieldType(dt, vectorized.CATEGORICAL)
	}
	return vectorized.NewFieldType(dt, vectorized.CONTINUOUS)
}

// Evaluate assigns the first matching bin. Rows in no bin take the
// default value or become MISSING.
func (d *Discretize) Evaluate(table *DataTable, functions *FunctionTable, perf Performance) (*vectorized.DataColumn, error) {
	col, err := table.Field(d.Field)
	if err != nil {
		return nil, err
	}
	if !isNumberSig(sigOf(col)) {
		return nil, NewValidationError("Discretize field %q must be numeric, not %s", d.Field, col.FieldType.DataType())
	}
	perf.Begin("Discretize")
	defer perf.End("Discretize")

	ft := d.outputType()
	binValues := make([]interface{}, len(d.Bins))
	binBounds := make([]bounds, len(d.Bins))
	for j, bin := range d.Bins {
		v, err := ft.StringToValue(bin.BinValue)
		if err != nil {
			return nil, NewValidationError("Discretize binValue %q cannot be cast as %s", bin.BinValue, ft.DataType())
		}
		binValues[j] = v
		left, err := parseMargin(bin.Interval.LeftMargin)
		if err != nil {
			return nil, err
		}
		right, err := parseMargin(bin.Interval.RightMargin)
		if err != nil {
			return nil, err
		}
		binBounds[j] = bounds{closure: bin.Interval.Closure, left: left, right: right}
	}
	var fallback interface{}
	if d.DefaultValue != nil {
		if fallback, err = ft.StringToValue(*d.DefaultValue); err != nil {
			return nil, NewValidationError("Discretize defaultValue %q cannot be cast as %s", *d.DefaultValue, ft.DataType())
		}
	}

	values := floats(col)
	data := ft.Storage().MakeData(len(values))
	mask := vectorized.CopyMask(col.Mask, len(values))
	for i, x := range values {
		if mask[i] != vectorized.Valid {
			continue
		}
		matched := false
		for j, b := range binBounds {
			if b.contains(x) {
				vectorized.SetStored(data, i, binValues[j])
				matched = true
				break
			}
		}
		if !matched {
			if fallback != nil {
				vectorized.SetStored(data, i, fallback)
			} else {
				mask[i] = vectorized.Missing
			}
		}
	}
	return mapMissingAndWrap(ft, data, mask, d.MapMissingTo)
}

func mapMissingAndWrap(ft *vectorized.FieldType, data interface{}, mask []vectorized.Mask, mapMissingTo *string) (*vectorized.DataColumn, error) {
	data, mask, err := vectorized.ApplyMapMissingTo(ft, data, vectorized.NormalizeMask(mask), mapMissingTo)
	if err != nil {
		return nil, NewValidationError("%v", err)
	}
	return vectorized.NewDataColumn(ft, data, mask), nil
}

// FieldColumnPair binds a table field to a column of a MapValues table
type FieldColumnPair struct {
	Field  string
	Column string
}

// MapValues looks rows up in an inline table keyed by several fields
type MapValues struct {
	FieldColumnPairs []FieldColumnPair
	OutputColumn     string
	Rows             []map[string]string
	DefaultValue     *string
	MapMissingTo     *string
	DataType         *vectorized.DataType
}

const mapKeySeparator = "\x1e"

// Evaluate returns the output column of the first table row whose key
// columns all match. Rows with a non-valid key field are MISSING.
func (m *MapValues) Evaluate(table *DataTable, functions *FunctionTable, perf Performance) (*vectorized.DataColumn, error) {
	keys := make([]*vectorized.DataColumn, len(m.FieldColumnPairs))
	for j, pair := range m.FieldColumnPairs {
		col, err := table.Field(pair.Field)
		if err != nil {
			return nil, err
		}
		keys[j] = col
	}
	perf.Begin("MapValues")
	defer perf.End("MapValues")

	dt := vectorized.STRING
	if m.DataType != nil {
		dt = *m.DataType
	}
	optype := vectorized.CONTINUOUS
	if dt == vectorized.STRING {
		optype = vectorized.CATEGORICAL
	}
	ft := vectorized.NewFieldType(dt, optype)

	lookup := make(map[string]string, len(m.Rows))
	for _, row := range m.Rows {
		parts := make([]string, len(m.FieldColumnPairs))
		complete := true
		for j, pair := range m.FieldColumnPairs {
			v, ok := row[pair.Column]
			if !ok {
				complete = false
				break
			}
			parts[j] = v
		}
		out, ok := row[m.OutputColumn]
		if !complete || !ok {
			continue
		}
		key := joinKey(parts)
		if _, dup := lookup[key]; !dup {
			lookup[key] = out
		}
	}

	length := table.Len()
	data := ft.Storage().MakeData(length)
	masks := make([][]vectorized.Mask, len(keys))
	for j, k := range keys {
		masks[j] = k.Mask
	}
	mask := vectorized.CopyMask(vectorized.MapAnyMissingInvalid(masks...), length)
	for i := range mask {
		if mask[i] == vectorized.Invalid {
			mask[i] = vectorized.Missing
		}
	}
	parts := make([]string, len(keys))
	for i := 0; i < length; i++ {
		if mask[i] != vectorized.Valid {
			continue
		}
		for j, k := range keys {
			parts[j] = k.FieldType.ValueToString(k.Value(i))
		}
		text, ok := lookup[joinKey(parts)]
		if !ok {
			if m.DefaultValue == nil {
				mask[i] = vectorized.Missing
				continue
			}
			text = *m.DefaultValue
		}
		v, err := ft.StringToValue(text)
		if err != nil {
			mask[i] = vectorized.Invalid
			continue
		}
		vectorized.SetStored(data, i, v)
	}
	return mapMissingAndWrap(ft, data, mask, m.MapMissingTo)
}

func joinKey(parts []string) string {
	n := 0
	for _, p := range parts {
		n += len(p) + 1
	}
	buf := make([]byte, 0, n)
	for j, p := range parts {
		if j > 0 {
			buf = append(buf, mapKeySeparator...)
		}
		buf = append(buf, p...)
	}
	return string(buf)
}
