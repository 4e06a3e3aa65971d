package vectorized

import (
	"fmt"
	"math"
	"strings"
)

// DataColumn is a typed column with an optional validity mask.
// A nil Mask means every row is valid. Columns are treated as immutable:
// operations that change data or mask return a new DataColumn.
type DataColumn struct {
	FieldType *FieldType
	Data      interface{} // []int64, []float64, []bool, []string or []interface{}
	Mask      []Mask
}

// NewDataColumn wraps data that already has the field type's storage kind
func NewDataColumn(fieldType *FieldType, data interface{}, mask []Mask) *DataColumn {
	return &DataColumn{FieldType: fieldType, Data: data, Mask: mask}
}

// ConstantColumn broadcasts one stored value to length rows
func ConstantColumn(fieldType *FieldType, value interface{}, length int) *DataColumn {
	data := fieldType.Storage().MakeData(length)
	for i := 0; i < length; i++ {
		setStored(data, i, value)
	}
	return &DataColumn{FieldType: fieldType, Data: data}
}

// MaskedColumn allocates a column whose rows all share one mask state
func MaskedColumn(fieldType *FieldType, length int, state Mask) *DataColumn {
	col := &DataColumn{FieldType: fieldType, Data: fieldType.Storage().MakeData(length)}
	if state != Valid {
		col.Mask = FilledMask(length, state)
	}
	return col
}

// Len returns the number of rows
func (c *DataColumn) Len() int {
	return dataLength(c.Data)
}

// Float64s returns the float storage; panics for other kinds
func (c *DataColumn) Float64s() []float64 { return c.Data.([]float64) }

// Int64s returns the integer and temporal storage; panics for other kinds
func (c *DataColumn) Int64s() []int64 { return c.Data.([]int64) }

// Bools returns the boolean storage; panics for other kinds
func (c *DataColumn) Bools() []bool { return c.Data.([]bool) }

// Strings returns the string storage; panics for other kinds
func (c *DataColumn) Strings() []string { return c.Data.([]string) }

// Objects returns the object storage; panics for other kinds
func (c *DataColumn) Objects() []interface{} { return c.Data.([]interface{}) }

// Value returns the stored value of row i regardless of its mask
func (c *DataColumn) Value(i int) interface{} {
	return storedAt(c.Data, i)
}

// MaskAt returns the validity of row i
func (c *DataColumn) MaskAt(i int) Mask {
	return MaskAt(c.Mask, i)
}

// IsNumeric reports whether AsFloat64 is meaningful
func (c *DataColumn) IsNumeric() bool {
	switch c.Data.(type) {
	case []float64, []int64, []bool:
		return true
	}
	return false
}

// AsFloat64 widens numeric, temporal and boolean storage to float64.
// Float storage is returned without copying.
func (c *DataColumn) AsFloat64() ([]float64, error) {
	switch x := c.Data.(type) {
	case []float64:
		return x, nil
	case []int64:
		out := make([]float64, len(x))
		for i, v := range x {
			out[i] = float64(v)
		}
		return out, nil
	case []bool:
		out := make([]float64, len(x))
		for i, v := range x {
			if v {
				out[i] = 1
			}
		}
		return out, nil
	}
	return nil, fmt.Errorf("%s column is not numeric", c.FieldType.DataType())
}

// WithMask returns a column sharing data with a replaced mask
func (c *DataColumn) WithMask(mask []Mask) *DataColumn {
	return &DataColumn{FieldType: c.FieldType, Data: c.Data, Mask: NormalizeMask(mask)}
}

// Select keeps the rows where selection is true
func (c *DataColumn) Select(selection []bool) *DataColumn {
	count := 0
	for _, s := range selection {
		if s {
			count++
		}
	}
	data := c.FieldType.Storage().MakeData(count)
	var mask []Mask
	if c.Mask != nil {
		mask = make([]Mask, count)
	}
	j := 0
	for i, s := range selection {
		if !s {
			continue
		}
		setStored(data, j, storedAt(c.Data, i))
		if mask != nil {
			mask[j] = c.Mask[i]
		}
		j++
	}
	return &DataColumn{FieldType: c.FieldType, Data: data, Mask: NormalizeMask(mask)}
}

// Scatter writes rows of part into a copy of c at the positions where
// selection is true. part must have one row per selected position.
func (c *DataColumn) Scatter(selection []bool, part *DataColumn) *DataColumn {
	data := copyData(c.Data)
	mask := CopyMask(c.Mask, c.Len())
	j := 0
	for i, s := range selection {
		if !s {
			continue
		}
		setStored(data, i, storedAt(part.Data, j))
		mask[i] = MaskAt(part.Mask, j)
		j++
	}
	return &DataColumn{FieldType: c.FieldType, Data: data, Mask: NormalizeMask(mask)}
}

// Values renders the column through FromDataColumn
func (c *DataColumn) Values() []interface{} {
	return c.FieldType.FromDataColumn(c)
}

// DisplayStrings renders every row through display values; MISSING and INVALID rows
// become the mask name
func (c *DataColumn) DisplayStrings() []string {
	out := make([]string, c.Len())
	for i := range out {
		switch c.MaskAt(i) {
		case Valid:
			out[i] = c.FieldType.ValueToDisplay(c.Value(i))
		default:
			out[i] = c.MaskAt(i).String()
		}
	}
	return out
}

func (c *DataColumn) String() string {
	length := c.Len()
	shown := length
	if shown > 8 {
		shown = 8
	}
	parts := make([]string, 0, shown+1)
	for i := 0; i < shown; i++ {
		if m := c.MaskAt(i); m != Valid {
			parts = append(parts, m.String())
		} else {
			parts = append(parts, c.FieldType.ValueToString(c.Value(i)))
		}
	}
	if shown < length {
		parts = append(parts, "...")
	}
	return fmt.Sprintf("DataColumn(%s, %s, [%s])", c.FieldType.DataType(), c.FieldType.OpType(), strings.Join(parts, ", "))
}

// NaNToInvalid marks VALID rows holding NaN or infinite floats as INVALID
func NaNToInvalid(values []float64, mask []Mask) []Mask {
	for i, v := range values {
		if (math.IsNaN(v) || math.IsInf(v, 0)) && MaskAt(mask, i) == Valid {
			if mask == nil {
				mask = NewMask(len(values))
			}
			mask[i] = Invalid
		}
	}
	return mask
}

func dataLength(data interface{}) int {
	switch x := data.(type) {
	case []int64:
		return len(x)
	case []float64:
		return len(x)
	case []bool:
		return len(x)
	case []string:
		return len(x)
	case []interface{}:
		return len(x)
	}
	return 0
}

func storedAt(data interface{}, i int) interface{} {
	switch x := data.(type) {
	case []int64:
		return x[i]
	case []float64:
		return x[i]
	case []bool:
		return x[i]
	case []string:
		return x[i]
	case []interface{}:
		return x[i]
	}
	return nil
}

// setStored writes v, converting between the scalar storage kinds
func setStored(data interface{}, i int, v interface{}) {
	switch x := data.(type) {
	case []int64:
		x[i] = toInt64(v)
	case []float64:
		x[i] = toFloat64(v)
	case []bool:
		switch b := v.(type) {
		case bool:
			x[i] = b
		default:
			x[i] = toFloat64(v) != 0
		}
	case []string:
		if s, ok := v.(string); ok {
			x[i] = s
		} else if v != nil {
			x[i] = fmt.Sprint(v)
		}
	case []interface{}:
		x[i] = v
	}
}

func copyData(data interface{}) interface{} {
	switch x := data.(type) {
	case []int64:
		return append([]int64(nil), x...)
	case []float64:
		return append([]float64(nil), x...)
	case []bool:
		return append([]bool(nil), x...)
	case []string:
		return append([]string(nil), x...)
	case []interface{}:
		return append([]interface{}(nil), x...)
	}
	return data
}

// CopyData returns an independent copy of column storage
func CopyData(data interface{}) interface{} {
	return copyData(data)
}

// StoredAt reads row i of column storage
func StoredAt(data interface{}, i int) interface{} {
	return storedAt(data, i)
}

// SetStored writes row i of column storage
func SetStored(data interface{}, i int, v interface{}) {
	setStored(data, i, v)
}
