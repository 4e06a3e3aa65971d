package core

import (
	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"

	"augustus/vectorized"
)

// ArrowRecordInput converts the columns of an arrow record into DataTable
// inputs. Nulls become MISSING rows of the returned masks.
func ArrowRecordInput(record arrow.Record) (map[string]interface{}, map[string][]vectorized.Mask, error) {
	inputs := make(map[string]interface{}, record.NumCols())
	masks := make(map[string][]vectorized.Mask)
	schema := record.Schema()
	for i, field := range schema.Fields() {
		col := record.Column(i)
		length := col.Len()
		var data interface{}
		switch arr := col.(type) {
		case *array.Int64:
			data = append([]int64(nil), arr.Int64Values()...)
		case *array.Int32:
			values := make([]int64, length)
			for j := range values {
				values[j] = int64(arr.Value(j))
			}
			data = values
		case *array.Float64:
			data = append([]float64(nil), arr.Float64Values()...)
		case *array.Float32:
			values := make([]float64, length)
			for j := range values {
				values[j] = float64(arr.Value(j))
			}
			data = values
		case *array.Boolean:
			values := make([]bool, length)
			for j := range values {
				values[j] = arr.Value(j)
			}
			data = values
		case *array.String:
			values := make([]string, length)
			for j := range values {
				values[j] = arr.Value(j)
			}
			data = values
		case *array.Timestamp:
			unit := field.Type.(*arrow.TimestampType).Unit
			values := make([]interface{}, length)
			for j := range values {
				if arr.IsValid(j) {
					values[j] = arr.Value(j).ToTime(unit)
				}
			}
			data = values
		default:
			return nil, nil, NewValidationError("arrow column %q has unsupported type %s", field.Name, field.Type)
		}
		if col.NullN() > 0 {
			mask := vectorized.NewMask(length)
			for j := range mask {
				if col.IsNull(j) {
					mask[j] = vectorized.Missing
				}
			}
			masks[field.Name] = mask
		}
		inputs[field.Name] = data
	}
	return inputs, masks, nil
}

// ArrowDataTypes maps each record column to the PMML dataType it
// ingests as
func ArrowDataTypes(schema *arrow.Schema) map[string]string {
	out := make(map[string]string)
	for _, f := range schema.Fields() {
		switch f.Type.ID() {
		case arrow.INT32, arrow.INT64:
			out[f.Name] = "integer"
		case arrow.FLOAT32, arrow.FLOAT64:
			out[f.Name] = "double"
		case arrow.BOOL:
			out[f.Name] = "boolean"
		case arrow.TIMESTAMP:
			out[f.Name] = "dateTime"
		default:
			out[f.Name] = "string"
		}
	}
	return out
}
