package vectorized

import "fmt"

// InvalidValueTreatment is the policy applied to INVALID rows
type InvalidValueTreatment int

const (
	ReturnInvalid InvalidValueTreatment = iota
	AsIs
	AsMissing
	Fatal
)

// ParseInvalidValueTreatment maps the PMML spelling; empty means returnInvalid
func ParseInvalidValueTreatment(name string) (InvalidValueTreatment, error) {
	switch name {
	case "", "returnInvalid":
		return ReturnInvalid, nil
	case "asIs":
		return AsIs, nil
	case "asMissing":
		return AsMissing, nil
	case "fatal":
		return Fatal, nil
	}
	return ReturnInvalid, fmt.Errorf("unrecognized invalidValueTreatment: %s", name)
}

// InvalidRowError is returned by the fatal invalid-value policy
type InvalidRowError struct {
	Row int
}

func (e *InvalidRowError) Error() string {
	return fmt.Sprintf("invalid value in row %d", e.Row)
}

// Cast converts a column to a new field type. A column that already has
// the target type is returned unchanged, as is an ordinal string column
// cast to another ordinal string type (re-casting would lose its order).
// Otherwise each row is converted; rows that do not fit the target become
// INVALID and rows already MISSING or INVALID keep their state.
func Cast(target *FieldType, col *DataColumn) *DataColumn {
	source := col.FieldType
	if source.Equal(target) {
		return col
	}
	if target.IsOrdinalString() && source.IsOrdinalString() {
		return col
	}

	length := col.Len()
	items := make([]interface{}, length)
	for i := 0; i < length; i++ {
		if col.MaskAt(i) != Valid {
			continue
		}
		v := col.Value(i)
		switch {
		case target.dataType == STRING:
			items[i] = source.ValueToString(v)
		case target.dataType.IsTemporal() && source.dataType.IsTemporal():
			items[i] = MicrosToTime(toInt64(v))
		default:
			items[i] = source.ValueToNative(v)
		}
	}
	return target.fromItems(items, col.Mask)
}

// ApplyInvalidValueTreatment rewrites INVALID rows according to policy.
// The input mask is never modified; when nothing changes it is returned as is.
func ApplyInvalidValueTreatment(mask []Mask, policy InvalidValueTreatment) ([]Mask, error) {
	if mask == nil {
		return nil, nil
	}
	switch policy {
	case AsMissing:
		var out []Mask
		for i, m := range mask {
			if m == Invalid {
				if out == nil {
					out = CopyMask(mask, len(mask))
				}
				out[i] = Missing
			}
		}
		if out == nil {
			return mask, nil
		}
		return out, nil
	case Fatal:
		for i, m := range mask {
			if m == Invalid {
				return mask, &InvalidRowError{Row: i}
			}
		}
	}
	return mask, nil
}

// ApplyMapMissingTo fills MISSING rows with the replacement literal and
// marks them VALID. INVALID rows are untouched. data and mask are copied
// before writing; with nothing to replace they are returned as is.
func ApplyMapMissingTo(fieldType *FieldType, data interface{}, mask []Mask, mapMissingTo *string) (interface{}, []Mask, error) {
	if mask == nil || mapMissingTo == nil {
		return data, mask, nil
	}
	replacement, err := fieldType.StringToValue(*mapMissingTo)
	if err != nil {
		return nil, nil, fmt.Errorf("mapMissingTo string %q cannot be cast as %s: %v", *mapMissingTo, fieldType, err)
	}

	var newData interface{}
	var newMask []Mask
	for i, m := range mask {
		if m != Missing {
			continue
		}
		if newData == nil {
			newData = copyData(data)
			newMask = CopyMask(mask, len(mask))
		}
		setStored(newData, i, replacement)
		newMask[i] = Valid
	}
	if newData == nil {
		return data, mask, nil
	}
	return newData, NormalizeMask(newMask), nil
}

// OutliersAsMissing marks the selected rows MISSING, leaving rows that are
// already MISSING or INVALID alone. When mask is still originalMask it is
// copied first; a mask that was already copied is updated in place.
func OutliersAsMissing(mask, originalMask []Mask, selection []bool) []Mask {
	if mask == nil {
		return MaskFromBools(selection, Missing)
	}
	if sameBacking(mask, originalMask) {
		mask = CopyMask(mask, len(mask))
	}
	for i, s := range selection {
		if s && mask[i] == Valid {
			mask[i] = Missing
		}
	}
	return mask
}

func sameBacking(a, b []Mask) bool {
	return len(a) > 0 && len(b) > 0 && &a[0] == &b[0]
}
