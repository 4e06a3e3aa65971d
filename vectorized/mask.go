package vectorized

// Mask is the per-row validity state of a DataColumn.
// Valid must stay the zero value: code throughout the engine tests
// "mask[i] != Valid" to find bad rows.
type Mask uint8

const (
	Valid Mask = iota
	Missing
	Invalid
)

// String returns the string representation of Mask
func (m Mask) String() string {
	switch m {
	case Valid:
		return "VALID"
	case Missing:
		return "MISSING"
	case Invalid:
		return "INVALID"
	default:
		return "UNKNOWN"
	}
}

// NewMask allocates an all-valid mask of the given length
func NewMask(length int) []Mask {
	return make([]Mask, length)
}

// FilledMask allocates a mask with every row set to state
func FilledMask(length int, state Mask) []Mask {
	mask := make([]Mask, length)
	if state != Valid {
		for i := range mask {
			mask[i] = state
		}
	}
	return mask
}

// CopyMask returns an independent copy, or an all-valid mask when mask is nil
func CopyMask(mask []Mask, length int) []Mask {
	out := make([]Mask, length)
	copy(out, mask)
	return out
}

// AnyNonValid reports whether any row is MISSING or INVALID
func AnyNonValid(mask []Mask) bool {
	for _, m := range mask {
		if m != Valid {
			return true
		}
	}
	return false
}

// NormalizeMask returns nil when every row is valid
func NormalizeMask(mask []Mask) []Mask {
	if !AnyNonValid(mask) {
		return nil
	}
	return mask
}

// MaskAt reads a possibly-nil mask
func MaskAt(mask []Mask, i int) Mask {
	if mask == nil {
		return Valid
	}
	return mask[i]
}

// ValidRows returns a boolean selection of the VALID rows
func ValidRows(mask []Mask, length int) []bool {
	out := make([]bool, length)
	for i := range out {
		out[i] = mask == nil || mask[i] == Valid
	}
	return out
}

// MaskFromBools marks every true row with state; returns nil if nothing is set
func MaskFromBools(selection []bool, state Mask) []Mask {
	var mask []Mask
	for i, s := range selection {
		if s {
			if mask == nil {
				mask = make([]Mask, len(selection))
			}
			mask[i] = state
		}
	}
	return mask
}

// MapAnyMissingInvalid merges masks row by row. INVALID takes precedence
// over MISSING. Returns nil when every input is nil.
func MapAnyMissingInvalid(masks ...[]Mask) []Mask {
	var out []Mask
	for _, mask := range masks {
		if mask == nil {
			continue
		}
		if out == nil {
			out = make([]Mask, len(mask))
			copy(out, mask)
			continue
		}
		for i, m := range mask {
			if m == Invalid {
				out[i] = Invalid
			} else if m == Missing && out[i] == Valid {
				out[i] = Missing
			}
		}
	}
	return out
}
