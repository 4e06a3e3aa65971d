package vectorized

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

// ValueProperty is the property attribute of a PMML <Value>
type ValueProperty int

const (
	PropertyValid ValueProperty = iota
	PropertyInvalid
	PropertyMissing
)

// ParseValueProperty maps the PMML spelling; empty means valid
func ParseValueProperty(name string) (ValueProperty, error) {
	switch name {
	case "", "valid":
		return PropertyValid, nil
	case "invalid":
		return PropertyInvalid, nil
	case "missing":
		return PropertyMissing, nil
	}
	return PropertyValid, fmt.Errorf("unrecognized Value property: %s", name)
}

// FieldValue is one declared <Value> of a field
type FieldValue struct {
	Value        string
	DisplayValue string
	Property     ValueProperty
}

// Closure is the closure attribute of an Interval
type Closure int

const (
	OpenClosed Closure = iota
	OpenOpen
	ClosedOpen
	ClosedClosed
)

// ParseClosure maps the PMML spelling of an interval closure
func ParseClosure(name string) (Closure, error) {
	switch name {
	case "openClosed":
		return OpenClosed, nil
	case "openOpen":
		return OpenOpen, nil
	case "closedOpen":
		return ClosedOpen, nil
	case "closedClosed":
		return ClosedClosed, nil
	}
	return OpenOpen, fmt.Errorf("unrecognized Interval closure: %s", name)
}

func (c Closure) String() string {
	return [...]string{"openClosed", "openOpen", "closedOpen", "closedClosed"}[c]
}

// Interval is a declared legal range; a nil margin is unbounded
type Interval struct {
	Closure     Closure
	LeftMargin  *string
	RightMargin *string
}

func (iv Interval) contains(ft *FieldType, value interface{}, left, right interface{}) bool {
	if left != nil {
		c := ft.Compare(value, left)
		if iv.Closure == OpenClosed || iv.Closure == OpenOpen {
			if c <= 0 {
				return false
			}
		} else if c < 0 {
			return false
		}
	}
	if right != nil {
		c := ft.Compare(value, right)
		if iv.Closure == OpenOpen || iv.Closure == ClosedOpen {
			if c >= 0 {
				return false
			}
		} else if c > 0 {
			return false
		}
	}
	return true
}

// FieldType describes how a column is typed, which values are legal and
// how values convert to and from their PMML string form. FieldTypes are
// immutable once built.
type FieldType struct {
	dataType  DataType
	optype    OpType
	values    []FieldValue
	intervals []Interval
	isCyclic  bool

	display        map[string]string
	declared       map[interface{}]ValueProperty
	numberOfValid  int
	ordinalRank    map[string]int
	intervalBounds [][2]interface{}
}

// NewFieldType builds a field type with no declared values or intervals.
// It is used for casts, intermediate results and outputs.
func NewFieldType(dataType DataType, optype OpType) *FieldType {
	return &FieldType{dataType: dataType, optype: optype}
}

// ParseFieldType builds an undeclared field type from PMML attribute strings
func ParseFieldType(dataType, optype string) (*FieldType, error) {
	dt, err := ParseDataType(dataType)
	if err != nil {
		return nil, err
	}
	ot, err := ParseOpType(optype)
	if err != nil {
		return nil, err
	}
	return NewFieldType(dt, ot), nil
}

// NewDeclaredFieldType builds the field type of a DataField or DerivedField
// with its <Value> and <Interval> declarations. Every literal is parsed up
// front so that later checks cannot fail.
func NewDeclaredFieldType(dataType DataType, optype OpType, values []FieldValue, intervals []Interval, isCyclic bool) (*FieldType, error) {
	if optype != CONTINUOUS && len(intervals) > 0 {
		return nil, fmt.Errorf("non-continuous fields cannot have Intervals")
	}

	ft := &FieldType{
		dataType:  dataType,
		optype:    optype,
		values:    append([]FieldValue(nil), values...),
		intervals: append([]Interval(nil), intervals...),
		isCyclic:  isCyclic,
	}

	if len(values) > 0 {
		ft.display = make(map[string]string)
		ft.declared = make(map[interface{}]ValueProperty)
	}
	if dataType == STRING && optype == ORDINAL {
		ft.ordinalRank = make(map[string]int)
	}

	for _, v := range values {
		if v.DisplayValue != "" {
			ft.display[v.Value] = v.DisplayValue
		}
		parsed, err := ft.parseLiteral(v.Value)
		if err != nil {
			return nil, fmt.Errorf("improper value in Value definition: %q", v.Value)
		}
		ft.declared[parsed] = v.Property
		if v.Property == PropertyValid {
			ft.numberOfValid++
			if ft.ordinalRank != nil {
				if _, seen := ft.ordinalRank[v.Value]; !seen {
					ft.ordinalRank[v.Value] = len(ft.ordinalRank)
				}
			}
		}
	}
	if ft.ordinalRank != nil && len(ft.ordinalRank) == 0 {
		ft.ordinalRank = nil
	}

	for _, iv := range intervals {
		var bounds [2]interface{}
		if iv.LeftMargin != nil {
			left, err := ft.parseLiteral(*iv.LeftMargin)
			if err != nil {
				return nil, fmt.Errorf("improper value in Interval leftMargin: %q", *iv.LeftMargin)
			}
			bounds[0] = left
		}
		if iv.RightMargin != nil {
			right, err := ft.parseLiteral(*iv.RightMargin)
			if err != nil {
				return nil, fmt.Errorf("improper value in Interval rightMargin: %q", *iv.RightMargin)
			}
			bounds[1] = right
		}
		ft.intervalBounds = append(ft.intervalBounds, bounds)
	}

	return ft, nil
}

func (ft *FieldType) DataType() DataType      { return ft.dataType }
func (ft *FieldType) OpType() OpType          { return ft.optype }
func (ft *FieldType) Values() []FieldValue    { return ft.values }
func (ft *FieldType) Intervals() []Interval   { return ft.intervals }
func (ft *FieldType) IsCyclic() bool          { return ft.isCyclic }
func (ft *FieldType) Storage() StorageKind    { return ft.dataType.Storage() }
func (ft *FieldType) HasDeclaredValues() bool { return len(ft.values) > 0 }

// IsOrdinalString reports a string field ordered by declaration
func (ft *FieldType) IsOrdinalString() bool {
	return ft.dataType == STRING && ft.optype == ORDINAL
}

func (ft *FieldType) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "FieldType(dataType=%s, optype=%s", ft.dataType, ft.optype)
	if len(ft.values) > 0 {
		fmt.Fprintf(&b, ", values=%d", len(ft.values))
	}
	if len(ft.intervals) > 0 {
		fmt.Fprintf(&b, ", intervals=%d", len(ft.intervals))
	}
	if ft.isCyclic {
		b.WriteString(", cyclic")
	}
	b.WriteString(")")
	return b.String()
}

// Equal compares dataType, optype, values, intervals and isCyclic
func (ft *FieldType) Equal(other *FieldType) bool {
	if ft == other {
		return true
	}
	if ft == nil || other == nil {
		return false
	}
	if ft.dataType != other.dataType || ft.optype != other.optype || ft.isCyclic != other.isCyclic {
		return false
	}
	if len(ft.values) != len(other.values) || len(ft.intervals) != len(other.intervals) {
		return false
	}
	for i := range ft.values {
		if ft.values[i] != other.values[i] {
			return false
		}
	}
	for i := range ft.intervals {
		a, b := ft.intervals[i], other.intervals[i]
		if a.Closure != b.Closure || !sameMargin(a.LeftMargin, b.LeftMargin) || !sameMargin(a.RightMargin, b.RightMargin) {
			return false
		}
	}
	return true
}

func sameMargin(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// SameKind compares only dataType and optype
func (ft *FieldType) SameKind(other *FieldType) bool {
	return ft.dataType == other.dataType && ft.optype == other.optype
}

// parseLiteral converts without consulting declared values
func (ft *FieldType) parseLiteral(s string) (interface{}, error) {
	switch ft.dataType {
	case STRING:
		return s, nil
	case OBJECT:
		return s, nil
	case INTEGER, INT64:
		v, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid literal for integer: %q", s)
		}
		return v, nil
	case FLOAT:
		v, err := strconv.ParseFloat(strings.TrimSpace(s), 32)
		if err != nil {
			return nil, fmt.Errorf("invalid literal for float: %q", s)
		}
		return v, nil
	case DOUBLE:
		v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid literal for double: %q", s)
		}
		return v, nil
	case BOOLEAN:
		switch strings.TrimSpace(s) {
		case "true", "1":
			return true, nil
		case "false", "0":
			return false, nil
		}
		return nil, fmt.Errorf("invalid literal for XML boolean: %q", s)
	case DATE:
		return parseISODate(s)
	case TIME:
		return parseISOTime(s)
	case DATETIME:
		return parseISODateTime(s)
	default:
		v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid literal for %s: %q", ft.dataType, s)
		}
		offset, factor := ft.dataType.numericEpoch()
		return int64(math.Round(v*float64(factor))) + offset, nil
	}
}

// StringToValue converts a PMML string literal to the internal value.
// Categorical and ordinal strings with declared valid values reject
// anything undeclared.
func (ft *FieldType) StringToValue(s string) (interface{}, error) {
	v, err := ft.parseLiteral(s)
	if err != nil {
		return nil, err
	}
	if ft.dataType == STRING && ft.optype != CONTINUOUS && ft.numberOfValid > 0 {
		if prop, ok := ft.declared[v]; !ok || prop != PropertyValid {
			return nil, fmt.Errorf("invalid value for %s string: %q", ft.optype, s)
		}
	}
	return v, nil
}

// ValueToString renders an internal value as its PMML string literal
func (ft *FieldType) ValueToString(v interface{}) string {
	switch ft.dataType {
	case STRING:
		if s, ok := v.(string); ok {
			return s
		}
		return fmt.Sprint(v)
	case INTEGER, INT64:
		return strconv.FormatInt(toInt64(v), 10)
	case FLOAT:
		return FormatFloat(toFloat64(v), 32)
	case DOUBLE:
		return FormatFloat(toFloat64(v), 64)
	case BOOLEAN:
		if b, _ := v.(bool); b {
			return "true"
		}
		return "false"
	case DATE:
		return formatDate(toInt64(v))
	case TIME:
		return formatTime(toInt64(v))
	case DATETIME:
		return formatDateTime(toInt64(v))
	case OBJECT:
		return fmt.Sprint(v)
	default:
		return FormatFloat(ft.epochNumber(toInt64(v)), 64)
	}
}

// ValueToDisplay renders a value, substituting a declared displayValue
func (ft *FieldType) ValueToDisplay(v interface{}) string {
	s := ft.ValueToString(v)
	if d, ok := ft.display[s]; ok {
		return d
	}
	return s
}

// ValueToNative converts an internal value to a plain Go value:
// time.Time for date, time and dateTime, float64 for the numeric
// epoch types, and the stored value otherwise.
func (ft *FieldType) ValueToNative(v interface{}) interface{} {
	switch {
	case ft.dataType == DATE || ft.dataType == DATETIME || ft.dataType == TIME:
		return MicrosToTime(toInt64(v))
	case ft.dataType.isNumericEpoch():
		return ft.epochNumber(toInt64(v))
	}
	return v
}

func (ft *FieldType) epochNumber(us int64) float64 {
	offset, factor := ft.dataType.numericEpoch()
	if ft.dataType == TIMESECONDS {
		return float64(floorMod(us-offset, MicrosPerDay)) / float64(factor)
	}
	return float64(us-offset) / float64(factor)
}

// Compare orders two internal values. Ordinal strings follow the
// declared Value order when there is one, otherwise lexical order.
func (ft *FieldType) Compare(a, b interface{}) int {
	switch x := a.(type) {
	case string:
		y, _ := b.(string)
		if ft.ordinalRank != nil {
			ra, oka := ft.ordinalRank[x]
			rb, okb := ft.ordinalRank[y]
			if oka && okb {
				return compareInts(int64(ra), int64(rb))
			}
		}
		return strings.Compare(x, y)
	case bool:
		y, _ := b.(bool)
		switch {
		case x == y:
			return 0
		case !x:
			return -1
		default:
			return 1
		}
	case int64:
		if y, ok := b.(int64); ok {
			return compareInts(x, y)
		}
		return compareFloats(float64(x), toFloat64(b))
	case float64:
		return compareFloats(x, toFloat64(b))
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

// Rank returns the declared position of an ordinal string, or -1
func (ft *FieldType) Rank(s string) int {
	if ft.ordinalRank == nil {
		return -1
	}
	if r, ok := ft.ordinalRank[s]; ok {
		return r
	}
	return -1
}

// OrdinalOrder lists the declared valid values of an ordinal string field
// in rank order
func (ft *FieldType) OrdinalOrder() []string {
	out := make([]string, 0, len(ft.ordinalRank))
	for s := range ft.ordinalRank {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return ft.ordinalRank[out[i]] < ft.ordinalRank[out[j]] })
	return out
}

func compareInts(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func compareFloats(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// FormatFloat renders a float without exponent notation for ordinary
// magnitudes, using the shortest representation that round-trips
func FormatFloat(v float64, bitSize int) string {
	switch {
	case math.IsNaN(v):
		return "NaN"
	case math.IsInf(v, 1):
		return "Infinity"
	case math.IsInf(v, -1):
		return "-Infinity"
	}
	abs := math.Abs(v)
	if abs == 0 || (abs >= 1e-4 && abs < 1e21) {
		return strconv.FormatFloat(v, 'f', -1, bitSize)
	}
	return strconv.FormatFloat(v, 'g', -1, bitSize)
}

func isMissingLiteral(s string) bool {
	t := strings.TrimSpace(s)
	return t == "" || strings.EqualFold(t, "nan")
}

// coerce converts one raw Go value into this field type's storage
func (ft *FieldType) coerce(v interface{}) (interface{}, Mask) {
	if v == nil {
		return nil, Missing
	}
	switch x := v.(type) {
	case float64:
		if math.IsNaN(x) {
			return nil, Missing
		}
	case float32:
		if math.IsNaN(float64(x)) {
			return nil, Missing
		}
	}

	switch ft.dataType {
	case STRING:
		switch x := v.(type) {
		case string:
			return x, Valid
		case float64:
			return FormatFloat(x, 64), Valid
		case float32:
			return FormatFloat(float64(x), 32), Valid
		case bool:
			if x {
				return "true", Valid
			}
			return "false", Valid
		case time.Time:
			return x.UTC().Format("2006-01-02T15:04:05.999999"), Valid
		}
		return fmt.Sprint(v), Valid

	case OBJECT:
		return v, Valid

	case INTEGER, INT64:
		if s, ok := v.(string); ok {
			if isMissingLiteral(s) {
				return nil, Missing
			}
			if i, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64); err == nil {
				return i, Valid
			}
			f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
			if err != nil {
				return nil, Invalid
			}
			v = f
		}
		f, isFloat, ok := numericValue(v)
		if !ok {
			return nil, Invalid
		}
		if isFloat {
			if math.IsInf(f, 0) || f != math.Trunc(f) {
				return nil, Invalid
			}
			return int64(f), Valid
		}
		return toInt64(v), Valid

	case FLOAT, DOUBLE:
		var f float64
		if s, ok := v.(string); ok {
			if isMissingLiteral(s) {
				return nil, Missing
			}
			parsed, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
			if err != nil {
				return nil, Invalid
			}
			f = parsed
		} else {
			n, _, ok := numericValue(v)
			if !ok {
				return nil, Invalid
			}
			f = n
		}
		if ft.dataType == FLOAT {
			f = float64(float32(f))
		}
		return f, Valid

	case BOOLEAN:
		switch x := v.(type) {
		case bool:
			return x, Valid
		case string:
			if isMissingLiteral(x) {
				return nil, Missing
			}
			switch strings.TrimSpace(x) {
			case "true", "1":
				return true, Valid
			case "false", "0":
				return false, Valid
			}
			return nil, Invalid
		}
		f, _, ok := numericValue(v)
		if !ok {
			return nil, Invalid
		}
		return f != 0, Valid

	case DATE, TIME, DATETIME:
		switch x := v.(type) {
		case time.Time:
			us := TimeToMicros(x)
			switch ft.dataType {
			case DATE:
				return us - floorMod(us, MicrosPerDay), Valid
			case TIME:
				return floorMod(us, MicrosPerDay), Valid
			}
			return us, Valid
		case string:
			if isMissingLiteral(x) {
				return nil, Missing
			}
			us, err := ft.parseLiteral(x)
			if err != nil {
				return nil, Invalid
			}
			return us, Valid
		}
		return nil, Invalid

	default:
		offset, factor := ft.dataType.numericEpoch()
		switch x := v.(type) {
		case time.Time:
			return TimeToMicros(x), Valid
		case string:
			if isMissingLiteral(x) {
				return nil, Missing
			}
			us, err := ft.parseLiteral(x)
			if err != nil {
				return nil, Invalid
			}
			return us, Valid
		}
		f, _, ok := numericValue(v)
		if !ok || math.IsInf(f, 0) {
			return nil, Invalid
		}
		return int64(math.Round(f*float64(factor))) + offset, Valid
	}
}

// numericValue widens any Go number or bool to float64
func numericValue(v interface{}) (f float64, isFloat bool, ok bool) {
	switch x := v.(type) {
	case float64:
		return x, true, true
	case float32:
		return float64(x), true, true
	case int:
		return float64(x), false, true
	case int8:
		return float64(x), false, true
	case int16:
		return float64(x), false, true
	case int32:
		return float64(x), false, true
	case int64:
		return float64(x), false, true
	case uint:
		return float64(x), false, true
	case uint8:
		return float64(x), false, true
	case uint16:
		return float64(x), false, true
	case uint32:
		return float64(x), false, true
	case uint64:
		return float64(x), false, true
	case bool:
		if x {
			return 1, false, true
		}
		return 0, false, true
	}
	return 0, false, false
}

func toInt64(v interface{}) int64 {
	switch x := v.(type) {
	case int64:
		return x
	case int:
		return int64(x)
	case int32:
		return int64(x)
	case int16:
		return int64(x)
	case int8:
		return int64(x)
	case uint8:
		return int64(x)
	case uint16:
		return int64(x)
	case uint32:
		return int64(x)
	case uint64:
		return int64(x)
	case uint:
		return int64(x)
	case float64:
		return int64(x)
	case float32:
		return int64(x)
	case bool:
		if x {
			return 1
		}
	}
	return 0
}

func toFloat64(v interface{}) float64 {
	f, _, _ := numericValue(v)
	return f
}

// ToDataColumn ingests raw Go values. nil, NaN and empty or "NaN" strings
// (for non-string types) become MISSING, values that cannot be converted
// become INVALID, and the declared values and intervals are then applied.
// Rows already MISSING or INVALID in mask keep their state.
func (ft *FieldType) ToDataColumn(raw interface{}, mask []Mask) (*DataColumn, error) {
	items, err := toInterfaces(raw)
	if err != nil {
		return nil, err
	}
	if mask != nil && len(mask) != len(items) {
		return nil, fmt.Errorf("mask has length %d but data has length %d", len(mask), len(items))
	}
	return ft.fromItems(items, mask), nil
}

func (ft *FieldType) fromItems(items []interface{}, mask []Mask) *DataColumn {
	length := len(items)
	data := ft.Storage().MakeData(length)
	var out []Mask

	for i, item := range items {
		if m := MaskAt(mask, i); m != Valid {
			if out == nil {
				out = NewMask(length)
			}
			out[i] = m
			continue
		}
		value, m := ft.coerce(item)
		if m != Valid {
			if out == nil {
				out = NewMask(length)
			}
			out[i] = m
			continue
		}
		setStored(data, i, value)
	}

	out = ft.checkValues(data, out)
	out = ft.checkIntervals(data, out)
	return &DataColumn{FieldType: ft, Data: data, Mask: NormalizeMask(out)}
}

// checkValues applies declared <Value> properties. When any valid value is
// declared, every VALID row must match one of them.
func (ft *FieldType) checkValues(data interface{}, mask []Mask) []Mask {
	if len(ft.declared) == 0 {
		return mask
	}
	length := dataLength(data)
	for i := 0; i < length; i++ {
		if MaskAt(mask, i) != Valid {
			continue
		}
		prop, ok := ft.declared[storedAt(data, i)]
		var state Mask
		switch {
		case ok && prop == PropertyMissing:
			state = Missing
		case ok && prop == PropertyInvalid:
			state = Invalid
		case ft.numberOfValid > 0 && !(ok && prop == PropertyValid):
			state = Invalid
		default:
			continue
		}
		if mask == nil {
			mask = NewMask(length)
		}
		mask[i] = state
	}
	return mask
}

// checkIntervals marks VALID rows that fall in none of the declared
// intervals as INVALID
func (ft *FieldType) checkIntervals(data interface{}, mask []Mask) []Mask {
	if len(ft.intervals) == 0 {
		return mask
	}
	length := dataLength(data)
	for i := 0; i < length; i++ {
		if MaskAt(mask, i) != Valid {
			continue
		}
		value := storedAt(data, i)
		inside := false
		for j, iv := range ft.intervals {
			if iv.contains(ft, value, ft.intervalBounds[j][0], ft.intervalBounds[j][1]) {
				inside = true
				break
			}
		}
		if !inside {
			if mask == nil {
				mask = NewMask(length)
			}
			mask[i] = Invalid
		}
	}
	return mask
}

// FromDataColumn renders a column as native Go values: nil for INVALID,
// NaN for MISSING and ValueToNative otherwise
func (ft *FieldType) FromDataColumn(col *DataColumn) []interface{} {
	out := make([]interface{}, col.Len())
	for i := range out {
		switch MaskAt(col.Mask, i) {
		case Valid:
			out[i] = ft.ValueToNative(col.Value(i))
		case Missing:
			out[i] = math.NaN()
		default:
			out[i] = nil
		}
	}
	return out
}

func toInterfaces(raw interface{}) ([]interface{}, error) {
	switch x := raw.(type) {
	case []interface{}:
		return x, nil
	case []float64:
		out := make([]interface{}, len(x))
		for i, v := range x {
			out[i] = v
		}
		return out, nil
	case []float32:
		out := make([]interface{}, len(x))
		for i, v := range x {
			out[i] = v
		}
		return out, nil
	case []int64:
		out := make([]interface{}, len(x))
		for i, v := range x {
			out[i] = v
		}
		return out, nil
	case []int32:
		out := make([]interface{}, len(x))
		for i, v := range x {
			out[i] = v
		}
		return out, nil
	case []int:
		out := make([]interface{}, len(x))
		for i, v := range x {
			out[i] = v
		}
		return out, nil
	case []string:
		out := make([]interface{}, len(x))
		for i, v := range x {
			out[i] = v
		}
		return out, nil
	case []bool:
		out := make([]interface{}, len(x))
		for i, v := range x {
			out[i] = v
		}
		return out, nil
	case []time.Time:
		out := make([]interface{}, len(x))
		for i, v := range x {
			out[i] = v
		}
		return out, nil
	}
	return nil, fmt.Errorf("unsupported input array type %T", raw)
}
