package core

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"augustus/vectorized"
)

// Fields is an ordered name -> DataColumn namespace. Every column it holds
// has the same number of rows.
type Fields struct {
	length  int
	names   []string
	columns map[string]*vectorized.DataColumn
}

// NewFields creates an empty namespace for columns of length rows
func NewFields(length int) *Fields {
	return &Fields{length: length, columns: make(map[string]*vectorized.DataColumn)}
}

func (f *Fields) checkLength(name string, col *vectorized.DataColumn) error {
	if col.Len() != f.length {
		return NewValidationError("field %q has %d rows but the table has %d", name, col.Len(), f.length)
	}
	return nil
}

// Get returns a field or a ValidationError naming it
func (f *Fields) Get(name string) (*vectorized.DataColumn, error) {
	col, ok := f.columns[name]
	if !ok {
		return nil, NewValidationError("field %q does not exist in the DataTable; perhaps it was not provided as input or is defined later in the document", name)
	}
	return col, nil
}

// Lookup returns a field and whether it exists
func (f *Fields) Lookup(name string) (*vectorized.DataColumn, bool) {
	col, ok := f.columns[name]
	return col, ok
}

// Has reports whether name is defined
func (f *Fields) Has(name string) bool {
	_, ok := f.columns[name]
	return ok
}

// Set adds a new field. Existing fields cannot be overshadowed.
func (f *Fields) Set(name string, col *vectorized.DataColumn) error {
	if _, ok := f.columns[name]; ok {
		return NewValidationError("field %q already exists; it cannot be overshadowed by another field with the same name", name)
	}
	if err := f.checkLength(name, col); err != nil {
		return err
	}
	f.names = append(f.names, name)
	f.columns[name] = col
	return nil
}

// Replace swaps the column of an existing field
func (f *Fields) Replace(name string, col *vectorized.DataColumn) error {
	if _, ok := f.columns[name]; !ok {
		return NewValidationError("field %q does not exist in the DataTable", name)
	}
	if err := f.checkLength(name, col); err != nil {
		return err
	}
	f.columns[name] = col
	return nil
}

// Bind sets or replaces a field
func (f *Fields) Bind(name string, col *vectorized.DataColumn) error {
	if f.Has(name) {
		return f.Replace(name, col)
	}
	return f.Set(name, col)
}

// Names lists fields in insertion order
func (f *Fields) Names() []string {
	return append([]string(nil), f.names...)
}

// Count returns the number of fields
func (f *Fields) Count() int {
	return len(f.names)
}

// Len returns the number of rows
func (f *Fields) Len() int {
	return f.length
}

func (f *Fields) String() string {
	quoted := make([]string, len(f.names))
	for i, n := range f.names {
		quoted[i] = strconv.Quote(n)
	}
	return fmt.Sprintf("<Fields %d rows; %s>", f.length, strings.Join(quoted, " "))
}

// DataTable is the unit of calculation: named input and derived fields,
// the outputs requested by models, the running state shared across
// calculations and the score of the last model calculated.
type DataTable struct {
	length int

	Fields *Fields
	Output *Fields
	State  *DataTableState

	// Score is the predicted value of the only top-level model; with
	// several top-level models it is nil and Scores holds one per model.
	Score  *vectorized.DataColumn
	Scores []*vectorized.DataColumn
}

// NewDataTable creates an empty table of length rows with a fresh state
func NewDataTable(length int) *DataTable {
	return &DataTable{
		length: length,
		Fields: NewFields(length),
		Output: NewFields(length),
		State:  NewDataTableState(),
	}
}

// FieldDeclaration names the FieldType of one input column
type FieldDeclaration struct {
	Name string
	Type *vectorized.FieldType
}

// BuildDataTable ingests raw input columns through their declared types.
// Declared names absent from inputs are skipped, and inputs nobody
// declared are ignored. All present inputs must have the same length.
// A nil state starts a new one.
func BuildDataTable(declarations []FieldDeclaration, inputs map[string]interface{}, masks map[string][]vectorized.Mask, state *DataTableState) (*DataTable, error) {
	tracer := GetTracer()
	var table *DataTable
	for _, decl := range declarations {
		raw, ok := inputs[decl.Name]
		if !ok {
			continue
		}
		col, err := decl.Type.ToDataColumn(raw, masks[decl.Name])
		if err != nil {
			return nil, &DataIngestError{Field: decl.Name, Message: fmt.Sprintf("field %q: %v", decl.Name, err)}
		}
		if table == nil {
			table = NewDataTable(col.Len())
		}
		if col.Len() != table.length {
			return nil, &DataIngestError{Field: decl.Name, Message: fmt.Sprintf("field %q has %d rows but other inputs have %d", decl.Name, col.Len(), table.length)}
		}
		if err := table.Fields.Set(decl.Name, col); err != nil {
			return nil, err
		}
		tracer.Verbose(TraceComponentInput, "Ingested field", TraceContext("field", decl.Name, "type", decl.Type.String(), "rows", col.Len()))
	}
	if table == nil {
		table = NewDataTable(0)
	}
	if state != nil {
		table.State = state
	}
	return table, nil
}

// DeclarationsFromDataTypes builds undeclared field types from dataType
// names: strings become categorical, everything else continuous
func DeclarationsFromDataTypes(names []string, dataTypes map[string]string) ([]FieldDeclaration, error) {
	out := make([]FieldDeclaration, 0, len(names))
	for _, name := range names {
		dt, err := vectorized.ParseDataType(dataTypes[name])
		if err != nil {
			return nil, NewValidationError("field %q: %v", name, err)
		}
		optype := vectorized.CONTINUOUS
		if dt == vectorized.STRING {
			optype = vectorized.CATEGORICAL
		}
		out = append(out, FieldDeclaration{Name: name, Type: vectorized.NewFieldType(dt, optype)})
	}
	return out, nil
}

// Len returns the number of rows
func (dt *DataTable) Len() int {
	return dt.length
}

// Field is shorthand for dt.Fields.Get
func (dt *DataTable) Field(name string) (*vectorized.DataColumn, error) {
	return dt.Fields.Get(name)
}

// SubTable returns a child table whose fields are copies of the parent's
// namespace, filtered to the selected rows when selection is non-nil.
// Fields added to the child do not appear in the parent. The state is
// shared; output and score start empty.
func (dt *DataTable) SubTable(selection []bool) *DataTable {
	length := dt.length
	if selection != nil {
		length = 0
		for _, s := range selection {
			if s {
				length++
			}
		}
	}
	sub := &DataTable{
		length: length,
		Fields: NewFields(length),
		Output: NewFields(length),
		State:  dt.State,
	}
	for _, name := range dt.Fields.names {
		col := dt.Fields.columns[name]
		if selection != nil {
			col = col.Select(selection)
		}
		sub.Fields.names = append(sub.Fields.names, name)
		sub.Fields.columns[name] = col
	}
	return sub
}

// Scope returns a child table of the same length with no fields at all.
// User-defined functions evaluate their bodies in a scope so that only
// their parameters are visible.
func (dt *DataTable) Scope() *DataTable {
	return &DataTable{
		length: dt.length,
		Fields: NewFields(dt.length),
		Output: NewFields(dt.length),
		State:  dt.State,
	}
}

// Look writes the first head and last tail rows of the named fields
// (all fields when names is empty) as a text table
func (dt *DataTable) Look(w io.Writer, head, tail int, names ...string) {
	if len(names) == 0 {
		names = dt.Fields.Names()
	}
	const width = 10
	columns := make([]*vectorized.DataColumn, 0, len(names)+1)
	headers := make([]string, 0, len(names)+1)
	for _, name := range names {
		if col, ok := dt.Fields.Lookup(name); ok {
			columns = append(columns, col)
			headers = append(headers, name)
		}
	}
	if dt.Score != nil {
		columns = append(columns, dt.Score)
		headers = append(headers, "SCORE")
	}

	numberWidth := len(strconv.Itoa(dt.length))
	cell := func(s string) string {
		if len(s) > width {
			if f, err := strconv.ParseFloat(s, 64); err == nil {
				for digits := width; digits > 0; digits-- {
					if short := strconv.FormatFloat(f, 'g', digits, 64); len(short) <= width {
						return fmt.Sprintf("%-*s", width, short)
					}
				}
			}
			s = s[:width-3] + "..."
		}
		return fmt.Sprintf("%-*s", width, s)
	}

	row := make([]string, len(headers))
	for i, h := range headers {
		row[i] = cell(h)
	}
	fmt.Fprintf(w, "%-*s | %s\n", numberWidth, "#", strings.Join(row, " | "))
	for i := range row {
		row[i] = strings.Repeat("-", width)
	}
	fmt.Fprintf(w, "%s-+-%s\n", strings.Repeat("-", numberWidth), strings.Join(row, "-+-"))

	printRow := func(r int) {
		for i, col := range columns {
			switch m := col.MaskAt(r); m {
			case vectorized.Valid:
				row[i] = cell(col.FieldType.ValueToString(col.Value(r)))
			default:
				row[i] = cell(m.String())
			}
		}
		fmt.Fprintf(w, "%-*d | %s\n", numberWidth, r, strings.Join(row, " | "))
	}

	rows := make([]int, 0, head+tail)
	for r := 0; r < head && r < dt.length; r++ {
		rows = append(rows, r)
	}
	for r := dt.length - tail; r < dt.length; r++ {
		if r >= 0 && (len(rows) == 0 || r > rows[len(rows)-1]) {
			rows = append(rows, r)
		}
	}
	sort.Ints(rows)
	for i, r := range rows {
		if i > 0 && r > rows[i-1]+1 {
			fmt.Fprintln(w, "   ...")
		}
		printRow(r)
	}
}
