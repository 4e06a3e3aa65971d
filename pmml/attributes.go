package pmml

import (
	"regexp"
	"strconv"
	"strings"

	"augustus/vectorized"
)

func requiredAttr(e *Element, name string) (string, error) {
	v, ok := e.Attr(name)
	if !ok {
		return "", errorf(e, "missing required attribute %q", name)
	}
	return v, nil
}

func stringAttr(e *Element, name string) *string {
	if v, ok := e.Attr(name); ok {
		return &v
	}
	return nil
}

func floatAttr(e *Element, name string) (*float64, error) {
	v, ok := e.Attr(name)
	if !ok {
		return nil, nil
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return nil, errorf(e, "attribute %s=%q is not a number", name, v)
	}
	return &f, nil
}

func floatAttrDefault(e *Element, name string, def float64) (float64, error) {
	f, err := floatAttr(e, name)
	if err != nil || f == nil {
		return def, err
	}
	return *f, nil
}

func intAttr(e *Element, name string) (*int, error) {
	v, ok := e.Attr(name)
	if !ok {
		return nil, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return nil, errorf(e, "attribute %s=%q is not an integer", name, v)
	}
	return &n, nil
}

func boolAttr(e *Element, name string, def bool) (bool, error) {
	v, ok := e.Attr(name)
	if !ok {
		return def, nil
	}
	switch strings.TrimSpace(v) {
	case "true", "1":
		return true, nil
	case "false", "0":
		return false, nil
	}
	return def, errorf(e, "attribute %s=%q is not a boolean", name, v)
}

func dataTypeAttr(e *Element, name string) (*vectorized.DataType, error) {
	v, ok := e.Attr(name)
	if !ok {
		return nil, nil
	}
	dt, err := vectorized.ParseDataType(v)
	if err != nil {
		return nil, errorf(e, "%v", err)
	}
	return &dt, nil
}

func opTypeAttr(e *Element, name string) (*vectorized.OpType, error) {
	v, ok := e.Attr(name)
	if !ok {
		return nil, nil
	}
	ot, err := vectorized.ParseOpType(v)
	if err != nil {
		return nil, errorf(e, "%v", err)
	}
	return &ot, nil
}

// defaultOpType is the optype implied by a dataType when none is given
func defaultOpType(dt vectorized.DataType) vectorized.OpType {
	if dt == vectorized.STRING || dt == vectorized.BOOLEAN || dt == vectorized.OBJECT {
		return vectorized.CATEGORICAL
	}
	return vectorized.CONTINUOUS
}

func invalidValueTreatmentAttr(e *Element) (vectorized.InvalidValueTreatment, error) {
	t, err := vectorized.ParseInvalidValueTreatment(e.AttrDefault("invalidValueTreatment", ""))
	if err != nil {
		return t, errorf(e, "%v", err)
	}
	return t, nil
}

var arrayWord = regexp.MustCompile(`"((?:[^"\\]|\\.)*)"|[^\s"]+`)

// arrayValues splits the text of an <Array>. Strings may be quoted, with
// \" escaping a quote inside them.
func arrayValues(e *Element) ([]string, error) {
	if e == nil {
		return nil, nil
	}
	if e.Tag != "Array" {
		return nil, errorf(e, "expected <Array>")
	}
	var out []string
	for _, m := range arrayWord.FindAllStringSubmatch(e.Text, -1) {
		if strings.HasPrefix(m[0], `"`) {
			out = append(out, strings.ReplaceAll(m[1], `\"`, `"`))
		} else {
			out = append(out, m[0])
		}
	}
	n, err := intAttr(e, "n")
	if err != nil {
		return nil, err
	}
	if n != nil && *n != len(out) {
		return nil, errorf(e, "n=%d but the array has %d values", *n, len(out))
	}
	return out, nil
}

func realArray(e *Element) ([]float64, error) {
	words, err := arrayValues(e)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(words))
	for i, w := range words {
		f, err := strconv.ParseFloat(w, 64)
		if err != nil {
			return nil, errorf(e, "array value %q is not a number", w)
		}
		out[i] = f
	}
	return out, nil
}

// matrix reads a non-nil <Matrix> of any kind: diagonal, symmetric (lower
// triangle rows) or any (full rows, or sparse MatCells over defaults)
func matrix(e *Element) ([][]float64, error) {
	if e.Tag != "Matrix" {
		return nil, errorf(e, "expected <Matrix>")
	}
	nbRows, err := intAttr(e, "nbRows")
	if err != nil {
		return nil, err
	}
	nbCols, err := intAttr(e, "nbCols")
	if err != nil {
		return nil, err
	}
	var rows [][]float64
	for _, a := range e.ChildrenOf("Array") {
		r, err := realArray(a)
		if err != nil {
			return nil, err
		}
		rows = append(rows, r)
	}
	cells := e.ChildrenOf("MatCell")
	checkShape := func(n, m int) error {
		if (nbRows != nil && *nbRows != n) || (nbCols != nil && *nbCols != m) {
			return errorf(e, "declared nbRows/nbCols do not match its %dx%d contents", n, m)
		}
		return nil
	}

	switch kind := e.AttrDefault("kind", "any"); kind {
	case "diagonal":
		if len(cells) > 0 || len(rows) != 1 {
			return nil, errorf(e, "a diagonal matrix must be one Array of on-diagonal values")
		}
		offDiag, err := floatAttrDefault(e, "offDiagDefault", 0)
		if err != nil {
			return nil, err
		}
		n := len(rows[0])
		if err := checkShape(n, n); err != nil {
			return nil, err
		}
		out := squareMatrix(n, offDiag)
		for i, v := range rows[0] {
			out[i][i] = v
		}
		return out, nil

	case "symmetric":
		if len(cells) > 0 {
			return nil, errorf(e, "a symmetric matrix must be defined with Arrays, not MatCells")
		}
		n := len(rows)
		for i, r := range rows {
			if len(r) != i+1 {
				return nil, errorf(e, "symmetric matrix row %d has %d values, expected %d", i, len(r), i+1)
			}
		}
		if err := checkShape(n, n); err != nil {
			return nil, err
		}
		out := squareMatrix(n, 0)
		for i := 0; i < n; i++ {
			for j := 0; j <= i; j++ {
				out[i][j] = rows[i][j]
				out[j][i] = rows[i][j]
			}
		}
		return out, nil

	case "any":
		if len(rows) > 0 {
			for _, r := range rows {
				if len(r) != len(rows[0]) {
					return nil, errorf(e, "explicit matrix must consist of equal-length Arrays")
				}
			}
			if err := checkShape(len(rows), len(rows[0])); err != nil {
				return nil, err
			}
			return rows, nil
		}
		return sparseMatrix(e, cells, nbRows, nbCols)
	default:
		return nil, errorf(e, "unknown matrix kind %q", kind)
	}
}

func squareMatrix(n int, fill float64) [][]float64 {
	out := make([][]float64, n)
	for i := range out {
		out[i] = make([]float64, n)
		for j := range out[i] {
			out[i][j] = fill
		}
	}
	return out
}

func sparseMatrix(e *Element, cells []*Element, nbRows, nbCols *int) ([][]float64, error) {
	diag, err := floatAttr(e, "diagDefault")
	if err != nil {
		return nil, err
	}
	offDiag, err := floatAttr(e, "offDiagDefault")
	if err != nil {
		return nil, err
	}
	if diag == nil || offDiag == nil {
		return nil, errorf(e, "a sparse matrix must set diagDefault and offDiagDefault")
	}
	type cell struct {
		row, col int
		value    float64
	}
	var parsed []cell
	rows, cols := 0, 0
	for _, c := range cells {
		r, err := intAttr(c, "row")
		if err != nil {
			return nil, err
		}
		k, err := intAttr(c, "col")
		if err != nil {
			return nil, err
		}
		if r == nil || k == nil || *r < 1 || *k < 1 {
			return nil, errorf(c, "MatCell needs 1-based row and col attributes")
		}
		v, err := strconv.ParseFloat(c.Text, 64)
		if err != nil {
			return nil, errorf(c, "MatCell value %q is not a number", c.Text)
		}
		parsed = append(parsed, cell{*r - 1, *k - 1, v})
		if *r > rows {
			rows = *r
		}
		if *k > cols {
			cols = *k
		}
	}
	if nbRows != nil {
		rows = *nbRows
	}
	if nbCols != nil {
		cols = *nbCols
	}
	out := make([][]float64, rows)
	for i := range out {
		out[i] = make([]float64, cols)
		for j := range out[i] {
			if i == j {
				out[i][j] = *diag
			} else {
				out[i][j] = *offDiag
			}
		}
	}
	for _, c := range parsed {
		if c.row >= rows || c.col >= cols {
			return nil, errorf(e, "MatCell (%d, %d) is outside the %dx%d matrix", c.row+1, c.col+1, rows, cols)
		}
		out[c.row][c.col] = c.value
	}
	return out, nil
}
