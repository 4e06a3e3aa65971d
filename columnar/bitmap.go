package columnar

import (
	"bytes"
	"fmt"

	"github.com/RoaringBitmap/roaring/v2"
)

// RowSet is a set of row numbers backed by a roaring bitmap. Models use it
// to track which rows a tree node selected and which rows are still
// waiting for a score.
type RowSet struct {
	bitmap *roaring.Bitmap
}

// NewRowSet creates an empty row set
func NewRowSet() *RowSet {
	return &RowSet{bitmap: roaring.New()}
}

// AllRows creates a row set holding rows 0..length-1
func AllRows(length int) *RowSet {
	bitmap := roaring.New()
	if length > 0 {
		bitmap.AddRange(0, uint64(length))
	}
	return &RowSet{bitmap: bitmap}
}

// RowSetFromBools creates a row set from a boolean selection
func RowSetFromBools(selection []bool) *RowSet {
	bitmap := roaring.New()
	for i, s := range selection {
		if s {
			bitmap.Add(uint32(i))
		}
	}
	return &RowSet{bitmap: bitmap}
}

// RowSetFromRows creates a row set from explicit row numbers
func RowSetFromRows(rows ...int) *RowSet {
	bitmap := roaring.New()
	for _, row := range rows {
		bitmap.Add(uint32(row))
	}
	return &RowSet{bitmap: bitmap}
}

// Add inserts a row
func (rs *RowSet) Add(row int) {
	rs.bitmap.Add(uint32(row))
}

// Remove deletes a row
func (rs *RowSet) Remove(row int) {
	rs.bitmap.Remove(uint32(row))
}

// Contains reports membership
func (rs *RowSet) Contains(row int) bool {
	return rs.bitmap.Contains(uint32(row))
}

// Cardinality returns the number of rows in the set
func (rs *RowSet) Cardinality() int {
	return int(rs.bitmap.GetCardinality())
}

// IsEmpty reports whether the set has no rows
func (rs *RowSet) IsEmpty() bool {
	return rs.bitmap.IsEmpty()
}

// Clone returns an independent copy
func (rs *RowSet) Clone() *RowSet {
	return &RowSet{bitmap: rs.bitmap.Clone()}
}

// And returns the intersection
func (rs *RowSet) And(other *RowSet) *RowSet {
	return &RowSet{bitmap: roaring.And(rs.bitmap, other.bitmap)}
}

// Or returns the union
func (rs *RowSet) Or(other *RowSet) *RowSet {
	return &RowSet{bitmap: roaring.Or(rs.bitmap, other.bitmap)}
}

// AndNot returns the rows of rs that are not in other
func (rs *RowSet) AndNot(other *RowSet) *RowSet {
	return &RowSet{bitmap: roaring.AndNot(rs.bitmap, other.bitmap)}
}

// Equals compares two row sets
func (rs *RowSet) Equals(other *RowSet) bool {
	return rs.bitmap.Equals(other.bitmap)
}

// Rows returns the row numbers in ascending order
func (rs *RowSet) Rows() []int {
	rows := make([]int, 0, rs.bitmap.GetCardinality())
	iter := rs.bitmap.Iterator()
	for iter.HasNext() {
		rows = append(rows, int(iter.Next()))
	}
	return rows
}

// ToBools expands the set into a boolean selection of the given length
func (rs *RowSet) ToBools(length int) []bool {
	out := make([]bool, length)
	iter := rs.bitmap.Iterator()
	for iter.HasNext() {
		row := int(iter.Next())
		if row < length {
			out[row] = true
		}
	}
	return out
}

// MarshalBinary serializes the set in the portable roaring format
func (rs *RowSet) MarshalBinary() ([]byte, error) {
	buf := new(bytes.Buffer)
	if _, err := rs.bitmap.WriteTo(buf); err != nil {
		return nil, fmt.Errorf("failed to serialize row set: %w", err)
	}
	return buf.Bytes(), nil
}

// UnmarshalBinary restores a set written by MarshalBinary
func (rs *RowSet) UnmarshalBinary(data []byte) error {
	bitmap := roaring.New()
	if _, err := bitmap.ReadFrom(bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to deserialize row set: %w", err)
	}
	rs.bitmap = bitmap
	return nil
}

func (rs *RowSet) String() string {
	return fmt.Sprintf("RowSet(%d rows)", rs.Cardinality())
}
