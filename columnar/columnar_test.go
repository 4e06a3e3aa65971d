package columnar

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRowSet(t *testing.T) {
	t.Run("FromBools", func(t *testing.T) {
		rs := RowSetFromBools([]bool{true, false, true, true})
		assert.Equal(t, 3, rs.Cardinality())
		assert.Equal(t, []int{0, 2, 3}, rs.Rows())
		assert.Equal(t, []bool{true, false, true, true}, rs.ToBools(4))
	})

	t.Run("SetAlgebra", func(t *testing.T) {
		all := AllRows(6)
		evens := RowSetFromRows(0, 2, 4)
		assert.Equal(t, []int{1, 3, 5}, all.AndNot(evens).Rows())
		assert.Equal(t, []int{2, 4}, evens.And(RowSetFromRows(2, 3, 4)).Rows())
		assert.Equal(t, []int{0, 1, 2, 4}, evens.Or(RowSetFromRows(1)).Rows())
		assert.Equal(t, 6, all.Cardinality(), "operations do not modify their inputs")
	})

	t.Run("AddRemove", func(t *testing.T) {
		rs := NewRowSet()
		assert.True(t, rs.IsEmpty())
		rs.Add(7)
		assert.True(t, rs.Contains(7))
		clone := rs.Clone()
		rs.Remove(7)
		assert.False(t, rs.Contains(7))
		assert.True(t, clone.Contains(7))
	})

	t.Run("Serialization", func(t *testing.T) {
		rs := RowSetFromRows(1, 100, 100000)
		data, err := rs.MarshalBinary()
		require.NoError(t, err)

		restored := NewRowSet()
		require.NoError(t, restored.UnmarshalBinary(data))
		assert.True(t, rs.Equals(restored))
	})
}

func TestCompressors(t *testing.T) {
	payload := bytes.Repeat([]byte(`{"kind":"cusum","value":1.25}`), 64)

	for _, name := range []string{"none", "gzip", "snappy", "zstd"} {
		t.Run(name, func(t *testing.T) {
			ct, err := ParseCompressionType(name)
			require.NoError(t, err)
			c, err := CreateCompressor(ct, CompressionLevelDefault)
			require.NoError(t, err)
			assert.Equal(t, ct, c.Type())

			packed, err := Pack(c, payload)
			require.NoError(t, err)
			assert.Equal(t, byte(ct), packed[0])

			restored, err := Unpack(packed)
			require.NoError(t, err)
			assert.Equal(t, payload, restored)
		})
	}

	_, err := ParseCompressionType("lz4")
	assert.Error(t, err)
	_, err = Unpack(nil)
	assert.Error(t, err)
}
