package vectorized

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFloatKernels(t *testing.T) {
	// seven rows cover both the unrolled body and the tail
	a := []float64{1, 2, 3, 4, 5, 6, 7}
	b := []float64{2, 2, 2, 2, 2, 2, 0}

	cases := []struct {
		name     string
		kernel   FloatKernel
		expected []float64
	}{
		{"Add", AddFloat64, []float64{3, 4, 5, 6, 7, 8, 7}},
		{"Subtract", SubtractFloat64, []float64{-1, 0, 1, 2, 3, 4, 7}},
		{"Multiply", MultiplyFloat64, []float64{2, 4, 6, 8, 10, 12, 0}},
		{"Divide", DivideFloat64, []float64{0.5, 1, 1.5, 2, 2.5, 3, math.Inf(1)}},
		{"Elementwise", Elementwise(math.Max), []float64{2, 2, 3, 4, 5, 6, 7}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			out := make([]float64, len(a))
			tc.kernel(a, b, out)
			assert.Equal(t, tc.expected, out)
		})
	}

	t.Run("ShortOutput", func(t *testing.T) {
		out := make([]float64, 2)
		AddFloat64(a, b, out)
		assert.Equal(t, []float64{3, 4}, out)
	})

	t.Run("ShortInput", func(t *testing.T) {
		assert.Panics(t, func() { AddFloat64(a[:1], b, make([]float64, 3)) })
	})
}

func TestCountMask(t *testing.T) {
	assert.Equal(t, 3, CountMask(nil, 3, Valid))
	assert.Equal(t, 0, CountMask(nil, 3, Invalid))

	mask := []Mask{Valid, Missing, Invalid, Invalid}
	assert.Equal(t, 2, CountMask(mask, 4, Invalid))
	assert.Equal(t, 1, CountMask(mask, 4, Missing))
	assert.Equal(t, 1, CountMask(mask, 3, Invalid))
}
