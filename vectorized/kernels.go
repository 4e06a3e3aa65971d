package vectorized

// Unrolled float64 kernels for the column arithmetic of the function
// table. Every kernel writes len(out) results; a and b must be at least
// that long. Division follows IEEE 754, so x/0 yields an infinity or NaN
// that NaNToInvalid later turns into INVALID.

// FloatKernel combines two columns row by row into out
type FloatKernel func(a, b, out []float64)

// unroll is the number of rows processed per loop iteration
const unroll = 4

func checkKernelLengths(a, b, out []float64) {
	if len(a) < len(out) || len(b) < len(out) {
		panic("slice length mismatch")
	}
}

// AddFloat64 computes out[i] = a[i] + b[i]
func AddFloat64(a, b, out []float64) {
	checkKernelLengths(a, b, out)
	n := len(out)
	end := n - n%unroll
	for i := 0; i < end; i += unroll {
		out[i] = a[i] + b[i]
		out[i+1] = a[i+1] + b[i+1]
		out[i+2] = a[i+2] + b[i+2]
		out[i+3] = a[i+3] + b[i+3]
	}
	for i := end; i < n; i++ {
		out[i] = a[i] + b[i]
	}
}

// SubtractFloat64 computes out[i] = a[i] - b[i]
func SubtractFloat64(a, b, out []float64) {
	checkKernelLengths(a, b, out)
	n := len(out)
	end := n - n%unroll
	for i := 0; i < end; i += unroll {
		out[i] = a[i] - b[i]
		out[i+1] = a[i+1] - b[i+1]
		out[i+2] = a[i+2] - b[i+2]
		out[i+3] = a[i+3] - b[i+3]
	}
	for i := end; i < n; i++ {
		out[i] = a[i] - b[i]
	}
}

// MultiplyFloat64 computes out[i] = a[i] * b[i]
func MultiplyFloat64(a, b, out []float64) {
	checkKernelLengths(a, b, out)
	n := len(out)
	end := n - n%unroll
	for i := 0; i < end; i += unroll {
		out[i] = a[i] * b[i]
		out[i+1] = a[i+1] * b[i+1]
		out[i+2] = a[i+2] * b[i+2]
		out[i+3] = a[i+3] * b[i+3]
	}
	for i := end; i < n; i++ {
		out[i] = a[i] * b[i]
	}
}

// DivideFloat64 computes out[i] = a[i] / b[i]
func DivideFloat64(a, b, out []float64) {
	checkKernelLengths(a, b, out)
	n := len(out)
	end := n - n%unroll
	for i := 0; i < end; i += unroll {
		out[i] = a[i] / b[i]
		out[i+1] = a[i+1] / b[i+1]
		out[i+2] = a[i+2] / b[i+2]
		out[i+3] = a[i+3] / b[i+3]
	}
	for i := end; i < n; i++ {
		out[i] = a[i] / b[i]
	}
}

// Elementwise lifts a scalar operation to a kernel
func Elementwise(op func(a, b float64) float64) FloatKernel {
	return func(a, b, out []float64) {
		checkKernelLengths(a, b, out)
		for i := range out {
			out[i] = op(a[i], b[i])
		}
	}
}

// CountMask counts the rows of a mask in the given state; a nil mask is
// all VALID
func CountMask(mask []Mask, length int, state Mask) int {
	if mask == nil {
		if state == Valid {
			return length
		}
		return 0
	}
	count := 0
	for _, m := range mask[:length] {
		if m == state {
			count++
		}
	}
	return count
}
