package core

import (
	"math"

	"github.com/montanaflynn/stats"

	"augustus/vectorized"
)

func (ft *FunctionTable) registerArithmeticFunctions() {
	ft.register(binaryArithmetic("+", "Adds two numbers", func(a, b int64) (int64, bool) { return a + b, true }, vectorized.AddFloat64))
	ft.register(binaryArithmetic("-", "Subtracts the second number from the first", func(a, b int64) (int64, bool) { return a - b, true }, vectorized.SubtractFloat64))
	ft.register(binaryArithmetic("*", "Multiplies two numbers", func(a, b int64) (int64, bool) { return a * b, true }, vectorized.MultiplyFloat64))
	ft.register(binaryArithmetic("//", "Floor division; integer arguments give an integer", func(a, b int64) (int64, bool) {
		if b == 0 {
			return 0, false
		}
		q := a / b
		if (a%b != 0) && ((a < 0) != (b < 0)) {
			q--
		}
		return q, true
	}, vectorized.Elementwise(func(a, b float64) float64 { return math.Floor(a / b) })))
	ft.register(binaryArithmetic("mod", "Remainder with the sign of the divisor", func(a, b int64) (int64, bool) {
		if b == 0 {
			return 0, false
		}
		r := a % b
		if r != 0 && ((r < 0) != (b < 0)) {
			r += b
		}
		return r, true
	}, vectorized.Elementwise(func(a, b float64) float64 {
		r := math.Mod(a, b)
		if r != 0 && ((r < 0) != (b < 0)) {
			r += b
		}
		return r
	})))
	ft.register(binaryArithmetic("fmod", "Remainder with the sign of the dividend", func(a, b int64) (int64, bool) {
		if b == 0 {
			return 0, false
		}
		return a % b, true
	}, vectorized.Elementwise(math.Mod)))
	ft.register(binaryArithmetic("pow", "Raises the first number to the power of the second", func(a, b int64) (int64, bool) {
		if b < 0 {
			return 0, false
		}
		result := int64(1)
		for ; b > 0; b-- {
			result *= a
		}
		return result, true
	}, vectorized.Elementwise(math.Pow)))

	ft.register(&FunctionDefinition{
		Name: "/", Category: ArithmeticFunc, MinArgs: 2, MaxArgs: 2,
		Description: "Divides two numbers; the result is always floating point",
		Evaluator: func(length int, args []*vectorized.DataColumn) (*vectorized.DataColumn, error) {
			if _, err := numberResult("/", args); err != nil {
				return nil, err
			}
			left, right := floats(args[0]), floats(args[1])
			out := make([]float64, length)
			vectorized.DivideFloat64(left, right, out)
			return floatColumn(out, vectorized.MapAnyMissingInvalid(args[0].Mask, args[1].Mask)), nil
		},
	})

	ft.register(&FunctionDefinition{
		Name: "negative", Category: ArithmeticFunc, MinArgs: 1, MaxArgs: 1,
		Description: "Negates a number",
		Evaluator: func(length int, args []*vectorized.DataColumn) (*vectorized.DataColumn, error) {
			resultType, err := numberResult("negative", args)
			if err != nil {
				return nil, err
			}
			if resultType == integerType {
				in := args[0].Int64s()
				out := make([]int64, length)
				for i, v := range in {
					out[i] = -v
				}
				return vectorized.NewDataColumn(integerType, out, args[0].Mask), nil
			}
			in := floats(args[0])
			out := make([]float64, length)
			for i, v := range in {
				out[i] = -v
			}
			return vectorized.NewDataColumn(doubleType, out, args[0].Mask), nil
		},
	})

	ft.register(&FunctionDefinition{
		Name: "threshold", Category: ArithmeticFunc, MinArgs: 2, MaxArgs: 2,
		Description: "1 when the first argument exceeds the second, else 0",
		Evaluator: func(length int, args []*vectorized.DataColumn) (*vectorized.DataColumn, error) {
			cmp, err := comparator("threshold", args[0], args[1], true)
			if err != nil {
				return nil, err
			}
			out := make([]int64, length)
			for i := range out {
				if cmp(i) > 0 {
					out[i] = 1
				}
			}
			return vectorized.NewDataColumn(integerType, out, vectorized.MapAnyMissingInvalid(args[0].Mask, args[1].Mask)), nil
		},
	})

	ft.register(skipMissingReduction("min", "Smallest of the non-missing arguments", true, math.Min, func(a, b int64) int64 {
		if b < a {
			return b
		}
		return a
	}))
	ft.register(skipMissingReduction("max", "Largest of the non-missing arguments", true, math.Max, func(a, b int64) int64 {
		if b > a {
			return b
		}
		return a
	}))
	ft.register(skipMissingReduction("sum", "Sum of the non-missing arguments", false, func(a, b float64) float64 { return a + b }, func(a, b int64) int64 { return a + b }))
	ft.register(skipMissingReduction("product", "Product of the non-missing arguments", false, func(a, b float64) float64 { return a * b }, func(a, b int64) int64 { return a * b }))

	ft.register(&FunctionDefinition{
		Name: "avg", Category: ArithmeticFunc, MinArgs: 1, MaxArgs: -1,
		Description: "Mean of the non-missing arguments",
		Evaluator: func(length int, args []*vectorized.DataColumn) (*vectorized.DataColumn, error) {
			if _, err := numberResult("avg", args); err != nil {
				return nil, err
			}
			sum := make([]float64, length)
			count := make([]int, length)
			for _, a := range args {
				values := floats(a)
				for i := range sum {
					if a.MaskAt(i) == vectorized.Valid {
						sum[i] += values[i]
						count[i]++
					}
				}
			}
			var mask []vectorized.Mask
			for i := range sum {
				if count[i] == 0 {
					if mask == nil {
						mask = vectorized.NewMask(length)
					}
					mask[i] = vectorized.Missing
					continue
				}
				sum[i] /= float64(count[i])
			}
			return floatColumn(sum, mask), nil
		},
	})

	ft.register(&FunctionDefinition{
		Name: "median", Category: ArithmeticFunc, MinArgs: 1, MaxArgs: -1,
		Description: "Median of the non-missing arguments",
		Evaluator: func(length int, args []*vectorized.DataColumn) (*vectorized.DataColumn, error) {
			if _, err := numberResult("median", args); err != nil {
				return nil, err
			}
			columns := make([][]float64, len(args))
			for j, a := range args {
				columns[j] = floats(a)
			}
			out := make([]float64, length)
			var mask []vectorized.Mask
			row := make(stats.Float64Data, 0, len(args))
			for i := range out {
				row = row[:0]
				for j, a := range args {
					if a.MaskAt(i) == vectorized.Valid {
						row = append(row, columns[j][i])
					}
				}
				median, err := stats.Median(row)
				if err != nil {
					if mask == nil {
						mask = vectorized.NewMask(length)
					}
					mask[i] = vectorized.Invalid
					continue
				}
				out[i] = median
			}
			return floatColumn(out, mask), nil
		},
	})
}

func binaryArithmetic(name, description string, intOp func(a, b int64) (int64, bool), floatKernel vectorized.FloatKernel) *FunctionDefinition {
	return &FunctionDefinition{
		Name: name, Category: ArithmeticFunc, MinArgs: 2, MaxArgs: 2,
		Description: description,
		Evaluator: func(length int, args []*vectorized.DataColumn) (*vectorized.DataColumn, error) {
			resultType, err := numberResult(name, args)
			if err != nil {
				return nil, err
			}
			mask := vectorized.MapAnyMissingInvalid(args[0].Mask, args[1].Mask)
			if resultType == integerType {
				left, right := args[0].Int64s(), args[1].Int64s()
				out := make([]int64, length)
				for i := range out {
					if vectorized.MaskAt(mask, i) != vectorized.Valid {
						continue
					}
					v, ok := intOp(left[i], right[i])
					if !ok {
						if mask == nil {
							mask = vectorized.NewMask(length)
						}
						mask[i] = vectorized.Invalid
						continue
					}
					out[i] = v
				}
				return vectorized.NewDataColumn(integerType, out, vectorized.NormalizeMask(mask)), nil
			}
			left, right := floats(args[0]), floats(args[1])
			out := make([]float64, length)
			floatKernel(left, right, out)
			return floatColumn(out, mask), nil
		},
	}
}

// skipMissingReduction folds the valid arguments of each row, starting
// from the first valid one. Rows with no valid argument are MISSING.
func skipMissingReduction(name, description string, allowTemporal bool, floatOp func(a, b float64) float64, intOp func(a, b int64) int64) *FunctionDefinition {
	return &FunctionDefinition{
		Name: name, Category: ArithmeticFunc, MinArgs: 1, MaxArgs: -1,
		Description: description,
		Evaluator: func(length int, args []*vectorized.DataColumn) (*vectorized.DataColumn, error) {
			var resultType *vectorized.FieldType
			var err error
			if allowTemporal {
				resultType, err = orderedResult(name, args)
			} else {
				resultType, err = numberResult(name, args)
			}
			if err != nil {
				return nil, err
			}
			seen := make([]bool, length)
			var data interface{}
			if resultType.Storage() == vectorized.StorageInt64 {
				out := make([]int64, length)
				for _, a := range args {
					values := a.Int64s()
					for i := range out {
						if a.MaskAt(i) != vectorized.Valid {
							continue
						}
						if !seen[i] {
							out[i] = values[i]
							seen[i] = true
						} else {
							out[i] = intOp(out[i], values[i])
						}
					}
				}
				data = out
			} else {
				out := make([]float64, length)
				for _, a := range args {
					values := floats(a)
					for i := range out {
						if a.MaskAt(i) != vectorized.Valid {
							continue
						}
						if !seen[i] {
							out[i] = values[i]
							seen[i] = true
						} else {
							out[i] = floatOp(out[i], values[i])
						}
					}
				}
				data = out
			}
			var mask []vectorized.Mask
			for i, s := range seen {
				if !s {
					if mask == nil {
						mask = vectorized.NewMask(length)
					}
					mask[i] = vectorized.Missing
				}
			}
			if values, ok := data.([]float64); ok {
				return floatColumnOf(resultType, values, mask), nil
			}
			return vectorized.NewDataColumn(resultType, data, mask), nil
		},
	}
}

func floatColumnOf(ft *vectorized.FieldType, values []float64, mask []vectorized.Mask) *vectorized.DataColumn {
	col := floatColumn(values, mask)
	col.FieldType = ft
	return col
}

func (ft *FunctionTable) registerMathFunctions() {
	ft.register(unaryFloat("log10", "Base-10 logarithm", math.Log10))
	ft.register(unaryFloat("ln", "Natural logarithm", math.Log))
	ft.register(unaryFloat("sqrt", "Square root", math.Sqrt))
	ft.register(unaryFloat("exp", "Exponential", math.Exp))
	ft.register(unaryFloat("floor", "Largest integer not greater than the argument", math.Floor))
	ft.register(unaryFloat("ceil", "Smallest integer not less than the argument", math.Ceil))
	ft.register(unaryFloat("round", "Nearest integer, ties to even", math.RoundToEven))
	ft.register(unaryFloat("sin", "Sine (radians)", math.Sin))
	ft.register(unaryFloat("cos", "Cosine (radians)", math.Cos))
	ft.register(unaryFloat("tan", "Tangent (radians)", math.Tan))
	ft.register(unaryFloat("arcsin", "Inverse sine", math.Asin))
	ft.register(unaryFloat("arccos", "Inverse cosine", math.Acos))
	ft.register(unaryFloat("arctan", "Inverse tangent", math.Atan))
	ft.register(unaryFloat("sinh", "Hyperbolic sine", math.Sinh))
	ft.register(unaryFloat("cosh", "Hyperbolic cosine", math.Cosh))
	ft.register(unaryFloat("tanh", "Hyperbolic tangent", math.Tanh))
	ft.register(unaryFloat("arcsinh", "Inverse hyperbolic sine", math.Asinh))
	ft.register(unaryFloat("arccosh", "Inverse hyperbolic cosine", math.Acosh))
	ft.register(unaryFloat("arctanh", "Inverse hyperbolic tangent", math.Atanh))

	ft.register(&FunctionDefinition{
		Name: "arctan2", Category: MathFunc, MinArgs: 2, MaxArgs: 2,
		Description: "Angle of the point (x, y) given as arctan2(y, x)",
		Evaluator: func(length int, args []*vectorized.DataColumn) (*vectorized.DataColumn, error) {
			if _, err := numberResult("arctan2", args); err != nil {
				return nil, err
			}
			y, x := floats(args[0]), floats(args[1])
			out := make([]float64, length)
			for i := range out {
				out[i] = math.Atan2(y[i], x[i])
			}
			return floatColumn(out, vectorized.MapAnyMissingInvalid(args[0].Mask, args[1].Mask)), nil
		},
	})

	ft.register(&FunctionDefinition{
		Name: "abs", Category: MathFunc, MinArgs: 1, MaxArgs: 1,
		Description: "Absolute value",
		Evaluator: func(length int, args []*vectorized.DataColumn) (*vectorized.DataColumn, error) {
			resultType, err := numberResult("abs", args)
			if err != nil {
				return nil, err
			}
			if resultType == integerType {
				out := make([]int64, length)
				for i, v := range args[0].Int64s() {
					if v < 0 {
						v = -v
					}
					out[i] = v
				}
				return vectorized.NewDataColumn(integerType, out, args[0].Mask), nil
			}
			out := make([]float64, length)
			for i, v := range floats(args[0]) {
				out[i] = math.Abs(v)
			}
			return vectorized.NewDataColumn(doubleType, out, args[0].Mask), nil
		},
	})
}

func unaryFloat(name, description string, op func(float64) float64) *FunctionDefinition {
	return &FunctionDefinition{
		Name: name, Category: MathFunc, MinArgs: 1, MaxArgs: 1,
		Description: description,
		Evaluator: func(length int, args []*vectorized.DataColumn) (*vectorized.DataColumn, error) {
			if _, err := numberResult(name, args); err != nil {
				return nil, err
			}
			out := make([]float64, length)
			for i, v := range floats(args[0]) {
				out[i] = op(v)
			}
			return floatColumn(out, args[0].Mask), nil
		},
	}
}
