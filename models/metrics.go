package models

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"augustus/core"
)

// MetricState holds the per-row accumulators of one metric evaluation
// against one cluster. Only the members a metric needs are allocated.
type MetricState struct {
	Sum []float64

	// displacements are the weighted per-field comparisons of each row,
	// kept for distribution-based clustering
	displacements *mat.Dense
	column        int

	A11, A10, A01, A00 []float64
}

// Metric combines per-field comparisons into one distance per row in
// three phases: Initialize once per cluster, Accumulate once per
// clustering field, then Finalize
type Metric interface {
	Name() string
	Initialize(records, fields int, distributionBased bool) (*MetricState, error)
	Accumulate(state *MetricState, cxy []float64, weight float64, distributionBased bool)
	Finalize(state *MetricState, adjustM []float64, distributionBased bool, covariance *mat.Dense) []float64
}

// BinaryMetric compares rows and centers as binary vectors through the
// contingency counts a11, a10, a01 and a00
type BinaryMetric interface {
	Metric
	AccumulateBinary(state *MetricState, values []float64, center float64)
}

func sumState(records, fields int, distributionBased bool) *MetricState {
	state := &MetricState{Sum: make([]float64, records)}
	if distributionBased && records > 0 && fields > 0 {
		state.displacements = mat.NewDense(records, fields, nil)
	}
	return state
}

func adjust(values, adjustM []float64) []float64 {
	if adjustM == nil {
		return values
	}
	for i := range values {
		values[i] *= adjustM[i]
	}
	return values
}

func notDistributionBased(name string, distributionBased bool) error {
	if distributionBased {
		return core.NewValidationError("distribution-based clustering has not been implemented for the %s metric", name)
	}
	return nil
}

// SquaredEuclidean is the weighted sum of squared comparisons
type SquaredEuclidean struct{}

func (SquaredEuclidean) Name() string { return "squaredEuclidean" }

func (SquaredEuclidean) Initialize(records, fields int, distributionBased bool) (*MetricState, error) {
	return sumState(records, fields, distributionBased), nil
}

func (SquaredEuclidean) Accumulate(state *MetricState, cxy []float64, weight float64, distributionBased bool) {
	root := math.Sqrt(weight)
	for i, c := range cxy {
		state.Sum[i] += c * c * weight
		if distributionBased && state.displacements != nil {
			state.displacements.Set(i, state.column, c*root)
		}
	}
	state.column++
}

// Finalize projects the normalized displacement of each row through the
// covariance matrix when distributionBased, dividing the distance by
// the resulting length of sigma
func (SquaredEuclidean) Finalize(state *MetricState, adjustM []float64, distributionBased bool, covariance *mat.Dense) []float64 {
	result := adjust(state.Sum, adjustM)
	if !distributionBased || state.displacements == nil || covariance == nil {
		return result
	}
	for i := range result {
		row := mat.NewVecDense(state.column, nil)
		row.CopyVec(state.displacements.RowView(i))
		norm := mat.Norm(row, 2)
		if norm <= 0 {
			continue
		}
		row.ScaleVec(1/norm, row)
		sigma := mat.Inner(row, covariance, row)
		result[i] /= sigma
	}
	return result
}

// Euclidean is the square root of SquaredEuclidean
type Euclidean struct{ SquaredEuclidean }

func (Euclidean) Name() string { return "euclidean" }

func (e Euclidean) Finalize(state *MetricState, adjustM []float64, distributionBased bool, covariance *mat.Dense) []float64 {
	result := e.SquaredEuclidean.Finalize(state, adjustM, distributionBased, covariance)
	for i, x := range result {
		result[i] = math.Sqrt(x)
	}
	return result
}

// CityBlock is the weighted sum of absolute comparisons
type CityBlock struct{}

func (CityBlock) Name() string { return "cityBlock" }

func (c CityBlock) Initialize(records, fields int, distributionBased bool) (*MetricState, error) {
	if err := notDistributionBased(c.Name(), distributionBased); err != nil {
		return nil, err
	}
	return sumState(records, fields, false), nil
}

func (CityBlock) Accumulate(state *MetricState, cxy []float64, weight float64, distributionBased bool) {
	for i, c := range cxy {
		state.Sum[i] += math.Abs(c) * weight
	}
}

func (CityBlock) Finalize(state *MetricState, adjustM []float64, distributionBased bool, covariance *mat.Dense) []float64 {
	return adjust(state.Sum, adjustM)
}

// Chebychev is the largest weighted comparison
type Chebychev struct{}

func (Chebychev) Name() string { return "chebychev" }

func (c Chebychev) Initialize(records, fields int, distributionBased bool) (*MetricState, error) {
	if err := notDistributionBased(c.Name(), distributionBased); err != nil {
		return nil, err
	}
	return sumState(records, fields, false), nil
}

func (Chebychev) Accumulate(state *MetricState, cxy []float64, weight float64, distributionBased bool) {
	for i, c := range cxy {
		state.Sum[i] = math.Max(state.Sum[i], c*weight)
	}
}

func (Chebychev) Finalize(state *MetricState, adjustM []float64, distributionBased bool, covariance *mat.Dense) []float64 {
	return adjust(state.Sum, adjustM)
}

// Minkowski is the P-th root of the weighted sum of |cxy|^P
type Minkowski struct {
	P float64
}

func (Minkowski) Name() string { return "minkowski" }

func (m Minkowski) Initialize(records, fields int, distributionBased bool) (*MetricState, error) {
	if err := notDistributionBased(m.Name(), distributionBased); err != nil {
		return nil, err
	}
	if m.P <= 0 {
		return nil, core.NewValidationError("minkowski p-parameter must be positive, not %g", m.P)
	}
	return sumState(records, fields, false), nil
}

func (m Minkowski) Accumulate(state *MetricState, cxy []float64, weight float64, distributionBased bool) {
	for i, c := range cxy {
		state.Sum[i] += math.Pow(math.Abs(c), m.P) * weight
	}
}

func (m Minkowski) Finalize(state *MetricState, adjustM []float64, distributionBased bool, covariance *mat.Dense) []float64 {
	result := adjust(state.Sum, adjustM)
	for i, x := range result {
		result[i] = math.Pow(x, 1/m.P)
	}
	return result
}

// binaryCounts implements the contingency table shared by the binary
// similarity metrics
type binaryCounts struct{}

func (binaryCounts) Initialize(records, fields int, distributionBased bool) (*MetricState, error) {
	if distributionBased {
		return nil, core.NewValidationError("distribution-based clustering has not been implemented for binary similarity metrics")
	}
	return &MetricState{
		A11: make([]float64, records),
		A10: make([]float64, records),
		A01: make([]float64, records),
		A00: make([]float64, records),
	}, nil
}

func (binaryCounts) Accumulate(state *MetricState, cxy []float64, weight float64, distributionBased bool) {}

func (binaryCounts) AccumulateBinary(state *MetricState, values []float64, center float64) {
	y := center != 0
	for i, v := range values {
		switch x := v != 0; {
		case x && y:
			state.A11[i]++
		case x && !y:
			state.A10[i]++
		case !x && y:
			state.A01[i]++
		default:
			state.A00[i]++
		}
	}
}

func combine(state *MetricState, f func(a11, a10, a01, a00 float64) float64) []float64 {
	out := make([]float64, len(state.A11))
	for i := range out {
		out[i] = f(state.A11[i], state.A10[i], state.A01[i], state.A00[i])
	}
	return out
}

// SimpleMatching is (a11 + a00) / (a11 + a10 + a01 + a00)
type SimpleMatching struct{ binaryCounts }

func (SimpleMatching) Name() string { return "simpleMatching" }

func (SimpleMatching) Finalize(state *MetricState, adjustM []float64, distributionBased bool, covariance *mat.Dense) []float64 {
	return combine(state, func(a11, a10, a01, a00 float64) float64 {
		return (a11 + a00) / (a11 + a10 + a01 + a00)
	})
}

// Jaccard is a11 / (a11 + a10 + a01)
type Jaccard struct{ binaryCounts }

func (Jaccard) Name() string { return "jaccard" }

func (Jaccard) Finalize(state *MetricState, adjustM []float64, distributionBased bool, covariance *mat.Dense) []float64 {
	return combine(state, func(a11, a10, a01, a00 float64) float64 {
		return a11 / (a11 + a10 + a01)
	})
}

// Tanimoto is (a11 + a00) / (a11 + 2(a10 + a01) + a00)
type Tanimoto struct{ binaryCounts }

func (Tanimoto) Name() string { return "tanimoto" }

func (Tanimoto) Finalize(state *MetricState, adjustM []float64, distributionBased bool, covariance *mat.Dense) []float64 {
	return combine(state, func(a11, a10, a01, a00 float64) float64 {
		return (a11 + a00) / (a11 + 2*(a10+a01) + a00)
	})
}

// BinarySimilarity is the general ratio of two linear combinations of
// the contingency counts
type BinarySimilarity struct {
	binaryCounts
	C00, C01, C10, C11 float64
	D00, D01, D10, D11 float64
}

func (BinarySimilarity) Name() string { return "binarySimilarity" }

func (b BinarySimilarity) Finalize(state *MetricState, adjustM []float64, distributionBased bool, covariance *mat.Dense) []float64 {
	return combine(state, func(a11, a10, a01, a00 float64) float64 {
		return (b.C11*a11 + b.C10*a10 + b.C01*a01 + b.C00*a00) /
			(b.D11*a11 + b.D10*a10 + b.D01*a01 + b.D00*a00)
	})
}
