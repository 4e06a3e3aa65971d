package models

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat/distuv"

	"augustus/core"
	"augustus/vectorized"
)

// Distribution is a baseline or alternate hypothesis of a BaselineModel.
// Every method is vectorized over its input.
type Distribution interface {
	PDF(x []float64) []float64
	LogPDF(x []float64) []float64
	CDF(x []float64) []float64
}

// GaussianDistribution is a normal distribution
type GaussianDistribution struct {
	Mean     float64
	Variance float64
}

func (g GaussianDistribution) PDF(x []float64) []float64 {
	twoVariance := 2 * g.Variance
	norm := math.Sqrt(math.Pi * twoVariance)
	out := make([]float64, len(x))
	for i, v := range x {
		d := v - g.Mean
		out[i] = math.Exp(-d*d/twoVariance) / norm
	}
	return out
}

func (g GaussianDistribution) LogPDF(x []float64) []float64 {
	twoVariance := 2 * g.Variance
	logNorm := math.Log(math.Sqrt(math.Pi * twoVariance))
	out := make([]float64, len(x))
	for i, v := range x {
		d := v - g.Mean
		out[i] = -d*d/twoVariance - logNorm
	}
	return out
}

// CDF uses math.Erf, which is accurate to machine precision
func (g GaussianDistribution) CDF(x []float64) []float64 {
	root2Sigma := math.Sqrt(2 * g.Variance)
	out := make([]float64, len(x))
	for i, v := range x {
		out[i] = (math.Erf((v-g.Mean)/root2Sigma) + 1) / 2
	}
	return out
}

// PoissonDistribution is a Poisson distribution. LogPDF extends to
// non-integer counts through the log-gamma function.
type PoissonDistribution struct {
	Mean float64
}

func (p PoissonDistribution) PDF(x []float64) []float64 {
	out := p.LogPDF(x)
	for i, v := range out {
		out[i] = math.Exp(v)
	}
	return out
}

func (p PoissonDistribution) LogPDF(x []float64) []float64 {
	logMean := math.Log(p.Mean)
	out := make([]float64, len(x))
	for i, v := range x {
		lgamma, _ := math.Lgamma(v + 1)
		out[i] = v*logMean - lgamma - p.Mean
	}
	return out
}

func (p PoissonDistribution) CDF(x []float64) []float64 {
	dist := distuv.Poisson{Lambda: p.Mean}
	out := make([]float64, len(x))
	for i, v := range x {
		out[i] = dist.CDF(v)
	}
	return out
}

// TestDistributions describes the statistic a BaselineModel computes
type TestDistributions struct {
	Field         string
	TestStatistic string
	ResetValue    float64
	Baseline      Distribution
	Alternate     Distribution
}

// BaselineModel is a change-detection model. StateID continues a CUSUM
// across calculations through the table's DataTableState.
type BaselineModel struct {
	core.ModelBase
	StateID           string
	TestDistributions TestDistributions
}

func (m *BaselineModel) CalculateScore(table *core.DataTable, functions *core.FunctionTable, perf core.Performance) (core.Score, error) {
	td := &m.TestDistributions
	key := fmt.Sprintf("BaselineModel %s", td.TestStatistic)
	perf.Begin(key)
	defer perf.End(key)

	col, err := table.Field(td.Field)
	if err != nil {
		return nil, err
	}
	switch col.FieldType.DataType().Signature() {
	case vectorized.SigFloat, vectorized.SigInteger:
	default:
		return nil, core.NewValidationError("field %q has dataType %s, which is incompatible with BaselineModel %s", td.Field, col.FieldType.DataType(), td.TestStatistic)
	}
	values, err := col.AsFloat64()
	if err != nil {
		return nil, err
	}

	switch td.TestStatistic {
	case "zValue":
		return m.zValue(col, values)
	case "CUSUM":
		return m.cusum(table, col, values, perf)
	}
	return nil, core.NewValidationError("BaselineModel testStatistic %q is not supported", td.TestStatistic)
}

func (m *BaselineModel) zValue(col *vectorized.DataColumn, values []float64) (core.Score, error) {
	g, ok := m.TestDistributions.Baseline.(GaussianDistribution)
	if !ok {
		return nil, core.NewValidationError("BaselineModel zValue requires a baseline GaussianDistribution")
	}
	if g.Variance <= 0 {
		return nil, core.NewValidationError("variance must be positive, not %g", g.Variance)
	}
	sigma := math.Sqrt(g.Variance)
	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = (v - g.Mean) / sigma
	}
	return core.Score{"": vectorized.NewDataColumn(doubleType, out, col.Mask)}, nil
}

// cusum accumulates max(resetValue, last + log(alternate/baseline)) over
// VALID rows; other rows repeat the running value
func (m *BaselineModel) cusum(table *core.DataTable, col *vectorized.DataColumn, values []float64, perf core.Performance) (core.Score, error) {
	td := &m.TestDistributions
	if td.Baseline == nil || td.Alternate == nil {
		return nil, core.NewValidationError("BaselineModel CUSUM requires a Baseline and an Alternate that are either GaussianDistribution or PoissonDistribution")
	}
	alternate := td.Alternate.LogPDF(values)
	baseline := td.Baseline.LogPDF(values)

	last := 0.0
	if m.StateID != "" {
		if v, ok := table.State.Get(m.StateID); ok {
			last = v.Number
		}
	}

	perf.Begin("fill CUSUM")
	out := make([]float64, len(values))
	for i := range values {
		if col.MaskAt(i) == vectorized.Valid {
			last = math.Max(td.ResetValue, last+alternate[i]-baseline[i])
		}
		out[i] = last
	}
	perf.End("fill CUSUM")

	if m.StateID != "" {
		table.State.Set(m.StateID, &core.StateValue{Number: last})
		core.GetTracer().Debug(core.TraceComponentState, "Saved CUSUM state", core.TraceContext("stateId", m.StateID, "value", last))
	}
	return core.Score{"": vectorized.NewDataColumn(doubleType, out, nil)}, nil
}
