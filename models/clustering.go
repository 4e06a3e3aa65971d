package models

import (
	"fmt"
	"math"
	"strconv"

	"gonum.org/v1/gonum/mat"

	"augustus/core"
	"augustus/vectorized"
)

// ComparisonKind says whether the best cluster has the smallest or the
// largest metric value
type ComparisonKind int

const (
	Distance ComparisonKind = iota
	Similarity
)

// ParseComparisonKind reads the ComparisonMeasure kind attribute
func ParseComparisonKind(s string) (ComparisonKind, error) {
	switch s {
	case "distance":
		return Distance, nil
	case "similarity":
		return Similarity, nil
	}
	return Distance, core.NewValidationError("unknown ComparisonMeasure kind %q", s)
}

// ClusteringField is one input dimension of a clustering model
type ClusteringField struct {
	Field           string
	NotCenterField  bool
	FieldWeight     *float64
	CompareFunction string
	SimilarityScale *float64
	// Comparisons is the matrix of the "table" compare function, indexed
	// by center value then data value
	Comparisons [][]float64
}

func (f *ClusteringField) weight() float64 {
	if f.FieldWeight == nil {
		return 1
	}
	return *f.FieldWeight
}

// Cluster is one cluster center
type Cluster struct {
	ID          string
	Name        string
	Center      []string
	Covariances [][]float64
}

// ClusteringModel assigns each row to the nearest (or most similar)
// cluster center
type ClusteringModel struct {
	core.ModelBase
	ModelClass          string
	Kind                ComparisonKind
	Metric              Metric
	CompareFunction     string
	Fields              []*ClusteringField
	Clusters            []*Cluster
	MissingValueWeights []float64
}

func (m *ClusteringModel) centerFields() []*ClusteringField {
	var out []*ClusteringField
	for _, f := range m.Fields {
		if !f.NotCenterField {
			out = append(out, f)
		}
	}
	return out
}

func clusterID(c *Cluster, index int) string {
	if c.ID != "" {
		return c.ID
	}
	return strconv.Itoa(index + 1)
}

// CalculateScore evaluates the metric against every cluster. Features:
// "" is the winning cluster's id, "predictedDisplayValue" its name,
// "clusterId" and "entityId" its 1-based index, "clusterAffinity" and
// "affinity" its metric value, and "all.<id>" the value for each cluster.
// Rows with an INVALID clustering field score INVALID; missing values are
// compensated by MissingValueWeights.
func (m *ClusteringModel) CalculateScore(table *core.DataTable, functions *core.FunctionTable, perf core.Performance) (core.Score, error) {
	perf.Begin("ClusteringModel")
	defer perf.End("ClusteringModel")

	perf.Begin("set up")
	distributionBased := m.ModelClass == "distributionBased"
	fields := m.centerFields()
	columns := make([]*vectorized.DataColumn, len(fields))
	for j, f := range fields {
		if f.weight() < 0 {
			perf.End("set up")
			return nil, core.NewValidationError("ClusteringField fieldWeights must all be non-negative (encountered %g)", f.weight())
		}
		col, err := table.Field(f.Field)
		if err != nil {
			perf.End("set up")
			return nil, err
		}
		if !col.IsNumeric() {
			perf.End("set up")
			return nil, core.NewValidationError("ClusteringField %q has dataType %s, which cannot be used for clustering", f.Field, col.FieldType.DataType())
		}
		columns[j] = col
	}
	if m.Metric == nil {
		perf.End("set up")
		return nil, core.NewValidationError("ClusteringModel has no ComparisonMeasure metric")
	}
	if len(m.Clusters) == 0 {
		perf.End("set up")
		return nil, core.NewValidationError("ClusteringModel has no clusters")
	}
	perf.End("set up")

	length := table.Len()
	adjustM, err := m.adjustM(columns, length, perf)
	if err != nil {
		return nil, err
	}

	anyInvalid := make([]bool, length)
	for _, col := range columns {
		for i := range anyInvalid {
			if col.MaskAt(i) == vectorized.Invalid {
				anyInvalid[i] = true
			}
		}
	}

	metricKey := m.Metric.Name()
	bestIndex := make([]int64, length)
	var best []float64
	all := make([][]float64, len(m.Clusters))
	for index, cluster := range m.Clusters {
		if len(cluster.Center) != len(fields) {
			return nil, core.NewValidationError("Cluster array has %d components, but there are %d ClusteringFields with isCenterField=true", len(cluster.Center), len(fields))
		}
		perf.Begin(metricKey)
		distance, err := m.distance(cluster, fields, columns, adjustM, anyInvalid, distributionBased, functions, perf)
		perf.End(metricKey)
		if err != nil {
			return nil, err
		}
		all[index] = distance
		if index == 0 {
			best = append([]float64(nil), distance...)
			continue
		}
		for i, d := range distance {
			if (m.Kind == Distance && d < best[i]) || (m.Kind == Similarity && d > best[i]) {
				best[i] = d
				bestIndex[i] = int64(index)
			}
		}
	}

	perf.Begin("set scores")
	defer perf.End("set scores")
	var mask []vectorized.Mask
	for i, bad := range anyInvalid {
		if bad {
			if mask == nil {
				mask = vectorized.NewMask(length)
			}
			mask[i] = vectorized.Invalid
		}
	}

	ids := make([]string, length)
	names := make([]string, length)
	oneBased := make([]int64, length)
	for i, index := range bestIndex {
		ids[i] = clusterID(m.Clusters[index], int(index))
		names[i] = m.Clusters[index].Name
		oneBased[i] = index + 1
	}
	score := core.Score{
		"":                      vectorized.NewDataColumn(categoricalType, ids, mask),
		"predictedDisplayValue": vectorized.NewDataColumn(categoricalType, names, mask),
		"clusterId":             vectorized.NewDataColumn(integerType, oneBased, mask),
		"entityId":              vectorized.NewDataColumn(integerType, oneBased, mask),
		"clusterAffinity":       vectorized.NewDataColumn(doubleType, best, mask),
		"affinity":              vectorized.NewDataColumn(doubleType, best, mask),
	}
	for index, cluster := range m.Clusters {
		score["all."+clusterID(cluster, index)] = vectorized.NewDataColumn(doubleType, all[index], mask)
	}
	return score, nil
}

// adjustM is sum(q) / sum(q where the field is present) per row, or nil
// without MissingValueWeights
func (m *ClusteringModel) adjustM(columns []*vectorized.DataColumn, length int, perf core.Performance) ([]float64, error) {
	if m.MissingValueWeights == nil {
		return nil, nil
	}
	if len(m.MissingValueWeights) != len(columns) {
		return nil, core.NewValidationError("MissingValueWeights has %d entries, but there are %d ClusteringFields with isCenterField=true", len(m.MissingValueWeights), len(columns))
	}
	perf.Begin("MissingValueWeights")
	defer perf.End("MissingValueWeights")

	total := 0.0
	present := make([]float64, length)
	for j, col := range columns {
		q := m.MissingValueWeights[j]
		total += q
		for i := range present {
			if col.MaskAt(i) == vectorized.Valid {
				present[i] += q
			}
		}
	}
	out := make([]float64, length)
	for i, p := range present {
		if p == 0 {
			out[i] = 1
		} else {
			out[i] = total / p
		}
	}
	return out, nil
}

func (m *ClusteringModel) distance(cluster *Cluster, fields []*ClusteringField, columns []*vectorized.DataColumn, adjustM []float64, anyInvalid []bool, distributionBased bool, functions *core.FunctionTable, perf core.Performance) ([]float64, error) {
	var covariance *mat.Dense
	if distributionBased {
		c, err := covarianceMatrix(cluster, len(fields))
		if err != nil {
			return nil, err
		}
		covariance = c
	}

	length := len(anyInvalid)
	state, err := m.Metric.Initialize(length, len(fields), distributionBased)
	if err != nil {
		return nil, err
	}
	binary, isBinary := m.Metric.(BinaryMetric)
	for j, f := range fields {
		values, center, err := centeredValues(columns[j], cluster.Center[j])
		if err != nil {
			return nil, core.NewValidationError("ClusteringField %q: %v", f.Field, err)
		}
		if isBinary {
			binary.AccumulateBinary(state, values, center)
			continue
		}
		perf.Pause(m.Metric.Name())
		cxy, err := m.compare(f, columns[j], values, center, anyInvalid, perf)
		perf.Unpause(m.Metric.Name())
		if err != nil {
			return nil, err
		}
		m.Metric.Accumulate(state, cxy, f.weight(), distributionBased)
	}
	return m.Metric.Finalize(state, adjustM, distributionBased, covariance), nil
}

func covarianceMatrix(cluster *Cluster, n int) (*mat.Dense, error) {
	if len(cluster.Covariances) != n {
		return nil, core.NewValidationError("in distribution-based clustering, all clusters must have a %dx%d Covariances/Matrix", n, n)
	}
	data := make([]float64, 0, n*n)
	for _, row := range cluster.Covariances {
		if len(row) != n {
			return nil, core.NewValidationError("in distribution-based clustering, all clusters must have a %dx%d Covariances/Matrix", n, n)
		}
		data = append(data, row...)
	}
	return mat.NewDense(n, n, data), nil
}

// centeredValues returns the field as doubles with every non-VALID row
// replaced by the center, so that missing data contributes nothing
func centeredValues(col *vectorized.DataColumn, centerString string) ([]float64, float64, error) {
	v, err := col.FieldType.StringToValue(centerString)
	if err != nil {
		return nil, 0, err
	}
	center, err := storedFloat(v)
	if err != nil {
		return nil, 0, err
	}
	values, err := col.AsFloat64()
	if err != nil {
		return nil, 0, err
	}
	out := make([]float64, len(values))
	for i, x := range values {
		if col.MaskAt(i) == vectorized.Valid {
			out[i] = x
		} else {
			out[i] = center
		}
	}
	return out, center, nil
}

func storedFloat(v interface{}) (float64, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case int64:
		return float64(x), nil
	case bool:
		if x {
			return 1, nil
		}
		return 0, nil
	}
	return 0, fmt.Errorf("%v is not a number", v)
}

// compare computes the per-field comparison cxy of values with center
func (m *ClusteringModel) compare(f *ClusteringField, col *vectorized.DataColumn, values []float64, center float64, anyInvalid []bool, perf core.Performance) ([]float64, error) {
	perf.Begin("ClusteringField")
	defer perf.End("ClusteringField")

	compareFunction := f.CompareFunction
	if compareFunction == "" {
		compareFunction = m.CompareFunction
	}
	out := make([]float64, len(values))
	switch compareFunction {
	case "", "absDiff":
		for i, x := range values {
			out[i] = math.Abs(x - center)
		}
	case "gaussSim":
		if f.SimilarityScale == nil {
			return nil, core.NewValidationError("if compareFunction is \"gaussSim\", a similarityScale must be provided")
		}
		s := *f.SimilarityScale
		for i, x := range values {
			z := x - center
			out[i] = math.Exp(-math.Ln2 * z * z / (s * s))
		}
	case "delta":
		for i, x := range values {
			if x != center {
				out[i] = 1
			}
		}
	case "equal":
		for i, x := range values {
			if x == center {
				out[i] = 1
			}
		}
	case "table":
		if col.FieldType.DataType() != vectorized.INTEGER {
			return nil, core.NewValidationError("if compareFunction is \"table\", the data must be integers")
		}
		if f.Comparisons == nil {
			return nil, core.NewValidationError("if compareFunction is \"table\", ClusteringField %q needs a Comparisons/Matrix", f.Field)
		}
		c := int(center)
		if c < 0 || c >= len(f.Comparisons) {
			return nil, core.NewValidationError("cluster center component is %d, but this is an invalid row index for the Comparisons/Matrix (0-indexed)", c)
		}
		row := f.Comparisons[c]
		for i, x := range values {
			j := int(x)
			if j < 0 || j >= len(row) {
				anyInvalid[i] = true
				continue
			}
			out[i] = row[j]
		}
	default:
		return nil, core.NewValidationError("unknown compareFunction %q", compareFunction)
	}
	return out, nil
}
