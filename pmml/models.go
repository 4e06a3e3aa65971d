package pmml

import (
	"augustus/models"
)

func registerModels(l *Loader) {
	l.Register("TreeModel", KindModel, buildTreeModel)
	l.Register("ClusteringModel", KindModel, buildClusteringModel)
	l.Register("BaselineModel", KindModel, buildBaselineModel)
}

func buildTreeModel(l *Loader, e *Element) (interface{}, error) {
	base, err := l.modelBase(e)
	if err != nil {
		return nil, err
	}
	m := &models.TreeModel{ModelBase: base}
	if m.MissingValueStrategy, err = models.ParseMissingValueStrategy(e.AttrDefault("missingValueStrategy", "")); err != nil {
		return nil, errorf(e, "%v", err)
	}
	if m.NoTrueChildStrategy, err = models.ParseNoTrueChildStrategy(e.AttrDefault("noTrueChildStrategy", "")); err != nil {
		return nil, errorf(e, "%v", err)
	}
	if m.MissingValuePenalty, err = floatAttrDefault(e, "missingValuePenalty", 1); err != nil {
		return nil, err
	}
	root := e.Child("Node")
	if root == nil {
		return nil, errorf(e, "TreeModel needs a root Node")
	}
	if m.Root, err = l.node(root); err != nil {
		return nil, err
	}
	return m, nil
}

func (l *Loader) node(e *Element) (*models.Node, error) {
	n := &models.Node{
		ID:           e.AttrDefault("id", ""),
		Score:        stringAttr(e, "score"),
		DefaultChild: e.AttrDefault("defaultChild", ""),
	}
	var err error
	if n.Predicate, err = l.predicateChild(e); err != nil {
		return nil, err
	}
	for _, c := range e.ChildrenOf("ScoreDistribution") {
		value, err := requiredAttr(c, "value")
		if err != nil {
			return nil, err
		}
		count, err := floatAttr(c, "recordCount")
		if err != nil {
			return nil, err
		}
		if count == nil {
			return nil, errorf(c, "missing required attribute %q", "recordCount")
		}
		sd := models.ScoreDistribution{Value: value, RecordCount: *count}
		if sd.Confidence, err = floatAttr(c, "confidence"); err != nil {
			return nil, err
		}
		if sd.Probability, err = floatAttr(c, "probability"); err != nil {
			return nil, err
		}
		n.ScoreDistributions = append(n.ScoreDistributions, sd)
	}
	for _, c := range e.ChildrenOf("Node") {
		child, err := l.node(c)
		if err != nil {
			return nil, err
		}
		n.Children = append(n.Children, child)
	}
	if n.DefaultChild == "" {
		return n, nil
	}
	for _, c := range n.Children {
		if c.ID == n.DefaultChild {
			return n, nil
		}
	}
	return nil, errorf(e, "defaultChild %q is not the id of a child Node", n.DefaultChild)
}

func buildClusteringModel(l *Loader, e *Element) (interface{}, error) {
	base, err := l.modelBase(e)
	if err != nil {
		return nil, err
	}
	class, err := requiredAttr(e, "modelClass")
	if err != nil {
		return nil, err
	}
	if class != "centerBased" && class != "distributionBased" {
		return nil, errorf(e, "unknown modelClass %q", class)
	}
	m := &models.ClusteringModel{ModelBase: base, ModelClass: class}

	measure := e.Child("ComparisonMeasure")
	if measure == nil {
		return nil, errorf(e, "ClusteringModel needs a ComparisonMeasure")
	}
	kind, err := requiredAttr(measure, "kind")
	if err != nil {
		return nil, err
	}
	if m.Kind, err = models.ParseComparisonKind(kind); err != nil {
		return nil, errorf(measure, "%v", err)
	}
	m.CompareFunction = measure.AttrDefault("compareFunction", "absDiff")
	for _, c := range measure.Children {
		if c.Tag == "Extension" {
			continue
		}
		if m.Metric, err = metric(c); err != nil {
			return nil, err
		}
		break
	}
	if m.Metric == nil {
		return nil, errorf(measure, "ComparisonMeasure needs a metric")
	}

	for _, c := range e.ChildrenOf("ClusteringField") {
		f, err := clusteringField(c)
		if err != nil {
			return nil, err
		}
		m.Fields = append(m.Fields, f)
	}
	if w := e.Child("MissingValueWeights"); w != nil {
		array := w.Child("Array")
		if array == nil {
			return nil, errorf(w, "MissingValueWeights needs an Array")
		}
		if m.MissingValueWeights, err = realArray(array); err != nil {
			return nil, err
		}
	}
	for _, c := range e.ChildrenOf("Cluster") {
		cluster, err := clusterElement(c)
		if err != nil {
			return nil, err
		}
		m.Clusters = append(m.Clusters, cluster)
	}
	n, err := intAttr(e, "numberOfClusters")
	if err != nil {
		return nil, err
	}
	if n != nil && *n != len(m.Clusters) {
		return nil, errorf(e, "numberOfClusters=%d but there are %d Clusters", *n, len(m.Clusters))
	}
	return m, nil
}

func metric(e *Element) (models.Metric, error) {
	switch e.Tag {
	case "euclidean":
		return models.Euclidean{}, nil
	case "squaredEuclidean":
		return models.SquaredEuclidean{}, nil
	case "cityBlock":
		return models.CityBlock{}, nil
	case "chebychev":
		return models.Chebychev{}, nil
	case "minkowski":
		p, err := floatAttr(e, "p-parameter")
		if err != nil {
			return nil, err
		}
		if p == nil {
			return nil, errorf(e, "minkowski needs a p-parameter")
		}
		return models.Minkowski{P: *p}, nil
	case "simpleMatching":
		return models.SimpleMatching{}, nil
	case "jaccard":
		return models.Jaccard{}, nil
	case "tanimoto":
		return models.Tanimoto{}, nil
	case "binarySimilarity":
		var params [8]float64
		names := [8]string{"c00", "c01", "c10", "c11", "d00", "d01", "d10", "d11"}
		for i, name := range names {
			v, err := floatAttr(e, name+"-parameter")
			if err != nil {
				return nil, err
			}
			if v == nil {
				return nil, errorf(e, "binarySimilarity needs a %s-parameter", name)
			}
			params[i] = *v
		}
		return models.BinarySimilarity{
			C00: params[0], C01: params[1], C10: params[2], C11: params[3],
			D00: params[4], D01: params[5], D10: params[6], D11: params[7],
		}, nil
	}
	return nil, errorf(e, "unknown ComparisonMeasure metric")
}

func clusteringField(e *Element) (*models.ClusteringField, error) {
	field, err := requiredAttr(e, "field")
	if err != nil {
		return nil, err
	}
	center, err := boolAttr(e, "isCenterField", true)
	if err != nil {
		return nil, err
	}
	f := &models.ClusteringField{
		Field:           field,
		NotCenterField:  !center,
		CompareFunction: e.AttrDefault("compareFunction", ""),
	}
	if f.FieldWeight, err = floatAttr(e, "fieldWeight"); err != nil {
		return nil, err
	}
	if f.SimilarityScale, err = floatAttr(e, "similarityScale"); err != nil {
		return nil, err
	}
	if c := e.Child("Comparisons"); c != nil {
		mat := c.Child("Matrix")
		if mat == nil {
			return nil, errorf(c, "Comparisons needs a Matrix")
		}
		if f.Comparisons, err = matrix(mat); err != nil {
			return nil, err
		}
	}
	return f, nil
}

func clusterElement(e *Element) (*models.Cluster, error) {
	c := &models.Cluster{ID: e.AttrDefault("id", ""), Name: e.AttrDefault("name", "")}
	array := e.Child("Array")
	if array == nil {
		return nil, errorf(e, "Cluster needs an Array of center values")
	}
	var err error
	if c.Center, err = arrayValues(array); err != nil {
		return nil, err
	}
	if cov := e.Child("Covariances"); cov != nil {
		mat := cov.Child("Matrix")
		if mat == nil {
			return nil, errorf(cov, "Covariances needs a Matrix")
		}
		if c.Covariances, err = matrix(mat); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func buildBaselineModel(l *Loader, e *Element) (interface{}, error) {
	base, err := l.modelBase(e)
	if err != nil {
		return nil, err
	}
	m := &models.BaselineModel{ModelBase: base, StateID: e.AttrDefault("stateId", "")}
	td := e.Child("TestDistributions")
	if td == nil {
		return nil, errorf(e, "BaselineModel needs TestDistributions")
	}
	if m.TestDistributions.Field, err = requiredAttr(td, "field"); err != nil {
		return nil, err
	}
	if m.TestDistributions.TestStatistic, err = requiredAttr(td, "testStatistic"); err != nil {
		return nil, err
	}
	if m.TestDistributions.ResetValue, err = floatAttrDefault(td, "resetValue", 0); err != nil {
		return nil, err
	}
	b := td.Child("Baseline")
	if b == nil {
		return nil, errorf(td, "TestDistributions needs a Baseline")
	}
	if m.TestDistributions.Baseline, err = distribution(b); err != nil {
		return nil, err
	}
	if a := td.Child("Alternate"); a != nil {
		if m.TestDistributions.Alternate, err = distribution(a); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// distribution reads the single distribution inside <Baseline> or
// <Alternate>
func distribution(e *Element) (models.Distribution, error) {
	for _, c := range e.Children {
		switch c.Tag {
		case "Extension":
			continue
		case "GaussianDistribution":
			mean, err := floatAttr(c, "mean")
			if err != nil {
				return nil, err
			}
			variance, err := floatAttr(c, "variance")
			if err != nil {
				return nil, err
			}
			if mean == nil || variance == nil {
				return nil, errorf(c, "GaussianDistribution needs mean and variance")
			}
			return models.GaussianDistribution{Mean: *mean, Variance: *variance}, nil
		case "PoissonDistribution":
			mean, err := floatAttr(c, "mean")
			if err != nil {
				return nil, err
			}
			if mean == nil {
				return nil, errorf(c, "PoissonDistribution needs a mean")
			}
			return models.PoissonDistribution{Mean: *mean}, nil
		default:
			return nil, errorf(c, "distribution is not supported")
		}
	}
	return nil, errorf(e, "expected a distribution")
}
