package models

import (
	"sort"

	"augustus/columnar"
	"augustus/core"
	"augustus/vectorized"
)

// MissingValueStrategy decides what happens to rows whose child
// predicates could not be evaluated because of missing data
type MissingValueStrategy int

const (
	MissingNone MissingValueStrategy = iota
	LastPrediction
	NullPrediction
	DefaultChild
	WeightedConfidence
	AggregateNodes
)

// ParseMissingValueStrategy reads the PMML attribute; "" is "none"
func ParseMissingValueStrategy(s string) (MissingValueStrategy, error) {
	switch s {
	case "", "none":
		return MissingNone, nil
	case "lastPrediction":
		return LastPrediction, nil
	case "nullPrediction":
		return NullPrediction, nil
	case "defaultChild":
		return DefaultChild, nil
	case "weightedConfidence":
		return WeightedConfidence, nil
	case "aggregateNodes":
		return AggregateNodes, nil
	}
	return MissingNone, core.NewValidationError("unknown missingValueStrategy %q", s)
}

// NoTrueChildStrategy decides what happens to rows that no child accepts
type NoTrueChildStrategy int

const (
	ReturnNullPrediction NoTrueChildStrategy = iota
	ReturnLastPrediction
)

// ParseNoTrueChildStrategy reads the PMML attribute; "" is
// "returnNullPrediction"
func ParseNoTrueChildStrategy(s string) (NoTrueChildStrategy, error) {
	switch s {
	case "", "returnNullPrediction":
		return ReturnNullPrediction, nil
	case "returnLastPrediction":
		return ReturnLastPrediction, nil
	}
	return ReturnNullPrediction, core.NewValidationError("unknown noTrueChildStrategy %q", s)
}

// ScoreDistribution is the class histogram recorded at a node
type ScoreDistribution struct {
	Value       string
	RecordCount float64
	Confidence  *float64
	Probability *float64
}

// Node is one node of a decision tree
type Node struct {
	ID                 string
	Score              *string
	DefaultChild       string
	Predicate          core.Predicate
	ScoreDistributions []ScoreDistribution
	Children           []*Node
}

// best returns the distribution with the highest record count, the
// first one on ties
func (n *Node) best() *ScoreDistribution {
	var best *ScoreDistribution
	for i := range n.ScoreDistributions {
		sd := &n.ScoreDistributions[i]
		if best == nil || sd.RecordCount > best.RecordCount {
			best = sd
		}
	}
	return best
}

func (n *Node) predicate() core.Predicate {
	if n.Predicate == nil {
		return core.TruePredicate{}
	}
	return n.Predicate
}

func (n *Node) child(id string) *Node {
	for _, c := range n.Children {
		if c.ID == id {
			return c
		}
	}
	return nil
}

// TreeModel scores rows by walking them down a tree of predicates.
// Classification trees predict strings, regression trees doubles.
type TreeModel struct {
	core.ModelBase
	MissingValueStrategy MissingValueStrategy
	// MissingValuePenalty multiplies the confidence of a row once for
	// every node where its predicates met missing data; zero means 1
	MissingValuePenalty float64
	NoTrueChildStrategy NoTrueChildStrategy
	Root                *Node
}

// treeScore collects the score features for all rows of the model's
// table while the walk visits subsets of them
type treeScore struct {
	predicted     *featureColumn
	entityID      *featureColumn
	confidence    *featureColumn
	probability   *featureColumn
	probabilities map[string]*featureColumn
	values        []string
	penalty       []float64
}

// featureColumn is a score column filled in by row number; rows never
// assigned end up INVALID
type featureColumn struct {
	fieldType *vectorized.FieldType
	data      interface{}
	set       *columnar.RowSet
}

func newFeatureColumn(fieldType *vectorized.FieldType, length int) *featureColumn {
	return &featureColumn{fieldType: fieldType, data: fieldType.Storage().MakeData(length), set: columnar.NewRowSet()}
}

func (f *featureColumn) assign(rows []int, value interface{}) {
	for _, row := range rows {
		vectorized.SetStored(f.data, row, value)
		f.set.Add(row)
	}
}

func (f *featureColumn) column(length int) *vectorized.DataColumn {
	unset := columnar.AllRows(length).AndNot(f.set)
	var mask []vectorized.Mask
	if !unset.IsEmpty() {
		mask = vectorized.MaskFromBools(unset.ToBools(length), vectorized.Invalid)
	}
	return vectorized.NewDataColumn(f.fieldType, f.data, mask)
}

var (
	doubleType      = vectorized.NewFieldType(vectorized.DOUBLE, vectorized.CONTINUOUS)
	integerType     = vectorized.NewFieldType(vectorized.INTEGER, vectorized.CONTINUOUS)
	categoricalType = vectorized.NewFieldType(vectorized.STRING, vectorized.CATEGORICAL)
)

// CalculateScore walks every row from the root. Features: "" is the
// predicted value; "entityId", "confidence", "probability" and
// "probability.<value>" are present when the tree declares node ids or
// score distributions.
func (m *TreeModel) CalculateScore(table *core.DataTable, functions *core.FunctionTable, perf core.Performance) (core.Score, error) {
	perf.Begin("TreeModel")
	defer perf.End("TreeModel")

	perf.Begin("set up")
	var predictedType *vectorized.FieldType
	switch m.FunctionName {
	case "classification":
		predictedType = categoricalType
	case "regression":
		predictedType = doubleType
	default:
		perf.End("set up")
		return nil, core.NewValidationError("TreeModel functionName may only be \"classification\" or \"regression\", not %q", m.FunctionName)
	}
	if m.Root == nil {
		perf.End("set up")
		return nil, core.NewValidationError("TreeModel has no root Node")
	}
	switch m.MissingValueStrategy {
	case WeightedConfidence, AggregateNodes:
		perf.End("set up")
		return nil, core.NewValidationError("TreeModel missingValueStrategy weightedConfidence and aggregateNodes are not supported")
	}

	length := table.Len()
	s := &treeScore{predicted: newFeatureColumn(predictedType, length)}
	hasIDs, hasConfidence, values := survey(m.Root)
	if hasIDs {
		s.entityID = newFeatureColumn(categoricalType, length)
	}
	if hasConfidence {
		s.confidence = newFeatureColumn(doubleType, length)
		s.penalty = make([]float64, length)
		for i := range s.penalty {
			s.penalty[i] = 1
		}
	}
	if len(values) > 0 {
		s.probability = newFeatureColumn(doubleType, length)
		s.values = values
		s.probabilities = make(map[string]*featureColumn, len(values))
		for _, v := range values {
			s.probabilities[v] = newFeatureColumn(doubleType, length)
		}
	}
	rows := make([]int, length)
	for i := range rows {
		rows[i] = i
	}
	perf.End("set up")

	selection, err := core.Select(m.Root.predicate(), table, functions, perf)
	if err != nil {
		return nil, err
	}
	if err := m.walk(m.Root, table, rows, selection, s, functions, perf); err != nil {
		return nil, err
	}

	score := core.Score{"": s.predicted.column(length)}
	if s.entityID != nil {
		score["entityId"] = s.entityID.column(length)
	}
	if s.confidence != nil {
		confidence := s.confidence.data.([]float64)
		for i, p := range s.penalty {
			confidence[i] *= p
		}
		score["confidence"] = s.confidence.column(length)
	}
	if s.probability != nil {
		score["probability"] = s.probability.column(length)
		for _, v := range s.values {
			score["probability."+v] = s.probabilities[v].column(length)
		}
	}
	return score, nil
}

// survey reports which optional features the tree can produce
func survey(root *Node) (hasIDs, hasConfidence bool, values []string) {
	seen := map[string]bool{}
	var visit func(n *Node)
	visit = func(n *Node) {
		if n.ID != "" {
			hasIDs = true
		}
		for _, sd := range n.ScoreDistributions {
			if sd.Confidence != nil {
				hasConfidence = true
			}
			if !seen[sd.Value] {
				seen[sd.Value] = true
				values = append(values, sd.Value)
			}
		}
		for _, c := range n.Children {
			visit(c)
		}
	}
	visit(root)
	sort.Strings(values)
	return hasIDs, hasConfidence, values
}

// walk scores the rows of table selected by selection at node n. rows
// maps the rows of table to rows of the model's table.
func (m *TreeModel) walk(n *Node, table *core.DataTable, rows []int, selection []bool, s *treeScore, functions *core.FunctionTable, perf core.Performance) error {
	selected := pick(rows, selection)
	if len(selected) == 0 {
		return nil
	}
	if len(n.Children) == 0 {
		return m.leaf(n, selected, s, perf)
	}

	perf.Begin("split downward")
	sub := table.SubTable(selection)
	length := sub.Len()
	unset := columnar.AllRows(length)
	perf.End("split downward")

	for _, child := range n.Children {
		result, err := child.predicate().Evaluate(sub, functions, perf)
		if err != nil {
			return err
		}
		open := unset.ToBools(length)
		childSelection := make([]bool, length)
		unknowns := make([]bool, length)
		anyUnknown := false
		for i := range open {
			childSelection[i] = open[i] && result.Selection[i] && !result.Unknowns[i]
			unknowns[i] = open[i] && result.Unknowns[i]
			anyUnknown = anyUnknown || unknowns[i]
		}
		unset = unset.AndNot(columnar.RowSetFromBools(childSelection))

		if err := m.walk(child, sub, selected, childSelection, s, functions, perf); err != nil {
			return err
		}

		if anyUnknown {
			if s.penalty != nil && m.MissingValuePenalty != 0 {
				for _, row := range pick(selected, unknowns) {
					s.penalty[row] *= m.MissingValuePenalty
				}
			}
			unknownRows := columnar.RowSetFromBools(unknowns)
			switch m.MissingValueStrategy {
			case LastPrediction:
				if err := m.leaf(n, pick(selected, unknowns), s, perf); err != nil {
					return err
				}
				unset = unset.AndNot(unknownRows)
			case NullPrediction:
				unset = unset.AndNot(unknownRows)
			case DefaultChild:
				if n.DefaultChild == "" {
					return core.NewValidationError("when missingValueStrategy is \"defaultChild\", every non-leaf node must have a defaultChild attribute")
				}
				target := n.child(n.DefaultChild)
				if target == nil {
					return core.NewValidationError("the defaultChild %q is not found (no such id at this level)", n.DefaultChild)
				}
				unset = unset.AndNot(unknownRows)
				if err := m.walk(target, sub, selected, unknowns, s, functions, perf); err != nil {
					return err
				}
			}
		}
		if unset.IsEmpty() {
			break
		}
	}

	if m.NoTrueChildStrategy == ReturnLastPrediction && !unset.IsEmpty() {
		return m.leaf(n, pick(selected, unset.ToBools(length)), s, perf)
	}
	return nil
}

// leaf assigns the node's score to rows
func (m *TreeModel) leaf(n *Node, rows []int, s *treeScore, perf core.Performance) error {
	perf.Begin("set scores")
	defer perf.End("set scores")

	best := n.best()
	var value *string
	if n.Score != nil {
		value = n.Score
	} else if best != nil {
		value = &best.Value
	}
	if value != nil {
		v, err := s.predicted.fieldType.StringToValue(*value)
		if err != nil {
			return core.NewValidationError("Node %q score %q: %v", n.ID, *value, err)
		}
		s.predicted.assign(rows, v)
	}
	if s.entityID != nil && n.ID != "" {
		s.entityID.assign(rows, n.ID)
	}
	if best == nil {
		return nil
	}
	if s.confidence != nil && best.Confidence != nil {
		s.confidence.assign(rows, *best.Confidence)
	}
	if s.probability != nil {
		total := 0.0
		for _, sd := range n.ScoreDistributions {
			total += sd.RecordCount
		}
		probability := func(sd *ScoreDistribution) (float64, bool) {
			if sd.Probability != nil {
				return *sd.Probability, true
			}
			if total > 0 {
				return sd.RecordCount / total, true
			}
			return 0, false
		}
		if p, ok := probability(best); ok {
			s.probability.assign(rows, p)
		}
		for _, v := range s.values {
			p, ok := 0.0, total > 0
			for i := range n.ScoreDistributions {
				if n.ScoreDistributions[i].Value == v {
					p, ok = probability(&n.ScoreDistributions[i])
					break
				}
			}
			if ok {
				s.probabilities[v].assign(rows, p)
			}
		}
	}
	return nil
}

// pick returns rows[i] for every selected i
func pick(rows []int, selection []bool) []int {
	out := make([]int, 0, len(selection))
	for i, s := range selection {
		if s {
			out = append(out, rows[i])
		}
	}
	return out
}
