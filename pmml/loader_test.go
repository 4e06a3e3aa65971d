package pmml

import (
	"math"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"

	"augustus/core"
	"augustus/models"
	"augustus/vectorized"
)

const sizesPMML = `<?xml version="1.0"?>
<PMML version="4.1" xmlns="http://www.dmg.org/PMML-4_1">
  <Header copyright="none"/>
  <DataDictionary>
    <DataField name="x" dataType="double" optype="continuous"/>
    <DataField name="color" dataType="string" optype="categorical">
      <Value value="red"/>
      <Value value="blue" displayValue="Blue"/>
    </DataField>
  </DataDictionary>
  <TransformationDictionary>
    <DefineFunction name="twice" optype="continuous" dataType="double">
      <ParameterField name="a"/>
      <Apply function="*">
        <FieldRef field="a"/>
        <Constant>2</Constant>
      </Apply>
    </DefineFunction>
    <DerivedField name="x2" dataType="double" optype="continuous">
      <Apply function="twice">
        <FieldRef field="x"/>
      </Apply>
    </DerivedField>
  </TransformationDictionary>
  <TreeModel modelName="sizes" functionName="classification" missingValueStrategy="lastPrediction">
    <MiningSchema>
      <MiningField name="x"/>
      <MiningField name="color" usageType="supplementary"/>
    </MiningSchema>
    <Output>
      <OutputField name="size" feature="predictedValue"/>
      <OutputField name="node" feature="entityId"/>
    </Output>
    <Node id="root" score="unknown">
      <True/>
      <Node id="small" score="small">
        <SimplePredicate field="x2" operator="lessThan" value="10"/>
      </Node>
      <Node id="big" score="big">
        <SimplePredicate field="x2" operator="greaterOrEqual" value="10"/>
      </Node>
    </Node>
  </TreeModel>
</PMML>`

func TestLoadDocument(t *testing.T) {
	doc, err := NewLoader().Load(strings.NewReader(sizesPMML))
	require.NoError(t, err)

	assert.Equal(t, "4.1", doc.Version)
	require.Len(t, doc.DataDictionary, 2)
	color := doc.DataDictionary[1].Type
	assert.Equal(t, vectorized.STRING, color.DataType())
	assert.Equal(t, vectorized.CATEGORICAL, color.OpType())
	assert.Equal(t, "Blue", color.Values()[1].DisplayValue)

	require.Len(t, doc.TransformationDictionary, 2)
	fn, ok := doc.TransformationDictionary[0].(*core.DefineFunction)
	require.True(t, ok)
	assert.Equal(t, "twice", fn.Name)
	assert.Equal(t, []core.ParameterField{{Name: "a"}}, fn.Parameters)

	require.Len(t, doc.Models, 1)
	tree, ok := doc.Models[0].(*models.TreeModel)
	require.True(t, ok)
	assert.Equal(t, models.LastPrediction, tree.MissingValueStrategy)
	assert.Equal(t, 1.0, tree.MissingValuePenalty)
	assert.Equal(t, []string{"x"}, doc.RequiredFields())
	assert.Equal(t, core.TruePredicate{}, tree.Root.Predicate)
	require.Len(t, tree.Root.Children, 2)
	assert.Equal(t, &core.SimplePredicate{Field: "x2", Operator: "lessThan", Value: "10"}, tree.Root.Children[0].Predicate)

	t.Run("Score", func(t *testing.T) {
		table, err := doc.Score(map[string]interface{}{"x": []float64{1, 7, math.NaN()}}, nil)
		require.NoError(t, err)
		assert.Equal(t, []string{"small", "big", "unknown"}, table.Score.Strings())
		assert.Nil(t, table.Score.Mask)

		node, ok := table.Output.Lookup("node")
		require.True(t, ok)
		assert.Equal(t, []string{"small", "big", "root"}, node.Strings())
		size, ok := table.Output.Lookup("size")
		require.True(t, ok)
		assert.Equal(t, table.Score.Strings(), size.Strings())
	})

	t.Run("MissingInput", func(t *testing.T) {
		_, err := doc.Score(map[string]interface{}{"color": []string{"red"}}, nil)
		assert.True(t, core.IsDataIngestError(err))
	})
}

func TestLoadFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/models/sizes.pmml", []byte(sizesPMML), 0o644))

	doc, err := NewLoader().LoadFile(fs, "/models/sizes.pmml")
	require.NoError(t, err)
	assert.Len(t, doc.Models, 1)

	_, err = NewLoader().LoadFile(fs, "/models/absent.pmml")
	assert.Error(t, err)
}

func TestLoadErrorsAccumulate(t *testing.T) {
	const broken = `<PMML version="4.1">
  <DataDictionary>
    <DataField name="a" dataType="complex" optype="continuous"/>
    <DataField name="b" dataType="string" optype="categorical">
      <Interval closure="openOpen" leftMargin="0"/>
    </DataField>
    <DataField name="c" dataType="double" optype="continuous"/>
  </DataDictionary>
  <NeuralNetwork functionName="regression"/>
</PMML>`
	_, err := NewLoader().Load(strings.NewReader(broken))
	require.Error(t, err)
	errs := multierr.Errors(err)
	require.Len(t, errs, 3)
	for _, e := range errs {
		assert.True(t, core.IsValidationError(e), e.Error())
	}
	assert.Contains(t, errs[0].Error(), "line 3")
	assert.Contains(t, errs[2].Error(), "<NeuralNetwork>")

	t.Run("NotPMML", func(t *testing.T) {
		_, err := NewLoader().Load(strings.NewReader(`<html/>`))
		assert.True(t, core.IsValidationError(err))
	})

	t.Run("BadXML", func(t *testing.T) {
		_, err := NewLoader().Load(strings.NewReader(`<PMML><DataDictionary></PMML>`))
		assert.Error(t, err)
	})
}

func TestExpressions(t *testing.T) {
	l := NewLoader()
	build := func(t *testing.T, text string) core.Expression {
		root, err := Parse(strings.NewReader(text))
		require.NoError(t, err)
		expr, err := l.Expression(root)
		require.NoError(t, err)
		return expr
	}

	t.Run("NormContinuous", func(t *testing.T) {
		expr := build(t, `<NormContinuous field="x" outliers="asExtremeValues" mapMissingTo="0.5">
			<LinearNorm orig="0" norm="0"/><LinearNorm orig="10" norm="1"/></NormContinuous>`)
		half := 0.5
		assert.Equal(t, &core.NormContinuous{
			Field:        "x",
			LinearNorms:  []core.LinearNorm{{Orig: 0, Norm: 0}, {Orig: 10, Norm: 1}},
			Outliers:     core.OutliersAsExtremeValues,
			MapMissingTo: &half,
		}, expr)
	})

	t.Run("Discretize", func(t *testing.T) {
		expr := build(t, `<Discretize field="x" defaultValue="mid" dataType="string">
			<DiscretizeBin binValue="low"><Interval closure="openOpen" rightMargin="0"/></DiscretizeBin>
			<DiscretizeBin binValue="high"><Interval closure="closedOpen" leftMargin="10"/></DiscretizeBin>
			</Discretize>`)
		d := expr.(*core.Discretize)
		require.Len(t, d.Bins, 2)
		assert.Equal(t, "high", d.Bins[1].BinValue)
		assert.Equal(t, vectorized.ClosedOpen, d.Bins[1].Interval.Closure)
		assert.Equal(t, "10", *d.Bins[1].Interval.LeftMargin)
		assert.Nil(t, d.Bins[1].Interval.RightMargin)
		assert.Equal(t, "mid", *d.DefaultValue)
		assert.Equal(t, vectorized.STRING, *d.DataType)
	})

	t.Run("MapValues", func(t *testing.T) {
		expr := build(t, `<MapValues outputColumn="out" mapMissingTo="?">
			<FieldColumnPair field="x" column="in"/>
			<InlineTable>
				<row><in>a</in><out>1</out></row>
				<row><in>b</in><out>2</out></row>
			</InlineTable></MapValues>`)
		m := expr.(*core.MapValues)
		assert.Equal(t, []core.FieldColumnPair{{Field: "x", Column: "in"}}, m.FieldColumnPairs)
		assert.Equal(t, []map[string]string{{"in": "a", "out": "1"}, {"in": "b", "out": "2"}}, m.Rows)
		assert.Equal(t, "?", *m.MapMissingTo)
		assert.Nil(t, m.DefaultValue)
	})

	t.Run("Aggregate", func(t *testing.T) {
		expr := build(t, `<Aggregate field="x" function="sum" groupField="g" stateId="running"/>`)
		a := expr.(*core.Aggregate)
		assert.Equal(t, "sum", a.Function)
		assert.Equal(t, "g", *a.GroupField)
		assert.Equal(t, "running", *a.StateID)
		assert.Nil(t, a.SQLWhere)
	})

	t.Run("Formula", func(t *testing.T) {
		expr := build(t, `<Formula>x + 1</Formula>`)
		assert.Equal(t, &core.Formula{Text: "x + 1"}, expr)
	})

	t.Run("Apply", func(t *testing.T) {
		expr := build(t, `<Apply function="if" mapMissingTo="0" invalidValueTreatment="asMissing">
			<Extension name="ignored"/>
			<FieldRef field="flag"/><Constant dataType="integer">1</Constant><Constant>2</Constant></Apply>`)
		a := expr.(*core.Apply)
		require.Len(t, a.Arguments, 3)
		assert.Equal(t, vectorized.AsMissing, a.InvalidValueTreatment)
		assert.Equal(t, vectorized.INTEGER, *a.Arguments[1].(*core.Constant).DataType)
		assert.Nil(t, a.Arguments[2].(*core.Constant).DataType)
	})

	t.Run("NotAnExpression", func(t *testing.T) {
		root, err := Parse(strings.NewReader(`<SimplePredicate field="x" operator="isMissing"/>`))
		require.NoError(t, err)
		_, err = l.Expression(root)
		assert.True(t, core.IsValidationError(err))
	})
}

func TestPredicates(t *testing.T) {
	l := NewLoader()
	root, err := Parse(strings.NewReader(`<CompoundPredicate booleanOperator="or">
		<SimpleSetPredicate field="color" booleanOperator="isIn">
			<Array n="3" type="string">red "dark blue" "say \"hi\""</Array>
		</SimpleSetPredicate>
		<SimplePredicate field="x" operator="isMissing"/>
		<False/>
	</CompoundPredicate>`))
	require.NoError(t, err)
	p, err := l.Predicate(root)
	require.NoError(t, err)

	want := &core.CompoundPredicate{
		BooleanOperator: "or",
		Predicates: []core.Predicate{
			&core.SimpleSetPredicate{Field: "color", BooleanOperator: "isIn", Values: []string{"red", "dark blue", `say "hi"`}},
			&core.SimplePredicate{Field: "x", Operator: "isMissing"},
			core.FalsePredicate{},
		},
	}
	assert.Equal(t, want, p)

	root, err = Parse(strings.NewReader(`<SimplePredicate field="x" operator="equal"/>`))
	require.NoError(t, err)
	_, err = l.Predicate(root)
	assert.True(t, core.IsValidationError(err))
}

func parseMatrix(t *testing.T, text string) ([][]float64, error) {
	root, err := Parse(strings.NewReader(text))
	require.NoError(t, err)
	return matrix(root)
}

func TestMatrix(t *testing.T) {
	cases := []struct {
		name string
		text string
		want [][]float64
	}{
		{"Any", `<Matrix><Array type="real">1 2</Array><Array type="real">3 4</Array></Matrix>`, [][]float64{{1, 2}, {3, 4}}},
		{"Diagonal", `<Matrix kind="diagonal"><Array type="real">1 2</Array></Matrix>`, [][]float64{{1, 0}, {0, 2}}},
		{"Symmetric", `<Matrix kind="symmetric"><Array type="real">1</Array><Array type="real">2 3</Array></Matrix>`, [][]float64{{1, 2}, {2, 3}}},
		{"Sparse", `<Matrix nbRows="2" nbCols="3" diagDefault="1" offDiagDefault="0"><MatCell row="2" col="3">5</MatCell></Matrix>`, [][]float64{{1, 0, 0}, {0, 1, 5}}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got, err := parseMatrix(t, c.text)
			require.NoError(t, err)
			if diff := cmp.Diff(c.want, got); diff != "" {
				t.Errorf("matrix mismatch (-want +got):\n%s", diff)
			}
		})
	}

	bad := []string{
		`<Matrix><Array type="real">1 2</Array><Array type="real">3</Array></Matrix>`,
		`<Matrix nbRows="3"><Array type="real">1 2</Array></Matrix>`,
		`<Matrix kind="symmetric"><Array type="real">1 2</Array></Matrix>`,
		`<Matrix><MatCell row="1" col="1">1</MatCell></Matrix>`,
		`<Matrix kind="triangular"><Array type="real">1</Array></Matrix>`,
	}
	for _, text := range bad {
		_, err := parseMatrix(t, text)
		assert.True(t, core.IsValidationError(err), text)
	}
}

const clustersPMML = `<PMML version="4.1">
  <DataDictionary>
    <DataField name="x" dataType="double" optype="continuous"/>
    <DataField name="y" dataType="double" optype="continuous"/>
  </DataDictionary>
  <ClusteringModel modelName="groups" functionName="clustering" modelClass="centerBased" numberOfClusters="2">
    <MiningSchema>
      <MiningField name="x"/>
      <MiningField name="y"/>
    </MiningSchema>
    <ComparisonMeasure kind="distance">
      <squaredEuclidean/>
    </ComparisonMeasure>
    <ClusteringField field="x"/>
    <ClusteringField field="y" fieldWeight="2"/>
    <Cluster id="near" name="Near"><Array n="2" type="real">0 0</Array></Cluster>
    <Cluster id="far" name="Far"><Array n="2" type="real">10 10</Array></Cluster>
  </ClusteringModel>
</PMML>`

func TestLoadClusteringModel(t *testing.T) {
	doc, err := NewLoader().Load(strings.NewReader(clustersPMML))
	require.NoError(t, err)
	m, ok := doc.Models[0].(*models.ClusteringModel)
	require.True(t, ok)
	assert.Equal(t, models.Distance, m.Kind)
	assert.Equal(t, models.SquaredEuclidean{}, m.Metric)
	assert.Equal(t, "absDiff", m.CompareFunction)
	require.Len(t, m.Fields, 2)
	assert.Nil(t, m.Fields[0].FieldWeight)
	assert.Equal(t, 2.0, *m.Fields[1].FieldWeight)
	assert.Equal(t, []string{"10", "10"}, m.Clusters[1].Center)

	table, err := doc.Score(map[string]interface{}{"x": []float64{1, 9}, "y": []float64{1, 8}}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"near", "far"}, table.Score.Strings())
	affinity, ok := table.Fields.Lookup("groups.affinity")
	require.True(t, ok)
	// 1 + 2*1 and 1 + 2*4
	assert.Equal(t, []float64{3, 9}, affinity.Float64s())

	t.Run("Metrics", func(t *testing.T) {
		cases := map[string]models.Metric{
			`<minkowski p-parameter="3"/>`: models.Minkowski{P: 3},
			`<binarySimilarity c00-parameter="0" c01-parameter="1" c10-parameter="1" c11-parameter="1" d00-parameter="1" d01-parameter="1" d10-parameter="1" d11-parameter="1"/>`: models.BinarySimilarity{
				C01: 1, C10: 1, C11: 1, D00: 1, D01: 1, D10: 1, D11: 1,
			},
			`<jaccard/>`: models.Jaccard{},
		}
		for text, want := range cases {
			root, err := Parse(strings.NewReader(text))
			require.NoError(t, err)
			got, err := metric(root)
			require.NoError(t, err)
			assert.Equal(t, want, got)
		}
		root, err := Parse(strings.NewReader(`<minkowski/>`))
		require.NoError(t, err)
		_, err = metric(root)
		assert.True(t, core.IsValidationError(err))
	})

	t.Run("WrongClusterCount", func(t *testing.T) {
		text := strings.Replace(clustersPMML, `numberOfClusters="2"`, `numberOfClusters="3"`, 1)
		_, err := NewLoader().Load(strings.NewReader(text))
		assert.True(t, core.IsValidationError(err))
	})
}

func TestLoadBaselineModel(t *testing.T) {
	const text = `<PMML version="4.1">
  <DataDictionary>
    <DataField name="x" dataType="double" optype="continuous"/>
  </DataDictionary>
  <BaselineModel functionName="regression" stateId="alarm">
    <MiningSchema><MiningField name="x"/></MiningSchema>
    <TestDistributions field="x" testStatistic="CUSUM" resetValue="0.5">
      <Baseline><GaussianDistribution mean="0" variance="1"/></Baseline>
      <Alternate><PoissonDistribution mean="4"/></Alternate>
    </TestDistributions>
  </BaselineModel>
</PMML>`
	doc, err := NewLoader().Load(strings.NewReader(text))
	require.NoError(t, err)
	m, ok := doc.Models[0].(*models.BaselineModel)
	require.True(t, ok)
	assert.Equal(t, "alarm", m.StateID)
	assert.Equal(t, models.TestDistributions{
		Field:         "x",
		TestStatistic: "CUSUM",
		ResetValue:    0.5,
		Baseline:      models.GaussianDistribution{Mean: 0, Variance: 1},
		Alternate:     models.PoissonDistribution{Mean: 4},
	}, m.TestDistributions)

	unsupported := strings.Replace(text, `<PoissonDistribution mean="4"/>`, `<UniformDistribution lower="0" upper="1"/>`, 1)
	_, err = NewLoader().Load(strings.NewReader(unsupported))
	assert.True(t, core.IsValidationError(err))
}

func TestRegister(t *testing.T) {
	l := NewLoader()
	l.Register("Zero", KindExpression, func(*Loader, *Element) (interface{}, error) {
		return core.NewConstant("0", vectorized.DOUBLE), nil
	})
	root, err := Parse(strings.NewReader(`<Apply function="+"><Zero/><Constant>1</Constant></Apply>`))
	require.NoError(t, err)
	expr, err := l.Expression(root)
	require.NoError(t, err)
	assert.Len(t, expr.(*core.Apply).Arguments, 2)
	assert.Contains(t, l.Tags(KindExpression), "Zero")
	assert.Contains(t, l.Tags(KindModel), "TreeModel")
}
