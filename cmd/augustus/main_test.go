package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"augustus/catalog"
	"augustus/core"
	"augustus/pmml"
	"augustus/vectorized"
)

const sizesPMML = `<PMML version="4.1">
  <DataDictionary>
    <DataField name="x" dataType="double" optype="continuous"/>
    <DataField name="color" dataType="string" optype="categorical">
      <Value value="red"/>
      <Value value="blue"/>
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

func sizesDocument(t *testing.T) *core.Document {
	t.Helper()
	doc, err := pmml.NewLoader().Load(strings.NewReader(sizesPMML))
	require.NoError(t, err)
	return doc
}

// fakeSource hands out prepared batches, then reports end of input
type fakeSource struct {
	batches []map[string]interface{}
	limits  []int
	names   []string
}

func (f *fakeSource) ReadColumns(limit int, names []string) (map[string]interface{}, int, error) {
	f.limits = append(f.limits, limit)
	f.names = names
	if len(f.batches) == 0 {
		return map[string]interface{}{}, 0, nil
	}
	b := f.batches[0]
	f.batches = f.batches[1:]
	return b, len(b["x"].([]interface{})), nil
}

func sizesSource() *fakeSource {
	return &fakeSource{batches: []map[string]interface{}{
		{"x": []interface{}{1.0, 7.0}},
		{"x": []interface{}{nil}},
	}}
}

func gatherCounter(t *testing.T, s *scorer, name string) float64 {
	t.Helper()
	mfs, err := s.metrics.Registry().Gather()
	require.NoError(t, err)
	for _, mf := range mfs {
		if mf.GetName() == name {
			return mf.GetMetric()[0].GetCounter().GetValue()
		}
	}
	t.Fatalf("metric %s not gathered", name)
	return 0
}

func TestScorer(t *testing.T) {
	const expected = "size,node\nsmall,small\nbig,big\nunknown,root\n"

	for _, workers := range []int{1, 2, 4} {
		t.Run(fmt.Sprintf("Workers%d", workers), func(t *testing.T) {
			config := core.DefaultConfig()
			config.Input.Workers = workers
			config.Input.BatchSize = 2
			sc := newScorer(sizesDocument(t), config)
			source := sizesSource()

			var out bytes.Buffer
			require.NoError(t, sc.run(context.Background(), source, &out))
			assert.Equal(t, expected, out.String())
			assert.Equal(t, []string{"x", "color"}, source.names)
			assert.Equal(t, 2, source.limits[0])
			assert.Equal(t, 3.0, gatherCounter(t, sc, "augustus_engine_rows_scored_total"))
			assert.Equal(t, 0.0, gatherCounter(t, sc, "augustus_engine_rows_rejected_total"))
		})
	}

	t.Run("Profile", func(t *testing.T) {
		config := core.DefaultConfig()
		config.Performance.Enabled = true
		sc := newScorer(sizesDocument(t), config)
		require.NoError(t, sc.run(context.Background(), sizesSource(), &bytes.Buffer{}))
		assert.Equal(t, 2, sc.perf.Calls("PMML"))

		var report bytes.Buffer
		require.NoError(t, sc.perf.Look(&report, "name"))
		assert.Contains(t, report.String(), "PMML")
	})

	t.Run("SharedState", func(t *testing.T) {
		config := core.DefaultConfig()
		config.Input.Workers = 3
		sc := newScorer(sizesDocument(t), config)
		sc.state = core.NewDataTableState()
		assert.Equal(t, 1, sc.workers())
	})

	t.Run("MissingField", func(t *testing.T) {
		sc := newScorer(sizesDocument(t), core.DefaultConfig())
		source := &countedSource{batches: []map[string]interface{}{{"color": []interface{}{"red"}}}, rows: 1}
		err := sc.run(context.Background(), source, &bytes.Buffer{})
		assert.True(t, core.IsDataIngestError(err))
	})

	t.Run("Empty", func(t *testing.T) {
		sc := newScorer(sizesDocument(t), core.DefaultConfig())
		var out bytes.Buffer
		require.NoError(t, sc.run(context.Background(), &fakeSource{}, &out))
		assert.Empty(t, out.String())
	})
}

// countedSource reports a fixed row count for every batch
type countedSource struct {
	batches []map[string]interface{}
	rows    int
}

func (c *countedSource) ReadColumns(limit int, names []string) (map[string]interface{}, int, error) {
	if len(c.batches) == 0 {
		return map[string]interface{}{}, 0, nil
	}
	b := c.batches[0]
	c.batches = c.batches[1:]
	return b, c.rows, nil
}

func TestOutputHeader(t *testing.T) {
	table := core.NewDataTable(0)
	assert.Equal(t, []string{"score.0", "score.1"}, outputHeader(&core.DataTable{Output: table.Output, Scores: make([]*vectorized.DataColumn, 2)}))
}

func TestRunShell(t *testing.T) {
	in := strings.Join([]string{
		"help",
		`\d`,
		`\r`,
		"x=1",
		"x=7, color=blue",
		"x=",
		"bogus",
		"exit",
		"x=1",
	}, "\n")

	var out bytes.Buffer
	require.NoError(t, runShell(sizesDocument(t), strings.NewReader(in), &out))
	text := out.String()

	assert.Contains(t, text, "Meta commands:")
	assert.Contains(t, text, "  color string/categorical")
	assert.Contains(t, text, "  x\n")
	assert.Contains(t, text, "  size = small\n  node = small\n")
	assert.Contains(t, text, "  size = big\n  node = big\n")
	assert.Contains(t, text, "  size = unknown\n  node = root\n")
	assert.Contains(t, text, `Error: expected name=value, got "bogus"`)
	assert.Contains(t, text, "Goodbye!")
	assert.Equal(t, 3, strings.Count(text, "size ="), "nothing is scored after exit")
}

func TestDescribeFields(t *testing.T) {
	doc := sizesDocument(t)
	dataTypes := map[string]string{"x": "double", "color": "string", "extra": "integer"}

	var out bytes.Buffer
	require.NoError(t, describeFields(&out, []string{"x", "color", "extra"}, dataTypes, 3, doc))
	assert.Contains(t, out.String(), "required double/continuous")
	assert.Contains(t, out.String(), "declared string/categorical")
	assert.Contains(t, out.String(), "ignored")
	assert.Contains(t, out.String(), "3 rows")

	out.Reset()
	err := describeFields(&out, []string{"color"}, dataTypes, 3, doc)
	assert.True(t, core.IsDataIngestError(err))
	assert.Contains(t, out.String(), "missing required fields: [x]")

	out.Reset()
	require.NoError(t, describeFields(&out, []string{"x"}, dataTypes, 0, nil))
	assert.NotContains(t, out.String(), "ignored")
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestStateCommands(t *testing.T) {
	dir := t.TempDir()
	stateDir := filepath.Join(dir, "states")
	configPath := filepath.Join(dir, "augustus.toml")
	require.NoError(t, os.WriteFile(configPath, []byte("[state]\ndir = \""+filepath.ToSlash(stateDir)+"\"\ncompression = \"zstd\"\n"), 0o644))

	store, err := catalog.NewFileStateStore(afero.NewOsFs(), stateDir, nil)
	require.NoError(t, err)
	state := core.NewDataTableState()
	state.Set("cusum", &core.StateValue{Number: 2.5})
	require.NoError(t, store.Save(context.Background(), catalog.StateIdentifier{Namespace: "default", Name: "alarm"}, state))

	out, err := execute(t, "state", "list", "--config", configPath)
	require.NoError(t, err)
	assert.Contains(t, out, "default.alarm")

	out, err = execute(t, "state", "show", "alarm", "--config", configPath)
	require.NoError(t, err)
	assert.Contains(t, out, "default.alarm: 1 entries")
	assert.Contains(t, out, "  cusum: 2.5")

	out, err = execute(t, "state", "list", "--namespace", "staging", "--config", configPath)
	require.NoError(t, err)
	assert.NotContains(t, out, "alarm")

	_, err = execute(t, "state", "forget", "alarm", "--config", configPath)
	require.NoError(t, err)
	out, err = execute(t, "state", "list", "--config", configPath)
	require.NoError(t, err)
	assert.NotContains(t, out, "alarm")

	_, err = execute(t, "state", "show", "alarm", "--config", configPath)
	assert.ErrorIs(t, err, catalog.ErrStateNotFound)
}

func TestCommandErrors(t *testing.T) {
	_, err := execute(t, "score", "--input", "data.parquet")
	assert.EqualError(t, err, "--model is required")

	_, err = execute(t, "fields")
	assert.EqualError(t, err, "--input is required")

	_, err = execute(t, "score", "--config", filepath.Join(t.TempDir(), "absent.toml"))
	assert.Error(t, err)
}
