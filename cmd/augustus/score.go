package main

import (
	"context"
	"encoding/csv"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"augustus/core"
	"augustus/monitoring"
	"augustus/vectorized"
)

func newScoreCommand(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "score",
		Short: "Score a parquet input and print the output fields as CSV",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := loadSettings(v, cmd)
			if err != nil {
				return err
			}
			return runScoreCommand(cmd.Context(), s, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}
	addScoreFlags(cmd.Flags())
	cmd.Flags().Bool("profile", false, "print the performance report to stderr")
	return cmd
}

func newProfileCommand(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Score a parquet input and print only the performance report",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := loadSettings(v, cmd)
			if err != nil {
				return err
			}
			s.Config.Performance.Enabled = true
			s.Profile = true
			s.Output = ""
			return runScoreCommand(cmd.Context(), s, io.Discard, cmd.OutOrStdout())
		},
	}
	addScoreFlags(cmd.Flags())
	return cmd
}

// runScoreCommand wires the document, the parquet input, the state
// store and the metrics around a scorer
func runScoreCommand(ctx context.Context, s *settings, stdout, report io.Writer) (err error) {
	if ctx == nil {
		ctx = context.Background()
	}
	fs := afero.NewOsFs()
	doc, err := loadDocument(fs, s.Model)
	if err != nil {
		return err
	}
	if s.Input == "" {
		return errors.New("--input is required")
	}
	reader, err := core.OpenParquet(s.Input)
	if err != nil {
		return err
	}
	defer reader.Close()

	out := stdout
	if s.Output != "" {
		f, err := os.Create(s.Output)
		if err != nil {
			return errors.Wrapf(err, "creating %s", s.Output)
		}
		defer f.Close()
		out = f
	}

	sc := newScorer(doc, s.Config)
	if s.State != "" {
		manager, openErr := openStateManager(fs, s.Config)
		if openErr != nil {
			return openErr
		}
		defer manager.Close()
		if sc.state, err = manager.Restore(ctx, s.State); err != nil {
			return err
		}
		defer func() {
			if err == nil {
				err = manager.Checkpoint(ctx, s.State, sc.state)
			}
		}()
	}

	if err = sc.run(ctx, reader, out); err != nil {
		return err
	}
	if s.Profile {
		if err = sc.perf.Look(report, s.Config.Performance.SortBy); err != nil {
			return err
		}
	}
	if s.MetricsFile != "" {
		err = sc.metrics.WriteTextfile(s.MetricsFile)
	}
	return err
}

// columnSource supplies successive batches of input columns
type columnSource interface {
	ReadColumns(limit int, names []string) (map[string]interface{}, int, error)
}

// scorer runs a document over batches. With one worker every batch
// shares a single running state; with several, each batch is calculated
// on an independent DataTable with its own state and function table.
type scorer struct {
	doc     *core.Document
	config  core.Config
	state   *core.DataTableState
	perf    *core.PerformanceTable
	metrics *monitoring.EngineMetrics
}

func newScorer(doc *core.Document, config core.Config) *scorer {
	return &scorer{
		doc:     doc,
		config:  config,
		perf:    core.NewPerformanceTable(),
		metrics: monitoring.NewEngineMetrics(),
	}
}

func (s *scorer) workers() int {
	workers := s.config.Input.Workers
	if workers < 1 {
		workers = 1
	}
	if s.state != nil && workers > 1 {
		core.GetTracer().Warn(core.TraceComponentState, "Persisted state forces serial scoring", core.TraceContext("workers", workers))
		workers = 1
	}
	return workers
}

type batch struct {
	inputs map[string]interface{}
	rows   int
	table  *core.DataTable
	perf   *core.PerformanceTable
}

func (s *scorer) run(ctx context.Context, source columnSource, w io.Writer) error {
	workers := s.workers()
	if workers == 1 && s.state == nil {
		s.state = core.NewDataTableState()
	}
	names := make([]string, len(s.doc.DataDictionary))
	for i, decl := range s.doc.DataDictionary {
		names[i] = decl.Name
	}

	out := csv.NewWriter(w)
	wroteHeader := false
	for {
		// read a window of batches sequentially, then score it concurrently
		var window []*batch
		for len(window) < workers {
			inputs, n, err := source.ReadColumns(s.config.Input.BatchSize, names)
			if err != nil {
				return err
			}
			if n == 0 {
				break
			}
			window = append(window, &batch{inputs: inputs, rows: n})
		}
		if len(window) == 0 {
			break
		}

		g, gctx := errgroup.WithContext(ctx)
		for _, b := range window {
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				return s.scoreBatch(b, workers > 1)
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}

		for _, b := range window {
			s.perf.Absorb(b.perf)
			if !wroteHeader {
				if err := out.Write(outputHeader(b.table)); err != nil {
					return errors.Wrap(err, "writing CSV header")
				}
				wroteHeader = true
			}
			if err := writeRows(out, b.table); err != nil {
				return err
			}
		}
		if len(window) < workers {
			break
		}
	}
	out.Flush()

	if s.config.Performance.Enabled {
		report, err := s.perf.Report(s.config.Performance.SortBy)
		if err != nil {
			return err
		}
		s.metrics.Observe(report)
	}
	return errors.Wrap(out.Error(), "writing CSV")
}

func (s *scorer) scoreBatch(b *batch, independent bool) error {
	start := time.Now()
	state := s.state
	if independent {
		state = core.NewDataTableState()
	}
	table, err := s.doc.Prepare(b.inputs, nil, state)
	if err != nil {
		return err
	}
	b.perf = core.NewPerformanceTable()
	var perf core.Performance = core.NopPerformance{}
	if s.config.Performance.Enabled {
		perf = b.perf
	}
	if err := s.doc.Calculate(table, core.NewFunctionTable(), perf); err != nil {
		return err
	}
	b.table = table
	s.metrics.ObserveBatch(b.rows, rejectedRows(table), time.Since(start))
	core.GetTracer().Debug(core.TraceComponentOutput, "Scored batch", core.TraceContext("rows", b.rows, "ms", time.Since(start).Milliseconds()))
	return nil
}

// scoreColumns lists the predicted values of a calculated table
func scoreColumns(table *core.DataTable) []*vectorized.DataColumn {
	if table.Score != nil {
		return []*vectorized.DataColumn{table.Score}
	}
	return table.Scores
}

// rejectedRows counts rows where some predicted value is not VALID
func rejectedRows(table *core.DataTable) int {
	scores := scoreColumns(table)
	if len(scores) == 1 && scores[0] != nil {
		return table.Len() - vectorized.CountMask(scores[0].Mask, table.Len(), vectorized.Valid)
	}
	rejected := 0
	for i := 0; i < table.Len(); i++ {
		for _, col := range scores {
			if col != nil && col.MaskAt(i) != vectorized.Valid {
				rejected++
				break
			}
		}
	}
	return rejected
}

// outputHeader names the output fields, or the predicted values when the
// document requests no outputs
func outputHeader(table *core.DataTable) []string {
	if names := table.Output.Names(); len(names) > 0 {
		return names
	}
	scores := scoreColumns(table)
	if len(scores) == 1 {
		return []string{"score"}
	}
	header := make([]string, len(scores))
	for j := range scores {
		header[j] = "score." + strconv.Itoa(j)
	}
	return header
}

func outputColumns(table *core.DataTable) []*vectorized.DataColumn {
	names := table.Output.Names()
	if len(names) == 0 {
		return scoreColumns(table)
	}
	columns := make([]*vectorized.DataColumn, len(names))
	for i, name := range names {
		columns[i], _ = table.Output.Lookup(name)
	}
	return columns
}

// renderColumn renders VALID rows through the field type and other rows
// as their mask name
func renderColumn(col *vectorized.DataColumn, length int) []string {
	out := make([]string, length)
	for i := range out {
		switch {
		case col == nil:
			out[i] = vectorized.Missing.String()
		case col.MaskAt(i) == vectorized.Valid:
			out[i] = col.FieldType.ValueToString(col.Value(i))
		default:
			out[i] = col.MaskAt(i).String()
		}
	}
	return out
}

func writeRows(out *csv.Writer, table *core.DataTable) error {
	columns := outputColumns(table)
	rendered := make([][]string, len(columns))
	for j, col := range columns {
		rendered[j] = renderColumn(col, table.Len())
	}
	record := make([]string, len(columns))
	for i := 0; i < table.Len(); i++ {
		for j := range columns {
			record[j] = rendered[j][i]
		}
		if err := out.Write(record); err != nil {
			return errors.Wrap(err, "writing CSV row")
		}
	}
	return nil
}
