package main

import (
	"context"
	"fmt"
	"io"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"augustus/catalog"
)

func newStateCommand(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "state",
		Short: "Inspect the running states persisted by score --state",
	}

	// each subcommand opens the store configured by [state]
	withManager := func(run func(ctx context.Context, m *catalog.Manager, w io.Writer, args []string) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			s, err := loadSettings(v, cmd)
			if err != nil {
				return err
			}
			m, err := openStateManager(afero.NewOsFs(), s.Config)
			if err != nil {
				return err
			}
			defer m.Close()
			if ns, _ := cmd.Flags().GetString("namespace"); ns != "" {
				m.SetDefaultNamespace(ns)
			}
			return run(cmd.Context(), m, cmd.OutOrStdout(), args)
		}
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List saved states",
			Args:  cobra.NoArgs,
			RunE:  withManager(listStates),
		},
		&cobra.Command{
			Use:   "show <name>",
			Short: "Print the entries of a saved state",
			Args:  cobra.ExactArgs(1),
			RunE:  withManager(showState),
		},
		&cobra.Command{
			Use:   "forget <name>",
			Short: "Delete a saved state",
			Args:  cobra.ExactArgs(1),
			RunE: withManager(func(ctx context.Context, m *catalog.Manager, w io.Writer, args []string) error {
				return m.Forget(ctx, args[0])
			}),
		},
	)
	cmd.PersistentFlags().String("namespace", "", "namespace of unqualified names")
	return cmd
}

func listStates(ctx context.Context, m *catalog.Manager, w io.Writer, _ []string) error {
	ids, err := m.States(ctx)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STATE\tENTRIES\tBYTES\tCOMPRESSION\tUPDATED")
	for _, id := range ids {
		meta, err := m.Describe(ctx, id.String())
		if err != nil {
			return err
		}
		fmt.Fprintf(tw, "%s\t%d\t%d\t%s\t%s\n", id, meta.Entries, meta.SizeBytes, meta.Compression, meta.UpdatedAt.Format(time.RFC3339))
	}
	return tw.Flush()
}

func showState(ctx context.Context, m *catalog.Manager, w io.Writer, args []string) error {
	meta, err := m.Describe(ctx, args[0])
	if err != nil {
		return err
	}
	state, err := m.Restore(ctx, args[0])
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "%s: %d entries, %d bytes (%s)\n", meta.Identifier, meta.Entries, meta.SizeBytes, meta.Compression)
	for _, key := range state.Keys() {
		value, _ := state.Get(key)
		switch {
		case value.Multiset != nil:
			fmt.Fprintf(w, "  %s: %v\n", key, sortedCounts(value.Multiset))
		case value.Groups != nil:
			fmt.Fprintf(w, "  %s: %d groups\n", key, len(value.Groups))
		case value.Extreme != nil:
			fmt.Fprintf(w, "  %s: %s\n", key, *value.Extreme)
		case value.Denominator != 0:
			fmt.Fprintf(w, "  %s: %g/%g\n", key, value.Numerator, value.Denominator)
		default:
			fmt.Fprintf(w, "  %s: %g\n", key, value.Number)
		}
	}
	return nil
}

func sortedCounts(counts map[string]int64) []string {
	out := make([]string, 0, len(counts))
	for k, n := range counts {
		out = append(out, fmt.Sprintf("%s=%d", k, n))
	}
	sort.Strings(out)
	return out
}
