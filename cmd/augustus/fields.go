package main

import (
	"fmt"
	"io"
	"sort"
	"text/tabwriter"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"augustus/core"
)

func newFieldsCommand(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fields",
		Short: "List the columns of a parquet input, checked against a document when --model is given",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := loadSettings(v, cmd)
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

			var doc *core.Document
			if s.Model != "" {
				if doc, err = loadDocument(afero.NewOsFs(), s.Model); err != nil {
					return err
				}
			}
			return describeFields(cmd.OutOrStdout(), reader.ColumnNames(), reader.DataTypes(), reader.NumRows(), doc)
		},
	}
	addModelFlag(cmd.Flags())
	cmd.Flags().String("input", "", "parquet file path or http(s) URL")
	return cmd
}

// describeFields prints one line per input column and, with a document,
// the role each column plays and the required fields the input lacks
func describeFields(w io.Writer, names []string, dataTypes map[string]string, rows int64, doc *core.Document) error {
	declared := map[string]string{}
	required := map[string]bool{}
	if doc != nil {
		for _, decl := range doc.DataDictionary {
			declared[decl.Name] = fmt.Sprintf("%s/%s", decl.Type.DataType(), decl.Type.OpType())
		}
		for _, name := range doc.RequiredFields() {
			required[name] = true
		}
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "COLUMN\tDATATYPE\tROLE")
	present := map[string]bool{}
	for _, name := range names {
		present[name] = true
		role := ""
		switch {
		case doc == nil:
		case required[name]:
			role = "required " + declared[name]
		case declared[name] != "":
			role = "declared " + declared[name]
		default:
			role = "ignored"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", name, dataTypes[name], role)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(w, "\n%d rows\n", rows)

	var missing []string
	for name := range required {
		if !present[name] {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		fmt.Fprintf(w, "missing required fields: %v\n", missing)
		return &core.DataIngestError{Field: missing[0]}
	}
	return nil
}
