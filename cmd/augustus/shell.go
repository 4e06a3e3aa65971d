package main

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"augustus/core"
)

func newShellCommand(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "shell",
		Short: "Score rows typed one at a time against a document",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := loadSettings(v, cmd)
			if err != nil {
				return err
			}
			doc, err := loadDocument(afero.NewOsFs(), s.Model)
			if err != nil {
				return err
			}
			return runShell(doc, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	addModelFlag(cmd.Flags())
	return cmd
}

// runShell reads one command per line until EOF or exit. Rows are typed
// as name=value pairs; the running state carries from row to row.
func runShell(doc *core.Document, in io.Reader, out io.Writer) error {
	fmt.Fprintln(out, "Augustus - interactive PMML scoring")
	fmt.Fprintln(out, "Type 'help' for available commands, 'exit' to quit")
	fmt.Fprintln(out)

	state := core.NewDataTableState()
	scanner := bufio.NewScanner(in)

	for {
		fmt.Fprint(out, "augustus> ")

		if !scanner.Scan() {
			break
		}

		input := strings.TrimSpace(scanner.Text())

		switch {
		case input == "":
			continue
		case input == "exit" || input == "quit":
			fmt.Fprintln(out, "Goodbye!")
			return nil
		case input == "help":
			printShellHelp(out)
		case input == "\\d":
			for _, decl := range doc.DataDictionary {
				fmt.Fprintf(out, "  %s %s/%s\n", decl.Name, decl.Type.DataType(), decl.Type.OpType())
			}
		case input == "\\r":
			fmt.Fprintf(out, "  %s\n", strings.Join(doc.RequiredFields(), ", "))
		case input == "\\s":
			for _, key := range state.Keys() {
				value, _ := state.Get(key)
				fmt.Fprintf(out, "  %s: %g\n", key, value.Number)
			}
		case input == "\\reset":
			state = core.NewDataTableState()
			fmt.Fprintln(out, "state cleared")
		default:
			if err := scoreLine(doc, state, input, out); err != nil {
				fmt.Fprintf(out, "Error: %v\n", err)
			}
		}
	}
	return scanner.Err()
}

// scoreLine scores the single row "name=value, name=value"
func scoreLine(doc *core.Document, state *core.DataTableState, line string, out io.Writer) error {
	inputs := map[string]interface{}{}
	for _, pair := range strings.Split(line, ",") {
		name, value, ok := strings.Cut(pair, "=")
		if !ok {
			return errors.Errorf("expected name=value, got %q", strings.TrimSpace(pair))
		}
		var raw interface{} = strings.TrimSpace(value)
		if raw == "" {
			raw = nil
		}
		inputs[strings.TrimSpace(name)] = []interface{}{raw}
	}

	table, err := doc.Prepare(inputs, nil, state)
	if err != nil {
		return err
	}
	if err := doc.Calculate(table, core.NewFunctionTable(), nil); err != nil {
		return err
	}
	header := outputHeader(table)
	for j, col := range outputColumns(table) {
		fmt.Fprintf(out, "  %s = %s\n", header[j], renderColumn(col, 1)[0])
	}
	return nil
}

func printShellHelp(out io.Writer) {
	fmt.Fprintln(out, "Available commands:")
	fmt.Fprintln(out, "  x=1.5, color=red   - Score one row")
	fmt.Fprintln(out, "  x=                 - Leave a field empty to score it as missing")
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Meta commands:")
	fmt.Fprintln(out, "  \\d                 - Describe the data dictionary")
	fmt.Fprintln(out, "  \\r                 - List the required input fields")
	fmt.Fprintln(out, "  \\s                 - Show the running state")
	fmt.Fprintln(out, "  \\reset             - Clear the running state")
	fmt.Fprintln(out, "  help               - Show this help")
	fmt.Fprintln(out, "  exit, quit         - Exit the shell")
}
