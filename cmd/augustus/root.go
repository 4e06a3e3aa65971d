package main

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"augustus/catalog"
	"augustus/core"
	"augustus/pmml"
)

const envPrefix = "AUGUSTUS"

// settings is the merged view of the config file, AUGUSTUS_* environment
// variables and command line flags, flags winning
type settings struct {
	Config      core.Config
	Model       string
	Input       string
	Output      string
	State       string
	MetricsFile string
	Profile     bool
}

func newRootCommand() *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	root := &cobra.Command{
		Use:           "augustus",
		Short:         "Score PMML documents over columnar input",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("config", "", "TOML config file")

	root.AddCommand(
		newScoreCommand(v),
		newProfileCommand(v),
		newFieldsCommand(v),
		newStateCommand(v),
		newShellCommand(v),
	)
	return root
}

// addModelFlag registers --model on commands that read a document
func addModelFlag(flags *pflag.FlagSet) {
	flags.String("model", "", "PMML document")
}

// addScoreFlags registers the flags shared by score and profile
func addScoreFlags(flags *pflag.FlagSet) {
	addModelFlag(flags)
	flags.String("input", "", "parquet file path or http(s) URL")
	flags.String("output", "", "CSV output file (stdout when empty)")
	flags.String("state", "", "name of the persisted state to continue")
	flags.Int("workers", 0, "batches scored concurrently (config [input] workers when 0)")
	flags.Int("batch-size", 0, "rows per batch (config [input] batch_size when 0)")
	flags.String("metrics-file", "", "write prometheus metrics to this textfile")
}

// loadSettings binds the flags of the running command, reads the config
// file and applies the trace section
func loadSettings(v *viper.Viper, cmd *cobra.Command) (*settings, error) {
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return nil, errors.Wrap(err, "binding flags")
	}
	config, err := core.LoadConfig(v.GetString("config"))
	if err != nil {
		return nil, err
	}
	if n := v.GetInt("workers"); n > 0 {
		config.Input.Workers = n
	}
	if n := v.GetInt("batch-size"); n > 0 {
		config.Input.BatchSize = n
	}
	if v.GetBool("profile") {
		config.Performance.Enabled = true
	}
	config.ApplyTrace(core.GetTracer())
	if err := core.ConfigureFormulaCache(config.Formula.CacheSize); err != nil {
		return nil, err
	}

	return &settings{
		Config:      config,
		Model:       v.GetString("model"),
		Input:       v.GetString("input"),
		Output:      v.GetString("output"),
		State:       v.GetString("state"),
		MetricsFile: v.GetString("metrics-file"),
		Profile:     v.GetBool("profile"),
	}, nil
}

func loadDocument(fs afero.Fs, path string) (*core.Document, error) {
	if path == "" {
		return nil, errors.New("--model is required")
	}
	return pmml.NewLoader().LoadFile(fs, path)
}

// openStateManager opens the filesystem state store of the [state]
// config section
func openStateManager(fs afero.Fs, config core.Config) (*catalog.Manager, error) {
	store, err := catalog.CreateStateStore("fs", map[string]interface{}{
		"dir":         config.State.Dir,
		"compression": config.State.Compression,
		"fs":          fs,
	})
	if err != nil {
		return nil, err
	}
	return catalog.NewManager(store, "default"), nil
}
