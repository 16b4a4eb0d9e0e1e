package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"metastore/internal/config"
	"metastore/internal/logging"
	"metastore/internal/record"
	"metastore/pkg/meta"
)

var errRecordRequired = errors.New("--record is required")

// app carries flag values and the resources opened for one invocation.
type app struct {
	configPath string
	driver     string
	recordID   string
	prefix     string
	logLevel   string

	out    io.Writer
	errOut io.Writer

	cfg    config.Config
	logger *slog.Logger
	table  record.Table
}

// execute runs one metactl invocation and releases the opened table even
// when the command fails.
func execute(ctx context.Context, args []string, out, errOut io.Writer) error {
	a := &app{out: out, errOut: errOut}
	root := a.rootCmd()
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	if cerr := a.teardown(); err == nil {
		err = cerr
	}
	return err
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "metactl",
		Short: "Read and write record metadata by dotted path",
		Long: `metactl manipulates the JSON metadata attribute of stored records.

Paths are dot separated ("profile.name"). Values and documents are JSON
literals; every command prints JSON on stdout.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
	}
	root.CompletionOptions.DisableDefaultCmd = true
	root.SetOut(a.out)
	root.SetErr(a.errOut)

	flags := root.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "path to a YAML config file (default $"+config.EnvConfigPath+")")
	flags.StringVar(&a.driver, "driver", "", "storage driver: memory|sqlite|postgres|fs|s3")
	flags.StringVar(&a.recordID, "record", "", "id of the record to operate on")
	flags.StringVar(&a.prefix, "prefix", "", "path prefix applied to every path")
	flags.StringVar(&a.logLevel, "log-level", "", "log level: debug|info|warn|error")

	root.AddCommand(
		a.createCmd(),
		a.listCmd(),
		a.allCmd(),
		a.getCmd(),
		a.hasCmd(),
		a.setCmd(),
		a.deleteCmd(),
		a.updateCmd(),
		a.resetCmd(),
		a.countCmd(),
		a.provisionCmd(),
	)
	return root
}

func (a *app) setup(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.driver != "" {
		cfg.Storage.Driver = record.Driver(a.driver)
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger, err := logging.New(a.errOut, cfg.Log)
	if err != nil {
		return err
	}
	a.cfg, a.logger = cfg, logger
	if cmd.Annotations[annotationNoTable] == "true" {
		return nil
	}
	table, err := record.Open(cmd.Context(), cfg.Storage)
	if err != nil {
		return err
	}
	a.table = table
	logger.Debug("table opened", "driver", table.Driver())
	return nil
}

func (a *app) teardown() error {
	if a.table == nil {
		return nil
	}
	err := a.table.Close()
	a.table = nil
	return err
}

// store opens the --record handle and returns its prefixed accessor.
func (a *app) store(cmd *cobra.Command) (*meta.Store, error) {
	if a.recordID == "" {
		return nil, errRecordRequired
	}
	h, err := a.table.Open(cmd.Context(), a.recordID)
	if err != nil {
		return nil, err
	}
	s := h.Meta(meta.WithLogger(a.logger))
	if a.prefix != "" {
		s.Prefix(a.prefix)
	}
	return s, nil
}

func (a *app) print(v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	_, err = fmt.Fprintln(a.out, string(raw))
	return err
}
