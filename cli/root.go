/*
root.go - Command tree and dependency wiring for the measure CLI

PURPOSE:
  Builds the cobra command tree and, per invocation, the object graph the
  commands need: config -> logger -> classification store -> workbook
  reader/writer -> measure.Service.

GLOBAL FLAGS:
  --config     YAML config file (default: measure.yaml if present)
  --store      sidecar|sqlite, overrides the config file
  --log-level  trace|debug|info|warn|error, overrides the config file
  --json       machine-readable output

SEE ALSO:
  - config/config.go: Resolution order for settings
  - serve.go: HTTP server
*/
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/warp/measure-engine/config"
	"github.com/warp/measure-engine/logging"
	"github.com/warp/measure-engine/measure"
	"github.com/warp/measure-engine/store/sidecar"
	"github.com/warp/measure-engine/store/sqlite"
	"github.com/warp/measure-engine/workbook"
)

type rootOptions struct {
	configPath string
	store      string
	logLevel   string
	json       bool
}

// RootCmd returns the measure command with every subcommand attached.
func RootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "measure",
		Short: "Append measurement records to spreadsheets",
		Long: `measure appends measurement records to xlsx workbooks whose columns are
discovered at runtime. Headers are read from the configured header row,
each sheet's headers are split into persistent and measurement fields,
and every record becomes one new row.

Examples:
  measure headers Messungen.xlsx
  measure classify save Messungen.xlsx --persistent Charge_# --measurement Breite,Höhe
  measure append Messungen.xlsx --operator op-7 --set Charge_#=C-1 Breite=3,4
  measure serve --port 8080`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "Config file (default: measure.yaml if present)")
	cmd.PersistentFlags().StringVar(&opts.store, "store", "", "Classification store: sidecar or sqlite")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Log level: trace, debug, info, warn, error")
	cmd.PersistentFlags().BoolVar(&opts.json, "json", false, "Output JSON instead of human-formatted summaries")

	cmd.AddCommand(headersCmd(opts))
	cmd.AddCommand(rowsCmd(opts))
	cmd.AddCommand(classifyCmd(opts))
	cmd.AddCommand(validateCmd(opts))
	cmd.AddCommand(appendCmd(opts))
	cmd.AddCommand(historyCmd(opts))
	cmd.AddCommand(serveCmd(opts))

	return cmd
}

// =============================================================================
// WIRING
// =============================================================================

// app is the object graph for one command invocation.
type app struct {
	cfg     config.Config
	log     zerolog.Logger
	reader  *workbook.Reader
	service *measure.Service
	closers []io.Closer
}

// open loads the configuration and builds the service. Callers must Close.
func (o *rootOptions) open(cmd *cobra.Command) (*app, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, err
	}
	if o.store != "" {
		cfg.Store = o.store
	}
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logOpts := cfg.LoggingOptions()
	logOpts.Writer = cmd.ErrOrStderr()
	a := &app{cfg: cfg, log: logging.New(logOpts)}

	settings := cfg.Settings()
	a.reader = workbook.NewReader(a.log)
	writer := workbook.NewWriter(settings.AutoColumns, nil, a.log)

	switch cfg.Store {
	case config.StoreSQLite:
		if cfg.SQLitePath != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0o755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
		st, err := sqlite.New(cfg.SQLitePath, a.log)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, st)
		a.service = measure.NewService(a.reader, writer, st, settings, a.log).WithSubmissionLog(st)
	default:
		st := sidecar.New(cfg.SidecarDir, a.log)
		a.service = measure.NewService(a.reader, writer, st, settings, a.log)
	}

	a.log.Debug().Str("store", cfg.Store).Int("header_row", cfg.HeaderRow).Msg("service ready")
	return a, nil
}

func (a *app) Close() error {
	var first error
	for _, c := range a.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// run opens the app, hands it to fn and closes it again.
func (o *rootOptions) run(cmd *cobra.Command, fn func(a *app) error) error {
	a, err := o.open(cmd)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
