package cli

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/relic/internal/audit"
	"github.com/roach88/relic/internal/history"
	"github.com/roach88/relic/internal/service"
)

// LogOptions holds flags for the log command.
type LogOptions struct {
	*RootOptions
	Database string
	Table    string
	Since    string
	Limit    int
}

// NewLogCommand creates the log command.
func NewLogCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LogOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "log",
		Short: "Show ledger entries for one table",
		Long: `Show the version ledger for one tracked table, oldest first.

Example:
  relic log --db ./relic.db --table comments
  relic log --db ./relic.db --table posts --since 2026-08-01T00:00:00Z
  relic log --db ./relic.db --table posts --limit 20 --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return showLog(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	cmd.Flags().StringVar(&opts.Table, "table", "", "tracked table name (required)")
	cmd.Flags().StringVar(&opts.Since, "since", "", "only entries at or after this RFC 3339 time")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "maximum number of entries (0 = all)")
	_ = cmd.MarkFlagRequired("db")
	_ = cmd.MarkFlagRequired("table")

	return cmd
}

func showLog(opts *LogOptions, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	var since time.Time
	if opts.Since != "" {
		parsed, err := time.Parse(time.RFC3339, opts.Since)
		if err != nil {
			return WrapExitError(ExitCommandError, "invalid --since timestamp", err)
		}
		since = parsed
	}

	svc, err := service.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer svc.Close()

	eng := history.New(svc.Store, svc.Registry)

	var entries []audit.Entry
	if !since.IsZero() {
		entries, err = eng.TableHistorySince(cmd.Context(), audit.TableName(opts.Table), since)
		if err == nil && opts.Limit > 0 && len(entries) > opts.Limit {
			entries = entries[:opts.Limit]
		}
	} else {
		entries, err = eng.TableHistory(cmd.Context(), audit.TableName(opts.Table), opts.Limit)
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "log query failed", err)
	}

	return writeEntries(formatter, entries)
}
