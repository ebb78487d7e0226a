package cli

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/relic/internal/audit"
	"github.com/roach88/relic/internal/history"
	"github.com/roach88/relic/internal/service"
)

// HistoryOptions holds flags for the history command.
type HistoryOptions struct {
	*RootOptions
	Database string
	Table    string
	Key      string
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show the full version lifeline of one record",
		Long: `Show every ledger entry for one record, oldest first.

The record is identified by its table and primary key values, given as
a JSON object. UPDATEs that rewrote the key still land on the same
lifeline.

Example:
  relic history --db ./relic.db --table posts --key '{"id":1}'
  relic history --db ./relic.db --table products --key '{"prodId":3}' --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return showHistory(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	cmd.Flags().StringVar(&opts.Table, "table", "", "tracked table name (required)")
	cmd.Flags().StringVar(&opts.Key, "key", "", "primary key values as JSON (required)")
	_ = cmd.MarkFlagRequired("db")
	_ = cmd.MarkFlagRequired("table")
	_ = cmd.MarkFlagRequired("key")

	return cmd
}

func showHistory(opts *HistoryOptions, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	key, err := parseKeyJSON(opts.Key)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid --key JSON", err)
	}

	svc, err := service.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer svc.Close()

	eng := history.New(svc.Store, svc.Registry)
	entries, err := eng.RecordHistory(cmd.Context(), audit.TableName(opts.Table), key)
	if err != nil {
		if errors.Is(err, history.ErrNoSuchRecord) {
			_ = formatter.Error("E404", err.Error(), nil)
			return WrapExitError(ExitFailure, "record not found", err)
		}
		return WrapExitError(ExitCommandError, "history query failed", err)
	}

	return writeEntries(formatter, entries)
}

// parseKeyJSON decodes a --key argument, keeping integral numbers as
// int64 so identity resolution sees the same values the capture side
// saw.
func parseKeyJSON(raw string) (map[string]any, error) {
	var key map[string]any
	if err := json.Unmarshal([]byte(raw), &key); err != nil {
		return nil, err
	}
	for k, v := range key {
		if f, ok := v.(float64); ok && f == float64(int64(f)) {
			key[k] = int64(f)
		}
	}
	if len(key) == 0 {
		return nil, fmt.Errorf("key object is empty")
	}
	return key, nil
}

// writeEntries renders a ledger slice in the configured format.
func writeEntries(f *OutputFormatter, entries []audit.Entry) error {
	if f.Format == "json" {
		return f.Success(entries)
	}
	for _, e := range entries {
		id := e.RecordID
		if id == "" {
			id = e.OldRecordID
		}
		fmt.Fprintf(f.Writer, "#%d  %-8s  %s  %s.%s  %s\n",
			e.ID, e.Op, audit.FormatTime(e.TS), e.TableSchema, e.TableName, id)
	}
	fmt.Fprintf(f.Writer, "%d entries\n", len(entries))
	return nil
}
