package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/relic/internal/service"
)

// SeedOptions holds flags for the seed command.
type SeedOptions struct {
	*RootOptions
	Database string
	Count    int
}

// NewSeedCommand creates the seed command.
func NewSeedCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SeedOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Generate demo data through the capture path",
		Long: `Generate demo users, posts, comments and products.

Every row goes through the capture path, so seeding fills the version
ledger and fires the notification channels. Run it against a server's
database while a stream is connected to watch events arrive.

Example:
  relic seed --db ./relic.db
  relic seed --db ./relic.db --count 25`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeed(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	cmd.Flags().IntVar(&opts.Count, "count", 10, "rows to insert per table")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runSeed(opts *SeedOptions, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	svc, err := service.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer svc.Close()

	formatter.VerboseLog("seeding %d rows per table into %s", opts.Count, opts.Database)
	if err := svc.Seed(cmd.Context(), opts.Count); err != nil {
		return WrapExitError(ExitFailure, "seed failed", err)
	}

	last, err := svc.Store.LastSequence(cmd.Context())
	if err != nil {
		return WrapExitError(ExitFailure, "seed verification failed", err)
	}
	return formatter.Success(fmt.Sprintf("seeded; ledger at sequence %d", last))
}
