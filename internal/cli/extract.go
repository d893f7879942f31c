package cli

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/sqlarc/internal/engine"
)

// ExtractOptions holds flags for the extract command.
type ExtractOptions struct {
	*RootOptions
	Database  string
	Table     string
	OutputDir string
	Overwrite bool
	NoVerify  bool
	Strict    bool
}

// NewExtractCommand creates the extract command.
func NewExtractCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ExtractOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "extract",
		Short: "Extract archived files back to disk",
		Long: `Extract every BLOB row of a table back into files.

The table name is mandatory: table names cannot be inferred in extract
mode. When --output-dir is omitted, files land in a directory derived
from the table name (underscores become spaces) under the working
directory. Existing files are skipped and reported unless --overwrite
is given; extracted content is verified against the stored digest
unless --no-verify is given.

Example:
  sqlarc extract --db archive.db --table photos
  sqlarc extract --db archive.db --table docs -o ./restored --overwrite`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExtract(opts, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Database, "db", "d", "", "path to SQLite database")
	cmd.Flags().StringVarP(&opts.Table, "table", "t", "", "table to extract (required)")
	cmd.Flags().StringVarP(&opts.OutputDir, "output-dir", "o", "", "directory to extract into")
	cmd.Flags().BoolVar(&opts.Overwrite, "overwrite", false, "overwrite existing files instead of skipping")
	cmd.Flags().BoolVar(&opts.NoVerify, "no-verify", false, "skip digest verification of extracted content")
	cmd.Flags().BoolVar(&opts.Strict, "strict", false, "abort on the first integrity mismatch")

	return cmd
}

func runExtract(opts *ExtractOptions, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	db := opts.database(opts.Database)
	if db == "" {
		return WrapExitError(ExitCommandError, "no database path given (use --db or a config file)", nil)
	}

	eng := engine.New(slog.Default())
	report, err := eng.Extract(cmd.Context(), engine.ExtractOptions{
		Database:  db,
		Table:     opts.Table,
		OutputDir: opts.OutputDir,
		Overwrite: opts.Overwrite,
		NoVerify:  opts.NoVerify,
		Strict:    opts.Strict,
	})
	if err != nil {
		return exitError("extract failed", err)
	}

	return formatter.Success(report,
		fmt.Sprintf("Extracted %d file(s) from table %q to %s (%d skipped, %d failed verification)",
			report.Extracted, report.Table, report.OutputDir,
			report.SkippedExisting, report.IntegrityFailures))
}
