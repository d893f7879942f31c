package cli

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/sqlarc/internal/engine"
)

// AddOptions holds flags for the add command.
type AddOptions struct {
	*RootOptions
	Database        string
	Table           string
	Lower           bool
	Replace         bool
	Exclude         []string
	DupsFile        string
	NoDups          bool
	HideDups        bool
	FullDupPath     bool
	DupsCurrentOnly bool
}

// NewAddCommand creates the add command.
func NewAddCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &AddOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "add [files...]",
		Short: "Archive files into a SQLite table",
		Long: `Archive files as BLOB rows in a SQLite table.

Arguments may be files, directories (walked recursively) or glob
patterns. The table name is inferred from the first argument when
--table is not given: a directory contributes its name, a file its name
minus one extension. Filename collisions are recorded in the duplicate
sidecar and the batch continues.

Example:
  sqlarc add --db archive.db ./photos
  sqlarc add --db archive.db --table docs report.pdf notes.txt`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAdd(opts, args, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Database, "db", "d", "", "path to SQLite database")
	cmd.Flags().StringVarP(&opts.Table, "table", "t", "", "table name (inferred from first path if omitted)")
	cmd.Flags().BoolVar(&opts.Lower, "lower", false, "lowercase the table name")
	cmd.Flags().BoolVarP(&opts.Replace, "replace", "r", false, "replace existing entries instead of recording duplicates")
	cmd.Flags().StringSliceVar(&opts.Exclude, "exclude", nil, "basenames to skip (default Thumbs.db)")
	cmd.Flags().StringVar(&opts.DupsFile, "dups-file", "duplicates.json", "path of the duplicate sidecar file")
	cmd.Flags().BoolVar(&opts.NoDups, "no-dups", false, "disable reading and writing the duplicate sidecar")
	cmd.Flags().BoolVar(&opts.HideDups, "hide-dups", false, "hide the printed duplicate summary")
	cmd.Flags().BoolVar(&opts.FullDupPath, "full-dup-path", false, "key duplicates by absolute path")
	cmd.Flags().BoolVar(&opts.DupsCurrentOnly, "dups-current-db", false, "only print duplicates for the current database")

	return cmd
}

func runAdd(opts *AddOptions, args []string, cmd *cobra.Command) error {
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

	dupsFile := opts.DupsFile
	exclude := opts.Exclude
	fullDupPath := opts.FullDupPath
	if opts.Config != nil {
		if !cmd.Flags().Changed("dups-file") && opts.Config.DupsFile != "" {
			dupsFile = opts.Config.DupsFile
		}
		if exclude == nil {
			exclude = opts.Config.Exclude
		}
		if !fullDupPath {
			fullDupPath = opts.Config.FullDupPath
		}
	}

	// In JSON mode the duplicate summary goes to stderr so it cannot
	// corrupt the response document.
	dupsOut := cmd.OutOrStdout()
	if opts.Format == "json" {
		dupsOut = cmd.ErrOrStderr()
	}

	eng := engine.New(slog.Default())
	report, err := eng.Add(cmd.Context(), engine.AddOptions{
		Database:        db,
		Table:           opts.Table,
		Lower:           opts.Lower,
		Paths:           args,
		Exclude:         exclude,
		Replace:         opts.Replace,
		DupsPath:        dupsFile,
		NoDups:          opts.NoDups,
		HideDups:        opts.HideDups,
		DupsCurrentOnly: opts.DupsCurrentOnly,
		FullDupPath:     fullDupPath,
		DupsOut:         dupsOut,
	})
	if err != nil {
		return exitError("add failed", err)
	}

	return formatter.Success(report,
		fmt.Sprintf("Archived %d file(s) to table %q (%d replaced, %d duplicate(s), %d skipped)",
			report.Added, report.Table, report.Replaced, report.Conflicts, report.Skipped))
}

// exitError maps engine failures onto CLI exit codes: configuration
// problems are command errors, everything else a run failure.
func exitError(message string, err error) error {
	code := ExitFailure
	if engine.IsConfigError(err) {
		code = ExitCommandError
	}
	return WrapExitError(code, message, err)
}
