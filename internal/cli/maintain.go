package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/sqlarc/internal/store"
)

// Maintenance commands operate on the store directly; there is no
// batch to orchestrate.

// NewDropCommand creates the drop command.
func NewDropCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		database string
		table    string
		noVacuum bool
	)

	cmd := &cobra.Command{
		Use:   "drop",
		Short: "Drop an archive table",
		Long: `Drop an archive table from the database.

The database is vacuumed afterwards to reclaim the space unless
--no-vacuum is given.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			db := rootOpts.database(database)
			if db == "" {
				return WrapExitError(ExitCommandError, "no database path given (use --db or a config file)", nil)
			}
			if table == "" {
				return WrapExitError(ExitCommandError, "drop requires a table name", nil)
			}

			st, err := store.OpenExisting(db, table)
			if err != nil {
				return storeExitError("cannot open archive", err)
			}
			defer st.Close()

			if err := st.Drop(cmd.Context()); err != nil {
				return WrapExitError(ExitFailure, "drop failed", err)
			}
			if !noVacuum {
				if err := st.Vacuum(cmd.Context()); err != nil {
					return WrapExitError(ExitFailure, "vacuum after drop failed", err)
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Dropped table %q from %s\n", table, db)
			return nil
		},
	}

	cmd.Flags().StringVarP(&database, "db", "d", "", "path to SQLite database")
	cmd.Flags().StringVarP(&table, "table", "t", "", "table to drop (required)")
	cmd.Flags().BoolVar(&noVacuum, "no-vacuum", false, "skip the vacuum after dropping")

	return cmd
}

// NewCompactCommand creates the compact command.
func NewCompactCommand(rootOpts *RootOptions) *cobra.Command {
	var database string

	cmd := &cobra.Command{
		Use:   "compact",
		Short: "Vacuum the database file",
		Long: `Run VACUUM on the database to reclaim free space.

Depending on the size of the database this can take a while; use
sparingly.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			db := rootOpts.database(database)
			if db == "" {
				return WrapExitError(ExitCommandError, "no database path given (use --db or a config file)", nil)
			}
			if err := store.Compact(cmd.Context(), db); err != nil {
				return WrapExitError(ExitFailure, "compact failed", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Compacted %s\n", db)
			return nil
		},
	}

	cmd.Flags().StringVarP(&database, "db", "d", "", "path to SQLite database")

	return cmd
}

// NewRenameCommand creates the rename command.
func NewRenameCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		database string
		table    string
	)

	cmd := &cobra.Command{
		Use:           "rename <old-name> <new-name>",
		Short:         "Rename a stored file entry",
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			db := rootOpts.database(database)
			if db == "" {
				return WrapExitError(ExitCommandError, "no database path given (use --db or a config file)", nil)
			}
			if table == "" {
				return WrapExitError(ExitCommandError, "rename requires a table name", nil)
			}

			st, err := store.OpenExisting(db, table)
			if err != nil {
				return storeExitError("cannot open archive", err)
			}
			defer st.Close()

			conflict, err := st.RenameEntry(cmd.Context(), args[0], args[1])
			if err != nil {
				return WrapExitError(ExitFailure, "rename failed", err)
			}
			if conflict != nil {
				return WrapExitError(ExitFailure,
					fmt.Sprintf("an entry named %q already exists", conflict.ExistingName), nil)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Renamed %q to %q in table %q\n", args[0], args[1], table)
			return nil
		},
	}

	cmd.Flags().StringVarP(&database, "db", "d", "", "path to SQLite database")
	cmd.Flags().StringVarP(&table, "table", "t", "", "table holding the entry (required)")

	return cmd
}

// storeExitError maps store open failures onto exit codes: a missing
// or incompatible table is a command error, anything else a failure.
func storeExitError(message string, err error) error {
	if store.IsSchemaError(err) {
		return WrapExitError(ExitCommandError, message, err)
	}
	return WrapExitError(ExitFailure, message, err)
}
