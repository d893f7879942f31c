// Package cli wires the archive engine to a cobra command surface.
package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	ConfigPath string

	// Config carries defaults loaded from the optional YAML config
	// file. Nil when no config file is in play.
	Config *Config
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the sqlarc CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "sqlarc",
		Short: "Archive files as BLOBs in a SQLite database",
		Long: `sqlarc stores files as content-hashed BLOB rows in SQLite tables
and extracts them back out. Filename collisions are recorded in a JSON
duplicate sidecar instead of aborting the batch.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}

			// Configure logging based on verbose flag
			logLevel := slog.LevelInfo
			if opts.Verbose {
				logLevel = slog.LevelDebug
			}
			handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
				Level: logLevel,
			})
			slog.SetDefault(slog.New(handler))

			if opts.ConfigPath != "" {
				cfg, err := LoadConfig(opts.ConfigPath)
				if err != nil {
					return err
				}
				opts.Config = cfg
			}
			return nil
		},
	}

	// Global flags
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "path to YAML config file with defaults")

	// Add subcommands
	cmd.AddCommand(NewAddCommand(opts))
	cmd.AddCommand(NewExtractCommand(opts))
	cmd.AddCommand(NewDropCommand(opts))
	cmd.AddCommand(NewCompactCommand(opts))
	cmd.AddCommand(NewRenameCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}
