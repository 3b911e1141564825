package cli

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"

	// Store and session flags. Set values override the config file.
	ConfigPath  string
	DB          string
	Driver      string
	SchemaDir   string
	IdentityMap bool
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the docsync CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "docsync",
		Short: "docsync - document graph synchronization",
		Long:  "Keep an in-memory graph of nested documents in step with its backing store: atomic array updates, positional paths and reloads.",

		SilenceErrors:     true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	pf := cmd.PersistentFlags()
	pf.BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	pf.StringVar(&opts.Format, "format", "text", "output format (json|text)")
	pf.StringVar(&opts.ConfigPath, "config", "", "path to a docsync YAML config file")
	pf.StringVar(&opts.DB, "db", "", "store path (SQLite file or badger directory)")
	pf.StringVar(&opts.Driver, "driver", "", "store driver (sqlite|badger|mongo)")
	pf.StringVar(&opts.SchemaDir, "schema", "", "CUE schema directory")
	pf.BoolVar(&opts.IdentityMap, "identity-map", false, "enable the identity registry")

	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewCreateCommand(opts))
	cmd.AddCommand(NewEmbedCommand(opts))
	cmd.AddCommand(NewPushCommand(opts))
	cmd.AddCommand(NewAddToSetCommand(opts))
	cmd.AddCommand(NewReloadCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))

	return cmd
}

func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}
