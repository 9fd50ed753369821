// Command conserve is the CLI front end for the archive, backup,
// restore, validate, and diff packages. It is deliberately thin: all
// the format and pipeline logic lives in the library packages, and
// this package only wires cobra commands to them, the same division
// the teacher draws between cmd/plakar/subcommands and the packages
// those subcommands call into.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/archivekit/conserve/cmd/conserve/subcommands/backup"
	"github.com/archivekit/conserve/cmd/conserve/subcommands/create"
	"github.com/archivekit/conserve/cmd/conserve/subcommands/diff"
	"github.com/archivekit/conserve/cmd/conserve/subcommands/info"
	"github.com/archivekit/conserve/cmd/conserve/subcommands/ls"
	"github.com/archivekit/conserve/cmd/conserve/subcommands/restore"
	"github.com/archivekit/conserve/cmd/conserve/subcommands/validate"
	"github.com/archivekit/conserve/logger"
	"github.com/spf13/cobra"
)

const version = "0.1.0"

func main() {
	stop := logger.Start()
	defer stop()

	var verbose bool

	root := &cobra.Command{
		Use:           "conserve",
		Short:         "a content-addressed, incremental backup archive tool",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if verbose {
				logger.EnableInfo()
			}
		},
	}
	root.PersistentFlags().BoolVar(&verbose, "verbose", false, "enable informational logging")
	root.AddCommand(
		create.NewCommand(),
		backup.NewCommand(),
		restore.NewCommand(),
		validate.NewCommand(),
		diff.NewCommand(),
		info.NewCommand(),
		ls.NewCommand(),
	)

	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "conserve: %s\n", err)
		os.Exit(1)
	}
}
