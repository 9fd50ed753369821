// Package create implements "conserve create", which initializes a
// new, empty archive directory.
package create

import (
	"fmt"

	"github.com/archivekit/conserve/archive"
	"github.com/archivekit/conserve/cmd/conserve/subcommands"
	"github.com/spf13/cobra"
)

func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create <archive>",
		Short: "create a new, empty archive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if _, err := archive.Create(ctx, subcommands.LocalTransport(args[0])); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created archive %s\n", args[0])
			return nil
		},
	}
	return cmd
}
