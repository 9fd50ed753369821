// Package validate implements "conserve validate", checking an
// archive's structure, blocks, and indexes for problems without
// restoring anything.
package validate

import (
	"fmt"

	"github.com/archivekit/conserve/cmd/conserve/subcommands"
	"github.com/spf13/cobra"
)

func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <archive>",
		Short: "check an archive for structural and block problems",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := subcommands.OpenLocal(ctx, args[0])
			if err != nil {
				return err
			}
			stats, err := a.Validate(ctx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "structure problems: %d\n", stats.StructureProblems)
			fmt.Fprintf(out, "blocks read:        %d\n", stats.BlockReadCount)
			fmt.Fprintf(out, "block errors:       %d\n", stats.BlockErrorCount)
			fmt.Fprintf(out, "index problems:     %d\n", stats.IndexProblems)
			fmt.Fprintf(out, "orphan blocks:      %d\n", stats.OrphanBlockCount)
			if stats.HasProblems() {
				return fmt.Errorf("validation found problems")
			}
			return nil
		},
	}
	return cmd
}
