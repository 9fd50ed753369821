// Package ls implements "conserve ls", listing the entries of a
// band's stitched tree without restoring anything to disk. It exists
// to exercise restore.OpenTree, the read-only tree view grounded on
// original_source's stored_tree.rs.
package ls

import (
	"context"
	"fmt"

	"github.com/archivekit/conserve/archive"
	"github.com/archivekit/conserve/band"
	"github.com/archivekit/conserve/cmd/conserve/subcommands"
	"github.com/archivekit/conserve/conserveerr"
	"github.com/archivekit/conserve/restore"
	"github.com/spf13/cobra"
)

func NewCommand() *cobra.Command {
	var bandFlag string

	cmd := &cobra.Command{
		Use:   "ls <archive>",
		Short: `list the entries of a band ("latest" by default)`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := subcommands.OpenLocal(ctx, args[0])
			if err != nil {
				return err
			}

			id, err := resolveBandId(ctx, a, bandFlag)
			if err != nil {
				return err
			}

			tree, err := restore.OpenTree(ctx, a, id)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for {
				entry, ok, err := tree.Next()
				if err != nil {
					return err
				}
				if !ok {
					break
				}
				fmt.Fprintf(out, "%s %10d %s\n", string(entry.Kind[0]), entry.Size, entry.Apath)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&bandFlag, "band", "latest", `band id to list, or "latest"`)
	return cmd
}

func resolveBandId(ctx context.Context, a *archive.Archive, flag string) (band.Id, error) {
	if flag == "" || flag == "latest" {
		id, ok, err := a.LastBandId(ctx)
		if err != nil {
			return band.Id{}, err
		}
		if !ok {
			return band.Id{}, conserveerr.New(conserveerr.NotFound, "archive has no bands")
		}
		return id, nil
	}
	return band.ParseId(flag)
}
