// Package restore implements "conserve restore", reconstructing a
// band's stitched tree into a destination directory.
package restore

import (
	"context"
	"fmt"
	"time"

	"github.com/archivekit/conserve/archive"
	"github.com/archivekit/conserve/band"
	"github.com/archivekit/conserve/cmd/conserve/subcommands"
	"github.com/archivekit/conserve/conserveerr"
	"github.com/archivekit/conserve/logger"
	"github.com/archivekit/conserve/profiler"
	"github.com/archivekit/conserve/restore"
	"github.com/spf13/cobra"
)

func NewCommand() *cobra.Command {
	var bandFlag string
	var ownership bool
	var xattrs bool
	var quiet bool
	var profile bool

	cmd := &cobra.Command{
		Use:   "restore <archive> <destination>",
		Short: "restore a band into a destination directory",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			archivePath, dest := args[0], args[1]

			a, err := subcommands.OpenLocal(ctx, archivePath)
			if err != nil {
				return err
			}

			id, err := resolveBandId(ctx, a, bandFlag)
			if err != nil {
				return err
			}

			opts := restore.Options{RestoreOwnership: ownership, RestoreXattrs: xattrs}

			if profile {
				logger.EnableProfiling()
			}

			start := time.Now()
			stats, err := restore.Run(ctx, a, id, dest, opts)
			if profile {
				profiler.Display()
			}
			if err != nil {
				return err
			}
			if !quiet {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %s (%s)\n", id, stats, time.Since(start).Round(time.Millisecond))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&bandFlag, "band", "latest", `band id to restore, or "latest" for the newest complete band`)
	cmd.Flags().BoolVar(&ownership, "ownership", false, "restore original uid/gid (requires privilege)")
	cmd.Flags().BoolVar(&xattrs, "xattrs", false, "restore captured extended attributes")
	cmd.Flags().BoolVar(&quiet, "quiet", false, "suppress the completion summary")
	cmd.Flags().BoolVar(&profile, "profile", false, "print per-component timing stats after completion")
	return cmd
}

func resolveBandId(ctx context.Context, a *archive.Archive, flag string) (band.Id, error) {
	if flag == "" || flag == "latest" {
		b, ok, err := a.LastCompleteBand(ctx)
		if err != nil {
			return band.Id{}, err
		}
		if !ok {
			return band.Id{}, conserveerr.New(conserveerr.NotFound, "archive has no complete bands")
		}
		return b.Id, nil
	}
	return band.ParseId(flag)
}
