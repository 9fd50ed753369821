// Package diff implements "conserve diff", comparing the stitched
// trees of two bands and printing one line per changed apath.
package diff

import (
	"context"
	"fmt"

	"github.com/archivekit/conserve/archive"
	"github.com/archivekit/conserve/band"
	"github.com/archivekit/conserve/cmd/conserve/subcommands"
	"github.com/archivekit/conserve/conserveerr"
	"github.com/archivekit/conserve/diff"
	"github.com/archivekit/conserve/stitch"
	"github.com/spf13/cobra"
)

func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "diff <archive> <band-a> <band-b>",
		Short: `compare two bands ("latest" and "previous" are accepted)`,
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := subcommands.OpenLocal(ctx, args[0])
			if err != nil {
				return err
			}

			idA, err := resolveBandId(ctx, a, args[1])
			if err != nil {
				return err
			}
			idB, err := resolveBandId(ctx, a, args[2])
			if err != nil {
				return err
			}

			itA, err := stitch.Open(ctx, a, idA)
			if err != nil {
				return err
			}
			itB, err := stitch.Open(ctx, a, idB)
			if err != nil {
				return err
			}

			changes, err := diff.Compare(itA, itB)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, c := range changes {
				if c.Kind == diff.Unchanged {
					continue
				}
				fmt.Fprintf(out, "%s %s\n", changeMarker(c.Kind), c.Apath)
			}
			return nil
		},
	}
	return cmd
}

func changeMarker(k diff.ChangeKind) string {
	switch k {
	case diff.Added:
		return "+"
	case diff.Removed:
		return "-"
	case diff.Modified:
		return "M"
	default:
		return " "
	}
}

func resolveBandId(ctx context.Context, a *archive.Archive, ref string) (band.Id, error) {
	switch ref {
	case "latest":
		id, ok, err := a.LastBandId(ctx)
		if err != nil {
			return band.Id{}, err
		}
		if !ok {
			return band.Id{}, conserveerr.New(conserveerr.NotFound, "archive has no bands")
		}
		return id, nil
	case "previous":
		ids, err := a.ListBands(ctx)
		if err != nil {
			return band.Id{}, err
		}
		if len(ids) < 2 {
			return band.Id{}, conserveerr.New(conserveerr.NotFound, "archive has fewer than two bands")
		}
		return ids[len(ids)-2], nil
	default:
		return band.ParseId(ref)
	}
}
