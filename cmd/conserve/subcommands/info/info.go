// Package info implements "conserve info", printing a summary of an
// archive's bands and blocks. Repeated invocations reuse a small
// local cache file instead of rescanning the blockdir, keyed by
// archive path and band count (only the band list is re-read to
// check the count); the cache itself is encoded with
// msgpack rather than JSON, since it is a local convenience file, not
// part of the archive wire format, and the teacher reaches for
// msgpack (github.com/vmihailenco/msgpack/v5) for exactly this kind
// of ambient, non-format-critical struct encoding.
package info

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/archivekit/conserve/archive"
	"github.com/archivekit/conserve/cmd/conserve/subcommands"
	"github.com/spf13/cobra"
)

// summary is the cached, msgpack-encoded snapshot of one archive's
// bookkeeping counts.
type summary struct {
	BandCount  int    `msgpack:"band_count"`
	BlockCount int    `msgpack:"block_count"`
	LastBand   string `msgpack:"last_band"`
}

func NewCommand() *cobra.Command {
	var refresh bool

	cmd := &cobra.Command{
		Use:   "info <archive>",
		Short: "summarize an archive's bands and blocks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			archivePath := args[0]

			a, err := subcommands.OpenLocal(ctx, archivePath)
			if err != nil {
				return err
			}

			cachePath, err := cacheFilePath(archivePath)
			if err != nil {
				return err
			}

			s, fromCache, err := load(ctx, a, cachePath, refresh)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "bands:  %d\n", s.BandCount)
			fmt.Fprintf(out, "blocks: %d\n", s.BlockCount)
			fmt.Fprintf(out, "latest: %s\n", s.LastBand)
			if fromCache {
				fmt.Fprintf(out, "(from cache; pass --refresh to rescan)\n")
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&refresh, "refresh", false, "ignore the cache and rescan the archive")
	return cmd
}

func load(ctx context.Context, a *archive.Archive, cachePath string, refresh bool) (summary, bool, error) {
	if !refresh {
		if raw, err := os.ReadFile(cachePath); err == nil {
			var cached summary
			if err := msgpack.Unmarshal(raw, &cached); err == nil {
				ids, err := a.ListBands(ctx)
				if err == nil && len(ids) == cached.BandCount {
					return cached, true, nil
				}
			}
		}
	}

	s, err := compute(ctx, a)
	if err != nil {
		return summary{}, false, err
	}
	if raw, err := msgpack.Marshal(s); err == nil {
		os.MkdirAll(filepath.Dir(cachePath), 0700)
		os.WriteFile(cachePath, raw, 0600)
	}
	return s, false, nil
}

func compute(ctx context.Context, a *archive.Archive) (summary, error) {
	ids, err := a.ListBands(ctx)
	if err != nil {
		return summary{}, err
	}
	names, err := a.Blockdir().BlockNames(ctx)
	if err != nil {
		return summary{}, err
	}
	last := ""
	if len(ids) > 0 {
		last = ids[len(ids)-1].String()
	}
	return summary{BandCount: len(ids), BlockCount: len(names), LastBand: last}, nil
}

func cacheFilePath(archivePath string) (string, error) {
	abs, err := filepath.Abs(archivePath)
	if err != nil {
		return "", err
	}
	dir, err := os.UserCacheDir()
	if err != nil {
		dir = os.TempDir()
	}
	sum := sha256.Sum256([]byte(abs))
	return filepath.Join(dir, "conserve", hex.EncodeToString(sum[:])+".cache"), nil
}
