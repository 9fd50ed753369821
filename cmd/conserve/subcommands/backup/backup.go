// Package backup implements "conserve backup", walking a source tree
// into a new band of an existing archive. Its flag set mirrors the
// teacher's cmd/plakar/subcommands/backup: repeatable -exclude
// entries plus an -excludes file of newline-separated glob patterns.
package backup

import (
	"bufio"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/archivekit/conserve/backup"
	"github.com/archivekit/conserve/cmd/conserve/subcommands"
	"github.com/archivekit/conserve/logger"
	"github.com/archivekit/conserve/policy"
	"github.com/archivekit/conserve/profiler"
	"github.com/spf13/cobra"
)

func NewCommand() *cobra.Command {
	var excludes []string
	var excludesFile string
	var threads int
	var xattrs bool
	var quiet bool
	var profile bool

	cmd := &cobra.Command{
		Use:   "backup <archive> <source>",
		Short: "back up a source tree into a new band",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			archivePath, source := args[0], args[1]

			patterns := append([]string{}, excludes...)
			if excludesFile != "" {
				fp, err := os.Open(excludesFile)
				if err != nil {
					return err
				}
				defer fp.Close()
				scanner := bufio.NewScanner(fp)
				for scanner.Scan() {
					patterns = append(patterns, scanner.Text())
				}
				if err := scanner.Err(); err != nil {
					return err
				}
			}
			exclude, err := policy.NewExcludeSet(patterns...)
			if err != nil {
				return err
			}

			a, err := subcommands.OpenLocal(ctx, archivePath)
			if err != nil {
				return err
			}

			opts := backup.DefaultOptions()
			opts.Exclude = exclude
			opts.Threads = threads
			opts.CaptureXattrs = xattrs

			if profile {
				logger.EnableProfiling()
			}

			start := time.Now()
			id, stats, err := backup.Run(ctx, a, source, opts)
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

	cmd.Flags().StringArrayVar(&excludes, "exclude", nil, "glob pattern to exclude (repeatable)")
	cmd.Flags().StringVar(&excludesFile, "excludes", "", "file of newline-separated glob patterns to exclude")
	cmd.Flags().IntVar(&threads, "threads", runtime.NumCPU(), "number of block hashing/compression workers")
	cmd.Flags().BoolVar(&xattrs, "xattrs", false, "capture extended attributes")
	cmd.Flags().BoolVar(&quiet, "quiet", false, "suppress the completion summary")
	cmd.Flags().BoolVar(&profile, "profile", false, "print per-component timing stats after completion")
	return cmd
}
