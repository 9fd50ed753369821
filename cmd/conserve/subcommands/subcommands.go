// Package subcommands holds the per-command cobra.Command
// constructors for the conserve CLI, one subdirectory per command,
// following the teacher's cmd/plakar/subcommands layout. Each
// subcommand package exports a NewCommand function that main wires
// into the root command tree.
package subcommands

import (
	"context"

	"github.com/archivekit/conserve/archive"
	"github.com/archivekit/conserve/transport"
	"github.com/archivekit/conserve/transport/local"
)

// OpenLocal opens an existing archive rooted at a local directory
// path. It is the shared entry point every subcommand uses to turn
// its positional archive-path argument into an *archive.Archive.
func OpenLocal(ctx context.Context, path string) (*archive.Archive, error) {
	return archive.Open(ctx, LocalTransport(path))
}

// LocalTransport wraps path as a transport.Transport rooted there.
func LocalTransport(path string) transport.Transport {
	return local.New(path)
}
