package backup

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/xattr"

	"github.com/archivekit/conserve/archive"
	"github.com/archivekit/conserve/index"
	"github.com/archivekit/conserve/transport/local"
)

func newTestArchive(t *testing.T) *archive.Archive {
	t.Helper()
	a, err := archive.Create(context.Background(), local.New(t.TempDir()))
	if err != nil {
		t.Fatalf("archive.Create: %v", err)
	}
	return a
}

func readBandEntries(t *testing.T, ctx context.Context, a *archive.Archive) []index.Entry {
	t.Helper()
	last, ok, err := a.LastBandId(ctx)
	if err != nil || !ok {
		t.Fatalf("LastBandId: ok=%v err=%v", ok, err)
	}
	b, err := a.OpenBand(ctx, last)
	if err != nil {
		t.Fatalf("OpenBand: %v", err)
	}
	tail, err := b.ReadTail(ctx)
	if err != nil {
		t.Fatalf("ReadTail: %v", err)
	}
	r := index.NewReader(b.Transport(), tail.IndexHunkCount)
	var entries []index.Entry
	for {
		e, ok, err := r.Next(ctx)
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if !ok {
			break
		}
		entries = append(entries, e)
	}
	return entries
}

func TestBackupEmptyTree(t *testing.T) {
	ctx := context.Background()
	a := newTestArchive(t)
	src := t.TempDir()

	if _, _, err := Run(ctx, a, src, DefaultOptions()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	entries := readBandEntries(t, ctx, a)
	if len(entries) != 1 || entries[0].Apath != "/" || entries[0].Kind != index.KindDir {
		t.Fatalf("expected exactly one root Dir entry, got %+v", entries)
	}

	names, err := a.Blockdir().BlockNames(ctx)
	if err != nil {
		t.Fatalf("BlockNames: %v", err)
	}
	if len(names) != 0 {
		t.Errorf("expected an empty blockdir, got %v", names)
	}
}

func TestBackupSmallFile(t *testing.T) {
	ctx := context.Background()
	a := newTestArchive(t)
	src := t.TempDir()
	if err := os.WriteFile(filepath.Join(src, "a.txt"), []byte("hello world"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	if _, _, err := Run(ctx, a, src, DefaultOptions()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	entries := readBandEntries(t, ctx, a)
	var fileEntry *index.Entry
	for i := range entries {
		if entries[i].Apath == "/a.txt" {
			fileEntry = &entries[i]
		}
	}
	if fileEntry == nil {
		t.Fatalf("expected an entry for /a.txt, got %+v", entries)
	}
	if len(fileEntry.Addrs) != 1 {
		t.Fatalf("expected exactly one block address, got %d", len(fileEntry.Addrs))
	}

	names, err := a.Blockdir().BlockNames(ctx)
	if err != nil {
		t.Fatalf("BlockNames: %v", err)
	}
	if len(names) != 1 {
		t.Fatalf("expected exactly one block in the blockdir, got %v", names)
	}
}

func TestBackupCapturesOwnership(t *testing.T) {
	ctx := context.Background()
	a := newTestArchive(t)
	src := t.TempDir()
	if err := os.WriteFile(filepath.Join(src, "a.txt"), []byte("owned"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	if _, _, err := Run(ctx, a, src, DefaultOptions()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	entries := readBandEntries(t, ctx, a)
	var fileEntry, dirEntry *index.Entry
	for i := range entries {
		switch entries[i].Apath {
		case "/a.txt":
			fileEntry = &entries[i]
		case "/":
			dirEntry = &entries[i]
		}
	}
	if fileEntry == nil {
		t.Fatalf("expected an entry for /a.txt, got %+v", entries)
	}
	if dirEntry == nil {
		t.Fatalf("expected a root directory entry, got %+v", entries)
	}

	for _, e := range []*index.Entry{fileEntry, dirEntry} {
		if e.OwnerUID == nil || *e.OwnerUID != os.Getuid() {
			t.Errorf("%s: expected OwnerUID %d, got %v", e.Apath, os.Getuid(), e.OwnerUID)
		}
		if e.OwnerGID == nil || *e.OwnerGID != os.Getgid() {
			t.Errorf("%s: expected OwnerGID %d, got %v", e.Apath, os.Getgid(), e.OwnerGID)
		}
	}
}

func TestBackupDeduplicatesIdenticalFiles(t *testing.T) {
	ctx := context.Background()
	a := newTestArchive(t)
	src := t.TempDir()
	buf := bytes.Repeat([]byte("z"), 512*1024)
	if err := os.WriteFile(filepath.Join(src, "x"), buf, 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := os.WriteFile(filepath.Join(src, "y"), buf, 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	if _, _, err := Run(ctx, a, src, DefaultOptions()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	names, err := a.Blockdir().BlockNames(ctx)
	if err != nil {
		t.Fatalf("BlockNames: %v", err)
	}
	if len(names) != 1 {
		t.Fatalf("expected exactly one deduplicated block, got %v", names)
	}

	entries := readBandEntries(t, ctx, a)
	var xHash, yHash string
	for _, e := range entries {
		if e.Apath == "/x" {
			xHash = e.Addrs[0].Hash
		}
		if e.Apath == "/y" {
			yHash = e.Addrs[0].Hash
		}
	}
	if xHash == "" || yHash == "" || xHash != yHash {
		t.Errorf("expected /x and /y to share a block hash, got %q and %q", xHash, yHash)
	}
}

func TestBackupChunksLargeFiles(t *testing.T) {
	ctx := context.Background()
	a := newTestArchive(t)
	src := t.TempDir()
	size := 2*TargetBlockSize + TargetBlockSize/2
	buf := bytes.Repeat([]byte{1}, size)
	if err := os.WriteFile(filepath.Join(src, "big"), buf, 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	if _, _, err := Run(ctx, a, src, DefaultOptions()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	entries := readBandEntries(t, ctx, a)
	var big *index.Entry
	for i := range entries {
		if entries[i].Apath == "/big" {
			big = &entries[i]
		}
	}
	if big == nil {
		t.Fatalf("expected an entry for /big")
	}
	if len(big.Addrs) != 3 {
		t.Fatalf("expected 3 blocks, got %d", len(big.Addrs))
	}
	if big.Addrs[0].Len != TargetBlockSize || big.Addrs[1].Len != TargetBlockSize || big.Addrs[2].Len != TargetBlockSize/2 {
		t.Errorf("unexpected block sizes: %+v", big.Addrs)
	}
}

func TestBackupCapturesXattrsWhenEnabled(t *testing.T) {
	ctx := context.Background()
	a := newTestArchive(t)
	src := t.TempDir()
	path := filepath.Join(src, "a.txt")
	if err := os.WriteFile(path, []byte("hi"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := xattr.Set(path, "user.conserve.test", []byte("v1")); err != nil {
		t.Skipf("filesystem does not support xattrs: %v", err)
	}

	opts := DefaultOptions()
	opts.CaptureXattrs = true
	if _, _, err := Run(ctx, a, src, opts); err != nil {
		t.Fatalf("Run: %v", err)
	}

	entries := readBandEntries(t, ctx, a)
	var got *index.Entry
	for i := range entries {
		if entries[i].Apath == "/a.txt" {
			got = &entries[i]
		}
	}
	if got == nil {
		t.Fatalf("expected an entry for /a.txt")
	}
	if string(got.Xattrs["user.conserve.test"]) != "v1" {
		t.Errorf("expected captured xattr user.conserve.test=v1, got %+v", got.Xattrs)
	}
}

func TestBackupOmitsXattrsWhenDisabled(t *testing.T) {
	ctx := context.Background()
	a := newTestArchive(t)
	src := t.TempDir()
	path := filepath.Join(src, "a.txt")
	if err := os.WriteFile(path, []byte("hi"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := xattr.Set(path, "user.conserve.test", []byte("v1")); err != nil {
		t.Skipf("filesystem does not support xattrs: %v", err)
	}

	if _, _, err := Run(ctx, a, src, DefaultOptions()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	entries := readBandEntries(t, ctx, a)
	for _, e := range entries {
		if e.Apath == "/a.txt" && len(e.Xattrs) != 0 {
			t.Errorf("expected no captured xattrs by default, got %+v", e.Xattrs)
		}
	}
}

func TestBackupIdempotentOnSecondRun(t *testing.T) {
	ctx := context.Background()
	a := newTestArchive(t)
	src := t.TempDir()
	if err := os.WriteFile(filepath.Join(src, "a.txt"), []byte("stable content"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	if _, _, err := Run(ctx, a, src, DefaultOptions()); err != nil {
		t.Fatalf("Run 1: %v", err)
	}
	namesBefore, err := a.Blockdir().BlockNames(ctx)
	if err != nil {
		t.Fatalf("BlockNames: %v", err)
	}

	if _, _, err := Run(ctx, a, src, DefaultOptions()); err != nil {
		t.Fatalf("Run 2: %v", err)
	}
	namesAfter, err := a.Blockdir().BlockNames(ctx)
	if err != nil {
		t.Fatalf("BlockNames: %v", err)
	}
	if len(namesAfter) != len(namesBefore) {
		t.Errorf("expected unchanged source to write zero new blocks on rerun: before=%v after=%v", namesBefore, namesAfter)
	}
}

func TestBackupReturnsStatsSnapshot(t *testing.T) {
	ctx := context.Background()
	a := newTestArchive(t)
	src := t.TempDir()
	if err := os.Mkdir(filepath.Join(src, "sub"), 0755); err != nil {
		t.Fatalf("Mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(src, "sub", "a.txt"), []byte("content"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := os.Symlink("a.txt", filepath.Join(src, "sub", "link")); err != nil {
		t.Skipf("filesystem does not support symlinks: %v", err)
	}

	_, stats, err := Run(ctx, a, src, DefaultOptions())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if stats.Files != 1 {
		t.Errorf("Files = %d, want 1", stats.Files)
	}
	if stats.Dirs != 2 {
		t.Errorf("Dirs = %d, want 2 (root + sub)", stats.Dirs)
	}
	if stats.Symlinks != 1 {
		t.Errorf("Symlinks = %d, want 1", stats.Symlinks)
	}

	_, stats2, err := Run(ctx, a, src, DefaultOptions())
	if err != nil {
		t.Fatalf("Run 2: %v", err)
	}
	if stats2.BlocksReused != 1 {
		t.Errorf("BlocksReused = %d, want 1 on an unchanged rerun", stats2.BlocksReused)
	}
}
