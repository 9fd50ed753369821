package restore

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"syscall"
	"testing"

	"github.com/pkg/xattr"

	"github.com/archivekit/conserve/archive"
	"github.com/archivekit/conserve/backup"
	"github.com/archivekit/conserve/conserveerr"
	"github.com/archivekit/conserve/index"
	"github.com/archivekit/conserve/transport/local"
)

func TestBackupRestoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	a, err := archive.Create(ctx, local.New(t.TempDir()))
	if err != nil {
		t.Fatalf("archive.Create: %v", err)
	}

	src := t.TempDir()
	if err := os.Mkdir(filepath.Join(src, "sub"), 0755); err != nil {
		t.Fatalf("Mkdir: %v", err)
	}
	content := []byte("hello world")
	if err := os.WriteFile(filepath.Join(src, "sub", "a.txt"), content, 0640); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	id, _, err := backup.Run(ctx, a, src, backup.DefaultOptions())
	if err != nil {
		t.Fatalf("backup.Run: %v", err)
	}

	dest := t.TempDir()
	restoreDest := filepath.Join(dest, "out")
	if _, err := Run(ctx, a, id, restoreDest, Options{}); err != nil {
		t.Fatalf("restore.Run: %v", err)
	}

	got, err := os.ReadFile(filepath.Join(restoreDest, "sub", "a.txt"))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !bytes.Equal(got, content) {
		t.Errorf("content mismatch: got %q, want %q", got, content)
	}

	info, err := os.Stat(filepath.Join(restoreDest, "sub", "a.txt"))
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if info.Mode().Perm() != 0640 {
		t.Errorf("mode mismatch: got %v, want 0640", info.Mode().Perm())
	}
}

func TestRestoreXattrsRoundTrip(t *testing.T) {
	ctx := context.Background()
	a, err := archive.Create(ctx, local.New(t.TempDir()))
	if err != nil {
		t.Fatalf("archive.Create: %v", err)
	}

	src := t.TempDir()
	path := filepath.Join(src, "a.txt")
	if err := os.WriteFile(path, []byte("hi"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := xattr.Set(path, "user.conserve.test", []byte("v1")); err != nil {
		t.Skipf("filesystem does not support xattrs: %v", err)
	}

	opts := backup.DefaultOptions()
	opts.CaptureXattrs = true
	id, _, err := backup.Run(ctx, a, src, opts)
	if err != nil {
		t.Fatalf("backup.Run: %v", err)
	}

	dest := filepath.Join(t.TempDir(), "out")
	if _, err := Run(ctx, a, id, dest, Options{RestoreXattrs: true}); err != nil {
		t.Fatalf("restore.Run: %v", err)
	}

	got, err := xattr.Get(filepath.Join(dest, "a.txt"), "user.conserve.test")
	if err != nil {
		t.Fatalf("xattr.Get on restored file: %v", err)
	}
	if string(got) != "v1" {
		t.Errorf("got xattr %q, want %q", got, "v1")
	}
}

func TestRestoreCorruptedBlockFails(t *testing.T) {
	ctx := context.Background()
	a, err := archive.Create(ctx, local.New(t.TempDir()))
	if err != nil {
		t.Fatalf("archive.Create: %v", err)
	}

	src := t.TempDir()
	if err := os.WriteFile(filepath.Join(src, "f"), bytes.Repeat([]byte("x"), 4096), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	id, _, err := backup.Run(ctx, a, src, backup.DefaultOptions())
	if err != nil {
		t.Fatalf("backup.Run: %v", err)
	}

	names, err := a.Blockdir().BlockNames(ctx)
	if err != nil || len(names) != 1 {
		t.Fatalf("expected exactly one block, got %v err=%v", names, err)
	}
	hash := names[0]
	blockPath := hash[:2] + "/" + hash
	raw, err := a.Transport().SubTransport("d").Read(ctx, blockPath)
	if err != nil {
		t.Fatalf("reading raw block: %v", err)
	}
	corrupt := append([]byte{}, raw...)
	corrupt[len(corrupt)-1] ^= 0xff
	if err := a.Transport().SubTransport("d").Write(ctx, blockPath, corrupt); err != nil {
		t.Fatalf("writing corrupt block: %v", err)
	}

	dest := filepath.Join(t.TempDir(), "out")
	_, err = Run(ctx, a, id, dest, Options{})
	if err == nil {
		t.Fatalf("expected restore to fail on a corrupted block")
	}
	if !conserveerr.Is(err, conserveerr.BlockCorrupt) {
		t.Errorf("expected BlockCorrupt, got %v", err)
	}
}

// TestRestoreOwnershipAppliesCapturedUidGid exercises the
// RestoreOwnership code path end to end. It can't assert a uid/gid
// change to a different owner without running as root, so instead it
// confirms the entry captured the running process's own uid/gid and
// that Chown-to-self (always permitted, even unprivileged) leaves the
// restored file with that same ownership.
func TestRestoreOwnershipAppliesCapturedUidGid(t *testing.T) {
	ctx := context.Background()
	a, err := archive.Create(ctx, local.New(t.TempDir()))
	if err != nil {
		t.Fatalf("archive.Create: %v", err)
	}

	src := t.TempDir()
	if err := os.WriteFile(filepath.Join(src, "a.txt"), []byte("owned"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	id, _, err := backup.Run(ctx, a, src, backup.DefaultOptions())
	if err != nil {
		t.Fatalf("backup.Run: %v", err)
	}

	tree, err := OpenTree(ctx, a, id)
	if err != nil {
		t.Fatalf("OpenTree: %v", err)
	}
	var fileEntry *index.Entry
	for {
		entry, ok, err := tree.Next()
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if !ok {
			break
		}
		if entry.Apath == "/a.txt" {
			e := entry
			fileEntry = &e
		}
	}
	if fileEntry == nil {
		t.Fatalf("expected to find /a.txt in the tree")
	}
	if fileEntry.OwnerUID == nil || *fileEntry.OwnerUID != os.Getuid() {
		t.Fatalf("expected OwnerUID %d captured, got %v", os.Getuid(), fileEntry.OwnerUID)
	}
	if fileEntry.OwnerGID == nil || *fileEntry.OwnerGID != os.Getgid() {
		t.Fatalf("expected OwnerGID %d captured, got %v", os.Getgid(), fileEntry.OwnerGID)
	}

	dest := filepath.Join(t.TempDir(), "out")
	if _, err := Run(ctx, a, id, dest, Options{RestoreOwnership: true}); err != nil {
		t.Fatalf("restore.Run: %v", err)
	}

	info, err := os.Stat(filepath.Join(dest, "a.txt"))
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		t.Skip("syscall.Stat_t unavailable on this platform")
	}
	if int(stat.Uid) != os.Getuid() || int(stat.Gid) != os.Getgid() {
		t.Errorf("got uid=%d gid=%d, want uid=%d gid=%d", stat.Uid, stat.Gid, os.Getuid(), os.Getgid())
	}
}

func TestOpenTreeListsEntriesAndReadsFileContent(t *testing.T) {
	ctx := context.Background()
	a, err := archive.Create(ctx, local.New(t.TempDir()))
	if err != nil {
		t.Fatalf("archive.Create: %v", err)
	}

	src := t.TempDir()
	content := []byte("tree content")
	if err := os.WriteFile(filepath.Join(src, "a.txt"), content, 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	id, _, err := backup.Run(ctx, a, src, backup.DefaultOptions())
	if err != nil {
		t.Fatalf("backup.Run: %v", err)
	}

	tree, err := OpenTree(ctx, a, id)
	if err != nil {
		t.Fatalf("OpenTree: %v", err)
	}

	var fileEntry *index.Entry
	var apaths []string
	for {
		entry, ok, err := tree.Next()
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if !ok {
			break
		}
		apaths = append(apaths, entry.Apath)
		if entry.Apath == "/a.txt" {
			e := entry
			fileEntry = &e
		}
	}
	if len(apaths) != 2 {
		t.Fatalf("expected 2 entries (root dir + file), got %v", apaths)
	}
	if fileEntry == nil {
		t.Fatalf("expected to find /a.txt in the tree")
	}

	got, err := tree.ReadFile(ctx, *fileEntry)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !bytes.Equal(got, content) {
		t.Errorf("content mismatch: got %q, want %q", got, content)
	}
}
