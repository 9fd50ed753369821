// Package local implements transport.Transport over the host
// filesystem. Writes are atomic via a temp file in the same
// directory followed by rename, the same pattern the teacher's
// storage/backends/fs.Repository.Commit uses to land a snapshot: no
// reader ever observes a partial object.
package local

import (
	"context"
	"os"
	"path/filepath"
	"sort"

	"github.com/archivekit/conserve/conserveerr"
	"github.com/archivekit/conserve/transport"
)

// Transport is a transport.Transport rooted at a directory on the
// local filesystem.
type Transport struct {
	root string
}

// New returns a Transport rooted at root. root must already exist;
// archive.Create is responsible for creating it.
func New(root string) *Transport {
	return &Transport{root: root}
}

func (t *Transport) resolve(path string) string {
	return filepath.Join(t.root, filepath.FromSlash(path))
}

func (t *Transport) ListDir(ctx context.Context, path string) ([]string, []string, error) {
	entries, err := os.ReadDir(t.resolve(path))
	if os.IsNotExist(err) {
		return nil, nil, conserveerr.NotFoundf(path)
	}
	if err != nil {
		return nil, nil, conserveerr.Iof(path, err)
	}
	var files, dirs []string
	for _, e := range entries {
		if e.IsDir() {
			dirs = append(dirs, e.Name())
		} else {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)
	sort.Strings(dirs)
	return files, dirs, nil
}

func (t *Transport) Read(ctx context.Context, path string) ([]byte, error) {
	data, err := os.ReadFile(t.resolve(path))
	if os.IsNotExist(err) {
		return nil, conserveerr.NotFoundf(path)
	}
	if err != nil {
		return nil, conserveerr.Iof(path, err)
	}
	return data, nil
}

func (t *Transport) ReadRange(ctx context.Context, path string, offset, length int64) ([]byte, error) {
	f, err := os.Open(t.resolve(path))
	if os.IsNotExist(err) {
		return nil, conserveerr.NotFoundf(path)
	}
	if err != nil {
		return nil, conserveerr.Iof(path, err)
	}
	defer f.Close()

	buf := make([]byte, length)
	n, err := f.ReadAt(buf, offset)
	if err != nil && n < len(buf) {
		return nil, conserveerr.Iof(path, err)
	}
	return buf[:n], nil
}

func (t *Transport) Write(ctx context.Context, path string, data []byte) error {
	full := t.resolve(path)
	dir := filepath.Dir(full)

	if err := os.MkdirAll(dir, 0700); err != nil {
		return conserveerr.Iof(path, err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return conserveerr.Iof(path, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return conserveerr.Iof(path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return conserveerr.Iof(path, err)
	}
	if err := os.Rename(tmpName, full); err != nil {
		os.Remove(tmpName)
		return conserveerr.Iof(path, err)
	}
	return nil
}

func (t *Transport) CreateDir(ctx context.Context, path string) error {
	if err := os.MkdirAll(t.resolve(path), 0700); err != nil {
		return conserveerr.Iof(path, err)
	}
	return nil
}

func (t *Transport) RemoveFile(ctx context.Context, path string) error {
	err := os.Remove(t.resolve(path))
	if os.IsNotExist(err) {
		return conserveerr.NotFoundf(path)
	}
	if err != nil {
		return conserveerr.Iof(path, err)
	}
	return nil
}

func (t *Transport) RemoveDirAll(ctx context.Context, path string) error {
	if err := os.RemoveAll(t.resolve(path)); err != nil {
		return conserveerr.Iof(path, err)
	}
	return nil
}

func (t *Transport) Exists(ctx context.Context, path string) (bool, error) {
	_, err := os.Stat(t.resolve(path))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, conserveerr.Iof(path, err)
	}
	return true, nil
}

func (t *Transport) SubTransport(path string) transport.Transport {
	return &Transport{root: t.resolve(path)}
}

var _ transport.Transport = (*Transport)(nil)
