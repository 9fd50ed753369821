// Package s3 implements transport.Transport over an S3-compatible
// object store using minio-go, the client library the teacher's
// storage/backends/s3.Repository wires in. Unlike that backend,
// which shapes its key layout around snapshots/packfiles/states,
// this one exposes the generic path-addressed Transport contract the
// core needs; archive-specific layout (blockdir fan-out, band
// directories) is the caller's concern, not the transport's.
package s3

import (
	"bytes"
	"context"
	"io"
	"path"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/archivekit/conserve/conserveerr"
	"github.com/archivekit/conserve/transport"
)

// Transport is a transport.Transport rooted at a key prefix within an
// S3-compatible bucket.
type Transport struct {
	client *minio.Client
	bucket string
	prefix string
}

// Config describes how to reach the bucket backing a Transport.
type Config struct {
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
	UseSSL          bool
}

// New connects to the store described by cfg and returns a Transport
// rooted at the bucket's top level. The bucket must already exist;
// archive.Create does not attempt to create buckets.
func New(ctx context.Context, cfg Config) (*Transport, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, conserveerr.Wrap(conserveerr.Io, "connecting to object store", err)
	}
	return &Transport{client: client, bucket: cfg.Bucket}, nil
}

func (t *Transport) key(p string) string {
	if t.prefix == "" {
		return strings.TrimPrefix(p, "/")
	}
	return path.Join(t.prefix, p)
}

func (t *Transport) ListDir(ctx context.Context, dir string) ([]string, []string, error) {
	prefix := t.key(dir)
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	seenDirs := map[string]bool{}
	var files, dirs []string
	for obj := range t.client.ListObjects(ctx, t.bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: false}) {
		if obj.Err != nil {
			return nil, nil, conserveerr.Wrap(conserveerr.Io, "listing "+dir, obj.Err)
		}
		name := strings.TrimPrefix(obj.Key, prefix)
		if strings.HasSuffix(name, "/") {
			name = strings.TrimSuffix(name, "/")
			if name != "" && !seenDirs[name] {
				seenDirs[name] = true
				dirs = append(dirs, name)
			}
			continue
		}
		if name != "" {
			files = append(files, name)
		}
	}
	return files, dirs, nil
}

func (t *Transport) Read(ctx context.Context, p string) ([]byte, error) {
	obj, err := t.client.GetObject(ctx, t.bucket, t.key(p), minio.GetObjectOptions{})
	if err != nil {
		return nil, conserveerr.Wrap(conserveerr.Io, "reading "+p, err)
	}
	defer obj.Close()
	data, err := io.ReadAll(obj)
	if err != nil {
		if resp, ok := err.(minio.ErrorResponse); ok && resp.Code == "NoSuchKey" {
			return nil, conserveerr.NotFoundf(p)
		}
		return nil, conserveerr.Wrap(conserveerr.Io, "reading "+p, err)
	}
	return data, nil
}

func (t *Transport) ReadRange(ctx context.Context, p string, offset, length int64) ([]byte, error) {
	opts := minio.GetObjectOptions{}
	if err := opts.SetRange(offset, offset+length-1); err != nil {
		return nil, conserveerr.Wrap(conserveerr.Io, "setting range for "+p, err)
	}
	obj, err := t.client.GetObject(ctx, t.bucket, t.key(p), opts)
	if err != nil {
		return nil, conserveerr.Wrap(conserveerr.Io, "reading "+p, err)
	}
	defer obj.Close()
	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, conserveerr.Wrap(conserveerr.Io, "reading "+p, err)
	}
	return data, nil
}

func (t *Transport) Write(ctx context.Context, p string, data []byte) error {
	_, err := t.client.PutObject(ctx, t.bucket, t.key(p), bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{})
	if err != nil {
		return conserveerr.Wrap(conserveerr.Io, "writing "+p, err)
	}
	return nil
}

// CreateDir is a no-op: S3 has no directories, only key prefixes.
func (t *Transport) CreateDir(ctx context.Context, p string) error { return nil }

func (t *Transport) RemoveFile(ctx context.Context, p string) error {
	if err := t.client.RemoveObject(ctx, t.bucket, t.key(p), minio.RemoveObjectOptions{}); err != nil {
		return conserveerr.Wrap(conserveerr.Io, "removing "+p, err)
	}
	return nil
}

func (t *Transport) RemoveDirAll(ctx context.Context, dir string) error {
	prefix := t.key(dir)
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	objectsCh := t.client.ListObjects(ctx, t.bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true})
	for obj := range objectsCh {
		if obj.Err != nil {
			return conserveerr.Wrap(conserveerr.Io, "listing "+dir, obj.Err)
		}
		if err := t.client.RemoveObject(ctx, t.bucket, obj.Key, minio.RemoveObjectOptions{}); err != nil {
			return conserveerr.Wrap(conserveerr.Io, "removing "+obj.Key, err)
		}
	}
	return nil
}

func (t *Transport) Exists(ctx context.Context, p string) (bool, error) {
	_, err := t.client.StatObject(ctx, t.bucket, t.key(p), minio.StatObjectOptions{})
	if err != nil {
		if resp, ok := err.(minio.ErrorResponse); ok && (resp.Code == "NoSuchKey" || resp.Code == "NotFound") {
			return false, nil
		}
		return false, conserveerr.Wrap(conserveerr.Io, "stating "+p, err)
	}
	return true, nil
}

func (t *Transport) SubTransport(p string) transport.Transport {
	return &Transport{client: t.client, bucket: t.bucket, prefix: t.key(p)}
}

var _ transport.Transport = (*Transport)(nil)
