package blockdir

import (
	"bytes"
	"context"
	"testing"

	"github.com/archivekit/conserve/conserveerr"
	"github.com/archivekit/conserve/hashing"
	"github.com/archivekit/conserve/transport/local"
)

func newTestBlockdir(t *testing.T) *Blockdir {
	t.Helper()
	tr := local.New(t.TempDir())
	return New(tr)
}

func TestStoreAndGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	bd := newTestBlockdir(t)

	data := bytes.Repeat([]byte("payload"), 1000)
	hash, n, err := bd.Store(ctx, data)
	if err != nil {
		t.Fatalf("Store: %v", err)
	}
	if n == 0 {
		t.Errorf("expected a new block to report a nonzero compressed length")
	}
	if hash != hashing.Sum(data) {
		t.Errorf("hash mismatch: got %s, want %s", hash, hashing.Sum(data))
	}

	got, err := bd.Get(ctx, hash, 0, int64(len(data)))
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Errorf("round trip mismatch")
	}
}

func TestStoreDeduplicatesIdenticalContent(t *testing.T) {
	ctx := context.Background()
	bd := newTestBlockdir(t)
	data := []byte("duplicate me")

	_, n1, err := bd.Store(ctx, data)
	if err != nil {
		t.Fatalf("Store: %v", err)
	}
	if n1 == 0 {
		t.Fatalf("expected first store to write a new block")
	}

	_, n2, err := bd.Store(ctx, data)
	if err != nil {
		t.Fatalf("Store: %v", err)
	}
	if n2 != 0 {
		t.Errorf("expected second store of identical content to write nothing, wrote %d bytes", n2)
	}
}

func TestGetSlicesAddress(t *testing.T) {
	ctx := context.Background()
	bd := newTestBlockdir(t)
	data := []byte("0123456789")
	hash, _, err := bd.Store(ctx, data)
	if err != nil {
		t.Fatalf("Store: %v", err)
	}
	got, err := bd.Get(ctx, hash, 3, 4)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !bytes.Equal(got, []byte("3456")) {
		t.Errorf("got %q, want %q", got, "3456")
	}
}

func TestGetRejectsOutOfRangeAddress(t *testing.T) {
	ctx := context.Background()
	bd := newTestBlockdir(t)
	data := []byte("short")
	hash, _, err := bd.Store(ctx, data)
	if err != nil {
		t.Fatalf("Store: %v", err)
	}
	if _, err := bd.Get(ctx, hash, 0, 100); !conserveerr.Is(err, conserveerr.AddressOutOfRange) {
		t.Errorf("expected AddressOutOfRange, got %v", err)
	}
}

func TestContains(t *testing.T) {
	ctx := context.Background()
	bd := newTestBlockdir(t)
	hash, _, err := bd.Store(ctx, []byte("present"))
	if err != nil {
		t.Fatalf("Store: %v", err)
	}
	ok, err := bd.Contains(ctx, hash)
	if err != nil || !ok {
		t.Fatalf("expected Contains true, got ok=%v err=%v", ok, err)
	}
	ok, err = bd.Contains(ctx, hashing.Sum([]byte("absent")))
	if err != nil || ok {
		t.Fatalf("expected Contains false, got ok=%v err=%v", ok, err)
	}
}

func TestBlockNames(t *testing.T) {
	ctx := context.Background()
	bd := newTestBlockdir(t)
	h1, _, _ := bd.Store(ctx, []byte("one"))
	h2, _, _ := bd.Store(ctx, []byte("two"))

	names, err := bd.BlockNames(ctx)
	if err != nil {
		t.Fatalf("BlockNames: %v", err)
	}
	found := map[string]bool{}
	for _, n := range names {
		found[n] = true
	}
	if !found[h1] || !found[h2] {
		t.Errorf("expected both hashes in %v", names)
	}
}

func TestValidateDetectsCorruption(t *testing.T) {
	ctx := context.Background()
	bd := newTestBlockdir(t)
	hash, _, err := bd.Store(ctx, bytes.Repeat([]byte("data"), 100))
	if err != nil {
		t.Fatalf("Store: %v", err)
	}

	_, ok, err := bd.Validate(ctx, hash)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if !ok {
		t.Errorf("expected an unmodified block to validate ok")
	}

	// Corrupt the stored block directly through the transport.
	raw, err := bd.tr.Read(ctx, pathFor(hash))
	if err != nil {
		t.Fatalf("Read raw block: %v", err)
	}
	corrupt := append([]byte{}, raw...)
	corrupt[len(corrupt)-1] ^= 0xff
	if err := bd.tr.Write(ctx, pathFor(hash), corrupt); err != nil {
		t.Fatalf("Write corrupt block: %v", err)
	}

	if _, ok, err := bd.Validate(ctx, hash); err == nil && ok {
		t.Errorf("expected Validate to detect corruption")
	}
}
