package fs

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"strings"
	"testing"

	"tokencore/internal/infra/archive/core"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return store
}

func TestPutComputesDigestAndSidecar(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	content := `{"tokens":{}}`

	info, err := store.Put(ctx, "snapshots/ds/a.json", strings.NewReader(content))
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	sum := sha256.Sum256([]byte(content))
	if info.ETag != hex.EncodeToString(sum[:]) {
		t.Fatalf("etag = %q", info.ETag)
	}
	if info.Size != int64(len(content)) {
		t.Fatalf("size = %d", info.Size)
	}

	head, err := store.Head(ctx, "snapshots/ds/a.json")
	if err != nil {
		t.Fatalf("head: %v", err)
	}
	if head.ETag != info.ETag || head.Size != info.Size {
		t.Fatalf("head = %+v, put = %+v", head, info)
	}

	got, rc, err := store.Get(ctx, "snapshots/ds/a.json")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer func() { _ = rc.Close() }()
	body, _ := io.ReadAll(rc)
	if string(body) != content {
		t.Fatalf("body = %q", body)
	}
	if got.ETag != info.ETag {
		t.Fatalf("get info = %+v", got)
	}
}

func TestPutRejectsExistingKey(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	if _, err := store.Put(ctx, "k", strings.NewReader("v1")); err != nil {
		t.Fatalf("put: %v", err)
	}
	if _, err := store.Put(ctx, "k", strings.NewReader("v2")); err == nil {
		t.Fatal("archive entries are immutable; second put must fail")
	}
}

func TestKeySanitization(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	for _, key := range []string{"", "  ", "../escape", "a/../../b", "/absolute"} {
		if _, err := store.Put(ctx, key, strings.NewReader("v")); err == nil {
			t.Fatalf("key %q must be rejected", key)
		}
	}
}

func TestDeleteReportsExistence(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	if _, err := store.Put(ctx, "k", strings.NewReader("v")); err != nil {
		t.Fatalf("put: %v", err)
	}
	removed, err := store.Delete(ctx, "k")
	if err != nil || !removed {
		t.Fatalf("delete = %v, %v", removed, err)
	}
	removed, err = store.Delete(ctx, "k")
	if err != nil || removed {
		t.Fatalf("second delete = %v, %v", removed, err)
	}
	if _, err := store.Head(ctx, "k"); err == nil {
		t.Fatal("sidecar must be removed with the entry")
	}
}

func TestListWalksNestedKeys(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	keys := []string{"snapshots/ds/b.json", "snapshots/ds/a.json", "snapshots/other/c.json"}
	for _, key := range keys {
		if _, err := store.Put(ctx, key, strings.NewReader("x")); err != nil {
			t.Fatalf("put %s: %v", key, err)
		}
	}
	infos, err := store.List(ctx, "snapshots/ds/")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(infos) != 2 || infos[0].Key != "snapshots/ds/a.json" || infos[1].Key != "snapshots/ds/b.json" {
		t.Fatalf("infos = %+v", infos)
	}
	all, err := store.List(ctx, "")
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("all = %+v", all)
	}
}

func TestDriver(t *testing.T) {
	if newStore(t).Driver() != core.DriverFilesystem {
		t.Fatal("driver mismatch")
	}
}
