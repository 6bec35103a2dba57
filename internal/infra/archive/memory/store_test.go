package memory

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	"tokencore/internal/infra/archive/core"
)

func TestPutGetRoundTrip(t *testing.T) {
	store := New()
	ctx := context.Background()

	info, err := store.Put(ctx, "snapshots/ds/a.json", strings.NewReader(`{"tokens":{}}`))
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if info.Key != "snapshots/ds/a.json" || info.Size != int64(len(`{"tokens":{}}`)) {
		t.Fatalf("info = %+v", info)
	}

	got, rc, err := store.Get(ctx, "snapshots/ds/a.json")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer func() { _ = rc.Close() }()
	body, _ := io.ReadAll(rc)
	if !bytes.Equal(body, []byte(`{"tokens":{}}`)) {
		t.Fatalf("body = %q", body)
	}
	if got.Size != info.Size {
		t.Fatalf("size changed between put and get: %d vs %d", got.Size, info.Size)
	}
}

func TestPutIsCreateOnly(t *testing.T) {
	store := New()
	ctx := context.Background()
	if _, err := store.Put(ctx, "k", strings.NewReader("v1")); err != nil {
		t.Fatalf("put: %v", err)
	}
	if _, err := store.Put(ctx, "k", strings.NewReader("v2")); err == nil {
		t.Fatal("second put on the same key must fail")
	}
}

func TestHeadAndDelete(t *testing.T) {
	store := New()
	ctx := context.Background()
	if _, err := store.Put(ctx, "k", strings.NewReader("v")); err != nil {
		t.Fatalf("put: %v", err)
	}
	if _, err := store.Head(ctx, "k"); err != nil {
		t.Fatalf("head: %v", err)
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
		t.Fatal("head after delete must fail")
	}
}

func TestListFiltersByPrefixSorted(t *testing.T) {
	store := New()
	ctx := context.Background()
	for _, key := range []string{"snapshots/ds/b.json", "snapshots/ds/a.json", "snapshots/other/c.json"} {
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
}

func TestDriver(t *testing.T) {
	if New().Driver() != core.DriverMemory {
		t.Fatal("driver mismatch")
	}
}
