package s3

import (
	"context"
	"io"
	"strings"
	"testing"

	"tokencore/internal/infra/archive/core"
)

func TestMockRoundTrip(t *testing.T) {
	store := NewMockForTests()
	ctx := context.Background()
	content := `{"tokens":{}}`

	info, err := store.Put(ctx, "snapshots/ds/a.json", strings.NewReader(content))
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if info.Key != "snapshots/ds/a.json" || info.Size != int64(len(content)) {
		t.Fatalf("info = %+v", info)
	}
	if info.ETag != "etag" {
		t.Fatalf("etag must be unquoted: %q", info.ETag)
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
	if got.Size != info.Size {
		t.Fatalf("get info = %+v", got)
	}
}

func TestPutIsCreateOnly(t *testing.T) {
	store := NewMockForTests()
	ctx := context.Background()
	if _, err := store.Put(ctx, "k", strings.NewReader("v1")); err != nil {
		t.Fatalf("put: %v", err)
	}
	if _, err := store.Put(ctx, "k", strings.NewReader("v2")); err == nil {
		t.Fatal("second put on the same key must fail")
	}
}

func TestListFiltersByPrefix(t *testing.T) {
	store := NewMockForTests()
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

func TestDeleteRemovesObject(t *testing.T) {
	store := NewMockForTests()
	ctx := context.Background()
	if _, err := store.Put(ctx, "k", strings.NewReader("v")); err != nil {
		t.Fatalf("put: %v", err)
	}
	removed, err := store.Delete(ctx, "k")
	if err != nil || !removed {
		t.Fatalf("delete = %v, %v", removed, err)
	}
	if _, err := store.Head(ctx, "k"); err == nil {
		t.Fatal("head after delete must fail")
	}
}

func TestOpenFromEnvRequiresBucket(t *testing.T) {
	t.Setenv("TOKENCORE_ARCHIVE_S3_BUCKET", "")
	if _, err := OpenFromEnv(context.Background()); err == nil {
		t.Fatal("missing bucket must fail")
	}
}

func TestDriver(t *testing.T) {
	if NewMockForTests().Driver() != core.DriverS3 {
		t.Fatal("driver mismatch")
	}
}
