package archive

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"tokencore/internal/infra/archive/core"
	"tokencore/internal/infra/archive/memory"
	"tokencore/pkg/domain"
)

func sampleSnapshot() domain.Snapshot {
	return domain.Snapshot{
		Tokens: map[string]domain.Token{
			"color-primary": {ID: "color-primary", DisplayName: "Primary", ResolvedValueTypeID: "color"},
		},
		TaxonomyOrder: []string{"category"},
		CapturedAt:    time.Date(2026, 2, 1, 9, 30, 0, 0, time.UTC),
	}
}

func TestArchiveUsesTimestampedKeys(t *testing.T) {
	archiver := NewArchiver(memory.New())
	at := time.Date(2026, 2, 1, 9, 30, 0, 123456789, time.UTC)
	archiver.SetNowFunc(func() time.Time { return at })

	info, err := archiver.Archive(context.Background(), "design-system", sampleSnapshot())
	if err != nil {
		t.Fatalf("archive: %v", err)
	}
	want := "snapshots/design-system/20260201T093000.123456789Z.json"
	if info.Key != want {
		t.Fatalf("key = %q, want %q", info.Key, want)
	}
}

func TestArchiveRequiresSystemID(t *testing.T) {
	archiver := NewArchiver(memory.New())
	if _, err := archiver.Archive(context.Background(), "  ", sampleSnapshot()); err == nil {
		t.Fatal("blank system id must fail")
	}
}

func TestRestoreRoundTrip(t *testing.T) {
	archiver := NewArchiver(memory.New())
	ctx := context.Background()

	info, err := archiver.Archive(ctx, "design-system", sampleSnapshot())
	if err != nil {
		t.Fatalf("archive: %v", err)
	}
	snap, err := archiver.Restore(ctx, info.Key)
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	tok, ok := snap.Tokens["color-primary"]
	if !ok || tok.DisplayName != "Primary" {
		t.Fatalf("snapshot = %+v", snap)
	}
	if len(snap.TaxonomyOrder) != 1 {
		t.Fatalf("taxonomy order = %v", snap.TaxonomyOrder)
	}
}

func TestRestoreUnknownKeyFails(t *testing.T) {
	archiver := NewArchiver(memory.New())
	if _, err := archiver.Restore(context.Background(), "snapshots/ds/missing.json"); err == nil {
		t.Fatal("missing entry must fail")
	}
}

func TestHistoryIsChronological(t *testing.T) {
	archiver := NewArchiver(memory.New())
	ctx := context.Background()

	at := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	archiver.SetNowFunc(func() time.Time {
		at = at.Add(time.Minute)
		return at
	})
	for i := 0; i < 3; i++ {
		if _, err := archiver.Archive(ctx, "design-system", sampleSnapshot()); err != nil {
			t.Fatalf("archive %d: %v", i, err)
		}
	}
	if _, err := archiver.Archive(ctx, "other-system", sampleSnapshot()); err != nil {
		t.Fatalf("archive other: %v", err)
	}

	history, err := archiver.History(ctx, "design-system")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 3 {
		t.Fatalf("history = %+v", history)
	}
	for i := 1; i < len(history); i++ {
		if history[i-1].Key >= history[i].Key {
			t.Fatalf("history out of order: %q >= %q", history[i-1].Key, history[i].Key)
		}
	}
}

func TestOpenStoreSelectsDriver(t *testing.T) {
	ctx := context.Background()

	t.Setenv(EnvArchiveDriver, "memory")
	store, err := OpenStore(ctx)
	if err != nil {
		t.Fatalf("open memory: %v", err)
	}
	if store.Driver() != core.DriverMemory {
		t.Fatalf("driver = %v", store.Driver())
	}

	t.Setenv(EnvArchiveDriver, "fs")
	t.Setenv(EnvArchiveFSRoot, filepath.Join(t.TempDir(), "archive"))
	store, err = OpenStore(ctx)
	if err != nil {
		t.Fatalf("open fs: %v", err)
	}
	if store.Driver() != core.DriverFilesystem {
		t.Fatalf("driver = %v", store.Driver())
	}

	t.Setenv(EnvArchiveDriver, "bogus")
	if _, err := OpenStore(ctx); err == nil {
		t.Fatal("unknown driver must fail")
	}
}
