package storage

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"parallax/internal/domain"
)

func TestFileStoreUploadRoundtrip(t *testing.T) {
	ctx := context.Background()
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}

	payload := []byte("fake image bytes")
	if err := store.PutUpload(ctx, "job-1", "photo.jpg", payload); err != nil {
		t.Fatalf("PutUpload: %v", err)
	}
	got, err := store.GetUpload(ctx, "job-1", "photo.jpg")
	if err != nil {
		t.Fatalf("GetUpload: %v", err)
	}
	if string(got) != string(payload) {
		t.Fatalf("roundtrip mismatch: %q", got)
	}

	if _, err := store.GetUpload(ctx, "job-1", "missing.jpg"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("GetUpload(missing) error = %v, want ErrNotFound", err)
	}
}

func TestFileStoreProcessedRoundtrip(t *testing.T) {
	ctx := context.Background()
	base := t.TempDir()
	store, err := NewFileStore(base)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}

	key, err := store.PutProcessed(ctx, "job-1", domain.AssetTypeDepth, []byte("png bytes"))
	if err != nil {
		t.Fatalf("PutProcessed: %v", err)
	}
	if key != "assets/job-1/depth.png" {
		t.Fatalf("key = %q, want assets/job-1/depth.png", key)
	}
	if _, err := os.Stat(filepath.Join(base, "assets", "job-1", "depth.png")); err != nil {
		t.Fatalf("stored file missing: %v", err)
	}

	reader, err := store.GetProcessed(ctx, "job-1", domain.AssetTypeDepth)
	if err != nil {
		t.Fatalf("GetProcessed: %v", err)
	}
	defer reader.Close()
	got, err := io.ReadAll(reader)
	if err != nil {
		t.Fatalf("read asset: %v", err)
	}
	if string(got) != "png bytes" {
		t.Fatalf("roundtrip mismatch: %q", got)
	}

	if _, err := store.GetProcessed(ctx, "job-1", domain.AssetTypeMask); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("GetProcessed(absent) error = %v, want ErrNotFound", err)
	}
}

func TestFileStoreDeleteAllForJob(t *testing.T) {
	ctx := context.Background()
	base := t.TempDir()
	store, err := NewFileStore(base)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}

	if err := store.PutUpload(ctx, "job-1", "a.png", []byte("x")); err != nil {
		t.Fatalf("PutUpload: %v", err)
	}
	if _, err := store.PutProcessed(ctx, "job-1", domain.AssetTypeColor, []byte("y")); err != nil {
		t.Fatalf("PutProcessed: %v", err)
	}
	if err := store.PutUpload(ctx, "job-2", "b.png", []byte("z")); err != nil {
		t.Fatalf("PutUpload(job-2): %v", err)
	}

	if err := store.DeleteAllForJob(ctx, "job-1"); err != nil {
		t.Fatalf("DeleteAllForJob: %v", err)
	}
	if _, err := store.GetUpload(ctx, "job-1", "a.png"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("job-1 upload survived delete: %v", err)
	}
	if _, err := store.GetUpload(ctx, "job-2", "b.png"); err != nil {
		t.Fatalf("job-2 upload affected by job-1 delete: %v", err)
	}
}

func TestFileStoreRejectsTraversalKeys(t *testing.T) {
	ctx := context.Background()
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}

	if err := store.PutUpload(ctx, "../evil", "x.png", []byte("x")); err == nil {
		t.Fatalf("PutUpload with traversal job id succeeded")
	}
	if err := store.PutUpload(ctx, "job-1", "../../escape.png", []byte("x")); err == nil {
		t.Fatalf("PutUpload with traversal filename succeeded")
	}
	if err := store.DeleteAllForJob(ctx, ".."); err == nil {
		t.Fatalf("DeleteAllForJob with traversal id succeeded")
	}
}
