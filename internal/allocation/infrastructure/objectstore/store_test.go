package objectstore

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	allocation "netgen-allocation/internal/allocation/domain"
)

func TestLocalStorePutOpen(t *testing.T) {
	src := filepath.Join(t.TempDir(), "report.zip")
	if err := os.WriteFile(src, []byte("zip-bytes"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	store, err := NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	location, err := store.Put(context.Background(), "2018/alloc-2018-20190304/report.zip", src)
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	rc, err := store.Open(context.Background(), location)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer rc.Close()
	data, _ := io.ReadAll(rc)
	if string(data) != "zip-bytes" {
		t.Fatalf("unexpected content %q", data)
	}

	if _, err := store.Open(context.Background(), filepath.Join(t.TempDir(), "missing.zip")); !errors.Is(err, allocation.ErrReportNotFound) {
		t.Fatalf("expected ErrReportNotFound, got %v", err)
	}
}

func TestLocalStoreSamePath(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "2018", "job", "report.zip")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte("x"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	store, _ := NewLocalStore(root)
	location, err := store.Put(context.Background(), "2018/job/report.zip", path)
	if err != nil || location != path {
		t.Fatalf("expected in-place location, got %s err=%v", location, err)
	}
}

func TestParseLocation(t *testing.T) {
	bucket, key, err := ParseLocation(Location("allocation-reports", "2018/job/report.zip"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if bucket != "allocation-reports" || key != "2018/job/report.zip" {
		t.Fatalf("unexpected split %s %s", bucket, key)
	}
	for _, bad := range []string{"/tmp/report.zip", "s3://bucket", "s3:///key"} {
		if _, _, err := ParseLocation(bad); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
}

func TestNewMinioStoreValidation(t *testing.T) {
	if _, err := NewMinioStore(context.Background(), "", "", "", "bucket", false); err == nil {
		t.Fatalf("expected error for empty endpoint")
	}
}
