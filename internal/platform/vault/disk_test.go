package vault

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newDiskStore(t *testing.T) (*DiskStore, string) {
	t.Helper()
	dir := t.TempDir()
	store, err := NewDiskStore(dir)
	if err != nil {
		t.Fatalf("NewDiskStore: %v", err)
	}
	return store, dir
}

func TestDiskStoreRoundTrip(t *testing.T) {
	store, dir := newDiskStore(t)

	stored := seed(t, store, DocumentMetadata{
		FileName:    "specs.txt",
		ContentType: "text/plain",
		Category:    "device-specs",
		CreatedBy:   "MFG-ACME",
	}, "device specification revision B")

	// Content file and metadata sidecar both land on disk.
	if _, err := os.Stat(filepath.Join(dir, stored.ID)); err != nil {
		t.Fatalf("content file missing: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, stored.ID+metaSuffix)); err != nil {
		t.Fatalf("metadata sidecar missing: %v", err)
	}

	rc, meta, err := store.Download(context.Background(), stored.ID)
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != "device specification revision B" {
		t.Errorf("content = %q, want the uploaded bytes", data)
	}
	if meta.Category != "device-specs" {
		t.Errorf("Category = %q, want device-specs", meta.Category)
	}
}

func TestDiskStoreSurvivesReopen(t *testing.T) {
	store, dir := newDiskStore(t)
	stored := seedPatientDoc(t, store, "PAT-1", "surgical-notes", "notes.txt", "durable notes")

	reopened, err := NewDiskStore(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}

	meta, err := reopened.GetMetadata(context.Background(), stored.ID)
	if err != nil {
		t.Fatalf("GetMetadata after reopen: %v", err)
	}
	if meta.FileName != "notes.txt" {
		t.Errorf("FileName = %q, want notes.txt", meta.FileName)
	}
	if meta.Hash != stored.Hash {
		t.Errorf("Hash = %q, want %q", meta.Hash, stored.Hash)
	}
}

func TestDiskStoreDelete(t *testing.T) {
	store, dir := newDiskStore(t)
	stored := seedPatientDoc(t, store, "PAT-1", "other", "gone.txt", "bye")

	if err := store.Delete(context.Background(), stored.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dir, stored.ID)); !os.IsNotExist(err) {
		t.Errorf("content file still present, stat err = %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, stored.ID+metaSuffix)); !os.IsNotExist(err) {
		t.Errorf("metadata sidecar still present, stat err = %v", err)
	}

	if err := store.Delete(context.Background(), stored.ID); !errors.Is(err, ErrDocumentNotFound) {
		t.Errorf("second Delete = %v, want ErrDocumentNotFound", err)
	}
}

func TestDiskStoreHashLookup(t *testing.T) {
	store, _ := newDiskStore(t)
	stored := seedPatientDoc(t, store, "PAT-1", "maintenance-notes", "report.txt", "maintenance report 2026-08")

	rc, meta, err := store.GetByHash(context.Background(), stored.Hash)
	if err != nil {
		t.Fatalf("GetByHash: %v", err)
	}
	defer rc.Close()

	data, _ := io.ReadAll(rc)
	if string(data) != "maintenance report 2026-08" {
		t.Errorf("content = %q, want the uploaded bytes", data)
	}
	if meta.ID != stored.ID {
		t.Errorf("resolved %s, want %s", meta.ID, stored.ID)
	}

	if _, _, err := store.GetByHash(context.Background(), strings.Repeat("ef", 32)); !errors.Is(err, ErrDocumentNotFound) {
		t.Errorf("GetByHash(unknown) = %v, want ErrDocumentNotFound", err)
	}
}

func TestDiskStoreListAndSearch(t *testing.T) {
	store, _ := newDiskStore(t)

	seedPatientDoc(t, store, "PAT-A", "surgical-notes", "a1.txt", "a1")
	seedPatientDoc(t, store, "PAT-A", "performance-data", "a2.txt", "a2")
	seedPatientDoc(t, store, "PAT-B", "other", "b1.txt", "b1")

	_, total, err := store.ListByPatient(context.Background(), "PAT-A", "", 10, 0)
	if err != nil {
		t.Fatalf("ListByPatient: %v", err)
	}
	if total != 2 {
		t.Errorf("total = %d, want 2", total)
	}

	items, total, err := store.Search(context.Background(), SearchParams{Category: "performance-data", Limit: 10})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if total != 1 || len(items) != 1 {
		t.Fatalf("Search() total=%d len=%d, want 1", total, len(items))
	}
	if items[0].FileName != "a2.txt" {
		t.Errorf("FileName = %q, want a2.txt", items[0].FileName)
	}
}

func TestDiskStoreRejectsPathTraversal(t *testing.T) {
	store, _ := newDiskStore(t)

	for _, id := range []string{"../escape", "..", ".", "nested/inside", ".hidden", ""} {
		if _, _, err := store.Download(context.Background(), id); !errors.Is(err, ErrDocumentNotFound) {
			t.Errorf("Download(%q) = %v, want ErrDocumentNotFound", id, err)
		}
		if err := store.Delete(context.Background(), id); !errors.Is(err, ErrDocumentNotFound) {
			t.Errorf("Delete(%q) = %v, want ErrDocumentNotFound", id, err)
		}
	}
}

func TestDiskStoreIgnoresStrayFiles(t *testing.T) {
	store, dir := newDiskStore(t)

	// Non-sidecar and unparseable files in the vault dir must not break
	// listing.
	if err := os.WriteFile(filepath.Join(dir, "README"), []byte("not a document"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "broken.json"), []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}

	seedPatientDoc(t, store, "PAT-1", "other", "real.txt", "real")

	_, total, err := store.Search(context.Background(), SearchParams{Limit: 10})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if total != 1 {
		t.Errorf("total = %d, want exactly the seeded document", total)
	}
}
