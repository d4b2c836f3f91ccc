package vault

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

const metaSuffix = ".json"

// DiskStore persists documents under a directory. Content is written to
// <dir>/<id> and metadata to <dir>/<id>.json, so a vault survives process
// restarts without a database.
type DiskStore struct {
	dir string
	mu  sync.RWMutex
}

// NewDiskStore creates the vault directory if needed and returns a store
// rooted at it.
func NewDiskStore(dir string) (*DiskStore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("creating vault directory: %w", err)
	}
	return &DiskStore{dir: dir}, nil
}

// validID rejects ids that could escape the vault directory. Stored ids are
// always uuids.
func validID(id string) bool {
	return id != "" && id == filepath.Base(id) && !strings.HasPrefix(id, ".")
}

func (s *DiskStore) contentPath(id string) string {
	return filepath.Join(s.dir, id)
}

func (s *DiskStore) metaPath(id string) string {
	return filepath.Join(s.dir, id+metaSuffix)
}

func (s *DiskStore) readMeta(id string) (*DocumentMetadata, error) {
	if !validID(id) {
		return nil, ErrDocumentNotFound
	}
	data, err := os.ReadFile(s.metaPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrDocumentNotFound
		}
		return nil, fmt.Errorf("reading document metadata: %w", err)
	}
	var m DocumentMetadata
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decoding document metadata: %w", err)
	}
	return &m, nil
}

// loadAll reads every metadata sidecar in the vault directory. Files that
// are not sidecars, or that fail to parse, are skipped.
func (s *DiskStore) loadAll() ([]*DocumentMetadata, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("reading vault directory: %w", err)
	}

	var out []*DocumentMetadata
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), metaSuffix) {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.dir, e.Name()))
		if err != nil {
			continue
		}
		var m DocumentMetadata
		if err := json.Unmarshal(data, &m); err != nil {
			continue
		}
		out = append(out, &m)
	}
	return out, nil
}

// Upload writes the content file first and the metadata sidecar second. A
// failed sidecar write removes the content file so the pair stays
// consistent.
func (s *DiskStore) Upload(_ context.Context, meta DocumentMetadata, content io.Reader) (*DocumentMetadata, error) {
	body, err := ingest(&meta, content)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.WriteFile(s.contentPath(meta.ID), body, 0o600); err != nil {
		return nil, fmt.Errorf("writing document content: %w", err)
	}
	encoded, err := json.Marshal(meta)
	if err != nil {
		os.Remove(s.contentPath(meta.ID))
		return nil, fmt.Errorf("encoding document metadata: %w", err)
	}
	if err := os.WriteFile(s.metaPath(meta.ID), encoded, 0o600); err != nil {
		os.Remove(s.contentPath(meta.ID))
		return nil, fmt.Errorf("writing document metadata: %w", err)
	}

	return &meta, nil
}

// Download returns the document content as an open file plus its metadata.
func (s *DiskStore) Download(_ context.Context, id string) (io.ReadCloser, *DocumentMetadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	meta, err := s.readMeta(id)
	if err != nil {
		return nil, nil, err
	}
	f, err := os.Open(s.contentPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, ErrDocumentNotFound
		}
		return nil, nil, fmt.Errorf("opening document content: %w", err)
	}
	return f, meta, nil
}

func (s *DiskStore) GetMetadata(_ context.Context, id string) (*DocumentMetadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.readMeta(id)
}

// GetByHash scans the vault for the earliest upload whose content matches
// the given digest.
func (s *DiskStore) GetByHash(_ context.Context, hash string) (io.ReadCloser, *DocumentMetadata, error) {
	hash = strings.ToLower(hash)

	s.mu.RLock()
	defer s.mu.RUnlock()

	all, err := s.loadAll()
	if err != nil {
		return nil, nil, err
	}

	var match *DocumentMetadata
	for _, m := range all {
		if m.Hash != hash {
			continue
		}
		if match == nil || m.CreatedAt.Before(match.CreatedAt) {
			match = m
		}
	}
	if match == nil {
		return nil, nil, ErrDocumentNotFound
	}

	f, err := os.Open(s.contentPath(match.ID))
	if err != nil {
		return nil, nil, fmt.Errorf("opening document content: %w", err)
	}
	return f, match, nil
}

func (s *DiskStore) ListByPatient(_ context.Context, patientID, category string, limit, offset int) ([]*DocumentMetadata, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all, err := s.loadAll()
	if err != nil {
		return nil, 0, err
	}

	var matched []*DocumentMetadata
	for _, m := range all {
		if m.PatientID != patientID {
			continue
		}
		if category != "" && m.Category != category {
			continue
		}
		matched = append(matched, m)
	}

	newestFirst(matched)
	page, total := window(matched, limit, offset)
	return page, total, nil
}

func (s *DiskStore) Search(_ context.Context, params SearchParams) ([]*DocumentMetadata, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all, err := s.loadAll()
	if err != nil {
		return nil, 0, err
	}

	var matched []*DocumentMetadata
	for _, m := range all {
		if params.matches(m) {
			matched = append(matched, m)
		}
	}

	newestFirst(matched)
	page, total := window(matched, params.Limit, params.Offset)
	return page, total, nil
}

// Delete removes both the content and the metadata file.
func (s *DiskStore) Delete(_ context.Context, id string) error {
	if !validID(id) {
		return ErrDocumentNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := os.Stat(s.metaPath(id)); err != nil {
		if os.IsNotExist(err) {
			return ErrDocumentNotFound
		}
		return fmt.Errorf("checking document metadata: %w", err)
	}
	if err := os.Remove(s.metaPath(id)); err != nil {
		return fmt.Errorf("removing document metadata: %w", err)
	}
	if err := os.Remove(s.contentPath(id)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing document content: %w", err)
	}
	return nil
}
