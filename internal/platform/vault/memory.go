package vault

import (
	"bytes"
	"context"
	"io"
	"strings"
	"sync"
)

type memoryDoc struct {
	meta DocumentMetadata
	body []byte
}

// open hands out a copy of the metadata alongside a reader, so callers can
// not mutate the stored record.
func (d *memoryDoc) open() (io.ReadCloser, *DocumentMetadata) {
	meta := d.meta
	return io.NopCloser(bytes.NewReader(d.body)), &meta
}

// MemoryStore keeps documents in process. The uploads slice preserves
// arrival order, which is what gives GetByHash its earliest-upload-wins
// behavior without a separate index.
type MemoryStore struct {
	mu      sync.RWMutex
	docs    map[string]*memoryDoc
	uploads []string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: make(map[string]*memoryDoc)}
}

func (s *MemoryStore) Upload(_ context.Context, meta DocumentMetadata, content io.Reader) (*DocumentMetadata, error) {
	body, err := ingest(&meta, content)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.docs[meta.ID] = &memoryDoc{meta: meta, body: body}
	s.uploads = append(s.uploads, meta.ID)
	s.mu.Unlock()

	return &meta, nil
}

func (s *MemoryStore) Download(_ context.Context, id string) (io.ReadCloser, *DocumentMetadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.docs[id]
	if !ok {
		return nil, nil, ErrDocumentNotFound
	}
	rc, meta := doc.open()
	return rc, meta, nil
}

func (s *MemoryStore) GetMetadata(_ context.Context, id string) (*DocumentMetadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.docs[id]
	if !ok {
		return nil, ErrDocumentNotFound
	}
	meta := doc.meta
	return &meta, nil
}

func (s *MemoryStore) GetByHash(_ context.Context, hash string) (io.ReadCloser, *DocumentMetadata, error) {
	hash = strings.ToLower(hash)

	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, id := range s.uploads {
		if doc := s.docs[id]; doc != nil && doc.meta.Hash == hash {
			rc, meta := doc.open()
			return rc, meta, nil
		}
	}
	return nil, nil, ErrDocumentNotFound
}

func (s *MemoryStore) ListByPatient(_ context.Context, patientID, category string, limit, offset int) ([]*DocumentMetadata, int, error) {
	matched := s.snapshot(func(m *DocumentMetadata) bool {
		return m.PatientID == patientID && (category == "" || m.Category == category)
	})
	newestFirst(matched)
	page, total := window(matched, limit, offset)
	return page, total, nil
}

func (s *MemoryStore) Search(_ context.Context, params SearchParams) ([]*DocumentMetadata, int, error) {
	matched := s.snapshot(params.matches)
	newestFirst(matched)
	page, total := window(matched, params.Limit, params.Offset)
	return page, total, nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.docs[id]; !ok {
		return ErrDocumentNotFound
	}
	delete(s.docs, id)

	for i, uploaded := range s.uploads {
		if uploaded == id {
			s.uploads = append(s.uploads[:i], s.uploads[i+1:]...)
			break
		}
	}
	return nil
}

// snapshot copies the metadata of every document the keep func accepts,
// releasing the lock before the caller sorts and pages.
func (s *MemoryStore) snapshot(keep func(*DocumentMetadata) bool) []*DocumentMetadata {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*DocumentMetadata
	for _, doc := range s.docs {
		m := doc.meta
		if keep(&m) {
			out = append(out, &m)
		}
	}
	return out
}
