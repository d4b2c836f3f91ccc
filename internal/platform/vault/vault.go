// Package vault stores the registry's supporting documents off-ledger:
// device specification sheets, surgical notes, maintenance reports, explant
// analyses, performance exports and prescription instructions. Registry
// records carry only the SHA-256 digest of a document; the vault holds the
// bytes and resolves digests back to content. Store is the backend contract,
// MemoryStore keeps documents in process for tests and development, DiskStore
// persists them under a directory, and Handler exposes the HTTP surface.
package vault

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrDocumentNotFound   = errors.New("document not found")
	ErrFileTooLarge       = errors.New("document exceeds the size limit")
	ErrInvalidContentType = errors.New("unsupported content type")
	ErrInvalidCategory    = errors.New("unknown document category")
	ErrMissingFileName    = errors.New("document has no file name")
)

// MaxFileSize bounds a single document at 100 MB, matching the body limit
// the server applies to vault routes.
const MaxFileSize = 100 * 1024 * 1024

// Each category maps onto the hash-bearing field of one registry record
// type, with a catch-all for everything else.
var documentCategories = []string{
	"device-specs",
	"surgical-notes",
	"maintenance-notes",
	"explant-analysis",
	"performance-data",
	"prescription-instructions",
	"other",
}

var documentContentTypes = []string{
	"application/dicom",
	"application/json",
	"application/octet-stream",
	"application/pdf",
	"image/dicom",
	"image/jpeg",
	"image/png",
	"text/csv",
	"text/plain",
}

// DocumentMetadata describes a stored document. Hash is the 64-character
// lowercase hex SHA-256 digest of the content, the value registry records
// reference.
type DocumentMetadata struct {
	ID          string            `json:"id"`
	FileName    string            `json:"file_name"`
	ContentType string            `json:"content_type"`
	Size        int64             `json:"size"`
	Hash        string            `json:"hash"`
	Category    string            `json:"category"`
	PatientID   string            `json:"patient_id,omitempty"`
	DeviceID    string            `json:"device_id,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	CreatedBy   string            `json:"created_by"`
	Tags        map[string]string `json:"tags,omitempty"`
}

// validate applies the category default, so callers see the final metadata
// on success.
func (m *DocumentMetadata) validate() error {
	if m.FileName == "" {
		return ErrMissingFileName
	}
	if m.Category == "" {
		m.Category = "other"
	}
	if !slices.Contains(documentCategories, m.Category) {
		return ErrInvalidCategory
	}
	if m.ContentType != "" && !slices.Contains(documentContentTypes, m.ContentType) {
		return ErrInvalidContentType
	}
	return nil
}

// SearchParams filters a document search; zero fields match everything.
type SearchParams struct {
	PatientID     string
	DeviceID      string
	Category      string
	ContentType   string
	FileName      string // substring, case-insensitive
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
	Tags          map[string]string
	Limit         int
	Offset        int
}

func (p SearchParams) matches(m *DocumentMetadata) bool {
	exact := [...][2]string{
		{p.PatientID, m.PatientID},
		{p.DeviceID, m.DeviceID},
		{p.Category, m.Category},
		{p.ContentType, m.ContentType},
	}
	for _, f := range exact {
		if f[0] != "" && f[0] != f[1] {
			return false
		}
	}
	if p.FileName != "" && !strings.Contains(strings.ToLower(m.FileName), strings.ToLower(p.FileName)) {
		return false
	}
	if p.CreatedAfter != nil && m.CreatedAt.Before(*p.CreatedAfter) {
		return false
	}
	if p.CreatedBefore != nil && m.CreatedAt.After(*p.CreatedBefore) {
		return false
	}
	for k, v := range p.Tags {
		if got, ok := m.Tags[k]; !ok || got != v {
			return false
		}
	}
	return true
}

// Store is the contract document backends implement.
type Store interface {
	Upload(ctx context.Context, meta DocumentMetadata, content io.Reader) (*DocumentMetadata, error)
	Download(ctx context.Context, id string) (io.ReadCloser, *DocumentMetadata, error)
	GetMetadata(ctx context.Context, id string) (*DocumentMetadata, error)
	// GetByHash resolves a digest found on a registry record to the stored
	// bytes. When several uploads share content, the earliest surviving
	// upload wins.
	GetByHash(ctx context.Context, hash string) (io.ReadCloser, *DocumentMetadata, error)
	ListByPatient(ctx context.Context, patientID, category string, limit, offset int) ([]*DocumentMetadata, int, error)
	Search(ctx context.Context, params SearchParams) ([]*DocumentMetadata, int, error)
	Delete(ctx context.Context, id string) error
}

// ingest validates the metadata, drains the content into memory and fills
// the server-assigned fields: id, size, digest and timestamp. The returned
// bytes are what the store must persist.
func ingest(meta *DocumentMetadata, content io.Reader) ([]byte, error) {
	if err := meta.validate(); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	digest := sha256.New()
	n, err := io.Copy(io.MultiWriter(&buf, digest), io.LimitReader(content, MaxFileSize+1))
	if err != nil {
		return nil, fmt.Errorf("reading content: %w", err)
	}
	if n > MaxFileSize {
		return nil, ErrFileTooLarge
	}

	meta.ID = uuid.New().String()
	meta.Size = n
	meta.Hash = hex.EncodeToString(digest.Sum(nil))
	meta.CreatedAt = time.Now().UTC()
	if meta.Tags == nil {
		meta.Tags = map[string]string{}
	}
	return buf.Bytes(), nil
}

// newestFirst orders documents by creation time descending, breaking ties
// by id so pages stay stable.
func newestFirst(docs []*DocumentMetadata) {
	sort.Slice(docs, func(i, j int) bool {
		if docs[i].CreatedAt.Equal(docs[j].CreatedAt) {
			return docs[i].ID < docs[j].ID
		}
		return docs[i].CreatedAt.After(docs[j].CreatedAt)
	})
}

// window cuts one page out of the matched set and reports the total.
func window(docs []*DocumentMetadata, limit, offset int) ([]*DocumentMetadata, int) {
	total := len(docs)
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	if offset > total {
		offset = total
	}
	if end := offset + limit; end < total {
		return docs[offset:end], total
	}
	return docs[offset:], total
}
