package webhook

import (
	"context"
	"errors"
	"slices"
	"sync"
)

// Store lookup failures.
var (
	ErrEndpointNotFound = errors.New("webhook endpoint not found")
	ErrDeliveryNotFound = errors.New("webhook delivery not found")
)

// Store persists webhook endpoints and their delivery log.
type Store interface {
	CreateEndpoint(ctx context.Context, ep *Endpoint) error
	GetEndpoint(ctx context.Context, id string) (*Endpoint, error)
	ListEndpoints(ctx context.Context, limit, offset int) ([]*Endpoint, int, error)
	UpdateEndpoint(ctx context.Context, ep *Endpoint) error
	DeleteEndpoint(ctx context.Context, id string) error
	RecordDelivery(ctx context.Context, d *Delivery) error
	GetDelivery(ctx context.Context, id string) (*Delivery, error)
	ListDeliveries(ctx context.Context, endpointID string, limit, offset int) ([]*Delivery, int, error)
}

// MemoryStore keeps endpoints and deliveries in two insertion-ordered
// slices, which makes paginated listings deterministic. Lookups scan:
// endpoint counts are small and the delivery log is append-mostly.
type MemoryStore struct {
	mu         sync.RWMutex
	endpoints  []*Endpoint
	deliveries []*Delivery
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// pageBounds clamps a limit/offset window to a half-open [lo, hi) range
// over total items.
func pageBounds(total, limit, offset int) (int, int) {
	lo := min(offset, total)
	hi := min(lo+limit, total)
	return lo, hi
}

func (s *MemoryStore) endpointIndex(id string) int {
	return slices.IndexFunc(s.endpoints, func(ep *Endpoint) bool { return ep.ID == id })
}

func (s *MemoryStore) CreateEndpoint(_ context.Context, ep *Endpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.endpoints = append(s.endpoints, ep)
	return nil
}

func (s *MemoryStore) GetEndpoint(_ context.Context, id string) (*Endpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := s.endpointIndex(id)
	if i < 0 {
		return nil, ErrEndpointNotFound
	}
	return s.endpoints[i], nil
}

func (s *MemoryStore) ListEndpoints(_ context.Context, limit, offset int) ([]*Endpoint, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	lo, hi := pageBounds(len(s.endpoints), limit, offset)
	return slices.Clone(s.endpoints[lo:hi]), len(s.endpoints), nil
}

func (s *MemoryStore) UpdateEndpoint(_ context.Context, ep *Endpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.endpointIndex(ep.ID)
	if i < 0 {
		return ErrEndpointNotFound
	}
	s.endpoints[i] = ep
	return nil
}

func (s *MemoryStore) DeleteEndpoint(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.endpointIndex(id)
	if i < 0 {
		return ErrEndpointNotFound
	}
	s.endpoints = slices.Delete(s.endpoints, i, i+1)
	return nil
}

func (s *MemoryStore) RecordDelivery(_ context.Context, d *Delivery) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	// A repeated ID overwrites its slot instead of growing the log.
	if i := slices.IndexFunc(s.deliveries, func(x *Delivery) bool { return x.ID == d.ID }); i >= 0 {
		s.deliveries[i] = d
		return nil
	}
	s.deliveries = append(s.deliveries, d)
	return nil
}

func (s *MemoryStore) GetDelivery(_ context.Context, id string) (*Delivery, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := slices.IndexFunc(s.deliveries, func(d *Delivery) bool { return d.ID == id })
	if i < 0 {
		return nil, ErrDeliveryNotFound
	}
	return s.deliveries[i], nil
}

func (s *MemoryStore) ListDeliveries(_ context.Context, endpointID string, limit, offset int) ([]*Delivery, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var matched []*Delivery
	for _, d := range s.deliveries {
		if d.EndpointID == endpointID {
			matched = append(matched, d)
		}
	}
	lo, hi := pageBounds(len(matched), limit, offset)
	return matched[lo:hi], len(matched), nil
}
