package notification

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Manager renders, dispatches, and records notices. Records live in
// memory; a lost history costs only the ability to retry old failures.
type Manager struct {
	gateways map[Channel]Gateway
	catalog  *Catalog

	mu    sync.RWMutex
	byID  map[string]*Notice
	order []string
}

// NewManager wires a Manager to its template catalog and per-channel
// delivery gateways.
func NewManager(catalog *Catalog, gateways map[Channel]Gateway) *Manager {
	m := &Manager{
		gateways: make(map[Channel]Gateway, len(gateways)),
		catalog:  catalog,
		byID:     make(map[string]*Notice),
	}
	for ch, gw := range gateways {
		m.gateways[ch] = gw
	}
	return m
}

// Templates returns the registered templates.
func (m *Manager) Templates() []Template {
	return m.catalog.List()
}

// dispatch hands the notice to its channel's gateway.
func (m *Manager) dispatch(ctx context.Context, n *Notice) error {
	gw, ok := m.gateways[n.Channel]
	if !ok {
		return fmt.Errorf("no gateway registered for channel %q", n.Channel)
	}
	return gw.Deliver(ctx, n)
}

// Send dispatches the notice and records the outcome. The notice is
// recorded even when delivery fails, so it can be inspected and retried.
func (m *Manager) Send(ctx context.Context, n *Notice) error {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	if n.Priority == "" {
		n.Priority = "normal"
	}
	n.CreatedAt = time.Now().UTC()

	err := m.dispatch(ctx, n)
	if err != nil {
		n.Status = statusFailed
		n.Failure = err.Error()
	} else {
		n.Status = statusSent
		at := time.Now().UTC()
		n.SentAt = &at
	}

	m.mu.Lock()
	if _, ok := m.byID[n.ID]; !ok {
		m.order = append(m.order, n.ID)
	}
	m.byID[n.ID] = n
	m.mu.Unlock()

	return err
}

// SendFromTemplate renders the named template with fields and sends the
// result to the given recipient. On delivery failure the recorded notice
// comes back alongside the error so the caller can retry it.
func (m *Manager) SendFromTemplate(ctx context.Context, template string, fields map[string]string, to string) (*Notice, error) {
	n, err := m.catalog.Render(template, fields)
	if err != nil {
		return nil, err
	}
	n.To = to
	if err := m.Send(ctx, n); err != nil {
		return n, err
	}
	return n, nil
}

// Get returns a recorded notice by ID.
func (m *Manager) Get(_ context.Context, id string) (*Notice, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n, ok := m.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	return n, nil
}

// History returns up to limit notices addressed to the given recipient,
// oldest first.
func (m *Manager) History(_ context.Context, to string, limit int) ([]*Notice, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*Notice
	for _, id := range m.order {
		n := m.byID[id]
		if n.To != to {
			continue
		}
		out = append(out, n)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

// Retry re-dispatches a failed notice in place. Only failed notices can
// be retried.
func (m *Manager) Retry(ctx context.Context, id string) error {
	m.mu.RLock()
	n, ok := m.byID[id]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	if n.Status != statusFailed {
		return fmt.Errorf("%w (current: %s)", ErrNotRetryable, n.Status)
	}

	err := m.dispatch(ctx, n)

	m.mu.Lock()
	if err != nil {
		n.Failure = err.Error()
	} else {
		n.Status = statusSent
		at := time.Now().UTC()
		n.SentAt = &at
		n.Failure = ""
	}
	m.mu.Unlock()

	return err
}

// Stats counts recorded notices by status.
func (m *Manager) Stats(_ context.Context) map[string]int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	counts := make(map[string]int, 2)
	for _, n := range m.byID {
		counts[n.Status]++
	}
	return counts
}
