package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

// maxResponseBody caps how much of a subscriber's response is kept in the
// delivery log.
const maxResponseBody = 1024

// fanoutPageSize bounds how many endpoints one Deliver call considers.
const fanoutPageSize = 1000

// Option configures a Manager.
type Option func(*Manager)

// WithHTTPClient overrides the HTTP client used for deliveries.
func WithHTTPClient(c *http.Client) Option {
	return func(m *Manager) { m.client = c }
}

// WithMaxAttempts sets how many times an event may be sent to one endpoint,
// the initial delivery included.
func WithMaxAttempts(n int) Option {
	return func(m *Manager) { m.maxAttempts = n }
}

// WithRetrySchedule sets the suggested waits between attempts. Attempts
// past the schedule reuse its last entry.
func WithRetrySchedule(delays ...time.Duration) Option {
	return func(m *Manager) { m.retrySchedule = delays }
}

// Manager registers endpoints and fans registry events out to them.
type Manager struct {
	store         Store
	client        *http.Client
	maxAttempts   int
	retrySchedule []time.Duration
}

// NewManager creates a Manager over the given store. By default deliveries
// time out after 10 seconds and an event is attempted at most 3 times per
// endpoint.
func NewManager(store Store, opts ...Option) *Manager {
	m := &Manager{
		store:         store,
		client:        &http.Client{Timeout: 10 * time.Second},
		maxAttempts:   3,
		retrySchedule: []time.Duration{time.Second, 30 * time.Second, 5 * time.Minute},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// validateURL accepts absolute http and https URLs only.
func validateURL(raw string) error {
	if raw == "" {
		return errors.New("endpoint url is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("endpoint url: %w", err)
	}
	if s := strings.ToLower(u.Scheme); s != "http" && s != "https" {
		return fmt.Errorf("endpoint url must be http or https, got %q", u.Scheme)
	}
	return nil
}

// Register validates and stores a new endpoint. An empty secret is replaced
// with a generated one, returned on the endpoint exactly once.
func (m *Manager) Register(ctx context.Context, rawURL, secret, description string, events []string) (*Endpoint, error) {
	if err := validateURL(rawURL); err != nil {
		return nil, err
	}
	if secret == "" {
		s, err := newSecret()
		if err != nil {
			return nil, fmt.Errorf("generate secret: %w", err)
		}
		secret = s
	}

	ep := &Endpoint{
		ID:          uuid.New().String(),
		URL:         rawURL,
		Secret:      secret,
		Events:      events,
		Description: description,
		Status:      endpointActive,
		CreatedAt:   time.Now(),
		Metadata:    map[string]string{},
	}
	if err := m.store.CreateEndpoint(ctx, ep); err != nil {
		return nil, err
	}
	return ep, nil
}

// Pause stops deliveries to the endpoint without unregistering it.
func (m *Manager) Pause(ctx context.Context, id string) error {
	return m.setStatus(ctx, id, endpointPaused)
}

// Resume reactivates a paused endpoint.
func (m *Manager) Resume(ctx context.Context, id string) error {
	return m.setStatus(ctx, id, endpointActive)
}

func (m *Manager) setStatus(ctx context.Context, id, status string) error {
	ep, err := m.store.GetEndpoint(ctx, id)
	if err != nil {
		return err
	}
	ep.Status = status
	return m.store.UpdateEndpoint(ctx, ep)
}

// Deliver sends the event to every active endpoint subscribed to its type
// and reports the per-endpoint outcomes. Deliveries run sequentially; the
// caller decides whether to run the whole fanout in the background.
func (m *Manager) Deliver(ctx context.Context, event Event) []Outcome {
	endpoints, _, err := m.store.ListEndpoints(ctx, fanoutPageSize, 0)
	if err != nil {
		return nil
	}

	var results []Outcome
	for _, ep := range endpoints {
		if ep.Status != endpointActive || !ep.subscribed(event.Type) {
			continue
		}
		d := m.send(ctx, ep, event, 1)
		results = append(results, Outcome{
			EndpointID: ep.ID,
			Delivered:  d.Status == deliverySuccess,
			HTTPStatus: d.HTTPStatus,
			Error:      d.Error,
		})
	}
	return results
}

// Retry re-sends a failed delivery, numbering it as the next attempt.
// Exhausted deliveries are refused.
func (m *Manager) Retry(ctx context.Context, deliveryID string) (*Delivery, error) {
	prev, err := m.store.GetDelivery(ctx, deliveryID)
	if err != nil {
		return nil, err
	}
	if prev.Attempt >= m.maxAttempts {
		return nil, fmt.Errorf("delivery %s exhausted its %d attempts", deliveryID, m.maxAttempts)
	}
	ep, err := m.store.GetEndpoint(ctx, prev.EndpointID)
	if err != nil {
		return nil, err
	}

	var event Event
	if err := json.Unmarshal(prev.Body, &event); err != nil {
		return nil, fmt.Errorf("unmarshal original payload: %w", err)
	}
	return m.send(ctx, ep, event, prev.Attempt+1), nil
}

// Ping sends a synthetic webhook.ping event to verify connectivity.
func (m *Manager) Ping(ctx context.Context, endpointID string) (*Delivery, error) {
	ep, err := m.store.GetEndpoint(ctx, endpointID)
	if err != nil {
		return nil, err
	}
	return m.send(ctx, ep, Event{
		ID:         uuid.New().String(),
		Type:       "webhook.ping",
		Resource:   "webhook",
		ResourceID: ep.ID,
		Body:       json.RawMessage(`{"ping":true}`),
		OccurredAt: time.Now(),
	}, 1), nil
}

// DeliveryLog returns the paginated delivery history of one endpoint.
func (m *Manager) DeliveryLog(ctx context.Context, endpointID string, limit, offset int) ([]*Delivery, int, error) {
	return m.store.ListDeliveries(ctx, endpointID, limit, offset)
}

// nextRetryAfter returns the scheduled wait following the given attempt.
func (m *Manager) nextRetryAfter(attempt int) time.Duration {
	idx := attempt - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(m.retrySchedule) {
		idx = len(m.retrySchedule) - 1
	}
	return m.retrySchedule[idx]
}

// fail marks the delivery failed and, when attempts remain, stamps the
// suggested retry time.
func (m *Manager) fail(d *Delivery, msg string) {
	d.Status = deliveryFailed
	d.Error = msg
	if d.Attempt < m.maxAttempts {
		next := d.CreatedAt.Add(m.nextRetryAfter(d.Attempt))
		d.NextRetryAt = &next
	}
}

// send signs the event, POSTs it to the endpoint, and records the outcome
// as attempt number attemptNo.
func (m *Manager) send(ctx context.Context, ep *Endpoint, event Event, attemptNo int) *Delivery {
	payload, _ := json.Marshal(event)

	d := &Delivery{
		ID:         uuid.New().String(),
		EndpointID: ep.ID,
		EventID:    event.ID,
		EventType:  event.Type,
		Body:       payload,
		Signature:  Sign(ep.Secret, payload),
		Attempt:    attemptNo,
		CreatedAt:  time.Now(),
	}
	defer func() { m.store.RecordDelivery(ctx, d) }()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ep.URL, bytes.NewReader(payload))
	if err != nil {
		m.fail(d, err.Error())
		return d
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Medtrack-Delivery", d.ID)
	req.Header.Set("X-Medtrack-Event", event.Type)
	req.Header.Set("X-Medtrack-Signature", "sha256="+d.Signature)

	start := time.Now()
	resp, err := m.client.Do(req)
	d.Elapsed = time.Since(start)
	if err != nil {
		m.fail(d, err.Error())
		return d
	}
	defer resp.Body.Close()

	d.HTTPStatus = resp.StatusCode
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	d.Response = string(body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		m.fail(d, fmt.Sprintf("non-2xx response: %d", resp.StatusCode))
		return d
	}
	d.Status = deliverySuccess
	return d
}
