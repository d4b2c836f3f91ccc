// Package webhook delivers registry events to subscriber endpoints over
// HTTP. Endpoints register a URL and a set of event patterns; committed
// registry operations are POSTed to every matching endpoint with an
// HMAC-SHA256 signature, and failed deliveries can be retried. Event types
// follow the resource.action convention (device.registered,
// implant.removed, recall.issued, ...).
package webhook

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"
)

// Endpoint is a registered webhook destination.
type Endpoint struct {
	ID          string            `json:"id"`
	URL         string            `json:"url"`
	Secret      string            `json:"secret,omitempty"`
	Events      []string          `json:"events"`
	Description string            `json:"description,omitempty"`
	Status      string            `json:"status"`
	CreatedAt   time.Time         `json:"created_at"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// Endpoint statuses. Paused endpoints stay registered but receive nothing.
const (
	endpointActive = "active"
	endpointPaused = "paused"
)

// Event is a registry change bound for subscriber delivery.
type Event struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	Resource   string          `json:"resource"`
	ResourceID string          `json:"resource_id"`
	Body       json.RawMessage `json:"body"`
	OccurredAt time.Time       `json:"occurred_at"`
}

// Delivery is one attempt at sending an event to one endpoint.
type Delivery struct {
	ID          string        `json:"id"`
	EndpointID  string        `json:"endpoint_id"`
	EventID     string        `json:"event_id"`
	EventType   string        `json:"event_type"`
	Body        []byte        `json:"body"`
	Signature   string        `json:"signature"`
	Attempt     int           `json:"attempt"`
	Status      string        `json:"status"`
	HTTPStatus  int           `json:"http_status,omitempty"`
	Response    string        `json:"response,omitempty"`
	Elapsed     time.Duration `json:"elapsed_ns"`
	Error       string        `json:"error,omitempty"`
	NextRetryAt *time.Time    `json:"next_retry_at,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
}

// Delivery statuses.
const (
	deliverySuccess = "success"
	deliveryFailed  = "failed"
)

// Outcome summarises one endpoint's result for a fanned-out event.
type Outcome struct {
	EndpointID string `json:"endpoint_id"`
	Delivered  bool   `json:"delivered"`
	HTTPStatus int    `json:"http_status,omitempty"`
	Error      string `json:"error,omitempty"`
}

// Sign computes the hex-encoded HMAC-SHA256 of body under secret.
func Sign(secret string, body []byte) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

// Verify reports whether sig matches body's signature under secret. The
// comparison is constant time, and a "sha256=" prefix on sig is accepted
// so subscribers can echo the delivery header back unchanged.
func Verify(secret string, body []byte, sig string) bool {
	sig = strings.TrimPrefix(sig, "sha256=")
	want := Sign(secret, body)
	return hmac.Equal([]byte(want), []byte(sig))
}

// newSecret produces a 64-char hex string from 32 random bytes.
func newSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// matchesEvent reports whether an event type matches a subscription
// pattern. A pattern is resource.action with either part replaceable by
// "*", or the full wildcard "*".
func matchesEvent(pattern, eventType string) bool {
	if pattern == "*" || pattern == eventType {
		return true
	}
	pRes, pAct, ok := strings.Cut(pattern, ".")
	if !ok {
		return false
	}
	eRes, eAct, ok := strings.Cut(eventType, ".")
	if !ok {
		return false
	}
	return (pRes == "*" || pRes == eRes) && (pAct == "*" || pAct == eAct)
}

// subscribed reports whether the endpoint wants this event type.
func (e *Endpoint) subscribed(eventType string) bool {
	for _, pat := range e.Events {
		if matchesEvent(pat, eventType) {
			return true
		}
	}
	return false
}
