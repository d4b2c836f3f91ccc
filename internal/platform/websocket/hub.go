// Package websocket pushes registry events to connected clients in real
// time. Clients subscribe to topics named after the registry resources
// (devices, implants, recalls, ...) or to per-patient topics of the form
// patients/<patient_id>, and receive every event broadcast to those topics.
package websocket

import (
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Event is one real-time notification pushed to subscribers.
type Event struct {
	Type         string          `json:"type"`
	Topic        string          `json:"topic"`
	ResourceType string          `json:"resource_type"`
	ResourceID   string          `json:"resource_id,omitempty"`
	Timestamp    time.Time       `json:"timestamp"`
	Data         json.RawMessage `json:"data,omitempty"`
}

// ClientMessage is an inbound subscription change from a connected client.
type ClientMessage struct {
	Action string   `json:"action"` // "subscribe" or "unsubscribe"
	Topics []string `json:"topics"`
}

// sendBuffer is the per-client outbound queue depth. A client that falls
// this far behind starts losing events rather than stalling the hub.
const sendBuffer = 256

// Client is one connected subscriber. Topic membership is owned by the
// hub and only changed under its lock.
type Client struct {
	id     string
	send   chan []byte
	topics map[string]struct{}
}

func newClient(id string, topics []string) *Client {
	c := &Client{
		id:     id,
		send:   make(chan []byte, sendBuffer),
		topics: make(map[string]struct{}, len(topics)),
	}
	for _, t := range topics {
		c.topics[t] = struct{}{}
	}
	return c
}

// ID returns the client's connection id.
func (c *Client) ID() string { return c.id }

// Hub tracks connected clients and their topic subscriptions and fans
// events out to them. All methods are safe for concurrent use.
type Hub struct {
	logger zerolog.Logger

	mu     sync.RWMutex
	topics map[string]map[*Client]struct{}
	all    map[*Client]struct{}
}

// NewHub returns an empty hub.
func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		logger: logger.With().Str("component", "websocket").Logger(),
		topics: make(map[string]map[*Client]struct{}),
		all:    make(map[*Client]struct{}),
	}
}

// Register adds the client and its initial subscriptions.
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	h.all[client] = struct{}{}
	for topic := range client.topics {
		h.join(topic, client)
	}
	n := len(h.all)
	h.mu.Unlock()

	h.logger.Debug().Str("client_id", client.id).Int("clients", n).Msg("client connected")
}

// Unregister drops the client from every topic and closes its send
// channel. Unregistering twice is a no-op.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	if _, ok := h.all[client]; !ok {
		h.mu.Unlock()
		return
	}
	for topic := range client.topics {
		h.leave(topic, client)
	}
	delete(h.all, client)
	close(client.send)
	n := len(h.all)
	h.mu.Unlock()

	h.logger.Debug().Str("client_id", client.id).Int("clients", n).Msg("client disconnected")
}

// Subscribe adds topics to a registered client.
func (h *Hub) Subscribe(client *Client, topics []string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, topic := range topics {
		client.topics[topic] = struct{}{}
		h.join(topic, client)
	}
}

// Unsubscribe removes topics from a registered client.
func (h *Hub) Unsubscribe(client *Client, topics []string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, topic := range topics {
		delete(client.topics, topic)
		h.leave(topic, client)
	}
}

// join and leave maintain the topic index. Callers hold h.mu.
func (h *Hub) join(topic string, client *Client) {
	set, ok := h.topics[topic]
	if !ok {
		set = make(map[*Client]struct{})
		h.topics[topic] = set
	}
	set[client] = struct{}{}
}

func (h *Hub) leave(topic string, client *Client) {
	if set, ok := h.topics[topic]; ok {
		delete(set, client)
		if len(set) == 0 {
			delete(h.topics, topic)
		}
	}
}

// ProcessMessage applies an inbound subscription change. Unknown actions
// are ignored.
func (h *Hub) ProcessMessage(client *Client, msg ClientMessage) {
	switch msg.Action {
	case "subscribe":
		h.Subscribe(client, msg.Topics)
	case "unsubscribe":
		h.Unsubscribe(client, msg.Topics)
	}
}

// Broadcast sends the event to every subscriber of topic. Clients with a
// full send buffer miss the event; delivery never blocks the caller.
func (h *Hub) Broadcast(topic string, event Event) {
	data, err := json.Marshal(event)
	if err != nil {
		h.logger.Error().Err(err).Str("topic", topic).Msg("event marshal failed")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.topics[topic] {
		select {
		case client.send <- data:
		default:
		}
	}
}

// BroadcastAll sends the event to every connected client regardless of
// subscriptions.
func (h *Hub) BroadcastAll(event Event) {
	data, err := json.Marshal(event)
	if err != nil {
		h.logger.Error().Err(err).Msg("event marshal failed")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.all {
		select {
		case client.send <- data:
		default:
		}
	}
}

// ClientCount returns how many clients are connected.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.all)
}

// TopicCount returns how many clients subscribe to topic.
func (h *Hub) TopicCount(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[topic])
}

// Topics returns the client's current subscriptions, sorted.
func (h *Hub) Topics(client *Client) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]string, 0, len(client.topics))
	for t := range client.topics {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
