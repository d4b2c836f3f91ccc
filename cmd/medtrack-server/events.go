package main

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/medtrack/medtrack/internal/domain/recall"
	"github.com/medtrack/medtrack/internal/platform/notification"
	"github.com/medtrack/medtrack/internal/platform/telemetry"
	"github.com/medtrack/medtrack/internal/platform/webhook"
	"github.com/medtrack/medtrack/internal/platform/websocket"
)

// eventTopics maps an event's resource prefix to the websocket topic the
// event is broadcast on. Maintenance and performance activity rides the
// implants topic.
var eventTopics = map[string]string{
	"device":       "devices",
	"implant":      "implants",
	"maintenance":  "implants",
	"performance":  "implants",
	"prescription": "prescriptions",
	"recall":       "recalls",
}

// eventPublisher fans committed registry events out to webhook endpoints,
// websocket subscribers, and the operation counters. Domain services call
// Publish after their transaction commits, so delivery must never fail the
// completed operation.
type eventPublisher struct {
	webhooks *webhook.Manager
	hub      *websocket.Hub
	tp       *telemetry.Provider
	logger   zerolog.Logger
}

func (p *eventPublisher) Publish(_ context.Context, event, resourceID string, payload interface{}) {
	resourceType, operation, _ := strings.Cut(event, ".")
	p.tp.RegistryOperationCounter(resourceType, operation)

	raw, err := json.Marshal(payload)
	if err != nil {
		p.logger.Error().Err(err).Str("event", event).Msg("event payload marshal failed")
		return
	}

	now := time.Now().UTC()
	if topic, ok := eventTopics[resourceType]; ok {
		wsEvent := websocket.Event{
			Type:         event,
			Topic:        topic,
			ResourceType: resourceType,
			ResourceID:   resourceID,
			Timestamp:    now,
			Data:         raw,
		}
		p.hub.Broadcast(topic, wsEvent)
		for _, patientTopic := range patientTopics(raw) {
			wsEvent.Topic = patientTopic
			p.hub.Broadcast(patientTopic, wsEvent)
		}
	}

	whEvent := webhook.Event{
		ID:         uuid.New().String(),
		Type:       event,
		Resource:   resourceType,
		ResourceID: resourceID,
		Body:       raw,
		OccurredAt: now,
	}
	go func() {
		// The request context ends when the response is written; webhook
		// delivery runs against its own deadline.
		dctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		p.webhooks.Deliver(dctx, whEvent)
	}()

	p.logger.Debug().Str("event", event).Str("resource_id", resourceID).Msg("event published")
}

// patientTopics extracts the per-patient topics an event payload addresses:
// a single patient_id field, or the patients roster of a notification run.
func patientTopics(payload []byte) []string {
	var probe struct {
		PatientID string   `json:"patient_id"`
		Patients  []string `json:"patients"`
	}
	if err := json.Unmarshal(payload, &probe); err != nil {
		return nil
	}
	var topics []string
	if probe.PatientID != "" {
		topics = append(topics, "patients/"+probe.PatientID)
	}
	for _, id := range probe.Patients {
		topics = append(topics, "patients/"+id)
	}
	return topics
}

// recallNotifier delivers recall notices through the notification manager,
// one notice per entry on the roster. Delivery failures are logged and never
// reach the recall operation.
type recallNotifier struct {
	manager *notification.Manager
	logger  zerolog.Logger
}

func (n *recallNotifier) NotifyRecall(ctx context.Context, rec *recall.Recall, patients []string, notificationDate int64) {
	data := map[string]string{
		"recall_date":     time.Unix(rec.RecallDate, 0).UTC().Format("2006-01-02"),
		"reason":          rec.Reason,
		"action_required": rec.ActionRequired,
	}
	for _, patientID := range patients {
		if _, err := n.manager.SendFromTemplate(ctx, "recall-roster-notice", data, patientID); err != nil {
			n.logger.Error().Err(err).Uint64("recall_id", rec.ID).Str("patient_id", patientID).Msg("recall notice delivery failed")
		}
	}
	n.logger.Info().Uint64("recall_id", rec.ID).Int("notices", len(patients)).Int64("notification_date", notificationDate).Msg("recall notices dispatched")
}

// logGateway writes outbound notices to the server log. It stands in for
// real Email/SMS gateways in deployments that have none configured.
type logGateway struct {
	logger zerolog.Logger
}

func (g *logGateway) Deliver(_ context.Context, n *notification.Notice) error {
	g.logger.Info().
		Str("channel", string(n.Channel)).
		Str("to", n.To).
		Str("subject", n.Subject).
		Msg("notice dispatched")
	return nil
}
