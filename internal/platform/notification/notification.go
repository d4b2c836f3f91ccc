// Package notification delivers patient-facing notices for the registry:
// recall notices, removal confirmations, maintenance reminders. Notices
// are rendered from templates and handed to per-channel gateways; every
// outcome is recorded for retry and audit.
package notification

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound marks lookups of unknown notice IDs.
var ErrNotFound = errors.New("notice not found")

// ErrNotRetryable marks retry attempts on notices that have not failed.
var ErrNotRetryable = errors.New("notice is not in failed status")

// Channel is the delivery route of a notice.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
	ChannelPush  Channel = "push"
)

// Notice statuses.
const (
	statusSent   = "sent"
	statusFailed = "failed"
)

// Notice is one outbound patient notice and its delivery outcome.
type Notice struct {
	ID        string            `json:"id"`
	Channel   Channel           `json:"channel"`
	To        string            `json:"to"`
	Subject   string            `json:"subject,omitempty"`
	Body      string            `json:"body"`
	Template  string            `json:"template,omitempty"`
	Fields    map[string]string `json:"fields,omitempty"`
	Priority  string            `json:"priority"`
	Status    string            `json:"status"`
	Failure   string            `json:"failure,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	SentAt    *time.Time        `json:"sent_at,omitempty"`
}

// Gateway delivers a rendered notice over a single channel. Subject is
// empty on channels that have none.
type Gateway interface {
	Deliver(ctx context.Context, n *Notice) error
}
