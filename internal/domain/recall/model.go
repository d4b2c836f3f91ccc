// Package recall is the recall engine: immutable manufacturer-issued recall
// records spanning one or more devices, a per-device recall index, and the
// affected-patient computation that walks device, implant index, and implant
// records to find everyone still carrying a recalled device.
package recall

import "time"

// Recall maps to the recalls table. The affected device ids are embedded in
// the record in issuance order; they are not validated against the registry,
// so a recall may name a device that was never registered here.
type Recall struct {
	ID                 uint64    `db:"id" json:"id"`
	DeviceIDs          []uint64  `db:"device_ids" json:"device_ids"`
	Reason             string    `db:"reason" json:"reason"`
	Severity           string    `db:"severity" json:"severity"`
	RecallDate         int64     `db:"recall_date" json:"recall_date"`
	ActionRequired     string    `db:"action_required" json:"action_required"`
	ResolutionDeadline *int64    `db:"resolution_deadline" json:"resolution_deadline,omitempty"`
	CreatedAt          time.Time `db:"created_at" json:"created_at"`
}
