// Package implant manages the implant lifecycle: creation against a
// registered device, the active/removed state machine, and the per-patient
// and per-device implant indices. An implant's maintenance history is an
// ordered, append-only list of maintenance-event identifiers carried on the
// record itself.
package implant

import "time"

// Implant maps to the implants table. Active starts true and flips to false
// exactly once; the removal fields are set atomically with the flip and the
// record is never touched again except for history appends.
type Implant struct {
	ID                 uint64    `db:"id" json:"id"`
	PatientID          string    `db:"patient_id" json:"patient_id"`
	DeviceID           uint64    `db:"device_id" json:"device_id"`
	ImplantDate        int64     `db:"implant_date" json:"implant_date"`
	Location           string    `db:"location" json:"location"`
	ProviderID         string    `db:"provider_id" json:"provider_id"`
	NotesHash          string    `db:"notes_hash" json:"notes_hash"`
	Active             bool      `db:"active" json:"active"`
	RemovalDate        *int64    `db:"removal_date" json:"removal_date,omitempty"`
	RemovalReason      *string   `db:"removal_reason" json:"removal_reason,omitempty"`
	ExplantHash        *string   `db:"explant_hash" json:"explant_hash,omitempty"`
	MaintenanceHistory []uint64  `db:"maintenance_history" json:"maintenance_history"`
	CreatedAt          time.Time `db:"created_at" json:"created_at"`
}
