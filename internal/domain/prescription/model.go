// Package prescription is the prescription desk: flat immutable records of
// device prescriptions, looked up by id only. The referenced device id is
// stored verbatim and never checked against the registry.
package prescription

import "time"

// Prescription maps to the prescriptions table.
type Prescription struct {
	ID               uint64    `db:"id" json:"id"`
	PatientID        string    `db:"patient_id" json:"patient_id"`
	ProviderID       string    `db:"provider_id" json:"provider_id"`
	DeviceType       string    `db:"device_type" json:"device_type"`
	DeviceID         uint64    `db:"device_id" json:"device_id"`
	PrescriptionDate int64     `db:"prescription_date" json:"prescription_date"`
	DurationDays     *int64    `db:"duration_days" json:"duration_days,omitempty"`
	InstructionsHash string    `db:"instructions_hash" json:"instructions_hash"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
}
