// Package performance is the patient-reported outcome ledger. Reports have
// no identifier of their own: each belongs to one implant and is addressed
// by the implant id plus its position in the implant's append-only list.
package performance

import "time"

// Report maps to the performance_reports table.
type Report struct {
	ImplantID     uint64    `db:"implant_id" json:"implant_id"`
	Position      int64     `db:"position" json:"position"`
	PatientID     string    `db:"patient_id" json:"patient_id"`
	DataHash      string    `db:"data_hash" json:"data_hash"`
	ReportedDate  int64     `db:"reported_date" json:"reported_date"`
	Complications []string  `db:"complications" json:"complications,omitempty"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}
