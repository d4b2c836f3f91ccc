// Package maintenance is the maintenance ledger: immutable service events
// linked into exactly one implant's append-only history list.
package maintenance

import "time"

// Event maps to the maintenance_events table.
type Event struct {
	ID          uint64    `db:"id" json:"id"`
	ImplantID   uint64    `db:"implant_id" json:"implant_id"`
	Date        int64     `db:"maintenance_date" json:"maintenance_date"`
	Type        string    `db:"maintenance_type" json:"maintenance_type"`
	PerformedBy string    `db:"performed_by" json:"performed_by"`
	NotesHash   string    `db:"notes_hash" json:"notes_hash"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}
