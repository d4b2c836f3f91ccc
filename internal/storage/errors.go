// Package storage defines the record-store vocabulary shared by the domain
// repositories: sentinel errors, entity categories, and the per-category
// sequence allocator backed by the sequence_counters table.
package storage

import "errors"

var (
	// ErrRecordNotFound indicates that a referenced entity identifier does
	// not exist in the store.
	ErrRecordNotFound = errors.New("record not found")

	// ErrDeviceNotActive indicates a state-machine violation: the operation
	// requires an active implant but the implant is already removed.
	ErrDeviceNotActive = errors.New("device not active")
)
