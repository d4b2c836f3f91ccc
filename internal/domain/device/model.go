// Package device is the device registry: immutable descriptors for every
// tracked device, keyed by a sequence-allocated identifier. A descriptor is
// written once at registration and never mutated or deleted; lifecycle state
// lives on the implant records that reference it.
package device

import "time"

// Device maps to the devices table. All timestamp fields except CreatedAt are
// caller-supplied Unix epoch seconds.
type Device struct {
	ID                uint64    `db:"id" json:"id"`
	UDI               string    `db:"udi" json:"udi"`
	DeviceType        string    `db:"device_type" json:"device_type"`
	Manufacturer      string    `db:"manufacturer" json:"manufacturer"`
	ModelNumber       string    `db:"model_number" json:"model_number"`
	LotNumber         string    `db:"lot_number" json:"lot_number"`
	ManufacturingDate int64     `db:"manufacturing_date" json:"manufacturing_date"`
	ExpirationDate    *int64    `db:"expiration_date" json:"expiration_date,omitempty"`
	SpecsHash         string    `db:"specs_hash" json:"specs_hash"`
	CreatedAt         time.Time `db:"created_at" json:"created_at"`
}
