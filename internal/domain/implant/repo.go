package implant

import "context"

type ImplantRepository interface {
	Create(ctx context.Context, imp *Implant) error
	GetByID(ctx context.Context, id uint64) (*Implant, error)
	// GetByIDForUpdate locks the implant row for the rest of the
	// transaction, serializing removal and history appends per implant.
	GetByIDForUpdate(ctx context.Context, id uint64) (*Implant, error)
	MarkRemoved(ctx context.Context, id uint64, removalDate int64, reason string, explantHash *string) error
	AppendMaintenance(ctx context.Context, implantID, eventID uint64) error
	AppendPatientIndex(ctx context.Context, patientID string, implantID uint64) error
	AppendDeviceIndex(ctx context.Context, deviceID, implantID uint64) error
	// ListByPatient resolves the patient's implant index in insertion
	// order; index entries whose record is gone are skipped.
	ListByPatient(ctx context.Context, patientID string) ([]*Implant, error)
	// ListByDevice resolves the device's implant index in insertion order.
	ListByDevice(ctx context.Context, deviceID uint64) ([]*Implant, error)
}
