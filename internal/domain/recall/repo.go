package recall

import "context"

type RecallRepository interface {
	Create(ctx context.Context, rec *Recall) error
	GetByID(ctx context.Context, id uint64) (*Recall, error)
	AppendDeviceIndex(ctx context.Context, deviceID, recallID uint64) error
	// ListByDevice resolves a device's recall index in issuance order.
	// A device with no recalls, registered or not, yields an empty list.
	ListByDevice(ctx context.Context, deviceID uint64) ([]*Recall, error)
	List(ctx context.Context, limit, offset int) ([]*Recall, int, error)
}
