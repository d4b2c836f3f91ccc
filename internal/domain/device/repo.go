package device

import "context"

// Filter narrows a registry listing. Zero-value fields do not constrain
// the result.
type Filter struct {
	UDI       string
	LotNumber string
}

type DeviceRepository interface {
	Create(ctx context.Context, d *Device) error
	GetByID(ctx context.Context, id uint64) (*Device, error)
	Exists(ctx context.Context, id uint64) (bool, error)
	List(ctx context.Context, f Filter, limit, offset int) ([]*Device, int, error)
}
