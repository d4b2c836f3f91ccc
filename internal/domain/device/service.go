package device

import (
	"context"
	"fmt"
	"strconv"

	"github.com/medtrack/medtrack/internal/platform/db"
	"github.com/medtrack/medtrack/internal/storage"
)

// Publisher fans a committed registry event out to the configured sinks
// (webhooks, live feed, metrics). Delivery never affects the operation.
type Publisher interface {
	Publish(ctx context.Context, event, resourceID string, payload interface{})
}

type Service struct {
	db      db.Runner
	devices DeviceRepository
	pub     Publisher
}

func NewService(runner db.Runner, devices DeviceRepository) *Service {
	return &Service{db: runner, devices: devices}
}

// SetPublisher attaches an optional event publisher to the service.
func (s *Service) SetPublisher(pub Publisher) { s.pub = pub }

// RegisterDevice stores an immutable device descriptor and assigns its
// identifier. Any authenticated caller may register; there is no identity
// to prove beyond the token itself.
func (s *Service) RegisterDevice(ctx context.Context, d *Device) error {
	if d.UDI == "" {
		return fmt.Errorf("udi is required")
	}
	if d.DeviceType == "" {
		return fmt.Errorf("device_type is required")
	}
	if d.Manufacturer == "" {
		return fmt.Errorf("manufacturer is required")
	}
	if !storage.ValidHash(d.SpecsHash) {
		return fmt.Errorf("specs_hash must be a 64-character lowercase hex digest")
	}
	err := s.db.WithTx(ctx, func(ctx context.Context) error {
		return s.devices.Create(ctx, d)
	})
	if err != nil {
		return err
	}
	s.publish(ctx, "device.registered", strconv.FormatUint(d.ID, 10), d)
	return nil
}

func (s *Service) GetDevice(ctx context.Context, id uint64) (*Device, error) {
	return s.devices.GetByID(ctx, id)
}

// ListDevices returns one page of the registry, optionally narrowed by f.
// The registry keeps one row per registration, so devices sharing a UDI or
// lot each appear in the result.
func (s *Service) ListDevices(ctx context.Context, f Filter, limit, offset int) ([]*Device, int, error) {
	return s.devices.List(ctx, f, limit, offset)
}

func (s *Service) publish(ctx context.Context, event, id string, payload interface{}) {
	if s.pub != nil {
		s.pub.Publish(ctx, event, id, payload)
	}
}
