package prescription

import (
	"context"
	"fmt"
	"strconv"

	"github.com/medtrack/medtrack/internal/platform/auth"
	"github.com/medtrack/medtrack/internal/platform/db"
	"github.com/medtrack/medtrack/internal/storage"
)

// Publisher fans a committed registry event out to the configured sinks.
type Publisher interface {
	Publish(ctx context.Context, event, resourceID string, payload interface{})
}

type Service struct {
	db            db.Runner
	prescriptions PrescriptionRepository
	pub           Publisher
}

func NewService(runner db.Runner, prescriptions PrescriptionRepository) *Service {
	return &Service{db: runner, prescriptions: prescriptions}
}

// SetPublisher attaches an optional event publisher to the service.
func (s *Service) SetPublisher(pub Publisher) { s.pub = pub }

// PrescribeDevice stores an immutable prescription record. The actor must
// prove the prescribing provider's identity. The device id is taken on
// faith; prescriptions routinely predate registration.
func (s *Service) PrescribeDevice(ctx context.Context, actor string, p *Prescription) error {
	if err := auth.VerifyActor(actor, p.ProviderID); err != nil {
		return err
	}
	if p.PatientID == "" {
		return fmt.Errorf("patient_id is required")
	}
	if p.DeviceType == "" {
		return fmt.Errorf("device_type is required")
	}
	if !storage.ValidHash(p.InstructionsHash) {
		return fmt.Errorf("instructions_hash must be a 64-character lowercase hex digest")
	}
	err := s.db.WithTx(ctx, func(ctx context.Context) error {
		return s.prescriptions.Create(ctx, p)
	})
	if err != nil {
		return err
	}
	s.publish(ctx, "prescription.created", strconv.FormatUint(p.ID, 10), p)
	return nil
}

func (s *Service) GetPrescription(ctx context.Context, id uint64) (*Prescription, error) {
	return s.prescriptions.GetByID(ctx, id)
}

func (s *Service) publish(ctx context.Context, event, id string, payload interface{}) {
	if s.pub != nil {
		s.pub.Publish(ctx, event, id, payload)
	}
}
