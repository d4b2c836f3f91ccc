package implant

import (
	"context"
	"fmt"
	"strconv"

	"github.com/medtrack/medtrack/internal/platform/auth"
	"github.com/medtrack/medtrack/internal/platform/db"
	"github.com/medtrack/medtrack/internal/storage"
)

// DeviceDirectory answers whether a device identifier is registered. The
// device registry's repository satisfies it.
type DeviceDirectory interface {
	Exists(ctx context.Context, id uint64) (bool, error)
}

// Publisher fans a committed registry event out to the configured sinks.
type Publisher interface {
	Publish(ctx context.Context, event, resourceID string, payload interface{})
}

type Service struct {
	db       db.Runner
	implants ImplantRepository
	devices  DeviceDirectory
	pub      Publisher
}

func NewService(runner db.Runner, implants ImplantRepository, devices DeviceDirectory) *Service {
	return &Service{db: runner, implants: implants, devices: devices}
}

// SetPublisher attaches an optional event publisher to the service.
func (s *Service) SetPublisher(pub Publisher) { s.pub = pub }

// ImplantDevice records the implantation of a registered device into a
// patient. The actor must prove the implanting provider's identity. The
// implant row, both index entries, and the identifier allocation commit as
// one unit; a missing device leaves nothing behind, not even a consumed id.
func (s *Service) ImplantDevice(ctx context.Context, actor string, imp *Implant) error {
	if err := auth.VerifyActor(actor, imp.ProviderID); err != nil {
		return err
	}
	if imp.PatientID == "" {
		return fmt.Errorf("patient_id is required")
	}
	if !storage.ValidHash(imp.NotesHash) {
		return fmt.Errorf("notes_hash must be a 64-character lowercase hex digest")
	}
	err := s.db.WithTx(ctx, func(ctx context.Context) error {
		ok, err := s.devices.Exists(ctx, imp.DeviceID)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("device %d: %w", imp.DeviceID, storage.ErrRecordNotFound)
		}
		if err := s.implants.Create(ctx, imp); err != nil {
			return err
		}
		if err := s.implants.AppendPatientIndex(ctx, imp.PatientID, imp.ID); err != nil {
			return err
		}
		return s.implants.AppendDeviceIndex(ctx, imp.DeviceID, imp.ID)
	})
	if err != nil {
		return err
	}
	s.publish(ctx, "implant.created", strconv.FormatUint(imp.ID, 10), imp)
	return nil
}

// RemoveImplant flips an active implant to removed and records the removal
// date, reason, and optional explant-analysis hash in the same update.
// Removal is terminal: repeating it fails with DeviceNotActive rather than
// being silently accepted.
func (s *Service) RemoveImplant(ctx context.Context, actor, providerID string, id uint64, removalDate int64, reason string, explantHash *string) (*Implant, error) {
	if err := auth.VerifyActor(actor, providerID); err != nil {
		return nil, err
	}
	if reason == "" {
		return nil, fmt.Errorf("reason is required")
	}
	if explantHash != nil && !storage.ValidHash(*explantHash) {
		return nil, fmt.Errorf("explant_hash must be a 64-character lowercase hex digest")
	}
	var imp *Implant
	err := s.db.WithTx(ctx, func(ctx context.Context) error {
		var err error
		imp, err = s.implants.GetByIDForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !imp.Active {
			return fmt.Errorf("implant %d already removed: %w", id, storage.ErrDeviceNotActive)
		}
		if err := s.implants.MarkRemoved(ctx, id, removalDate, reason, explantHash); err != nil {
			return err
		}
		imp.Active = false
		imp.RemovalDate = &removalDate
		imp.RemovalReason = &reason
		imp.ExplantHash = explantHash
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, "implant.removed", strconv.FormatUint(id, 10), imp)
	return imp, nil
}

func (s *Service) GetImplant(ctx context.Context, id uint64) (*Implant, error) {
	return s.implants.GetByID(ctx, id)
}

// GetPatientImplants resolves a patient's implant index in insertion order.
// Any established caller identity may read it; an empty result is not an
// error.
func (s *Service) GetPatientImplants(ctx context.Context, requesterID, patientID string, activeOnly bool) ([]*Implant, error) {
	if requesterID == "" {
		return nil, auth.ErrNotAuthorized
	}
	items, err := s.implants.ListByPatient(ctx, patientID)
	if err != nil {
		return nil, err
	}
	if !activeOnly {
		return items, nil
	}
	active := []*Implant{}
	for _, imp := range items {
		if imp.Active {
			active = append(active, imp)
		}
	}
	return active, nil
}

func (s *Service) publish(ctx context.Context, event, id string, payload interface{}) {
	if s.pub != nil {
		s.pub.Publish(ctx, event, id, payload)
	}
}
