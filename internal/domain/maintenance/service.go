package maintenance

import (
	"context"
	"fmt"
	"strconv"

	"github.com/medtrack/medtrack/internal/domain/implant"
	"github.com/medtrack/medtrack/internal/platform/auth"
	"github.com/medtrack/medtrack/internal/platform/db"
	"github.com/medtrack/medtrack/internal/storage"
)

// ImplantLedger is the slice of the implant repository the maintenance
// ledger needs: locking an implant for a history append and reading its
// history back.
type ImplantLedger interface {
	GetByID(ctx context.Context, id uint64) (*implant.Implant, error)
	GetByIDForUpdate(ctx context.Context, id uint64) (*implant.Implant, error)
	AppendMaintenance(ctx context.Context, implantID, eventID uint64) error
}

// Publisher fans a committed registry event out to the configured sinks.
type Publisher interface {
	Publish(ctx context.Context, event, resourceID string, payload interface{})
}

type Service struct {
	db       db.Runner
	events   EventRepository
	implants ImplantLedger
	pub      Publisher
}

func NewService(runner db.Runner, events EventRepository, implants ImplantLedger) *Service {
	return &Service{db: runner, events: events, implants: implants}
}

// SetPublisher attaches an optional event publisher to the service.
func (s *Service) SetPublisher(pub Publisher) { s.pub = pub }

// RecordMaintenance stores a maintenance event and appends its identifier to
// the implant's history in the same transaction. The implant's removal state
// is irrelevant: servicing an explanted device is still recorded.
func (s *Service) RecordMaintenance(ctx context.Context, actor string, ev *Event) error {
	if err := auth.VerifyActor(actor, ev.PerformedBy); err != nil {
		return err
	}
	if ev.Type == "" {
		return fmt.Errorf("maintenance_type is required")
	}
	if !storage.ValidHash(ev.NotesHash) {
		return fmt.Errorf("notes_hash must be a 64-character lowercase hex digest")
	}
	err := s.db.WithTx(ctx, func(ctx context.Context) error {
		if _, err := s.implants.GetByIDForUpdate(ctx, ev.ImplantID); err != nil {
			return err
		}
		if err := s.events.Create(ctx, ev); err != nil {
			return err
		}
		return s.implants.AppendMaintenance(ctx, ev.ImplantID, ev.ID)
	})
	if err != nil {
		return err
	}
	s.publish(ctx, "maintenance.recorded", strconv.FormatUint(ev.ID, 10), ev)
	return nil
}

// ListMaintenance resolves an implant's maintenance history in history
// order. History entries whose event record is gone are skipped.
func (s *Service) ListMaintenance(ctx context.Context, implantID uint64) ([]*Event, error) {
	imp, err := s.implants.GetByID(ctx, implantID)
	if err != nil {
		return nil, err
	}
	return s.events.ResolveIDs(ctx, imp.MaintenanceHistory)
}

func (s *Service) GetEvent(ctx context.Context, id uint64) (*Event, error) {
	return s.events.GetByID(ctx, id)
}

func (s *Service) publish(ctx context.Context, event, id string, payload interface{}) {
	if s.pub != nil {
		s.pub.Publish(ctx, event, id, payload)
	}
}
