package performance

import (
	"context"
	"fmt"
	"strconv"

	"github.com/medtrack/medtrack/internal/domain/implant"
	"github.com/medtrack/medtrack/internal/platform/auth"
	"github.com/medtrack/medtrack/internal/platform/db"
	"github.com/medtrack/medtrack/internal/storage"
)

// ImplantLedger is the slice of the implant repository the report ledger
// needs. Appends lock the implant row so per-implant positions stay dense.
type ImplantLedger interface {
	GetByID(ctx context.Context, id uint64) (*implant.Implant, error)
	GetByIDForUpdate(ctx context.Context, id uint64) (*implant.Implant, error)
}

// Publisher fans a committed registry event out to the configured sinks.
type Publisher interface {
	Publish(ctx context.Context, event, resourceID string, payload interface{})
}

type Service struct {
	db       db.Runner
	reports  ReportRepository
	implants ImplantLedger
	pub      Publisher
}

func NewService(runner db.Runner, reports ReportRepository, implants ImplantLedger) *Service {
	return &Service{db: runner, reports: reports, implants: implants}
}

// SetPublisher attaches an optional event publisher to the service.
func (s *Service) SetPublisher(pub Publisher) { s.pub = pub }

// TrackPerformance appends a patient-reported performance report to an
// implant's list. The actor must prove the reporting patient's identity.
// Reports are never deduplicated; every submission takes the next position.
func (s *Service) TrackPerformance(ctx context.Context, actor string, rep *Report) error {
	if err := auth.VerifyActor(actor, rep.PatientID); err != nil {
		return err
	}
	if !storage.ValidHash(rep.DataHash) {
		return fmt.Errorf("data_hash must be a 64-character lowercase hex digest")
	}
	err := s.db.WithTx(ctx, func(ctx context.Context) error {
		if _, err := s.implants.GetByIDForUpdate(ctx, rep.ImplantID); err != nil {
			return err
		}
		return s.reports.Append(ctx, rep)
	})
	if err != nil {
		return err
	}
	s.publish(ctx, "performance.reported", strconv.FormatUint(rep.ImplantID, 10), rep)
	return nil
}

// ListPerformance returns an implant's reports in append order.
func (s *Service) ListPerformance(ctx context.Context, implantID uint64) ([]*Report, error) {
	if _, err := s.implants.GetByID(ctx, implantID); err != nil {
		return nil, err
	}
	return s.reports.ListByImplant(ctx, implantID)
}

func (s *Service) publish(ctx context.Context, event, id string, payload interface{}) {
	if s.pub != nil {
		s.pub.Publish(ctx, event, id, payload)
	}
}
