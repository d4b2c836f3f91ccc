package recall

import (
	"context"
	"fmt"
	"strconv"

	"github.com/medtrack/medtrack/internal/domain/implant"
	"github.com/medtrack/medtrack/internal/platform/auth"
	"github.com/medtrack/medtrack/internal/platform/db"
)

// ImplantSource resolves the implants recorded against a device. The
// implant registry's repository satisfies it.
type ImplantSource interface {
	ListByDevice(ctx context.Context, deviceID uint64) ([]*implant.Implant, error)
}

// Notifier delivers a recall notice to the affected patients. Delivery is
// best-effort and never affects the operation.
type Notifier interface {
	NotifyRecall(ctx context.Context, rec *Recall, patients []string, notificationDate int64)
}

// Publisher fans a committed registry event out to the configured sinks.
type Publisher interface {
	Publish(ctx context.Context, event, resourceID string, payload interface{})
}

type Service struct {
	db       db.Runner
	recalls  RecallRepository
	implants ImplantSource
	pub      Publisher
	notifier Notifier
}

func NewService(runner db.Runner, recalls RecallRepository, implants ImplantSource) *Service {
	return &Service{db: runner, recalls: recalls, implants: implants}
}

// SetPublisher attaches an optional event publisher to the service.
func (s *Service) SetPublisher(pub Publisher) { s.pub = pub }

// SetNotifier attaches an optional recall-notice sender.
func (s *Service) SetNotifier(n Notifier) { s.notifier = n }

// IssueRecall records a manufacturer's recall notice and indexes it under
// every device identifier the notice names. The list is stored verbatim:
// entries are not checked against the device registry, and a duplicated
// entry is indexed twice. The actor must prove the issuing manufacturer's
// identity.
func (s *Service) IssueRecall(ctx context.Context, actor, manufacturerID string, rec *Recall) error {
	if err := auth.VerifyActor(actor, manufacturerID); err != nil {
		return err
	}
	if rec.Reason == "" {
		return fmt.Errorf("reason is required")
	}
	if rec.Severity == "" {
		return fmt.Errorf("severity is required")
	}
	if rec.ActionRequired == "" {
		return fmt.Errorf("action_required is required")
	}
	err := s.db.WithTx(ctx, func(ctx context.Context) error {
		if err := s.recalls.Create(ctx, rec); err != nil {
			return err
		}
		for _, deviceID := range rec.DeviceIDs {
			if err := s.recalls.AppendDeviceIndex(ctx, deviceID, rec.ID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.publish(ctx, "recall.issued", strconv.FormatUint(rec.ID, 10), rec)
	return nil
}

// NotifyAffectedPatients walks the recall's device list through the
// implant index and collects the carrier of every implant still in place.
// Implants already removed are skipped. There is no dedup: a patient
// carrying two affected implants is listed twice, once per implant.
// Requires an established caller identity.
func (s *Service) NotifyAffectedPatients(ctx context.Context, actor string, recallID uint64, notificationDate int64) ([]string, error) {
	if actor == "" {
		return nil, auth.ErrNotAuthorized
	}
	rec, err := s.recalls.GetByID(ctx, recallID)
	if err != nil {
		return nil, err
	}
	patients := []string{}
	for _, deviceID := range rec.DeviceIDs {
		implants, err := s.implants.ListByDevice(ctx, deviceID)
		if err != nil {
			return nil, err
		}
		for _, imp := range implants {
			if imp.Active {
				patients = append(patients, imp.PatientID)
			}
		}
	}
	if s.notifier != nil {
		s.notifier.NotifyRecall(ctx, rec, patients, notificationDate)
	}
	s.publish(ctx, "recall.notified", strconv.FormatUint(recallID, 10), map[string]interface{}{
		"recall_id":         recallID,
		"notification_date": notificationDate,
		"patients":          patients,
	})
	return patients, nil
}

// CheckDeviceRecalls resolves the recalls issued against a device, oldest
// first. A device that has never been recalled, registered or not, yields
// an empty list rather than an error.
func (s *Service) CheckDeviceRecalls(ctx context.Context, deviceID uint64) ([]*Recall, error) {
	return s.recalls.ListByDevice(ctx, deviceID)
}

func (s *Service) GetRecall(ctx context.Context, id uint64) (*Recall, error) {
	return s.recalls.GetByID(ctx, id)
}

func (s *Service) ListRecalls(ctx context.Context, limit, offset int) ([]*Recall, int, error) {
	return s.recalls.List(ctx, limit, offset)
}

func (s *Service) publish(ctx context.Context, event, id string, payload interface{}) {
	if s.pub != nil {
		s.pub.Publish(ctx, event, id, payload)
	}
}
