package prescription

import "context"

type PrescriptionRepository interface {
	Create(ctx context.Context, p *Prescription) error
	GetByID(ctx context.Context, id uint64) (*Prescription, error)
}
