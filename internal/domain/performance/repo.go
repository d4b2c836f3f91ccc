package performance

import "context"

type ReportRepository interface {
	// Append stores the report at the next position in its implant's list.
	// The caller must hold the implant's row lock.
	Append(ctx context.Context, r *Report) error
	ListByImplant(ctx context.Context, implantID uint64) ([]*Report, error)
}
