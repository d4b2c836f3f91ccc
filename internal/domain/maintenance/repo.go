package maintenance

import "context"

type EventRepository interface {
	Create(ctx context.Context, ev *Event) error
	GetByID(ctx context.Context, id uint64) (*Event, error)
	// ResolveIDs returns the events for the given identifiers in the given
	// order. Identifiers that no longer resolve are skipped.
	ResolveIDs(ctx context.Context, ids []uint64) ([]*Event, error)
}
