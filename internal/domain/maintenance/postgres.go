package maintenance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medtrack/medtrack/internal/platform/db"
	"github.com/medtrack/medtrack/internal/storage"
)

type postgresRepo struct{ pool *pgxpool.Pool }

// NewPostgresRepository returns an EventRepository backed by the
// maintenance_events table.
func NewPostgresRepository(pool *pgxpool.Pool) EventRepository {
	return &postgresRepo{pool: pool}
}

const eventCols = `id, implant_id, maintenance_date, maintenance_type, performed_by,
	notes_hash, created_at`

func scanEvent(row pgx.Row) (*Event, error) {
	var ev Event
	err := row.Scan(&ev.ID, &ev.ImplantID, &ev.Date, &ev.Type,
		&ev.PerformedBy, &ev.NotesHash, &ev.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("maintenance event: %w", storage.ErrRecordNotFound)
	}
	return &ev, err
}

func (r *postgresRepo) Create(ctx context.Context, ev *Event) error {
	q := db.Active(ctx, r.pool)
	id, err := storage.NextID(ctx, q, storage.CategoryMaintenance)
	if err != nil {
		return err
	}
	ev.ID = id
	ev.CreatedAt = time.Now().UTC()
	_, err = q.Exec(ctx, `
		INSERT INTO maintenance_events (id, implant_id, maintenance_date,
			maintenance_type, performed_by, notes_hash, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		ev.ID, ev.ImplantID, ev.Date, ev.Type, ev.PerformedBy, ev.NotesHash, ev.CreatedAt)
	return err
}

func (r *postgresRepo) GetByID(ctx context.Context, id uint64) (*Event, error) {
	row := db.Active(ctx, r.pool).QueryRow(ctx, `SELECT `+eventCols+` FROM maintenance_events WHERE id = $1`, id)
	return scanEvent(row)
}

// ResolveIDs fetches the named events and returns them in the order the ids
// were given, skipping any id with no row.
func (r *postgresRepo) ResolveIDs(ctx context.Context, ids []uint64) ([]*Event, error) {
	out := []*Event{}
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := db.Active(ctx, r.pool).Query(ctx,
		`SELECT `+eventCols+` FROM maintenance_events WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	byID := make(map[uint64]*Event, len(ids))
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		byID[ev.ID] = ev
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, id := range ids {
		if ev, ok := byID[id]; ok {
			out = append(out, ev)
		}
	}
	return out, nil
}
