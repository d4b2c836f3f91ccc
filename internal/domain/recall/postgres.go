package recall

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

// NewPostgresRepository returns a RecallRepository backed by the recalls
// table and the device index.
func NewPostgresRepository(pool *pgxpool.Pool) RecallRepository {
	return &postgresRepo{pool: pool}
}

const recallCols = `id, device_ids, reason, severity, recall_date, action_required,
	resolution_deadline, created_at`

const recallColsJoined = `r.id, r.device_ids, r.reason, r.severity, r.recall_date, r.action_required,
	r.resolution_deadline, r.created_at`

func scanRecall(row pgx.Row) (*Recall, error) {
	var rec Recall
	err := row.Scan(&rec.ID, &rec.DeviceIDs, &rec.Reason, &rec.Severity,
		&rec.RecallDate, &rec.ActionRequired, &rec.ResolutionDeadline, &rec.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("recall: %w", storage.ErrRecordNotFound)
	}
	return &rec, err
}

func (r *postgresRepo) Create(ctx context.Context, rec *Recall) error {
	q := db.Active(ctx, r.pool)
	id, err := storage.NextID(ctx, q, storage.CategoryRecall)
	if err != nil {
		return err
	}
	rec.ID = id
	if rec.DeviceIDs == nil {
		rec.DeviceIDs = []uint64{}
	}
	rec.CreatedAt = time.Now().UTC()
	_, err = q.Exec(ctx, `
		INSERT INTO recalls (id, device_ids, reason, severity, recall_date,
			action_required, resolution_deadline, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		rec.ID, rec.DeviceIDs, rec.Reason, rec.Severity, rec.RecallDate,
		rec.ActionRequired, rec.ResolutionDeadline, rec.CreatedAt)
	return err
}

func (r *postgresRepo) GetByID(ctx context.Context, id uint64) (*Recall, error) {
	row := db.Active(ctx, r.pool).QueryRow(ctx, `SELECT `+recallCols+` FROM recalls WHERE id = $1`, id)
	return scanRecall(row)
}

func (r *postgresRepo) AppendDeviceIndex(ctx context.Context, deviceID, recallID uint64) error {
	_, err := db.Active(ctx, r.pool).Exec(ctx,
		`INSERT INTO device_recalls (device_id, recall_id) VALUES ($1, $2)`,
		deviceID, recallID)
	return err
}

func (r *postgresRepo) ListByDevice(ctx context.Context, deviceID uint64) ([]*Recall, error) {
	rows, err := db.Active(ctx, r.pool).Query(ctx, `
		SELECT `+recallColsJoined+`
		FROM device_recalls dr
		JOIN recalls r ON r.id = dr.recall_id
		WHERE dr.device_id = $1
		ORDER BY dr.position`,
		deviceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []*Recall{}
	for rows.Next() {
		rec, err := scanRecall(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, rec)
	}
	return items, rows.Err()
}

func (r *postgresRepo) List(ctx context.Context, limit, offset int) ([]*Recall, int, error) {
	q := db.Active(ctx, r.pool)
	var total int
	if err := q.QueryRow(ctx, `SELECT COUNT(*) FROM recalls`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := q.Query(ctx, `SELECT `+recallCols+` FROM recalls ORDER BY id LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	items := make([]*Recall, 0, limit)
	for rows.Next() {
		rec, err := scanRecall(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, rec)
	}
	return items, total, rows.Err()
}
