package device

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medtrack/medtrack/internal/platform/db"
	"github.com/medtrack/medtrack/internal/storage"
)

type postgresRepo struct{ pool *pgxpool.Pool }

// NewPostgresRepository returns a DeviceRepository backed by the devices table.
func NewPostgresRepository(pool *pgxpool.Pool) DeviceRepository {
	return &postgresRepo{pool: pool}
}

const deviceCols = `id, udi, device_type, manufacturer, model_number, lot_number,
	manufacturing_date, expiration_date, specs_hash, created_at`

func scanDevice(row pgx.Row) (*Device, error) {
	var d Device
	err := row.Scan(&d.ID, &d.UDI, &d.DeviceType, &d.Manufacturer,
		&d.ModelNumber, &d.LotNumber, &d.ManufacturingDate,
		&d.ExpirationDate, &d.SpecsHash, &d.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("device: %w", storage.ErrRecordNotFound)
	}
	return &d, err
}

// Create allocates the next device identifier and inserts the descriptor.
// The allocation joins the caller's transaction, so a failed registration
// does not advance the sequence.
func (r *postgresRepo) Create(ctx context.Context, d *Device) error {
	q := db.Active(ctx, r.pool)
	id, err := storage.NextID(ctx, q, storage.CategoryDevice)
	if err != nil {
		return err
	}
	d.ID = id
	d.CreatedAt = time.Now().UTC()
	_, err = q.Exec(ctx, `
		INSERT INTO devices (id, udi, device_type, manufacturer, model_number,
			lot_number, manufacturing_date, expiration_date, specs_hash, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		d.ID, d.UDI, d.DeviceType, d.Manufacturer, d.ModelNumber,
		d.LotNumber, d.ManufacturingDate, d.ExpirationDate, d.SpecsHash, d.CreatedAt)
	return err
}

func (r *postgresRepo) GetByID(ctx context.Context, id uint64) (*Device, error) {
	row := db.Active(ctx, r.pool).QueryRow(ctx, `SELECT `+deviceCols+` FROM devices WHERE id = $1`, id)
	return scanDevice(row)
}

func (r *postgresRepo) Exists(ctx context.Context, id uint64) (bool, error) {
	var found bool
	err := db.Active(ctx, r.pool).QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM devices WHERE id = $1)`, id).Scan(&found)
	return found, err
}

// where renders the filter as a WHERE clause with positional arguments.
func (f Filter) where() (string, []interface{}) {
	var conds []string
	var args []interface{}
	if f.UDI != "" {
		args = append(args, f.UDI)
		conds = append(conds, fmt.Sprintf("udi = $%d", len(args)))
	}
	if f.LotNumber != "" {
		args = append(args, f.LotNumber)
		conds = append(conds, fmt.Sprintf("lot_number = $%d", len(args)))
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func (r *postgresRepo) List(ctx context.Context, f Filter, limit, offset int) ([]*Device, int, error) {
	where, args := f.where()
	q := db.Active(ctx, r.pool)
	var total int
	if err := q.QueryRow(ctx, `SELECT COUNT(*) FROM devices`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	page := fmt.Sprintf(`SELECT %s FROM devices%s ORDER BY id LIMIT $%d OFFSET $%d`,
		deviceCols, where, len(args)+1, len(args)+2)
	rows, err := q.Query(ctx, page, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	items := make([]*Device, 0, limit)
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, d)
	}
	return items, total, rows.Err()
}
