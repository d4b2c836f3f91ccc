package prescription

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

// NewPostgresRepository returns a PrescriptionRepository backed by the
// prescriptions table.
func NewPostgresRepository(pool *pgxpool.Pool) PrescriptionRepository {
	return &postgresRepo{pool: pool}
}

const prescriptionCols = `id, patient_id, provider_id, device_type, device_id,
	prescription_date, duration_days, instructions_hash, created_at`

func scanPrescription(row pgx.Row) (*Prescription, error) {
	var p Prescription
	err := row.Scan(&p.ID, &p.PatientID, &p.ProviderID, &p.DeviceType,
		&p.DeviceID, &p.PrescriptionDate, &p.DurationDays,
		&p.InstructionsHash, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("prescription: %w", storage.ErrRecordNotFound)
	}
	return &p, err
}

func (r *postgresRepo) Create(ctx context.Context, p *Prescription) error {
	q := db.Active(ctx, r.pool)
	id, err := storage.NextID(ctx, q, storage.CategoryPrescription)
	if err != nil {
		return err
	}
	p.ID = id
	p.CreatedAt = time.Now().UTC()
	_, err = q.Exec(ctx, `
		INSERT INTO prescriptions (id, patient_id, provider_id, device_type,
			device_id, prescription_date, duration_days, instructions_hash, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		p.ID, p.PatientID, p.ProviderID, p.DeviceType, p.DeviceID,
		p.PrescriptionDate, p.DurationDays, p.InstructionsHash, p.CreatedAt)
	return err
}

func (r *postgresRepo) GetByID(ctx context.Context, id uint64) (*Prescription, error) {
	row := db.Active(ctx, r.pool).QueryRow(ctx,
		`SELECT `+prescriptionCols+` FROM prescriptions WHERE id = $1`, id)
	return scanPrescription(row)
}
