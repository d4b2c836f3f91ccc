package implant

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

// NewPostgresRepository returns an ImplantRepository backed by the implants
// table and its two index tables.
func NewPostgresRepository(pool *pgxpool.Pool) ImplantRepository {
	return &postgresRepo{pool: pool}
}

const implantCols = `id, patient_id, device_id, implant_date, location, provider_id,
	notes_hash, active, removal_date, removal_reason, explant_hash,
	maintenance_history, created_at`

const implantColsJoined = `i.id, i.patient_id, i.device_id, i.implant_date, i.location, i.provider_id,
	i.notes_hash, i.active, i.removal_date, i.removal_reason, i.explant_hash,
	i.maintenance_history, i.created_at`

func scanImplant(row pgx.Row) (*Implant, error) {
	var imp Implant
	err := row.Scan(&imp.ID, &imp.PatientID, &imp.DeviceID, &imp.ImplantDate,
		&imp.Location, &imp.ProviderID, &imp.NotesHash, &imp.Active,
		&imp.RemovalDate, &imp.RemovalReason, &imp.ExplantHash,
		&imp.MaintenanceHistory, &imp.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("implant: %w", storage.ErrRecordNotFound)
	}
	return &imp, err
}

func (r *postgresRepo) Create(ctx context.Context, imp *Implant) error {
	q := db.Active(ctx, r.pool)
	id, err := storage.NextID(ctx, q, storage.CategoryImplant)
	if err != nil {
		return err
	}
	imp.ID = id
	imp.Active = true
	if imp.MaintenanceHistory == nil {
		imp.MaintenanceHistory = []uint64{}
	}
	imp.CreatedAt = time.Now().UTC()
	_, err = q.Exec(ctx, `
		INSERT INTO implants (id, patient_id, device_id, implant_date, location,
			provider_id, notes_hash, active, maintenance_history, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		imp.ID, imp.PatientID, imp.DeviceID, imp.ImplantDate, imp.Location,
		imp.ProviderID, imp.NotesHash, imp.Active, imp.MaintenanceHistory, imp.CreatedAt)
	return err
}

func (r *postgresRepo) GetByID(ctx context.Context, id uint64) (*Implant, error) {
	row := db.Active(ctx, r.pool).QueryRow(ctx, `SELECT `+implantCols+` FROM implants WHERE id = $1`, id)
	return scanImplant(row)
}

func (r *postgresRepo) GetByIDForUpdate(ctx context.Context, id uint64) (*Implant, error) {
	row := db.Active(ctx, r.pool).QueryRow(ctx, `SELECT `+implantCols+` FROM implants WHERE id = $1 FOR UPDATE`, id)
	return scanImplant(row)
}

func (r *postgresRepo) MarkRemoved(ctx context.Context, id uint64, removalDate int64, reason string, explantHash *string) error {
	tag, err := db.Active(ctx, r.pool).Exec(ctx, `
		UPDATE implants
		SET active = FALSE, removal_date = $2, removal_reason = $3, explant_hash = $4
		WHERE id = $1 AND active`,
		id, removalDate, reason, explantHash)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("implant %d: %w", id, storage.ErrDeviceNotActive)
	}
	return nil
}

func (r *postgresRepo) AppendMaintenance(ctx context.Context, implantID, eventID uint64) error {
	tag, err := db.Active(ctx, r.pool).Exec(ctx, `
		UPDATE implants SET maintenance_history = array_append(maintenance_history, $2)
		WHERE id = $1`,
		implantID, int64(eventID))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("implant %d: %w", implantID, storage.ErrRecordNotFound)
	}
	return nil
}

func (r *postgresRepo) AppendPatientIndex(ctx context.Context, patientID string, implantID uint64) error {
	_, err := db.Active(ctx, r.pool).Exec(ctx,
		`INSERT INTO patient_implants (patient_id, implant_id) VALUES ($1, $2)`,
		patientID, implantID)
	return err
}

func (r *postgresRepo) AppendDeviceIndex(ctx context.Context, deviceID, implantID uint64) error {
	_, err := db.Active(ctx, r.pool).Exec(ctx,
		`INSERT INTO device_implants (device_id, implant_id) VALUES ($1, $2)`,
		deviceID, implantID)
	return err
}

func (r *postgresRepo) ListByPatient(ctx context.Context, patientID string) ([]*Implant, error) {
	rows, err := db.Active(ctx, r.pool).Query(ctx, `
		SELECT `+implantColsJoined+`
		FROM patient_implants pi
		JOIN implants i ON i.id = pi.implant_id
		WHERE pi.patient_id = $1
		ORDER BY pi.position`,
		patientID)
	if err != nil {
		return nil, err
	}
	return collectImplants(rows)
}

func (r *postgresRepo) ListByDevice(ctx context.Context, deviceID uint64) ([]*Implant, error) {
	rows, err := db.Active(ctx, r.pool).Query(ctx, `
		SELECT `+implantColsJoined+`
		FROM device_implants di
		JOIN implants i ON i.id = di.implant_id
		WHERE di.device_id = $1
		ORDER BY di.position`,
		deviceID)
	if err != nil {
		return nil, err
	}
	return collectImplants(rows)
}

func collectImplants(rows pgx.Rows) ([]*Implant, error) {
	defer rows.Close()
	items := []*Implant{}
	for rows.Next() {
		imp, err := scanImplant(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, imp)
	}
	return items, rows.Err()
}
