package performance

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medtrack/medtrack/internal/platform/db"
)

type postgresRepo struct{ pool *pgxpool.Pool }

// NewPostgresRepository returns a ReportRepository backed by the
// performance_reports table.
func NewPostgresRepository(pool *pgxpool.Pool) ReportRepository {
	return &postgresRepo{pool: pool}
}

const reportCols = `implant_id, position, patient_id, data_hash, reported_date,
	complications, created_at`

func scanReport(row pgx.Row) (*Report, error) {
	var rep Report
	err := row.Scan(&rep.ImplantID, &rep.Position, &rep.PatientID,
		&rep.DataHash, &rep.ReportedDate, &rep.Complications, &rep.CreatedAt)
	return &rep, err
}

// Append computes the next per-implant position inside the insert. The
// subselect is race-free because the service holds the implant row lock.
func (r *postgresRepo) Append(ctx context.Context, rep *Report) error {
	rep.CreatedAt = time.Now().UTC()
	return db.Active(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO performance_reports (implant_id, position, patient_id,
			data_hash, reported_date, complications, created_at)
		VALUES ($1,
			(SELECT COALESCE(MAX(position), -1) + 1 FROM performance_reports WHERE implant_id = $1),
			$2, $3, $4, $5, $6)
		RETURNING position`,
		rep.ImplantID, rep.PatientID, rep.DataHash, rep.ReportedDate,
		rep.Complications, rep.CreatedAt).Scan(&rep.Position)
}

func (r *postgresRepo) ListByImplant(ctx context.Context, implantID uint64) ([]*Report, error) {
	rows, err := db.Active(ctx, r.pool).Query(ctx,
		`SELECT `+reportCols+` FROM performance_reports WHERE implant_id = $1 ORDER BY position`,
		implantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []*Report{}
	for rows.Next() {
		rep, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, rep)
	}
	return items, rows.Err()
}
