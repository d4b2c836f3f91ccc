package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// Category names one entity family with its own identifier sequence.
type Category string

const (
	CategoryDevice       Category = "device"
	CategoryImplant      Category = "implant"
	CategoryPrescription Category = "prescription"
	CategoryMaintenance  Category = "maintenance"
	CategoryRecall       Category = "recall"
)

// Querier is the subset of pgx execution methods the allocator needs.
// *pgxpool.Pool, *pgxpool.Conn, and pgx.Tx all satisfy it, so identifiers
// can be allocated inside the caller's transaction.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

const nextIDSQL = `
	INSERT INTO sequence_counters (category, value)
	VALUES ($1, 1)
	ON CONFLICT (category) DO UPDATE SET value = sequence_counters.value + 1
	RETURNING value`

// NextID allocates the next identifier in the category's sequence.
// Sequences start at 1 and advance by one per allocation; an identifier is
// never reused or reassigned. Allocation participates in the caller's
// transaction, so a failed operation does not advance the sequence.
func NextID(ctx context.Context, q Querier, category Category) (uint64, error) {
	var id int64
	if err := q.QueryRow(ctx, nextIDSQL, string(category)).Scan(&id); err != nil {
		return 0, fmt.Errorf("allocate %s id: %w", category, err)
	}
	return uint64(id), nil
}
