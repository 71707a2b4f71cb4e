package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/aradsms/otp_relay/internal/otp_relay_service/domain"
)

// DBTX is the subset of *pgxpool.Pool the repository needs.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

const schemaDDL = `CREATE TABLE IF NOT EXISTS allocations (
	id            UUID PRIMARY KEY,
	requester_id  TEXT NOT NULL,
	range_spec    TEXT NOT NULL,
	phone_number  TEXT NOT NULL,
	digits        TEXT NOT NULL,
	country       TEXT NOT NULL,
	allocated_at  TIMESTAMPTZ NOT NULL,
	status        TEXT NOT NULL,
	otp           TEXT NULL,
	status_reason TEXT NOT NULL DEFAULT '',
	updated_at    TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_allocations_status ON allocations (status);
CREATE INDEX IF NOT EXISTS idx_allocations_requester ON allocations (requester_id, allocated_at DESC);`

const allocationColumns = `id, requester_id, range_spec, phone_number, digits, country, allocated_at, status, otp, status_reason, updated_at`

const (
	insertAllocationSQL = `INSERT INTO allocations (` + allocationColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	selectAllocationByIDSQL = `SELECT ` + allocationColumns + ` FROM allocations WHERE id = $1`

	selectAllocationForUpdateSQL = `SELECT ` + allocationColumns + ` FROM allocations WHERE id = $1 FOR UPDATE`

	selectAllocationsByRequesterSQL = `SELECT ` + allocationColumns + ` FROM allocations WHERE requester_id = $1 ORDER BY allocated_at DESC`

	selectActiveAllocationsSQL = `SELECT ` + allocationColumns + ` FROM allocations WHERE status = $1 ORDER BY allocated_at ASC`

	updateAllocationStateSQL = `UPDATE allocations SET status = $1, otp = $2, status_reason = $3, updated_at = $4 WHERE id = $5`
)

type PgAllocationRepository struct {
	db     DBTX
	logger *slog.Logger
}

func NewPgAllocationRepository(db DBTX, logger *slog.Logger) *PgAllocationRepository {
	return &PgAllocationRepository{db: db, logger: logger.With("component", "allocation_repository_pg")}
}

// EnsureSchema creates the allocations table and its indexes if they are missing.
func (r *PgAllocationRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, schemaDDL); err != nil {
		r.logger.ErrorContext(ctx, "Error ensuring allocations schema", "error", err)
		return fmt.Errorf("ensure allocations schema: %w", err)
	}
	return nil
}

func (r *PgAllocationRepository) Create(ctx context.Context, alloc *domain.Allocation) error {
	_, err := r.db.Exec(ctx, insertAllocationSQL,
		alloc.ID, alloc.RequesterID, alloc.RangeSpec, alloc.PhoneNumber, alloc.Digits, alloc.Country,
		alloc.AllocatedAt, string(alloc.Status), nullableOTP(alloc.OTP), alloc.StatusReason, alloc.UpdatedAt,
	)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error creating allocation", "error", err, "allocation_id", alloc.ID)
		return fmt.Errorf("create allocation: %w", err)
	}
	r.logger.InfoContext(ctx, "Allocation created", "allocation_id", alloc.ID, "requester_id", alloc.RequesterID)
	return nil
}

func (r *PgAllocationRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Allocation, error) {
	alloc, err := scanAllocation(r.db.QueryRow(ctx, selectAllocationByIDSQL, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		r.logger.ErrorContext(ctx, "Error getting allocation by ID", "error", err, "allocation_id", id)
		return nil, fmt.Errorf("get allocation: %w", err)
	}
	return alloc, nil
}

func (r *PgAllocationRepository) ListByRequester(ctx context.Context, requesterID string) ([]*domain.Allocation, error) {
	return r.list(ctx, selectAllocationsByRequesterSQL, requesterID)
}

func (r *PgAllocationRepository) ListActive(ctx context.Context) ([]*domain.Allocation, error) {
	return r.list(ctx, selectActiveAllocationsSQL, string(domain.StatusPending))
}

// Update serializes concurrent transitions of one allocation with a row lock.
func (r *PgAllocationRepository) Update(ctx context.Context, id uuid.UUID, mutate func(*domain.Allocation) error) (*domain.Allocation, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error beginning transaction", "error", err, "allocation_id", id)
		return nil, fmt.Errorf("begin allocation update: %w", err)
	}

	alloc, err := scanAllocation(tx.QueryRow(ctx, selectAllocationForUpdateSQL, id))
	if err != nil {
		r.rollback(ctx, tx, id)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("lock allocation: %w", err)
	}

	if err := mutate(alloc); err != nil {
		r.rollback(ctx, tx, id)
		return nil, err
	}

	if _, err := tx.Exec(ctx, updateAllocationStateSQL,
		string(alloc.Status), nullableOTP(alloc.OTP), alloc.StatusReason, alloc.UpdatedAt, id,
	); err != nil {
		r.rollback(ctx, tx, id)
		r.logger.ErrorContext(ctx, "Error updating allocation", "error", err, "allocation_id", id)
		return nil, fmt.Errorf("update allocation: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		r.logger.ErrorContext(ctx, "Error committing allocation update", "error", err, "allocation_id", id)
		return nil, fmt.Errorf("commit allocation update: %w", err)
	}
	r.logger.DebugContext(ctx, "Allocation updated", "allocation_id", id, "status", alloc.Status)
	return alloc, nil
}

func (r *PgAllocationRepository) list(ctx context.Context, query string, arg any) ([]*domain.Allocation, error) {
	rows, err := r.db.Query(ctx, query, arg)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error listing allocations", "error", err)
		return nil, fmt.Errorf("list allocations: %w", err)
	}
	defer rows.Close()

	allocs := make([]*domain.Allocation, 0)
	for rows.Next() {
		alloc, err := scanAllocation(rows)
		if err != nil {
			r.logger.ErrorContext(ctx, "Error scanning allocation row", "error", err)
			return nil, fmt.Errorf("scan allocation: %w", err)
		}
		allocs = append(allocs, alloc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate allocations: %w", err)
	}
	return allocs, nil
}

func (r *PgAllocationRepository) rollback(ctx context.Context, tx pgx.Tx, id uuid.UUID) {
	if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		r.logger.WarnContext(ctx, "Error rolling back allocation update", "error", err, "allocation_id", id)
	}
}

func scanAllocation(row pgx.Row) (*domain.Allocation, error) {
	alloc := &domain.Allocation{}
	var status string
	var otp sql.NullString
	err := row.Scan(
		&alloc.ID, &alloc.RequesterID, &alloc.RangeSpec, &alloc.PhoneNumber, &alloc.Digits, &alloc.Country,
		&alloc.AllocatedAt, &status, &otp, &alloc.StatusReason, &alloc.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	alloc.Status = domain.AllocationStatus(status)
	if otp.Valid {
		alloc.OTP = otp.String
	}
	alloc.DeriveFingerprints()
	return alloc, nil
}

func nullableOTP(otp string) sql.NullString {
	return sql.NullString{String: otp, Valid: otp != ""}
}
