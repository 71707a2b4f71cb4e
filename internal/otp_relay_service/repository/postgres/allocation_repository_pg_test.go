package postgres

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"regexp"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aradsms/otp_relay/internal/otp_relay_service/domain"
)

var allocationColumnNames = []string{
	"id", "requester_id", "range_spec", "phone_number", "digits", "country",
	"allocated_at", "status", "otp", "status_reason", "updated_at",
}

func setupRepo(t *testing.T) (pgxmock.PgxPoolIface, *PgAllocationRepository) {
	t.Helper()
	mockPool, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mockPool.Close)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return mockPool, NewPgAllocationRepository(mockPool, logger)
}

func pendingRow(mockPool pgxmock.PgxPoolIface, id uuid.UUID, at time.Time) *pgxmock.Rows {
	return mockPool.NewRows(allocationColumnNames).AddRow(
		id, "U1", "261347435XXX", "+261 347 435 123", "261347435123", "MG",
		at, "pending", sql.NullString{}, "", at,
	)
}

func TestPgAllocationRepository_EnsureSchema(t *testing.T) {
	mockPool, repo := setupRepo(t)
	mockPool.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS allocations")).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, repo.EnsureSchema(context.Background()))
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestPgAllocationRepository_Create(t *testing.T) {
	mockPool, repo := setupRepo(t)
	alloc, err := domain.NewAllocation(uuid.New(), "U1", "261347435XXX", "+261 347 435 123", "MG", time.Now())
	require.NoError(t, err)

	mockPool.ExpectExec(regexp.QuoteMeta(insertAllocationSQL)).
		WithArgs(alloc.ID, "U1", "261347435XXX", "+261 347 435 123", "261347435123", "MG",
			alloc.AllocatedAt, "pending", sql.NullString{}, "", alloc.UpdatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, repo.Create(context.Background(), alloc))
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestPgAllocationRepository_GetByID(t *testing.T) {
	id := uuid.New()
	at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	t.Run("Found", func(t *testing.T) {
		mockPool, repo := setupRepo(t)
		mockPool.ExpectQuery(regexp.QuoteMeta(selectAllocationByIDSQL)).
			WithArgs(id).
			WillReturnRows(pendingRow(mockPool, id, at))

		alloc, err := repo.GetByID(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, id, alloc.ID)
		assert.Equal(t, domain.StatusPending, alloc.Status)
		assert.Empty(t, alloc.OTP)
		assert.Equal(t, []string{"435123", "7435123", "47435123", "347435123", "1347435123"}, alloc.Fingerprints)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("NotFound", func(t *testing.T) {
		mockPool, repo := setupRepo(t)
		mockPool.ExpectQuery(regexp.QuoteMeta(selectAllocationByIDSQL)).
			WithArgs(id).
			WillReturnError(pgx.ErrNoRows)

		_, err := repo.GetByID(context.Background(), id)
		assert.ErrorIs(t, err, domain.ErrNotFound)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}

func TestPgAllocationRepository_ListActive(t *testing.T) {
	mockPool, repo := setupRepo(t)
	at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	first, second := uuid.New(), uuid.New()

	rows := mockPool.NewRows(allocationColumnNames).
		AddRow(first, "U1", "261XXX", "261347435123", "261347435123", "MG", at, "pending", sql.NullString{}, "", at).
		AddRow(second, "U2", "225XXX", "2250701234", "2250701234", "CI", at.Add(time.Minute), "pending", sql.NullString{}, "", at)
	mockPool.ExpectQuery(regexp.QuoteMeta(selectActiveAllocationsSQL)).
		WithArgs("pending").
		WillReturnRows(rows)

	allocs, err := repo.ListActive(context.Background())
	require.NoError(t, err)
	require.Len(t, allocs, 2)
	assert.Equal(t, first, allocs[0].ID)
	assert.Equal(t, second, allocs[1].ID)
	assert.Equal(t, "2250701234", allocs[1].Digits)
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestPgAllocationRepository_ListByRequester(t *testing.T) {
	mockPool, repo := setupRepo(t)
	at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	id := uuid.New()

	rows := mockPool.NewRows(allocationColumnNames).
		AddRow(id, "U1", "261XXX", "261347435123", "261347435123", "MG", at, "success",
			sql.NullString{String: "552910", Valid: true}, domain.ReasonOTPReceived, at)
	mockPool.ExpectQuery(regexp.QuoteMeta(selectAllocationsByRequesterSQL)).
		WithArgs("U1").
		WillReturnRows(rows)

	allocs, err := repo.ListByRequester(context.Background(), "U1")
	require.NoError(t, err)
	require.Len(t, allocs, 1)
	assert.Equal(t, domain.StatusSuccess, allocs[0].Status)
	assert.Equal(t, "552910", allocs[0].OTP)
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestPgAllocationRepository_Update(t *testing.T) {
	id := uuid.New()
	at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	t.Run("CommitsTransition", func(t *testing.T) {
		mockPool, repo := setupRepo(t)
		mockPool.ExpectBegin()
		mockPool.ExpectQuery(regexp.QuoteMeta(selectAllocationForUpdateSQL)).
			WithArgs(id).
			WillReturnRows(pendingRow(mockPool, id, at))
		mockPool.ExpectExec(regexp.QuoteMeta(updateAllocationStateSQL)).
			WithArgs("success", sql.NullString{String: "552910", Valid: true}, domain.ReasonOTPReceived, pgxmock.AnyArg(), id).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))
		mockPool.ExpectCommit()

		alloc, err := repo.Update(context.Background(), id, func(a *domain.Allocation) error {
			return a.MarkSuccess("552910", time.Now())
		})
		require.NoError(t, err)
		assert.Equal(t, domain.StatusSuccess, alloc.Status)
		assert.Equal(t, "552910", alloc.OTP)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("TerminalRowRollsBack", func(t *testing.T) {
		mockPool, repo := setupRepo(t)
		rows := mockPool.NewRows(allocationColumnNames).AddRow(
			id, "U1", "261XXX", "261347435123", "261347435123", "MG", at, "expired",
			sql.NullString{}, domain.ReasonCancelled, at,
		)
		mockPool.ExpectBegin()
		mockPool.ExpectQuery(regexp.QuoteMeta(selectAllocationForUpdateSQL)).WithArgs(id).WillReturnRows(rows)
		mockPool.ExpectRollback()

		_, err := repo.Update(context.Background(), id, func(a *domain.Allocation) error {
			return a.MarkSuccess("552910", time.Now())
		})
		assert.ErrorIs(t, err, domain.ErrAllocationTerminal)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("NotFound", func(t *testing.T) {
		mockPool, repo := setupRepo(t)
		mockPool.ExpectBegin()
		mockPool.ExpectQuery(regexp.QuoteMeta(selectAllocationForUpdateSQL)).WithArgs(id).WillReturnError(pgx.ErrNoRows)
		mockPool.ExpectRollback()

		_, err := repo.Update(context.Background(), id, func(*domain.Allocation) error { return nil })
		assert.ErrorIs(t, err, domain.ErrNotFound)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("ExecFailureRollsBack", func(t *testing.T) {
		mockPool, repo := setupRepo(t)
		mockPool.ExpectBegin()
		mockPool.ExpectQuery(regexp.QuoteMeta(selectAllocationForUpdateSQL)).WithArgs(id).WillReturnRows(pendingRow(mockPool, id, at))
		mockPool.ExpectExec(regexp.QuoteMeta(updateAllocationStateSQL)).WillReturnError(errors.New("connection reset"))
		mockPool.ExpectRollback()

		_, err := repo.Update(context.Background(), id, func(a *domain.Allocation) error {
			return a.MarkExpired(domain.ReasonProviderExpired, time.Now())
		})
		assert.ErrorContains(t, err, "connection reset")
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}
