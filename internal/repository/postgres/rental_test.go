package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rental-obligations/internal/domain"
	"rental-obligations/internal/repository"
)

func TestRentalRepository_ListUpcomingReturns(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewRentalRepository(db)
	from := time.Date(2024, 1, 9, 10, 0, 0, 0, time.UTC)
	to := from.Add(24 * time.Hour)

	rows := sqlmock.NewRows([]string{"id", "customer_id", "product_id", "name", "quantity",
		"start_date", "end_date", "status", "payment_status"}).
		AddRow(42, 7, 3, "Excavator", 1, from.AddDate(0, 0, -5), to, "approved", "paid")

	mock.ExpectQuery(`SELECT (.+) FROM rentals r LEFT JOIN products p`).
		WithArgs(domain.RentalStatusApproved, domain.RentalPaymentPaid, from, to).
		WillReturnRows(rows)

	rentals, err := repo.ListUpcomingReturns(context.Background(), from, to)
	require.NoError(t, err)
	require.Len(t, rentals, 1)
	assert.Equal(t, int32(42), rentals[0].ID)
	assert.Equal(t, "Excavator", rentals[0].ProductName)
	assert.Equal(t, domain.RentalStatusApproved, rentals[0].Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRentalRepository_ListOverdueReturns_QueryError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewRentalRepository(db)
	mock.ExpectQuery(`SELECT (.+) FROM rentals`).WillReturnError(errors.New("connection reset"))

	_, err = repo.ListOverdueReturns(context.Background(), time.Now())
	assert.ErrorContains(t, err, "connection reset")
}

func TestPreferenceRepository_GetByUserID(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewPreferenceRepository(db)

	mock.ExpectQuery(`SELECT user_id, reminder_offsets, email_enabled FROM user_preferences`).
		WithArgs(int32(7)).
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "reminder_offsets", "email_enabled"}).
			AddRow(7, "{5,2}", true))

	pref, err := repo.GetByUserID(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, []int{5, 2}, pref.ReminderOffsets)
	assert.True(t, pref.EmailEnabled)

	mock.ExpectQuery(`SELECT user_id, reminder_offsets, email_enabled FROM user_preferences`).
		WithArgs(int32(8)).
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "reminder_offsets", "email_enabled"}))

	_, err = repo.GetByUserID(context.Background(), 8)
	assert.ErrorIs(t, err, repository.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrate(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	for range Schema {
		mock.ExpectExec(`CREATE`).WillReturnResult(sqlmock.NewResult(0, 0))
	}
	mock.ExpectCommit()

	assert.NoError(t, Migrate(context.Background(), db))
	assert.NoError(t, mock.ExpectationsWereMet())
}
