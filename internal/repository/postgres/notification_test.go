package postgres

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rental-obligations/internal/domain"
	"rental-obligations/internal/repository"
)

func TestNotificationRepository_Create(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewNotificationRepository(db)
	ctx := context.Background()
	scheduled := time.Date(2024, 1, 9, 10, 0, 0, 0, time.UTC)

	newNote := func() *domain.Notification {
		return &domain.Notification{
			UserID:       7,
			ObligationID: 42,
			Type:         domain.NotificationRentalReminder,
			Title:        "Return reminder",
			Message:      "Due tomorrow",
			MetadataKey:  domain.DaysLeftKey(1),
			Attributes:   map[string]string{"days_left": "1"},
			ScheduledAt:  scheduled,
		}
	}

	t.Run("Success", func(t *testing.T) {
		n := newNote()
		n.SentAt = &scheduled
		n.CreatedAt = scheduled
		mock.ExpectQuery(`INSERT INTO notifications .* ON CONFLICT \(user_id, obligation_id, type, metadata_key\) DO NOTHING`).
			WithArgs(int32(7), int32(42), domain.NotificationRentalReminder, "Return reminder", "Due tomorrow",
				"days_left=1", []byte(`{"days_left":"1"}`), scheduled, &scheduled, scheduled).
			WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(5, scheduled))

		err := repo.Create(ctx, n)
		assert.NoError(t, err)
		assert.Equal(t, int32(5), n.ID)
		assert.Equal(t, scheduled, n.CreatedAt)
	})

	t.Run("QueuedWithoutClaim", func(t *testing.T) {
		mock.ExpectQuery(`INSERT INTO notifications`).
			WithArgs(int32(7), int32(42), domain.NotificationRentalReminder, "Return reminder", "Due tomorrow",
				"days_left=1", []byte(`{"days_left":"1"}`), scheduled, nil, sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(6, scheduled))

		n := newNote()
		require.NoError(t, repo.Create(ctx, n))
		assert.Equal(t, int32(6), n.ID)
	})

	t.Run("Conflict", func(t *testing.T) {
		mock.ExpectQuery(`INSERT INTO notifications`).
			WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}))

		err := repo.Create(ctx, newNote())
		assert.ErrorIs(t, err, repository.ErrDuplicateNotification)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNotificationRepository_ListDue(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewNotificationRepository(db)
	to := time.Date(2024, 1, 9, 10, 0, 0, 0, time.UTC)
	from := to.Add(-time.Hour)

	rows := sqlmock.NewRows([]string{"id", "user_id", "obligation_id", "type", "title", "message", "metadata_key",
		"attributes", "scheduled_at", "sent_at", "email_sent", "email_message_id", "email_error", "is_read", "created_at"}).
		AddRow(1, 7, 42, "payment_due", "Payment due", "Pay soon", "", []byte(`{"amount":"$10.00"}`),
			to.Add(-10*time.Minute), nil, false, "", "", false, from)

	mock.ExpectQuery(`SELECT (.+) FROM notifications WHERE sent_at IS NULL`).
		WithArgs(from, to).
		WillReturnRows(rows)

	notes, err := repo.ListDue(context.Background(), from, to)
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Equal(t, domain.NotificationPaymentDue, notes[0].Type)
	assert.Nil(t, notes[0].SentAt)
	assert.Equal(t, "$10.00", notes[0].Attributes["amount"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNotificationRepository_MarkDispatched(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewNotificationRepository(db)
	sent := time.Date(2024, 1, 9, 10, 0, 0, 0, time.UTC)
	n := &domain.Notification{ID: 3, SentAt: &sent, EmailSent: false, EmailError: "invalid address"}

	mock.ExpectExec(`UPDATE notifications SET sent_at = \$1`).
		WithArgs(&sent, false, "", "invalid address", int32(3)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	assert.NoError(t, repo.MarkDispatched(context.Background(), n))

	mock.ExpectExec(`UPDATE notifications SET sent_at = \$1`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	assert.ErrorIs(t, repo.MarkDispatched(context.Background(), n), repository.ErrNotFound)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNotificationRepository_Claim(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewNotificationRepository(db)
	at := time.Date(2024, 1, 9, 10, 0, 0, 0, time.UTC)

	mock.ExpectExec(`UPDATE notifications SET sent_at = \$1 WHERE id = \$2 AND sent_at IS NULL`).
		WithArgs(at, int32(3)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	claimed, err := repo.Claim(context.Background(), 3, at)
	require.NoError(t, err)
	assert.True(t, claimed)

	mock.ExpectExec(`UPDATE notifications SET sent_at = \$1 WHERE id = \$2 AND sent_at IS NULL`).
		WithArgs(at, int32(3)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	claimed, err = repo.Claim(context.Background(), 3, at)
	require.NoError(t, err)
	assert.False(t, claimed)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNotificationRepository_DeleteReadBefore(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewNotificationRepository(db)
	cutoff := time.Date(2023, 10, 11, 0, 0, 0, 0, time.UTC)

	mock.ExpectExec(`DELETE FROM notifications WHERE is_read = TRUE AND created_at < \$1`).
		WithArgs(cutoff).
		WillReturnResult(sqlmock.NewResult(0, 12))

	deleted, err := repo.DeleteReadBefore(context.Background(), cutoff)
	assert.NoError(t, err)
	assert.Equal(t, int64(12), deleted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNotificationRepository_ListByKey_Error(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewNotificationRepository(db)
	mock.ExpectQuery(`SELECT (.+) FROM notifications WHERE user_id = \$1`).
		WillReturnError(sql.ErrConnDone)

	_, err = repo.ListByKey(context.Background(), domain.NotificationKey{UserID: 1})
	assert.ErrorIs(t, err, sql.ErrConnDone)
}
