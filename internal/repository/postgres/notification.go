package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"rental-obligations/internal/domain"
	"rental-obligations/internal/logger"
	"rental-obligations/internal/repository"
)

type notificationRepository struct {
	db *sql.DB
}

func NewNotificationRepository(db *sql.DB) repository.NotificationRepository {
	return &notificationRepository{db: db}
}

const notificationColumns = `id, user_id, obligation_id, type, title, message, metadata_key, attributes,
	scheduled_at, sent_at, email_sent, COALESCE(email_message_id, ''), COALESCE(email_error, ''),
	is_read, created_at`

// Create relies on the unique index over (user_id, obligation_id, type, metadata_key):
// a conflicting insert returns no row and is reported as ErrDuplicateNotification.
func (r *notificationRepository) Create(ctx context.Context, n *domain.Notification) error {
	logger.EnterMethod("notificationRepository.Create", "key", n.Key().String())

	attrs, err := json.Marshal(n.Attributes)
	if err != nil {
		logger.ExitMethodWithError("notificationRepository.Create", err, "reason", "failed to marshal attributes")
		return err
	}

	query := `INSERT INTO notifications (user_id, obligation_id, type, title, message, metadata_key,
	              attributes, scheduled_at, sent_at, email_sent, is_read, created_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, FALSE, FALSE, $10)
	          ON CONFLICT (user_id, obligation_id, type, metadata_key) DO NOTHING
	          RETURNING id, created_at`
	logger.DatabaseCall("INSERT", "notifications", "userID", n.UserID, "type", n.Type)

	createdAt := n.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	err = r.db.QueryRowContext(ctx, query,
		n.UserID, n.ObligationID, n.Type, n.Title, n.Message, n.MetadataKey, attrs, n.ScheduledAt, n.SentAt, createdAt,
	).Scan(&n.ID, &n.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		logger.DatabaseResult("INSERT", 0, nil, "key", n.Key().String())
		logger.ExitMethod("notificationRepository.Create", "duplicate", true)
		return repository.ErrDuplicateNotification
	}
	logger.DatabaseResult("INSERT", 1, err, "notificationID", n.ID)
	if err != nil {
		logger.ExitMethodWithError("notificationRepository.Create", err, "userID", n.UserID)
		return err
	}

	logger.ExitMethod("notificationRepository.Create", "notificationID", n.ID)
	return nil
}

func (r *notificationRepository) ListByKey(ctx context.Context, key domain.NotificationKey) ([]domain.Notification, error) {
	query := `SELECT ` + notificationColumns + `
		FROM notifications
		WHERE user_id = $1 AND obligation_id = $2 AND type = $3 AND metadata_key = $4`
	return r.list(ctx, query, key.UserID, key.ObligationID, key.Type, key.MetadataKey)
}

func (r *notificationRepository) ListDue(ctx context.Context, from, to time.Time) ([]domain.Notification, error) {
	logger.EnterMethod("notificationRepository.ListDue", "from", from, "to", to)

	query := `SELECT ` + notificationColumns + `
		FROM notifications
		WHERE sent_at IS NULL
		  AND scheduled_at >= $1
		  AND scheduled_at <= $2
		ORDER BY scheduled_at`
	notes, err := r.list(ctx, query, from, to)
	if err != nil {
		logger.ExitMethodWithError("notificationRepository.ListDue", err)
		return nil, err
	}

	logger.ExitMethod("notificationRepository.ListDue", "count", len(notes))
	return notes, nil
}

func (r *notificationRepository) Claim(ctx context.Context, id int32, at time.Time) (bool, error) {
	query := `UPDATE notifications SET sent_at = $1 WHERE id = $2 AND sent_at IS NULL`
	logger.DatabaseCall("UPDATE", "notifications", "notificationID", id, "claim", true)
	result, err := r.db.ExecContext(ctx, query, at, id)
	if err != nil {
		logger.DatabaseResult("UPDATE", 0, err, "notificationID", id)
		return false, err
	}
	rows, err := result.RowsAffected()
	logger.DatabaseResult("UPDATE", rows, err, "notificationID", id)
	if err != nil {
		return false, err
	}
	return rows == 1, nil
}

func (r *notificationRepository) MarkDispatched(ctx context.Context, n *domain.Notification) error {
	query := `UPDATE notifications
	          SET sent_at = $1, email_sent = $2, email_message_id = $3, email_error = $4
	          WHERE id = $5`
	logger.DatabaseCall("UPDATE", "notifications", "notificationID", n.ID)
	result, err := r.db.ExecContext(ctx, query, n.SentAt, n.EmailSent, n.EmailMessageID, n.EmailError, n.ID)
	if err != nil {
		logger.DatabaseResult("UPDATE", 0, err, "notificationID", n.ID)
		return err
	}
	rows, err := result.RowsAffected()
	logger.DatabaseResult("UPDATE", rows, err, "notificationID", n.ID)
	if err != nil {
		return err
	}
	if rows == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *notificationRepository) DeleteReadBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `DELETE FROM notifications WHERE is_read = TRUE AND created_at < $1`
	logger.DatabaseCall("DELETE", "notifications", "cutoff", cutoff)
	result, err := r.db.ExecContext(ctx, query, cutoff)
	if err != nil {
		logger.DatabaseResult("DELETE", 0, err)
		return 0, err
	}
	rows, err := result.RowsAffected()
	logger.DatabaseResult("DELETE", rows, err)
	return rows, err
}

func (r *notificationRepository) list(ctx context.Context, query string, args ...interface{}) ([]domain.Notification, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var notes []domain.Notification
	for rows.Next() {
		var n domain.Notification
		var attrs []byte
		if err := rows.Scan(&n.ID, &n.UserID, &n.ObligationID, &n.Type, &n.Title, &n.Message, &n.MetadataKey, &attrs,
			&n.ScheduledAt, &n.SentAt, &n.EmailSent, &n.EmailMessageID, &n.EmailError, &n.IsRead, &n.CreatedAt); err != nil {
			return nil, err
		}
		if len(attrs) > 0 {
			if err := json.Unmarshal(attrs, &n.Attributes); err != nil {
				return nil, err
			}
		}
		notes = append(notes, n)
	}
	return notes, rows.Err()
}
