package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/lib/pq"
	"rental-obligations/internal/domain"
	"rental-obligations/internal/repository"
)

type preferenceRepository struct {
	db *sql.DB
}

func NewPreferenceRepository(db *sql.DB) repository.PreferenceRepository {
	return &preferenceRepository{db: db}
}

func (r *preferenceRepository) GetByUserID(ctx context.Context, userID int32) (*domain.UserPreference, error) {
	query := `SELECT user_id, reminder_offsets, email_enabled FROM user_preferences WHERE user_id = $1`

	pref := &domain.UserPreference{}
	var offsets pq.Int64Array
	err := r.db.QueryRowContext(ctx, query, userID).Scan(&pref.UserID, &offsets, &pref.EmailEnabled)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	for _, off := range offsets {
		pref.ReminderOffsets = append(pref.ReminderOffsets, int(off))
	}
	return pref, nil
}
