package service

import (
	"context"
	"errors"
	"slices"

	"rental-obligations/internal/domain"
	"rental-obligations/internal/repository"
)

type preferenceService struct {
	repo           repository.PreferenceRepository
	defaultOffsets []int
}

func NewPreferenceService(repo repository.PreferenceRepository, defaultOffsets []int) PreferenceService {
	return &preferenceService{repo: repo, defaultOffsets: slices.Clone(defaultOffsets)}
}

// GetPreferences returns the stored preference, or the defaults (configured
// offsets, email enabled) when the customer never saved one.
func (s *preferenceService) GetPreferences(ctx context.Context, userID int32) (domain.UserPreference, error) {
	pref, err := s.repo.GetByUserID(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return domain.UserPreference{
			UserID:          userID,
			ReminderOffsets: slices.Clone(s.defaultOffsets),
			EmailEnabled:    true,
		}, nil
	}
	if err != nil {
		return domain.UserPreference{}, err
	}

	if len(pref.ReminderOffsets) == 0 {
		pref.ReminderOffsets = slices.Clone(s.defaultOffsets)
	}
	return *pref, nil
}
