package store

import (
	"context"
	"fmt"

	"gorm.io/gorm/clause"

	"appointment-booking-backend/internal/apperr"
	"appointment-booking-backend/internal/model"
)

// CreateAgenda inserts an agenda together with its eligibility criteria.
func (s *gormStore) CreateAgenda(ctx context.Context, a *model.Agenda) error {
	err := s.db.WithContext(ctx).
		Omit("University", "Theme").
		Create(a).Error
	if err != nil {
		return fmt.Errorf("create agenda: %w", err)
	}
	return nil
}

// GetAgenda loads an agenda with its university, theme and criteria.
func (s *gormStore) GetAgenda(ctx context.Context, id int64) (model.Agenda, error) {
	var a model.Agenda
	err := s.db.WithContext(ctx).
		Preload("University").
		Preload("Theme").
		Preload("Eligibility").
		First(&a, id).Error
	if err != nil {
		return model.Agenda{}, notFound(err, apperr.ErrNotFound.WithMessage("agenda %d does not exist", id))
	}
	return a, nil
}

// ListAgendas lists agendas ordered by start date.
func (s *gormStore) ListAgendas(ctx context.Context, f AgendaFilter) ([]model.Agenda, error) {
	q := s.db.WithContext(ctx).Preload("Theme")
	if f.UniversityID != nil {
		q = q.Where("university_id = ?", *f.UniversityID)
	}
	if f.ThemeID != nil {
		q = q.Where("theme_id = ?", *f.ThemeID)
	}
	if f.ActiveOnly {
		q = q.Where("is_active = ?", true)
	}

	var out []model.Agenda
	if err := q.Order("start_date ASC, id ASC").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list agendas: %w", err)
	}
	return out, nil
}

// GetTheme loads one appointment theme.
func (s *gormStore) GetTheme(ctx context.Context, id int64) (model.AppointmentTheme, error) {
	var t model.AppointmentTheme
	if err := s.db.WithContext(ctx).First(&t, id).Error; err != nil {
		return model.AppointmentTheme{}, notFound(err, apperr.ErrNotFound.WithMessage("theme %d does not exist", id))
	}
	return t, nil
}

// ListThemes lists active themes by name.
func (s *gormStore) ListThemes(ctx context.Context) ([]model.AppointmentTheme, error) {
	var out []model.AppointmentTheme
	if err := s.db.WithContext(ctx).Where("is_active = ?", true).Order("name ASC").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list themes: %w", err)
	}
	return out, nil
}

// GetUser loads a user.
func (s *gormStore) GetUser(ctx context.Context, id int64) (model.User, error) {
	var u model.User
	if err := s.db.WithContext(ctx).First(&u, id).Error; err != nil {
		return model.User{}, notFound(err, apperr.ErrNotFound.WithMessage("user %d does not exist", id))
	}
	return u, nil
}

// GetPreferences returns the user's notification preferences, or the
// defaults when none were saved.
func (s *gormStore) GetPreferences(ctx context.Context, userID int64) (model.UserPreferences, error) {
	var p model.UserPreferences
	res := s.db.WithContext(ctx).Where("user_id = ?", userID).Limit(1).Find(&p)
	if res.Error != nil {
		return model.UserPreferences{}, fmt.Errorf("load preferences of user %d: %w", userID, res.Error)
	}
	if res.RowsAffected == 0 {
		return model.DefaultPreferences(userID), nil
	}
	return p, nil
}

// UpsertSubscription creates or replaces a push subscription.
func (s *gormStore) UpsertSubscription(ctx context.Context, sub *model.PushSubscription) error {
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "endpoint"}},
		DoUpdates: clause.AssignmentColumns([]string{"user_id", "p256dh", "auth"}),
	}).Create(sub).Error
}

// GetSubscription loads one of the user's push subscriptions.
func (s *gormStore) GetSubscription(ctx context.Context, userID int64, endpoint string) (model.PushSubscription, error) {
	var sub model.PushSubscription
	err := s.db.WithContext(ctx).
		Where("endpoint = ? AND user_id = ?", endpoint, userID).
		First(&sub).Error
	if err != nil {
		return model.PushSubscription{}, notFound(err, apperr.ErrNotFound.WithMessage("subscription not found"))
	}
	return sub, nil
}

// DeleteSubscription removes one of the user's push subscriptions.
func (s *gormStore) DeleteSubscription(ctx context.Context, userID int64, endpoint string) error {
	return s.db.WithContext(ctx).
		Where("endpoint = ? AND user_id = ?", endpoint, userID).
		Delete(&model.PushSubscription{}).Error
}
