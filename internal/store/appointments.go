package store

import (
	"context"
	"fmt"

	"gorm.io/gorm/clause"

	"appointment-booking-backend/internal/apperr"
	"appointment-booking-backend/internal/authz"
	"appointment-booking-backend/internal/model"
)

// CreateAppointment inserts a new appointment row.
func (s *gormStore) CreateAppointment(ctx context.Context, a *model.Appointment) error {
	if err := s.db.WithContext(ctx).Omit(clause.Associations).Create(a).Error; err != nil {
		return fmt.Errorf("create appointment: %w", err)
	}
	return nil
}

// GetAppointment loads an appointment with its slot, agenda and talent.
func (s *gormStore) GetAppointment(ctx context.Context, id int64) (model.Appointment, error) {
	var a model.Appointment
	err := s.db.WithContext(ctx).
		Preload("CalendarSlot.Agenda").
		Preload("Talent").
		First(&a, id).Error
	if err != nil {
		return model.Appointment{}, notFound(err, apperr.ErrAppointmentNotFound)
	}
	return a, nil
}

// ListAppointments lists appointments visible to caller, newest slot first.
func (s *gormStore) ListAppointments(ctx context.Context, caller authz.Caller, f AppointmentFilter) ([]model.Appointment, error) {
	q := s.db.WithContext(ctx).
		Select("appointments.*").
		Joins("JOIN calendar_slots ON calendar_slots.id = appointments.calendar_slot_id").
		Scopes(authz.ScopeAppointments(caller)).
		Preload("CalendarSlot.Agenda").
		Preload("Talent")
	if f.Status != "" {
		q = q.Where("appointments.status = ?", f.Status)
	}
	if f.From != "" {
		q = q.Where("calendar_slots.slot_date >= ?", f.From)
	}
	if f.To != "" {
		q = q.Where("calendar_slots.slot_date <= ?", f.To)
	}

	var out []model.Appointment
	if err := q.Order("calendar_slots.slot_date DESC, calendar_slots.start_time DESC").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	return out, nil
}

// MarkCancelled flips a non-final appointment to cancelled. The status guard
// lives in the WHERE clause, so of two concurrent cancels only one matches.
func (s *gormStore) MarkCancelled(ctx context.Context, id int64, c Cancellation) error {
	res := s.db.WithContext(ctx).
		Model(&model.Appointment{}).
		Where("id = ? AND status NOT IN ?", id, model.FinalAppointmentStatuses).
		Updates(map[string]any{
			"status":          model.AppointmentCancelled,
			"cancelled_at":    c.At,
			"cancelled_by_id": c.By,
		})
	if res.Error != nil {
		return fmt.Errorf("cancel appointment %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return s.classifyTransitionFailure(ctx, id)
	}
	return nil
}

// TransitionAppointment moves an appointment from one status to another,
// writing any extra fields in the same statement.
func (s *gormStore) TransitionAppointment(ctx context.Context, id int64, from, to model.AppointmentStatus, fields map[string]any) error {
	updates := map[string]any{"status": to}
	for k, v := range fields {
		updates[k] = v
	}

	res := s.db.WithContext(ctx).
		Model(&model.Appointment{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("transition appointment %d to %s: %w", id, to, res.Error)
	}
	if res.RowsAffected == 0 {
		return s.classifyTransitionFailure(ctx, id)
	}
	return nil
}

func (s *gormStore) classifyTransitionFailure(ctx context.Context, id int64) error {
	var a model.Appointment
	if err := s.db.WithContext(ctx).Select("id", "status").First(&a, id).Error; err != nil {
		return notFound(err, apperr.ErrAppointmentNotFound)
	}
	if a.Status.IsFinal() {
		return apperr.ErrAlreadyFinal
	}
	return apperr.ErrConflict.WithMessage("appointment %d is %s", id, a.Status)
}

// UpdateAppointment writes the given columns without touching status.
func (s *gormStore) UpdateAppointment(ctx context.Context, id int64, fields map[string]any) error {
	res := s.db.WithContext(ctx).
		Model(&model.Appointment{}).
		Where("id = ?", id).
		Updates(fields)
	if res.Error != nil {
		return fmt.Errorf("update appointment %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return apperr.ErrAppointmentNotFound
	}
	return nil
}
