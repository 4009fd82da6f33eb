package store

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"appointment-booking-backend/internal/apperr"
	"appointment-booking-backend/internal/model"
)

// ReserveUnit takes one unit of capacity. The guard, the increment and the
// flip to fully_booked happen in one statement, so at most max_capacity
// concurrent callers can succeed.
func (s *gormStore) ReserveUnit(ctx context.Context, slotID int64) (model.CalendarSlot, error) {
	res := s.db.WithContext(ctx).
		Model(&model.CalendarSlot{}).
		Where("id = ? AND status = ? AND current_bookings < max_capacity", slotID, model.SlotAvailable).
		Updates(map[string]any{
			"current_bookings": gorm.Expr("current_bookings + 1"),
			"status":           gorm.Expr("CASE WHEN current_bookings + 1 >= max_capacity THEN ? ELSE status END", model.SlotFullyBooked),
		})
	if res.Error != nil {
		return model.CalendarSlot{}, fmt.Errorf("reserve unit on slot %d: %w", slotID, res.Error)
	}

	slot, err := s.loadSlot(ctx, slotID)
	if err != nil {
		return model.CalendarSlot{}, err
	}
	if res.RowsAffected == 0 {
		return slot, classifyReserveFailure(slot)
	}
	return slot, nil
}

// classifyReserveFailure explains why the conditional update matched nothing.
func classifyReserveFailure(slot model.CalendarSlot) error {
	switch {
	case slot.Status == model.SlotFullyBooked, slot.CurrentBookings >= slot.MaxCapacity:
		return apperr.ErrSlotFull
	default:
		return apperr.ErrSlotNotAvailable
	}
}

// ReleaseUnit returns one unit of capacity. Only fully_booked flips back to
// available; blocked and cancelled slots keep their status.
func (s *gormStore) ReleaseUnit(ctx context.Context, slotID int64) (model.CalendarSlot, error) {
	res := s.db.WithContext(ctx).
		Model(&model.CalendarSlot{}).
		Where("id = ? AND current_bookings > 0", slotID).
		Updates(map[string]any{
			"current_bookings": gorm.Expr("current_bookings - 1"),
			"status":           gorm.Expr("CASE WHEN status = ? THEN ? ELSE status END", model.SlotFullyBooked, model.SlotAvailable),
		})
	if res.Error != nil {
		return model.CalendarSlot{}, fmt.Errorf("release unit on slot %d: %w", slotID, res.Error)
	}

	slot, err := s.loadSlot(ctx, slotID)
	if err != nil {
		return model.CalendarSlot{}, err
	}
	if res.RowsAffected == 0 {
		return slot, apperr.ErrSlotUnderflow
	}
	return slot, nil
}

func (s *gormStore) loadSlot(ctx context.Context, id int64) (model.CalendarSlot, error) {
	var slot model.CalendarSlot
	if err := s.db.WithContext(ctx).First(&slot, id).Error; err != nil {
		return model.CalendarSlot{}, notFound(err, apperr.ErrSlotNotFound)
	}
	return slot, nil
}

// GetSlot loads a slot with its agenda and the agenda's eligibility criteria.
func (s *gormStore) GetSlot(ctx context.Context, id int64) (model.CalendarSlot, error) {
	var slot model.CalendarSlot
	if err := s.db.WithContext(ctx).Preload("Agenda.Eligibility").First(&slot, id).Error; err != nil {
		return model.CalendarSlot{}, notFound(err, apperr.ErrSlotNotFound)
	}
	return slot, nil
}

// slotLockClass namespaces the advisory locks taken while creating slots.
const slotLockClass int32 = 0x536c6f74

// CreateSlot inserts a slot after checking that the staff member has no other
// live slot overlapping it on the same day. On Postgres the check and insert
// hold a per-staff advisory lock until the transaction ends; SQLite already
// serializes writers.
func (s *gormStore) CreateSlot(ctx context.Context, slot *model.CalendarSlot) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if tx.Dialector.Name() == "postgres" {
			if err := tx.Exec("SELECT pg_advisory_xact_lock(?, ?)", slotLockClass, int32(slot.StaffID)).Error; err != nil {
				return fmt.Errorf("lock staff slots: %w", err)
			}
		}

		var overlapping int64
		err := tx.Model(&model.CalendarSlot{}).
			Where("staff_id = ? AND slot_date = ? AND status <> ?", slot.StaffID, slot.SlotDate, model.SlotCancelled).
			Where("start_time < ? AND end_time > ?", slot.EndTime, slot.StartTime).
			Count(&overlapping).Error
		if err != nil {
			return fmt.Errorf("check overlapping slots: %w", err)
		}
		if overlapping > 0 {
			return apperr.ErrConflict.WithMessage("staff %d already has a slot overlapping %s %s-%s",
				slot.StaffID, slot.SlotDate, slot.StartTime, slot.EndTime)
		}

		if err := tx.Omit(clause.Associations).Create(slot).Error; err != nil {
			return fmt.Errorf("create slot: %w", err)
		}
		return nil
	})
}

// SetSlotStatus moves a slot to blocked, cancelled or back to available.
// Re-opening a slot at capacity yields fully_booked. Appointments are not touched.
func (s *gormStore) SetSlotStatus(ctx context.Context, id int64, status model.SlotStatus) (model.CalendarSlot, error) {
	var value any = status
	if status == model.SlotAvailable {
		value = gorm.Expr("CASE WHEN current_bookings >= max_capacity THEN ? ELSE ? END", model.SlotFullyBooked, model.SlotAvailable)
	}

	res := s.db.WithContext(ctx).
		Model(&model.CalendarSlot{}).
		Where("id = ?", id).
		Update("status", value)
	if res.Error != nil {
		return model.CalendarSlot{}, fmt.Errorf("set status of slot %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return model.CalendarSlot{}, apperr.ErrSlotNotFound
	}
	return s.loadSlot(ctx, id)
}

// AvailableSlots lists bookable slots ordered by date and start time.
func (s *gormStore) AvailableSlots(ctx context.Context, f SlotFilter) ([]model.CalendarSlot, error) {
	q := s.db.WithContext(ctx).
		Preload("Staff").
		Where("agenda_id = ? AND status = ? AND current_bookings < max_capacity", f.AgendaID, model.SlotAvailable)
	if f.Today != "" {
		q = q.Where("slot_date >= ?", f.Today)
	}
	if f.From != "" {
		q = q.Where("slot_date >= ?", f.From)
	}
	if f.To != "" {
		q = q.Where("slot_date <= ?", f.To)
	}

	var slots []model.CalendarSlot
	if err := q.Order("slot_date ASC, start_time ASC").Find(&slots).Error; err != nil {
		return nil, fmt.Errorf("list available slots: %w", err)
	}
	return slots, nil
}

// CountActiveAppointments counts non-cancelled appointments on a slot.
func (s *gormStore) CountActiveAppointments(ctx context.Context, slotID int64) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).
		Model(&model.Appointment{}).
		Where("calendar_slot_id = ? AND status <> ?", slotID, model.AppointmentCancelled).
		Count(&n).Error
	return n, err
}
