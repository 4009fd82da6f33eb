// Package booking implements the slot booking and cancellation protocol and
// the later lifecycle of an appointment.
package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"appointment-booking-backend/internal/apperr"
	"appointment-booking-backend/internal/authz"
	"appointment-booking-backend/internal/model"
	"appointment-booking-backend/internal/parse"
	"appointment-booking-backend/internal/store"
	"appointment-booking-backend/internal/validate"
)

// Notifier accepts notifications for delivery after a change has committed.
// Implementations must not block and never fail the caller.
type Notifier interface {
	Notify(ctx context.Context, kind model.NotificationKind, appointmentID int64)
}

// Service books, cancels and closes appointments.
type Service struct {
	store       store.Store
	notifier    Notifier
	eligibility EligibilityChecker
	loc         *time.Location
	now         func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithLocation sets the timezone slot dates and times are interpreted in.
func WithLocation(loc *time.Location) Option {
	return func(s *Service) { s.loc = loc }
}

// WithEligibility replaces the default agenda eligibility rules.
func WithEligibility(e EligibilityChecker) Option {
	return func(s *Service) { s.eligibility = e }
}

// NewService creates a booking service.
func NewService(s store.Store, n Notifier, opts ...Option) *Service {
	svc := &Service{
		store:       s,
		notifier:    n,
		eligibility: AgendaEligibility{},
		loc:         time.UTC,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// BookRequest is the input of BookSlot.
type BookRequest struct {
	SlotID int64  `validate:"gt=0"`
	Notes  string `validate:"max=2000"`
}

// BookSlot reserves one unit of a slot for the calling talent and creates a
// confirmed appointment. Checks run in this order: slot exists, slot open,
// capacity left, booking deadline, caller eligibility. The reservation and the
// insert commit together; the confirmation is queued after commit.
func (s *Service) BookSlot(ctx context.Context, caller authz.Caller, req BookRequest) (model.Appointment, error) {
	if err := validate.Struct(req); err != nil {
		return model.Appointment{}, err
	}

	var appt model.Appointment
	err := s.store.Transaction(ctx, func(tx store.Store) error {
		slot, err := tx.GetSlot(ctx, req.SlotID)
		if err != nil {
			return err
		}
		if err := checkBookable(slot); err != nil {
			return err
		}

		start, err := s.slotStart(slot)
		if err != nil {
			return err
		}
		now := s.now()
		deadline := start.Add(-time.Duration(slot.Agenda.BookingDeadlineHours) * time.Hour)
		if now.After(deadline) {
			return apperr.ErrBookingDeadlinePassed.WithMessage(
				"bookings for this slot closed at %s", deadline.Format(time.RFC3339))
		}

		if !caller.IsTalent() {
			return apperr.ErrForbidden.WithMessage("only talents can book appointments")
		}
		talent, err := tx.GetUser(ctx, caller.UserID)
		if errors.Is(err, apperr.ErrNotFound) {
			return apperr.ErrForbidden.WithMessage("unknown talent %d", caller.UserID)
		}
		if err != nil {
			return err
		}
		if err := s.eligibility.Check(ctx, talent, *slot.Agenda); err != nil {
			return err
		}

		reserved, err := tx.ReserveUnit(ctx, slot.ID)
		if err != nil {
			return err
		}

		appt = model.Appointment{
			BookingReference: uuid.NewString(),
			CalendarSlotID:   slot.ID,
			TalentID:         talent.ID,
			Status:           model.AppointmentConfirmed,
			TalentNotes:      req.Notes,
			BookedAt:         now,
		}
		if err := tx.CreateAppointment(ctx, &appt); err != nil {
			return err
		}
		reserved.Agenda = slot.Agenda
		appt.CalendarSlot = &reserved
		return nil
	})
	if err != nil {
		return model.Appointment{}, err
	}

	log.Info().
		Int64("appointment_id", appt.ID).
		Int64("slot_id", appt.CalendarSlotID).
		Int64("talent_id", appt.TalentID).
		Str("booking_reference", appt.BookingReference).
		Msg("appointment booked")
	s.notifier.Notify(ctx, model.NotifyConfirmation, appt.ID)
	return appt, nil
}

// checkBookable applies the status and capacity checks. A fully booked slot
// reports SlotFull rather than SlotNotAvailable.
func checkBookable(slot model.CalendarSlot) error {
	switch {
	case slot.Status == model.SlotFullyBooked:
		return apperr.ErrSlotFull
	case slot.Status != model.SlotAvailable:
		return apperr.ErrSlotNotAvailable.WithMessage("slot %d is %s", slot.ID, slot.Status)
	case slot.CurrentBookings >= slot.MaxCapacity:
		return apperr.ErrSlotFull
	}
	return nil
}

// CancelAppointment cancels an appointment and returns its capacity unit.
// Checks run in this order: appointment exists, caller may access it, it is
// not final, cancellation deadline. The deadline applies to every role.
func (s *Service) CancelAppointment(ctx context.Context, caller authz.Caller, appointmentID int64) (model.Appointment, error) {
	var appt model.Appointment
	err := s.store.Transaction(ctx, func(tx store.Store) error {
		a, err := tx.GetAppointment(ctx, appointmentID)
		if err != nil {
			return err
		}
		if err := s.authorize(caller, a); err != nil {
			return err
		}
		if a.Status.IsFinal() {
			return apperr.ErrAlreadyFinal.WithMessage("appointment %d is already %s", a.ID, a.Status)
		}

		start, err := s.slotStart(*a.CalendarSlot)
		if err != nil {
			return err
		}
		now := s.now()
		deadline := start.Add(-time.Duration(a.CalendarSlot.Agenda.CancellationDeadlineHours) * time.Hour)
		if now.After(deadline) {
			return apperr.ErrCancellationDeadlinePassed.WithMessage(
				"cancellations for this appointment closed at %s", deadline.Format(time.RFC3339))
		}

		if err := tx.MarkCancelled(ctx, a.ID, store.Cancellation{At: now, By: caller.UserID}); err != nil {
			return err
		}
		released, err := tx.ReleaseUnit(ctx, a.CalendarSlotID)
		if err != nil {
			return err
		}

		by := caller.UserID
		a.Status = model.AppointmentCancelled
		a.CancelledAt = &now
		a.CancelledByID = &by
		released.Agenda = a.CalendarSlot.Agenda
		a.CalendarSlot = &released
		appt = a
		return nil
	})
	if err != nil {
		return model.Appointment{}, err
	}

	log.Info().
		Int64("appointment_id", appt.ID).
		Int64("slot_id", appt.CalendarSlotID).
		Int64("cancelled_by", caller.UserID).
		Msg("appointment cancelled")
	s.notifier.Notify(ctx, model.NotifyCancellation, appt.ID)
	return appt, nil
}

// GetAppointment returns one appointment the caller may see.
func (s *Service) GetAppointment(ctx context.Context, caller authz.Caller, appointmentID int64) (model.Appointment, error) {
	a, err := s.store.GetAppointment(ctx, appointmentID)
	if err != nil {
		return model.Appointment{}, err
	}
	if err := s.authorize(caller, a); err != nil {
		return model.Appointment{}, err
	}
	return a, nil
}

// ListAppointments lists the appointments visible to the caller.
func (s *Service) ListAppointments(ctx context.Context, caller authz.Caller, f store.AppointmentFilter) ([]model.Appointment, error) {
	return s.store.ListAppointments(ctx, caller, f)
}

func (s *Service) authorize(caller authz.Caller, a model.Appointment) error {
	target := authz.AppointmentTarget{TalentID: a.TalentID}
	if a.CalendarSlot != nil && a.CalendarSlot.Agenda != nil {
		target.UniversityID = a.CalendarSlot.Agenda.UniversityID
	}
	if !authz.CanAccessAppointment(caller, target) {
		return apperr.ErrForbidden.WithMessage("appointment %d is outside your scope", a.ID)
	}
	return nil
}

func (s *Service) slotStart(slot model.CalendarSlot) (time.Time, error) {
	start, err := parse.SlotStart(slot.SlotDate, slot.StartTime, s.loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("slot %d has a malformed start: %w", slot.ID, err)
	}
	return start, nil
}
