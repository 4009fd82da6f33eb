package booking

import (
	"context"

	"github.com/rs/zerolog/log"

	"appointment-booking-backend/internal/apperr"
	"appointment-booking-backend/internal/authz"
	"appointment-booking-backend/internal/model"
	"appointment-booking-backend/internal/validate"
)

// CompleteAppointment marks a confirmed appointment as held. The capacity unit
// stays consumed.
func (s *Service) CompleteAppointment(ctx context.Context, caller authz.Caller, appointmentID int64, staffNotes string) (model.Appointment, error) {
	fields := map[string]any{"completed_at": s.now()}
	if staffNotes != "" {
		fields["staff_notes"] = staffNotes
	}
	return s.close(ctx, caller, appointmentID, model.AppointmentCompleted, fields)
}

// MarkNoShow records that the talent did not attend a confirmed appointment.
func (s *Service) MarkNoShow(ctx context.Context, caller authz.Caller, appointmentID int64) (model.Appointment, error) {
	return s.close(ctx, caller, appointmentID, model.AppointmentNoShow, nil)
}

func (s *Service) close(ctx context.Context, caller authz.Caller, id int64, to model.AppointmentStatus, fields map[string]any) (model.Appointment, error) {
	a, err := s.store.GetAppointment(ctx, id)
	if err != nil {
		return model.Appointment{}, err
	}
	if !authz.CanManageUniversity(caller, a.CalendarSlot.Agenda.UniversityID) {
		return model.Appointment{}, apperr.ErrForbidden.WithMessage("only staff of the hosting university can close appointments")
	}
	if a.Status.IsFinal() {
		return model.Appointment{}, apperr.ErrAlreadyFinal.WithMessage("appointment %d is already %s", a.ID, a.Status)
	}
	if err := s.store.TransitionAppointment(ctx, a.ID, model.AppointmentConfirmed, to, fields); err != nil {
		return model.Appointment{}, err
	}

	log.Info().Int64("appointment_id", a.ID).Str("status", string(to)).Msg("appointment closed")
	return s.store.GetAppointment(ctx, a.ID)
}

// FeedbackRequest is the input of SubmitFeedback.
type FeedbackRequest struct {
	Rating   int    `validate:"min=1,max=5"`
	Feedback string `validate:"max=5000"`
}

// SubmitFeedback stores the talent's rating of a completed appointment.
func (s *Service) SubmitFeedback(ctx context.Context, caller authz.Caller, appointmentID int64, req FeedbackRequest) (model.Appointment, error) {
	if err := validate.Struct(req); err != nil {
		return model.Appointment{}, err
	}

	a, err := s.store.GetAppointment(ctx, appointmentID)
	if err != nil {
		return model.Appointment{}, err
	}
	if !caller.IsTalent() || a.TalentID != caller.UserID {
		return model.Appointment{}, apperr.ErrForbidden.WithMessage("only the booking talent can leave feedback")
	}
	if a.Status != model.AppointmentCompleted {
		return model.Appointment{}, apperr.ErrConflict.WithMessage("feedback can only be left on completed appointments")
	}

	err = s.store.UpdateAppointment(ctx, a.ID, map[string]any{
		"rating":   req.Rating,
		"feedback": req.Feedback,
	})
	if err != nil {
		return model.Appointment{}, err
	}
	return s.store.GetAppointment(ctx, a.ID)
}
