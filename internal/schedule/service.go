// Package schedule manages agendas and the slots staff publish on them.
package schedule

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"appointment-booking-backend/internal/apperr"
	"appointment-booking-backend/internal/authz"
	"appointment-booking-backend/internal/model"
	"appointment-booking-backend/internal/parse"
	"appointment-booking-backend/internal/store"
	"appointment-booking-backend/internal/validate"
)

const defaultDeadlineHours = 24

// Service publishes agendas and slots and answers availability queries.
type Service struct {
	store store.Store
	loc   *time.Location
	now   func() time.Time
}

// NewService creates a schedule service. loc is the booking timezone.
func NewService(s store.Store, loc *time.Location, now func() time.Time) *Service {
	if loc == nil {
		loc = time.UTC
	}
	if now == nil {
		now = time.Now
	}
	return &Service{store: s, loc: loc, now: now}
}

// CriterionInput describes one eligibility rule of a new agenda.
type CriterionInput struct {
	CriteriaType  model.CriteriaType `json:"criteria_type" validate:"oneof=university year_of_study field_of_study gpa_minimum"`
	CriteriaValue string             `json:"criteria_value" validate:"required,max=255"`
	IsRequired    bool               `json:"is_required"`
}

// AgendaInput is the payload of CreateAgenda.
type AgendaInput struct {
	UniversityID              int64            `json:"university_id" validate:"gt=0"`
	ThemeID                   int64            `json:"theme_id" validate:"gt=0"`
	Name                      string           `json:"name" validate:"required,max=200"`
	Description               string           `json:"description"`
	SlotDurationMinutes       int              `json:"slot_duration_minutes" validate:"min=1,max=480"`
	MaxCapacityPerSlot        int              `json:"max_capacity_per_slot" validate:"min=1"`
	StartDate                 string           `json:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate                   string           `json:"end_date" validate:"required,datetime=2006-01-02"`
	BookingDeadlineHours      *int             `json:"booking_deadline_hours" validate:"omitempty,min=0"`
	CancellationDeadlineHours *int             `json:"cancellation_deadline_hours" validate:"omitempty,min=0"`
	Eligibility               []CriterionInput `json:"eligibility" validate:"dive"`
}

// CreateAgenda publishes a new agenda for a university the caller manages.
func (s *Service) CreateAgenda(ctx context.Context, caller authz.Caller, in AgendaInput) (model.Agenda, error) {
	if err := validate.Struct(in); err != nil {
		return model.Agenda{}, err
	}
	if !authz.CanManageUniversity(caller, in.UniversityID) {
		return model.Agenda{}, apperr.ErrForbidden.WithMessage("you cannot publish agendas for university %d", in.UniversityID)
	}
	if in.EndDate < in.StartDate {
		return model.Agenda{}, apperr.Validation("end_date must not be before start_date")
	}
	theme, err := s.store.GetTheme(ctx, in.ThemeID)
	if errors.Is(err, apperr.ErrNotFound) || (err == nil && !theme.IsActive) {
		return model.Agenda{}, apperr.Validation("theme %d does not exist or is inactive", in.ThemeID)
	}
	if err != nil {
		return model.Agenda{}, err
	}

	agenda := model.Agenda{
		UniversityID:              in.UniversityID,
		CreatedByID:               caller.UserID,
		ThemeID:                   in.ThemeID,
		Name:                      in.Name,
		Description:               in.Description,
		SlotDurationMinutes:       in.SlotDurationMinutes,
		MaxCapacityPerSlot:        in.MaxCapacityPerSlot,
		StartDate:                 in.StartDate,
		EndDate:                   in.EndDate,
		BookingDeadlineHours:      hoursOrDefault(in.BookingDeadlineHours),
		CancellationDeadlineHours: hoursOrDefault(in.CancellationDeadlineHours),
		IsActive:                  true,
	}
	for _, c := range in.Eligibility {
		agenda.Eligibility = append(agenda.Eligibility, model.EligibilityCriterion{
			CriteriaType:  c.CriteriaType,
			CriteriaValue: c.CriteriaValue,
			IsRequired:    c.IsRequired,
		})
	}
	if err := s.store.CreateAgenda(ctx, &agenda); err != nil {
		return model.Agenda{}, err
	}
	agenda.Theme = &theme

	log.Info().Int64("agenda_id", agenda.ID).Int64("university_id", agenda.UniversityID).Msg("agenda created")
	return agenda, nil
}

func hoursOrDefault(h *int) int {
	if h == nil {
		return defaultDeadlineHours
	}
	return *h
}

// SlotInput is the payload of CreateSlot. StaffID defaults to the caller.
type SlotInput struct {
	AgendaID    int64             `json:"agenda_id" validate:"gt=0"`
	StaffID     int64             `json:"staff_id" validate:"gte=0"`
	SlotDate    string            `json:"slot_date" validate:"required,datetime=2006-01-02"`
	StartTime   string            `json:"start_time" validate:"required"`
	EndTime     string            `json:"end_time" validate:"required"`
	MaxCapacity *int              `json:"max_capacity" validate:"omitempty,min=1"`
	Location    string            `json:"location" validate:"max=255"`
	MeetingType model.MeetingType `json:"meeting_type" validate:"omitempty,oneof=in_person online phone"`
	MeetingLink string            `json:"meeting_link" validate:"omitempty,url"`
	Notes       string            `json:"notes"`
}

// CreateSlot publishes a slot on an agenda of a university the caller manages.
func (s *Service) CreateSlot(ctx context.Context, caller authz.Caller, in SlotInput) (model.CalendarSlot, error) {
	if err := validate.Struct(in); err != nil {
		return model.CalendarSlot{}, err
	}
	start, err := parse.NormalizeClock(in.StartTime)
	if err != nil {
		return model.CalendarSlot{}, apperr.Validation("start_time: %v", err)
	}
	end, err := parse.NormalizeClock(in.EndTime)
	if err != nil {
		return model.CalendarSlot{}, apperr.Validation("end_time: %v", err)
	}
	if end <= start {
		return model.CalendarSlot{}, apperr.Validation("end_time must be after start_time")
	}

	agenda, err := s.store.GetAgenda(ctx, in.AgendaID)
	if err != nil {
		return model.CalendarSlot{}, err
	}
	if !authz.CanManageUniversity(caller, agenda.UniversityID) {
		return model.CalendarSlot{}, apperr.ErrForbidden.WithMessage("you cannot publish slots on agenda %d", agenda.ID)
	}
	if in.SlotDate < agenda.StartDate || in.SlotDate > agenda.EndDate {
		return model.CalendarSlot{}, apperr.Validation("slot_date must fall within %s and %s", agenda.StartDate, agenda.EndDate)
	}

	staffID := in.StaffID
	if staffID == 0 {
		staffID = caller.UserID
	}
	staff, err := s.store.GetUser(ctx, staffID)
	if errors.Is(err, apperr.ErrNotFound) {
		return model.CalendarSlot{}, apperr.Validation("staff %d does not exist", staffID)
	}
	if err != nil {
		return model.CalendarSlot{}, err
	}
	if staff.UserType != model.UserTypeUniversityStaff && staff.UserType != model.UserTypeAdmin {
		return model.CalendarSlot{}, apperr.Validation("user %d is not a staff member", staffID)
	}
	if staff.UserType == model.UserTypeUniversityStaff && (staff.UniversityID == nil || *staff.UniversityID != agenda.UniversityID) {
		return model.CalendarSlot{}, apperr.Validation("staff %d does not belong to university %d", staffID, agenda.UniversityID)
	}

	capacity := agenda.MaxCapacityPerSlot
	if in.MaxCapacity != nil {
		capacity = *in.MaxCapacity
	}
	meeting := in.MeetingType
	if meeting == "" {
		meeting = model.MeetingInPerson
	}

	slot := model.CalendarSlot{
		AgendaID:    agenda.ID,
		StaffID:     staffID,
		SlotDate:    in.SlotDate,
		StartTime:   start,
		EndTime:     end,
		MaxCapacity: capacity,
		Status:      model.SlotAvailable,
		Location:    in.Location,
		MeetingType: meeting,
		MeetingLink: in.MeetingLink,
		Notes:       in.Notes,
	}
	err = s.store.Transaction(ctx, func(tx store.Store) error {
		return tx.CreateSlot(ctx, &slot)
	})
	if err != nil {
		return model.CalendarSlot{}, err
	}

	log.Info().
		Int64("slot_id", slot.ID).
		Int64("agenda_id", slot.AgendaID).
		Str("slot_date", slot.SlotDate).
		Str("start_time", slot.StartTime).
		Msg("slot published")
	return slot, nil
}

// SetSlotStatus blocks, cancels or re-opens a slot. Existing appointments
// keep their status and capacity units.
func (s *Service) SetSlotStatus(ctx context.Context, caller authz.Caller, slotID int64, status model.SlotStatus) (model.CalendarSlot, error) {
	switch status {
	case model.SlotAvailable, model.SlotBlocked, model.SlotCancelled:
	default:
		return model.CalendarSlot{}, apperr.Validation("status must be one of available, blocked, cancelled")
	}

	slot, err := s.store.GetSlot(ctx, slotID)
	if err != nil {
		return model.CalendarSlot{}, err
	}
	if !authz.CanManageUniversity(caller, slot.Agenda.UniversityID) {
		return model.CalendarSlot{}, apperr.ErrForbidden.WithMessage("you cannot manage slot %d", slotID)
	}

	updated, err := s.store.SetSlotStatus(ctx, slotID, status)
	if err != nil {
		return model.CalendarSlot{}, err
	}
	log.Info().Int64("slot_id", slotID).Str("status", string(updated.Status)).Msg("slot status changed")
	return updated, nil
}

// AvailabilityQuery selects bookable slots. Dates are optional YYYY-MM-DD.
type AvailabilityQuery struct {
	AgendaID  int64  `form:"agenda_id" validate:"gt=0"`
	StartDate string `form:"start_date" validate:"omitempty,datetime=2006-01-02"`
	EndDate   string `form:"end_date" validate:"omitempty,datetime=2006-01-02"`
}

// AvailableSlots lists open slots with capacity left, from today onwards,
// ordered by date and start time.
func (s *Service) AvailableSlots(ctx context.Context, q AvailabilityQuery) ([]model.CalendarSlot, error) {
	if err := validate.Struct(q); err != nil {
		return nil, err
	}
	return s.store.AvailableSlots(ctx, store.SlotFilter{
		AgendaID: q.AgendaID,
		From:     q.StartDate,
		To:       q.EndDate,
		Today:    s.now().In(s.loc).Format(parse.DateLayout),
	})
}

// ListAgendas lists agendas; inactive ones are only shown to staff and admins.
func (s *Service) ListAgendas(ctx context.Context, caller authz.Caller, universityID, themeID string) ([]model.Agenda, error) {
	f := store.AgendaFilter{ActiveOnly: !caller.IsStaff() && !caller.IsAdmin()}
	if universityID != "" {
		id, err := strconv.ParseInt(universityID, 10, 64)
		if err != nil {
			return nil, apperr.Validation("university_id must be an integer")
		}
		f.UniversityID = &id
	}
	if themeID != "" {
		id, err := strconv.ParseInt(themeID, 10, 64)
		if err != nil {
			return nil, apperr.Validation("theme_id must be an integer")
		}
		f.ThemeID = &id
	}
	return s.store.ListAgendas(ctx, f)
}

// ListThemes lists active appointment themes.
func (s *Service) ListThemes(ctx context.Context) ([]model.AppointmentTheme, error) {
	return s.store.ListThemes(ctx)
}
