package store

import (
	"time"

	"appointment-booking-backend/internal/model"
)

// SlotFilter selects bookable slots of one agenda. Dates are YYYY-MM-DD;
// Today is the lower bound applied regardless of From.
type SlotFilter struct {
	AgendaID int64
	From     string
	To       string
	Today    string
}

// AppointmentFilter narrows an appointment listing.
type AppointmentFilter struct {
	Status model.AppointmentStatus
	From   string
	To     string
}

// AgendaFilter narrows an agenda listing.
type AgendaFilter struct {
	UniversityID *int64
	ThemeID      *int64
	ActiveOnly   bool
}

// Cancellation carries the audit fields written when an appointment is cancelled.
type Cancellation struct {
	At time.Time
	By int64
}
