package model

import "time"

// AppointmentStatus is the lifecycle state of an appointment.
type AppointmentStatus string

const (
	AppointmentPending   AppointmentStatus = "pending"
	AppointmentConfirmed AppointmentStatus = "confirmed"
	AppointmentCancelled AppointmentStatus = "cancelled"
	AppointmentCompleted AppointmentStatus = "completed"
	AppointmentNoShow    AppointmentStatus = "no_show"
)

// FinalAppointmentStatuses are the states no transition leaves.
var FinalAppointmentStatuses = []AppointmentStatus{
	AppointmentCancelled,
	AppointmentCompleted,
	AppointmentNoShow,
}

// IsFinal reports whether s is terminal.
func (s AppointmentStatus) IsFinal() bool {
	for _, f := range FinalAppointmentStatuses {
		if s == f {
			return true
		}
	}
	return false
}

// Appointment is one talent's booking against one unit of a slot's capacity.
// Rows are never deleted; cancellation is a status change.
type Appointment struct {
	ID               int64             `gorm:"primaryKey" json:"id"`
	BookingReference string            `gorm:"uniqueIndex;size:36;not null" json:"booking_reference"`
	CalendarSlotID   int64             `gorm:"index;not null" json:"calendar_slot_id"`
	TalentID         int64             `gorm:"index;not null" json:"talent_id"`
	Status           AppointmentStatus `gorm:"size:20;not null;index" json:"status"`
	TalentNotes      string            `json:"talent_notes,omitempty"`
	StaffNotes       string            `json:"staff_notes,omitempty"`
	Rating           *int              `json:"rating,omitempty"`
	Feedback         string            `json:"feedback,omitempty"`
	ConfirmationSent bool              `gorm:"not null" json:"confirmation_sent"`
	ReminderSent24h  bool              `gorm:"column:reminder_sent_24h;not null" json:"reminder_sent_24h"`
	ReminderSent1h   bool              `gorm:"column:reminder_sent_1h;not null" json:"reminder_sent_1h"`
	BookedAt         time.Time         `gorm:"not null" json:"booked_at"`
	CancelledAt      *time.Time        `json:"cancelled_at,omitempty"`
	CancelledByID    *int64            `json:"cancelled_by_id,omitempty"`
	CompletedAt      *time.Time        `json:"completed_at,omitempty"`
	UpdatedAt        time.Time         `gorm:"not null" json:"updated_at"`

	CalendarSlot *CalendarSlot `json:"calendar_slot,omitempty"`
	Talent       *User         `json:"talent,omitempty"`
}
