package model

import "time"

// SlotStatus is the booking state of a calendar slot.
type SlotStatus string

const (
	SlotAvailable   SlotStatus = "available"
	SlotFullyBooked SlotStatus = "fully_booked"
	SlotCancelled   SlotStatus = "cancelled"
	SlotBlocked     SlotStatus = "blocked"
)

// MeetingType is how an appointment takes place.
type MeetingType string

const (
	MeetingInPerson MeetingType = "in_person"
	MeetingOnline   MeetingType = "online"
	MeetingPhone    MeetingType = "phone"
)

// CalendarSlot is one bookable time window with a capacity.
//
// SlotDate is YYYY-MM-DD and StartTime/EndTime are HH:MM in the configured
// booking timezone; both sort lexicographically.
// CurrentBookings always equals the number of non-cancelled appointments
// referencing the slot and is only changed by the store's conditional updates.
type CalendarSlot struct {
	ID              int64       `gorm:"primaryKey" json:"id"`
	AgendaID        int64       `gorm:"uniqueIndex:idx_slot_agenda_staff_start;not null" json:"agenda_id"`
	StaffID         int64       `gorm:"uniqueIndex:idx_slot_agenda_staff_start;index:idx_slot_staff_date;not null" json:"staff_id"`
	SlotDate        string      `gorm:"uniqueIndex:idx_slot_agenda_staff_start;index:idx_slot_staff_date;size:10;not null" json:"slot_date"`
	StartTime       string      `gorm:"uniqueIndex:idx_slot_agenda_staff_start;size:5;not null" json:"start_time"`
	EndTime         string      `gorm:"size:5;not null" json:"end_time"`
	MaxCapacity     int         `gorm:"not null" json:"max_capacity"`
	CurrentBookings int         `gorm:"not null" json:"current_bookings"`
	Status          SlotStatus  `gorm:"size:20;not null;index" json:"status"`
	Notes           string      `json:"notes,omitempty"`
	Location        string      `gorm:"size:255" json:"location,omitempty"`
	MeetingType     MeetingType `gorm:"size:20;not null" json:"meeting_type"`
	MeetingLink     string      `json:"meeting_link,omitempty"`
	CreatedAt       time.Time   `gorm:"not null" json:"created_at"`
	UpdatedAt       time.Time   `gorm:"not null" json:"updated_at"`

	Agenda *Agenda `json:"agenda,omitempty"`
	Staff  *User   `json:"staff,omitempty"`
}

// IsBookable reports whether another unit can be reserved on the slot.
func (s CalendarSlot) IsBookable() bool {
	return s.Status == SlotAvailable && s.CurrentBookings < s.MaxCapacity
}

// RemainingCapacity returns the number of free units.
func (s CalendarSlot) RemainingCapacity() int {
	if s.CurrentBookings >= s.MaxCapacity {
		return 0
	}
	return s.MaxCapacity - s.CurrentBookings
}
