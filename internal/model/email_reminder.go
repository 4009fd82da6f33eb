package model

import "time"

// ReminderType is the kind of message an EmailReminder row records.
type ReminderType string

const (
	ReminderConfirmation ReminderType = "confirmation"
	Reminder24Hour       ReminderType = "24_hour"
	Reminder1Hour        ReminderType = "1_hour"
	ReminderCancellation ReminderType = "cancellation"
)

// DeliveryStatus is the outcome of one delivery attempt.
type DeliveryStatus string

const (
	DeliverySent   DeliveryStatus = "sent"
	DeliveryFailed DeliveryStatus = "failed"
)

// EmailReminder is the append-only audit log of notification attempts.
type EmailReminder struct {
	ID             int64          `gorm:"primaryKey" json:"id"`
	AppointmentID  int64          `gorm:"index;not null" json:"appointment_id"`
	ReminderType   ReminderType   `gorm:"size:20;not null" json:"reminder_type"`
	RecipientEmail string         `gorm:"size:255;not null" json:"recipient_email"`
	Subject        string         `gorm:"size:255;not null" json:"subject"`
	Status         DeliveryStatus `gorm:"size:20;not null" json:"status"`
	ErrorMessage   string         `json:"error_message,omitempty"`
	SentAt         *time.Time     `json:"sent_at,omitempty"`
	CreatedAt      time.Time      `gorm:"not null" json:"created_at"`
}
