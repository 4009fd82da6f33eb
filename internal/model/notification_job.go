package model

import "time"

// NotificationKind identifies which message an outbox job delivers.
type NotificationKind string

const (
	NotifyConfirmation NotificationKind = "confirmation"
	NotifyCancellation NotificationKind = "cancellation"
	NotifyReminder24h  NotificationKind = "reminder_24h"
	NotifyReminder1h   NotificationKind = "reminder_1h"
)

// ReminderType maps a notification kind onto its audit log type.
func (k NotificationKind) ReminderType() ReminderType {
	switch k {
	case NotifyConfirmation:
		return ReminderConfirmation
	case NotifyCancellation:
		return ReminderCancellation
	case NotifyReminder24h:
		return Reminder24Hour
	case NotifyReminder1h:
		return Reminder1Hour
	}
	return ReminderType(k)
}

// JobStatus is the processing state of an outbox job.
type JobStatus string

const (
	JobPending    JobStatus = "pending"
	JobProcessing JobStatus = "processing"
	JobSent       JobStatus = "sent"
	JobFailed     JobStatus = "failed"
	JobSkipped    JobStatus = "skipped"
)

// NotificationJob is a durable outbox entry. IdempotencyKey is
// "<appointment_id>:<kind>" so a message is enqueued at most once.
type NotificationJob struct {
	ID             int64            `gorm:"primaryKey"`
	AppointmentID  int64            `gorm:"index;not null"`
	Kind           NotificationKind `gorm:"size:20;not null"`
	IdempotencyKey string           `gorm:"uniqueIndex;size:64;not null"`
	Status         JobStatus        `gorm:"size:20;not null;index:idx_job_due"`
	Attempts       int              `gorm:"not null"`
	NextAttemptAt  time.Time        `gorm:"not null;index:idx_job_due"`
	LockedUntil    *time.Time
	LastError      string
	ProcessedAt    *time.Time
	CreatedAt      time.Time `gorm:"not null"`
	UpdatedAt      time.Time `gorm:"not null"`
}
