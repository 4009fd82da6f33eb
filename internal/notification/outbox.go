package notification

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"appointment-booking-backend/internal/model"
)

// IdempotencyKey identifies one message about one appointment.
func IdempotencyKey(appointmentID int64, kind model.NotificationKind) string {
	return fmt.Sprintf("%d:%s", appointmentID, kind)
}

// Outbox records notifications durably and wakes the worker pool. A given
// (appointment, kind) pair is enqueued at most once.
type Outbox struct {
	db     *gorm.DB
	signal func()
	now    func() time.Time
}

// NewOutbox creates an outbox feeding pool. pool may be nil, in which case
// jobs wait for a worker's next poll.
func NewOutbox(db *gorm.DB, pool *WorkerPool) *Outbox {
	o := &Outbox{db: db, signal: func() {}, now: time.Now}
	if pool != nil {
		o.signal = pool.Signal
	}
	return o
}

// Notify enqueues a notification. Failures are logged and never returned:
// the change the notification describes has already committed.
func (o *Outbox) Notify(ctx context.Context, kind model.NotificationKind, appointmentID int64) {
	job := model.NotificationJob{
		AppointmentID:  appointmentID,
		Kind:           kind,
		IdempotencyKey: IdempotencyKey(appointmentID, kind),
		Status:         model.JobPending,
		NextAttemptAt:  o.now(),
	}
	res := o.db.WithContext(context.WithoutCancel(ctx)).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "idempotency_key"}}, DoNothing: true}).
		Create(&job)
	if res.Error != nil {
		log.Error().Err(res.Error).
			Int64("appointment_id", appointmentID).
			Str("kind", string(kind)).
			Msg("failed to enqueue notification")
		return
	}
	if res.RowsAffected == 0 {
		log.Debug().Str("key", job.IdempotencyKey).Msg("notification already enqueued")
		return
	}
	o.signal()
}
