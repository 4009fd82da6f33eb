package notification

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"appointment-booking-backend/internal/model"
)

// Options configures a WorkerPool. Zero values fall back to defaults.
type Options struct {
	Size         int
	PollInterval time.Duration
	MaxAttempts  int
	Backoff      time.Duration
	Lease        time.Duration
	WebPush      *webpush.Options
}

// WorkerPool delivers outbox jobs. Workers wake on Signal or on every poll
// tick, claim due jobs one at a time with a lease, and record each attempt.
type WorkerPool struct {
	size        int
	wake        chan struct{}
	db          *gorm.DB
	webpush     *webpush.Options
	push        PushSender
	mail        EmailSender
	poll        time.Duration
	maxAttempts int
	backoff     time.Duration
	lease       time.Duration
	now         func() time.Time
}

// NewWorkerPool creates a new worker pool.
func NewWorkerPool(db *gorm.DB, mail EmailSender, opts Options) *WorkerPool {
	wp := &WorkerPool{
		size:        opts.Size,
		db:          db,
		webpush:     opts.WebPush,
		push:        &WebPushSender{},
		mail:        mail,
		poll:        opts.PollInterval,
		maxAttempts: opts.MaxAttempts,
		backoff:     opts.Backoff,
		lease:       opts.Lease,
		now:         time.Now,
	}
	if wp.size <= 0 {
		wp.size = 1
	}
	if wp.poll <= 0 {
		wp.poll = 10 * time.Second
	}
	if wp.maxAttempts <= 0 {
		wp.maxAttempts = 5
	}
	if wp.backoff <= 0 {
		wp.backoff = 30 * time.Second
	}
	if wp.lease <= 0 {
		wp.lease = time.Minute
	}
	if wp.mail == nil {
		wp.mail = LogSender{}
	}
	wp.wake = make(chan struct{}, wp.size)
	return wp
}

// Start launches the worker goroutines.
func (wp *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < wp.size; i++ {
		go wp.worker(ctx, i)
	}
}

// worker is the actual worker goroutine.
func (wp *WorkerPool) worker(ctx context.Context, id int) {
	log.Debug().Int("worker", id).Msg("notification worker started")
	ticker := time.NewTicker(wp.poll)
	defer ticker.Stop()
	for {
		select {
		case <-wp.wake:
			wp.RunOnce(ctx)
		case <-ticker.C:
			wp.RunOnce(ctx)
		case <-ctx.Done():
			log.Debug().Int("worker", id).Msg("notification worker shutting down")
			return
		}
	}
}

// Signal wakes one idle worker. It never blocks.
func (wp *WorkerPool) Signal() {
	select {
	case wp.wake <- struct{}{}:
	default:
	}
}

// RunOnce processes due jobs until none are left and returns how many it handled.
func (wp *WorkerPool) RunOnce(ctx context.Context) int {
	processed := 0
	for ctx.Err() == nil {
		job, err := wp.claim(ctx)
		if err != nil {
			log.Error().Err(err).Msg("failed to claim notification job")
			return processed
		}
		if job == nil {
			return processed
		}
		wp.process(ctx, job)
		processed++
	}
	return processed
}

// claim leases the oldest due job. A job is due when it is pending and its
// next attempt time has come, or when a previous worker's lease expired.
func (wp *WorkerPool) claim(ctx context.Context) (*model.NotificationJob, error) {
	for {
		now := wp.now()
		var job model.NotificationJob
		res := wp.db.WithContext(ctx).
			Where("(status = ? AND next_attempt_at <= ?) OR (status = ? AND locked_until < ?)",
				model.JobPending, now, model.JobProcessing, now).
			Order("next_attempt_at ASC, id ASC").
			Limit(1).
			Find(&job)
		if res.Error != nil {
			return nil, res.Error
		}
		if res.RowsAffected == 0 {
			return nil, nil
		}

		lockedUntil := now.Add(wp.lease)
		upd := wp.db.WithContext(ctx).
			Model(&model.NotificationJob{}).
			Where("id = ? AND status = ? AND attempts = ?", job.ID, job.Status, job.Attempts).
			Updates(map[string]any{
				"status":       model.JobProcessing,
				"locked_until": lockedUntil,
				"attempts":     gorm.Expr("attempts + 1"),
			})
		if upd.Error != nil {
			return nil, upd.Error
		}
		if upd.RowsAffected == 1 {
			job.Status = model.JobProcessing
			job.LockedUntil = &lockedUntil
			job.Attempts++
			return &job, nil
		}
		// another worker took it; look again
	}
}

func (wp *WorkerPool) process(ctx context.Context, job *model.NotificationJob) {
	logger := log.With().
		Int64("job_id", job.ID).
		Int64("appointment_id", job.AppointmentID).
		Str("kind", string(job.Kind)).
		Int("attempt", job.Attempts).
		Logger()

	appt, err := wp.loadAppointment(ctx, job.AppointmentID)
	if err != nil {
		logger.Error().Err(err).Msg("cannot load appointment for notification")
		wp.finish(ctx, job, nil, err, errors.Is(err, gorm.ErrRecordNotFound))
		return
	}
	if job.Kind != model.NotifyCancellation && appt.Status != model.AppointmentConfirmed {
		logger.Info().Str("status", string(appt.Status)).Msg("appointment no longer confirmed, skipping notification")
		wp.skip(ctx, job, "appointment is "+string(appt.Status))
		return
	}
	snap := snapshotOf(appt)
	msg := Render(job.Kind, snap)

	if job.Attempts == 1 {
		wp.sendPush(ctx, job, snap, msg)
	}

	sendErr := wp.mail.Send(snap.TalentEmail, msg.Subject, msg.Body)
	now := wp.now()
	audit := &model.EmailReminder{
		AppointmentID:  job.AppointmentID,
		ReminderType:   job.Kind.ReminderType(),
		RecipientEmail: snap.TalentEmail,
		Subject:        msg.Subject,
		Status:         model.DeliverySent,
		SentAt:         &now,
	}
	if sendErr != nil {
		audit.Status = model.DeliveryFailed
		audit.ErrorMessage = sendErr.Error()
		audit.SentAt = nil
		logger.Warn().Err(sendErr).Msg("email delivery failed")
	} else {
		logger.Info().Str("to", snap.TalentEmail).Msg("notification delivered")
	}
	wp.finish(ctx, job, audit, sendErr, false)
}

// finish records the attempt. On success the appointment flag is set and the
// job is closed; on failure it is rescheduled with exponential backoff until
// the attempt budget is spent.
func (wp *WorkerPool) finish(ctx context.Context, job *model.NotificationJob, audit *model.EmailReminder, sendErr error, permanent bool) {
	now := wp.now()
	err := wp.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if audit != nil {
			if err := tx.Create(audit).Error; err != nil {
				return fmt.Errorf("write audit row: %w", err)
			}
		}

		updates := map[string]any{"locked_until": nil}
		switch {
		case sendErr == nil:
			if col := flagColumn(job.Kind); col != "" {
				if err := tx.Model(&model.Appointment{}).Where("id = ?", job.AppointmentID).Update(col, true).Error; err != nil {
					return fmt.Errorf("set %s: %w", col, err)
				}
			}
			updates["status"] = model.JobSent
			updates["processed_at"] = now
			updates["last_error"] = ""
		case permanent || job.Attempts >= wp.maxAttempts:
			updates["status"] = model.JobFailed
			updates["processed_at"] = now
			updates["last_error"] = sendErr.Error()
		default:
			updates["status"] = model.JobPending
			updates["next_attempt_at"] = now.Add(retryDelay(wp.backoff, job.Attempts))
			updates["last_error"] = sendErr.Error()
		}
		return tx.Model(&model.NotificationJob{}).Where("id = ?", job.ID).Updates(updates).Error
	})
	if err != nil {
		log.Error().Err(err).Int64("job_id", job.ID).Msg("failed to record notification attempt")
	}
}

// skip closes a job whose message no longer applies. No audit row is written
// and no appointment flag is set.
func (wp *WorkerPool) skip(ctx context.Context, job *model.NotificationJob, reason string) {
	err := wp.db.WithContext(ctx).
		Model(&model.NotificationJob{}).
		Where("id = ?", job.ID).
		Updates(map[string]any{
			"status":       model.JobSkipped,
			"locked_until": nil,
			"processed_at": wp.now(),
			"last_error":   reason,
		}).Error
	if err != nil {
		log.Error().Err(err).Int64("job_id", job.ID).Msg("failed to skip notification job")
	}
}

// maxRetryDelay caps the exponential backoff between attempts.
const maxRetryDelay = time.Hour

// retryDelay doubles base for every failed attempt, up to maxRetryDelay.
func retryDelay(base time.Duration, attempts int) time.Duration {
	d := base
	for i := 1; i < attempts && d < maxRetryDelay; i++ {
		d *= 2
	}
	if d > maxRetryDelay {
		d = maxRetryDelay
	}
	return d
}

func flagColumn(kind model.NotificationKind) string {
	switch kind {
	case model.NotifyConfirmation:
		return "confirmation_sent"
	case model.NotifyReminder24h:
		return "reminder_sent_24h"
	case model.NotifyReminder1h:
		return "reminder_sent_1h"
	}
	return ""
}

func (wp *WorkerPool) loadAppointment(ctx context.Context, id int64) (model.Appointment, error) {
	var a model.Appointment
	err := wp.db.WithContext(ctx).
		Preload("Talent").
		Preload("CalendarSlot.Staff").
		Preload("CalendarSlot.Agenda.University").
		Preload("CalendarSlot.Agenda.Theme").
		First(&a, id).Error
	return a, err
}

// sendPush delivers the short form of msg to every browser the talent
// subscribed. Push is best effort and never fails the job.
func (wp *WorkerPool) sendPush(ctx context.Context, job *model.NotificationJob, snap Snapshot, msg Message) {
	if wp.webpush == nil || wp.webpush.VAPIDPrivateKey == "" {
		return
	}

	var subscriptions []model.PushSubscription
	if err := wp.db.WithContext(ctx).Where("user_id = ?", snap.TalentID).Find(&subscriptions).Error; err != nil {
		log.Error().Err(err).Int64("user_id", snap.TalentID).Msg("error fetching push subscriptions")
		return
	}
	if len(subscriptions) == 0 {
		return
	}

	payload, err := PushPayload(job.Kind, job.AppointmentID, msg)
	if err != nil {
		log.Error().Err(err).Msg("error encoding push payload")
		return
	}
	for _, sub := range subscriptions {
		wp.sendNotification(ctx, sub, payload)
	}
}

// sendNotification sends a single web push notification.
func (wp *WorkerPool) sendNotification(ctx context.Context, sub model.PushSubscription, payload []byte) {
	wpSub := &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256DH,
			Auth:   sub.Auth,
		},
	}

	resp, err := wp.push.Send(payload, wpSub, wp.webpush)
	if err != nil {
		log.Warn().Err(err).Str("endpoint", sub.Endpoint).Msg("error sending push notification")
		return
	}
	defer resp.Body.Close()

	// Handle expired subscriptions
	if resp.StatusCode == http.StatusGone {
		log.Info().Str("endpoint", sub.Endpoint).Msg("push subscription expired, deleting")
		if err := wp.db.WithContext(ctx).Delete(&sub).Error; err != nil {
			log.Error().Err(err).Str("endpoint", sub.Endpoint).Msg("failed to delete expired subscription")
		}
	}
}
