// Package reminder schedules the 24 hour and 1 hour appointment reminders.
package reminder

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"appointment-booking-backend/internal/booking"
	"appointment-booking-backend/internal/model"
	"appointment-booking-backend/internal/parse"
	"appointment-booking-backend/internal/store"
)

// Scheduler periodically scans upcoming confirmed appointments and enqueues
// the reminders that have become due.
type Scheduler struct {
	cron     *cron.Cron
	schedule string
	store    store.Store
	notifier booking.Notifier
	loc      *time.Location
	now      func() time.Time
}

// NewScheduler creates a reminder scheduler. schedule is a standard
// five-field cron expression evaluated in loc.
func NewScheduler(st store.Store, n booking.Notifier, schedule string, loc *time.Location) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	return &Scheduler{
		cron:     cron.New(cron.WithLocation(loc)),
		schedule: schedule,
		store:    st,
		notifier: n,
		loc:      loc,
		now:      time.Now,
	}
}

// Start registers the scan job and starts the cron runner.
func (s *Scheduler) Start(ctx context.Context) error {
	_, err := s.cron.AddFunc(s.schedule, func() {
		n, err := s.ScanOnce(ctx)
		if err != nil {
			log.Error().Err(err).Msg("reminder scan failed")
			return
		}
		if n > 0 {
			log.Info().Int("enqueued", n).Msg("reminders enqueued")
		}
	})
	if err != nil {
		return fmt.Errorf("invalid reminder schedule %q: %w", s.schedule, err)
	}
	s.cron.Start()
	log.Info().Str("schedule", s.schedule).Msg("reminder scheduler started")
	return nil
}

// Stop waits for a running scan to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	log.Info().Msg("reminder scheduler stopped")
}

// ScanOnce enqueues every reminder due now and returns how many it enqueued.
func (s *Scheduler) ScanOnce(ctx context.Context) (int, error) {
	now := s.now().In(s.loc)
	today := now.Format(parse.DateLayout)
	tomorrow := now.AddDate(0, 0, 1).Format(parse.DateLayout)

	var appts []model.Appointment
	err := s.store.DB().WithContext(ctx).
		Preload("CalendarSlot").
		Joins("JOIN calendar_slots ON calendar_slots.id = appointments.calendar_slot_id").
		Where("appointments.status = ?", model.AppointmentConfirmed).
		Where("calendar_slots.slot_date IN ?", []string{today, tomorrow}).
		Where("appointments.reminder_sent_24h = ? OR appointments.reminder_sent_1h = ?", false, false).
		Order("calendar_slots.slot_date, calendar_slots.start_time").
		Find(&appts).Error
	if err != nil {
		return 0, fmt.Errorf("load upcoming appointments: %w", err)
	}

	enqueued := 0
	prefs := make(map[int64]model.UserPreferences)
	for _, a := range appts {
		if a.CalendarSlot == nil {
			continue
		}
		start, err := parse.SlotStart(a.CalendarSlot.SlotDate, a.CalendarSlot.StartTime, s.loc)
		if err != nil {
			log.Warn().Err(err).Int64("appointment_id", a.ID).Msg("skipping appointment with malformed slot")
			continue
		}

		p, ok := prefs[a.TalentID]
		if !ok {
			p, err = s.store.GetPreferences(ctx, a.TalentID)
			if err != nil {
				return enqueued, err
			}
			prefs[a.TalentID] = p
		}

		if kind, due := dueReminder(a, start, now, p); due {
			s.notifier.Notify(ctx, kind, a.ID)
			enqueued++
		}
	}
	return enqueued, nil
}

// dueReminder picks the reminder to send for a, if any. Once the 1 hour
// window has opened the 24 hour reminder is no longer sent. A reminder is
// only due when the appointment existed before its window opened.
func dueReminder(a model.Appointment, start, now time.Time, p model.UserPreferences) (model.NotificationKind, bool) {
	if !p.EmailRemindersEnabled || !now.Before(start) {
		return "", false
	}

	hourMark := start.Add(-time.Hour)
	if !now.Before(hourMark) {
		if p.Reminder1hEnabled && !a.ReminderSent1h && a.BookedAt.Before(hourMark) {
			return model.NotifyReminder1h, true
		}
		return "", false
	}

	dayMark := start.Add(-24 * time.Hour)
	if !now.Before(dayMark) && p.Reminder24hEnabled && !a.ReminderSent24h && a.BookedAt.Before(dayMark) {
		return model.NotifyReminder24h, true
	}
	return "", false
}
