package booking

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"appointment-booking-backend/internal/apperr"
	"appointment-booking-backend/internal/authz"
	"appointment-booking-backend/internal/dbtest"
	"appointment-booking-backend/internal/model"
	"appointment-booking-backend/internal/store"
)

type sentNotification struct {
	kind          model.NotificationKind
	appointmentID int64
}

// recordingNotifier collects notifications instead of delivering them.
type recordingNotifier struct {
	mu   sync.Mutex
	sent []sentNotification
}

func (r *recordingNotifier) Notify(_ context.Context, kind model.NotificationKind, id int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, sentNotification{kind, id})
}

func (r *recordingNotifier) all() []sentNotification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]sentNotification(nil), r.sent...)
}

type env struct {
	db       *gorm.DB
	fixture  dbtest.Fixture
	notifier *recordingNotifier
	svc      *Service
	now      time.Time
}

func newEnv(t *testing.T, now time.Time) *env {
	db := dbtest.Open(t)
	e := &env{
		db:       db,
		fixture:  dbtest.Seed(t, db),
		notifier: &recordingNotifier{},
		now:      now,
	}
	e.svc = NewService(store.NewGormStore(db), e.notifier,
		WithClock(func() time.Time { return e.now }),
		WithLocation(time.UTC))
	return e
}

func (e *env) talent() authz.Caller {
	return authz.Caller{UserID: e.fixture.Talent.ID, Role: model.UserTypeTalent, UniversityID: &e.fixture.University.ID}
}

func (e *env) staff() authz.Caller {
	return authz.Caller{UserID: e.fixture.Staff.ID, Role: model.UserTypeUniversityStaff, UniversityID: &e.fixture.University.ID}
}

func (e *env) admin() authz.Caller {
	return authz.Caller{UserID: e.fixture.Admin.ID, Role: model.UserTypeAdmin}
}

// assertSlotConsistent checks the occupancy counter against the appointments
// that reference the slot.
func assertSlotConsistent(t *testing.T, db *gorm.DB, slotID int64) model.CalendarSlot {
	t.Helper()
	slot := dbtest.ReloadSlot(t, db, slotID)
	assert.GreaterOrEqual(t, slot.CurrentBookings, 0)
	assert.LessOrEqual(t, slot.CurrentBookings, slot.MaxCapacity)
	assert.Equal(t, dbtest.ActiveAppointments(t, db, slotID), slot.CurrentBookings)
	if slot.Status == model.SlotAvailable || slot.Status == model.SlotFullyBooked {
		assert.Equal(t, slot.CurrentBookings == slot.MaxCapacity, slot.Status == model.SlotFullyBooked)
	}
	return slot
}

func at(value string) time.Time {
	ts, err := time.ParseInLocation("2006-01-02 15:04", value, time.UTC)
	if err != nil {
		panic(err)
	}
	return ts
}

func TestBookSlot_BookingDeadline(t *testing.T) {
	testCases := []struct {
		name    string
		now     string
		wantErr error
	}{
		{"25 hours before start", "2025-06-09 08:00", nil},
		{"exactly at the deadline", "2025-06-09 09:00", nil},
		{"23 hours before start", "2025-06-09 10:00", apperr.ErrBookingDeadlinePassed},
		{"after start", "2025-06-10 09:30", apperr.ErrBookingDeadlinePassed},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			e := newEnv(t, at(tc.now))
			slot := dbtest.CreateSlot(t, e.db, e.fixture, "2025-06-10", "09:00", "09:30", 1)

			appt, err := e.svc.BookSlot(context.Background(), e.talent(), BookRequest{SlotID: slot.ID})

			got := assertSlotConsistent(t, e.db, slot.ID)
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
				assert.Equal(t, 0, got.CurrentBookings)
				assert.Empty(t, e.notifier.all())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, model.AppointmentConfirmed, appt.Status)
			assert.Len(t, appt.BookingReference, 36)
			assert.Equal(t, e.now, appt.BookedAt)
			assert.Equal(t, 1, got.CurrentBookings)
			assert.Equal(t, []sentNotification{{model.NotifyConfirmation, appt.ID}}, e.notifier.all())
		})
	}
}

func TestBookSlot_LastUnitConcurrently(t *testing.T) {
	e := newEnv(t, at("2025-06-01 12:00"))
	slot := dbtest.CreateSlot(t, e.db, e.fixture, "2025-06-10", "09:00", "09:30", 1)
	second := dbtest.CreateUser(t, e.db, "second@univ.example", model.UserTypeTalent, &e.fixture.University.ID)

	callers := []authz.Caller{e.talent(), {UserID: second.ID, Role: model.UserTypeTalent}}
	results := make([]model.Appointment, 2)
	errs := make([]error, 2)

	var wg sync.WaitGroup
	for i := range callers {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = e.svc.BookSlot(context.Background(), callers[i], BookRequest{SlotID: slot.ID})
		}(i)
	}
	wg.Wait()

	winner, loser := 0, 1
	if errs[0] != nil {
		winner, loser = 1, 0
	}
	require.NoError(t, errs[winner])
	assert.ErrorIs(t, errs[loser], apperr.ErrSlotFull)

	booked := results[winner]
	require.NotNil(t, booked.CalendarSlot)
	assert.Equal(t, 1, booked.CalendarSlot.CurrentBookings)
	assert.Equal(t, model.SlotFullyBooked, booked.CalendarSlot.Status)
	assertSlotConsistent(t, e.db, slot.ID)
}

func TestBookSlot_ManyCallersExactlyCapacitySucceed(t *testing.T) {
	e := newEnv(t, at("2025-06-01 12:00"))
	slot := dbtest.CreateSlot(t, e.db, e.fixture, "2025-06-10", "09:00", "10:00", 3)

	const attempts = 8
	callers := make([]authz.Caller, attempts)
	for i := range callers {
		u := dbtest.CreateUser(t, e.db, fmt.Sprintf("talent%d@univ.example", i), model.UserTypeTalent, &e.fixture.University.ID)
		callers[i] = authz.Caller{UserID: u.ID, Role: model.UserTypeTalent}
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for _, c := range callers {
		wg.Add(1)
		go func(c authz.Caller) {
			defer wg.Done()
			_, err := e.svc.BookSlot(context.Background(), c, BookRequest{SlotID: slot.ID})
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				successes++
				return
			}
			assert.True(t, errors.Is(err, apperr.ErrSlotFull) || errors.Is(err, apperr.ErrSlotNotAvailable), "unexpected error %v", err)
		}(c)
	}
	wg.Wait()

	assert.Equal(t, 3, successes)
	got := assertSlotConsistent(t, e.db, slot.ID)
	assert.Equal(t, model.SlotFullyBooked, got.Status)
	assert.Len(t, e.notifier.all(), 3)
}

// lostRaceStore reads through to a real store but reports the slot as full
// when the reservation runs, as if another booking took the last unit after
// the availability check.
type lostRaceStore struct {
	store.Store
	reserveCalls int
	created      []model.Appointment
}

func (s *lostRaceStore) Transaction(_ context.Context, fn func(tx store.Store) error) error {
	return fn(s)
}

func (s *lostRaceStore) ReserveUnit(context.Context, int64) (model.CalendarSlot, error) {
	s.reserveCalls++
	return model.CalendarSlot{}, apperr.ErrSlotFull
}

func (s *lostRaceStore) CreateAppointment(_ context.Context, a *model.Appointment) error {
	s.created = append(s.created, *a)
	return nil
}

func TestBookSlot_ReservationLostAfterCheck(t *testing.T) {
	e := newEnv(t, at("2025-06-01 09:00"))
	slot := dbtest.CreateSlot(t, e.db, e.fixture, "2025-06-10", "09:00", "09:30", 1)

	fake := &lostRaceStore{Store: store.NewGormStore(e.db)}
	svc := NewService(fake, e.notifier,
		WithClock(func() time.Time { return e.now }),
		WithLocation(time.UTC))

	appt, err := svc.BookSlot(context.Background(), e.talent(), BookRequest{SlotID: slot.ID})

	require.ErrorIs(t, err, apperr.ErrSlotFull)
	assert.Zero(t, appt.ID)
	assert.Equal(t, 1, fake.reserveCalls)
	assert.Empty(t, fake.created)
	assert.Empty(t, e.notifier.all())
	assert.Equal(t, 0, dbtest.ReloadSlot(t, e.db, slot.ID).CurrentBookings)
}

func TestBookSlot_ValidationOrder(t *testing.T) {
	ctx := context.Background()

	t.Run("missing slot", func(t *testing.T) {
		e := newEnv(t, at("2025-06-01 12:00"))
		_, err := e.svc.BookSlot(ctx, e.talent(), BookRequest{SlotID: 404})
		assert.ErrorIs(t, err, apperr.ErrSlotNotFound)
	})

	t.Run("invalid slot id", func(t *testing.T) {
		e := newEnv(t, at("2025-06-01 12:00"))
		_, err := e.svc.BookSlot(ctx, e.talent(), BookRequest{})
		assert.ErrorIs(t, err, apperr.ErrValidation)
	})

	t.Run("blocked slot beats deadline", func(t *testing.T) {
		e := newEnv(t, at("2025-06-10 08:00"))
		slot := dbtest.CreateSlot(t, e.db, e.fixture, "2025-06-10", "09:00", "09:30", 1)
		require.NoError(t, e.db.Model(&slot).Update("status", model.SlotBlocked).Error)

		_, err := e.svc.BookSlot(ctx, e.talent(), BookRequest{SlotID: slot.ID})
		assert.ErrorIs(t, err, apperr.ErrSlotNotAvailable)
	})

	t.Run("full slot beats deadline", func(t *testing.T) {
		e := newEnv(t, at("2025-06-01 08:00"))
		slot := dbtest.CreateSlot(t, e.db, e.fixture, "2025-06-10", "09:00", "09:30", 1)
		_, err := e.svc.BookSlot(ctx, e.talent(), BookRequest{SlotID: slot.ID})
		require.NoError(t, err)

		e.now = at("2025-06-10 08:00")
		_, err = e.svc.BookSlot(ctx, e.admin(), BookRequest{SlotID: slot.ID})
		assert.ErrorIs(t, err, apperr.ErrSlotFull)
	})

	t.Run("deadline beats role", func(t *testing.T) {
		e := newEnv(t, at("2025-06-10 08:00"))
		slot := dbtest.CreateSlot(t, e.db, e.fixture, "2025-06-10", "09:00", "09:30", 1)
		_, err := e.svc.BookSlot(ctx, e.staff(), BookRequest{SlotID: slot.ID})
		assert.ErrorIs(t, err, apperr.ErrBookingDeadlinePassed)
	})

	t.Run("staff cannot book", func(t *testing.T) {
		e := newEnv(t, at("2025-06-01 08:00"))
		slot := dbtest.CreateSlot(t, e.db, e.fixture, "2025-06-10", "09:00", "09:30", 1)
		_, err := e.svc.BookSlot(ctx, e.staff(), BookRequest{SlotID: slot.ID})
		assert.ErrorIs(t, err, apperr.ErrForbidden)
		assertSlotConsistent(t, e.db, slot.ID)
	})

	t.Run("inactive agenda", func(t *testing.T) {
		e := newEnv(t, at("2025-06-01 08:00"))
		require.NoError(t, e.db.Model(&e.fixture.Agenda).Update("is_active", false).Error)
		slot := dbtest.CreateSlot(t, e.db, e.fixture, "2025-06-10", "09:00", "09:30", 1)

		_, err := e.svc.BookSlot(ctx, e.talent(), BookRequest{SlotID: slot.ID})
		assert.ErrorIs(t, err, apperr.ErrForbidden)
	})

	t.Run("university criterion", func(t *testing.T) {
		e := newEnv(t, at("2025-06-01 08:00"))
		require.NoError(t, e.db.Create(&model.EligibilityCriterion{
			AgendaID: e.fixture.Agenda.ID, CriteriaType: model.CriteriaUniversity,
			CriteriaValue: fmt.Sprint(e.fixture.University.ID), IsRequired: true,
		}).Error)
		slot := dbtest.CreateSlot(t, e.db, e.fixture, "2025-06-10", "09:00", "09:30", 2)
		outsider := dbtest.CreateUser(t, e.db, "outsider@elsewhere.example", model.UserTypeTalent, nil)

		_, err := e.svc.BookSlot(ctx, authz.Caller{UserID: outsider.ID, Role: model.UserTypeTalent}, BookRequest{SlotID: slot.ID})
		assert.ErrorIs(t, err, apperr.ErrForbidden)

		_, err = e.svc.BookSlot(ctx, e.talent(), BookRequest{SlotID: slot.ID})
		assert.NoError(t, err)
	})
}

func TestBookSlot_SameTalentMayHoldSeveralUnits(t *testing.T) {
	e := newEnv(t, at("2025-06-01 08:00"))
	slot := dbtest.CreateSlot(t, e.db, e.fixture, "2025-06-10", "09:00", "09:30", 2)

	_, err := e.svc.BookSlot(context.Background(), e.talent(), BookRequest{SlotID: slot.ID})
	require.NoError(t, err)
	_, err = e.svc.BookSlot(context.Background(), e.talent(), BookRequest{SlotID: slot.ID})
	require.NoError(t, err)

	got := assertSlotConsistent(t, e.db, slot.ID)
	assert.Equal(t, 2, got.CurrentBookings)
}

func bookOne(t *testing.T, e *env, capacity int) (model.Appointment, model.CalendarSlot) {
	t.Helper()
	slot := dbtest.CreateSlot(t, e.db, e.fixture, "2025-06-10", "09:00", "09:30", capacity)
	saved := e.now
	e.now = at("2025-06-01 08:00")
	appt, err := e.svc.BookSlot(context.Background(), e.talent(), BookRequest{SlotID: slot.ID})
	require.NoError(t, err)
	e.now = saved
	return appt, slot
}

func TestCancelAppointment_ReopensSlot(t *testing.T) {
	e := newEnv(t, at("2025-06-09 03:00")) // 30h before the slot
	appt, slot := bookOne(t, e, 1)
	require.Equal(t, model.SlotFullyBooked, dbtest.ReloadSlot(t, e.db, slot.ID).Status)

	got, err := e.svc.CancelAppointment(context.Background(), e.talent(), appt.ID)
	require.NoError(t, err)

	assert.Equal(t, model.AppointmentCancelled, got.Status)
	require.NotNil(t, got.CancelledAt)
	assert.Equal(t, e.now, *got.CancelledAt)
	require.NotNil(t, got.CancelledByID)
	assert.Equal(t, e.fixture.Talent.ID, *got.CancelledByID)

	reopened := assertSlotConsistent(t, e.db, slot.ID)
	assert.Equal(t, 0, reopened.CurrentBookings)
	assert.Equal(t, model.SlotAvailable, reopened.Status)
	assert.Equal(t, sentNotification{model.NotifyCancellation, appt.ID}, e.notifier.all()[1])
}

func TestCancelAppointment_ConcurrentCancelsReleaseOnce(t *testing.T) {
	e := newEnv(t, at("2025-06-05 12:00"))
	appt, slot := bookOne(t, e, 2)
	other, err := e.svc.BookSlot(context.Background(), authz.Caller{
		UserID: dbtest.CreateUser(t, e.db, "b@univ.example", model.UserTypeTalent, nil).ID,
		Role:   model.UserTypeTalent,
	}, BookRequest{SlotID: slot.ID})
	require.NoError(t, err)
	require.NotZero(t, other.ID)

	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i, caller := range []authz.Caller{e.talent(), e.staff()} {
		wg.Add(1)
		go func(i int, caller authz.Caller) {
			defer wg.Done()
			_, errs[i] = e.svc.CancelAppointment(context.Background(), caller, appt.ID)
		}(i, caller)
	}
	wg.Wait()

	var ok, final int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, apperr.ErrAlreadyFinal):
			final++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, final)

	got := assertSlotConsistent(t, e.db, slot.ID)
	assert.Equal(t, 1, got.CurrentBookings)
}

func TestCancelAppointment_Checks(t *testing.T) {
	ctx := context.Background()

	t.Run("not found", func(t *testing.T) {
		e := newEnv(t, at("2025-06-05 12:00"))
		_, err := e.svc.CancelAppointment(ctx, e.admin(), 404)
		assert.ErrorIs(t, err, apperr.ErrAppointmentNotFound)
	})

	t.Run("other talent is forbidden", func(t *testing.T) {
		e := newEnv(t, at("2025-06-05 12:00"))
		appt, _ := bookOne(t, e, 1)
		stranger := dbtest.CreateUser(t, e.db, "x@univ.example", model.UserTypeTalent, &e.fixture.University.ID)

		_, err := e.svc.CancelAppointment(ctx, authz.Caller{UserID: stranger.ID, Role: model.UserTypeTalent}, appt.ID)
		assert.ErrorIs(t, err, apperr.ErrForbidden)
	})

	t.Run("staff of another university is forbidden", func(t *testing.T) {
		e := newEnv(t, at("2025-06-05 12:00"))
		appt, _ := bookOne(t, e, 1)
		otherUni := e.fixture.University.ID + 100

		_, err := e.svc.CancelAppointment(ctx, authz.Caller{UserID: 77, Role: model.UserTypeUniversityStaff, UniversityID: &otherUni}, appt.ID)
		assert.ErrorIs(t, err, apperr.ErrForbidden)
	})

	t.Run("forbidden beats already final", func(t *testing.T) {
		e := newEnv(t, at("2025-06-05 12:00"))
		appt, _ := bookOne(t, e, 1)
		_, err := e.svc.CancelAppointment(ctx, e.talent(), appt.ID)
		require.NoError(t, err)

		_, err = e.svc.CancelAppointment(ctx, authz.Caller{UserID: 999, Role: model.UserTypeTalent}, appt.ID)
		assert.ErrorIs(t, err, apperr.ErrForbidden)
		_, err = e.svc.CancelAppointment(ctx, e.talent(), appt.ID)
		assert.ErrorIs(t, err, apperr.ErrAlreadyFinal)
	})

	t.Run("deadline applies to admins too", func(t *testing.T) {
		e := newEnv(t, at("2025-06-09 12:00"))
		appt, slot := bookOne(t, e, 1)

		_, err := e.svc.CancelAppointment(ctx, e.admin(), appt.ID)
		assert.ErrorIs(t, err, apperr.ErrCancellationDeadlinePassed)
		got := assertSlotConsistent(t, e.db, slot.ID)
		assert.Equal(t, 1, got.CurrentBookings)
	})

	t.Run("staff of the university may cancel", func(t *testing.T) {
		e := newEnv(t, at("2025-06-05 12:00"))
		appt, _ := bookOne(t, e, 1)

		got, err := e.svc.CancelAppointment(ctx, e.staff(), appt.ID)
		require.NoError(t, err)
		assert.Equal(t, e.fixture.Staff.ID, *got.CancelledByID)
	})
}

func TestLifecycle_CompleteNoShowFeedback(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, at("2025-06-10 10:00"))
	appt, slot := bookOne(t, e, 2)

	_, err := e.svc.CompleteAppointment(ctx, e.talent(), appt.ID, "")
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	_, err = e.svc.SubmitFeedback(ctx, e.talent(), appt.ID, FeedbackRequest{Rating: 4})
	assert.ErrorIs(t, err, apperr.ErrConflict)

	done, err := e.svc.CompleteAppointment(ctx, e.staff(), appt.ID, "Reviewed CV, suggested edits")
	require.NoError(t, err)
	assert.Equal(t, model.AppointmentCompleted, done.Status)
	assert.Equal(t, "Reviewed CV, suggested edits", done.StaffNotes)
	require.NotNil(t, done.CompletedAt)

	got := assertSlotConsistent(t, e.db, slot.ID)
	assert.Equal(t, 1, got.CurrentBookings)

	_, err = e.svc.MarkNoShow(ctx, e.admin(), appt.ID)
	assert.ErrorIs(t, err, apperr.ErrAlreadyFinal)

	_, err = e.svc.SubmitFeedback(ctx, e.talent(), appt.ID, FeedbackRequest{Rating: 6})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = e.svc.SubmitFeedback(ctx, e.staff(), appt.ID, FeedbackRequest{Rating: 5})
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	rated, err := e.svc.SubmitFeedback(ctx, e.talent(), appt.ID, FeedbackRequest{Rating: 5, Feedback: "Very helpful"})
	require.NoError(t, err)
	require.NotNil(t, rated.Rating)
	assert.Equal(t, 5, *rated.Rating)
	assert.Equal(t, "Very helpful", rated.Feedback)
}

func TestMarkNoShow_KeepsCapacity(t *testing.T) {
	e := newEnv(t, at("2025-06-10 10:00"))
	appt, slot := bookOne(t, e, 1)

	got, err := e.svc.MarkNoShow(context.Background(), e.staff(), appt.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AppointmentNoShow, got.Status)

	reloaded := assertSlotConsistent(t, e.db, slot.ID)
	assert.Equal(t, model.SlotFullyBooked, reloaded.Status)
}

func TestGetAppointment_Scoped(t *testing.T) {
	e := newEnv(t, at("2025-06-05 12:00"))
	appt, _ := bookOne(t, e, 1)

	got, err := e.svc.GetAppointment(context.Background(), e.talent(), appt.ID)
	require.NoError(t, err)
	assert.Equal(t, appt.BookingReference, got.BookingReference)

	_, err = e.svc.GetAppointment(context.Background(), authz.Caller{UserID: 999, Role: model.UserTypeTalent}, appt.ID)
	assert.ErrorIs(t, err, apperr.ErrForbidden)
}
