package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"appointment-booking-backend/internal/authz"
	"appointment-booking-backend/internal/booking"
	"appointment-booking-backend/internal/dbtest"
	"appointment-booking-backend/internal/model"
	"appointment-booking-backend/internal/mw"
	"appointment-booking-backend/internal/schedule"
	"appointment-booking-backend/internal/stats"
	"appointment-booking-backend/internal/store"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var secret = []byte("handler-test-secret")

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, model.NotificationKind, int64) {}

type server struct {
	t      *testing.T
	db     *gorm.DB
	fx     dbtest.Fixture
	router *gin.Engine
}

func newServer(t *testing.T, push *webpush.Options) *server {
	db := dbtest.Open(t)
	fx := dbtest.Seed(t, db)
	now := func() time.Time { return time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC) }

	st := store.NewGormStore(db)
	h := NewHandler(st,
		booking.NewService(st, nopNotifier{}, booking.WithClock(now), booking.WithLocation(time.UTC)),
		schedule.NewService(st, time.UTC, now),
		stats.NewAggregator(db, time.UTC),
		push,
	)
	r := NewRouter(h, RouterConfig{JWTSecret: secret, JWTIssuer: "test", RateLimitPerSec: 1000, RateLimitBurst: 1000})
	return &server{t: t, db: db, fx: fx, router: r}
}

func (s *server) token(c authz.Caller) string {
	tok, err := mw.IssueToken(secret, "test", c, time.Hour)
	require.NoError(s.t, err)
	return tok
}

func (s *server) talent() string {
	return s.token(authz.Caller{UserID: s.fx.Talent.ID, Role: model.UserTypeTalent, UniversityID: &s.fx.University.ID})
}

func (s *server) staff() string {
	return s.token(authz.Caller{UserID: s.fx.Staff.ID, Role: model.UserTypeUniversityStaff, UniversityID: &s.fx.University.ID})
}

func (s *server) do(method, path, token string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		require.NoError(s.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), w.Body.String())
	assert.NotEmpty(t, body.Message)
	return body.Error
}

func TestHealthAndAuth(t *testing.T) {
	s := newServer(t, nil)

	w := s.do(http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = s.do(http.MethodGet, "/api/appointments", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "unauthorized", errorCode(t, w))
}

func TestBookAndCancel(t *testing.T) {
	s := newServer(t, nil)
	slot := dbtest.CreateSlot(t, s.db, s.fx, "2025-03-10", "10:00", "10:30", 1)

	w := s.do(http.MethodPost, "/api/appointments/book", s.talent(), gin.H{"slot_id": slot.ID, "notes": "first visit"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var appt model.Appointment
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &appt))
	assert.Equal(t, model.AppointmentConfirmed, appt.Status)
	assert.Equal(t, "first visit", appt.TalentNotes)
	assert.Len(t, appt.BookingReference, 36)

	other := dbtest.CreateUser(t, s.db, "other@univ.example", model.UserTypeTalent, &s.fx.University.ID)
	otherToken := s.token(authz.Caller{UserID: other.ID, Role: model.UserTypeTalent, UniversityID: &s.fx.University.ID})

	w = s.do(http.MethodPost, "/api/appointments/book", otherToken, gin.H{"slot_id": slot.ID})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "slot_full", errorCode(t, w))

	path := "/api/appointments/" + strconv.FormatInt(appt.ID, 10)
	w = s.do(http.MethodGet, path, otherToken, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(http.MethodGet, path, s.staff(), nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = s.do(http.MethodPost, path+"/cancel", s.talent(), nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = s.do(http.MethodPost, path+"/cancel", s.talent(), nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "already_final", errorCode(t, w))

	reloaded := dbtest.ReloadSlot(t, s.db, slot.ID)
	assert.Equal(t, 0, reloaded.CurrentBookings)
	assert.Equal(t, model.SlotAvailable, reloaded.Status)
}

func TestBookErrors(t *testing.T) {
	s := newServer(t, nil)
	late := dbtest.CreateSlot(t, s.db, s.fx, "2025-03-02", "08:00", "08:30", 1)

	tests := []struct {
		name   string
		body   any
		status int
		code   string
	}{
		{"missing slot", gin.H{"slot_id": 9999}, http.StatusNotFound, "slot_not_found"},
		{"zero slot id", gin.H{"notes": "x"}, http.StatusBadRequest, "validation_failed"},
		{"malformed body", "not-an-object", http.StatusBadRequest, "validation_failed"},
		{"deadline passed", gin.H{"slot_id": late.ID}, http.StatusUnprocessableEntity, "booking_deadline_passed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(http.MethodPost, "/api/appointments/book", s.talent(), tt.body)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
			assert.Equal(t, tt.code, errorCode(t, w))
		})
	}
	assert.Equal(t, 0, dbtest.ReloadSlot(t, s.db, late.ID).CurrentBookings)
}

func TestInvalidPathID(t *testing.T) {
	s := newServer(t, nil)
	w := s.do(http.MethodGet, "/api/appointments/abc", s.talent(), nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "validation_failed", errorCode(t, w))
}

func TestListAppointments(t *testing.T) {
	s := newServer(t, nil)
	slot := dbtest.CreateSlot(t, s.db, s.fx, "2025-03-10", "10:00", "10:30", 3)
	w := s.do(http.MethodPost, "/api/appointments/book", s.talent(), gin.H{"slot_id": slot.ID})
	require.Equal(t, http.StatusCreated, w.Code)

	w = s.do(http.MethodGet, "/api/appointments?status=confirmed&start_date=2025-03-01", s.talent(), nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list []model.Appointment
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Len(t, list, 1)

	w = s.do(http.MethodGet, "/api/appointments?status=bogus", s.talent(), nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(http.MethodGet, "/api/appointments?start_date=10-03-2025", s.talent(), nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSlotsAndAgendas(t *testing.T) {
	s := newServer(t, nil)

	w := s.do(http.MethodPost, "/api/slots", s.staff(), gin.H{
		"agenda_id":  s.fx.Agenda.ID,
		"slot_date":  "2025-03-12",
		"start_time": "14:00",
		"end_time":   "14:30",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var slot model.CalendarSlot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &slot))

	w = s.do(http.MethodPost, "/api/slots", s.talent(), gin.H{
		"agenda_id": s.fx.Agenda.ID, "slot_date": "2025-03-12", "start_time": "15:00", "end_time": "15:30",
	})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(http.MethodGet, "/api/slots/available?agenda_id="+strconv.FormatInt(s.fx.Agenda.ID, 10), s.talent(), nil)
	require.Equal(t, http.StatusOK, w.Code)
	var slots []model.CalendarSlot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &slots))
	require.Len(t, slots, 1)
	assert.Equal(t, slot.ID, slots[0].ID)

	w = s.do(http.MethodPatch, "/api/slots/"+strconv.FormatInt(slot.ID, 10)+"/status", s.staff(), gin.H{"status": "blocked"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, model.SlotBlocked, dbtest.ReloadSlot(t, s.db, slot.ID).Status)

	w = s.do(http.MethodGet, "/api/agendas", s.talent(), nil)
	require.Equal(t, http.StatusOK, w.Code)
	var agendas []model.Agenda
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &agendas))
	assert.Len(t, agendas, 1)

	w = s.do(http.MethodGet, "/api/themes", s.talent(), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "MISS", w.Header().Get("X-Cache"))
	w = s.do(http.MethodGet, "/api/themes", s.staff(), nil)
	assert.Equal(t, "HIT", w.Header().Get("X-Cache"))
}

func TestStatisticsPermissions(t *testing.T) {
	s := newServer(t, nil)

	w := s.do(http.MethodGet, "/api/statistics", s.talent(), nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(http.MethodGet, "/api/statistics?university_id=x", s.staff(), nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(http.MethodGet, "/api/statistics?start_date=2025-01-01&end_date=2025-03-31", s.staff(), nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var summary stats.Summary
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &summary))
	assert.Equal(t, s.fx.University.ID, *summary.UniversityID)
	assert.Equal(t, "2025-01-01", summary.StartDate)
}

func TestSubscriptions(t *testing.T) {
	s := newServer(t, nil)
	endpoint := "https://push.example/abc"

	w := s.do(http.MethodPut, "/api/subscriptions", s.talent(), nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(http.MethodPut, "/api/subscriptions", s.talent(), gin.H{"endpoint": endpoint, "p256dh": "key", "auth": "secret"})
	assert.Equal(t, http.StatusCreated, w.Code)

	w = s.do(http.MethodGet, "/api/subscriptions?endpoint="+endpoint, s.talent(), nil)
	assert.Equal(t, http.StatusOK, w.Code)

	// scoped to the owner
	w = s.do(http.MethodGet, "/api/subscriptions?endpoint="+endpoint, s.staff(), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(http.MethodGet, "/api/subscriptions", s.talent(), nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(http.MethodDelete, "/api/subscriptions", s.talent(), gin.H{"endpoint": endpoint})
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = s.do(http.MethodGet, "/api/subscriptions?endpoint="+endpoint, s.talent(), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestVAPIDPublicKey(t *testing.T) {
	s := newServer(t, nil)
	w := s.do(http.MethodGet, "/api/vapid_public_key", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	s = newServer(t, &webpush.Options{VAPIDPublicKey: "BPub"})
	w = s.do(http.MethodGet, "/api/vapid_public_key", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"public_key":"BPub"}`, w.Body.String())
}
