// Package dbtest provides an in-memory SQLite database and seed data for
// package tests.
package dbtest

import (
	"fmt"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"appointment-booking-backend/internal/model"
)

var seq atomic.Int64

// Open returns a migrated, private in-memory SQLite database. It holds a
// single connection, so concurrent transactions are serialized the way a
// row lock would serialize them.
func Open(t *testing.T, models ...any) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared", name, seq.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	if len(models) == 0 {
		models = AllModels()
	}
	require.NoError(t, db.AutoMigrate(models...))
	return db
}

// AllModels mirrors db.Models without importing it.
func AllModels() []any {
	return []any{
		&model.University{},
		&model.User{},
		&model.UserPreferences{},
		&model.AppointmentTheme{},
		&model.Agenda{},
		&model.EligibilityCriterion{},
		&model.CalendarSlot{},
		&model.Appointment{},
		&model.EmailReminder{},
		&model.NotificationJob{},
		&model.PushSubscription{},
	}
}

// Fixture is the minimal world a booking needs.
type Fixture struct {
	University model.University
	Staff      model.User
	Talent     model.User
	Admin      model.User
	Theme      model.AppointmentTheme
	Agenda     model.Agenda
}

// Seed inserts one university with a staff member, a talent, an admin and an
// active agenda with 24h booking and cancellation deadlines.
func Seed(t *testing.T, db *gorm.DB) Fixture {
	t.Helper()

	var f Fixture
	f.University = model.University{Name: "University of Lyon", City: "Lyon", Country: "FR", IsActive: true}
	require.NoError(t, db.Create(&f.University).Error)

	uni := f.University.ID
	f.Staff = model.User{Email: "staff@univ.example", FirstName: "Claire", LastName: "Martin",
		UserType: model.UserTypeUniversityStaff, UniversityID: &uni, IsActive: true}
	require.NoError(t, db.Create(&f.Staff).Error)
	f.Talent = CreateUser(t, db, "talent@univ.example", model.UserTypeTalent, &uni)
	f.Admin = CreateUser(t, db, "admin@platform.example", model.UserTypeAdmin, nil)

	f.Theme = model.AppointmentTheme{Name: "CV review", ColorCode: "#3B82F6", IsActive: true}
	require.NoError(t, db.Create(&f.Theme).Error)

	f.Agenda = model.Agenda{
		UniversityID:              uni,
		CreatedByID:               f.Staff.ID,
		ThemeID:                   f.Theme.ID,
		Name:                      "Spring CV clinic",
		SlotDurationMinutes:       30,
		MaxCapacityPerSlot:        1,
		StartDate:                 "2025-01-01",
		EndDate:                   "2025-12-31",
		BookingDeadlineHours:      24,
		CancellationDeadlineHours: 24,
		IsActive:                  true,
	}
	require.NoError(t, db.Create(&f.Agenda).Error)
	return f
}

// CreateUser inserts a user of the given type.
func CreateUser(t *testing.T, db *gorm.DB, email string, userType model.UserType, universityID *int64) model.User {
	t.Helper()
	u := model.User{Email: email, FirstName: strings.Split(email, "@")[0], UserType: userType,
		UniversityID: universityID, IsActive: true}
	require.NoError(t, db.Create(&u).Error)
	return u
}

// CreateSlot inserts an available slot.
func CreateSlot(t *testing.T, db *gorm.DB, f Fixture, date, start, end string, capacity int) model.CalendarSlot {
	t.Helper()
	s := model.CalendarSlot{
		AgendaID:    f.Agenda.ID,
		StaffID:     f.Staff.ID,
		SlotDate:    date,
		StartTime:   start,
		EndTime:     end,
		MaxCapacity: capacity,
		Status:      model.SlotAvailable,
		MeetingType: model.MeetingInPerson,
		Location:    "Career centre, room 2",
	}
	require.NoError(t, db.Omit("Agenda", "Staff").Create(&s).Error)
	return s
}

// ReloadSlot re-reads a slot.
func ReloadSlot(t *testing.T, db *gorm.DB, id int64) model.CalendarSlot {
	t.Helper()
	var s model.CalendarSlot
	require.NoError(t, db.First(&s, id).Error)
	return s
}

// ActiveAppointments counts non-cancelled appointments on a slot.
func ActiveAppointments(t *testing.T, db *gorm.DB, slotID int64) int {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(&model.Appointment{}).
		Where("calendar_slot_id = ? AND status <> ?", slotID, model.AppointmentCancelled).
		Count(&n).Error)
	return int(n)
}
