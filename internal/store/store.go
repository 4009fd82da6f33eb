package store

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"appointment-booking-backend/internal/apperr"
	"appointment-booking-backend/internal/authz"
	"appointment-booking-backend/internal/model"
)

// Store defines the interface for all booking database operations.
// A Store handed to the Transaction callback is bound to that transaction.
type Store interface {
	Transaction(ctx context.Context, fn func(tx Store) error) error
	DB() *gorm.DB

	// Slot capacity. Both run as a single conditional UPDATE.
	ReserveUnit(ctx context.Context, slotID int64) (model.CalendarSlot, error)
	ReleaseUnit(ctx context.Context, slotID int64) (model.CalendarSlot, error)

	GetSlot(ctx context.Context, id int64) (model.CalendarSlot, error)
	CreateSlot(ctx context.Context, slot *model.CalendarSlot) error
	SetSlotStatus(ctx context.Context, id int64, status model.SlotStatus) (model.CalendarSlot, error)
	AvailableSlots(ctx context.Context, f SlotFilter) ([]model.CalendarSlot, error)
	CountActiveAppointments(ctx context.Context, slotID int64) (int64, error)

	CreateAppointment(ctx context.Context, a *model.Appointment) error
	GetAppointment(ctx context.Context, id int64) (model.Appointment, error)
	ListAppointments(ctx context.Context, caller authz.Caller, f AppointmentFilter) ([]model.Appointment, error)
	MarkCancelled(ctx context.Context, id int64, c Cancellation) error
	TransitionAppointment(ctx context.Context, id int64, from, to model.AppointmentStatus, fields map[string]any) error
	UpdateAppointment(ctx context.Context, id int64, fields map[string]any) error

	CreateAgenda(ctx context.Context, a *model.Agenda) error
	GetAgenda(ctx context.Context, id int64) (model.Agenda, error)
	ListAgendas(ctx context.Context, f AgendaFilter) ([]model.Agenda, error)
	GetTheme(ctx context.Context, id int64) (model.AppointmentTheme, error)
	ListThemes(ctx context.Context) ([]model.AppointmentTheme, error)

	GetUser(ctx context.Context, id int64) (model.User, error)
	GetPreferences(ctx context.Context, userID int64) (model.UserPreferences, error)

	UpsertSubscription(ctx context.Context, sub *model.PushSubscription) error
	GetSubscription(ctx context.Context, userID int64, endpoint string) (model.PushSubscription, error)
	DeleteSubscription(ctx context.Context, userID int64, endpoint string) error
}

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db *gorm.DB
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

// DB exposes the underlying handle.
func (s *gormStore) DB() *gorm.DB {
	return s.db
}

// Transaction runs fn inside a database transaction. fn's error, or a panic,
// rolls back everything done through tx.
func (s *gormStore) Transaction(ctx context.Context, fn func(tx Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormStore{db: tx})
	})
}

// notFound converts gorm.ErrRecordNotFound into the given domain error.
func notFound(err error, domain *apperr.Error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain
	}
	return err
}
