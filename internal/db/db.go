package db

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"appointment-booking-backend/config"
	"appointment-booking-backend/internal/logging"
	"appointment-booking-backend/internal/model"
)

// Models lists every table the service owns, in migration order.
func Models() []any {
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

// Init initializes the database connection and runs migrations.
func Init(cfg *config.DatabaseConfig) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "sqlite":
		dialector = sqlite.Open(cfg.DSN)
	default:
		dialector = postgres.Open(cfg.DSN)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logging.GormLogger(cfg.LogLevel),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}

	maxOpen := cfg.MaxOpenConns
	if cfg.Driver == "sqlite" {
		// SQLite has a single writer; one connection keeps writes serialized.
		maxOpen = 1
	}
	sqlDB.SetMaxOpenConns(maxOpen)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetimeMinutes) * time.Minute)

	log.Info().Str("driver", cfg.Driver).Msg("running database migrations")
	if err := Migrate(db); err != nil {
		return nil, err
	}

	if cfg.Driver == "postgres" {
		if err := applyPostgresConstraints(db); err != nil {
			log.Warn().Err(err).Msg("failed to apply some check constraints, continuing without them")
		}
	}

	log.Info().Msg("database initialization complete")
	return db, nil
}

// Migrate creates or updates every table.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("automigrate failed: %w", err)
	}
	return nil
}

// applyPostgresConstraints backs the capacity and time invariants with CHECK
// constraints. Each statement is idempotent.
func applyPostgresConstraints(db *gorm.DB) error {
	constraints := []struct {
		table, name, check string
	}{
		{"calendar_slots", "calendar_slots_capacity_range", "current_bookings >= 0 AND current_bookings <= max_capacity"},
		{"calendar_slots", "calendar_slots_capacity_positive", "max_capacity >= 1"},
		{"calendar_slots", "calendar_slots_time_order", "end_time > start_time"},
		{"calendar_slots", "calendar_slots_status_valid", "status IN ('available','fully_booked','cancelled','blocked')"},
		{"appointments", "appointments_rating_range", "rating IS NULL OR (rating BETWEEN 1 AND 5)"},
		{"agendas", "agendas_date_order", "end_date >= start_date"},
	}

	for _, c := range constraints {
		ddl := fmt.Sprintf(
			"DO $$ BEGIN IF NOT EXISTS (SELECT 1 FROM pg_constraint WHERE conname = '%s') THEN "+
				"ALTER TABLE %s ADD CONSTRAINT %s CHECK (%s); END IF; END $$;",
			c.name, c.table, c.name, c.check)
		if err := db.Exec(ddl).Error; err != nil {
			return fmt.Errorf("DDL failed on %q: %w", c.name, err)
		}
	}
	return nil
}
