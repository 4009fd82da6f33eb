package model

import "time"

// AppointmentTheme categorises agendas (CV review, mock interview, ...).
type AppointmentTheme struct {
	ID          int64     `gorm:"primaryKey" json:"id"`
	Name        string    `gorm:"uniqueIndex;size:100;not null" json:"name"`
	Description string    `json:"description,omitempty"`
	ColorCode   string    `gorm:"size:7" json:"color_code,omitempty"`
	IsActive    bool      `gorm:"not null" json:"is_active"`
	CreatedAt   time.Time `gorm:"not null" json:"created_at"`
}

// Agenda is a staff-defined booking configuration owned by a university.
// StartDate and EndDate are calendar dates formatted as YYYY-MM-DD.
type Agenda struct {
	ID                        int64     `gorm:"primaryKey" json:"id"`
	UniversityID              int64     `gorm:"index;not null" json:"university_id"`
	CreatedByID               int64     `gorm:"not null" json:"created_by_id"`
	ThemeID                   int64     `gorm:"index;not null" json:"theme_id"`
	Name                      string    `gorm:"size:200;not null" json:"name"`
	Description               string    `json:"description,omitempty"`
	SlotDurationMinutes       int       `gorm:"not null" json:"slot_duration_minutes"`
	MaxCapacityPerSlot        int       `gorm:"not null" json:"max_capacity_per_slot"`
	StartDate                 string    `gorm:"size:10;not null" json:"start_date"`
	EndDate                   string    `gorm:"size:10;not null" json:"end_date"`
	BookingDeadlineHours      int       `gorm:"not null" json:"booking_deadline_hours"`
	CancellationDeadlineHours int       `gorm:"not null" json:"cancellation_deadline_hours"`
	IsActive                  bool      `gorm:"not null" json:"is_active"`
	CreatedAt                 time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt                 time.Time `gorm:"not null" json:"updated_at"`

	University  *University            `json:"university,omitempty"`
	Theme       *AppointmentTheme      `json:"theme,omitempty"`
	Eligibility []EligibilityCriterion `gorm:"foreignKey:AgendaID" json:"eligibility,omitempty"`
}

// CriteriaType names what an eligibility criterion compares against.
type CriteriaType string

const (
	CriteriaUniversity   CriteriaType = "university"
	CriteriaYearOfStudy  CriteriaType = "year_of_study"
	CriteriaFieldOfStudy CriteriaType = "field_of_study"
	CriteriaGPAMinimum   CriteriaType = "gpa_minimum"
)

// EligibilityCriterion restricts which talents may book an agenda's slots.
type EligibilityCriterion struct {
	ID            int64        `gorm:"primaryKey" json:"id"`
	AgendaID      int64        `gorm:"index;not null" json:"agenda_id"`
	CriteriaType  CriteriaType `gorm:"size:50;not null" json:"criteria_type"`
	CriteriaValue string       `gorm:"size:255;not null" json:"criteria_value"`
	IsRequired    bool         `gorm:"not null" json:"is_required"`
}
