// Package authz holds the scoping rules for who may see and act on what.
// The predicates are pure functions; Scope* adapt the same rules to gorm
// queries so list endpoints and single-record checks cannot drift apart.
package authz

import (
	"gorm.io/gorm"

	"appointment-booking-backend/internal/model"
)

// Caller is the authenticated principal of a request.
type Caller struct {
	UserID       int64
	Role         model.UserType
	UniversityID *int64
}

// IsAdmin reports whether the caller has platform-wide access.
func (c Caller) IsAdmin() bool { return c.Role == model.UserTypeAdmin }

// IsStaff reports whether the caller is university staff.
func (c Caller) IsStaff() bool { return c.Role == model.UserTypeUniversityStaff }

// IsTalent reports whether the caller is a talent.
func (c Caller) IsTalent() bool { return c.Role == model.UserTypeTalent }

// AppointmentTarget is the part of an appointment the access rule looks at.
type AppointmentTarget struct {
	TalentID     int64
	UniversityID int64
}

// CanAccessAppointment: talents see their own appointments, staff see those
// of their university, admins see all.
func CanAccessAppointment(c Caller, t AppointmentTarget) bool {
	switch c.Role {
	case model.UserTypeAdmin:
		return true
	case model.UserTypeTalent:
		return c.UserID == t.TalentID
	case model.UserTypeUniversityStaff:
		return c.UniversityID != nil && *c.UniversityID == t.UniversityID
	default:
		return false
	}
}

// CanManageUniversity reports whether the caller may publish agendas and
// slots for, or administer appointments of, the given university.
func CanManageUniversity(c Caller, universityID int64) bool {
	switch c.Role {
	case model.UserTypeAdmin:
		return true
	case model.UserTypeUniversityStaff:
		return c.UniversityID != nil && *c.UniversityID == universityID
	default:
		return false
	}
}

// CanViewStatistics reports whether the caller may read aggregates for the
// given university. A nil universityID means platform-wide.
func CanViewStatistics(c Caller, universityID *int64) bool {
	switch c.Role {
	case model.UserTypeAdmin:
		return true
	case model.UserTypeUniversityStaff:
		return universityID != nil && c.UniversityID != nil && *c.UniversityID == *universityID
	default:
		return false
	}
}

// ScopeAppointments restricts a query on the appointments table to the rows
// CanAccessAppointment would allow.
func ScopeAppointments(c Caller) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		switch c.Role {
		case model.UserTypeAdmin:
			return db
		case model.UserTypeTalent:
			return db.Where("appointments.talent_id = ?", c.UserID)
		case model.UserTypeUniversityStaff:
			if c.UniversityID == nil {
				return db.Where("1 = 0")
			}
			return db.Where("appointments.calendar_slot_id IN (?)", universitySlotIDs(db, *c.UniversityID))
		default:
			return db.Where("1 = 0")
		}
	}
}

// ScopeUniversity restricts a query joined to agendas to one university when
// the caller is staff. Admins pass through.
func ScopeUniversity(c Caller) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		switch c.Role {
		case model.UserTypeAdmin:
			return db
		case model.UserTypeUniversityStaff:
			if c.UniversityID == nil {
				return db.Where("1 = 0")
			}
			return db.Where("agendas.university_id = ?", *c.UniversityID)
		default:
			return db.Where("1 = 0")
		}
	}
}

func universitySlotIDs(db *gorm.DB, universityID int64) *gorm.DB {
	return db.Session(&gorm.Session{NewDB: true}).
		Table("calendar_slots").
		Select("calendar_slots.id").
		Joins("JOIN agendas ON agendas.id = calendar_slots.agenda_id").
		Where("agendas.university_id = ?", universityID)
}
