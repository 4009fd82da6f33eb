package model

import "time"

// UserType is the role a platform user acts in.
type UserType string

const (
	UserTypeTalent          UserType = "talent"
	UserTypeRecruiter       UserType = "recruiter"
	UserTypeUniversityStaff UserType = "university_staff"
	UserTypeAdmin           UserType = "admin"
)

// University owns agendas and scopes what its staff may see.
type University struct {
	ID           int64     `gorm:"primaryKey" json:"id"`
	Name         string    `gorm:"uniqueIndex;size:255;not null" json:"name"`
	Description  string    `json:"description,omitempty"`
	City         string    `gorm:"size:100" json:"city,omitempty"`
	Country      string    `gorm:"size:100" json:"country,omitempty"`
	ContactEmail string    `gorm:"size:255" json:"contact_email,omitempty"`
	IsActive     bool      `gorm:"not null" json:"is_active"`
	CreatedAt    time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt    time.Time `gorm:"not null" json:"updated_at"`
}

// User is a platform account. Identity itself is managed elsewhere; this row
// carries what booking needs: contact details, role and university scope.
type User struct {
	ID           int64     `gorm:"primaryKey" json:"id"`
	Email        string    `gorm:"uniqueIndex;size:255;not null" json:"email"`
	FirstName    string    `gorm:"size:150" json:"first_name"`
	LastName     string    `gorm:"size:150" json:"last_name"`
	UserType     UserType  `gorm:"size:20;not null;index" json:"user_type"`
	Phone        string    `gorm:"size:20" json:"phone,omitempty"`
	UniversityID *int64    `gorm:"index" json:"university_id,omitempty"`
	IsActive     bool      `gorm:"not null" json:"is_active"`
	CreatedAt    time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt    time.Time `gorm:"not null" json:"updated_at"`

	University *University `gorm:"constraint:OnDelete:SET NULL" json:"university,omitempty"`
}

// FullName returns "First Last", falling back to the email address.
func (u User) FullName() string {
	switch {
	case u.FirstName != "" && u.LastName != "":
		return u.FirstName + " " + u.LastName
	case u.FirstName != "":
		return u.FirstName
	default:
		return u.Email
	}
}

// UserPreferences holds per-user notification switches. A missing row means
// every reminder is enabled.
type UserPreferences struct {
	ID                    int64     `gorm:"primaryKey" json:"id"`
	UserID                int64     `gorm:"uniqueIndex;not null" json:"user_id"`
	EmailRemindersEnabled bool      `gorm:"not null" json:"email_reminders_enabled"`
	Reminder24hEnabled    bool      `gorm:"column:reminder_24h_enabled;not null" json:"reminder_24h_enabled"`
	Reminder1hEnabled     bool      `gorm:"column:reminder_1h_enabled;not null" json:"reminder_1h_enabled"`
	UpdatedAt             time.Time `gorm:"not null" json:"updated_at"`
}

// DefaultPreferences returns the preferences assumed for users without a row.
func DefaultPreferences(userID int64) UserPreferences {
	return UserPreferences{
		UserID:                userID,
		EmailRemindersEnabled: true,
		Reminder24hEnabled:    true,
		Reminder1hEnabled:     true,
	}
}
