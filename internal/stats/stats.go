// Package stats computes read-only aggregates over appointment history.
package stats

import (
	"context"
	"fmt"
	"sort"
	"time"

	"gorm.io/gorm"

	"appointment-booking-backend/internal/apperr"
	"appointment-booking-backend/internal/authz"
	"appointment-booking-backend/internal/model"
	"appointment-booking-backend/internal/parse"
)

// DefaultRangeDays is the look-back window used when no start date is given.
const DefaultRangeDays = 30

// Filter selects the appointments a Summary covers. From and To are
// inclusive YYYY-MM-DD slot dates.
type Filter struct {
	UniversityID *int64
	From         string
	To           string
}

// ThemeCount is the per-theme breakdown of a Summary.
type ThemeCount struct {
	ThemeID   int64  `json:"theme_id"`
	Name      string `json:"name"`
	Count     int    `json:"count"`
	Completed int    `json:"completed"`
	Cancelled int    `json:"cancelled"`
}

// Summary is the statistics payload.
type Summary struct {
	UniversityID          *int64       `json:"university_id,omitempty"`
	StartDate             string       `json:"start_date"`
	EndDate               string       `json:"end_date"`
	TotalAppointments     int          `json:"total_appointments"`
	Confirmed             int          `json:"confirmed"`
	Completed             int          `json:"completed"`
	Cancelled             int          `json:"cancelled"`
	NoShow                int          `json:"no_show"`
	UniqueTalents         int          `json:"unique_talents"`
	AverageRating         *float64     `json:"average_rating"`
	CompletedDurationMins int          `json:"completed_duration_minutes"`
	ByTheme               []ThemeCount `json:"by_theme"`
}

// Aggregator reads appointment history.
type Aggregator struct {
	db  *gorm.DB
	loc *time.Location
	now func() time.Time
}

// NewAggregator creates an Aggregator. Default date ranges are computed in loc.
func NewAggregator(db *gorm.DB, loc *time.Location) *Aggregator {
	if loc == nil {
		loc = time.UTC
	}
	return &Aggregator{db: db, loc: loc, now: time.Now}
}

type row struct {
	Status    model.AppointmentStatus
	TalentID  int64
	Rating    *int
	StartTime string
	EndTime   string
	ThemeID   int64
	ThemeName string
}

// Summary aggregates the appointments visible to caller. Staff are limited to
// their own university; talents and recruiters may not read statistics.
func (a *Aggregator) Summary(ctx context.Context, caller authz.Caller, f Filter) (Summary, error) {
	if caller.IsStaff() && f.UniversityID == nil {
		f.UniversityID = caller.UniversityID
	}
	if !authz.CanViewStatistics(caller, f.UniversityID) {
		return Summary{}, apperr.ErrForbidden.WithMessage("statistics are not available to this user")
	}

	from, to, err := a.dateRange(f)
	if err != nil {
		return Summary{}, err
	}

	q := a.db.WithContext(ctx).
		Table("appointments").
		Select("appointments.status, appointments.talent_id, appointments.rating, " +
			"calendar_slots.start_time, calendar_slots.end_time, " +
			"agendas.theme_id, appointment_themes.name AS theme_name").
		Joins("JOIN calendar_slots ON calendar_slots.id = appointments.calendar_slot_id").
		Joins("JOIN agendas ON agendas.id = calendar_slots.agenda_id").
		Joins("JOIN appointment_themes ON appointment_themes.id = agendas.theme_id").
		Where("calendar_slots.slot_date BETWEEN ? AND ?", from, to)
	if f.UniversityID != nil {
		q = q.Where("agendas.university_id = ?", *f.UniversityID)
	}

	var rows []row
	if err := q.Scan(&rows).Error; err != nil {
		return Summary{}, fmt.Errorf("load statistics: %w", err)
	}

	s := aggregate(rows)
	s.UniversityID = f.UniversityID
	s.StartDate, s.EndDate = from, to
	return s, nil
}

func (a *Aggregator) dateRange(f Filter) (string, string, error) {
	today := a.now().In(a.loc)
	to := today.Format(parse.DateLayout)
	if f.To != "" {
		t, err := parse.ParseDate(f.To, a.loc)
		if err != nil {
			return "", "", apperr.Validation("end_date: %v", err)
		}
		to = t.Format(parse.DateLayout)
		today = t
	}
	from := today.AddDate(0, 0, -DefaultRangeDays).Format(parse.DateLayout)
	if f.From != "" {
		t, err := parse.ParseDate(f.From, a.loc)
		if err != nil {
			return "", "", apperr.Validation("start_date: %v", err)
		}
		from = t.Format(parse.DateLayout)
	}
	if from > to {
		return "", "", apperr.Validation("start_date %s is after end_date %s", from, to)
	}
	return from, to, nil
}

func aggregate(rows []row) Summary {
	s := Summary{ByTheme: []ThemeCount{}}
	talents := make(map[int64]struct{})
	themes := make(map[int64]*ThemeCount)
	ratingSum, rated := 0, 0

	for _, r := range rows {
		s.TotalAppointments++
		talents[r.TalentID] = struct{}{}

		tc, ok := themes[r.ThemeID]
		if !ok {
			tc = &ThemeCount{ThemeID: r.ThemeID, Name: r.ThemeName}
			themes[r.ThemeID] = tc
		}
		tc.Count++

		switch r.Status {
		case model.AppointmentConfirmed:
			s.Confirmed++
		case model.AppointmentCompleted:
			s.Completed++
			tc.Completed++
			if mins, err := parse.MinutesBetween(r.StartTime, r.EndTime); err == nil {
				s.CompletedDurationMins += mins
			}
		case model.AppointmentCancelled:
			s.Cancelled++
			tc.Cancelled++
		case model.AppointmentNoShow:
			s.NoShow++
		}
		if r.Rating != nil {
			ratingSum += *r.Rating
			rated++
		}
	}

	s.UniqueTalents = len(talents)
	if rated > 0 {
		avg := float64(ratingSum) / float64(rated)
		s.AverageRating = &avg
	}
	for _, tc := range themes {
		s.ByTheme = append(s.ByTheme, *tc)
	}
	sort.Slice(s.ByTheme, func(i, j int) bool {
		if s.ByTheme[i].Count != s.ByTheme[j].Count {
			return s.ByTheme[i].Count > s.ByTheme[j].Count
		}
		return s.ByTheme[i].Name < s.ByTheme[j].Name
	})
	return s
}
