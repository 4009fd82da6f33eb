package notification

import (
	"encoding/json"
	"fmt"
	"strings"

	"appointment-booking-backend/internal/model"
)

// Snapshot is everything a message about one appointment needs, captured at
// send time.
type Snapshot struct {
	AppointmentID        int64
	BookingReference     string
	TalentID             int64
	TalentName           string
	TalentEmail          string
	StaffName            string
	UniversityName       string
	ThemeName            string
	AgendaName           string
	SlotDate             string
	StartTime            string
	EndTime              string
	Location             string
	MeetingType          model.MeetingType
	MeetingLink          string
	CancellationDeadline int
	CancelledByStaff     bool
}

// Message is a rendered notification.
type Message struct {
	Subject string
	Body    string
	Title   string
	Short   string
}

// Render builds the message for one notification kind.
func Render(kind model.NotificationKind, s Snapshot) Message {
	when := fmt.Sprintf("%s from %s to %s", s.SlotDate, s.StartTime, s.EndTime)

	var b strings.Builder
	fmt.Fprintf(&b, "Dear %s,\n\n", s.TalentName)

	var m Message
	switch kind {
	case model.NotifyConfirmation:
		m.Subject = fmt.Sprintf("Appointment confirmed - %s at %s", s.ThemeName, s.UniversityName)
		m.Title = "Appointment confirmed"
		m.Short = fmt.Sprintf("%s on %s", s.ThemeName, when)
		b.WriteString("Your appointment has been confirmed.\n\n")
		writeDetails(&b, s, when)
		fmt.Fprintf(&b, "\nYou can cancel up to %d hours before the start of the appointment.\n", s.CancellationDeadline)
	case model.NotifyReminder24h:
		m.Subject = fmt.Sprintf("Reminder: %s tomorrow at %s", s.ThemeName, s.StartTime)
		m.Title = "Appointment tomorrow"
		m.Short = fmt.Sprintf("%s on %s", s.ThemeName, when)
		b.WriteString("This is a reminder that you have an appointment tomorrow.\n\n")
		writeDetails(&b, s, when)
	case model.NotifyReminder1h:
		m.Subject = fmt.Sprintf("Your %s appointment starts in 1 hour", s.ThemeName)
		m.Title = "Appointment in 1 hour"
		m.Short = fmt.Sprintf("%s at %s", s.ThemeName, s.StartTime)
		b.WriteString("Your appointment starts in one hour.\n\n")
		writeDetails(&b, s, when)
	case model.NotifyCancellation:
		m.Subject = fmt.Sprintf("Appointment cancelled - %s", s.SlotDate)
		m.Title = "Appointment cancelled"
		m.Short = fmt.Sprintf("%s on %s", s.ThemeName, when)
		if s.CancelledByStaff {
			fmt.Fprintf(&b, "We are sorry to inform you that %s has cancelled your appointment.\n\n", s.UniversityName)
		} else {
			b.WriteString("Your appointment has been cancelled as requested.\n\n")
		}
		writeDetails(&b, s, when)
		b.WriteString("\nYou are welcome to book another slot.\n")
	default:
		m.Subject = "Appointment update"
		m.Title = m.Subject
		writeDetails(&b, s, when)
	}

	fmt.Fprintf(&b, "\nBest regards,\n%s Career Services\n", s.UniversityName)
	m.Body = b.String()
	return m
}

func writeDetails(b *strings.Builder, s Snapshot, when string) {
	fmt.Fprintf(b, "Reference: %s\n", s.BookingReference)
	fmt.Fprintf(b, "Topic: %s (%s)\n", s.ThemeName, s.AgendaName)
	fmt.Fprintf(b, "When: %s\n", when)
	if s.StaffName != "" {
		fmt.Fprintf(b, "With: %s\n", s.StaffName)
	}
	switch {
	case s.MeetingType == model.MeetingOnline && s.MeetingLink != "":
		fmt.Fprintf(b, "Join online: %s\n", s.MeetingLink)
	case s.MeetingType == model.MeetingPhone:
		b.WriteString("Format: phone call\n")
	case s.Location != "":
		fmt.Fprintf(b, "Location: %s\n", s.Location)
	}
}

type pushPayload struct {
	Title         string                 `json:"title"`
	Body          string                 `json:"body"`
	AppointmentID int64                  `json:"appointment_id"`
	Kind          model.NotificationKind `json:"kind"`
}

// PushPayload encodes the short form of a message for web push.
func PushPayload(kind model.NotificationKind, appointmentID int64, m Message) ([]byte, error) {
	return json.Marshal(pushPayload{Title: m.Title, Body: m.Short, AppointmentID: appointmentID, Kind: kind})
}

// snapshotOf flattens a fully preloaded appointment.
func snapshotOf(a model.Appointment) Snapshot {
	s := Snapshot{
		AppointmentID:    a.ID,
		BookingReference: a.BookingReference,
		TalentID:         a.TalentID,
		CancelledByStaff: a.CancelledByID != nil && *a.CancelledByID != a.TalentID,
	}
	if a.Talent != nil {
		s.TalentName = a.Talent.FullName()
		s.TalentEmail = a.Talent.Email
	}
	if slot := a.CalendarSlot; slot != nil {
		s.SlotDate, s.StartTime, s.EndTime = slot.SlotDate, slot.StartTime, slot.EndTime
		s.Location, s.MeetingType, s.MeetingLink = slot.Location, slot.MeetingType, slot.MeetingLink
		if slot.Staff != nil {
			s.StaffName = slot.Staff.FullName()
		}
		if ag := slot.Agenda; ag != nil {
			s.AgendaName = ag.Name
			s.CancellationDeadline = ag.CancellationDeadlineHours
			if ag.University != nil {
				s.UniversityName = ag.University.Name
			}
			if ag.Theme != nil {
				s.ThemeName = ag.Theme.Name
			}
		}
	}
	return s
}
