package booking

import (
	"context"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"appointment-booking-backend/internal/apperr"
	"appointment-booking-backend/internal/model"
)

// EligibilityChecker decides whether a talent may book slots of an agenda.
type EligibilityChecker interface {
	Check(ctx context.Context, talent model.User, agenda model.Agenda) error
}

// AgendaEligibility requires an active agenda and an active talent, and
// enforces required university criteria. Academic criteria (year, field, GPA)
// depend on profile data held by the identity service and are not evaluated.
type AgendaEligibility struct{}

// Check implements EligibilityChecker.
func (AgendaEligibility) Check(_ context.Context, talent model.User, agenda model.Agenda) error {
	if !agenda.IsActive {
		return apperr.ErrForbidden.WithMessage("agenda %d is not accepting bookings", agenda.ID)
	}
	if !talent.IsActive {
		return apperr.ErrForbidden.WithMessage("account %d is inactive", talent.ID)
	}

	for _, c := range agenda.Eligibility {
		if !c.IsRequired {
			continue
		}
		switch c.CriteriaType {
		case model.CriteriaUniversity:
			want := strings.TrimSpace(c.CriteriaValue)
			if talent.UniversityID == nil || strconv.FormatInt(*talent.UniversityID, 10) != want {
				return apperr.ErrForbidden.WithMessage("agenda %d is reserved to members of university %s", agenda.ID, want)
			}
		default:
			log.Debug().
				Int64("agenda_id", agenda.ID).
				Str("criteria_type", string(c.CriteriaType)).
				Msg("eligibility criterion not evaluated")
		}
	}
	return nil
}
