package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"appointment-booking-backend/internal/apperr"
	"appointment-booking-backend/internal/authz"
	"appointment-booking-backend/internal/booking"
	"appointment-booking-backend/internal/mw"
	"appointment-booking-backend/internal/schedule"
	"appointment-booking-backend/internal/stats"
	"appointment-booking-backend/internal/store"
)

// Handler holds shared dependencies for API handlers.
type Handler struct {
	store    store.Store
	booking  *booking.Service
	schedule *schedule.Service
	stats    *stats.Aggregator
	webpush  *webpush.Options
}

// NewHandler creates a new API handler.
func NewHandler(s store.Store, b *booking.Service, sch *schedule.Service, agg *stats.Aggregator, webpushOptions *webpush.Options) *Handler {
	return &Handler{
		store:    s,
		booking:  b,
		schedule: sch,
		stats:    agg,
		webpush:  webpushOptions,
	}
}

var statusByKind = map[apperr.Kind]int{
	apperr.KindNotFound:       http.StatusNotFound,
	apperr.KindConflict:       http.StatusConflict,
	apperr.KindDeadlinePassed: http.StatusUnprocessableEntity,
	apperr.KindForbidden:      http.StatusForbidden,
	apperr.KindValidation:     http.StatusBadRequest,
	apperr.KindInternal:       http.StatusInternalServerError,
}

// writeError renders err as {"error": code, "message": text}. Errors outside
// the apperr taxonomy are logged and reported as internal.
func writeError(c *gin.Context, err error) {
	var ae *apperr.Error
	if !errors.As(err, &ae) {
		ae = apperr.Internal("internal server error", err)
	}
	status, ok := statusByKind[ae.Kind]
	if !ok {
		status = http.StatusInternalServerError
	}
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
		c.AbortWithStatusJSON(status, gin.H{"error": "internal", "message": "internal server error"})
		return
	}
	c.AbortWithStatusJSON(status, gin.H{"error": ae.Code, "message": ae.Message})
}

func badRequest(c *gin.Context, err error) {
	writeError(c, apperr.Validation("invalid request: %v", err))
}

func badRequestMsg(c *gin.Context, msg string) {
	writeError(c, apperr.Validation("%s", msg))
}

// caller returns the authenticated caller. Routes using it sit behind mw.Auth.
func caller(c *gin.Context) authz.Caller {
	cl, _ := mw.CallerFrom(c)
	return cl
}

// pathID parses a positive integer path parameter.
func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		writeError(c, apperr.Validation("%s must be a positive integer", name))
		return 0, false
	}
	return id, true
}

// Health reports liveness.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
