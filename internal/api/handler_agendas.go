package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"appointment-booking-backend/internal/apperr"
	"appointment-booking-backend/internal/schedule"
	"appointment-booking-backend/internal/stats"
)

// ListAgendas handles GET /api/agendas.
func (h *Handler) ListAgendas(c *gin.Context) {
	agendas, err := h.schedule.ListAgendas(c.Request.Context(), caller(c), c.Query("university_id"), c.Query("theme_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, agendas)
}

// CreateAgenda handles POST /api/agendas.
func (h *Handler) CreateAgenda(c *gin.Context) {
	var in schedule.AgendaInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err)
		return
	}
	agenda, err := h.schedule.CreateAgenda(c.Request.Context(), caller(c), in)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, agenda)
}

// ListThemes handles GET /api/themes.
func (h *Handler) ListThemes(c *gin.Context) {
	themes, err := h.schedule.ListThemes(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, themes)
}

// Statistics handles GET /api/statistics.
func (h *Handler) Statistics(c *gin.Context) {
	f := stats.Filter{From: c.Query("start_date"), To: c.Query("end_date")}
	if raw := c.Query("university_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			writeError(c, apperr.Validation("university_id must be a positive integer"))
			return
		}
		f.UniversityID = &id
	}
	summary, err := h.stats.Summary(c.Request.Context(), caller(c), f)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}
