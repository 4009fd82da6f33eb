package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"appointment-booking-backend/internal/booking"
	"appointment-booking-backend/internal/model"
	"appointment-booking-backend/internal/store"
)

type bookRequest struct {
	SlotID int64  `json:"slot_id"`
	Notes  string `json:"notes"`
}

// BookAppointment handles POST /api/appointments/book.
func (h *Handler) BookAppointment(c *gin.Context) {
	var req bookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	appt, err := h.booking.BookSlot(c.Request.Context(), caller(c), booking.BookRequest{
		SlotID: req.SlotID,
		Notes:  req.Notes,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, appt)
}

// CancelAppointment handles POST /api/appointments/:id/cancel.
func (h *Handler) CancelAppointment(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	appt, err := h.booking.CancelAppointment(c.Request.Context(), caller(c), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, appt)
}

type completeRequest struct {
	StaffNotes string `json:"staff_notes"`
}

// CompleteAppointment handles POST /api/appointments/:id/complete.
func (h *Handler) CompleteAppointment(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req completeRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
	}
	appt, err := h.booking.CompleteAppointment(c.Request.Context(), caller(c), id, req.StaffNotes)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, appt)
}

// MarkNoShow handles POST /api/appointments/:id/no-show.
func (h *Handler) MarkNoShow(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	appt, err := h.booking.MarkNoShow(c.Request.Context(), caller(c), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, appt)
}

type feedbackRequest struct {
	Rating   int    `json:"rating"`
	Feedback string `json:"feedback"`
}

// SubmitFeedback handles POST /api/appointments/:id/feedback.
func (h *Handler) SubmitFeedback(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req feedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	appt, err := h.booking.SubmitFeedback(c.Request.Context(), caller(c), id, booking.FeedbackRequest{
		Rating:   req.Rating,
		Feedback: req.Feedback,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, appt)
}

type listAppointmentsQuery struct {
	Status    string `form:"status" binding:"omitempty,oneof=pending confirmed cancelled completed no_show"`
	StartDate string `form:"start_date" binding:"omitempty,datetime=2006-01-02"`
	EndDate   string `form:"end_date" binding:"omitempty,datetime=2006-01-02"`
}

// ListAppointments handles GET /api/appointments. Results are limited to
// what the caller may see.
func (h *Handler) ListAppointments(c *gin.Context) {
	var q listAppointmentsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		badRequest(c, err)
		return
	}
	appts, err := h.booking.ListAppointments(c.Request.Context(), caller(c), store.AppointmentFilter{
		Status: model.AppointmentStatus(q.Status),
		From:   q.StartDate,
		To:     q.EndDate,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, appts)
}

// GetAppointment handles GET /api/appointments/:id.
func (h *Handler) GetAppointment(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	appt, err := h.booking.GetAppointment(c.Request.Context(), caller(c), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, appt)
}
