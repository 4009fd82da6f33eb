package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"appointment-booking-backend/internal/model"
	"appointment-booking-backend/internal/schedule"
)

// AvailableSlots handles GET /api/slots/available.
func (h *Handler) AvailableSlots(c *gin.Context) {
	var q schedule.AvailabilityQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		badRequest(c, err)
		return
	}
	slots, err := h.schedule.AvailableSlots(c.Request.Context(), q)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, slots)
}

// CreateSlot handles POST /api/slots.
func (h *Handler) CreateSlot(c *gin.Context) {
	var in schedule.SlotInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err)
		return
	}
	slot, err := h.schedule.CreateSlot(c.Request.Context(), caller(c), in)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, slot)
}

type slotStatusRequest struct {
	Status model.SlotStatus `json:"status" binding:"required"`
}

// SetSlotStatus handles PATCH /api/slots/:id/status.
func (h *Handler) SetSlotStatus(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req slotStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	slot, err := h.schedule.SetSlotStatus(c.Request.Context(), caller(c), id, req.Status)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, slot)
}
