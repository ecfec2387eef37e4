package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// TagOn handles POST /api/gyms/:gym_id/machines/:machine_id/tagon.
func (h *Handler) TagOn(c *gin.Context) {
	res, err := h.coord.TagOn(c.Request.Context(), callerID(c), c.Param("machine_id"), c.Param("gym_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, res.Log)
}

// TagOff handles POST /api/gyms/:gym_id/machines/:machine_id/tagoff.
func (h *Handler) TagOff(c *gin.Context) {
	res, err := h.coord.TagOff(c.Request.Context(), callerID(c), c.Param("machine_id"), c.Param("gym_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res.Log)
}

// Enqueue handles POST /api/gyms/:gym_id/machines/:machine_id/enqueue.
func (h *Handler) Enqueue(c *gin.Context) {
	res, err := h.coord.Enqueue(c.Request.Context(), callerID(c), c.Param("machine_id"), c.Param("gym_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"item": res.Item, "position": res.Position})
}

// Dequeue handles DELETE /api/gyms/:gym_id/queue. Users can only
// leave their own queue entry, wherever it is.
func (h *Handler) Dequeue(c *gin.Context) {
	res, err := h.coord.Dequeue(c.Request.Context(), c.Param("gym_id"), callerID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"item": res.Item})
}

// ToggleGymSession handles POST /api/gyms/:gym_id/session.
func (h *Handler) ToggleGymSession(c *gin.Context) {
	state, err := h.coord.ToggleGymSession(c.Request.Context(), callerID(c), c.Param("gym_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"gymSession": state})
}
