package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// GetMachines handles GET /api/gyms/:gym_id/machines. The snapshot is
// served from the coordinator's read cache.
func (h *Handler) GetMachines(c *gin.Context) {
	gymID := c.Param("gym_id")
	machines, err := h.coord.MachineSnapshot(c.Request.Context(), gymID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, machines)
}

// GetQueue handles GET /api/gyms/:gym_id/machines/:machine_id/queue.
func (h *Handler) GetQueue(c *gin.Context) {
	entries, err := h.coord.GetQueue(c.Request.Context(), c.Param("gym_id"), c.Param("machine_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, entries)
}
