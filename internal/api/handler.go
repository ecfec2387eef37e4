package api

import (
	"errors"
	"net/http"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"

	"gym-status-backend/internal/coord"
	"gym-status-backend/internal/mw"
	"gym-status-backend/internal/store"
)

// Handler holds shared dependencies for API handlers.
type Handler struct {
	coord   *coord.Coordinator
	store   store.Store
	webpush *webpush.Options
}

// NewHandler creates a new API handler.
func NewHandler(c *coord.Coordinator, s store.Store, webpushOptions *webpush.Options) *Handler {
	return &Handler{
		coord:   c,
		store:   s,
		webpush: webpushOptions,
	}
}

func callerID(c *gin.Context) string {
	return c.GetString(mw.ContextUserID)
}

// respondError maps typed store failures onto HTTP status codes.
// Anything unclassified is a transient internal failure the caller
// may retry.
func respondError(c *gin.Context, err error) {
	switch {
	case store.IsNotFound(err):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error(), "code": "not_found"})
	case errors.Is(err, store.ErrQueueFull):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "code": "capacity"})
	case store.IsConflict(err):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "code": "conflict"})
	case store.IsPrecondition(err):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error(), "code": "precondition"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "transient failure, please retry", "code": "internal"})
	}
}
