package api

import (
	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"gym-status-backend/internal/coord"
	"gym-status-backend/internal/mw"
	"gym-status-backend/internal/store"
	"gym-status-backend/internal/ws"
)

// RouterConfig carries the knobs the router needs beyond its
// collaborators.
type RouterConfig struct {
	JWTSecret       string
	RateLimitPerSec float64
	RateLimitBurst  int
}

// NewRouter creates and configures a new Gin router.
func NewRouter(c *coord.Coordinator, s store.Store, hub *ws.Hub, webpushOptions *webpush.Options, cfg RouterConfig) *gin.Engine {
	r := gin.Default()

	handler := NewHandler(c, s, webpushOptions)
	// The burst tracks the rate when unset, so a high configured rate
	// is not throttled by a tiny fixed bucket.
	burst := cfg.RateLimitBurst
	if burst <= 0 {
		burst = int(cfg.RateLimitPerSec)
	}
	if burst < 1 {
		burst = 1
	}
	rateLimiter := mw.RateLimiter(rate.Limit(cfg.RateLimitPerSec), burst)

	// Real-time connections authenticate in-band with their first
	// message, so the websocket route sits outside the auth group.
	r.GET("/ws", func(gc *gin.Context) {
		ws.ServeWS(hub, cfg.JWTSecret, gc.Writer, gc.Request)
	})

	api := r.Group("/api")
	api.Use(rateLimiter)
	{
		api.GET("/gyms/:gym_id/machines", handler.GetMachines)
		api.GET("/gyms/:gym_id/machines/:machine_id/queue", handler.GetQueue)
		api.GET("/vapid_public_key", handler.GetVAPIDPublicKey)

		authed := api.Group("")
		authed.Use(mw.Auth(cfg.JWTSecret))
		{
			authed.POST("/gyms/:gym_id/machines/:machine_id/tagon", handler.TagOn)
			authed.POST("/gyms/:gym_id/machines/:machine_id/tagoff", handler.TagOff)
			authed.POST("/gyms/:gym_id/machines/:machine_id/enqueue", handler.Enqueue)
			authed.DELETE("/gyms/:gym_id/queue", handler.Dequeue)
			authed.POST("/gyms/:gym_id/session", handler.ToggleGymSession)

			authed.GET("/subscriptions", handler.GetSubscription)
			authed.PUT("/subscriptions", handler.PutSubscription)
			authed.DELETE("/subscriptions", handler.DeleteSubscription)
		}
	}

	return r
}
