package mw

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"golang.org/x/time/rate"
)

func newLimitedEngine(r rate.Limit, b int) *gin.Engine {
	gin.SetMode(gin.TestMode)
	e := gin.New()
	e.Use(RateLimiter(r, b))
	e.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })
	return e
}

func ping(e *gin.Engine, addr string) int {
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.RemoteAddr = addr
	w := httptest.NewRecorder()
	e.ServeHTTP(w, req)
	return w.Code
}

func TestRateLimiter_BurstAdmitsBackToBackRequests(t *testing.T) {
	e := newLimitedEngine(1000, 20)
	for i := 0; i < 20; i++ {
		assert.Equal(t, http.StatusOK, ping(e, "10.0.0.1:1234"))
	}
}

func TestRateLimiter_RejectsOverLimitPerClient(t *testing.T) {
	e := newLimitedEngine(1, 1)
	assert.Equal(t, http.StatusOK, ping(e, "10.0.0.1:1234"))
	assert.Equal(t, http.StatusTooManyRequests, ping(e, "10.0.0.1:1234"))

	// Each client has its own bucket.
	assert.Equal(t, http.StatusOK, ping(e, "10.0.0.2:1234"))
}
