package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"stock-chat/backend/pkg/errors"
	"stock-chat/backend/pkg/jwt"
	"stock-chat/backend/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAuthRouter(svc *jwt.Service) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(errors.ErrorHandler())
	r.GET("/me", JWTAuth(svc), func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString(IdentityKey))
	})
	return r
}

func TestJWTAuth(t *testing.T) {
	svc := jwt.NewService("secret", time.Hour)
	token, err := svc.GenerateToken("alice")
	require.NoError(t, err)
	r := newAuthRouter(svc)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "alice", w.Body.String())

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/me?token="+token, nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/me", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), errors.CodeUnauthorized)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/me?token=bogus", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRateLimiterMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rl := NewRateLimiter(logger.NewNop(), RateLimiterOptions{
		Limit:      0.5,
		Burst:      2,
		IdleExpiry: time.Minute,
		KeyFunc:    func(c *gin.Context) string { return "fixed" },
	})
	defer rl.Stop()

	r := gin.New()
	r.Use(errors.ErrorHandler(), rl.Middleware())
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	codes := make([]int, 3)
	var last *httptest.ResponseRecorder
	for i := range codes {
		last = httptest.NewRecorder()
		r.ServeHTTP(last, httptest.NewRequest(http.MethodGet, "/", nil))
		codes[i] = last.Code
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
	// one token every two seconds
	assert.Equal(t, "2", last.Header().Get("Retry-After"))
	assert.Equal(t, "2", last.Header().Get("X-RateLimit-Limit"))
	assert.Contains(t, last.Body.String(), errors.CodeRateLimited)
}

func TestRateLimiterKeysOnIdentity(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rl := NewRateLimiter(logger.NewNop(), RateLimiterOptions{Limit: 0.001, Burst: 1})
	defer rl.Stop()

	r := gin.New()
	r.Use(errors.ErrorHandler())
	r.GET("/", func(c *gin.Context) {
		if who := c.Query("who"); who != "" {
			c.Set(IdentityKey, who)
		}
	}, rl.Middleware(), func(c *gin.Context) { c.Status(http.StatusOK) })

	get := func(path string) int {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.RemoteAddr = "10.0.0.1:1234"
		r.ServeHTTP(w, req)
		return w.Code
	}

	// same address, different identities draw from separate buckets
	assert.Equal(t, http.StatusOK, get("/?who=alice"))
	assert.Equal(t, http.StatusOK, get("/?who=bob"))
	assert.Equal(t, http.StatusTooManyRequests, get("/?who=alice"))

	// anonymous callers share the address bucket
	assert.Equal(t, http.StatusOK, get("/"))
	assert.Equal(t, http.StatusTooManyRequests, get("/"))
}

func TestCallerKey(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	c.Request.RemoteAddr = "192.0.2.7:5555"
	assert.Equal(t, "ip:192.0.2.7", CallerKey(c))

	c.Set(IdentityKey, "alice")
	assert.Equal(t, "identity:alice", CallerKey(c))
}

func TestRateLimiterSweepsIdleBuckets(t *testing.T) {
	rl := NewRateLimiter(logger.NewNop(), RateLimiterOptions{Limit: 1, Burst: 1, IdleExpiry: time.Minute})
	now := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	assert.True(t, rl.Allow("old"))
	now = now.Add(45 * time.Second)
	assert.True(t, rl.Allow("new"))
	now = now.Add(30 * time.Second)

	assert.Equal(t, 1, rl.sweep())
	rl.mu.Lock()
	_, kept := rl.buckets["new"]
	assert.Len(t, rl.buckets, 1)
	rl.mu.Unlock()
	assert.True(t, kept)
}
