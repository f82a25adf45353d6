package ratelimit

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jashabalcom/dubai-wealth-ai-sub007/internal/cache"
)

type counterStore struct {
	counts map[string]int64
	err    error
}

func (s *counterStore) Get(ctx context.Context, key string) (string, time.Time, error) {
	return "", time.Time{}, cache.ErrMiss
}

func (s *counterStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return nil
}

func (s *counterStore) Delete(ctx context.Context, key string) error {
	return nil
}

func (s *counterStore) Incr(ctx context.Context, key string, window time.Duration) (int64, time.Time, error) {
	if s.err != nil {
		return 0, time.Time{}, s.err
	}
	s.counts[key]++
	return s.counts[key], time.Now().Add(window), nil
}

func newRouter(rl *RateLimiter) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(rl.Middleware())
	r.POST("/functions/process-commissions", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"success": true})
	})
	r.POST("/functions/process-affiliate-payouts", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"success": true})
	})
	return r
}

func post(r *gin.Engine, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, path, nil)
	req.RemoteAddr = "203.0.113.7:4000"
	r.ServeHTTP(w, req)
	return w
}

func TestMiddleware_RejectsOverBudget(t *testing.T) {
	store := &counterStore{counts: map[string]int64{}}
	r := newRouter(NewRateLimiter(cache.New(store), 2, true))

	assert.Equal(t, http.StatusOK, post(r, "/functions/process-commissions").Code)
	w := post(r, "/functions/process-commissions")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))

	w = post(r, "/functions/process-commissions")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
	assert.Contains(t, w.Body.String(), `"success":false`)

	// budgets are per route
	assert.Equal(t, http.StatusOK, post(r, "/functions/process-affiliate-payouts").Code)
	require.Contains(t, store.counts, "ratelimit:"+Key("203.0.113.7", "/functions/process-commissions"))
}

func TestMiddleware_FailModes(t *testing.T) {
	store := &counterStore{counts: map[string]int64{}, err: errors.New("db down")}

	open := newRouter(NewRateLimiter(cache.New(store), 2, true))
	assert.Equal(t, http.StatusOK, post(open, "/functions/process-commissions").Code)

	closed := newRouter(NewRateLimiter(cache.New(store, cache.WithFailMode(cache.FailClosed)), 2, true))
	assert.Equal(t, http.StatusTooManyRequests, post(closed, "/functions/process-commissions").Code)
}

func TestMiddleware_Disabled(t *testing.T) {
	store := &counterStore{counts: map[string]int64{}}
	r := newRouter(NewRateLimiter(cache.New(store), 1, false))

	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, post(r, "/functions/process-commissions").Code)
	}
	assert.Empty(t, store.counts)
}
