package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/codecollab/collab-server/pkg/metrics"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newRedisLimitedRouter(t *testing.T, client *redis.Client, rps float64, burst int, window time.Duration) *gin.Engine {
	t.Helper()
	r := gin.New()
	r.Use(func(c *gin.Context) {
		if u := c.GetHeader("X-User"); u != "" {
			c.Set(UserIDKey, u)
		}
		c.Next()
	})
	r.Use(RedisRateLimitMiddleware(client, rps, burst, window))
	r.GET("/r", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"ok": true}) })
	return r
}

func hit(r http.Handler, user string) *httptest.ResponseRecorder {
	rq := httptest.NewRequest(http.MethodGet, "/r", nil)
	if user != "" {
		rq.Header.Set("X-User", user)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, rq)
	return w
}

func TestRedisRateLimitMiddleware_WindowBudget(t *testing.T) {
	m := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: m.Addr()})
	defer client.Close()

	// window of 60s keeps both requests in the same bucket
	r := newRedisLimitedRouter(t, client, 0, 1, time.Minute)
	rejected := testutil.ToFloat64(metrics.RateLimitRejected.WithLabelValues("redis"))

	require.Equal(t, http.StatusOK, hit(r, "").Code)
	w := hit(r, "")
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	require.Equal(t, "60", w.Header().Get("Retry-After"))
	require.Equal(t, rejected+1, testutil.ToFloat64(metrics.RateLimitRejected.WithLabelValues("redis")))

	keys := m.Keys()
	require.Len(t, keys, 1)
	require.True(t, m.TTL(keys[0]) > 0)

	// counters expire with the window
	m.FastForward(2 * time.Minute)
	require.Empty(t, m.Keys())
}

func TestRedisRateLimitMiddleware_PerUserBudget(t *testing.T) {
	m := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: m.Addr()})
	defer client.Close()

	r := newRedisLimitedRouter(t, client, 0, 1, time.Minute)
	require.Equal(t, http.StatusOK, hit(r, "alice").Code)
	require.Equal(t, http.StatusTooManyRequests, hit(r, "alice").Code)
	require.Equal(t, http.StatusOK, hit(r, "bob").Code)
}

func TestRedisRateLimitMiddleware_AdmitsWhenRedisDown(t *testing.T) {
	m := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: m.Addr(), MaxRetries: -1})
	defer client.Close()
	m.Close()

	r := newRedisLimitedRouter(t, client, 0, 0, time.Minute)
	require.Equal(t, http.StatusOK, hit(r, "").Code)
}
