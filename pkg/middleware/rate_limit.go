package middleware

import (
	"net/http"
	"sync"

	"github.com/codecollab/collab-server/pkg/metrics"
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// LimiterStore holds one token-bucket limiter per key.
type LimiterStore struct {
	rps      float64
	burst    int
	limiters sync.Map // map[string]*rate.Limiter
}

func NewLimiterStore(rps float64, burst int) *LimiterStore {
	return &LimiterStore{rps: rps, burst: burst}
}

// Get returns (and lazily creates) the limiter for key.
func (s *LimiterStore) Get(key string) *rate.Limiter {
	if v, ok := s.limiters.Load(key); ok {
		return v.(*rate.Limiter)
	}
	v, _ := s.limiters.LoadOrStore(key, rate.NewLimiter(rate.Limit(s.rps), s.burst))
	return v.(*rate.Limiter)
}

// Forget drops the limiter for key.
func (s *LimiterStore) Forget(key string) {
	s.limiters.Delete(key)
}

// RateLimitMiddleware returns a Gin middleware enforcing a token-bucket per-key limit.
// Key selection: the authenticated user when present (per-user NAT-friendly
// limiting), otherwise the client IP from Gin.
// rps = allowed events per second, burst = maximum tokens in bucket.
func RateLimitMiddleware(rps float64, burst int) gin.HandlerFunc {
	store := NewLimiterStore(rps, burst)
	return func(c *gin.Context) {
		if !store.Get(rateKey(c)).Allow() {
			c.Header("Retry-After", "1")
			metrics.RateLimitRejected.WithLabelValues("memory").Inc()
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "Rate limit exceeded"})
			return
		}
		metrics.RateLimitAllowed.WithLabelValues("memory").Inc()
		c.Next()
	}
}
