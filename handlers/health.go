package handlers

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// Check reports whether a dependency is usable.
type Check func(ctx context.Context) error

// Readiness aggregates dependency checks for /ready.
type Readiness struct {
	mu      sync.RWMutex
	started time.Time
	checks  map[string]Check
}

func NewReadiness() *Readiness {
	return &Readiness{started: time.Now(), checks: make(map[string]Check)}
}

// Add registers a named check. A nil check marks the dependency as missing.
func (r *Readiness) Add(name string, check Check) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.checks[name] = check
}

// RegisterHealth mounts /health (liveness) and /ready (dependencies).
func RegisterHealth(g *gin.Engine, ready *Readiness) {
	g.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "healthy")
	})

	g.GET("/ready", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		ready.mu.RLock()
		defer ready.mu.RUnlock()
		ok := true
		deps := make(map[string]bool, len(ready.checks))
		for name, check := range ready.checks {
			healthy := check != nil && check(ctx) == nil
			deps[name] = healthy
			ok = ok && healthy
		}
		uptime := time.Since(ready.started).String()
		if !ok {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready", "deps": deps, "uptime": uptime})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready", "deps": deps, "uptime": uptime})
	})
}
