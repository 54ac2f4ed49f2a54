package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/codecollab/collab-server/internal/users"
	"github.com/codecollab/collab-server/pkg/logger"
	"github.com/codecollab/collab-server/pkg/middleware"
)

// RegisterMe mounts GET /me. Calling it records the caller in the user
// directory so other owners can add them by username or email.
func RegisterMe(rg *gin.RouterGroup, auth gin.HandlerFunc, userSvc *users.Service) {
	rg.GET("/me", auth, func(c *gin.Context) {
		claims, _ := c.Get(middleware.ClaimsKey)
		cm, _ := claims.(map[string]interface{})
		u, err := userSvc.UpsertFromClaims(c.Request.Context(), cm)
		if err != nil {
			logger.Errorf("user upsert failed: %v", err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "user upsert failed"})
			return
		}
		if u == nil {
			c.JSON(http.StatusOK, gin.H{"claims": claims})
			return
		}
		c.JSON(http.StatusOK, gin.H{"user": u})
	})
}
