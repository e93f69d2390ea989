package handlers

import (
	"net/http"
	"strings"

	"timebased_cover/internal/models"

	"github.com/gin-gonic/gin"
)

// identityKey holds the models.Identity of an authenticated request.
const identityKey = "identity"

// identityMiddleware resolves the bearer token to the calling user and
// stores it in the Gin context.
func (h *Handler) identityMiddleware(c *gin.Context) {
	header := c.GetHeader("Authorization")
	if header == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"error": "missing Authorization header",
		})
		return
	}

	scheme, token, ok := strings.Cut(header, " ")
	if !ok || scheme != "Bearer" || token == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"error": "invalid Authorization header format",
		})
		return
	}

	id, err := h.services.ParseToken(token)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"error": "invalid or expired token",
		})
		return
	}

	c.Set(identityKey, id)
	c.Next()
}

// currentIdentity returns the caller stored by identityMiddleware.
func currentIdentity(c *gin.Context) (models.Identity, bool) {
	v, ok := c.Get(identityKey)
	if !ok {
		return models.Identity{}, false
	}
	id, ok := v.(models.Identity)
	return id, ok
}

// requireInstaller guards maintenance actions: calibration runs and wall
// switch simulation.
func (h *Handler) requireInstaller(c *gin.Context) {
	id, ok := currentIdentity(c)
	if !ok || !id.CanMaintain() {
		if h.log != nil {
			h.log.Infow("maintenance_denied", "user", id.Username, "role", id.Role, "path", c.FullPath())
		}
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
			"error": "installer role required",
		})
		return
	}
	c.Next()
}
