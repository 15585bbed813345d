package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/sitiograph/sitio-profile-api/internal/middleware"
	"github.com/sitiograph/sitio-profile-api/internal/models"
)

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	value, exists := c.Get(middleware.ContextUserKey)
	if !exists {
		return nil
	}
	claims, ok := value.(*models.JWTClaims)
	if !ok {
		return nil
	}
	return claims
}

// actorFromContext falls back to the system actor when no session exists,
// for routes mounted without the JWT middleware.
func actorFromContext(c *gin.Context) models.Actor {
	return claimsFromContext(c).Actor()
}
