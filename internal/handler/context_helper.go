package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/document-archive-api/internal/middleware"
	"github.com/noah-isme/document-archive-api/internal/models"
)

// currentUserID returns the authenticated caller's id, or nil for anonymous requests.
func currentUserID(c *gin.Context) *int64 {
	value, exists := c.Get(middleware.ContextUserKey)
	if !exists {
		return nil
	}
	claims, ok := value.(*models.JWTClaims)
	if !ok {
		return nil
	}
	if id := claims.Identity(); id > 0 {
		return &id
	}
	return nil
}
