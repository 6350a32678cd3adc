package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"bridge-service/internal/middleware"
	"bridge-service/internal/repositories"
	"bridge-service/internal/services"
)

const requestIDContextKey = "request_id"

func requestIDFromContext(c *gin.Context) string {
	if val, ok := c.Get(requestIDContextKey); ok {
		if id, ok := val.(string); ok && id != "" {
			return id
		}
	}

	requestID := c.GetHeader("X-Request-ID")
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Set(requestIDContextKey, requestID)
	return requestID
}

func callerIdentity(c *gin.Context) services.Identity {
	identity, ok := middleware.IdentityFromContext(c)
	if !ok {
		return services.Identity{}
	}
	return services.Identity{Name: identity.Name}
}

// writeServiceError maps the service error taxonomy onto HTTP statuses:
// missing resources are 404, rejected payloads 400, missing identity 401,
// anything else 500.
func writeServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, repositories.ErrChannelNotFound),
		errors.Is(err, repositories.ErrMappingNotFound),
		errors.Is(err, repositories.ErrEventNotFound),
		errors.Is(err, repositories.ErrMessageNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, services.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, services.ErrUnauthorized):
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
