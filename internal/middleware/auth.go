package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/sykell/url-scraper/internal/apperr"
	"github.com/sykell/url-scraper/internal/auth"
	"github.com/sykell/url-scraper/internal/logger"
)

const (
	userKey  = "user"
	tokenKey = "token"
)

// TokenValidator resolves a bearer token to an identity
type TokenValidator interface {
	Validate(ctx context.Context, raw string) (*auth.Identity, error)
}

// JWTRequired middleware validates bearer tokens and stores the identity in
// the request context. Every token problem gets the same 401 response.
func JWTRequired(validator TokenValidator, log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenStr := bearerToken(c.GetHeader("Authorization"))

		identity, err := validator.Validate(c.Request.Context(), tokenStr)
		if err != nil {
			if errors.Is(err, apperr.ErrUnauthorized) {
				log.Debug("Token rejected",
					logger.String("path", c.Request.URL.Path),
					logger.Error(err))
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
					"success": false,
					"error":   "Invalid or expired token",
				})
				return
			}

			log.Error("Token validation failed", logger.Error(err))
			c.AbortWithStatusJSON(apperr.HTTPStatus(err), gin.H{
				"success": false,
				"error":   "Authentication temporarily unavailable",
			})
			return
		}

		c.Set(userKey, *identity)
		c.Set(tokenKey, tokenStr)
		c.Next()
	}
}

// GetUserFromContext extracts user information from the request context
func GetUserFromContext(c *gin.Context) (*auth.Identity, bool) {
	v, exists := c.Get(userKey)
	if !exists {
		return nil, false
	}

	identity, ok := v.(auth.Identity)
	if !ok {
		return nil, false
	}

	return &identity, true
}

// GetTokenFromContext returns the raw bearer token of an authenticated request
func GetTokenFromContext(c *gin.Context) string {
	return c.GetString(tokenKey)
}

func bearerToken(header string) string {
	const prefix = "Bearer "
	if len(header) < len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}
