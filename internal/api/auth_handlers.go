package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/sykell/url-scraper/internal/apperr"
	"github.com/sykell/url-scraper/internal/auth"
	"github.com/sykell/url-scraper/internal/logger"
	"github.com/sykell/url-scraper/internal/middleware"
)

// LoginRequest represents the login request payload. Credential rules are
// left to the gate so a bad password always reads as invalid credentials.
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// LoginResponse represents the login response payload
type LoginResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	Token     string `json:"token"`
	Username  string `json:"username"`
	ExpiresIn int64  `json:"expires_in"`
}

// LoginHandler handles user authentication
func LoginHandler(gate *auth.Gate, log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req LoginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			log.Debug("Login validation error", logger.Error(err))
			c.JSON(http.StatusBadRequest, gin.H{
				"success": false,
				"message": "Invalid request format",
				"error":   err.Error(),
			})
			return
		}

		// Sanitize input
		req.Username = strings.TrimSpace(req.Username)

		token, err := gate.Login(c.Request.Context(), req.Username, req.Password)
		if err != nil {
			if errors.Is(err, apperr.ErrUnauthorized) {
				log.Info("Failed login attempt", logger.String("username", req.Username))
				c.JSON(http.StatusUnauthorized, gin.H{
					"success": false,
					"message": "Invalid credentials",
				})
				return
			}
			respondError(c, log, err, "Login failed")
			return
		}

		log.Info("Successful login", logger.String("username", token.Identity.Username))
		c.JSON(http.StatusOK, LoginResponse{
			Success:   true,
			Message:   "Login successful",
			Token:     token.Value,
			Username:  token.Identity.Username,
			ExpiresIn: token.ExpiresIn(),
		})
	}
}

// LogoutHandler revokes the token the request was authenticated with
func LogoutHandler(gate *auth.Gate, log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := gate.Logout(c.Request.Context(), middleware.GetTokenFromContext(c)); err != nil {
			respondError(c, log, err, "Logout failed")
			return
		}

		if user, ok := middleware.GetUserFromContext(c); ok {
			log.Info("User logged out", logger.String("username", user.Username))
		}
		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}
