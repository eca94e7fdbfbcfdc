package middleware

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/sykell/url-scraper/internal/logger"
)

// RequestLogger logs one structured entry per HTTP request
func RequestLogger(log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		fields := []logger.Field{
			logger.String("method", c.Request.Method),
			logger.String("path", path),
			logger.Int("status", c.Writer.Status()),
			logger.Duration("duration", time.Since(start)),
			logger.String("client_ip", c.ClientIP()),
		}
		if query != "" {
			fields = append(fields, logger.String("query", query))
		}
		if user, ok := GetUserFromContext(c); ok {
			fields = append(fields, logger.String("user", user.Username))
		}
		if !strings.HasPrefix(path, "/health") && !strings.HasPrefix(path, "/metrics") {
			fields = append(fields, logger.String("user_agent", c.Request.UserAgent()))
		}

		if len(c.Errors) > 0 {
			fields = append(fields, logger.Strings("errors", c.Errors.Errors()))
			log.Error("HTTP request with errors", fields...)
			return
		}
		log.Info("HTTP request", fields...)
	}
}
