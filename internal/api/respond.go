package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/sykell/url-scraper/internal/apperr"
	"github.com/sykell/url-scraper/internal/logger"
)

// respondError writes the error response for err. Client errors carry the
// error text; server errors get a generic message and are logged.
func respondError(c *gin.Context, log logger.Logger, err error, msg string) {
	status := apperr.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		log.Error(msg,
			logger.String("path", c.Request.URL.Path),
			logger.Error(err))
		message := "Internal server error"
		if status == http.StatusServiceUnavailable {
			message = "Service temporarily unavailable"
		}
		c.JSON(status, gin.H{"success": false, "error": message})
		return
	}

	log.Debug(msg,
		logger.String("path", c.Request.URL.Path),
		logger.Error(err))
	c.JSON(status, gin.H{"success": false, "error": err.Error()})
}

// parseID reads a numeric path parameter
func parseID(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 32)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}
