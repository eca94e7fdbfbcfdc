package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/sykell/url-scraper/internal/apperr"
	"github.com/sykell/url-scraper/internal/crawler"
	"github.com/sykell/url-scraper/internal/export"
	"github.com/sykell/url-scraper/internal/logger"
	"github.com/sykell/url-scraper/internal/middleware"
	"github.com/sykell/url-scraper/internal/scrape"
	"github.com/sykell/url-scraper/internal/service"
)

const recentSessions = 6

// ScrapeRequest represents a single URL scrape request
type ScrapeRequest struct {
	URL           string `json:"url" binding:"required"`
	RespectRobots *bool  `json:"respect_robots"`
}

// BatchRequest represents a batch scrape request
type BatchRequest struct {
	URLs          []string `json:"urls" binding:"required"`
	RespectRobots *bool    `json:"respect_robots"`
}

// BatchItem is one URL's entry in a batch response
type BatchItem struct {
	URL       string `json:"url"`
	Success   bool   `json:"success"`
	WordCount *int   `json:"word_count,omitempty"`
	CharCount *int   `json:"char_count,omitempty"`
	Error     string `json:"error,omitempty"`
}

// BatchResponse represents a finished batch
type BatchResponse struct {
	Success    bool        `json:"success"`
	SessionID  uint        `json:"session_id"`
	TotalURLs  int         `json:"total_urls"`
	Successful int         `json:"successful"`
	Results    []BatchItem `json:"results"`
}

func newBatchResponse(report *crawler.BatchReport) BatchResponse {
	resp := BatchResponse{
		Success:    true,
		SessionID:  report.SessionID,
		TotalURLs:  report.TotalURLs,
		Successful: report.Successful,
		Results:    make([]BatchItem, len(report.Results)),
	}

	for i, r := range report.Results {
		item := BatchItem{URL: r.URL}
		switch o := r.Outcome.(type) {
		case scrape.Success:
			words, chars := o.Metrics.WordCount, o.Metrics.CharCount
			item.Success = true
			item.WordCount = &words
			item.CharCount = &chars
		case scrape.Failure:
			item.Error = o.Error()
		}
		resp.Results[i] = item
	}
	return resp
}

func respectRobots(flag *bool) bool {
	return flag == nil || *flag
}

// DashboardHandler returns the current user, the latest sessions and totals
func DashboardHandler(sessions *service.SessionStore, log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		recent, err := sessions.List(c.Request.Context(), recentSessions)
		if err != nil {
			respondError(c, log, err, "Failed to list recent sessions")
			return
		}

		stats, err := sessions.Stats(c.Request.Context())
		if err != nil {
			respondError(c, log, err, "Failed to compute stats")
			return
		}

		user := gin.H{}
		if identity, ok := middleware.GetUserFromContext(c); ok {
			user["username"] = identity.Username
		}

		c.JSON(http.StatusOK, gin.H{
			"user":            user,
			"recent_sessions": recent,
			"stats":           stats,
		})
	}
}

// ListSessionsHandler returns every session, newest first
func ListSessionsHandler(sessions *service.SessionStore, log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		list, err := sessions.List(c.Request.Context(), 0)
		if err != nil {
			respondError(c, log, err, "Failed to list sessions")
			return
		}
		c.JSON(http.StatusOK, gin.H{"sessions": list})
	}
}

// ScrapeHandler scrapes one URL into its own session
func ScrapeHandler(coordinator *crawler.Coordinator, log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ScrapeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"success": false,
				"error":   "Invalid request format",
				"details": err.Error(),
			})
			return
		}

		target := strings.TrimSpace(req.URL)
		if target == "" {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "URL cannot be empty"})
			return
		}

		// The scrape outlives a disconnected client so the session completes.
		ctx := context.WithoutCancel(c.Request.Context())
		report, err := coordinator.Run(ctx, "Single URL: "+target, []string{target}, respectRobots(req.RespectRobots))
		if err != nil {
			respondError(c, log, err, "Scrape failed")
			return
		}

		switch o := report.Results[0].Outcome.(type) {
		case scrape.Success:
			c.JSON(http.StatusOK, gin.H{
				"success":    true,
				"session_id": report.SessionID,
				"url":        target,
				"title":      o.Title,
				"content":    o.Content,
				"metrics": gin.H{
					"word_count": o.Metrics.WordCount,
					"char_count": o.Metrics.CharCount,
					"line_count": o.Metrics.LineCount,
					"timestamp":  time.Now().UTC().Format(time.RFC3339),
				},
			})
		case scrape.Failure:
			c.JSON(failureStatus(o.Kind), gin.H{
				"success":    false,
				"session_id": report.SessionID,
				"url":        target,
				"error":      o.Error(),
			})
		}
	}
}

// failureStatus maps a single-URL failure to the response status
func failureStatus(kind scrape.FailureKind) int {
	switch kind {
	case scrape.KindInvalidURL:
		return http.StatusBadRequest
	case scrape.KindRobotsDisallowed:
		return http.StatusForbidden
	default:
		return apperr.HTTPStatus(apperr.ErrUpstreamFetch)
	}
}

// BatchHandler scrapes a URL list into one session. Individual failures are
// reported per URL; the request succeeds once every URL has an outcome.
func BatchHandler(coordinator *crawler.Coordinator, log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req BatchRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"success": false,
				"error":   "Invalid request format",
				"details": err.Error(),
			})
			return
		}

		urls := make([]string, len(req.URLs))
		for i, u := range req.URLs {
			urls[i] = strings.TrimSpace(u)
		}

		ctx := context.WithoutCancel(c.Request.Context())
		name := fmt.Sprintf("Batch: %d URLs", len(urls))
		report, err := coordinator.Run(ctx, name, urls, respectRobots(req.RespectRobots))
		if err != nil {
			respondError(c, log, err, "Batch scrape failed")
			return
		}

		c.JSON(http.StatusOK, newBatchResponse(report))
	}
}

// GetSessionHandler returns a session with its results in input order
func GetSessionHandler(sessions *service.SessionStore, log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseID(c, "id")
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid session ID"})
			return
		}

		session, results, err := sessions.Get(c.Request.Context(), id)
		if err != nil {
			respondError(c, log, err, "Failed to load session")
			return
		}

		c.JSON(http.StatusOK, gin.H{"session": session, "data": results})
	}
}

// ExportHandler streams a session export in the requested format
func ExportHandler(renderer *export.Renderer, log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseID(c, "id")
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid session ID"})
			return
		}

		doc, err := renderer.Render(c.Request.Context(), id, c.DefaultQuery("format", string(export.FormatCSV)))
		if err != nil {
			respondError(c, log, err, "Export failed")
			return
		}

		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", doc.Filename))
		c.Data(http.StatusOK, doc.ContentType, doc.Body)
	}
}

// DeleteSessionHandler removes a finished session and its results
func DeleteSessionHandler(sessions *service.SessionStore, log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseID(c, "id")
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid session ID"})
			return
		}

		if err := sessions.Delete(c.Request.Context(), id); err != nil {
			respondError(c, log, err, "Failed to delete session")
			return
		}

		log.Info("Session deleted", logger.Uint("session_id", id))
		c.JSON(http.StatusOK, gin.H{"success": true, "message": "Session deleted"})
	}
}
