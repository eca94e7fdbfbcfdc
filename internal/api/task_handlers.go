package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/sykell/url-scraper/internal/db"
	"github.com/sykell/url-scraper/internal/logger"
	"github.com/sykell/url-scraper/internal/scheduler"
)

// CreateTaskRequest represents a scheduled task creation request
type CreateTaskRequest struct {
	Name          string   `json:"name" binding:"required,max=255"`
	URLs          []string `json:"urls" binding:"required,min=1"`
	Schedule      string   `json:"schedule" binding:"required"`
	RespectRobots *bool    `json:"respect_robots"`
}

// TaskResponse is a task with its URL list and next fire time
type TaskResponse struct {
	db.ScheduledTask
	URLs    []string   `json:"urls"`
	NextRun *time.Time `json:"next_run"`
}

func newTaskResponse(s *scheduler.Scheduler, task db.ScheduledTask) TaskResponse {
	resp := TaskResponse{ScheduledTask: task, URLs: task.URLList()}
	if next, ok := s.NextRun(task.ID); ok {
		resp.NextRun = &next
	}
	return resp
}

// ListTasksHandler returns all scheduled tasks
func ListTasksHandler(s *scheduler.Scheduler, log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		tasks, err := s.List(c.Request.Context())
		if err != nil {
			respondError(c, log, err, "Failed to list tasks")
			return
		}

		out := make([]TaskResponse, len(tasks))
		for i, task := range tasks {
			out[i] = newTaskResponse(s, task)
		}
		c.JSON(http.StatusOK, gin.H{"tasks": out})
	}
}

// CreateTaskHandler stores and schedules a new task
func CreateTaskHandler(s *scheduler.Scheduler, log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateTaskRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"success": false,
				"error":   "Invalid request format",
				"details": err.Error(),
			})
			return
		}

		task, err := s.Create(c.Request.Context(), req.Name, req.URLs, req.Schedule, respectRobots(req.RespectRobots))
		if err != nil {
			respondError(c, log, err, "Failed to create task")
			return
		}

		c.JSON(http.StatusCreated, newTaskResponse(s, *task))
	}
}

// TaskActionHandler applies pause, resume or delete to a task
func TaskActionHandler(action func(context.Context, uint) error, log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseID(c, "id")
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid task ID"})
			return
		}

		if err := action(c.Request.Context(), id); err != nil {
			respondError(c, log, err, "Task update failed")
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}

// RunTaskHandler runs a task immediately and returns its batch result
func RunTaskHandler(s *scheduler.Scheduler, log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseID(c, "id")
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid task ID"})
			return
		}

		report, err := s.RunNow(context.WithoutCancel(c.Request.Context()), id)
		if err != nil {
			respondError(c, log, err, "Task run failed")
			return
		}
		c.JSON(http.StatusOK, newBatchResponse(report))
	}
}
