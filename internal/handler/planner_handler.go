package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"taskplanner/internal/markdown"
	"taskplanner/internal/middleware"
	"taskplanner/internal/service"

	apperrors "taskplanner/internal/errors"
)

type PlannerHandler struct {
	taskService *service.TaskService
}

type markdownRequest struct {
	Date     string `json:"date"`
	Markdown string `json:"markdown"`
}

func NewPlannerHandler(taskService *service.TaskService) *PlannerHandler {
	return &PlannerHandler{taskService: taskService}
}

func (h *PlannerHandler) GetPlanner(c *gin.Context) {
	view, apiErr := h.taskService.GetPlanner(c.Request.Context(), middleware.UserID(c), c.Query("date"))
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}

	c.JSON(http.StatusOK, view)
}

// GetMarkdown returns the date's text view, or its HTML preview when
// format=html.
func (h *PlannerHandler) GetMarkdown(c *gin.Context) {
	text, apiErr := h.taskService.GetMarkdown(c.Request.Context(), middleware.UserID(c), c.Query("date"))
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}

	if c.Query("format") != "html" {
		c.JSON(http.StatusOK, gin.H{"markdown": text})
		return
	}

	html, err := markdown.RenderHTML(text)
	if err != nil {
		writeError(c, apperrors.Internal("failed to render markdown"))
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(html))
}

func (h *PlannerHandler) SaveMarkdown(c *gin.Context) {
	var req markdownRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeInvalidJSON(c)
		return
	}

	result, apiErr := h.taskService.ApplyMarkdown(c.Request.Context(), middleware.UserID(c), req.Date, req.Markdown)
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}

	c.JSON(http.StatusOK, result)
}
