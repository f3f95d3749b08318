package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "taskplanner/internal/errors"
	"taskplanner/internal/middleware"
	"taskplanner/internal/model"
	"taskplanner/internal/service"
)

type TaskHandler struct {
	taskService *service.TaskService
}

func NewTaskHandler(taskService *service.TaskService) *TaskHandler {
	return &TaskHandler{taskService: taskService}
}

// List answers either ?plannerId= or ?date=.
func (h *TaskHandler) List(c *gin.Context) {
	userID := middleware.UserID(c)

	var (
		tasks  []model.Task
		apiErr *apperrors.APIError
	)
	switch {
	case c.Query("plannerId") != "":
		tasks, apiErr = h.taskService.ListTasks(c.Request.Context(), userID, c.Query("plannerId"))
	case c.Query("date") != "":
		tasks, apiErr = h.taskService.ListTasksByDate(c.Request.Context(), userID, c.Query("date"))
	default:
		apiErr = apperrors.BadRequest("invalid_query", "plannerId or date is required")
	}
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}

	c.JSON(http.StatusOK, gin.H{"tasks": tasks})
}

func (h *TaskHandler) Create(c *gin.Context) {
	var req service.CreateTaskInput
	if err := c.ShouldBindJSON(&req); err != nil {
		writeInvalidJSON(c)
		return
	}

	task, apiErr := h.taskService.CreateTask(c.Request.Context(), middleware.UserID(c), req)
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"task": task})
}

func (h *TaskHandler) Update(c *gin.Context) {
	var patch model.TaskPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		writeInvalidJSON(c)
		return
	}

	task, apiErr := h.taskService.UpdateTask(c.Request.Context(), middleware.UserID(c), c.Param("id"), patch)
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}

	c.JSON(http.StatusOK, gin.H{"task": task})
}

func (h *TaskHandler) Delete(c *gin.Context) {
	if apiErr := h.taskService.DeleteTask(c.Request.Context(), middleware.UserID(c), c.Param("id")); apiErr != nil {
		writeError(c, apiErr)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *TaskHandler) Reorder(c *gin.Context) {
	var req service.ReorderInput
	if err := c.ShouldBindJSON(&req); err != nil {
		writeInvalidJSON(c)
		return
	}

	tasks, apiErr := h.taskService.Reorder(c.Request.Context(), middleware.UserID(c), req)
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}

	c.JSON(http.StatusOK, gin.H{"tasks": tasks})
}
