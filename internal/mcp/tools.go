package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
	_ "time/tzdata"

	apperrors "taskplanner/internal/errors"
	"taskplanner/internal/model"
	"taskplanner/internal/service"
)

const isoLayout = "2006-01-02T15:04:05.000Z07:00"

type toolFunc func(ctx context.Context, userID string, args json.RawMessage) (*CallToolResult, error)

type toolEntry struct {
	def        Tool
	permission model.Permission
	run        toolFunc
}

var quadrantEnum = []string{
	string(model.QuadrantUrgentImportant),
	string(model.QuadrantUrgentNotImportant),
	string(model.QuadrantNotUrgentImportant),
	string(model.QuadrantNotUrgentNotImportant),
}

var difficultyEnum = []string{
	string(model.DifficultyEasy),
	string(model.DifficultyMedium),
	string(model.DifficultyHard),
}

func (s *Server) registerTools() {
	s.tools = make(map[string]toolEntry)

	s.addTool(toolEntry{
		def: Tool{
			Name:        "todays_date",
			Description: "Get current date and time information in caller's timezone",
			InputSchema: objectSchema(map[string]interface{}{
				"timezone": prop("string", "IANA timezone name (e.g., 'America/New_York', 'Europe/London'). Defaults to UTC if not provided."),
			}),
		},
		run: s.todaysDate,
	})
	s.addTool(toolEntry{
		def: Tool{
			Name:        "list_tasks",
			Description: "List all tasks for a specific date (authenticated user)",
			InputSchema: objectSchema(map[string]interface{}{
				"date": prop("string", "Date in YYYY-MM-DD format"),
			}, "date"),
		},
		permission: model.PermissionRead,
		run:        s.listTasks,
	})
	s.addTool(toolEntry{
		def: Tool{
			Name:        "create_task",
			Description: "Create a new task for a specific date (authenticated user)",
			InputSchema: objectSchema(map[string]interface{}{
				"date":         prop("string", "Date in YYYY-MM-DD format"),
				"title":        prop("string", "Task title"),
				"description":  prop("string", "Task description"),
				"quadrant":     enumProp(quadrantEnum, "Task quadrant in Eisenhower Matrix"),
				"priority":     prop("number", "Priority order within quadrant"),
				"timeRequired": prop("string", `Estimated time required (e.g., "2 hours")`),
				"timeBlock":    prop("string", `Planned time block (e.g., "3-5 PM")`),
				"difficulty":   enumProp(difficultyEnum, "Task difficulty level"),
				"tags":         stringArrayProp("Task tags"),
			}, "date", "title", "quadrant"),
		},
		permission: model.PermissionCreate,
		run:        s.createTask,
	})
	s.addTool(toolEntry{
		def: Tool{
			Name:        "edit_task",
			Description: "Edit an existing task by nanoId (authenticated user)",
			InputSchema: objectSchema(map[string]interface{}{
				"nanoId": prop("string", "Unique nanoId of the task to edit"),
				"updates": map[string]interface{}{
					"type":        "object",
					"description": "Fields to update",
					"properties": map[string]interface{}{
						"title":        map[string]interface{}{"type": "string"},
						"description":  map[string]interface{}{"type": "string"},
						"isCompleted":  map[string]interface{}{"type": "boolean"},
						"quadrant":     map[string]interface{}{"type": "string", "enum": quadrantEnum},
						"priority":     map[string]interface{}{"type": "number"},
						"timeRequired": map[string]interface{}{"type": "string"},
						"timeBlock":    map[string]interface{}{"type": "string"},
						"difficulty":   map[string]interface{}{"type": "string", "enum": difficultyEnum},
						"tags":         map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}},
					},
				},
			}, "nanoId", "updates"),
		},
		permission: model.PermissionUpdate,
		run:        s.editTask,
	})
	s.addTool(toolEntry{
		def: Tool{
			Name:        "delete_task",
			Description: "Delete a task by nanoId (authenticated user)",
			InputSchema: objectSchema(map[string]interface{}{
				"nanoId": prop("string", "Unique nanoId of the task to delete"),
			}, "nanoId"),
		},
		permission: model.PermissionDelete,
		run:        s.deleteTask,
	})
	s.addTool(toolEntry{
		def: Tool{
			Name:        "mark_task_complete",
			Description: "Mark a task as completed by nanoId (authenticated user)",
			InputSchema: objectSchema(map[string]interface{}{
				"nanoId": prop("string", "Unique nanoId of the task to mark as complete"),
				"completed": map[string]interface{}{
					"type":        "boolean",
					"description": "Whether to mark as completed or incomplete",
					"default":     true,
				},
			}, "nanoId"),
		},
		permission: model.PermissionUpdate,
		run:        s.markTaskComplete,
	})
}

func (s *Server) addTool(entry toolEntry) {
	s.tools[entry.def.Name] = entry
	s.order = append(s.order, entry.def.Name)
}

type todaysDateArgs struct {
	Timezone string `json:"timezone"`
}

type dateInfo struct {
	ISO           string `json:"iso"`
	Date          string `json:"date"`
	Time          string `json:"time"`
	Timestamp     int64  `json:"timestamp"`
	Timezone      string `json:"timezone"`
	LocalDate     string `json:"localDate"`
	LocalTime     string `json:"localTime"`
	LocalDateTime string `json:"localDateTime"`
	Weekday       string `json:"weekday"`
	Month         string `json:"month"`
}

func (s *Server) todaysDate(_ context.Context, _ string, raw json.RawMessage) (*CallToolResult, error) {
	var args todaysDateArgs
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	if args.Timezone == "" {
		args.Timezone = "UTC"
	}
	loc, err := time.LoadLocation(args.Timezone)
	if err != nil {
		return nil, newError(CodeInvalidParams, "Invalid timezone %q", args.Timezone)
	}

	now := s.now()
	utc := now.UTC()
	local := now.In(loc)
	info := dateInfo{
		ISO:           utc.Format(isoLayout),
		Date:          utc.Format(model.DateLayout),
		Time:          utc.Format("15:04:05"),
		Timestamp:     now.UnixMilli(),
		Timezone:      args.Timezone,
		LocalDate:     local.Format(model.DateLayout),
		LocalTime:     local.Format("15:04:05"),
		LocalDateTime: local.Format("2006-01-02 15:04:05"),
		Weekday:       local.Weekday().String(),
		Month:         local.Month().String(),
	}
	return jsonResult("Current date and time information:", info)
}

type listTasksArgs struct {
	Date string `json:"date"`
}

func (s *Server) listTasks(ctx context.Context, userID string, raw json.RawMessage) (*CallToolResult, error) {
	var args listTasksArgs
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	if args.Date == "" {
		return nil, newError(CodeInvalidParams, "date is required")
	}

	tasks, apiErr := s.tasks.ListTasksByDate(ctx, userID, args.Date)
	if apiErr != nil {
		return nil, apiErr
	}
	return jsonResult(fmt.Sprintf("Found %d tasks for %s:", len(tasks), args.Date), tasks)
}

type createTaskArgs struct {
	Date         string           `json:"date"`
	Title        string           `json:"title"`
	Description  string           `json:"description"`
	Quadrant     model.Quadrant   `json:"quadrant"`
	Priority     *int             `json:"priority"`
	TimeRequired string           `json:"timeRequired"`
	TimeBlock    string           `json:"timeBlock"`
	Difficulty   model.Difficulty `json:"difficulty"`
	Tags         []string         `json:"tags"`
}

func (s *Server) createTask(ctx context.Context, userID string, raw json.RawMessage) (*CallToolResult, error) {
	var args createTaskArgs
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	if args.Date == "" || args.Title == "" || args.Quadrant == "" {
		return nil, newError(CodeInvalidParams, "date, title and quadrant are required")
	}

	task, apiErr := s.tasks.CreateTask(ctx, userID, service.CreateTaskInput{
		Date:         args.Date,
		Title:        args.Title,
		Description:  args.Description,
		Quadrant:     args.Quadrant,
		Priority:     args.Priority,
		TimeRequired: args.TimeRequired,
		TimeBlock:    args.TimeBlock,
		Difficulty:   args.Difficulty,
		Tags:         args.Tags,
	})
	if apiErr != nil {
		return nil, apiErr
	}
	return jsonResult("Task created successfully!", task)
}

type editTaskArgs struct {
	NanoID  string          `json:"nanoId"`
	Updates model.TaskPatch `json:"updates"`
}

func (s *Server) editTask(ctx context.Context, userID string, raw json.RawMessage) (*CallToolResult, error) {
	var args editTaskArgs
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	if args.NanoID == "" {
		return nil, newError(CodeInvalidParams, "nanoId is required")
	}

	task, apiErr := s.tasks.UpdateTaskByShortID(ctx, userID, args.NanoID, args.Updates)
	if apiErr != nil {
		return nil, apiErr
	}
	return jsonResult(fmt.Sprintf("Task %q updated successfully!", args.NanoID), task)
}

type nanoIDArgs struct {
	NanoID string `json:"nanoId"`
}

func (s *Server) deleteTask(ctx context.Context, userID string, raw json.RawMessage) (*CallToolResult, error) {
	var args nanoIDArgs
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	if args.NanoID == "" {
		return nil, newError(CodeInvalidParams, "nanoId is required")
	}

	if _, apiErr := s.tasks.DeleteTaskByShortID(ctx, userID, args.NanoID); apiErr != nil {
		return nil, apiErr
	}
	return textResult(fmt.Sprintf("Task %q deleted successfully!", args.NanoID)), nil
}

type markCompleteArgs struct {
	NanoID    string `json:"nanoId"`
	Completed *bool  `json:"completed"`
}

func (s *Server) markTaskComplete(ctx context.Context, userID string, raw json.RawMessage) (*CallToolResult, error) {
	var args markCompleteArgs
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	if args.NanoID == "" {
		return nil, newError(CodeInvalidParams, "nanoId is required")
	}
	completed := args.Completed == nil || *args.Completed

	task, apiErr := s.tasks.SetCompletion(ctx, userID, args.NanoID, completed)
	if apiErr != nil {
		return nil, apiErr
	}
	state := "incomplete"
	if completed {
		state = "completed"
	}
	return jsonResult(fmt.Sprintf("Task %q marked as %s successfully!", args.NanoID, state), task)
}

func decodeArgs(raw json.RawMessage, dst interface{}) error {
	if err := json.Unmarshal(raw, dst); err != nil {
		return newError(CodeInvalidParams, "Invalid arguments: %v", err)
	}
	return nil
}

func jsonResult(heading string, value interface{}) (*CallToolResult, error) {
	body, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}
	return textResult(heading + "\n\n" + string(body)), nil
}

// toolError maps a failure inside a resolved tool onto the envelope.
// Argument problems keep their own code; everything else is an execution
// failure.
func toolError(err error) *Error {
	var rpcErr *Error
	if errors.As(err, &rpcErr) {
		return rpcErr
	}
	var apiErr *apperrors.APIError
	if errors.As(err, &apiErr) {
		return &Error{Code: CodeInternalError, Message: apiErr.Message}
	}
	return &Error{Code: CodeInternalError, Message: err.Error()}
}

func objectSchema(properties map[string]interface{}, required ...string) map[string]interface{} {
	if required == nil {
		required = []string{}
	}
	return map[string]interface{}{
		"type":       "object",
		"properties": properties,
		"required":   required,
	}
}

func prop(kind, description string) map[string]interface{} {
	return map[string]interface{}{"type": kind, "description": description}
}

func enumProp(values []string, description string) map[string]interface{} {
	return map[string]interface{}{"type": "string", "enum": values, "description": description}
}

func stringArrayProp(description string) map[string]interface{} {
	return map[string]interface{}{
		"type":        "array",
		"items":       map[string]interface{}{"type": "string"},
		"description": description,
	}
}
