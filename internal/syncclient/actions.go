package syncclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"taskplanner/internal/model"
)

// StatusError is a non-2xx answer from the API.
type StatusError struct {
	Status  int
	Code    string
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%d %s: %s", e.Status, e.Code, e.Message)
}

type NewTask struct {
	PlannerID    string           `json:"plannerId,omitempty"`
	Date         string           `json:"date,omitempty"`
	Title        string           `json:"title"`
	Description  string           `json:"description,omitempty"`
	Quadrant     model.Quadrant   `json:"quadrant"`
	Priority     *int             `json:"priority,omitempty"`
	TimeRequired string           `json:"timeRequired,omitempty"`
	TimeBlock    string           `json:"timeBlock,omitempty"`
	Difficulty   model.Difficulty `json:"difficulty,omitempty"`
	Tags         []string         `json:"tags,omitempty"`
}

type ReorderItem struct {
	ID       string         `json:"id"`
	Quadrant model.Quadrant `json:"quadrant"`
	Priority int            `json:"priority"`
}

type PlannerResponse struct {
	Planner model.Planner `json:"planner"`
	Tasks   []model.Task  `json:"tasks"`
}

// Actions is the thin HTTP layer for mutations. Responses are checked for
// errors only; the resulting state arrives as a broadcast.
type Actions struct {
	baseURL string
	token   string
	client  *http.Client
}

func NewActions(baseURL, token string, client *http.Client) *Actions {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &Actions{baseURL: strings.TrimRight(baseURL, "/"), token: token, client: client}
}

func (a *Actions) FetchPlanner(ctx context.Context, date string) (*PlannerResponse, error) {
	var out PlannerResponse
	if err := a.do(ctx, http.MethodGet, "/api/planner?date="+url.QueryEscape(date), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (a *Actions) CreateTask(ctx context.Context, task NewTask) error {
	return a.do(ctx, http.MethodPost, "/api/tasks", task, nil)
}

func (a *Actions) UpdateTask(ctx context.Context, taskID string, patch model.TaskPatch) error {
	return a.do(ctx, http.MethodPut, "/api/tasks/"+url.PathEscape(taskID), patch, nil)
}

func (a *Actions) DeleteTask(ctx context.Context, taskID string) error {
	return a.do(ctx, http.MethodDelete, "/api/tasks/"+url.PathEscape(taskID), nil, nil)
}

// MoveTask sets a task's quadrant and priority in one call.
func (a *Actions) MoveTask(ctx context.Context, taskID string, quadrant model.Quadrant, priority int) error {
	body := map[string]interface{}{
		"taskId":      taskID,
		"newQuadrant": quadrant,
		"newPriority": priority,
	}
	return a.do(ctx, http.MethodPut, "/api/tasks/reorder", body, nil)
}

func (a *Actions) ReorderTasks(ctx context.Context, items []ReorderItem) error {
	return a.do(ctx, http.MethodPut, "/api/tasks/reorder", map[string]interface{}{"taskUpdates": items}, nil)
}

func (a *Actions) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+a.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var envelope struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&envelope)
		return &StatusError{Status: resp.StatusCode, Code: envelope.Error.Code, Message: envelope.Error.Message}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
