package mcp_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"taskplanner/internal/db"
	"taskplanner/internal/mcp"
	"taskplanner/internal/model"
	"taskplanner/internal/realtime"
	"taskplanner/internal/repository"
	"taskplanner/internal/service"
)

type created struct {
	date   string
	userID string
	task   model.Task
}

type recorder struct {
	realtime.NoopBroadcaster

	mu      sync.Mutex
	created []created
	updated []model.Task
	deleted []string
}

func (r *recorder) BroadcastTaskCreated(task model.Task, date, userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.created = append(r.created, created{date: date, userID: userID, task: task})
}

func (r *recorder) BroadcastTaskUpdated(task model.Task, _, _ string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updated = append(r.updated, task)
}

func (r *recorder) BroadcastTaskDeleted(taskID, _, _ string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deleted = append(r.deleted, taskID)
}

type fixture struct {
	engine   http.Handler
	services *service.Services
	recorder *recorder
}

type rpcEnvelope struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result"`
	Error   *mcp.Error      `json:"error"`
	ID      json.RawMessage `json:"id"`
}

func setup(t *testing.T) fixture {
	t.Helper()

	database, err := db.OpenSQLite(filepath.Join(t.TempDir(), "mcp.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() {
		_ = database.Close()
	})
	if err := db.RunMigrations(database, db.MigrationSource("")); err != nil {
		t.Fatalf("run migrations: %v", err)
	}

	users := repository.NewUserRepository(database)
	for _, id := range []string{"userA", "userB"} {
		now := time.Now().UTC()
		if err := users.Create(context.Background(), &model.User{
			ID: id, Email: id + "@example.com", PasswordHash: "x", CreatedAt: now, UpdatedAt: now,
		}); err != nil {
			t.Fatalf("create user: %v", err)
		}
	}

	rec := &recorder{}
	services := service.NewServices(database, rec, "test-secret", time.Hour)
	server := mcp.NewServer(services.Tasks, services.APIKeys)

	engine := gin.New()
	group := engine.Group("/api/mcp", server.Authenticate())
	group.POST("", server.HandlePost)
	group.GET("", server.HandleStream)

	return fixture{engine: engine, services: services, recorder: rec}
}

func newKey(t *testing.T, f fixture, userID string, allowDelete bool) string {
	t.Helper()

	input := service.CreateAPIKeyInput{Name: "agent"}
	if allowDelete {
		input.Permissions = &service.PermissionsInput{Delete: &allowDelete}
	}
	key, apiErr := f.services.APIKeys.Create(context.Background(), userID, input)
	if apiErr != nil {
		t.Fatalf("create api key: %v", apiErr)
	}
	return key.Key
}

func rpc(t *testing.T, f fixture, key, body string) (int, rpcEnvelope) {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, "/api/mcp", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}
	recorder := httptest.NewRecorder()
	f.engine.ServeHTTP(recorder, req)

	var env rpcEnvelope
	if recorder.Body.Len() > 0 {
		if err := json.Unmarshal(recorder.Body.Bytes(), &env); err != nil {
			t.Fatalf("decode envelope %q: %v", recorder.Body.String(), err)
		}
	}
	return recorder.Code, env
}

func callTool(t *testing.T, f fixture, key, name string, args interface{}) rpcEnvelope {
	t.Helper()

	raw, err := json.Marshal(map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "tools/call",
		"params":  map[string]interface{}{"name": name, "arguments": args},
	})
	if err != nil {
		t.Fatalf("marshal call: %v", err)
	}
	status, env := rpc(t, f, key, string(raw))
	if status != http.StatusOK {
		t.Fatalf("tools/call %s: status %d", name, status)
	}
	return env
}

func toolText(t *testing.T, env rpcEnvelope) string {
	t.Helper()

	if env.Error != nil {
		t.Fatalf("unexpected rpc error %+v", env.Error)
	}
	var result mcp.CallToolResult
	if err := json.Unmarshal(env.Result, &result); err != nil {
		t.Fatalf("decode tool result: %v", err)
	}
	if len(result.Content) != 1 || result.Content[0].Type != "text" {
		t.Fatalf("unexpected content %+v", result.Content)
	}
	return result.Content[0].Text
}

func TestRequestsWithoutValidKeyAreRejected(t *testing.T) {
	f := setup(t)

	for _, key := range []string{"", "mcp_" + strings.Repeat("f", 64)} {
		status, env := rpc(t, f, key, `{"jsonrpc":"2.0","id":1,"method":"tools/list"}`)
		if status != http.StatusUnauthorized {
			t.Fatalf("key %q: expected 401, got %d", key, status)
		}
		if env.Error == nil || env.Error.Code != mcp.CodeUnauthorized {
			t.Fatalf("key %q: unexpected envelope %+v", key, env)
		}
		if string(env.ID) != "null" {
			t.Fatalf("expected null id, got %s", env.ID)
		}
	}
}

func TestInitializeEchoesProtocolVersion(t *testing.T) {
	f := setup(t)
	key := newKey(t, f, "userA", false)

	_, env := rpc(t, f, key, `{"jsonrpc":"2.0","id":"a","method":"initialize","params":{"protocolVersion":"2024-11-05"}}`)
	var result mcp.InitializeResult
	if err := json.Unmarshal(env.Result, &result); err != nil {
		t.Fatalf("decode initialize: %v", err)
	}
	if result.ProtocolVersion != "2024-11-05" || result.ServerInfo.Name != "task-planner-mcp-server" {
		t.Fatalf("unexpected initialize result %+v", result)
	}
	if string(env.ID) != `"a"` {
		t.Fatalf("id not echoed: %s", env.ID)
	}

	_, env = rpc(t, f, key, `{"jsonrpc":"2.0","id":2,"method":"initialize","params":{}}`)
	if err := json.Unmarshal(env.Result, &result); err != nil {
		t.Fatalf("decode initialize: %v", err)
	}
	if result.ProtocolVersion != "2025-06-18" {
		t.Fatalf("expected default protocol version, got %q", result.ProtocolVersion)
	}
}

func TestNotificationsGetNoBody(t *testing.T) {
	f := setup(t)
	key := newKey(t, f, "userA", false)

	bodies := map[string]string{
		"initialized notification": `{"jsonrpc":"2.0","method":"notifications/initialized"}`,
		"request without id":       `{"jsonrpc":"2.0","method":"tools/list"}`,
	}
	for name, body := range bodies {
		t.Run(name, func(t *testing.T) {
			status, env := rpc(t, f, key, body)
			if status != http.StatusAccepted {
				t.Fatalf("expected 202, got %d", status)
			}
			if env.Result != nil || env.Error != nil {
				t.Fatalf("expected no body, got %+v", env)
			}
		})
	}
}

func TestToolsListCarriesEveryTool(t *testing.T) {
	f := setup(t)
	key := newKey(t, f, "userA", false)

	_, env := rpc(t, f, key, `{"jsonrpc":"2.0","id":1,"method":"tools/list"}`)
	var result mcp.ListToolsResult
	if err := json.Unmarshal(env.Result, &result); err != nil {
		t.Fatalf("decode tools/list: %v", err)
	}

	var names []string
	for _, tool := range result.Tools {
		names = append(names, tool.Name)
	}
	want := "todays_date,list_tasks,create_task,edit_task,delete_task,mark_task_complete"
	if strings.Join(names, ",") != want {
		t.Fatalf("unexpected tools %v", names)
	}
}

func TestErrorCodesAreDistinct(t *testing.T) {
	f := setup(t)
	key := newKey(t, f, "userA", false)

	tests := []struct {
		name string
		body string
		code int
	}{
		{name: "parse error", body: `{"jsonrpc":`, code: mcp.CodeParseError},
		{name: "missing method", body: `{"jsonrpc":"2.0","id":1}`, code: mcp.CodeInvalidRequest},
		{name: "wrong jsonrpc version", body: `{"jsonrpc":"1.0","id":1,"method":"tools/list"}`, code: mcp.CodeInvalidRequest},
		{name: "missing jsonrpc version", body: `{"id":1,"method":"tools/list"}`, code: mcp.CodeInvalidRequest},
		{name: "unknown method", body: `{"jsonrpc":"2.0","id":1,"method":"resources/list"}`, code: mcp.CodeMethodNotFound},
		{name: "unknown tool", body: `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"fly","arguments":{}}}`, code: mcp.CodeInvalidParams},
		{name: "execution failure", body: `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"edit_task","arguments":{"nanoId":"missing1","updates":{"title":"x"}}}}`, code: mcp.CodeInternalError},
		{name: "bad timezone", body: `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"todays_date","arguments":{"timezone":"Mars/Olympus"}}}`, code: mcp.CodeInvalidParams},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, env := rpc(t, f, key, tt.body)
			if status != http.StatusOK {
				t.Fatalf("expected 200, got %d", status)
			}
			if env.Error == nil || env.Error.Code != tt.code {
				t.Fatalf("expected code %d, got %+v", tt.code, env.Error)
			}
		})
	}
}

func TestCreateTaskBroadcastsToBrowsers(t *testing.T) {
	f := setup(t)
	key := newKey(t, f, "userA", false)

	text := toolText(t, callTool(t, f, key, "create_task", map[string]interface{}{
		"date": "2024-01-15", "title": "Buy milk", "quadrant": "urgent-important", "tags": []string{"home"},
	}))
	if !strings.HasPrefix(text, "Task created successfully!\n\n") {
		t.Fatalf("unexpected text %q", text)
	}

	var task model.Task
	if err := json.Unmarshal([]byte(strings.TrimPrefix(text, "Task created successfully!\n\n")), &task); err != nil {
		t.Fatalf("decode created task: %v", err)
	}
	if task.NanoID == "" || task.UserID != "userA" {
		t.Fatalf("unexpected task %+v", task)
	}

	f.recorder.mu.Lock()
	defer f.recorder.mu.Unlock()
	if len(f.recorder.created) != 1 || f.recorder.created[0].date != "2024-01-15" || f.recorder.created[0].userID != "userA" {
		t.Fatalf("expected one broadcast for the date room, got %+v", f.recorder.created)
	}
}

func TestListTasksReportsCount(t *testing.T) {
	f := setup(t)
	key := newKey(t, f, "userA", false)

	for _, title := range []string{"One", "Two"} {
		toolText(t, callTool(t, f, key, "create_task", map[string]interface{}{
			"date": "2024-01-15", "title": title, "quadrant": "not-urgent-important",
		}))
	}

	text := toolText(t, callTool(t, f, key, "list_tasks", map[string]interface{}{"date": "2024-01-15"}))
	if !strings.HasPrefix(text, "Found 2 tasks for 2024-01-15:") {
		t.Fatalf("unexpected text %q", text)
	}
}

func TestDeleteNeedsPermissionAndOwnership(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	task, apiErr := f.services.Tasks.CreateTask(ctx, "userA", service.CreateTaskInput{
		Date: "2024-01-15", Title: "Keep me", Quadrant: model.QuadrantUrgentImportant,
	})
	if apiErr != nil {
		t.Fatalf("create task: %v", apiErr)
	}

	env := callTool(t, f, newKey(t, f, "userA", false), "delete_task", map[string]interface{}{"nanoId": task.NanoID})
	if env.Error == nil || !strings.Contains(env.Error.Message, "delete") {
		t.Fatalf("expected permission error, got %+v", env.Error)
	}

	env = callTool(t, f, newKey(t, f, "userB", true), "delete_task", map[string]interface{}{"nanoId": task.NanoID})
	if env.Error == nil || env.Error.Code != mcp.CodeInternalError || !strings.Contains(env.Error.Message, "not found") {
		t.Fatalf("expected not found for another user's task, got %+v", env.Error)
	}

	tasks, _ := f.services.Tasks.ListTasksByDate(ctx, "userA", "2024-01-15")
	if len(tasks) != 1 {
		t.Fatalf("task must survive foreign delete, got %d tasks", len(tasks))
	}

	text := toolText(t, callTool(t, f, newKey(t, f, "userA", true), "delete_task", map[string]interface{}{"nanoId": task.NanoID}))
	if text != `Task "`+task.NanoID+`" deleted successfully!` {
		t.Fatalf("unexpected text %q", text)
	}
	if len(f.recorder.deleted) != 1 || f.recorder.deleted[0] != task.ID {
		t.Fatalf("expected delete broadcast, got %+v", f.recorder.deleted)
	}
}

func TestMarkTaskCompleteDefaultsToCompleted(t *testing.T) {
	f := setup(t)
	key := newKey(t, f, "userA", false)

	task, apiErr := f.services.Tasks.CreateTask(context.Background(), "userA", service.CreateTaskInput{
		Date: "2024-01-15", Title: "Ship", Quadrant: model.QuadrantUrgentImportant,
	})
	if apiErr != nil {
		t.Fatalf("create task: %v", apiErr)
	}

	text := toolText(t, callTool(t, f, key, "mark_task_complete", map[string]interface{}{"nanoId": task.NanoID}))
	if !strings.HasPrefix(text, `Task "`+task.NanoID+`" marked as completed successfully!`) {
		t.Fatalf("unexpected text %q", text)
	}

	text = toolText(t, callTool(t, f, key, "mark_task_complete", map[string]interface{}{"nanoId": task.NanoID, "completed": false}))
	if !strings.Contains(text, "marked as incomplete") {
		t.Fatalf("unexpected text %q", text)
	}
	if len(f.recorder.updated) != 2 || f.recorder.updated[1].IsCompleted {
		t.Fatalf("unexpected update broadcasts %+v", f.recorder.updated)
	}
}

func TestTodaysDateInTimezone(t *testing.T) {
	f := setup(t)
	key := newKey(t, f, "userA", false)

	text := toolText(t, callTool(t, f, key, "todays_date", map[string]interface{}{"timezone": "Asia/Tokyo"}))
	body := strings.TrimPrefix(text, "Current date and time information:\n\n")

	var info map[string]interface{}
	if err := json.Unmarshal([]byte(body), &info); err != nil {
		t.Fatalf("decode date info: %v", err)
	}
	for _, field := range []string{"iso", "date", "time", "timestamp", "localDate", "localTime", "localDateTime", "weekday", "month"} {
		if _, ok := info[field]; !ok {
			t.Fatalf("missing %s in %v", field, info)
		}
	}
	if info["timezone"] != "Asia/Tokyo" {
		t.Fatalf("unexpected timezone %v", info["timezone"])
	}
}

func TestStreamHandshake(t *testing.T) {
	f := setup(t)
	key := newKey(t, f, "userA", false)

	req := httptest.NewRequest(http.MethodGet, "/api/mcp", nil)
	req.Header.Set("Authorization", "Bearer "+key)
	recorder := httptest.NewRecorder()
	f.engine.ServeHTTP(recorder, req)
	if recorder.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405 without event-stream accept, got %d", recorder.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/mcp", nil)
	req.Header.Set("Authorization", "Bearer "+key)
	req.Header.Set("Accept", "text/event-stream")
	recorder = httptest.NewRecorder()
	f.engine.ServeHTTP(recorder, req)
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", recorder.Code)
	}
	if !strings.HasPrefix(recorder.Header().Get("Content-Type"), "text/event-stream") {
		t.Fatalf("unexpected content type %q", recorder.Header().Get("Content-Type"))
	}
	if body := recorder.Body.String(); !strings.Contains(body, `"type":"connection"`) || !strings.Contains(body, "sessionId") {
		t.Fatalf("unexpected stream body %q", body)
	}
}
