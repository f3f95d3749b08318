// Package realtime fans task lifecycle events out to live WebSocket
// connections grouped into per-user rooms.
package realtime

import (
	"encoding/json"

	"taskplanner/internal/model"
)

// Server to client events.
const (
	EventTaskCreated    = "task:created"
	EventTaskUpdated    = "task:updated"
	EventTaskDeleted    = "task:deleted"
	EventTasksReordered = "tasks:reordered"
	EventJoined         = "joined"
	EventLeft           = "left"
	EventError          = "error"
)

// Client to server events.
const (
	EventJoinUserRoom  = "join-user-room"
	EventJoinDateRoom  = "join-date-room"
	EventLeaveDateRoom = "leave-date-room"
)

// ClientFrame is what a connection sends: an event name and positional
// arguments.
type ClientFrame struct {
	Event string   `json:"event"`
	Args  []string `json:"args"`
}

// ServerFrame is what the hub sends to a connection.
type ServerFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// TaskDeletedData is the payload of task:deleted.
type TaskDeletedData struct {
	TaskID string `json:"taskId"`
}

// RoomData is the payload of joined and left acknowledgements.
type RoomData struct {
	Room string `json:"room"`
}

type ErrorData struct {
	Message string `json:"message"`
}

func UserRoom(userID string) string {
	return "user:" + userID
}

func DateRoom(date, userID string) string {
	return "planner:" + date + ":" + userID
}

// Broadcaster emits task events to the room of (date, userID). Calls are
// best effort: they never block on delivery and never fail the caller.
type Broadcaster interface {
	BroadcastTaskCreated(task model.Task, date, userID string)
	BroadcastTaskUpdated(task model.Task, date, userID string)
	BroadcastTaskDeleted(taskID, date, userID string)
	BroadcastTasksReordered(tasks []model.Task, date, userID string)
}

// NoopBroadcaster drops every event. It stands in when no hub is running.
type NoopBroadcaster struct{}

func (NoopBroadcaster) BroadcastTaskCreated(model.Task, string, string)      {}
func (NoopBroadcaster) BroadcastTaskUpdated(model.Task, string, string)      {}
func (NoopBroadcaster) BroadcastTaskDeleted(string, string, string)          {}
func (NoopBroadcaster) BroadcastTasksReordered([]model.Task, string, string) {}

func encodeFrame(event string, data interface{}) ([]byte, error) {
	frame := ServerFrame{Event: event}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, err
		}
		frame.Data = raw
	}
	return json.Marshal(frame)
}
