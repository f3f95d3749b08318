// Package syncclient keeps a local copy of one user's tasks for a date in
// step with the server, the way a browser tab does: it follows the date
// room over a WebSocket and applies broadcast events to its list, while
// mutations go out over HTTP and are not applied locally.
package syncclient

import (
	"encoding/json"
	"fmt"
	"sync"

	"taskplanner/internal/model"
	"taskplanner/internal/realtime"
)

// Event is a decoded task broadcast.
type Event struct {
	Name   string
	Task   model.Task
	TaskID string
	Tasks  []model.Task
}

// DecodeEvent decodes a task lifecycle frame. ok is false for frames that
// are not task events, such as join acknowledgements.
func DecodeEvent(frame realtime.ServerFrame) (event Event, ok bool, err error) {
	event.Name = frame.Event
	switch frame.Event {
	case realtime.EventTaskCreated, realtime.EventTaskUpdated:
		err = json.Unmarshal(frame.Data, &event.Task)
		event.TaskID = event.Task.ID
	case realtime.EventTaskDeleted:
		var data realtime.TaskDeletedData
		err = json.Unmarshal(frame.Data, &data)
		event.TaskID = data.TaskID
	case realtime.EventTasksReordered:
		err = json.Unmarshal(frame.Data, &event.Tasks)
	default:
		return event, false, nil
	}
	if err != nil {
		return event, false, fmt.Errorf("decode %s: %w", frame.Event, err)
	}
	return event, true, nil
}

// TaskList is the local task cache. It changes only through Replace (a
// refetch) and Apply (a broadcast).
type TaskList struct {
	mu       sync.Mutex
	tasks    []model.Task
	onChange func([]model.Task)
}

func NewTaskList() *TaskList {
	return &TaskList{tasks: []model.Task{}}
}

// OnChange registers a callback that receives a sorted snapshot after
// every change. It runs with the list unlocked.
func (l *TaskList) OnChange(fn func([]model.Task)) {
	l.mu.Lock()
	l.onChange = fn
	l.mu.Unlock()
}

func (l *TaskList) Replace(tasks []model.Task) {
	l.mu.Lock()
	l.tasks = append([]model.Task{}, tasks...)
	l.mu.Unlock()
	l.notify()
}

// Apply folds one event into the list and reports whether it changed
// anything. Duplicate creates and updates or deletes for unknown ids are
// ignored, so redelivery is harmless.
func (l *TaskList) Apply(event Event) bool {
	l.mu.Lock()
	changed := l.apply(event)
	l.mu.Unlock()

	if changed {
		l.notify()
	}
	return changed
}

func (l *TaskList) apply(event Event) bool {
	switch event.Name {
	case realtime.EventTaskCreated:
		if l.index(event.Task.ID) >= 0 {
			return false
		}
		l.tasks = append(l.tasks, event.Task)
		return true

	case realtime.EventTaskUpdated:
		i := l.index(event.Task.ID)
		if i < 0 {
			return false
		}
		l.tasks[i] = event.Task
		return true

	case realtime.EventTaskDeleted:
		i := l.index(event.TaskID)
		if i < 0 {
			return false
		}
		l.tasks = append(l.tasks[:i], l.tasks[i+1:]...)
		return true

	case realtime.EventTasksReordered:
		l.tasks = append([]model.Task{}, event.Tasks...)
		return true
	}
	return false
}

func (l *TaskList) index(id string) int {
	for i := range l.tasks {
		if l.tasks[i].ID == id {
			return i
		}
	}
	return -1
}

// Snapshot returns a copy sorted by quadrant then priority.
func (l *TaskList) Snapshot() []model.Task {
	l.mu.Lock()
	out := append([]model.Task{}, l.tasks...)
	l.mu.Unlock()

	model.SortTasks(out)
	return out
}

func (l *TaskList) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.tasks)
}

func (l *TaskList) notify() {
	l.mu.Lock()
	fn := l.onChange
	l.mu.Unlock()

	if fn != nil {
		fn(l.Snapshot())
	}
}
