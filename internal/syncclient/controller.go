package syncclient

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"taskplanner/internal/model"
	"taskplanner/internal/realtime"
)

type Config struct {
	// BaseURL is the server root, e.g. http://localhost:8080.
	BaseURL    string
	Token      string
	HTTPClient *http.Client
	MinBackoff time.Duration
	MaxBackoff time.Duration
}

// Controller is one tab's view of a user's planner. It follows a single
// date at a time and refetches that date whenever a mutation fails, so an
// optimistic view never drifts from the server for long.
type Controller struct {
	cfg     Config
	actions *Actions
	list    *TaskList

	mu        sync.Mutex
	userID    string
	date      string
	plannerID string
	conn      *Conn
	joined    map[string]chan struct{}
}

func NewController(cfg Config) *Controller {
	return &Controller{
		cfg:     cfg,
		actions: NewActions(cfg.BaseURL, cfg.Token, cfg.HTTPClient),
		list:    NewTaskList(),
		joined:  make(map[string]chan struct{}),
	}
}

func (c *Controller) List() *TaskList {
	return c.list
}

func (c *Controller) Tasks() []model.Task {
	return c.list.Snapshot()
}

func (c *Controller) Actions() *Actions {
	return c.actions
}

func (c *Controller) CurrentDate() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.date
}

// Mount opens the connection for userID and joins the user room. Mounting
// the same user again is a no-op; mounting another user replaces the
// connection and forgets the current date.
func (c *Controller) Mount(userID string) {
	c.mu.Lock()
	if c.conn != nil && c.userID == userID {
		c.mu.Unlock()
		return
	}
	old := c.conn
	c.userID = userID
	c.date = ""
	c.plannerID = ""
	c.joined = make(map[string]chan struct{})
	c.mu.Unlock()

	if old != nil {
		old.Close()
	}
	c.list.Replace(nil)

	// The dial goroutine's first rejoin waits on c.mu until conn is set.
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn = openConn(connOptions{
		url:          wsURL(c.cfg.BaseURL),
		token:        c.cfg.Token,
		minBackoff:   c.cfg.MinBackoff,
		maxBackoff:   c.cfg.MaxBackoff,
		onFrame:      c.handleFrame,
		onConnect:    c.rejoin,
		onDisconnect: c.resetJoined,
	})
}

// JoinDateRoom switches the followed date: it leaves the previous date's
// room, joins the new one, and refetches the new date's tasks.
func (c *Controller) JoinDateRoom(ctx context.Context, date string) error {
	c.mu.Lock()
	conn, userID, previous := c.conn, c.userID, c.date
	if conn == nil {
		c.mu.Unlock()
		return errors.New("syncclient: not mounted")
	}
	c.date = date
	c.plannerID = ""
	c.mu.Unlock()

	if previous != "" && previous != date {
		c.forget(realtime.DateRoom(previous, userID))
		if err := conn.Send(realtime.EventLeaveDateRoom, previous, userID); err != nil && err != ErrNotConnected {
			return err
		}
	}
	if err := conn.Send(realtime.EventJoinDateRoom, date, userID); err != nil && err != ErrNotConnected {
		return err
	}
	return c.Refetch(ctx)
}

// WaitJoined blocks until the server has acknowledged the current date
// room.
func (c *Controller) WaitJoined(ctx context.Context) error {
	c.mu.Lock()
	if c.date == "" {
		c.mu.Unlock()
		return errors.New("syncclient: no date joined")
	}
	ch := c.waiter(realtime.DateRoom(c.date, c.userID))
	c.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Refetch replaces the list with the server's tasks for the current date.
func (c *Controller) Refetch(ctx context.Context) error {
	date := c.CurrentDate()
	if date == "" {
		return nil
	}
	planner, err := c.actions.FetchPlanner(ctx, date)
	if err != nil {
		return err
	}

	c.mu.Lock()
	stale := c.date != date
	if !stale {
		c.plannerID = planner.Planner.ID
	}
	c.mu.Unlock()

	if !stale {
		c.list.Replace(planner.Tasks)
	}
	return nil
}

func (c *Controller) CreateTask(ctx context.Context, task NewTask) error {
	if task.PlannerID == "" && task.Date == "" {
		task.Date = c.CurrentDate()
	}
	return c.mutate(ctx, c.actions.CreateTask(ctx, task))
}

func (c *Controller) UpdateTask(ctx context.Context, taskID string, patch model.TaskPatch) error {
	return c.mutate(ctx, c.actions.UpdateTask(ctx, taskID, patch))
}

func (c *Controller) DeleteTask(ctx context.Context, taskID string) error {
	return c.mutate(ctx, c.actions.DeleteTask(ctx, taskID))
}

func (c *Controller) MoveTask(ctx context.Context, taskID string, quadrant model.Quadrant, priority int) error {
	return c.mutate(ctx, c.actions.MoveTask(ctx, taskID, quadrant, priority))
}

func (c *Controller) ReorderTasks(ctx context.Context, items []ReorderItem) error {
	return c.mutate(ctx, c.actions.ReorderTasks(ctx, items))
}

func (c *Controller) mutate(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if refetchErr := c.Refetch(ctx); refetchErr != nil {
		log.Printf("syncclient: refetch after failed mutation: %v", refetchErr)
	}
	return err
}

// Reconnect drops the socket; the connection redials and rejoins.
func (c *Controller) Reconnect() {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn != nil {
		conn.Drop()
	}
}

func (c *Controller) Close() {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()
	if conn != nil {
		conn.Close()
	}
}

// rejoin restores room membership after every (re)connect and refetches,
// since events sent while disconnected are lost.
func (c *Controller) rejoin() {
	c.mu.Lock()
	conn, userID, date := c.conn, c.userID, c.date
	c.mu.Unlock()
	if conn == nil {
		return
	}

	if err := conn.Send(realtime.EventJoinUserRoom, userID); err != nil {
		log.Printf("syncclient: join user room: %v", err)
	}
	if date == "" {
		return
	}
	if err := conn.Send(realtime.EventJoinDateRoom, date, userID); err != nil {
		log.Printf("syncclient: rejoin %s: %v", date, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := c.Refetch(ctx); err != nil {
		log.Printf("syncclient: refetch after reconnect: %v", err)
	}
}

func (c *Controller) resetJoined() {
	c.mu.Lock()
	c.joined = make(map[string]chan struct{})
	c.mu.Unlock()
}

func (c *Controller) forget(room string) {
	c.mu.Lock()
	delete(c.joined, room)
	c.mu.Unlock()
}

// waiter returns the channel closed when room is acknowledged. Callers
// hold c.mu.
func (c *Controller) waiter(room string) chan struct{} {
	ch, ok := c.joined[room]
	if !ok {
		ch = make(chan struct{})
		c.joined[room] = ch
	}
	return ch
}

func (c *Controller) handleFrame(frame realtime.ServerFrame) {
	switch frame.Event {
	case realtime.EventJoined:
		var data realtime.RoomData
		if err := json.Unmarshal(frame.Data, &data); err != nil {
			return
		}
		c.mu.Lock()
		ch := c.waiter(data.Room)
		select {
		case <-ch:
		default:
			close(ch)
		}
		c.mu.Unlock()
		return

	case realtime.EventError:
		log.Printf("syncclient: server error: %s", frame.Data)
		return
	}

	event, ok, err := DecodeEvent(frame)
	if err != nil {
		log.Printf("syncclient: %v", err)
		return
	}
	if !ok || !c.belongsToCurrent(event) {
		return
	}
	c.list.Apply(event)
}

// belongsToCurrent drops events that were in flight for a planner this
// tab has already navigated away from.
func (c *Controller) belongsToCurrent(event Event) bool {
	c.mu.Lock()
	plannerID := c.plannerID
	c.mu.Unlock()
	if plannerID == "" {
		return true
	}

	switch event.Name {
	case realtime.EventTaskCreated, realtime.EventTaskUpdated:
		return event.Task.PlannerID == "" || event.Task.PlannerID == plannerID
	case realtime.EventTasksReordered:
		return len(event.Tasks) == 0 || event.Tasks[0].PlannerID == plannerID
	}
	return true
}

func wsURL(baseURL string) string {
	base := strings.TrimRight(baseURL, "/")
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	return base + "/ws"
}
