package realtime

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"taskplanner/internal/model"
)

const (
	writeWait    = 10 * time.Second
	maxFrameSize = 4096
)

// Client is one live connection. Its rooms set is touched only by the hub
// goroutine.
type Client struct {
	ID     string
	UserID string

	hub      *Hub
	conn     *websocket.Conn
	send     chan []byte
	rooms    map[string]struct{}
	lastSeen atomic.Int64
}

// Serve upgrades the request and attaches the connection to the hub on
// behalf of an already authenticated user. It returns once the connection
// is registered; reading and writing continue on their own goroutines.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, userID string) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("upgrade websocket: %w", err)
	}

	client := &Client{
		ID:     uuid.NewString(),
		UserID: userID,
		hub:    h,
		conn:   conn,
		send:   make(chan []byte, h.sendBuffer),
		rooms:  make(map[string]struct{}),
	}
	client.touch()

	select {
	case h.register <- client:
	case <-h.stopped:
		_ = conn.Close()
		return fmt.Errorf("hub is not running")
	}

	go client.writePump()
	go client.readPump()
	return nil
}

func (c *Client) LastSeen() time.Time {
	return time.Unix(0, c.lastSeen.Load())
}

func (c *Client) touch() {
	c.lastSeen.Store(time.Now().UnixNano())
}

func (c *Client) ping() {
	if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
		_ = c.conn.Close()
	}
}

func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.stopped:
		}
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxFrameSize)
	c.conn.SetPongHandler(func(string) error {
		c.touch()
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("realtime: read from %s: %v", c.ID, err)
			}
			return
		}
		c.touch()
		c.handleFrame(data)
	}
}

func (c *Client) writePump() {
	defer c.conn.Close()

	for payload := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			return
		}
	}

	// The hub closed the queue.
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

func (c *Client) handleFrame(data []byte) {
	var frame ClientFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		c.replyError("invalid frame")
		return
	}

	switch frame.Event {
	case EventJoinUserRoom:
		if len(frame.Args) != 1 || !c.owns(frame.Args[0]) {
			c.replyError("cannot join another user's room")
			return
		}
		c.request(UserRoom(c.UserID), true)

	case EventJoinDateRoom, EventLeaveDateRoom:
		if len(frame.Args) != 2 || !model.ValidDate(frame.Args[0]) {
			c.replyError(frame.Event + " expects [date, userId]")
			return
		}
		if !c.owns(frame.Args[1]) {
			c.replyError("cannot join another user's room")
			return
		}
		c.request(DateRoom(frame.Args[0], c.UserID), frame.Event == EventJoinDateRoom)

	default:
		c.replyError("unknown event " + frame.Event)
	}
}

func (c *Client) owns(userID string) bool {
	return userID == c.UserID
}

func (c *Client) request(room string, join bool) {
	select {
	case c.hub.subscribe <- subscription{client: c, room: room, join: join}:
	case <-c.hub.stopped:
	}
}

func (c *Client) replyError(msg string) {
	c.hub.enqueue(message{client: c, payload: mustFrame(EventError, ErrorData{Message: msg})})
}
