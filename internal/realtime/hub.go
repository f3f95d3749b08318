package realtime

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"taskplanner/internal/model"
)

const (
	defaultSendBuffer     = 64
	defaultBroadcastQueue = 256
	defaultPongTimeout    = 60 * time.Second
)

var (
	_ Broadcaster = (*Hub)(nil)
	_ Broadcaster = NoopBroadcaster{}
)

type Options struct {
	// SendBuffer bounds each connection's outbound queue. A connection
	// whose queue is full when an event arrives is dropped.
	SendBuffer int
	// PongTimeout is how long a connection may stay silent before Sweep
	// closes it.
	PongTimeout time.Duration
	// CheckOrigin filters upgrade requests. Nil accepts every origin.
	CheckOrigin func(origin string) bool
}

type Stats struct {
	Connections int `json:"connections"`
	Rooms       int `json:"rooms"`
}

type subscription struct {
	client *Client
	room   string
	join   bool
}

type message struct {
	room    string
	client  *Client
	payload []byte
}

// Hub owns every connection and room. All membership changes and fan-out
// run on the goroutine started by Run, so rooms need no locking.
type Hub struct {
	register   chan *Client
	unregister chan *Client
	subscribe  chan subscription
	broadcast  chan message
	inspect    chan func()
	stopped    chan struct{}

	clients map[*Client]struct{}
	rooms   map[string]map[*Client]struct{}

	sendBuffer  int
	pongTimeout time.Duration
	upgrader    websocket.Upgrader
}

func NewHub(opts Options) *Hub {
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = defaultSendBuffer
	}
	if opts.PongTimeout <= 0 {
		opts.PongTimeout = defaultPongTimeout
	}

	h := &Hub{
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		subscribe:   make(chan subscription),
		broadcast:   make(chan message, defaultBroadcastQueue),
		inspect:     make(chan func()),
		stopped:     make(chan struct{}),
		clients:     make(map[*Client]struct{}),
		rooms:       make(map[string]map[*Client]struct{}),
		sendBuffer:  opts.SendBuffer,
		pongTimeout: opts.PongTimeout,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" || opts.CheckOrigin == nil {
				return true
			}
			return opts.CheckOrigin(origin)
		},
	}
	return h
}

// Run processes hub traffic until ctx is cancelled, then closes every
// connection.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.stopped)

	for {
		select {
		case <-ctx.Done():
			for client := range h.clients {
				h.drop(client)
			}
			return

		case client := <-h.register:
			h.clients[client] = struct{}{}

		case client := <-h.unregister:
			h.drop(client)

		case sub := <-h.subscribe:
			if _, ok := h.clients[sub.client]; !ok {
				continue
			}
			if sub.join {
				h.join(sub.client, sub.room)
				h.deliver(sub.client, mustFrame(EventJoined, RoomData{Room: sub.room}))
			} else {
				h.leave(sub.client, sub.room)
				h.deliver(sub.client, mustFrame(EventLeft, RoomData{Room: sub.room}))
			}

		case msg := <-h.broadcast:
			if msg.client != nil {
				h.deliver(msg.client, msg.payload)
				continue
			}
			for client := range h.rooms[msg.room] {
				h.deliver(client, msg.payload)
			}

		case fn := <-h.inspect:
			fn()
		}
	}
}

func (h *Hub) join(client *Client, room string) {
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[*Client]struct{})
		h.rooms[room] = members
	}
	members[client] = struct{}{}
	client.rooms[room] = struct{}{}
}

func (h *Hub) leave(client *Client, room string) {
	delete(client.rooms, room)
	members, ok := h.rooms[room]
	if !ok {
		return
	}
	delete(members, client)
	if len(members) == 0 {
		delete(h.rooms, room)
	}
}

// drop removes a client from every room and closes its queue. It is a
// no-op for a client that is already gone.
func (h *Hub) drop(client *Client) {
	if _, ok := h.clients[client]; !ok {
		return
	}
	for room := range client.rooms {
		h.leave(client, room)
	}
	delete(h.clients, client)
	close(client.send)
}

func (h *Hub) deliver(client *Client, payload []byte) {
	if _, ok := h.clients[client]; !ok {
		return
	}
	select {
	case client.send <- payload:
	default:
		log.Printf("realtime: send queue full, dropping connection %s", client.ID)
		h.drop(client)
	}
}

// do runs fn on the hub goroutine and waits for it. It reports false when
// the hub is not running.
func (h *Hub) do(fn func()) bool {
	done := make(chan struct{})
	select {
	case h.inspect <- func() { fn(); close(done) }:
	case <-h.stopped:
		return false
	}
	<-done
	return true
}

func (h *Hub) Stats() Stats {
	var stats Stats
	h.do(func() {
		stats = Stats{Connections: len(h.clients), Rooms: len(h.rooms)}
	})
	return stats
}

// Members returns how many connections are in room.
func (h *Hub) Members(room string) int {
	var n int
	h.do(func() {
		n = len(h.rooms[room])
	})
	return n
}

// Sweep pings every connection and closes those that have not been heard
// from within the pong timeout. Closed connections leave all their rooms
// once their read loop exits. It returns the number closed.
func (h *Hub) Sweep(now time.Time) int {
	var clients []*Client
	h.do(func() {
		clients = make([]*Client, 0, len(h.clients))
		for client := range h.clients {
			clients = append(clients, client)
		}
	})

	closed := 0
	for _, client := range clients {
		if now.Sub(client.LastSeen()) > h.pongTimeout {
			log.Printf("realtime: connection %s timed out", client.ID)
			_ = client.conn.Close()
			closed++
			continue
		}
		client.ping()
	}
	return closed
}

func (h *Hub) BroadcastTaskCreated(task model.Task, date, userID string) {
	h.emit(DateRoom(date, userID), EventTaskCreated, task)
}

func (h *Hub) BroadcastTaskUpdated(task model.Task, date, userID string) {
	h.emit(DateRoom(date, userID), EventTaskUpdated, task)
}

func (h *Hub) BroadcastTaskDeleted(taskID, date, userID string) {
	h.emit(DateRoom(date, userID), EventTaskDeleted, TaskDeletedData{TaskID: taskID})
}

func (h *Hub) BroadcastTasksReordered(tasks []model.Task, date, userID string) {
	if tasks == nil {
		tasks = []model.Task{}
	}
	h.emit(DateRoom(date, userID), EventTasksReordered, tasks)
}

func (h *Hub) emit(room, event string, data interface{}) {
	payload, err := encodeFrame(event, data)
	if err != nil {
		log.Printf("realtime: encode %s: %v", event, err)
		return
	}
	h.enqueue(message{room: room, payload: payload})
}

func (h *Hub) enqueue(msg message) {
	select {
	case <-h.stopped:
		return
	default:
	}
	select {
	case h.broadcast <- msg:
	default:
		log.Printf("realtime: broadcast queue full, dropped message for %s", msg.room)
	}
}

func mustFrame(event string, data interface{}) []byte {
	payload, err := encodeFrame(event, data)
	if err != nil {
		log.Printf("realtime: encode %s: %v", event, err)
		return []byte(`{"event":"error"}`)
	}
	return payload
}
