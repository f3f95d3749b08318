package syncclient

import (
	"context"
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"taskplanner/internal/realtime"
)

var ErrNotConnected = errors.New("syncclient: not connected")

const (
	defaultMinBackoff = 250 * time.Millisecond
	defaultMaxBackoff = 10 * time.Second
)

// Conn is a self-healing WebSocket to the hub. After every successful
// dial it calls onConnect before reading, so callers can restore room
// membership; the server keeps none for a dropped socket.
type Conn struct {
	url        string
	header     http.Header
	dialer     *websocket.Dialer
	minBackoff time.Duration
	maxBackoff time.Duration

	onFrame      func(realtime.ServerFrame)
	onConnect    func()
	onDisconnect func()

	mu     sync.Mutex
	ws     *websocket.Conn
	cancel context.CancelFunc
	done   chan struct{}
}

type connOptions struct {
	url          string
	token        string
	minBackoff   time.Duration
	maxBackoff   time.Duration
	onFrame      func(realtime.ServerFrame)
	onConnect    func()
	onDisconnect func()
}

func openConn(opts connOptions) *Conn {
	if opts.minBackoff <= 0 {
		opts.minBackoff = defaultMinBackoff
	}
	if opts.maxBackoff < opts.minBackoff {
		opts.maxBackoff = defaultMaxBackoff
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+opts.token)

	ctx, cancel := context.WithCancel(context.Background())
	c := &Conn{
		url:          opts.url,
		header:       header,
		dialer:       websocket.DefaultDialer,
		minBackoff:   opts.minBackoff,
		maxBackoff:   opts.maxBackoff,
		onFrame:      opts.onFrame,
		onConnect:    opts.onConnect,
		onDisconnect: opts.onDisconnect,
		cancel:       cancel,
		done:         make(chan struct{}),
	}
	go c.run(ctx)
	return c
}

func (c *Conn) run(ctx context.Context) {
	defer close(c.done)

	backoff := c.minBackoff
	for {
		ws, _, err := c.dialer.DialContext(ctx, c.url, c.header)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("syncclient: dial %s: %v (retry in %s)", c.url, err, backoff)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return
			}
			backoff *= 2
			if backoff > c.maxBackoff {
				backoff = c.maxBackoff
			}
			continue
		}
		backoff = c.minBackoff

		c.mu.Lock()
		c.ws = ws
		c.mu.Unlock()

		if c.onConnect != nil {
			c.onConnect()
		}
		c.readLoop(ctx, ws)

		c.mu.Lock()
		c.ws = nil
		c.mu.Unlock()
		_ = ws.Close()

		if c.onDisconnect != nil {
			c.onDisconnect()
		}
		if ctx.Err() != nil {
			return
		}
	}
}

func (c *Conn) readLoop(ctx context.Context, ws *websocket.Conn) {
	stop := context.AfterFunc(ctx, func() {
		_ = ws.Close()
	})
	defer stop()

	for {
		var frame realtime.ServerFrame
		if err := ws.ReadJSON(&frame); err != nil {
			return
		}
		if c.onFrame != nil {
			c.onFrame(frame)
		}
	}
}

// Send writes one client frame. It fails with ErrNotConnected while the
// socket is down.
func (c *Conn) Send(event string, args ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ws == nil {
		return ErrNotConnected
	}
	_ = c.ws.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return c.ws.WriteJSON(realtime.ClientFrame{Event: event, Args: args})
}

// Drop closes the current socket without stopping the connection; it
// redials. It exists to exercise reconnects.
func (c *Conn) Drop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ws != nil {
		_ = c.ws.Close()
	}
}

// Close stops reconnecting and waits for the read loop to exit.
func (c *Conn) Close() {
	c.cancel()
	<-c.done
}
