package bus

import (
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/normanking/jarvis/internal/logging"
)

const (
	// WriteWait is the timeout for writing to a websocket.
	WriteWait = 10 * time.Second

	// PongWait is the timeout for pong responses.
	PongWait = 60 * time.Second

	// PingPeriod is how often ping frames are sent.
	PingPeriod = (PongWait * 9) / 10

	// MaxMessageSize bounds inbound client frames; clients only send control
	// frames.
	MaxMessageSize = 512

	defaultReplay = 100
)

// Observer streams bus events to websocket clients as JSON, one event per
// text frame. It is an http.Handler so it can be mounted on any router.
type Observer struct {
	bus      *Bus
	log      *logging.Logger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*client]struct{}
	subID   SubscriptionID
	stopped bool
	wg      sync.WaitGroup
}

type client struct {
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

func (c *client) close() {
	c.once.Do(func() { close(c.send) })
}

// NewObserver subscribes to every event on bus.
func NewObserver(b *Bus, log *logging.Logger) *Observer {
	if log == nil {
		log = logging.Nop()
	}
	o := &Observer{
		bus: b,
		log: log.WithComponent("observer"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Local tool: the HTTP listener already binds to the configured
			// address only.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients: make(map[*client]struct{}),
	}
	o.subID = b.Subscribe("", o.broadcast)
	return o
}

// ClientCount returns the number of connected clients.
func (o *Observer) ClientCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.clients)
}

// ServeHTTP upgrades the connection. Query parameters: replay=false skips the
// history replay, count=N replays the last N events (default 100).
func (o *Observer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	replay := r.URL.Query().Get("replay") != "false"
	count := defaultReplay
	if n, err := strconv.Atoi(r.URL.Query().Get("count")); err == nil && n >= 0 {
		count = n
	}

	conn, err := o.upgrader.Upgrade(w, r, nil)
	if err != nil {
		o.log.Warn("websocket upgrade failed: %v", err)
		return
	}

	c := &client{conn: conn, send: make(chan []byte, 256)}

	o.mu.Lock()
	if o.stopped {
		o.mu.Unlock()
		conn.Close()
		return
	}
	o.clients[c] = struct{}{}
	total := len(o.clients)
	o.wg.Add(2)
	o.mu.Unlock()

	o.log.Debug("client connected (%d total)", total)

	if replay {
		for _, event := range o.bus.Recent(count) {
			if data, err := json.Marshal(event); err == nil {
				select {
				case c.send <- data:
				default:
				}
			}
		}
	}

	go o.writePump(c)
	go o.readPump(c)
}

func (o *Observer) remove(c *client) {
	o.mu.Lock()
	_, ok := o.clients[c]
	delete(o.clients, c)
	remaining := len(o.clients)
	o.mu.Unlock()

	if ok {
		c.close()
		o.log.Debug("client disconnected (%d remaining)", remaining)
	}
}

func (o *Observer) writePump(c *client) {
	defer o.wg.Done()
	defer c.conn.Close()

	ticker := time.NewTicker(PingPeriod)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(WriteWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				o.remove(c)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				o.remove(c)
				return
			}
		}
	}
}

func (o *Observer) readPump(c *client) {
	defer o.wg.Done()
	defer o.remove(c)

	c.conn.SetReadLimit(MaxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(PongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				o.log.Debug("websocket read: %v", err)
			}
			return
		}
	}
}

// broadcast runs on the bus subscriber goroutine.
func (o *Observer) broadcast(event Event) {
	data, err := json.Marshal(event)
	if err != nil {
		o.log.Warn("marshal event %s: %v", event.Type, err)
		return
	}

	o.mu.Lock()
	var slow []*client
	for c := range o.clients {
		select {
		case c.send <- data:
		default:
			slow = append(slow, c)
		}
	}
	o.mu.Unlock()

	for _, c := range slow {
		o.remove(c)
	}
}

// Stop disconnects every client and detaches from the bus.
func (o *Observer) Stop() {
	o.mu.Lock()
	if o.stopped {
		o.mu.Unlock()
		return
	}
	o.stopped = true
	clients := make([]*client, 0, len(o.clients))
	for c := range o.clients {
		clients = append(clients, c)
	}
	o.mu.Unlock()

	_ = o.bus.Unsubscribe(o.subID)
	for _, c := range clients {
		o.remove(c)
	}
	o.wg.Wait()
}
