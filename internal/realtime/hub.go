// Package realtime pushes newly recorded launches to gallery subscribers
// over WebSocket.
package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"larpx402/internal/domain"
	"larpx402/internal/observability"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	sendBufferSize = 16
)

// Event is the message sent to subscribers.
type Event struct {
	Type   string               `json:"type"`
	Launch *domain.LaunchRecord `json:"launch"`
}

// EventLaunchInserted is the Event.Type for a new launch.
const EventLaunchInserted = "launch_inserted"

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub fans launch events out to WebSocket subscribers.
// Slow subscribers whose buffer is full are disconnected.
type Hub struct {
	logger   *zap.Logger
	upgrader websocket.Upgrader

	register   chan *client
	unregister chan *client
	broadcast  chan []byte

	clients map[*client]struct{}
	done    chan struct{}
	once    sync.Once
	wg      sync.WaitGroup
}

// NewHub creates a Hub. Call Run to start it.
func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		logger: logger.Named("realtime"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// Gallery is public; any origin may subscribe
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		register:   make(chan *client),
		unregister: make(chan *client),
		broadcast:  make(chan []byte, 64),
		clients:    make(map[*client]struct{}),
		done:       make(chan struct{}),
	}
}

// Run serves the hub until ctx is done, then disconnects every subscriber
// and waits for their goroutines.
func (h *Hub) Run(ctx context.Context) error {
	defer func() {
		h.once.Do(func() { close(h.done) })
		for c := range h.clients {
			close(c.send)
			delete(h.clients, c)
		}
		observability.UpdateGallerySubscribers(0)
		h.wg.Wait()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case c := <-h.register:
			h.clients[c] = struct{}{}
			observability.UpdateGallerySubscribers(len(h.clients))
			// Added on the Run goroutine so the deferred Wait never races an Add
			h.wg.Add(2)
			go h.writePump(c)
			go h.readPump(c)
		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
				observability.UpdateGallerySubscribers(len(h.clients))
			}
		case msg := <-h.broadcast:
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					h.logger.Debug("dropping slow subscriber")
					delete(h.clients, c)
					close(c.send)
				}
			}
			observability.UpdateGallerySubscribers(len(h.clients))
		}
	}
}

// Publish queues l for every subscriber. It never blocks; when the queue is
// full the event is dropped and subscribers catch up through the list endpoint.
func (h *Hub) Publish(l *domain.LaunchRecord) {
	msg, err := json.Marshal(Event{Type: EventLaunchInserted, Launch: l})
	if err != nil {
		h.logger.Warn("marshal launch event", zap.Error(err))
		return
	}
	select {
	case h.broadcast <- msg:
		observability.RecordLaunchBroadcast()
	case <-h.done:
	default:
		h.logger.Warn("broadcast queue full, dropping launch event", zap.String("mint", l.TokenIdentity))
	}
}

// ServeWS upgrades the request and subscribes the connection.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}

	c := &client{conn: conn, send: make(chan []byte, sendBufferSize)}
	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
	}
}

// readPump drains control frames and detects disconnects.
func (h *Hub) readPump(c *client) {
	defer h.wg.Done()
	defer func() {
		select {
		case h.unregister <- c:
		case <-h.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writePump sends queued events and pings until the send channel closes.
func (h *Hub) writePump(c *client) {
	defer h.wg.Done()
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
