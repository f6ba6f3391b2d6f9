package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ayusman/mudra/internal/detector"
	"github.com/ayusman/mudra/internal/eventlog"
	"github.com/ayusman/mudra/internal/gesture"
	"github.com/ayusman/mudra/pkg/logger"
)

// Live message types.
const (
	MessageProposal   = "proposal"
	MessageEvent      = "event"
	MessageAnnotation = "annotation"
	MessageLandmarks  = "landmarks"
)

const (
	writeWait    = 2 * time.Second
	pingInterval = 30 * time.Second
	clientBuffer = 64
)

// Message is one frame on the live feed.
type Message struct {
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"`
	Data      any    `json:"data"`
}

type proposalData struct {
	Intent     string  `json:"intent"`
	Trigger    string  `json:"trigger"`
	Hand       string  `json:"hand"`
	Confidence float64 `json:"confidence"`
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub fans live messages out to websocket clients. Clients that cannot keep
// up are disconnected. Hub is also an eventlog.Sink so terminal records and
// annotations reach the live feed.
type Hub struct {
	mu       sync.Mutex
	clients  map[*client]struct{}
	closed   bool
	upgrader websocket.Upgrader
	log      logger.Logger
}

// NewHub creates an empty Hub.
func NewHub() *Hub {
	return &Hub{
		clients: make(map[*client]struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // local connections only
			},
		},
		log: logger.Named("live"),
	}
}

// ServeHTTP upgrades the request and serves the client until it leaves.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn(r.Context(), "websocket upgrade failed", logger.Error(err))
		return
	}

	c := &client{conn: conn, send: make(chan []byte, clientBuffer)}
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	go h.writeLoop(c)

	// Reads only detect disconnects; clients do not send anything.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	h.remove(c)
}

func (h *Hub) writeLoop(c *client) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				h.remove(c)
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.remove(c)
				return
			}
		}
	}
}

// remove unregisters c and closes its queue once.
func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Broadcast queues a message for every client.
func (h *Hub) Broadcast(typ string, data any) {
	msg, err := json.Marshal(Message{Type: typ, Timestamp: time.Now().UnixMilli(), Data: data})
	if err != nil {
		h.log.Error(context.Background(), "encode live message", logger.String("type", typ), logger.Error(err))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			delete(h.clients, c)
			close(c.send)
		}
	}
}

// PublishProposal pushes a classifier proposal.
func (h *Hub) PublishProposal(p gesture.Proposal) {
	if h.Clients() == 0 {
		return
	}
	h.Broadcast(MessageProposal, proposalData{
		Intent:     string(p.Intent),
		Trigger:    string(p.Trigger),
		Hand:       p.Hand,
		Confidence: p.Confidence,
	})
}

// PublishLandmarks pushes the hands detected in one frame.
func (h *Hub) PublishLandmarks(hands []detector.HandLandmarks) {
	if h.Clients() == 0 {
		return
	}
	h.Broadcast(MessageLandmarks, map[string]any{"hands": hands})
}

func (h *Hub) WriteRecord(_ context.Context, rec eventlog.Record) error {
	h.Broadcast(MessageEvent, rec)
	return nil
}

func (h *Hub) WriteAnnotation(_ context.Context, ann eventlog.Annotation) error {
	h.Broadcast(MessageAnnotation, ann)
	return nil
}

// Close disconnects every client and refuses new ones.
func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
	return nil
}

var _ eventlog.Sink = (*Hub)(nil)
