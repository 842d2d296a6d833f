package events

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	clientWriteTimeout = 5 * time.Second
	clientSendBuffer   = 16
)

// Hub fans TopicUpdate payloads out to websocket subscribers, one
// subscription set per meeting. Slow clients are dropped rather than
// allowed to stall the ingest path.
type Hub struct {
	logger   *slog.Logger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[string]map[*client]struct{}
}

type client struct {
	conn *websocket.Conn
	send chan TopicUpdate
}

func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		clients: map[string]map[*client]struct{}{},
	}
}

func (h *Hub) Publish(ctx context.Context, update TopicUpdate) error {
	h.mu.Lock()
	subscribers := make([]*client, 0, len(h.clients[update.MeetingID]))
	for c := range h.clients[update.MeetingID] {
		subscribers = append(subscribers, c)
	}
	h.mu.Unlock()

	for _, c := range subscribers {
		select {
		case c.send <- update:
		default:
			h.logger.Warn("dropping slow topic-update subscriber", "meeting_id", update.MeetingID)
			h.remove(update.MeetingID, c)
		}
	}
	return nil
}

// Subscribe upgrades the request to a websocket and streams topic updates
// for the meeting until the client disconnects.
func (h *Hub) Subscribe(w http.ResponseWriter, r *http.Request, meetingID string) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	c := &client{conn: conn, send: make(chan TopicUpdate, clientSendBuffer)}

	h.mu.Lock()
	if h.clients[meetingID] == nil {
		h.clients[meetingID] = map[*client]struct{}{}
	}
	h.clients[meetingID][c] = struct{}{}
	h.mu.Unlock()
	h.logger.Info("topic-update subscriber connected", "meeting_id", meetingID)

	go h.writeLoop(meetingID, c)
	go h.readLoop(meetingID, c)
	return nil
}

func (h *Hub) writeLoop(meetingID string, c *client) {
	defer c.conn.Close()
	for update := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(clientWriteTimeout))
		if err := c.conn.WriteJSON(update); err != nil {
			h.remove(meetingID, c)
			return
		}
	}
}

func (h *Hub) readLoop(meetingID string, c *client) {
	// Reads are discarded; the loop exists to observe disconnects.
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			h.remove(meetingID, c)
			return
		}
	}
}

func (h *Hub) remove(meetingID string, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if set, ok := h.clients[meetingID]; ok {
		if _, present := set[c]; present {
			delete(set, c)
			close(c.send)
		}
		if len(set) == 0 {
			delete(h.clients, meetingID)
		}
	}
}

// SubscriberCount reports active subscribers for a meeting.
func (h *Hub) SubscriberCount(meetingID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients[meetingID])
}
