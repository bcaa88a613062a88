package notify

import (
	"encoding/json"
	"log"
	"sync"
)

type Writer interface {
	Write(message []byte) error
	Close() error
}

type Connection struct {
	UserID string
	Writer Writer
}

type Level string

const (
	LevelSuccess Level = "success"
	LevelError   Level = "error"
	LevelWarning Level = "warning"
	LevelInfo    Level = "info"
)

// Message is the envelope pushed to connected clients.
type Message struct {
	Type    string `json:"type"`
	Level   Level  `json:"level,omitempty"`
	Message string `json:"message,omitempty"`
	Event   string `json:"event,omitempty"`
	Body    any    `json:"body,omitempty"`
}

// Publisher pushes transient notices and events to a user's open clients.
type Publisher interface {
	Notice(userID string, level Level, message string)
	Event(userID, event string, body any)
}

// Hub fans messages out to every connection a user has open.
type Hub struct {
	mu          sync.RWMutex
	connections map[string]map[*Connection]struct{}
}

func New() *Hub {
	return &Hub{connections: make(map[string]map[*Connection]struct{})}
}

func (h *Hub) Register(conn *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.connections[conn.UserID] == nil {
		h.connections[conn.UserID] = make(map[*Connection]struct{})
	}
	h.connections[conn.UserID][conn] = struct{}{}
}

func (h *Hub) Unregister(conn *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()

	set := h.connections[conn.UserID]
	if set == nil {
		return
	}
	delete(set, conn)
	if len(set) == 0 {
		delete(h.connections, conn.UserID)
	}
}

func (h *Hub) Broadcast(userID string, message []byte) {
	h.mu.RLock()
	set := h.connections[userID]
	conns := make([]*Connection, 0, len(set))
	for c := range set {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	var failed []*Connection
	for _, c := range conns {
		if err := c.Writer.Write(message); err != nil {
			failed = append(failed, c)
		}
	}
	for _, c := range failed {
		_ = c.Writer.Close()
		h.Unregister(c)
	}
}

func (h *Hub) Notice(userID string, level Level, message string) {
	h.send(userID, Message{Type: "notice", Level: level, Message: message})
}

func (h *Hub) Event(userID, event string, body any) {
	h.send(userID, Message{Type: "event", Event: event, Body: body})
}

func (h *Hub) send(userID string, msg Message) {
	out, err := json.Marshal(msg)
	if err != nil {
		log.Printf("notify: marshal failed: %v", err)
		return
	}
	h.Broadcast(userID, out)
}
