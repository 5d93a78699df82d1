package live

import (
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Event is pushed to subscribed teacher devices when a student is accepted
// for the code they are watching.
type Event struct {
	Event       string `json:"event"`
	CodeID      string `json:"code_id"`
	StudentID   string `json:"student_id"`
	SubmittedAt int64  `json:"submitted_at"`
	Present     int    `json:"present"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Hub fans accepted-submission events out to websocket subscribers, keyed by
// code ID. Slow or dead subscribers are dropped rather than blocking the
// submit path.
type Hub struct {
	mu   sync.Mutex
	subs map[string]map[*websocket.Conn]chan Event
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[*websocket.Conn]chan Event)}
}

// Subscribe upgrades the connection and streams events for codeID until the
// client disconnects.
func (h *Hub) Subscribe(w http.ResponseWriter, r *http.Request, codeID string) error {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	ch := make(chan Event, 16)

	h.mu.Lock()
	if h.subs[codeID] == nil {
		h.subs[codeID] = make(map[*websocket.Conn]chan Event)
	}
	h.subs[codeID][conn] = ch
	h.mu.Unlock()

	go h.drainReads(conn, codeID)
	go h.writeLoop(conn, codeID, ch)
	return nil
}

// Broadcast delivers the event to every subscriber of its code.
func (h *Hub) Broadcast(evt Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn, ch := range h.subs[evt.CodeID] {
		select {
		case ch <- evt:
		default:
			// subscriber is not keeping up
			delete(h.subs[evt.CodeID], conn)
			close(ch)
			_ = conn.Close()
		}
	}
}

// SubscriberCount returns how many clients watch a code, for tests and debug.
func (h *Hub) SubscriberCount(codeID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[codeID])
}

func (h *Hub) writeLoop(conn *websocket.Conn, codeID string, ch chan Event) {
	for evt := range ch {
		_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := conn.WriteJSON(evt); err != nil {
			log.Printf("live write failed: %v", err)
			h.remove(conn, codeID)
			return
		}
	}
}

// drainReads consumes control frames and detects disconnects.
func (h *Hub) drainReads(conn *websocket.Conn, codeID string) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			h.remove(conn, codeID)
			return
		}
	}
}

func (h *Hub) remove(conn *websocket.Conn, codeID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ch, ok := h.subs[codeID][conn]; ok {
		delete(h.subs[codeID], conn)
		close(ch)
	}
	_ = conn.Close()
}
