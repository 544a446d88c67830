package web

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/muurk/wifiportal/internal/logging"
	"github.com/muurk/wifiportal/internal/portal"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 5 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Ping period, must be less than pongWait
	pingPeriod = (pongWait * 9) / 10
)

// Message types sent on the events feed.
const (
	MessageStatus     = "status"
	MessageTransition = "transition"
)

// Message is one frame of the events feed. The first frame after connect
// is a status snapshot; every state transition is followed by a frame
// carrying the event and the status after it.
type Message struct {
	Type   string         `json:"type"`
	Event  *portal.Event  `json:"event,omitempty"`
	Status *portal.Status `json:"status,omitempty"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Portal clients join from whatever origin the captive browser uses.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// hub tracks feed connections. Writes to all connections go through mu
// since a websocket allows one writer at a time.
type hub struct {
	mu    sync.Mutex
	conns map[*websocket.Conn]bool
}

func newHub() *hub {
	return &hub{conns: make(map[*websocket.Conn]bool)}
}

func (h *hub) connect(conn *websocket.Conn, first Message) error {
	data, err := json.Marshal(first)
	if err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return err
	}
	h.conns[conn] = true
	logging.Debug("Events client connected",
		zap.String("remote_addr", conn.RemoteAddr().String()),
		zap.Int("connections", len(h.conns)))
	return nil
}

func (h *hub) disconnect(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dropLocked(conn)
}

func (h *hub) dropLocked(conn *websocket.Conn) {
	if !h.conns[conn] {
		return
	}
	delete(h.conns, conn)
	_ = conn.Close()
	logging.Debug("Events client disconnected", zap.Int("connections", len(h.conns)))
}

func (h *hub) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

func (h *hub) broadcast(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		logging.Error("Failed to encode event", zap.Error(err))
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.conns {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			h.dropLocked(conn)
		}
	}
}

func (h *hub) ping() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.conns {
		if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
			h.dropLocked(conn)
		}
	}
}

func (h *hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.conns {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "portal closed"),
			time.Now().Add(writeWait))
		h.dropLocked(conn)
	}
}

// serve upgrades the request and keeps the connection registered until the
// peer goes away. Inbound frames are discarded.
func (h *hub) serve(w http.ResponseWriter, r *http.Request, first Message) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Warn("Events upgrade failed", zap.String("remote_addr", r.RemoteAddr), zap.Error(err))
		return
	}
	if err := h.connect(conn, first); err != nil {
		_ = conn.Close()
		return
	}
	defer h.disconnect(conn)

	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// pump forwards session transitions to the feed until events is closed.
func (h *hub) pump(s *portal.Session, events <-chan portal.Event, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			if h.count() == 0 {
				continue
			}
			st := s.Snapshot()
			h.broadcast(Message{Type: MessageTransition, Event: &ev, Status: &st})
		case <-ticker.C:
			h.ping()
		}
	}
}
