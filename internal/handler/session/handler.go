package session

import (
	"log"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	sessionservice "github.com/zixuanli/edge-sim/backend/internal/service/session"
)

// Handler upgrades session connections to websocket and bridges frames to
// the session actor service.
type Handler struct {
	sessions *sessionservice.Service
	upgrader websocket.Upgrader
}

// New creates the websocket session handler.
func New(sessions *sessionservice.Service) *Handler {
	return &Handler{
		sessions: sessions,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterRoutes registers the session websocket routes. Connecting without a
// session id starts a fresh session; the handshake carries the generated id.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/ws", h.handleWebSocket)
	r.Get("/ws/{sessionID}", h.handleWebSocket)
}

func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[ws] upgrade failed session=%s: %v", sessionID, err)
		return
	}

	sink := newConnSink(conn)
	handshake := h.sessions.Connect(sessionID, sink)
	if err := sink.SendJSON(handshake); err != nil {
		log.Printf("[ws] handshake failed session=%s: %v", sessionID, err)
	}

	defer func() {
		h.sessions.Disconnect(sessionID, sink)
		conn.Close()
		log.Printf("[ws] connection closed session=%s", sessionID)
	}()

	log.Printf("[ws] connection established session=%s", sessionID)

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("[ws] read error session=%s: %v", sessionID, err)
			}
			return
		}

		if msgType != websocket.TextMessage {
			continue
		}
		h.sessions.Enqueue(sessionID, string(data))
	}
}

// connSink adapts a websocket connection to the actor's output channel.
// gorilla allows a single concurrent writer, so writes serialize on a mutex:
// the handshake comes from the handler goroutine, replies from the actor.
type connSink struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func newConnSink(conn *websocket.Conn) *connSink {
	return &connSink{conn: conn}
}

// Send delivers a bare text reply frame.
func (s *connSink) Send(text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteMessage(websocket.TextMessage, []byte(text))
}

// SendJSON delivers a structured frame (handshake or error payload).
func (s *connSink) SendJSON(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteJSON(v)
}
