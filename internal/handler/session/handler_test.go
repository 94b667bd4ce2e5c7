package session

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/zixuanli/edge-sim/backend/internal/model/persona"
	"github.com/zixuanli/edge-sim/backend/internal/service/ai"
	sessionservice "github.com/zixuanli/edge-sim/backend/internal/service/session"
)

type fakeMemory struct{}

func (fakeMemory) Upsert(context.Context, string, string, string) (string, error) { return "id", nil }
func (fakeMemory) Query(context.Context, string, string, int) ([]string, error)   { return nil, nil }

type fakeRoles struct{}

func (fakeRoles) GetSessionPersona(string) (string, bool, error) { return "", false, nil }
func (fakeRoles) SaveSessionPersona(string, string) error        { return nil }

type fakeInferencer struct {
	fail bool
}

func (f *fakeInferencer) Infer(_ context.Context, messages []ai.Message, _ ai.Options) (string, error) {
	if f.fail {
		return "", errors.New("model backend down")
	}
	return "reply to: " + messages[len(messages)-1].Content, nil
}

func newTestServer(t *testing.T, inferencer ai.Inferencer) *httptest.Server {
	t.Helper()

	svc := sessionservice.NewService(persona.NewMemoryStore(persona.Seed()), fakeMemory{}, inferencer, fakeRoles{})
	t.Cleanup(svc.Stop)

	r := chi.NewRouter()
	New(svc).RegisterRoutes(r)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, srv *httptest.Server, path string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + path
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", path, err)
	}
	t.Cleanup(func() { conn.Close() })
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	return conn
}

func readHandshake(t *testing.T, conn *websocket.Conn) sessionservice.Handshake {
	t.Helper()
	var hs sessionservice.Handshake
	if err := conn.ReadJSON(&hs); err != nil {
		t.Fatalf("read handshake: %v", err)
	}
	return hs
}

func TestHandshakeAndReply(t *testing.T) {
	srv := newTestServer(t, &fakeInferencer{})
	conn := dial(t, srv, "/ws/s1")

	hs := readHandshake(t, conn)
	if !hs.OK {
		t.Fatal("expected ok handshake")
	}
	if hs.SessionID != "s1" {
		t.Fatalf("expected session id s1, got %q", hs.SessionID)
	}
	if hs.Persona != persona.WAF {
		t.Fatalf("expected default persona WAF, got %s", hs.Persona)
	}

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"message":"block this ip"}`)); err != nil {
		t.Fatalf("write: %v", err)
	}

	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read reply: %v", err)
	}
	if string(data) != "reply to: block this ip" {
		t.Fatalf("unexpected reply: %q", data)
	}
}

func TestConnectWithoutSessionID(t *testing.T) {
	srv := newTestServer(t, &fakeInferencer{})
	conn := dial(t, srv, "/ws")

	hs := readHandshake(t, conn)
	if !hs.OK {
		t.Fatal("expected ok handshake")
	}
	if hs.SessionID == "" {
		t.Fatal("expected a generated session id")
	}
}

func TestModelFailureDeliversErrorFrame(t *testing.T) {
	srv := newTestServer(t, &fakeInferencer{fail: true})
	conn := dial(t, srv, "/ws/s1")
	readHandshake(t, conn)

	if err := conn.WriteMessage(websocket.TextMessage, []byte("hello")); err != nil {
		t.Fatalf("write: %v", err)
	}

	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read error frame: %v", err)
	}
	var frame struct {
		Error   string `json:"error"`
		Details string `json:"details"`
	}
	if err := json.Unmarshal(data, &frame); err != nil {
		t.Fatalf("error frame must be JSON, got %q: %v", data, err)
	}
	if frame.Error != "AI call failed" {
		t.Fatalf("unexpected error field: %q", frame.Error)
	}
	if !strings.Contains(frame.Details, "model backend down") {
		t.Fatalf("details must carry the cause, got %q", frame.Details)
	}
}

func TestReconnectReplacesConnection(t *testing.T) {
	srv := newTestServer(t, &fakeInferencer{})

	first := dial(t, srv, "/ws/s1")
	readHandshake(t, first)

	second := dial(t, srv, "/ws/s1")
	readHandshake(t, second)

	// Replies now go to the newer connection.
	if err := second.WriteMessage(websocket.TextMessage, []byte("still here")); err != nil {
		t.Fatalf("write: %v", err)
	}
	_, data, err := second.ReadMessage()
	if err != nil {
		t.Fatalf("read reply: %v", err)
	}
	if string(data) != "reply to: still here" {
		t.Fatalf("unexpected reply: %q", data)
	}
}
