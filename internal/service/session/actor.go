package session

import (
	"context"
	"encoding/json"
	"log"
	"strings"
	"sync"

	"github.com/zixuanli/edge-sim/backend/internal/model/persona"
	"github.com/zixuanli/edge-sim/backend/internal/service/ai"
)

const (
	handshakeMessage = "Connected to Edge Persona Simulator"

	memoryTopK      = 3
	replyStoreLimit = 500
	turnTemperature = 0.4
	turnMaxTokens   = 700
	mailboxCapacity = 32
)

// Sink is the output channel registered for a session. At most one sink is
// active per session; a new connection replaces the previous one.
type Sink interface {
	Send(text string) error
	SendJSON(v any) error
}

// Memory is the vector memory contract the actor consumes.
type Memory interface {
	Upsert(ctx context.Context, sessionID, kind, text string) (string, error)
	Query(ctx context.Context, sessionID, query string, topK int) ([]string, error)
}

// RoleStore persists the single durable attribute of a session: its persona.
type RoleStore interface {
	GetSessionPersona(sessionID string) (string, bool, error)
	SaveSessionPersona(sessionID, persona string) error
}

// Handshake is the one-time frame sent when a client attaches. It echoes the
// session id so clients that connected without one learn their identity.
type Handshake struct {
	OK        bool       `json:"ok"`
	Message   string     `json:"message"`
	SessionID string     `json:"sessionId"`
	Persona   persona.ID `json:"persona"`
}

// ErrorFrame is the structured payload delivered when a model call fails.
type ErrorFrame struct {
	Error   string `json:"error"`
	Details string `json:"details"`
}

// Service owns one Actor per session identity. Actors are created implicitly
// on first contact and keep their persona across reconnects.
type Service struct {
	personas   persona.Store
	memory     Memory
	inferencer ai.Inferencer
	roles      RoleStore

	mu     sync.Mutex
	actors map[string]*Actor
}

// NewService wires the session actor table.
func NewService(personas persona.Store, mem Memory, inferencer ai.Inferencer, roles RoleStore) *Service {
	return &Service{
		personas:   personas,
		memory:     mem,
		inferencer: inferencer,
		roles:      roles,
		actors:     make(map[string]*Actor),
	}
}

// Connect registers sink as the session's current output channel and returns
// the handshake. A previously registered sink is replaced, not closed.
func (s *Service) Connect(sessionID string, sink Sink) Handshake {
	actor := s.actor(sessionID)
	actor.attach(sink)
	return Handshake{
		OK:        true,
		Message:   handshakeMessage,
		SessionID: sessionID,
		Persona:   actor.currentPersona(),
	}
}

// Disconnect clears the registered sink, but only when it still is the one
// disconnecting; an older connection must not clear a newer registration.
func (s *Service) Disconnect(sessionID string, sink Sink) {
	s.mu.Lock()
	actor, ok := s.actors[sessionID]
	s.mu.Unlock()
	if ok {
		actor.detach(sink)
	}
}

// Enqueue hands a raw inbound frame to the session's actor. Frames of one
// session are processed strictly in arrival order; frames of different
// sessions proceed independently.
func (s *Service) Enqueue(sessionID, raw string) {
	s.actor(sessionID).enqueue(raw)
}

// Stop shuts down every actor after its queued turns have drained.
func (s *Service) Stop() {
	s.mu.Lock()
	actors := make([]*Actor, 0, len(s.actors))
	for _, a := range s.actors {
		actors = append(actors, a)
	}
	s.mu.Unlock()

	for _, a := range actors {
		a.stop()
	}
}

func (s *Service) actor(sessionID string) *Actor {
	s.mu.Lock()
	defer s.mu.Unlock()

	if actor, ok := s.actors[sessionID]; ok {
		return actor
	}

	actor := newActor(s, sessionID)
	s.actors[sessionID] = actor
	go actor.loop()
	return actor
}

// Actor serializes all message handling for one session identity and carries
// its only mutable state, the current persona.
type Actor struct {
	svc       *Service
	sessionID string

	mailbox chan string
	done    chan struct{}

	mu        sync.Mutex
	personaID persona.ID
	sink      Sink
	closed    bool
}

func newActor(svc *Service, sessionID string) *Actor {
	personaID := persona.Default()
	if stored, ok, err := svc.roles.GetSessionPersona(sessionID); err != nil {
		log.Printf("[session] failed to load persona for session=%s: %v", sessionID, err)
	} else if ok {
		if id := persona.ID(stored); isKnown(svc.personas, id) {
			personaID = id
		}
	}

	return &Actor{
		svc:       svc,
		sessionID: sessionID,
		mailbox:   make(chan string, mailboxCapacity),
		done:      make(chan struct{}),
		personaID: personaID,
	}
}

func (a *Actor) attach(sink Sink) {
	a.mu.Lock()
	a.sink = sink
	a.mu.Unlock()
}

func (a *Actor) detach(sink Sink) {
	a.mu.Lock()
	if a.sink == sink {
		a.sink = nil
	}
	a.mu.Unlock()
}

func (a *Actor) currentPersona() persona.ID {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.personaID
}

func (a *Actor) currentSink() Sink {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.sink
}

func (a *Actor) enqueue(raw string) {
	a.mu.Lock()
	closed := a.closed
	a.mu.Unlock()
	if closed {
		log.Printf("[session] dropping message for stopped session=%s", a.sessionID)
		return
	}
	a.mailbox <- raw
}

func (a *Actor) stop() {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.closed = true
	a.mu.Unlock()

	close(a.mailbox)
	<-a.done
}

// loop drains the mailbox one turn at a time. A turn runs to completion (or
// hits a per-step non-fatal failure) before the next queued frame starts.
func (a *Actor) loop() {
	defer close(a.done)
	for raw := range a.mailbox {
		a.handleTurn(context.Background(), raw)
	}
}

// inboundFrame is the structured form of a client frame. Clients send the
// persona switch under either key; "role" takes precedence.
type inboundFrame struct {
	Message string `json:"message"`
	Role    string `json:"role"`
	Persona string `json:"persona"`
}

func (a *Actor) handleTurn(ctx context.Context, raw string) {
	message, requested := parseInbound(raw)
	message = strings.TrimSpace(message)
	if message == "" {
		return
	}

	a.applyPersonaSwitch(requested)
	current, _ := a.svc.personas.FindByID(a.currentPersona())

	// Memory failures degrade the turn, they never abort it.
	if _, err := a.svc.memory.Upsert(ctx, a.sessionID, "user", "[USER] "+message); err != nil {
		log.Printf("[session] memory upsert failed (non-fatal) session=%s: %v", a.sessionID, err)
	}

	memories, err := a.svc.memory.Query(ctx, a.sessionID, message, memoryTopK)
	if err != nil {
		log.Printf("[session] memory query failed (non-fatal) session=%s: %v", a.sessionID, err)
		memories = nil
	}

	reply, err := a.svc.inferencer.Infer(ctx, []ai.Message{
		ai.SystemMessage(ai.SessionPrompt(current, memories)),
		ai.UserMessage(message),
	}, ai.Options{Temperature: turnTemperature, MaxTokens: turnMaxTokens})
	if err != nil {
		log.Printf("[session] model call failed session=%s: %v", a.sessionID, err)
		a.deliverError("AI call failed", err.Error())
		return
	}

	stored := reply
	if len(stored) > replyStoreLimit {
		stored = stored[:replyStoreLimit]
	}
	if _, err := a.svc.memory.Upsert(ctx, a.sessionID, "assistant", "[ASSISTANT] "+stored); err != nil {
		log.Printf("[session] memory upsert failed (non-fatal) session=%s: %v", a.sessionID, err)
	}

	a.deliver(reply)
}

// applyPersonaSwitch mutates session state when the client requested a
// different, known persona. This is the only mutation to session state.
func (a *Actor) applyPersonaSwitch(requested string) {
	if requested == "" {
		return
	}

	id := persona.ID(requested)
	if !isKnown(a.svc.personas, id) {
		log.Printf("[session] ignoring unknown persona %q session=%s", requested, a.sessionID)
		return
	}

	a.mu.Lock()
	changed := a.personaID != id
	if changed {
		a.personaID = id
	}
	a.mu.Unlock()

	if !changed {
		return
	}

	if err := a.svc.roles.SaveSessionPersona(a.sessionID, string(id)); err != nil {
		log.Printf("[session] failed to persist persona session=%s: %v", a.sessionID, err)
	}
}

func (a *Actor) deliver(text string) {
	sink := a.currentSink()
	if sink == nil {
		log.Printf("[session] no active connection for session=%s, dropping reply", a.sessionID)
		return
	}
	if err := sink.Send(text); err != nil {
		log.Printf("[session] failed to deliver reply session=%s: %v", a.sessionID, err)
	}
}

func (a *Actor) deliverError(msg, details string) {
	sink := a.currentSink()
	if sink == nil {
		log.Printf("[session] no active connection for session=%s, dropping error", a.sessionID)
		return
	}
	if err := sink.SendJSON(ErrorFrame{Error: msg, Details: details}); err != nil {
		log.Printf("[session] failed to deliver error session=%s: %v", a.sessionID, err)
	}
}

func isKnown(store persona.Store, id persona.ID) bool {
	_, ok := store.FindByID(id)
	return ok
}

// parseInbound interprets raw as a structured frame, falling back to treating
// the whole payload as message text. Malformed input is never an error.
func parseInbound(raw string) (message, requestedPersona string) {
	var frame inboundFrame
	if err := json.Unmarshal([]byte(raw), &frame); err == nil && frame.Message != "" {
		requested := frame.Role
		if requested == "" {
			requested = frame.Persona
		}
		return frame.Message, requested
	}
	return raw, ""
}
