package memory

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	chromem "github.com/philippgille/chromem-go"
)

// Service stores embedded conversation snippets and retrieves them by
// semantic similarity, always scoped to a single session.
type Service struct {
	db       *chromem.DB
	embedder Embedder

	mu          sync.RWMutex
	collections map[string]*chromem.Collection

	// seq disambiguates records written within the same millisecond.
	seq atomic.Uint64
}

// New opens (or creates) the persistent vector database at path.
func New(path string, embedder Embedder) (*Service, error) {
	db, err := chromem.NewPersistentDB(path, false)
	if err != nil {
		return nil, fmt.Errorf("open vector db: %w", err)
	}

	return &Service{
		db:          db,
		embedder:    embedder,
		collections: make(map[string]*chromem.Collection),
	}, nil
}

// collection returns the per-session collection, creating it on first use.
// One collection per session keeps queries hard-scoped by construction.
func (s *Service) collection(sessionID string) (*chromem.Collection, error) {
	name := collectionName(sessionID)

	s.mu.RLock()
	col, ok := s.collections[name]
	s.mu.RUnlock()
	if ok {
		return col, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if col, ok := s.collections[name]; ok {
		return col, nil
	}

	col, err := s.db.GetOrCreateCollection(name, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("create collection: %w", err)
	}
	s.collections[name] = col
	return col, nil
}

// Upsert embeds text and stores it as a memory record of the session.
// The id combines session, record kind, timestamp and a monotonic counter,
// so same-millisecond writes never collide.
func (s *Service) Upsert(ctx context.Context, sessionID, kind, text string) (string, error) {
	col, err := s.collection(sessionID)
	if err != nil {
		return "", err
	}

	embedding, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return "", fmt.Errorf("embed text: %w", err)
	}

	id := strings.Join([]string{
		sessionID,
		kind,
		strconv.FormatInt(time.Now().UnixMilli(), 10),
		strconv.FormatUint(s.seq.Add(1), 10),
	}, ":")

	err = col.AddDocument(ctx, chromem.Document{
		ID:        id,
		Content:   text,
		Embedding: embedding,
		Metadata:  map[string]string{"sessionId": sessionID, "text": text},
	})
	if err != nil {
		return "", fmt.Errorf("add document: %w", err)
	}

	log.Printf("[memory] stored record id=%s session=%s", id, sessionID)
	return id, nil
}

// Query returns the texts of the topK records most similar to query within
// the session, ordered by similarity. An empty session yields no results and
// no error.
func (s *Service) Query(ctx context.Context, sessionID, query string, topK int) ([]string, error) {
	col, err := s.collection(sessionID)
	if err != nil {
		return nil, err
	}

	// chromem rejects nResults larger than the collection size.
	if count := col.Count(); count < topK {
		topK = count
	}
	if topK <= 0 {
		return nil, nil
	}

	embedding, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	results, err := col.QueryEmbedding(ctx, embedding, topK, map[string]string{"sessionId": sessionID}, nil)
	if err != nil {
		return nil, fmt.Errorf("query collection: %w", err)
	}

	texts := make([]string, 0, len(results))
	for _, res := range results {
		if text := res.Metadata["text"]; text != "" {
			texts = append(texts, text)
		}
	}

	log.Printf("[memory] query session=%s returned %d records", sessionID, len(texts))
	return texts, nil
}

// collectionName derives a chromem-safe name from the session identity.
func collectionName(sessionID string) string {
	var b strings.Builder
	b.WriteString("session-")
	for _, r := range sessionID {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('-')
		}
	}

	name := b.String()
	if len(name) > 63 {
		name = name[:63]
	}
	return name
}
