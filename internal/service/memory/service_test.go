package memory

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	svc, err := New(filepath.Join(t.TempDir(), "memory"), NewHashEmbedder())
	if err != nil {
		t.Fatalf("New err: %v", err)
	}
	return svc
}

func TestUpsertThenQuery(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	id, err := svc.Upsert(ctx, "s1", "user", "[USER] cache miss storm on /assets")
	if err != nil {
		t.Fatalf("Upsert err: %v", err)
	}
	if !strings.HasPrefix(id, "s1:user:") {
		t.Fatalf("unexpected id format: %s", id)
	}

	texts, err := svc.Query(ctx, "s1", "cache miss storm on /assets", 3)
	if err != nil {
		t.Fatalf("Query err: %v", err)
	}
	if len(texts) != 1 {
		t.Fatalf("expected 1 record, got %d", len(texts))
	}
	if texts[0] != "[USER] cache miss storm on /assets" {
		t.Fatalf("stored text must round-trip verbatim, got %q", texts[0])
	}
}

func TestQueryScopedBySession(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Upsert(ctx, "s1", "user", "[USER] message for s1"); err != nil {
		t.Fatalf("Upsert err: %v", err)
	}
	if _, err := svc.Upsert(ctx, "s2", "user", "[USER] message for s2"); err != nil {
		t.Fatalf("Upsert err: %v", err)
	}

	texts, err := svc.Query(ctx, "s1", "message", 3)
	if err != nil {
		t.Fatalf("Query err: %v", err)
	}
	for _, text := range texts {
		if strings.Contains(text, "s2") {
			t.Fatalf("query leaked another session's record: %q", text)
		}
	}
	if len(texts) != 1 {
		t.Fatalf("expected 1 record for s1, got %d", len(texts))
	}
}

func TestQueryEmptySession(t *testing.T) {
	svc := newTestService(t)

	texts, err := svc.Query(context.Background(), "never-seen", "anything", 3)
	if err != nil {
		t.Fatalf("Query on empty session must not error: %v", err)
	}
	if len(texts) != 0 {
		t.Fatalf("expected no records, got %d", len(texts))
	}
}

func TestQueryClampsTopK(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Upsert(ctx, "s1", "user", "[USER] only record"); err != nil {
		t.Fatalf("Upsert err: %v", err)
	}

	// topK above the collection size must not fail.
	texts, err := svc.Query(ctx, "s1", "only record", 10)
	if err != nil {
		t.Fatalf("Query err: %v", err)
	}
	if len(texts) != 1 {
		t.Fatalf("expected 1 record, got %d", len(texts))
	}
}

func TestUpsertIDsUnique(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	seen := make(map[string]bool)
	for i := 0; i < 20; i++ {
		id, err := svc.Upsert(ctx, "s1", "user", "[USER] same millisecond burst")
		if err != nil {
			t.Fatalf("Upsert err: %v", err)
		}
		if seen[id] {
			t.Fatalf("duplicate record id: %s", id)
		}
		seen[id] = true
	}
}

func TestHashEmbedderDeterministic(t *testing.T) {
	e := NewHashEmbedder()
	ctx := context.Background()

	a, err := e.Embed(ctx, "same text")
	if err != nil {
		t.Fatalf("Embed err: %v", err)
	}
	b, err := e.Embed(ctx, "same text")
	if err != nil {
		t.Fatalf("Embed err: %v", err)
	}

	if len(a) != 384 {
		t.Fatalf("expected 384 dimensions, got %d", len(a))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatal("embeddings for identical text must match")
		}
	}
}
