package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/zixuanli/edge-sim/backend/internal/config"
)

func TestNormalizeResponseBareString(t *testing.T) {
	got := NormalizeResponse(json.RawMessage(`"X"`))
	if got != "X" {
		t.Fatalf("expected X, got %q", got)
	}
}

func TestNormalizeResponseResponseField(t *testing.T) {
	got := NormalizeResponse(json.RawMessage(`{"response":"X"}`))
	if got != "X" {
		t.Fatalf("expected X, got %q", got)
	}
}

func TestNormalizeResponseChatCompletion(t *testing.T) {
	raw := json.RawMessage(`{"choices":[{"message":{"content":"X"}}]}`)
	if got := NormalizeResponse(raw); got != "X" {
		t.Fatalf("expected X, got %q", got)
	}
}

func TestNormalizeResponseUnknownShape(t *testing.T) {
	got := NormalizeResponse(json.RawMessage(`{"tokens":[1,2,3]}`))
	if got == "" {
		t.Fatal("expected non-empty fallback for unknown shape")
	}
	if !strings.Contains(got, "tokens") {
		t.Fatalf("expected serialized diagnostic, got %q", got)
	}
}

func TestWorkersClientInfer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("unexpected method %s", r.Method)
		}
		if !strings.Contains(r.URL.Path, "/accounts/acc-1/ai/run/") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer token-1" {
			t.Errorf("unexpected auth header %q", auth)
		}

		var req inferRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if len(req.Messages) != 2 || req.Messages[0].Role != "system" {
			t.Errorf("unexpected messages: %+v", req.Messages)
		}

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"success":true,"result":{"response":"blocked the request"}}`))
	}))
	defer srv.Close()

	client := NewWorkersClient(config.AIConfig{
		AccountID: "acc-1",
		APIToken:  "token-1",
		BaseURL:   srv.URL,
		Model:     "test-model",
	})

	got, err := client.Infer(context.Background(), []Message{
		SystemMessage("you are a WAF"),
		UserMessage("sqlmap scan detected"),
	}, Options{Temperature: 0.4, MaxTokens: 700})
	if err != nil {
		t.Fatalf("Infer err: %v", err)
	}
	if got != "blocked the request" {
		t.Fatalf("unexpected response: %q", got)
	}
}

func TestWorkersClientInferBackendError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("upstream unavailable"))
	}))
	defer srv.Close()

	client := NewWorkersClient(config.AIConfig{AccountID: "a", APIToken: "t", BaseURL: srv.URL, Model: "m"})

	if _, err := client.Infer(context.Background(), []Message{UserMessage("hi")}, Options{}); err == nil {
		t.Fatal("expected error for non-200 backend response")
	}
}

func TestWorkersClientEmbedBatchedShape(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"success":true,"result":{"data":[[0.1,0.2,0.3]]}}`))
	}))
	defer srv.Close()

	client := NewWorkersClient(config.AIConfig{AccountID: "a", APIToken: "t", BaseURL: srv.URL, EmbeddingModel: "e"})

	vec, err := client.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Embed err: %v", err)
	}
	if len(vec) != 3 || vec[0] != 0.1 {
		t.Fatalf("unexpected vector: %v", vec)
	}
}

func TestWorkersClientEmbedBareVector(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"success":true,"result":[0.5,0.6]}`))
	}))
	defer srv.Close()

	client := NewWorkersClient(config.AIConfig{AccountID: "a", APIToken: "t", BaseURL: srv.URL, EmbeddingModel: "e"})

	vec, err := client.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Embed err: %v", err)
	}
	if len(vec) != 2 || vec[1] != 0.6 {
		t.Fatalf("unexpected vector: %v", vec)
	}
}
