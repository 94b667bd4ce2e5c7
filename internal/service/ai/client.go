package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/zixuanli/edge-sim/backend/internal/config"
)

// Message is one entry of the ordered prompt sent to the model backend.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Options carries the sampling parameters of a single inference call.
type Options struct {
	Temperature float64
	MaxTokens   int
}

// Inferencer is the stateless request/response contract the core requires of
// a language-model backend.
type Inferencer interface {
	Infer(ctx context.Context, messages []Message, opts Options) (string, error)
}

// SystemMessage builds a system-role prompt entry.
func SystemMessage(content string) Message {
	return Message{Role: "system", Content: content}
}

// UserMessage builds a user-role prompt entry.
func UserMessage(content string) Message {
	return Message{Role: "user", Content: content}
}

// WorkersClient talks to a Workers-AI-shaped REST backend. The same client
// serves text inference and embedding; both routes live under
// {base}/accounts/{account}/ai/run/{model}.
type WorkersClient struct {
	cfg    config.AIConfig
	client *http.Client
}

// NewWorkersClient builds a client from the AI configuration section.
func NewWorkersClient(cfg config.AIConfig) *WorkersClient {
	return &WorkersClient{
		cfg:    cfg,
		client: &http.Client{Timeout: 120 * time.Second},
	}
}

type inferRequest struct {
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens"`
}

// apiEnvelope is the REST wrapper around the model payload. The inner result
// is kept raw: its shape varies by model and is resolved by NormalizeResponse.
type apiEnvelope struct {
	Success bool            `json:"success"`
	Result  json.RawMessage `json:"result"`
	Errors  []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// Infer runs one chat completion and returns the normalized response text.
func (c *WorkersClient) Infer(ctx context.Context, messages []Message, opts Options) (string, error) {
	raw, err := c.run(ctx, c.cfg.Model, inferRequest{
		Messages:    messages,
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
	})
	if err != nil {
		return "", err
	}
	return NormalizeResponse(raw), nil
}

type embedRequest struct {
	Text string `json:"text"`
}

// embedResult covers both embedding payload shapes the backend emits: a
// batched {"data": [[...]]} object or a bare vector.
type embedResult struct {
	Data [][]float32 `json:"data"`
}

// Embed converts text to a vector using the configured embedding model.
func (c *WorkersClient) Embed(ctx context.Context, text string) ([]float32, error) {
	raw, err := c.run(ctx, c.cfg.EmbeddingModel, embedRequest{Text: text})
	if err != nil {
		return nil, err
	}

	var batched embedResult
	if err := json.Unmarshal(raw, &batched); err == nil && len(batched.Data) > 0 {
		return batched.Data[0], nil
	}

	var vector []float32
	if err := json.Unmarshal(raw, &vector); err == nil && len(vector) > 0 {
		return vector, nil
	}

	return nil, fmt.Errorf("unexpected embedding payload: %s", truncateForError(raw))
}

func (c *WorkersClient) run(ctx context.Context, model string, payload any) (json.RawMessage, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/accounts/%s/ai/run/%s",
		c.cfg.BaseURL, url.PathEscape(c.cfg.AccountID), model)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call model backend: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read model response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("model backend returned %d: %s", resp.StatusCode, truncateForError(data))
	}

	var envelope apiEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil || envelope.Result == nil {
		// Some gateways return the model payload without the REST wrapper.
		return json.RawMessage(data), nil
	}
	if !envelope.Success && len(envelope.Errors) > 0 {
		return nil, fmt.Errorf("model backend error: %s", envelope.Errors[0].Message)
	}
	return envelope.Result, nil
}

// NormalizeResponse reduces the model payload to plain text. The backend may
// answer with a bare string, an object carrying a response field, or a
// chat-completion object; anything else serializes to a diagnostic string so
// the caller always gets non-empty text.
func NormalizeResponse(raw json.RawMessage) string {
	var bare string
	if err := json.Unmarshal(raw, &bare); err == nil {
		return bare
	}

	var shaped struct {
		Response string `json:"response"`
		Choices  []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(raw, &shaped); err == nil {
		if shaped.Response != "" {
			return shaped.Response
		}
		if len(shaped.Choices) > 0 && shaped.Choices[0].Message.Content != "" {
			return shaped.Choices[0].Message.Content
		}
	}

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, raw, "", "  "); err == nil {
		return pretty.String()
	}
	return string(raw)
}

func truncateForError(data []byte) string {
	const limit = 200
	if len(data) > limit {
		return string(data[:limit]) + "..."
	}
	return string(data)
}
