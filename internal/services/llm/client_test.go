package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func chatReply(t *testing.T, w http.ResponseWriter, content string) {
	t.Helper()
	payload := map[string]any{
		"model":       "llava",
		"message":     map[string]any{"role": "assistant", "content": content},
		"done":        true,
		"done_reason": "stop",
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		t.Errorf("encode response: %v", err)
	}
}

func TestClientChatSendsImagesAndFormat(t *testing.T) {
	var got chatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		chatReply(t, w, `{"hat":1}`)
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL + "/", Model: "llava"})
	content, err := client.Chat(context.Background(), Request{
		System: "You are FABLE",
		User:   "Describe the following image:",
		Images: []string{"aGVsbG8="},
		Format: json.RawMessage(`{"type":"object"}`),
	})
	if err != nil {
		t.Fatalf("Chat returned error: %v", err)
	}
	if content != `{"hat":1}` {
		t.Fatalf("unexpected content %q", content)
	}
	if got.Model != "llava" || got.Stream {
		t.Fatalf("unexpected request: %#v", got)
	}
	if len(got.Messages) != 2 || got.Messages[0].Role != "system" || got.Messages[1].Role != "user" {
		t.Fatalf("unexpected messages: %#v", got.Messages)
	}
	if len(got.Messages[1].Images) != 1 || got.Messages[1].Images[0] != "aGVsbG8=" {
		t.Fatalf("expected image on user message: %#v", got.Messages[1])
	}
	if string(got.Format) != `{"type":"object"}` {
		t.Fatalf("unexpected format: %s", got.Format)
	}
}

func TestClientChatRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.Header().Set("Retry-After", "2")
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"error":"loading model"}`))
			return
		}
		chatReply(t, w, "ok")
	}))
	defer server.Close()

	var sleeps []time.Duration
	client := NewClient(Config{BaseURL: server.URL, Model: "llava"},
		WithRetryMaxAttempts(3),
		WithRetryBackoff(time.Millisecond, 5*time.Second),
		WithSleeper(func(d time.Duration) { sleeps = append(sleeps, d) }),
	)
	content, err := client.Chat(context.Background(), Request{User: "hi"})
	if err != nil {
		t.Fatalf("Chat returned error: %v", err)
	}
	if content != "ok" || calls.Load() != 3 {
		t.Fatalf("unexpected result %q after %d calls", content, calls.Load())
	}
	if len(sleeps) != 2 || sleeps[0] != 2*time.Second {
		t.Fatalf("expected Retry-After to drive the delay, got %v", sleeps)
	}
}

func TestClientChatDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"model \"nope\" not found"}`))
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL, Model: "nope"}, WithSleeper(func(time.Duration) {}))
	_, err := client.Chat(context.Background(), Request{User: "hi"})
	var statusErr *httpStatusError
	if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 status error, got %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("expected a single attempt, got %d", calls.Load())
	}
}

func TestClientChatEmptyContentExhaustsRetries(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		chatReply(t, w, "  ")
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL, Model: "llava"},
		WithRetryMaxAttempts(2),
		WithSleeper(func(time.Duration) {}),
	)
	_, err := client.Chat(context.Background(), Request{User: "hi"})
	if err == nil || !strings.Contains(err.Error(), "failed after 2 attempts") {
		t.Fatalf("expected exhausted retries, got %v", err)
	}
	var emptyErr *emptyContentError
	if !errors.As(err, &emptyErr) {
		t.Fatalf("expected empty content error, got %v", err)
	}
}

func TestClientChatHonoursCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	client := NewClient(Config{BaseURL: server.URL, Model: "llava"},
		WithRetryMaxAttempts(5),
		WithSleeper(func(time.Duration) { cancel() }),
	)
	_, err := client.Chat(ctx, Request{User: "hi"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context cancellation, got %v", err)
	}
}

func TestClientHealthCheck(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tags" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"models":[{"name":"llava:latest","model":"llava:latest"},{"name":"bakllava:7b"}]}`))
	}))
	defer server.Close()

	if err := NewClient(Config{BaseURL: server.URL, Model: "llava"}).HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck returned error: %v", err)
	}
	if err := NewClient(Config{BaseURL: server.URL, Model: "bakllava:7b"}).HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck returned error: %v", err)
	}
	err := NewClient(Config{BaseURL: server.URL, Model: "moondream"}).HealthCheck(context.Background())
	if !errors.Is(err, ErrModelMissing) {
		t.Fatalf("expected ErrModelMissing, got %v", err)
	}
}

func TestClientRateLimiter(t *testing.T) {
	client := NewClient(Config{Model: "llava", RequestsPerSecond: 2.5})
	if client.limiter == nil {
		t.Fatal("expected limiter when requests_per_second is set")
	}
	if client.limiter.Burst() != 2 {
		t.Fatalf("unexpected burst %d", client.limiter.Burst())
	}
	if NewClient(Config{Model: "llava"}).limiter != nil {
		t.Fatal("expected no limiter by default")
	}
}

func TestDecodeLLMJSONCodeFence(t *testing.T) {
	var out struct {
		Faces []int `json:"faces"`
	}
	if err := DecodeLLMJSON("Here you go:\n```json\n{\"faces\":[1,2]}\n```", &out); err != nil {
		t.Fatalf("DecodeLLMJSON returned error: %v", err)
	}
	if len(out.Faces) != 2 {
		t.Fatalf("unexpected decode: %#v", out)
	}
	if err := DecodeLLMJSON("no json here", &out); err == nil {
		t.Fatal("expected error for prose")
	}
}
