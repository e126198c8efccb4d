package llm

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestClientGenerateSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":"not_found"}`))
			return
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"unauthorized"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"choices":[{"message":{"role":"assistant","content":"{\"score\":7}"}}]
		}`))
	}))
	defer server.Close()

	client := NewClient(&Config{
		Model:      "gpt-4o-mini",
		APIKey:     "test-key",
		BaseURL:    server.URL,
		Timeout:    2 * time.Second,
		MaxRetries: 1,
	})

	text, err := client.Generate(context.Background(), GenerateRequest{
		System:          "Return JSON only",
		Prompt:          "analyze chapter one",
		MaxOutputTokens: 400,
		Temperature:     0.3,
	})
	if err != nil {
		t.Fatalf("expected success, got err=%v", err)
	}
	if text != `{"score":7}` {
		t.Fatalf("unexpected text: %q", text)
	}
}

func TestClientRetriesOnRateLimit(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		current := atomic.AddInt32(&calls, 1)
		if current == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":{"message":"rate_limited"}}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"ok"}}]}`))
	}))
	defer server.Close()

	client := NewClient(&Config{
		Model:      "gpt-4o-mini",
		APIKey:     "test-key",
		BaseURL:    server.URL,
		Timeout:    2 * time.Second,
		MaxRetries: 2,
	})

	text, err := client.Generate(context.Background(), GenerateRequest{Prompt: "test"})
	if err != nil {
		t.Fatalf("expected retry to recover, got err=%v", err)
	}
	if text != "ok" {
		t.Fatalf("unexpected text: %q", text)
	}
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Fatalf("expected 2 calls, got %d", got)
	}
}

func TestClientDoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"bad prompt"}}`))
	}))
	defer server.Close()

	client := NewClient(&Config{
		Model:      "gpt-4o-mini",
		APIKey:     "test-key",
		BaseURL:    server.URL,
		Timeout:    2 * time.Second,
		MaxRetries: 3,
	})

	_, err := client.Generate(context.Background(), GenerateRequest{Prompt: "test"})
	if err == nil {
		t.Fatal("expected error for HTTP 400")
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("expected 1 call for non-retryable error, got %d", got)
	}
}

func TestClientRequiresAPIKey(t *testing.T) {
	client := NewClient(&Config{Model: "gpt-4o-mini"})
	_, err := client.Generate(context.Background(), GenerateRequest{Prompt: "test"})
	if err != ErrNoAPIKey {
		t.Fatalf("got %v, want ErrNoAPIKey", err)
	}
}
