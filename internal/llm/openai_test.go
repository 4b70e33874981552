package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hyperjump/cardex/internal/models"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func chatResponse(content string) string {
	b, _ := json.Marshal(map[string]any{
		"id":      "chatcmpl-1",
		"object":  "chat.completion",
		"created": 1700000000,
		"model":   DefaultModel,
		"choices": []map[string]any{{
			"index":         0,
			"finish_reason": "stop",
			"message":       map[string]any{"role": "assistant", "content": content},
		}},
	})
	return string(b)
}

func TestOpenAIGenerator_Generate(t *testing.T) {
	var gotPrompt string
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		body, _ := io.ReadAll(r.Body)
		var req struct {
			Model    string `json:"model"`
			Messages []struct {
				Content string `json:"content"`
			} `json:"messages"`
		}
		_ = json.Unmarshal(body, &req)
		if req.Model != "gpt-test" {
			t.Errorf("model = %q", req.Model)
		}
		if len(req.Messages) == 1 {
			gotPrompt = req.Messages[0].Content
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, chatResponse("  {\"Occupation\": \"Engineer\"}\n"))
	})

	client := NewClient(ClientConfig{APIKey: "test", BaseURL: srv.URL, MaxRetries: 0})
	g := NewOpenAIGenerator(client, WithModel("gpt-test"))
	out, err := g.Generate(context.Background(), "question?")
	if err != nil {
		t.Fatal(err)
	}
	if out != `{"Occupation": "Engineer"}` {
		t.Errorf("Generate() = %q", out)
	}
	if gotPrompt != "question?" {
		t.Errorf("prompt sent = %q", gotPrompt)
	}
}

func TestOpenAIGenerator_ClassifiesErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   error
	}{
		{"rate limited", http.StatusTooManyRequests, models.ErrRateLimited},
		{"server error", http.StatusBadGateway, models.ErrServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, `{"error":{"message":"nope","type":"server_error"}}`)
			})
			client := NewClient(ClientConfig{APIKey: "test", BaseURL: srv.URL, MaxRetries: 1})
			_, err := NewOpenAIGenerator(client).Generate(context.Background(), "q")
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
			if !Transient(err) {
				t.Error("error should be transient")
			}
			if calls.Load() != 2 {
				t.Errorf("expected 1 retry, got %d calls", calls.Load())
			}
		})
	}
}

func TestOpenAIGenerator_ClientErrorNotTransient(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"error":{"message":"bad","type":"invalid_request_error"}}`)
	})
	client := NewClient(ClientConfig{APIKey: "test", BaseURL: srv.URL})
	_, err := NewOpenAIGenerator(client).Generate(context.Background(), "q")
	if err == nil || Transient(err) {
		t.Fatalf("400 should fail without being transient, got %v", err)
	}
}

func TestOpenAIGenerator_Timeout(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})
	client := NewClient(ClientConfig{APIKey: "test", BaseURL: srv.URL})
	g := NewOpenAIGenerator(client, WithTimeout(50*time.Millisecond))
	_, err := g.Generate(context.Background(), "q")
	if !errors.Is(err, models.ErrServiceUnavailable) {
		t.Fatalf("expected ErrServiceUnavailable, got %v", err)
	}
}

func TestClassify_PassThrough(t *testing.T) {
	if Classify(nil) != nil {
		t.Error("nil stays nil")
	}
	if err := Classify(context.Canceled); !errors.Is(err, context.Canceled) || Transient(err) {
		t.Error("cancellation is not transient")
	}
	plain := errors.New("boom")
	if Classify(plain) != plain {
		t.Error("unknown errors are returned unchanged")
	}
}
