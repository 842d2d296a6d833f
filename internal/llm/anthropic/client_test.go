package anthropic

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/parleyhq/parley/internal/llm"
)

func testClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(Config{APIKey: "test-key", BaseURL: srv.URL, Model: "test-model"}, slog.New(slog.DiscardHandler))
}

func TestClient_Complete(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/messages" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("x-api-key") != "test-key" {
			t.Error("missing api key header")
		}
		w.Write([]byte(`{"content": [{"type": "text", "text": "pong"}]}`))
	})
	reply, err := client.Complete(context.Background(), llm.Request{Prompt: "ping"})
	if err != nil {
		t.Fatal(err)
	}
	if reply != "pong" {
		t.Errorf("unexpected reply %q", reply)
	}
}

func TestClient_MissingKeyIsUnavailable(t *testing.T) {
	client := New(Config{BaseURL: "http://127.0.0.1:0"}, slog.New(slog.DiscardHandler))
	_, err := client.Complete(context.Background(), llm.Request{Prompt: "ping"})
	if !errors.Is(err, llm.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestClient_StreamAssemblesDeltas(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		lines := []string{
			`event: message_start`,
			`data: {"type": "message_start"}`,
			``,
			`event: content_block_delta`,
			`data: {"type": "content_block_delta", "delta": {"text": "We ship "}}`,
			``,
			`event: content_block_delta`,
			`data: {"type": "content_block_delta", "delta": {"text": "on friday."}}`,
			``,
			`event: message_stop`,
			`data: {"type": "message_stop"}`,
		}
		w.Write([]byte(strings.Join(lines, "\n") + "\n"))
	})

	chunks, err := client.Stream(context.Background(), llm.Request{Prompt: "when do we ship?"})
	if err != nil {
		t.Fatal(err)
	}
	var b strings.Builder
	for chunk := range chunks {
		if chunk.Err != nil {
			t.Fatalf("unexpected chunk error: %v", chunk.Err)
		}
		b.WriteString(chunk.Text)
	}
	if got := b.String(); got != "We ship on friday." {
		t.Errorf("unexpected assembled text %q", got)
	}
}

func TestClient_StreamNonOKStatusFails(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadRequest)
	})
	if _, err := client.Stream(context.Background(), llm.Request{Prompt: "ping"}); err == nil {
		t.Fatal("expected an error on a 400 response")
	}
}
