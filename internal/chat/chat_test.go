package chat

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	logx "github.com/SHW4T/CONVO-DOWNLO/pkg/logx"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(Config{Endpoint: srv.URL}, logx.Nop())
}

func TestReplyListResponse(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req map[string]string
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req["inputs"] != "hello" {
			t.Errorf("inputs = %q, want hello", req["inputs"])
		}
		_, _ = w.Write([]byte(`[{"generated_text":"hi there"}]`))
	})

	if got := c.Reply(context.Background(), "hello"); got != "hi there" {
		t.Fatalf("reply = %q", got)
	}
}

func TestReplyDictResponse(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"generated_text":"single object"}`))
	})

	if got := c.Reply(context.Background(), "hello"); got != "single object" {
		t.Fatalf("reply = %q", got)
	}
}

func TestReplyServerErrorFallsBack(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model loading", http.StatusServiceUnavailable)
	})

	if got := c.Reply(context.Background(), "hello"); got != MsgUnavailable {
		t.Fatalf("reply = %q, want %q", got, MsgUnavailable)
	}
}

func TestReplyMalformedBodyFallsBack(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`"just a string"`))
	})

	if got := c.Reply(context.Background(), "hello"); got != MsgError {
		t.Fatalf("reply = %q, want %q", got, MsgError)
	}
}

func TestReplyEmptyGenerationFallsBack(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	})

	if got := c.Reply(context.Background(), "hello"); got != MsgEmpty {
		t.Fatalf("reply = %q, want %q", got, MsgEmpty)
	}
}

func TestReplyBlankInput(t *testing.T) {
	t.Parallel()

	c := New(Config{Endpoint: "http://unused.invalid"}, logx.Nop())
	if got := c.Reply(context.Background(), "   "); got != MsgEmpty {
		t.Fatalf("reply = %q, want %q", got, MsgEmpty)
	}
}

func TestReplyNoEndpointConfigured(t *testing.T) {
	t.Parallel()

	c := New(Config{}, logx.Nop())
	if c.Enabled() {
		t.Fatal("client reports enabled without endpoint")
	}
	if got := c.Reply(context.Background(), "hello"); got != MsgUnavailable {
		t.Fatalf("reply = %q, want %q", got, MsgUnavailable)
	}
}

func TestReplySendsBearerToken(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer sekrit" {
			t.Errorf("authorization = %q", got)
		}
		_, _ = w.Write([]byte(`[{"generated_text":"ok"}]`))
	}))
	defer srv.Close()

	c := New(Config{Endpoint: srv.URL, Token: "sekrit"}, logx.Nop())
	if got := c.Reply(context.Background(), "hello"); got != "ok" {
		t.Fatalf("reply = %q", got)
	}
}
