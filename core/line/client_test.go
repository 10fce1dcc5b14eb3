package line

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	coreconfig "github.com/m3rciful/secretbot/core/config"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := NewClient(coreconfig.LineConfig{ChannelToken: "tok-123", APIEndpoint: srv.URL}, srv.Client())
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return c
}

func TestNewClientRequiresToken(t *testing.T) {
	if _, err := NewClient(coreconfig.LineConfig{}, nil); err == nil {
		t.Fatal("expected error for empty token")
	}
}

func TestDisplayName(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/v2/bot/profile/U1" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok-123" {
			t.Errorf("unexpected auth header %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"displayName":"Alice","userId":"U1"}`)
	})

	name, err := c.DisplayName(context.Background(), "U1")
	if err != nil {
		t.Fatalf("display name: %v", err)
	}
	if name != "Alice" {
		t.Fatalf("name = %q", name)
	}
}

func TestReplySendsOrderedMessages(t *testing.T) {
	var body string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v2/bot/message/reply" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		data, _ := io.ReadAll(r.Body)
		body = string(data)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"sentMessages":[]}`)
	})

	if err := c.Reply(context.Background(), "rt-1", Text("hello"), Sticker("3", "233")); err != nil {
		t.Fatalf("reply: %v", err)
	}
	if !strings.Contains(body, `"replyToken":"rt-1"`) {
		t.Fatalf("reply token missing from %s", body)
	}
	textAt := strings.Index(body, `"hello"`)
	stickerAt := strings.Index(body, `"233"`)
	if textAt < 0 || stickerAt < 0 || textAt > stickerAt {
		t.Fatalf("expected text before sticker in %s", body)
	}
}

func TestReplyFailureIsReturned(t *testing.T) {
	calls := 0
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"message":"Invalid reply token"}`)
	})

	if err := c.Reply(context.Background(), "expired", Text("x")); err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Fatalf("reply must not be retried, got %d calls", calls)
	}
}

func TestReplyWithoutMessagesIsNoop(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected call %s", r.URL.Path)
	})
	if err := c.Reply(context.Background(), "rt"); err != nil {
		t.Fatalf("reply: %v", err)
	}
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{context.DeadlineExceeded, "timeout"},
		{fmt.Errorf("wrapped: %w", context.Canceled), "cancelled"},
		{&net.DNSError{Err: "no such host", Name: "api.line.me"}, "dns"},
		{&net.OpError{Op: "dial", Err: errors.New("refused")}, "dial"},
		{errors.New("unexpected status code: 400, {}"), "http_4xx"},
		{errors.New("unexpected status code: 503, {}"), "http_5xx"},
		{errors.New("boom"), "unknown"},
	}
	for _, tt := range tests {
		if got := classifyError(tt.err); got != tt.want {
			t.Errorf("classifyError(%v) = %s, want %s", tt.err, got, tt.want)
		}
	}
}

func TestSanitizeErrorMessageRedactsToken(t *testing.T) {
	err := errors.New(`Post "https://api.line.me": token tok-123 rejected`)
	got := sanitizeErrorMessage(err, "tok-123")
	if strings.Contains(got, "tok-123") || !strings.Contains(got, "<redacted>") {
		t.Fatalf("token not redacted: %s", got)
	}
}
