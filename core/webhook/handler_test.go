package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"

	coreconfig "github.com/m3rciful/secretbot/core/config"
	"github.com/m3rciful/secretbot/core/conversation"
	"github.com/m3rciful/secretbot/core/users"
)

const testSecret = "channel-secret"

type fakeProfiles struct {
	mu    sync.Mutex
	names map[string]string
	calls int
	err   error
}

func (f *fakeProfiles) DisplayName(_ context.Context, userID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return f.names[userID], nil
}

type sentReply struct {
	token    string
	messages []messaging_api.MessageInterface
}

type fakeReplier struct {
	mu      sync.Mutex
	replies []sentReply
	err     error
	panics  bool
}

func (f *fakeReplier) Reply(_ context.Context, token string, messages ...messaging_api.MessageInterface) error {
	if f.panics {
		panic("replier exploded")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replies = append(f.replies, sentReply{token: token, messages: messages})
	return f.err
}

func (f *fakeReplier) last(t *testing.T) sentReply {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.replies) == 0 {
		t.Fatal("no reply sent")
	}
	return f.replies[len(f.replies)-1]
}

type failingStore struct{ err error }

func (s failingStore) EnsureUser(context.Context, string, string) (users.Record, error) {
	return users.Record{}, s.err
}

func (s failingStore) Commit(context.Context, users.Record) error { return s.err }

type fixture struct {
	store    *users.MemoryStore
	profiles *fakeProfiles
	replier  *fakeReplier
	handler  *Handler
}

func newFixture(t *testing.T, reply coreconfig.ReplyConfig) *fixture {
	t.Helper()
	f := &fixture{
		store:    users.NewMemoryStore(),
		profiles: &fakeProfiles{names: map[string]string{"U1": "Alice", "U2": "Bob"}},
		replier:  &fakeReplier{},
	}
	d, err := NewDispatcher(Options{Store: f.store, Profiles: f.profiles, Replier: f.replier, Reply: reply})
	if err != nil {
		t.Fatalf("new dispatcher: %v", err)
	}
	f.handler = NewHandler(testSecret, d)
	return f
}

func defaultReply() coreconfig.ReplyConfig {
	return coreconfig.ReplyConfig{StickerPackageID: "3", StickerID: "233"}
}

func sign(body []byte) string {
	mac := hmac.New(sha256.New, []byte(testSecret))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func envelopeJSON(typ, userID, token string) map[string]any {
	return map[string]any{
		"type":            typ,
		"mode":            "active",
		"timestamp":       1700000000000,
		"source":          map[string]any{"type": "user", "userId": userID},
		"webhookEventId":  "01HEVENT" + token,
		"deliveryContext": map[string]any{"isRedelivery": false},
		"replyToken":      token,
	}
}

func textEvent(userID, token, text string) map[string]any {
	ev := envelopeJSON("message", userID, token)
	ev["message"] = map[string]any{"id": "m-" + token, "type": "text", "quoteToken": "q", "text": text}
	return ev
}

func stickerEvent(userID, token, pkg, id string) map[string]any {
	ev := envelopeJSON("message", userID, token)
	ev["message"] = map[string]any{
		"id": "m-" + token, "type": "sticker", "quoteToken": "q",
		"packageId": pkg, "stickerId": id, "stickerResourceType": "STATIC",
	}
	return ev
}

func followEvent(userID, token string) map[string]any {
	ev := envelopeJSON("follow", userID, token)
	ev["follow"] = map[string]any{"isUnblocked": false}
	return ev
}

func body(t *testing.T, events ...map[string]any) []byte {
	t.Helper()
	if events == nil {
		events = []map[string]any{}
	}
	data, err := json.Marshal(map[string]any{"destination": "Ubot", "events": events})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return data
}

func (f *fixture) post(t *testing.T, payload []byte, signature string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/callback", bytes.NewReader(payload))
	req.Header.Set("X-Line-Signature", signature)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) send(t *testing.T, events ...map[string]any) {
	t.Helper()
	payload := body(t, events...)
	rec := f.post(t, payload, sign(payload))
	if rec.Code != http.StatusOK || rec.Body.String() != "OK" {
		t.Fatalf("unexpected response %d %q", rec.Code, rec.Body.String())
	}
}

func replyText(t *testing.T, r sentReply) string {
	t.Helper()
	if len(r.messages) == 0 {
		t.Fatal("empty reply")
	}
	msg, ok := r.messages[0].(messaging_api.TextMessage)
	if !ok {
		t.Fatalf("first message is %T, want text", r.messages[0])
	}
	return msg.Text
}

func TestInvalidSignatureIsRejected(t *testing.T) {
	f := newFixture(t, defaultReply())
	payload := body(t, textEvent("U1", "rt1", "Hi"))

	rec := f.post(t, payload, "bm90LWEtc2lnbmF0dXJl")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if len(f.replier.replies) != 0 {
		t.Fatalf("no reply expected, got %d", len(f.replier.replies))
	}
	if n, _ := f.store.Count(context.Background()); n != 0 {
		t.Fatalf("no record expected, got %d", n)
	}
}

func TestMalformedBodyIsRejected(t *testing.T) {
	f := newFixture(t, defaultReply())
	payload := []byte(`{"events":[`)
	rec := f.post(t, payload, sign(payload))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestEmptyDeliveryIsAcknowledged(t *testing.T) {
	f := newFixture(t, defaultReply())
	f.send(t)
	if len(f.replier.replies) != 0 {
		t.Fatalf("unexpected replies: %d", len(f.replier.replies))
	}
}

func TestSecretConversation(t *testing.T) {
	f := newFixture(t, defaultReply())
	ctx := context.Background()

	f.send(t, textEvent("U1", "rt1", "Hi"))
	last := f.replier.last(t)
	if got := replyText(t, last); got != "Hi Alice!" {
		t.Fatalf("greeting = %q", got)
	}
	if last.token != "rt1" || len(last.messages) != 2 {
		t.Fatalf("unexpected reply %+v", last)
	}
	sticker, ok := last.messages[1].(messaging_api.StickerMessage)
	if !ok || sticker.PackageId != "3" || sticker.StickerId != "233" {
		t.Fatalf("trailing sticker = %#v", last.messages[1])
	}
	rec, err := f.store.Find(ctx, "U1")
	if err != nil || rec.Name != "Alice" || rec.SecretText != "" || rec.Armed {
		t.Fatalf("record after greeting = %+v, %v", rec, err)
	}

	f.send(t, textEvent("U1", "rt2", "悄悄話"))
	if got := replyText(t, f.replier.last(t)); got != conversation.PromptReply {
		t.Fatalf("arm reply = %q", got)
	}
	if rec, _ = f.store.Find(ctx, "U1"); !rec.Armed {
		t.Fatal("expected armed record")
	}

	f.send(t, textEvent("U1", "rt3", "I like cats"))
	if got := replyText(t, f.replier.last(t)); got != conversation.ConfirmReply {
		t.Fatalf("capture reply = %q", got)
	}
	rec, _ = f.store.Find(ctx, "U1")
	if rec.Armed || rec.SecretText != "I like cats" {
		t.Fatalf("record after capture = %+v", rec)
	}

	f.send(t, textEvent("U1", "rt4", "告訴我悄悄話"))
	if got := replyText(t, f.replier.last(t)); got != "你的悄悄話是：\n\nI like cats" {
		t.Fatalf("reveal reply = %q", got)
	}

	f.send(t, textEvent("U1", "rt5", "hello"))
	if got := replyText(t, f.replier.last(t)); got != "hello" {
		t.Fatalf("echo reply = %q", got)
	}
	rec, _ = f.store.Find(ctx, "U1")
	if rec.Armed || rec.SecretText != "I like cats" {
		t.Fatalf("record after echo = %+v", rec)
	}
}

func TestEventsInOneDeliveryAreHandledInOrder(t *testing.T) {
	f := newFixture(t, coreconfig.ReplyConfig{DisableSticker: true})
	f.send(t,
		textEvent("U2", "a", "悄悄話"),
		textEvent("U2", "b", "secret"),
		textEvent("U2", "c", "悄悄話"),
	)
	want := []string{conversation.PromptReply, conversation.ConfirmReply, "你的悄悄話是：\n\nsecret"}
	if len(f.replier.replies) != len(want) {
		t.Fatalf("replies = %d, want %d", len(f.replier.replies), len(want))
	}
	for i, w := range want {
		r := f.replier.replies[i]
		if len(r.messages) != 1 {
			t.Fatalf("reply %d has %d messages, sticker should be disabled", i, len(r.messages))
		}
		if got := replyText(t, r); got != w {
			t.Fatalf("reply %d = %q, want %q", i, got, w)
		}
	}
}

func TestStickerIsEchoed(t *testing.T) {
	f := newFixture(t, defaultReply())
	f.send(t, stickerEvent("U1", "rt", "446", "1988"))

	last := f.replier.last(t)
	if len(last.messages) != 1 {
		t.Fatalf("messages = %d, want 1", len(last.messages))
	}
	st, ok := last.messages[0].(messaging_api.StickerMessage)
	if !ok || st.PackageId != "446" || st.StickerId != "1988" {
		t.Fatalf("echoed sticker = %#v", last.messages[0])
	}
	if n, _ := f.store.Count(context.Background()); n != 0 {
		t.Fatalf("sticker must not create a record, got %d", n)
	}
}

func TestFollowLooksUpProfileOnly(t *testing.T) {
	f := newFixture(t, defaultReply())
	f.send(t, followEvent("U1", "rt"))

	if f.profiles.calls != 1 {
		t.Fatalf("profile calls = %d, want 1", f.profiles.calls)
	}
	if len(f.replier.replies) != 0 {
		t.Fatalf("follow must not reply, got %d", len(f.replier.replies))
	}
	if n, _ := f.store.Count(context.Background()); n != 0 {
		t.Fatalf("follow must not create a record, got %d", n)
	}
}

func TestUnknownEventIsIgnored(t *testing.T) {
	f := newFixture(t, defaultReply())
	f.send(t, envelopeJSON("unfollow", "U1", ""))
	if len(f.replier.replies) != 0 || f.profiles.calls != 0 {
		t.Fatalf("unfollow must be ignored: replies=%d profiles=%d", len(f.replier.replies), f.profiles.calls)
	}
}

func TestStorageFailureStillAcknowledges(t *testing.T) {
	replier := &fakeReplier{}
	d, err := NewDispatcher(Options{
		Store:    failingStore{err: errors.New("connection refused")},
		Profiles: &fakeProfiles{names: map[string]string{"U1": "Alice"}},
		Replier:  replier,
	})
	if err != nil {
		t.Fatalf("new dispatcher: %v", err)
	}
	f := &fixture{handler: NewHandler(testSecret, d), replier: replier}
	f.send(t, textEvent("U1", "rt", "Hi"))
	if len(replier.replies) != 0 {
		t.Fatalf("no reply expected after storage failure, got %d", len(replier.replies))
	}
}

func TestReplyFailureKeepsCommittedState(t *testing.T) {
	f := newFixture(t, defaultReply())
	f.replier.err = errors.New("invalid reply token")

	f.send(t, textEvent("U1", "rt", "悄悄話"))
	rec, err := f.store.Find(context.Background(), "U1")
	if err != nil || !rec.Armed {
		t.Fatalf("state must be committed before reply: %+v, %v", rec, err)
	}
}

func TestProfileFailureAbortsTextEvent(t *testing.T) {
	f := newFixture(t, defaultReply())
	f.profiles.err = errors.New("profile unavailable")

	f.send(t, textEvent("U1", "rt", "Hi"))
	if len(f.replier.replies) != 0 {
		t.Fatalf("no reply expected, got %d", len(f.replier.replies))
	}
	if n, _ := f.store.Count(context.Background()); n != 0 {
		t.Fatalf("no record expected, got %d", n)
	}
}

func TestPanicIsRecovered(t *testing.T) {
	f := newFixture(t, defaultReply())
	f.replier.panics = true
	f.send(t, textEvent("U1", "rt", "Hi"))
}
