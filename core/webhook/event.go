// Package webhook verifies LINE webhook deliveries and dispatches their events.
package webhook

import (
	"fmt"
	"strings"

	"github.com/line/line-bot-sdk-go/v8/linebot/webhook"
)

// Event types as logged in event_type.
const (
	TypeFollow  = "follow"
	TypeText    = "message.text"
	TypeSticker = "message.sticker"
)

// Meta carries the envelope fields shared by every event.
type Meta struct {
	ID         string
	Type       string
	UserID     string
	ReplyToken string
	Redelivery bool
}

func (m Meta) meta() Meta { return m }

// Event is one of Follow, TextMessage, StickerMessage or Other.
type Event interface {
	meta() Meta
}

// Follow is sent when a user adds the bot as a friend or unblocks it.
type Follow struct{ Meta }

// TextMessage is a text message from a user.
type TextMessage struct {
	Meta
	Text string
}

// StickerMessage is a sticker sent by a user.
type StickerMessage struct {
	Meta
	PackageID string
	StickerID string
}

// Other is any event the bot does not act on.
type Other struct{ Meta }

// MetaOf returns the envelope of ev.
func MetaOf(ev Event) Meta {
	if ev == nil {
		return Meta{}
	}
	return ev.meta()
}

// Decode converts the SDK callback payload into events, preserving order.
func Decode(cb *webhook.CallbackRequest) []Event {
	if cb == nil {
		return nil
	}
	events := make([]Event, 0, len(cb.Events))
	for _, raw := range cb.Events {
		events = append(events, decodeEvent(raw))
	}
	return events
}

func decodeEvent(raw webhook.EventInterface) Event {
	switch e := raw.(type) {
	case webhook.MessageEvent:
		return decodeMessage(e)
	case *webhook.MessageEvent:
		if e != nil {
			return decodeMessage(*e)
		}
	case webhook.FollowEvent:
		return Follow{Meta: envelope(TypeFollow, e.WebhookEventId, e.Source, e.ReplyToken, e.DeliveryContext)}
	case *webhook.FollowEvent:
		if e != nil {
			return Follow{Meta: envelope(TypeFollow, e.WebhookEventId, e.Source, e.ReplyToken, e.DeliveryContext)}
		}
	}
	return Other{Meta: Meta{Type: typeName(raw)}}
}

func decodeMessage(e webhook.MessageEvent) Event {
	switch m := e.Message.(type) {
	case webhook.TextMessageContent:
		return TextMessage{Meta: envelope(TypeText, e.WebhookEventId, e.Source, e.ReplyToken, e.DeliveryContext), Text: m.Text}
	case *webhook.TextMessageContent:
		if m != nil {
			return TextMessage{Meta: envelope(TypeText, e.WebhookEventId, e.Source, e.ReplyToken, e.DeliveryContext), Text: m.Text}
		}
	case webhook.StickerMessageContent:
		return StickerMessage{
			Meta:      envelope(TypeSticker, e.WebhookEventId, e.Source, e.ReplyToken, e.DeliveryContext),
			PackageID: m.PackageId,
			StickerID: m.StickerId,
		}
	case *webhook.StickerMessageContent:
		if m != nil {
			return StickerMessage{
				Meta:      envelope(TypeSticker, e.WebhookEventId, e.Source, e.ReplyToken, e.DeliveryContext),
				PackageID: m.PackageId,
				StickerID: m.StickerId,
			}
		}
	}
	meta := envelope("message."+typeName(e.Message), e.WebhookEventId, e.Source, e.ReplyToken, e.DeliveryContext)
	return Other{Meta: meta}
}

func envelope(typ, id string, src webhook.SourceInterface, replyToken string, dc *webhook.DeliveryContext) Meta {
	m := Meta{
		ID:         id,
		Type:       typ,
		UserID:     sourceUserID(src),
		ReplyToken: replyToken,
	}
	if dc != nil {
		m.Redelivery = dc.IsRedelivery
	}
	return m
}

// sourceUserID returns the sending user; group and room sources may omit it.
func sourceUserID(src webhook.SourceInterface) string {
	switch s := src.(type) {
	case webhook.UserSource:
		return s.UserId
	case *webhook.UserSource:
		if s != nil {
			return s.UserId
		}
	case webhook.GroupSource:
		return s.UserId
	case *webhook.GroupSource:
		if s != nil {
			return s.UserId
		}
	case webhook.RoomSource:
		return s.UserId
	case *webhook.RoomSource:
		if s != nil {
			return s.UserId
		}
	}
	return ""
}

// typeName turns an SDK type such as webhook.UnfollowEvent into "unfollow".
func typeName(v any) string {
	if v == nil {
		return "unknown"
	}
	name := fmt.Sprintf("%T", v)
	if i := strings.LastIndex(name, "."); i >= 0 {
		name = name[i+1:]
	}
	for _, suffix := range []string{"Event", "MessageContent"} {
		name = strings.TrimSuffix(name, suffix)
	}
	if name == "" {
		return "unknown"
	}
	return strings.ToLower(name)
}
