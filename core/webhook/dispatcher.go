package webhook

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"time"

	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"

	coreconfig "github.com/m3rciful/secretbot/core/config"
	"github.com/m3rciful/secretbot/core/conversation"
	"github.com/m3rciful/secretbot/core/line"
	"github.com/m3rciful/secretbot/core/logger"
	"github.com/m3rciful/secretbot/core/users"
)

// ErrNoUser is returned for events whose source carries no user id.
var ErrNoUser = errors.New("webhook: event has no user id")

// Profiles resolves LINE display names.
type Profiles interface {
	DisplayName(ctx context.Context, userID string) (string, error)
}

// Replier sends reply messages bound to a reply token.
type Replier interface {
	Reply(ctx context.Context, replyToken string, messages ...messaging_api.MessageInterface) error
}

// Options wires the dispatcher to its collaborators.
type Options struct {
	Store    users.Store
	Profiles Profiles
	Replier  Replier
	Reply    coreconfig.ReplyConfig
}

// Dispatcher handles decoded events one at a time.
type Dispatcher struct {
	store    users.Store
	profiles Profiles
	replier  Replier
	sticker  messaging_api.MessageInterface
	locks    *userLocks
}

// NewDispatcher validates opts and returns a Dispatcher.
func NewDispatcher(opts Options) (*Dispatcher, error) {
	switch {
	case opts.Store == nil:
		return nil, fmt.Errorf("webhook: nil user store")
	case opts.Profiles == nil:
		return nil, fmt.Errorf("webhook: nil profile lookup")
	case opts.Replier == nil:
		return nil, fmt.Errorf("webhook: nil replier")
	}
	d := &Dispatcher{
		store:    opts.Store,
		profiles: opts.Profiles,
		replier:  opts.Replier,
		locks:    newUserLocks(),
	}
	pkg := strings.TrimSpace(opts.Reply.StickerPackageID)
	id := strings.TrimSpace(opts.Reply.StickerID)
	if !opts.Reply.DisableSticker && pkg != "" && id != "" {
		d.sticker = line.Sticker(pkg, id)
	}
	return d, nil
}

// Dispatch handles ev and logs a summary line. Panics are recovered and reported as errors.
func (d *Dispatcher) Dispatch(ctx context.Context, ev Event) (err error) {
	start := time.Now()
	meta := MetaOf(ev)
	ctx = logger.WithEventMeta(ctx, meta.ID, meta.Type, meta.UserID)
	rep := &countingReplier{Replier: d.replier}

	var (
		handler string
		extras  []slog.Attr
		skipped bool
	)
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("webhook: panic in %s: %v", handler, r)
			logger.LogEvent(ctx, logger.HTTP, slog.LevelError, "handler.panic",
				slog.String("status", "error"),
				slog.String("handler", handler),
				slog.String("outcome", "panic"),
				slog.Any("err", r),
				slog.String("stack", string(debug.Stack())),
			)
			return
		}
		if meta.Redelivery {
			extras = append(extras, slog.Bool("redelivery", true))
		}
		logSummary(ctx, handler, start, rep.sent, skipped, err, extras...)
	}()

	switch e := ev.(type) {
	case TextMessage:
		handler = "text"
		ctx = logger.WithHandler(ctx, handler)
		extras, err = d.handleText(ctx, rep, e)
	case StickerMessage:
		handler = "sticker"
		ctx = logger.WithHandler(ctx, handler)
		err = d.handleSticker(ctx, rep, e)
	case Follow:
		handler = "follow"
		ctx = logger.WithHandler(ctx, handler)
		err = d.handleFollow(ctx, e)
	default:
		handler = "ignored"
		skipped = true
	}
	return err
}

func (d *Dispatcher) handleText(ctx context.Context, rep Replier, ev TextMessage) ([]slog.Attr, error) {
	if ev.UserID == "" {
		return nil, ErrNoUser
	}
	unlock := d.locks.lock(ev.UserID)
	defer unlock()

	name, err := d.profiles.DisplayName(ctx, ev.UserID)
	if err != nil {
		return nil, fmt.Errorf("profile lookup: %w", err)
	}
	rec, err := d.store.EnsureUser(ctx, ev.UserID, name)
	if err != nil {
		return nil, fmt.Errorf("ensure user: %w", err)
	}

	dec := conversation.Decide(rec, ev.Text)
	extras := []slog.Attr{
		slog.String("rule", string(dec.Rule)),
		slog.String("state", string(conversation.StateOf(rec))),
		slog.String("next_state", string(conversation.StateOf(dec.Record))),
	}
	logger.LogEvent(ctx, logger.Conv, slog.LevelDebug, "conversation.decided", extras...)

	if dec.Changed {
		if err := d.store.Commit(ctx, dec.Record); err != nil {
			return extras, fmt.Errorf("commit user: %w", err)
		}
	}

	messages := []messaging_api.MessageInterface{line.Text(dec.Reply)}
	if d.sticker != nil {
		messages = append(messages, d.sticker)
	}
	if err := rep.Reply(ctx, ev.ReplyToken, messages...); err != nil {
		return extras, err
	}
	return extras, nil
}

func (d *Dispatcher) handleSticker(ctx context.Context, rep Replier, ev StickerMessage) error {
	return rep.Reply(ctx, ev.ReplyToken, line.Sticker(ev.PackageID, ev.StickerID))
}

func (d *Dispatcher) handleFollow(ctx context.Context, ev Follow) error {
	if ev.UserID == "" {
		return ErrNoUser
	}
	name, err := d.profiles.DisplayName(ctx, ev.UserID)
	if err != nil {
		return fmt.Errorf("profile lookup: %w", err)
	}
	logger.LogEvent(ctx, logger.HTTP, slog.LevelInfo, "line.follow",
		slog.String("status", "ok"),
		slog.String("display_name", logger.SanitizeLimit(name, 64)),
	)
	return nil
}

// countingReplier records how many messages were delivered.
type countingReplier struct {
	Replier
	sent int
}

func (c *countingReplier) Reply(ctx context.Context, replyToken string, messages ...messaging_api.MessageInterface) error {
	if err := c.Replier.Reply(ctx, replyToken, messages...); err != nil {
		return err
	}
	c.sent += len(messages)
	return nil
}

func logSummary(ctx context.Context, handler string, start time.Time, sent int, skipped bool, err error, extras ...slog.Attr) {
	status, outcome := "ok", "ok"
	switch {
	case err != nil:
		status, outcome = "fail", "fail"
	case skipped:
		status, outcome = "skip", "ignored"
	}
	attrs := []slog.Attr{
		slog.String("status", status),
		slog.String("handler", handler),
		slog.String("outcome", outcome),
		slog.Int("messages", sent),
		slog.Duration("duration", logger.Took(start)),
	}
	if err != nil {
		attrs = append(attrs, slog.String("err", logger.SanitizeLimit(err.Error(), 256)))
	}
	attrs = append(attrs, extras...)

	level := slog.LevelInfo
	if err != nil {
		level = slog.LevelError
	}
	logger.LogEvent(ctx, logger.HTTP, level, "handler.handled", attrs...)
}
