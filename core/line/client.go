// Package line wraps the LINE Messaging API calls the bot makes: profile lookup and reply.
package line

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"

	coreconfig "github.com/m3rciful/secretbot/core/config"
	"github.com/m3rciful/secretbot/core/logger"
)

// Client issues Messaging API calls with the channel access token.
type Client struct {
	token string
	opts  []messaging_api.MessagingApiAPIOption
}

// NewClient validates cfg and returns a Client sending through httpClient.
// A nil httpClient selects BuildHTTPClient.
func NewClient(cfg coreconfig.LineConfig, httpClient *http.Client) (*Client, error) {
	if strings.TrimSpace(cfg.ChannelToken) == "" {
		return nil, errors.New("line: empty channel access token")
	}
	if httpClient == nil {
		httpClient = BuildHTTPClient()
	}
	opts := []messaging_api.MessagingApiAPIOption{messaging_api.WithHTTPClient(httpClient)}
	if endpoint := strings.TrimSpace(cfg.APIEndpoint); endpoint != "" {
		opts = append(opts, messaging_api.WithEndpoint(endpoint))
	}
	c := &Client{token: cfg.ChannelToken, opts: opts}
	if _, err := c.api(context.Background()); err != nil {
		return nil, err
	}
	return c, nil
}

// api builds a per-call API handle; the SDK stores the context on the handle itself.
func (c *Client) api(ctx context.Context) (*messaging_api.MessagingApiAPI, error) {
	api, err := messaging_api.NewMessagingApiAPI(c.token, c.opts...)
	if err != nil {
		return nil, fmt.Errorf("line: build messaging api: %w", err)
	}
	return api.WithContext(ctx), nil
}

// DisplayName looks up the profile of userID and returns its display name.
func (c *Client) DisplayName(ctx context.Context, userID string) (string, error) {
	start := time.Now()
	api, err := c.api(ctx)
	if err != nil {
		return "", err
	}
	profile, err := api.GetProfile(userID)
	if err != nil {
		c.logFailure(ctx, "get_profile", err, start, 0)
		return "", fmt.Errorf("line: get profile: %w", err)
	}
	logger.LogEvent(ctx, logger.LINE, slog.LevelDebug, "api.get_profile",
		slog.String("status", "ok"),
		slog.Duration("duration", logger.Took(start)),
	)
	return profile.DisplayName, nil
}

// Reply sends messages, in order, as one reply bound to replyToken.
func (c *Client) Reply(ctx context.Context, replyToken string, messages ...messaging_api.MessageInterface) error {
	if len(messages) == 0 {
		return nil
	}
	start := time.Now()
	api, err := c.api(ctx)
	if err != nil {
		return err
	}
	_, err = api.ReplyMessage(&messaging_api.ReplyMessageRequest{
		ReplyToken: replyToken,
		Messages:   messages,
	})
	if err != nil {
		c.logFailure(ctx, "reply", err, start, len(messages))
		return fmt.Errorf("line: reply: %w", err)
	}
	logger.LogEvent(ctx, logger.LINE, slog.LevelDebug, "api.reply",
		slog.String("status", "ok"),
		slog.Int("messages", len(messages)),
		slog.Duration("duration", logger.Took(start)),
	)
	return nil
}

func (c *Client) logFailure(ctx context.Context, op string, err error, start time.Time, messages int) {
	attrs := []slog.Attr{
		slog.String("status", "fail"),
		slog.String("err", logger.SanitizeLimit(sanitizeErrorMessage(err, c.token), 512)),
		slog.String("error_kind", classifyError(err)),
		slog.Duration("duration", logger.Took(start)),
	}
	if code := httpStatusFromError(err); code != 0 {
		attrs = append(attrs, slog.Int("http_code", code))
	}
	if messages > 0 {
		attrs = append(attrs, slog.Int("messages", messages))
	}
	logger.LogEvent(ctx, logger.LINE, slog.LevelError, "api."+op, attrs...)
}

// Text builds a plain text payload.
func Text(text string) messaging_api.MessageInterface {
	return messaging_api.TextMessage{Text: text}
}

// Sticker builds a sticker payload.
func Sticker(packageID, stickerID string) messaging_api.MessageInterface {
	return messaging_api.StickerMessage{PackageId: packageID, StickerId: stickerID}
}
