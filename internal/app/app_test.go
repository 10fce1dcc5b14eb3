package app

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/secretbot/core/bootstrap"
	coreconfig "github.com/m3rciful/secretbot/core/config"
	coredatabase "github.com/m3rciful/secretbot/core/database"
	"github.com/m3rciful/secretbot/core/line"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfigMergesYAMLAndEnv(t *testing.T) {
	path := writeConfig(t, `
line:
  channel_token: yaml-token
server:
  port: 8080
database:
  driver: memory
reply:
  disable_sticker: true
`)
	t.Setenv("LINE_SECRET", "env-secret")
	t.Setenv("LINE_ACC_TOKEN", "")
	require.NoError(t, os.Unsetenv("LINE_ACC_TOKEN"))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "yaml-token", cfg.Line.ChannelToken)
	assert.Equal(t, "env-secret", cfg.Line.ChannelSecret)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, coredatabase.DriverMemory, cfg.Database.Driver)
	assert.True(t, cfg.Reply.DisableSticker)
	assert.Empty(t, cfg.Reply.StickerID)
	assert.Same(t, &cfg.Config, cfg.CoreConfig())
}

func TestLoadConfigRewritesDatabaseURL(t *testing.T) {
	t.Setenv("LINE_ACC_TOKEN", "token")
	t.Setenv("LINE_SECRET", "secret")
	t.Setenv("DATABASE_URL", "postgres://u:p@db.example.com:5432/bot")

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "postgresql://u:p@db.example.com:5432/bot", cfg.Database.URL)
	assert.Equal(t, coredatabase.DriverPostgres, cfg.Database.Driver)
}

func TestLoadConfigRequiresLineSecrets(t *testing.T) {
	t.Setenv("LINE_ACC_TOKEN", "")
	t.Setenv("LINE_SECRET", "")
	path := writeConfig(t, "database:\n  driver: memory\n")

	_, err := LoadConfig(path)
	require.Error(t, err)
}

func TestLoadDatabaseConfigIgnoresLineSecrets(t *testing.T) {
	t.Setenv("LINE_ACC_TOKEN", "")
	t.Setenv("LINE_SECRET", "")
	t.Setenv("DATABASE_URL", "postgresql://localhost/bot")

	cfg, err := LoadDatabaseConfig("")
	require.NoError(t, err)
	assert.Equal(t, "postgresql://localhost/bot", cfg.Database.DSN())
}

func TestLoadDatabaseConfigRejectsMemory(t *testing.T) {
	path := writeConfig(t, "database:\n  driver: memory\n")
	_, err := LoadDatabaseConfig(path)
	require.Error(t, err)
}

func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// TestRouterEndToEnd drives the wired router against a fake Messaging API.
func TestRouterEndToEnd(t *testing.T) {
	var replies []string
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasPrefix(r.URL.Path, "/v2/bot/profile/"):
			_, _ = io.WriteString(w, `{"displayName":"Alice","userId":"U1"}`)
		case r.URL.Path == "/v2/bot/message/reply":
			data, _ := io.ReadAll(r.Body)
			replies = append(replies, string(data))
			_, _ = io.WriteString(w, `{"sentMessages":[]}`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer api.Close()

	cfg := &Config{
		Config: coreconfig.Config{
			Line:  coreconfig.LineConfig{ChannelToken: "token", ChannelSecret: "secret", APIEndpoint: api.URL},
			Reply: coreconfig.ReplyConfig{StickerPackageID: "3", StickerID: "233"},
		},
		Database: coredatabase.Config{Driver: coredatabase.DriverMemory},
	}
	infra, err := bootstrap.Run(context.Background(), bootstrap.Options{
		Config:     &cfg.Config,
		Database:   cfg.Database,
		LoggerInit: func(*coreconfig.Config) error { return nil },
	})
	require.NoError(t, err)
	client, err := line.NewClient(cfg.Line, api.Client())
	require.NoError(t, err)

	a := &App{cfg: cfg, infra: infra, line: client}
	router, err := a.Router()
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Welcome to Line Bot!", rec.Body.String())

	body := []byte(`{"destination":"Ubot","events":[{"type":"message","mode":"active","timestamp":1,` +
		`"source":{"type":"user","userId":"U1"},"webhookEventId":"ev1","deliveryContext":{"isRedelivery":false},` +
		`"replyToken":"rt1","message":{"id":"1","type":"text","quoteToken":"q","text":"Hi"}}]}`)
	req := httptest.NewRequest(http.MethodPost, "/callback", strings.NewReader(string(body)))
	req.Header.Set("X-Line-Signature", sign("secret", body))
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
	require.Len(t, replies, 1)
	assert.Contains(t, replies[0], `"replyToken":"rt1"`)
	assert.Contains(t, replies[0], "Hi Alice!")
	assert.Contains(t, replies[0], `"233"`)
}
