package logger

import "strings"

const (
	// LevelDebug represents the debug severity level name.
	LevelDebug = "DEBUG"
	// LevelInfo represents the info severity level name.
	LevelInfo = "INFO"
	// LevelWarn represents the warning severity level name.
	LevelWarn = "WARN"
	// LevelError represents the error severity level name.
	LevelError = "ERROR"
)

var allowedLevels = map[string]string{
	"debug":   LevelDebug,
	"info":    LevelInfo,
	"warn":    LevelWarn,
	"warning": LevelWarn,
	"error":   LevelError,
}

// Status values shared by handler summaries.
var allowedStatus = map[string]struct{}{
	"ok":    {},
	"fail":  {},
	"skip":  {},
	"error": {},
}

var allowedOutcome = map[string]struct{}{
	"ok":      {},
	"fail":    {},
	"ignored": {},
	"panic":   {},
}

func normalizeLevel(level string) string {
	if level == "" {
		return LevelInfo
	}
	if mapped, ok := allowedLevels[strings.ToLower(level)]; ok {
		return mapped
	}
	return strings.ToUpper(level)
}

// normalizeStatus lowercases known statuses and passes unknown ones through untouched.
func normalizeStatus(status string) string {
	lowered := strings.ToLower(strings.TrimSpace(status))
	if _, ok := allowedStatus[lowered]; ok {
		return lowered
	}
	return status
}

func normalizeOutcome(outcome string) (string, bool) {
	outcome = strings.ToLower(strings.TrimSpace(outcome))
	if _, ok := allowedOutcome[outcome]; ok {
		return outcome, true
	}
	return "", false
}

var defaultKeyOrder = []string{
	"ts",
	"level",
	"component",
	"event",
	"status",
	"rid",
	"rid_full",
	"trace_id",
	"span_id",
	"ts_unix_nano",
	"webhook_event_id",
	"event_type",
	"user_id",
	"handler",
	"state",
	"next_state",
	"rule",
	"outcome",
	"duration_ms",
	"messages",
	"events",
	"count",
	"created",
	"method",
	"path",
	"http_code",
	"remote",
	"mode",
	"listen",
	"db",
	"host",
	"port",
	"err",
	"err_code",
	"error_kind",
	"cause",
}
