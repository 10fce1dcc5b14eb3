// Package conversation decides the reply and the next armed state for one text message.
// It performs no I/O; callers persist Decision.Record before sending Decision.Reply.
package conversation

import (
	"fmt"
	"strings"

	"github.com/m3rciful/secretbot/core/users"
)

// State identifies the step of the secret capture conversation.
type State string

const (
	// StateIdle means no capture is pending.
	StateIdle State = "idle"
	// StateArmed means the next text message is stored as the secret.
	StateArmed State = "armed"
)

// Rule names which transition produced a Decision.
type Rule string

const (
	RuleGreeting Rule = "greeting"
	RuleReveal   Rule = "reveal"
	RuleArm      Rule = "arm"
	RuleCapture  Rule = "capture"
	RuleEcho     Rule = "echo"
)

const (
	// Trigger starts a capture or reveals the stored secret when contained in a message.
	Trigger = "悄悄話"

	PromptReply  = "放膽說出心裡的話吧～"
	ConfirmReply = "我會好好保護這個祕密～"
	revealFormat = "你的悄悄話是：\n\n%s"
)

// Greetings must match the whole message.
var Greetings = []string{"Hi", "你好"}

// Decision is the outcome of evaluating one message.
type Decision struct {
	Rule   Rule
	Reply  string
	Record users.Record
	// Changed reports that Record differs from the input and must be committed.
	Changed bool
}

// StateOf maps a record onto its conversation state.
func StateOf(rec users.Record) State {
	if rec.Armed {
		return StateArmed
	}
	return StateIdle
}

// Decide applies the transition rules in order: greeting, trigger, capture, echo.
func Decide(rec users.Record, text string) Decision {
	if isGreeting(text) {
		return Decision{Rule: RuleGreeting, Reply: fmt.Sprintf("%s %s!", text, rec.Name), Record: rec}
	}

	if strings.Contains(text, Trigger) {
		if rec.SecretText != "" {
			return Decision{Rule: RuleReveal, Reply: fmt.Sprintf(revealFormat, rec.SecretText), Record: rec}
		}
		next := rec
		next.Armed = true
		return Decision{Rule: RuleArm, Reply: PromptReply, Record: next, Changed: !rec.Armed}
	}

	if rec.Armed {
		next := rec
		next.SecretText = text
		next.Armed = false
		return Decision{Rule: RuleCapture, Reply: ConfirmReply, Record: next, Changed: true}
	}

	return Decision{Rule: RuleEcho, Reply: text, Record: rec}
}

func isGreeting(text string) bool {
	for _, g := range Greetings {
		if text == g {
			return true
		}
	}
	return false
}
