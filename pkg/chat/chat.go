// Package chat turns chat updates into traversal steps and renders the results back as prompts.
package chat

import (
	"context"
	"strings"
)

// Update is one inbound event from the chat transport.
type Update struct {
	ID     int
	UserID int64
	ChatID int64
	// Command is set for "/cmd args" messages, lowercased and without the slash or bot suffix.
	Command string
	Args    string
	Text    string
	// Callback is set when the user pressed a prompt button.
	Callback *Callback
}

// Callback is a button press. Data is the scoped token issued with the prompt.
type Callback struct {
	ID   string
	Data string
}

// Kind names the update category for logs and metrics.
func (u Update) Kind() string {
	switch {
	case u.Callback != nil:
		return "callback"
	case u.Command != "":
		return "command"
	default:
		return "text"
	}
}

// Button is one inline option of a prompt.
type Button struct {
	Label string
	Data  string
}

// Prompt is an outbound message with optional rows of buttons.
type Prompt struct {
	Text    string
	Buttons [][]Button
}

// Transport delivers prompts to a chat and acknowledges button presses.
type Transport interface {
	Send(ctx context.Context, chatID int64, p Prompt) error
	Ack(ctx context.Context, callbackID, text string) error
}

// ParseCommand splits "/cmd@bot args" into its command and arguments.
func ParseCommand(text string) (cmd, args string, ok bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") || len(text) < 2 {
		return "", "", false
	}
	head, rest, _ := strings.Cut(text[1:], " ")
	head, _, _ = strings.Cut(head, "@")
	if head == "" {
		return "", "", false
	}
	return strings.ToLower(head), strings.TrimSpace(rest), true
}

// NewTextUpdate builds an update from a plain message, detecting commands.
func NewTextUpdate(id int, userID, chatID int64, text string) Update {
	u := Update{ID: id, UserID: userID, ChatID: chatID, Text: text}
	if cmd, args, ok := ParseCommand(text); ok {
		u.Command, u.Args = cmd, args
	}
	return u
}
