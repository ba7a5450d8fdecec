// Package chatmock provides a recording chat.Transport. It lives apart from package mocks
// because pkg/chat depends on the packages that mocks is used to test.
package chatmock

import (
	"context"
	"strconv"
	"strings"
	"sync"

	"formpilot/pkg/chat"
)

// SentPrompt records one Send call.
type SentPrompt struct {
	ChatID int64
	Prompt chat.Prompt
}

// AckCall records one Ack call.
type AckCall struct {
	CallbackID string
	Text       string
}

// Transport provides a recording implementation of chat.Transport.
// SendFunc and AckFunc can be overridden to inject failures.
type Transport struct {
	// SendFunc is called when Send is invoked. Override to customize behavior.
	SendFunc func(ctx context.Context, chatID int64, p chat.Prompt) error
	// AckFunc is called when Ack is invoked. Override to customize behavior.
	AckFunc func(ctx context.Context, callbackID, text string) error

	mu     sync.Mutex
	sent   []SentPrompt
	acks   []AckCall
	nextCB int
}

// NewTransport creates a transport whose Send and Ack succeed.
func NewTransport() *Transport {
	return &Transport{
		SendFunc: func(context.Context, int64, chat.Prompt) error { return nil },
		AckFunc:  func(context.Context, string, string) error { return nil },
	}
}

// Send records the call and invokes the configured SendFunc.
func (m *Transport) Send(ctx context.Context, chatID int64, p chat.Prompt) error {
	m.mu.Lock()
	m.sent = append(m.sent, SentPrompt{ChatID: chatID, Prompt: p})
	m.mu.Unlock()
	return m.SendFunc(ctx, chatID, p)
}

// Ack records the call and invokes the configured AckFunc.
func (m *Transport) Ack(ctx context.Context, callbackID, text string) error {
	m.mu.Lock()
	m.acks = append(m.acks, AckCall{CallbackID: callbackID, Text: text})
	m.mu.Unlock()
	return m.AckFunc(ctx, callbackID, text)
}

// FailSendWith configures Send to return the specified error.
func (m *Transport) FailSendWith(err error) {
	m.SendFunc = func(context.Context, int64, chat.Prompt) error { return err }
}

// Sent returns every recorded prompt.
func (m *Transport) Sent() []SentPrompt {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]SentPrompt(nil), m.sent...)
}

// Texts returns the text of every recorded prompt.
func (m *Transport) Texts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.sent))
	for i, s := range m.sent {
		out[i] = s.Prompt.Text
	}
	return out
}

// Last returns the most recent prompt, or the zero prompt if none.
func (m *Transport) Last() chat.Prompt {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		return chat.Prompt{}
	}
	return m.sent[len(m.sent)-1].Prompt
}

// Acks returns every recorded callback acknowledgement.
func (m *Transport) Acks() []AckCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]AckCall(nil), m.acks...)
}

// Reset clears all recorded calls.
func (m *Transport) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = nil
	m.acks = nil
}

// SentContaining reports whether any prompt text contains substr.
func (m *Transport) SentContaining(substr string) bool {
	for _, text := range m.Texts() {
		if strings.Contains(text, substr) {
			return true
		}
	}
	return false
}

// Press builds the callback update for the button of the last prompt whose label contains label.
// ok is false when no such button exists.
func (m *Transport) Press(userID, chatID int64, label string) (chat.Update, bool) {
	last := m.Last()
	for _, row := range last.Buttons {
		for _, b := range row {
			if strings.Contains(b.Label, label) {
				m.mu.Lock()
				m.nextCB++
				id := m.nextCB
				m.mu.Unlock()
				return chat.Update{
					UserID:   userID,
					ChatID:   chatID,
					Callback: &chat.Callback{ID: "cb-" + strconv.Itoa(id), Data: b.Data},
				}, true
			}
		}
	}
	return chat.Update{}, false
}
