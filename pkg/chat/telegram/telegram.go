// Package telegram connects the chat bot to the Telegram Bot API.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"formpilot/pkg/chat"
	"formpilot/pkg/config"
	"formpilot/pkg/logx"
)

// MaxMessageLength is the longest text Telegram accepts in one message.
const MaxMessageLength = 4096

// API is the part of *tgbotapi.BotAPI the transport uses.
type API interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Open authenticates with the Bot API.
func Open(cfg config.TelegramConfig) (*tgbotapi.BotAPI, error) {
	if cfg.Token == "" {
		return nil, errors.New("telegram token is not set")
	}
	api, err := tgbotapi.NewBotAPI(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to telegram: %w", err)
	}
	api.Debug = cfg.Debug
	return api, nil
}

// Transport implements chat.Transport over the Bot API.
type Transport struct {
	api    API
	logger *logx.Logger
}

func NewTransport(api API) *Transport {
	return &Transport{api: api, logger: logx.NewLogger("telegram")}
}

// Send posts p to chatID. Long texts are split; the buttons go with the last part.
func (t *Transport) Send(ctx context.Context, chatID int64, p chat.Prompt) error {
	parts := splitText(p.Text, MaxMessageLength)
	for i, part := range parts {
		if err := ctx.Err(); err != nil {
			return err
		}
		msg := tgbotapi.NewMessage(chatID, part)
		if i == len(parts)-1 && len(p.Buttons) > 0 {
			msg.ReplyMarkup = Keyboard(p.Buttons)
		}
		if _, err := t.api.Send(msg); err != nil {
			return fmt.Errorf("failed to send message to chat %d: %w", chatID, err)
		}
	}
	return nil
}

// Ack answers a callback query so the client stops its spinner. text, if set, shows as a toast.
func (t *Transport) Ack(ctx context.Context, callbackID, text string) error {
	if callbackID == "" {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := t.api.Request(tgbotapi.NewCallback(callbackID, text)); err != nil {
		return fmt.Errorf("failed to answer callback %s: %w", callbackID, err)
	}
	return nil
}

// Keyboard converts prompt buttons to an inline keyboard.
func Keyboard(rows [][]chat.Button) tgbotapi.InlineKeyboardMarkup {
	out := make([][]tgbotapi.InlineKeyboardButton, 0, len(rows))
	for _, row := range rows {
		if len(row) == 0 {
			continue
		}
		buttons := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
		for _, b := range row {
			buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(b.Label, b.Data))
		}
		out = append(out, tgbotapi.NewInlineKeyboardRow(buttons...))
	}
	return tgbotapi.NewInlineKeyboardMarkup(out...)
}

// splitText cuts text into chunks of at most limit runes, preferring line breaks.
func splitText(text string, limit int) []string {
	if utf8.RuneCountInString(text) <= limit {
		return []string{text}
	}
	var parts []string
	runes := []rune(text)
	for len(runes) > limit {
		cut := limit
		for i := limit; i > limit/2; i-- {
			if runes[i-1] == '\n' {
				cut = i
				break
			}
		}
		parts = append(parts, string(runes[:cut]))
		runes = runes[cut:]
	}
	if len(runes) > 0 {
		parts = append(parts, string(runes))
	}
	return parts
}
