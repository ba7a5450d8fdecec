package telegram

import (
	"context"
	"errors"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"formpilot/pkg/chat"
	"formpilot/pkg/logx"
)

// Dispatcher receives converted updates.
type Dispatcher interface {
	Dispatch(u chat.Update) error
}

// UpdateSource is the long-polling part of *tgbotapi.BotAPI.
type UpdateSource interface {
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Poller feeds Telegram updates into a Dispatcher.
type Poller struct {
	source  UpdateSource
	timeout int
	logger  *logx.Logger
}

// NewPoller long-polls source with the given timeout in seconds.
func NewPoller(source UpdateSource, timeout int) *Poller {
	return &Poller{source: source, timeout: timeout, logger: logx.NewLogger("telegram")}
}

// Run dispatches updates until ctx is done or the update channel closes.
func (p *Poller) Run(ctx context.Context, d Dispatcher) error {
	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = p.timeout
	updates := p.source.GetUpdatesChan(cfg)
	defer p.source.StopReceivingUpdates()

	p.logger.Info("Polling for updates")
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("Stopped polling")
			return nil
		case raw, ok := <-updates:
			if !ok {
				return nil
			}
			u, ok := Convert(raw)
			if !ok {
				continue
			}
			if err := d.Dispatch(u); err != nil {
				if errors.Is(err, chat.ErrNotRunning) {
					return nil
				}
				p.logger.Warn("dropped update %d: %v", u.ID, err)
			}
		}
	}
}

// Convert maps a Bot API update to a chat.Update. Updates without a sender or chat are ignored.
func Convert(raw tgbotapi.Update) (chat.Update, bool) {
	switch {
	case raw.CallbackQuery != nil:
		q := raw.CallbackQuery
		if q.From == nil {
			return chat.Update{}, false
		}
		chatID := q.From.ID
		if q.Message != nil && q.Message.Chat != nil {
			chatID = q.Message.Chat.ID
		}
		return chat.Update{
			ID:       raw.UpdateID,
			UserID:   q.From.ID,
			ChatID:   chatID,
			Callback: &chat.Callback{ID: q.ID, Data: q.Data},
		}, true
	case raw.Message != nil:
		m := raw.Message
		if m.From == nil || m.Chat == nil {
			return chat.Update{}, false
		}
		return chat.NewTextUpdate(raw.UpdateID, m.From.ID, m.Chat.ID, m.Text), true
	default:
		return chat.Update{}, false
	}
}
