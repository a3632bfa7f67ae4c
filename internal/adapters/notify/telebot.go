// Package notify delivers operator messages over the Telegram Bot API.
package notify

import (
	"context"
	"fmt"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/frhnm/tgfleet/internal/ports"
)

type ChannelNotifier struct {
	bot  *tele.Bot
	chat tele.Recipient
}

var _ ports.Notifier = (*ChannelNotifier)(nil)

// NewChannelNotifier connects the control bot and targets the operator
// channel. The bot only sends; it never polls for updates.
func NewChannelNotifier(token string, chatID int64) (*ChannelNotifier, error) {
	bot, err := tele.NewBot(tele.Settings{
		Token:  token,
		Poller: &tele.LongPoller{Timeout: 10 * time.Second},
	})
	if err != nil {
		return nil, fmt.Errorf("create control bot: %w", err)
	}

	return &ChannelNotifier{bot: bot, chat: tele.ChatID(chatID)}, nil
}

func (n *ChannelNotifier) Notify(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := n.bot.Send(n.chat, text); err != nil {
		return fmt.Errorf("send to operator channel: %w", err)
	}
	return nil
}
