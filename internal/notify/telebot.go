package notify

import (
	"context"

	tele "gopkg.in/telebot.v4"
)

// TelebotSender delivers alerts through an existing Bot API connection.
// The bot is shared with the rest of the process; this type only holds the
// destination.
type TelebotSender struct {
	bot      *tele.Bot
	to       *tele.Chat
	threadID int
}

func NewTelebotSender(bot *tele.Bot, chatID int64, threadID int) *TelebotSender {
	return &TelebotSender{bot: bot, to: &tele.Chat{ID: chatID}, threadID: threadID}
}

func (s *TelebotSender) Send(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := s.bot.Send(s.to, text, &tele.SendOptions{
		ThreadID:              s.threadID,
		DisableWebPagePreview: true,
	})
	return err
}
