package notify

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"
)

// sendTimeout bounds a single Telegram API call.
const sendTimeout = 10 * time.Second

// TelegramSender delivers messages via the Telegram Bot API.
type TelegramSender struct {
	bot *tele.Bot
}

// NewTelegramSender validates the token (telebot performs getMe) and returns
// a send-only client. No poller is started; this bot only pushes.
func NewTelegramSender(token string) (*TelegramSender, error) {
	if strings.TrimSpace(token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	b, err := tele.NewBot(tele.Settings{
		Token:  token,
		Client: &http.Client{Timeout: sendTimeout},
	})
	if err != nil {
		return nil, err
	}
	return &TelegramSender{bot: b}, nil
}

func (t *TelegramSender) Send(ctx context.Context, chatID int64, text string, disablePreview bool) error {
	_ = ctx // telebot sends have no ctx hook; the bot's http client carries the timeout
	chat := &tele.Chat{ID: chatID}
	// No parse mode: messages carry scraped text, and a stray markup
	// character must never make Telegram reject the whole message.
	_, err := t.bot.Send(chat, text, &tele.SendOptions{
		DisableWebPagePreview: disablePreview,
	})
	return err
}

var _ Sender = (*TelegramSender)(nil)
