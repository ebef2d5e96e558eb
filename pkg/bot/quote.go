package bot

import (
	"context"
	"log/slog"
	"strings"

	"github.com/mymmrac/telego"
)

const defaultQuoteOptOut = "Please don't quote me"

// Quote replies to every text message by quoting it back, except the opt-out phrase.
type Quote struct {
	client Client
	optOut string
	log    *slog.Logger
}

func NewQuote(client Client, optOut string, log *slog.Logger) *Quote {
	optOut = strings.TrimSpace(optOut)
	if optOut == "" {
		optOut = defaultQuoteOptOut
	}

	return &Quote{client: client, optOut: optOut, log: log.With("component", "bot.quote")}
}

func (b *Quote) HandleMessage(ctx context.Context, msg telego.Message) error {
	text := strings.TrimSpace(msg.Text)
	if text == "" {
		b.log.Debug("Ignoring message without text", "message_id", msg.MessageID)
		return nil
	}
	if strings.EqualFold(text, b.optOut) {
		b.log.Debug("Sender opted out of quoting", "chat_id", msg.Chat.ID)
		return nil
	}

	b.log.Info("Quoting message", "chat_id", msg.Chat.ID, "message_id", msg.MessageID, "content", previewText(text))
	return sendText(ctx, b.client, msg, text, true)
}
