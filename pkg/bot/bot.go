// Package bot holds the message handlers that can be installed behind the
// webhook router. Exactly one of them is active per process.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mymmrac/telego"

	"polybot/pkg/config"
	"polybot/pkg/dispatch"
)

const messagePreviewLimit = 240

// Client is the slice of the Bot API the handlers use. *telego.Bot satisfies it.
type Client interface {
	SendMessage(ctx context.Context, params *telego.SendMessageParams) (*telego.Message, error)
	SendPhoto(ctx context.Context, params *telego.SendPhotoParams) (*telego.Message, error)
	SendChatAction(ctx context.Context, params *telego.SendChatActionParams) error
	GetFile(ctx context.Context, params *telego.GetFileParams) (*telego.File, error)
	FileDownloadURL(filepath string) string
}

// New builds the handler selected by cfg.Type, restricted to cfg.AllowFrom when set.
func New(cfg config.BotConfig, client Client, log *slog.Logger) (dispatch.MessageHandler, error) {
	if client == nil {
		return nil, errors.New("telegram client is required")
	}
	if log == nil {
		log = slog.Default()
	}

	var handler dispatch.MessageHandler
	switch cfg.Kind() {
	case config.BotTypeEcho:
		handler = NewEcho(client, log)
	case config.BotTypeQuote:
		handler = NewQuote(client, cfg.QuoteOptOut, log)
	case config.BotTypeImage:
		handler = NewImage(client, log)
	default:
		return nil, fmt.Errorf("unsupported bot type: %s", cfg.Type)
	}

	if len(cfg.AllowFrom) > 0 {
		handler = Restrict(handler, cfg.AllowFrom, log)
	}

	return handler, nil
}

// Echo replies with the text it received.
type Echo struct {
	client Client
	log    *slog.Logger
}

func NewEcho(client Client, log *slog.Logger) *Echo {
	return &Echo{client: client, log: log.With("component", "bot.echo")}
}

func (b *Echo) HandleMessage(ctx context.Context, msg telego.Message) error {
	text := strings.TrimSpace(msg.Text)
	if text == "" {
		b.log.Debug("Ignoring message without text", "message_id", msg.MessageID)
		return nil
	}

	return sendText(ctx, b.client, msg, "Your original message: "+text, false)
}

func sendText(ctx context.Context, client Client, msg telego.Message, text string, quote bool) error {
	if msg.Chat.ID == 0 {
		return badInput("message has no chat", codeMissingChat)
	}

	params := &telego.SendMessageParams{
		ChatID: telego.ChatID{ID: msg.Chat.ID},
		Text:   text,
	}
	if quote {
		params.ReplyParameters = &telego.ReplyParameters{MessageID: msg.MessageID}
	}

	if _, err := client.SendMessage(ctx, params); err != nil {
		return operationFailed(err, "send message", codeSendFailed)
	}

	return nil
}

// previewText returns a bounded log-safe preview of message text.
func previewText(text string) string {
	trimmed := strings.TrimSpace(text)
	if len(trimmed) <= messagePreviewLimit {
		return trimmed
	}

	return trimmed[:messagePreviewLimit] + "..."
}
