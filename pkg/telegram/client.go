package telegram

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mymmrac/telego"

	"polybot/pkg/config"
)

// NewBot builds the Bot API client shared by the handlers and webhook commands.
func NewBot(cfg config.TelegramConfig, log *slog.Logger) (*telego.Bot, error) {
	token := strings.TrimSpace(cfg.Token)
	if token == "" {
		return nil, errors.New("telegram.token is required")
	}

	if log == nil {
		log = slog.Default()
	}

	options := []telego.BotOption{
		telego.WithLogger(apiLogger{log: log.With("component", "telegram.api")}),
	}
	if server := strings.TrimRight(strings.TrimSpace(cfg.APIServer), "/"); server != "" {
		options = append(options, telego.WithAPIServer(server))
	}

	bot, err := telego.NewBot(token, options...)
	if err != nil {
		return nil, fmt.Errorf("initialize telegram bot: %w", err)
	}

	return bot, nil
}

// apiLogger routes telego's internal logging into slog.
type apiLogger struct {
	log *slog.Logger
}

func (l apiLogger) Debugf(format string, args ...any) {
	l.log.Debug(fmt.Sprintf(format, args...))
}

func (l apiLogger) Errorf(format string, args ...any) {
	l.log.Error(fmt.Sprintf(format, args...))
}
