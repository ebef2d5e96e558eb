package telegram

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/mymmrac/telego"

	"polybot/pkg/config"
)

// WebhookAPI is the subset of the Bot API used to manage the webhook registration.
type WebhookAPI interface {
	SetWebhook(ctx context.Context, params *telego.SetWebhookParams) error
	DeleteWebhook(ctx context.Context, params *telego.DeleteWebhookParams) error
	GetWebhookInfo(ctx context.Context) (*telego.WebhookInfo, error)
}

// Register points Telegram at this instance's webhook URL.
func Register(ctx context.Context, api WebhookAPI, cfg config.TelegramConfig) error {
	params := &telego.SetWebhookParams{
		URL:                cfg.WebhookURL(),
		SecretToken:        strings.TrimSpace(cfg.SecretToken),
		DropPendingUpdates: cfg.DropPendingUpdates,
		MaxConnections:     cfg.MaxConnections,
		AllowedUpdates:     compact(cfg.AllowedUpdates),
	}

	if err := api.SetWebhook(ctx, params); err != nil {
		return fmt.Errorf("set webhook: %w", err)
	}

	return nil
}

// Delete removes the webhook so the bot stops receiving deliveries.
func Delete(ctx context.Context, api WebhookAPI, dropPending bool) error {
	if err := api.DeleteWebhook(ctx, &telego.DeleteWebhookParams{DropPendingUpdates: dropPending}); err != nil {
		return fmt.Errorf("delete webhook: %w", err)
	}

	return nil
}

// Info reports the webhook registration as Telegram currently sees it.
func Info(ctx context.Context, api WebhookAPI) (*telego.WebhookInfo, error) {
	info, err := api.GetWebhookInfo(ctx)
	if err != nil {
		return nil, fmt.Errorf("get webhook info: %w", err)
	}
	if info == nil {
		return &telego.WebhookInfo{}, nil
	}

	return info, nil
}

// RedactURL hides the path token when a webhook URL is printed or logged.
func RedactURL(rawURL string, token string) string {
	token = strings.TrimSpace(token)
	if token == "" {
		return rawURL
	}

	return strings.ReplaceAll(rawURL, token, "[REDACTED]")
}

func compact(values []string) []string {
	out := make([]string, 0, len(values))
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" && !slices.Contains(out, trimmed) {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return nil
	}

	return out
}
