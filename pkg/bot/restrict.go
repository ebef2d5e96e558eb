package bot

import (
	"context"
	"log/slog"
	"strconv"
	"strings"

	"github.com/mymmrac/telego"

	"polybot/pkg/dispatch"
)

type restricted struct {
	next      dispatch.MessageHandler
	allowFrom map[string]struct{}
	log       *slog.Logger
}

// Restrict drops messages whose sender ID is not listed in allowFrom.
// An empty list allows everyone and returns next unchanged.
func Restrict(next dispatch.MessageHandler, allowFrom []string, log *slog.Logger) dispatch.MessageHandler {
	allowed := allowFromSet(allowFrom)
	if allowed == nil {
		return next
	}
	if log == nil {
		log = slog.Default()
	}

	return &restricted{next: next, allowFrom: allowed, log: log.With("component", "bot.restrict")}
}

func (r *restricted) HandleMessage(ctx context.Context, msg telego.Message) error {
	if msg.From == nil {
		r.log.Debug("Ignoring message without sender", "message_id", msg.MessageID)
		return nil
	}

	senderID := strconv.FormatInt(msg.From.ID, 10)
	if !r.senderAllowed(senderID) {
		r.log.Debug("Ignoring message from unauthorized sender", "sender_id", senderID)
		return nil
	}

	return r.next.HandleMessage(ctx, msg)
}

func (r *restricted) senderAllowed(senderID string) bool {
	_, ok := r.allowFrom[strings.TrimSpace(senderID)]
	return ok
}

// allowFromSet normalizes allow_from values into a lookup set.
func allowFromSet(allowFrom []string) map[string]struct{} {
	if len(allowFrom) == 0 {
		return nil
	}

	allowed := make(map[string]struct{}, len(allowFrom))
	for _, value := range allowFrom {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			continue
		}
		allowed[trimmed] = struct{}{}
	}

	if len(allowed) == 0 {
		return nil
	}

	return allowed
}
