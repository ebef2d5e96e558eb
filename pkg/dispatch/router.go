package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"

	goerrors "github.com/goliatone/go-errors"
	"github.com/mymmrac/telego"

	"polybot/pkg/update"
)

// ErrNoHandler is returned when a router is built without a message handler.
var ErrNoHandler = errors.New("dispatch: message handler is required")

// MessageHandler consumes one Telegram message.
type MessageHandler interface {
	HandleMessage(ctx context.Context, msg telego.Message) error
}

// HandlerFunc adapts a function to MessageHandler.
type HandlerFunc func(ctx context.Context, msg telego.Message) error

func (f HandlerFunc) HandleMessage(ctx context.Context, msg telego.Message) error {
	return f(ctx, msg)
}

// Outcome describes what the router did with one event.
type Outcome string

const (
	OutcomeIgnored    Outcome = "ignored"
	OutcomeDispatched Outcome = "dispatched"
	OutcomeFailed     Outcome = "failed"
)

// Router forwards message events to the single handler it was built with.
// The handler is never replaced, so concurrent Dispatch calls need no locking.
type Router struct {
	handler MessageHandler
	log     *slog.Logger
}

// NewRouter binds the active handler for the lifetime of the process.
func NewRouter(handler MessageHandler, log *slog.Logger) (*Router, error) {
	if handler == nil {
		return nil, ErrNoHandler
	}
	if log == nil {
		log = slog.Default()
	}

	return &Router{
		handler: handler,
		log:     log.With("component", "dispatch.router"),
	}, nil
}

// Dispatch hands event.Message to the handler, once, on the caller's goroutine.
//
// Handler errors and panics stop here; callers only ever see the outcome.
func (r *Router) Dispatch(ctx context.Context, event update.Event) Outcome {
	if !event.HasMessage() {
		return OutcomeIgnored
	}
	if event.DecodeErr != nil {
		r.log.Warn("Message has fields of unexpected types", "update_id", event.UpdateID, "error", event.DecodeErr)
	}

	if err := r.invoke(ctx, *event.Message); err != nil {
		attrs := []any{
			"update_id", event.UpdateID,
			"message_id", event.Message.MessageID,
			"chat_id", event.Message.Chat.ID,
			"error", err,
		}
		var rich *goerrors.Error
		if goerrors.As(err, &rich) {
			attrs = append(attrs, "category", rich.Category, "text_code", rich.TextCode)
		}
		r.log.Error("Message handler failed", attrs...)
		return OutcomeFailed
	}

	return OutcomeDispatched
}

func (r *Router) invoke(ctx context.Context, msg telego.Message) (err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			r.log.Debug("Recovered handler panic", "stack", string(debug.Stack()))
			err = fmt.Errorf("handler panic: %v", recovered)
		}
	}()

	return r.handler.HandleMessage(ctx, msg)
}
