package dispatch

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"

	goerrors "github.com/goliatone/go-errors"
	"github.com/mymmrac/telego"

	"polybot/pkg/update"
)

type recordingHandler struct {
	mu       sync.Mutex
	messages []telego.Message
	err      error
}

func (h *recordingHandler) HandleMessage(_ context.Context, msg telego.Message) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.messages = append(h.messages, msg)
	return h.err
}

func (h *recordingHandler) calls() []telego.Message {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]telego.Message, len(h.messages))
	copy(out, h.messages)
	return out
}

func TestNewRouterRequiresHandler(t *testing.T) {
	if _, err := NewRouter(nil, nil); !errors.Is(err, ErrNoHandler) {
		t.Fatalf("NewRouter error = %v, want %v", err, ErrNoHandler)
	}
}

func TestDispatchInvokesHandlerOnce(t *testing.T) {
	handler := &recordingHandler{}
	router, err := NewRouter(handler, slog.Default())
	if err != nil {
		t.Fatalf("NewRouter error: %v", err)
	}

	msg := &telego.Message{MessageID: 3, Chat: telego.Chat{ID: 9}, Text: "hi"}
	if got := router.Dispatch(context.Background(), update.Event{UpdateID: 1, Message: msg}); got != OutcomeDispatched {
		t.Fatalf("outcome = %q, want %q", got, OutcomeDispatched)
	}

	calls := handler.calls()
	if len(calls) != 1 {
		t.Fatalf("handler calls = %d, want 1", len(calls))
	}
	if calls[0].MessageID != 3 || calls[0].Text != "hi" {
		t.Fatalf("handler got %#v", calls[0])
	}
}

func TestDispatchIgnoresEventWithoutMessage(t *testing.T) {
	handler := &recordingHandler{}
	router, err := NewRouter(handler, nil)
	if err != nil {
		t.Fatalf("NewRouter error: %v", err)
	}

	if got := router.Dispatch(context.Background(), update.Event{UpdateID: 1}); got != OutcomeIgnored {
		t.Fatalf("outcome = %q, want %q", got, OutcomeIgnored)
	}
	if got := len(handler.calls()); got != 0 {
		t.Fatalf("handler calls = %d, want 0", got)
	}
}

func TestDispatchAbsorbsHandlerError(t *testing.T) {
	var logs bytes.Buffer
	log := slog.New(slog.NewTextHandler(&logs, nil))

	handler := &recordingHandler{
		err: goerrors.New("photo download failed", goerrors.CategoryOperation).WithTextCode("DOWNLOAD_FAILED"),
	}
	router, err := NewRouter(handler, log)
	if err != nil {
		t.Fatalf("NewRouter error: %v", err)
	}

	msg := &telego.Message{MessageID: 1, Chat: telego.Chat{ID: 2}}
	if got := router.Dispatch(context.Background(), update.Event{Message: msg}); got != OutcomeFailed {
		t.Fatalf("outcome = %q, want %q", got, OutcomeFailed)
	}
	if got := len(handler.calls()); got != 1 {
		t.Fatalf("handler calls = %d, want 1", got)
	}

	output := logs.String()
	if !strings.Contains(output, "Message handler failed") {
		t.Fatalf("expected failure log, got %q", output)
	}
	if !strings.Contains(output, "DOWNLOAD_FAILED") {
		t.Fatalf("expected text code in log, got %q", output)
	}
}

func TestDispatchRecoversHandlerPanic(t *testing.T) {
	router, err := NewRouter(HandlerFunc(func(context.Context, telego.Message) error {
		panic("boom")
	}), nil)
	if err != nil {
		t.Fatalf("NewRouter error: %v", err)
	}

	msg := &telego.Message{Text: "trigger"}
	if got := router.Dispatch(context.Background(), update.Event{Message: msg}); got != OutcomeFailed {
		t.Fatalf("outcome = %q, want %q", got, OutcomeFailed)
	}
}

func TestDispatchConcurrentCallsAreNotSerialized(t *testing.T) {
	const n = 20

	started := make(chan struct{}, n)
	release := make(chan struct{})
	router, err := NewRouter(HandlerFunc(func(context.Context, telego.Message) error {
		started <- struct{}{}
		<-release
		return nil
	}), nil)
	if err != nil {
		t.Fatalf("NewRouter error: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			router.Dispatch(context.Background(), update.Event{UpdateID: id, Message: &telego.Message{MessageID: id}})
		}(i)
	}

	for i := 0; i < n; i++ {
		<-started
	}
	close(release)
	wg.Wait()
}

func TestDispatchDeliversPartiallyDecodedMessage(t *testing.T) {
	handler := &recordingHandler{}
	var logs bytes.Buffer
	router, err := NewRouter(handler, slog.New(slog.NewTextHandler(&logs, nil)))
	if err != nil {
		t.Fatalf("NewRouter error: %v", err)
	}

	event := update.Event{
		Message:   &telego.Message{Text: "hi"},
		DecodeErr: errors.New("json: cannot unmarshal string into Go struct field"),
	}
	if got := router.Dispatch(context.Background(), event); got != OutcomeDispatched {
		t.Fatalf("outcome = %q, want %q", got, OutcomeDispatched)
	}
	if len(handler.calls()) != 1 {
		t.Fatalf("handler calls = %d, want 1", len(handler.calls()))
	}
	if !strings.Contains(logs.String(), "unexpected types") {
		t.Fatalf("logs = %q, want decode warning", logs.String())
	}
}
