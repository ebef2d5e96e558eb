// Package update parses Telegram webhook request bodies into typed events.
package update

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"strings"

	"github.com/mymmrac/telego"
)

var (
	ErrEmptyBody              = errors.New("empty request body")
	ErrUnsupportedContentType = errors.New("unsupported content type")
	ErrMalformed              = errors.New("malformed update payload")
)

// Event is one webhook delivery. Message is nil when the update carries no
// "message" key (edited messages, callbacks, chat member changes, ...).
//
// When the message object holds fields of unexpected types, Message keeps the
// fields that did decode and DecodeErr records what did not.
type Event struct {
	UpdateID  int
	Message   *telego.Message
	Raw       json.RawMessage
	DecodeErr error
}

type envelope struct {
	UpdateID json.RawMessage `json:"update_id"`
	Message  json.RawMessage `json:"message"`
}

// HasMessage reports whether the event should reach the message handler.
func (e Event) HasMessage() bool {
	return e.Message != nil
}

// Parse decodes a webhook body. An empty content type is accepted since the
// Bot API always sends JSON; any explicit non-JSON media type is rejected.
func Parse(contentType string, body []byte) (Event, error) {
	if err := checkContentType(contentType); err != nil {
		return Event{}, err
	}

	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return Event{}, ErrEmptyBody
	}
	if trimmed[0] != '{' {
		return Event{}, fmt.Errorf("%w: top-level value is not an object", ErrMalformed)
	}

	var env envelope
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	var event Event
	_ = json.Unmarshal(env.UpdateID, &event.UpdateID)

	raw := bytes.TrimSpace(env.Message)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return event, nil
	}
	if raw[0] != '{' {
		return Event{}, fmt.Errorf("%w: message is not an object", ErrMalformed)
	}

	event.Raw = raw
	event.Message = &telego.Message{}
	if err := json.Unmarshal(raw, event.Message); err != nil {
		event.Message = salvage(raw)
		event.DecodeErr = err
	}

	return event, nil
}

// salvage decodes the message fields one by one, keeping every field whose
// value has the expected type.
func salvage(raw json.RawMessage) *telego.Message {
	var fields map[string]json.RawMessage
	msg := &telego.Message{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return msg
	}

	targets := map[string]any{
		"message_id": &msg.MessageID,
		"date":       &msg.Date,
		"chat":       &msg.Chat,
		"from":       &msg.From,
		"text":       &msg.Text,
		"caption":    &msg.Caption,
		"photo":      &msg.Photo,
	}
	for key, target := range targets {
		if value, ok := fields[key]; ok {
			_ = json.Unmarshal(value, target)
		}
	}

	return msg
}

func checkContentType(contentType string) error {
	if strings.TrimSpace(contentType) == "" {
		return nil
	}

	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnsupportedContentType, err)
	}
	if mediaType == "application/json" || strings.HasSuffix(mediaType, "+json") {
		return nil
	}

	return fmt.Errorf("%w: %s", ErrUnsupportedContentType, mediaType)
}
