package logger

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	charmLog "github.com/charmbracelet/log"

	"polybot/pkg/config"
)

const (
	defaultFormat = "text"
	defaultLevel  = "info"
	redacted      = "[REDACTED]"
)

// Entry is one line written by the JSON handler.
type Entry struct {
	Level     string         `json:"level"`
	Timestamp string         `json:"timestamp"`
	Component string         `json:"component,omitempty"`
	Message   string         `json:"message"`
	Fields    map[string]any `json:"fields,omitempty"`
	Caller    string         `json:"caller,omitempty"`
}

// jsonHandler writes one Entry per record. Attributes under a group are keyed
// "group.key"; "component" is lifted out of the fields.
type jsonHandler struct {
	level     slog.Level
	addSource bool
	writer    io.Writer
	attrs     []slog.Attr
	prefix    string
	mu        *sync.Mutex
}

// New builds the process logger. Any non-empty secrets are masked in messages
// and string attributes before they reach the writer.
func New(cfg config.LoggingConfig, secrets ...string) (*slog.Logger, error) {
	return newWithWriter(cfg, os.Stderr, secrets...)
}

func newWithWriter(cfg config.LoggingConfig, writer io.Writer, secrets ...string) (*slog.Logger, error) {
	format := strings.ToLower(strings.TrimSpace(cfg.Format))
	if value := strings.TrimSpace(os.Getenv("POLYBOT_LOG_FORMAT")); value != "" {
		format = strings.ToLower(value)
	}
	if format == "" {
		format = defaultFormat
	}
	if format != "json" && format != "text" {
		return nil, fmt.Errorf("unsupported log format %q", format)
	}

	level, err := parseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	addSource := cfg.AddSource
	if env := strings.TrimSpace(os.Getenv("POLYBOT_LOG_ADD_SOURCE")); env != "" {
		addSource = parseBool(env)
	}

	var handler slog.Handler
	if format == "text" {
		handler = charmLog.NewWithOptions(writer, charmLog.Options{
			Level:           charmLevel(level),
			ReportTimestamp: true,
			ReportCaller:    addSource,
			Formatter:       charmLog.TextFormatter,
		})
	} else {
		handler = &jsonHandler{
			level:     level,
			addSource: addSource,
			writer:    writer,
			mu:        &sync.Mutex{},
		}
	}

	return slog.New(newRedactHandler(handler, secrets)), nil
}

func charmLevel(level slog.Level) charmLog.Level {
	switch {
	case level <= slog.LevelDebug:
		return charmLog.DebugLevel
	case level <= slog.LevelInfo:
		return charmLog.InfoLevel
	case level <= slog.LevelWarn:
		return charmLog.WarnLevel
	default:
		return charmLog.ErrorLevel
	}
}

func parseLevel(input string) (slog.Level, error) {
	levelText := strings.ToLower(strings.TrimSpace(input))
	if value := strings.TrimSpace(os.Getenv("POLYBOT_LOG_LEVEL")); value != "" {
		levelText = strings.ToLower(value)
	}
	if levelText == "" {
		levelText = defaultLevel
	}

	switch levelText {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unsupported log level %q", levelText)
	}
}

func parseBool(input string) bool {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

func (h *jsonHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *jsonHandler) Handle(_ context.Context, record slog.Record) error {
	when := record.Time
	if when.IsZero() {
		when = time.Now()
	}
	entry := Entry{
		Level:     strings.ToLower(record.Level.String()),
		Timestamp: when.UTC().Format(time.RFC3339Nano),
		Message:   record.Message,
		Fields:    make(map[string]any, len(h.attrs)+record.NumAttrs()),
	}

	for _, attr := range h.attrs {
		entry.add(attr)
	}
	record.Attrs(func(attr slog.Attr) bool {
		entry.add(h.scoped(attr))
		return true
	})
	if len(entry.Fields) == 0 {
		entry.Fields = nil
	}

	if src := record.Source(); h.addSource && src != nil && src.File != "" {
		entry.Caller = fmt.Sprintf("%s:%d", filepath.Base(src.File), src.Line)
	}

	line, err := json.Marshal(entry)
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err = h.writer.Write(append(line, '\n'))
	return err
}

func (h *jsonHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.attrs = slices.Clone(h.attrs)
	for _, attr := range attrs {
		next.attrs = append(next.attrs, h.scoped(attr))
	}
	return &next
}

func (h *jsonHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := *h
	next.prefix = h.prefix + name + "."
	return &next
}

func (h *jsonHandler) scoped(attr slog.Attr) slog.Attr {
	if h.prefix != "" {
		attr.Key = h.prefix + attr.Key
	}
	return attr
}

func (e *Entry) add(attr slog.Attr) {
	attr.Value = attr.Value.Resolve()
	if attr.Key == "" {
		return
	}
	if attr.Key == "component" && attr.Value.Kind() == slog.KindString {
		e.Component = attr.Value.String()
		return
	}

	e.Fields[attr.Key] = fieldValue(attr.Value)
}

// fieldValue converts a slog value into something encoding/json renders readably.
func fieldValue(value slog.Value) any {
	switch value.Kind() {
	case slog.KindDuration:
		return value.Duration().String()
	case slog.KindTime:
		return value.Time().UTC().Format(time.RFC3339Nano)
	case slog.KindGroup:
		nested := make(map[string]any)
		for _, attr := range value.Group() {
			nested[attr.Key] = fieldValue(attr.Value.Resolve())
		}
		return nested
	}

	if err, ok := value.Any().(error); ok {
		return err.Error()
	}
	return value.Any()
}

// redactHandler masks secret substrings before delegating to the wrapped handler.
type redactHandler struct {
	next     slog.Handler
	replacer *strings.Replacer
}

func newRedactHandler(next slog.Handler, secrets []string) slog.Handler {
	pairs := make([]string, 0, len(secrets)*2)
	for _, secret := range secrets {
		secret = strings.TrimSpace(secret)
		if secret == "" {
			continue
		}
		pairs = append(pairs, secret, redacted)
	}
	if len(pairs) == 0 {
		return next
	}

	return &redactHandler{next: next, replacer: strings.NewReplacer(pairs...)}
}

func (h *redactHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *redactHandler) Handle(ctx context.Context, record slog.Record) error {
	clean := slog.NewRecord(record.Time, record.Level, h.replacer.Replace(record.Message), record.PC)
	record.Attrs(func(attr slog.Attr) bool {
		clean.AddAttrs(h.redactAttr(attr))
		return true
	})

	return h.next.Handle(ctx, clean)
}

func (h *redactHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clean := make([]slog.Attr, 0, len(attrs))
	for _, attr := range attrs {
		clean = append(clean, h.redactAttr(attr))
	}

	return &redactHandler{next: h.next.WithAttrs(clean), replacer: h.replacer}
}

func (h *redactHandler) WithGroup(name string) slog.Handler {
	return &redactHandler{next: h.next.WithGroup(name), replacer: h.replacer}
}

func (h *redactHandler) redactAttr(attr slog.Attr) slog.Attr {
	value := attr.Value.Resolve()
	switch value.Kind() {
	case slog.KindString:
		return slog.String(attr.Key, h.replacer.Replace(value.String()))
	case slog.KindGroup:
		group := value.Group()
		clean := make([]any, 0, len(group))
		for _, item := range group {
			clean = append(clean, h.redactAttr(item))
		}
		return slog.Group(attr.Key, clean...)
	case slog.KindAny:
		if err, ok := value.Any().(error); ok {
			return slog.String(attr.Key, h.replacer.Replace(err.Error()))
		}
	}

	return slog.Attr{Key: attr.Key, Value: value}
}
