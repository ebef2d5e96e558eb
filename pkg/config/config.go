package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	envConfigPath        = "POLYBOT_CONFIG"
	envPrefix            = "POLYBOT_"
	envTelegramToken     = "TELEGRAM_TOKEN"
	envTelegramAppURL    = "TELEGRAM_APP_URL"
	envTelegramAllowFrom = "TELEGRAM_ALLOW_FROM"
	defaultMaxBodyBytes  = 1 << 20
)

var listKeys = []string{"bot.allow_from", "telegram.allowed_updates"}

const (
	BotTypeEcho  = "echo"
	BotTypeQuote = "quote"
	BotTypeImage = "image"
)

// Config is the root runtime configuration.
type Config struct {
	Telegram TelegramConfig `koanf:"telegram"`
	Server   ServerConfig   `koanf:"server"`
	Bot      BotConfig      `koanf:"bot"`
	Logging  LoggingConfig  `koanf:"logging"`
}

// LoggingConfig controls structured log output format and verbosity.
type LoggingConfig struct {
	Format    string `koanf:"format"`
	Level     string `koanf:"level"`
	AddSource bool   `koanf:"add_source"`
}

// TelegramConfig holds Bot API credentials and webhook registration settings.
type TelegramConfig struct {
	Token              string   `koanf:"token"`
	AppURL             string   `koanf:"app_url"`
	WebhookToken       string   `koanf:"webhook_token"`
	SecretToken        string   `koanf:"secret_token"`
	APIServer          string   `koanf:"api_server"`
	DropPendingUpdates bool     `koanf:"drop_pending_updates"`
	MaxConnections     int      `koanf:"max_connections"`
	AllowedUpdates     []string `koanf:"allowed_updates"`
}

// ServerConfig configures the webhook HTTP listener.
type ServerConfig struct {
	Host                string `koanf:"host"`
	Port                int    `koanf:"port"`
	MaxBodyBytes        int64  `koanf:"max_body_bytes"`
	ReadTimeoutSeconds  int    `koanf:"read_timeout_seconds"`
	WriteTimeoutSeconds int    `koanf:"write_timeout_seconds"`
}

// BotConfig selects the message handler installed at startup.
type BotConfig struct {
	Type        string   `koanf:"type"`
	QuoteOptOut string   `koanf:"quote_opt_out"`
	AllowFrom   []string `koanf:"allow_from"`
}

// PathToken returns the secret path segment the webhook is served under.
//
// It falls back to the bot token when no dedicated webhook token is set.
func (c TelegramConfig) PathToken() string {
	if token := strings.TrimSpace(c.WebhookToken); token != "" {
		return token
	}

	return strings.TrimSpace(c.Token)
}

// WebhookURL joins the public base URL and the path token.
func (c TelegramConfig) WebhookURL() string {
	return strings.TrimRight(strings.TrimSpace(c.AppURL), "/") + "/" + c.PathToken() + "/"
}

// Address returns the host:port the server listens on.
func (c ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", strings.TrimSpace(c.Host), c.Port)
}

func defaults() map[string]any {
	return map[string]any{
		"server.host":                  "0.0.0.0",
		"server.port":                  8443,
		"server.max_body_bytes":        defaultMaxBodyBytes,
		"server.read_timeout_seconds":  15,
		"server.write_timeout_seconds": 60,
		"bot.type":                     BotTypeImage,
		"bot.quote_opt_out":            "Please don't quote me",
		"logging.format":               "text",
		"logging.level":                "info",
	}
}

// LoadConfig resolves defaults, the optional config file and environment overrides.
func LoadConfig() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("load config defaults: %w", err)
	}

	configPath, err := findConfigPath()
	if err != nil {
		return nil, err
	}
	if configPath != "" {
		if err := k.Load(file.Provider(configPath), parserFor(configPath)); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	// POLYBOT_SERVER__PORT -> server.port
	if err := k.Load(env.ProviderWithValue(envPrefix, ".", envKeyValue), nil); err != nil {
		return nil, fmt.Errorf("load config environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// Validate checks the settings the serve command cannot run without.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is required")
	}

	var errs []error

	if strings.TrimSpace(c.Telegram.Token) == "" {
		errs = append(errs, errors.New("telegram.token is required"))
	}
	if err := validateAppURL(c.Telegram.AppURL); err != nil {
		errs = append(errs, err)
	}
	if err := validatePathToken(c.Telegram.PathToken()); err != nil {
		errs = append(errs, err)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if c.Server.MaxBodyBytes <= 0 {
		errs = append(errs, errors.New("server.max_body_bytes must be positive"))
	}
	if !slices.Contains([]string{BotTypeEcho, BotTypeQuote, BotTypeImage}, c.Bot.Kind()) {
		errs = append(errs, fmt.Errorf("unsupported bot.type %q", c.Bot.Type))
	}

	return errors.Join(errs...)
}

func validateAppURL(raw string) error {
	value := strings.TrimSpace(raw)
	if value == "" {
		return errors.New("telegram.app_url is required")
	}

	parsed, err := url.Parse(value)
	if err != nil {
		return fmt.Errorf("telegram.app_url: %w", err)
	}
	if parsed.Scheme != "https" && parsed.Scheme != "http" {
		return fmt.Errorf("telegram.app_url must use http or https, got %q", parsed.Scheme)
	}
	if parsed.Host == "" {
		return errors.New("telegram.app_url must include a host")
	}

	return nil
}

func validatePathToken(token string) error {
	if token == "" {
		return errors.New("telegram.webhook_token or telegram.token is required for the webhook path")
	}
	if strings.ContainsAny(token, "/{}? \t\r\n") {
		return errors.New("webhook token must be a single path segment")
	}

	return nil
}

// Kind returns the normalized bot type. An unset type selects the image bot.
func (c BotConfig) Kind() string {
	if kind := normalizeBotType(c.Type); kind != "" {
		return kind
	}

	return BotTypeImage
}

func normalizeBotType(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

// applyEnvOverrides injects the well-known Telegram variables on top of file config.
func applyEnvOverrides(cfg *Config) {
	if cfg == nil {
		return
	}

	if token := strings.TrimSpace(os.Getenv(envTelegramToken)); token != "" {
		cfg.Telegram.Token = token
	}
	if appURL := strings.TrimSpace(os.Getenv(envTelegramAppURL)); appURL != "" {
		cfg.Telegram.AppURL = appURL
	}

	if rawAllowFrom := strings.TrimSpace(os.Getenv(envTelegramAllowFrom)); rawAllowFrom != "" {
		cfg.Bot.AllowFrom = parseCSV(rawAllowFrom)
	}

	cfg.Bot.Type = normalizeBotType(cfg.Bot.Type)
}

// parseCSV splits comma-separated values and returns a trimmed compact slice.
func parseCSV(input string) []string {
	parts := strings.Split(input, ",")
	clean := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		clean = append(clean, trimmed)
	}

	return slices.Clip(clean)
}

func envKey(name string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(name, envPrefix)), "__", ".")
}

// envKeyValue maps an env var to its config key. List keys are split on commas.
func envKeyValue(name string, value string) (string, any) {
	key := envKey(name)
	if slices.Contains(listKeys, key) {
		return key, parseCSV(value)
	}

	return key, value
}

func parserFor(path string) koanf.Parser {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Parser()
	default:
		return json.Parser()
	}
}

// findConfigPath resolves the active config file location.
//
// POLYBOT_CONFIG must name an existing file. Without it, cwd-local candidates are
// tried and a missing file is not an error.
func findConfigPath() (string, error) {
	if value := strings.TrimSpace(os.Getenv(envConfigPath)); value != "" {
		if info, err := os.Stat(value); err == nil && !info.IsDir() {
			return value, nil
		}
		return "", fmt.Errorf("%s does not point to a file: %s", envConfigPath, value)
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("get current working directory: %w", err)
	}

	candidates := []string{
		filepath.Join(cwd, "config.json"),
		filepath.Join(cwd, "config.yaml"),
		filepath.Join(cwd, "config", "config.json"),
	}

	for _, candidate := range candidates {
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
	}

	return "", nil
}
