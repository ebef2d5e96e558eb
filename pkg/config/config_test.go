package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadConfigFromEnvPath(t *testing.T) {
	unsetTelegramEnv(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	content := `{
	  "telegram": {"token": "123:abc", "app_url": "https://bot.example.com", "secret_token": "s3cret"},
	  "server": {"host": "127.0.0.1", "port": 9000},
	  "bot": {"type": "Quote"},
	  "logging": {"format": "json", "level": "debug", "add_source": true}
	}`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	t.Setenv("POLYBOT_CONFIG", path)

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig error: %v", err)
	}

	if cfg.Logging.Format != "json" {
		t.Fatalf("logging.format = %q, want %q", cfg.Logging.Format, "json")
	}
	if !cfg.Logging.AddSource {
		t.Fatal("logging.add_source = false, want true")
	}
	if cfg.Server.Port != 9000 {
		t.Fatalf("server.port = %d, want 9000", cfg.Server.Port)
	}
	if cfg.Server.MaxBodyBytes != defaultMaxBodyBytes {
		t.Fatalf("server.max_body_bytes = %d, want default %d", cfg.Server.MaxBodyBytes, defaultMaxBodyBytes)
	}
	if cfg.Bot.Type != BotTypeQuote {
		t.Fatalf("bot.type = %q, want %q", cfg.Bot.Type, BotTypeQuote)
	}
	if cfg.Telegram.SecretToken != "s3cret" {
		t.Fatalf("telegram.secret_token = %q, want %q", cfg.Telegram.SecretToken, "s3cret")
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate error: %v", err)
	}
}

func TestLoadConfigYAML(t *testing.T) {
	unsetTelegramEnv(t)

	path := filepath.Join(t.TempDir(), "polybot.yaml")
	content := "telegram:\n  token: \"123:abc\"\n  app_url: https://bot.example.com\nbot:\n  type: echo\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	t.Setenv("POLYBOT_CONFIG", path)

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig error: %v", err)
	}
	if cfg.Bot.Type != BotTypeEcho {
		t.Fatalf("bot.type = %q, want %q", cfg.Bot.Type, BotTypeEcho)
	}
	if cfg.Server.Port != 8443 {
		t.Fatalf("server.port = %d, want default 8443", cfg.Server.Port)
	}
}

func TestLoadConfigEnvironmentOverrides(t *testing.T) {
	unsetTelegramEnv(t)
	t.Chdir(t.TempDir())

	t.Setenv("TELEGRAM_TOKEN", "999:env")
	t.Setenv("TELEGRAM_APP_URL", "https://env.example.com")
	t.Setenv("POLYBOT_SERVER__PORT", "9443")
	t.Setenv("POLYBOT_TELEGRAM__WEBHOOK_TOKEN", "hook-path")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig error: %v", err)
	}

	if cfg.Telegram.Token != "999:env" {
		t.Fatalf("telegram.token = %q, want %q", cfg.Telegram.Token, "999:env")
	}
	if cfg.Server.Port != 9443 {
		t.Fatalf("server.port = %d, want 9443", cfg.Server.Port)
	}
	if got := cfg.Telegram.PathToken(); got != "hook-path" {
		t.Fatalf("PathToken = %q, want %q", got, "hook-path")
	}
	if got := cfg.Telegram.WebhookURL(); got != "https://env.example.com/hook-path/" {
		t.Fatalf("WebhookURL = %q", got)
	}
}

func TestLoadConfigInvalidEnvPath(t *testing.T) {
	t.Setenv("POLYBOT_CONFIG", filepath.Join(t.TempDir(), "missing.json"))

	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected error for missing config path")
	}
}

func TestValidateRequiresWebhookToken(t *testing.T) {
	cfg := validConfig()
	cfg.Telegram.Token = ""

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error for empty token")
	}
	if !strings.Contains(err.Error(), "telegram.token is required") {
		t.Fatalf("error = %v, want token requirement", err)
	}
	if !strings.Contains(err.Error(), "webhook path") {
		t.Fatalf("error = %v, want webhook path requirement", err)
	}
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "relative app url", mutate: func(c *Config) { c.Telegram.AppURL = "/hook" }},
		{name: "ftp app url", mutate: func(c *Config) { c.Telegram.AppURL = "ftp://example.com" }},
		{name: "slash in webhook token", mutate: func(c *Config) { c.Telegram.WebhookToken = "a/b" }},
		{name: "port", mutate: func(c *Config) { c.Server.Port = 70000 }},
		{name: "body limit", mutate: func(c *Config) { c.Server.MaxBodyBytes = 0 }},
		{name: "bot type", mutate: func(c *Config) { c.Bot.Type = "weather" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestPathTokenFallsBackToBotToken(t *testing.T) {
	cfg := TelegramConfig{Token: " 123:abc ", AppURL: "https://example.com/"}
	if got := cfg.PathToken(); got != "123:abc" {
		t.Fatalf("PathToken = %q, want %q", got, "123:abc")
	}
	if got := cfg.WebhookURL(); got != "https://example.com/123:abc/" {
		t.Fatalf("WebhookURL = %q", got)
	}
}

func validConfig() *Config {
	return &Config{
		Telegram: TelegramConfig{Token: "123:abc", AppURL: "https://bot.example.com"},
		Server:   ServerConfig{Host: "0.0.0.0", Port: 8443, MaxBodyBytes: defaultMaxBodyBytes},
		Bot:      BotConfig{Type: BotTypeImage},
	}
}

func unsetTelegramEnv(t *testing.T) {
	t.Helper()
	t.Setenv("TELEGRAM_TOKEN", "")
	t.Setenv("TELEGRAM_APP_URL", "")
	t.Setenv("TELEGRAM_ALLOW_FROM", "")
}

func TestLoadConfigSplitsListEnvironmentValues(t *testing.T) {
	unsetTelegramEnv(t)
	t.Chdir(t.TempDir())

	t.Setenv("POLYBOT_BOT__ALLOW_FROM", "11, 22,,")
	t.Setenv("POLYBOT_TELEGRAM__ALLOWED_UPDATES", "message,edited_message")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig error: %v", err)
	}

	if got := cfg.Bot.AllowFrom; len(got) != 2 || got[0] != "11" || got[1] != "22" {
		t.Fatalf("bot.allow_from = %q, want [11 22]", got)
	}
	if got := cfg.Telegram.AllowedUpdates; len(got) != 2 || got[0] != "message" || got[1] != "edited_message" {
		t.Fatalf("telegram.allowed_updates = %q, want [message edited_message]", got)
	}
}

func TestEnvKeyValue(t *testing.T) {
	key, value := envKeyValue("POLYBOT_SERVER__PORT", "9443")
	if key != "server.port" || value != "9443" {
		t.Fatalf("envKeyValue = %q, %v", key, value)
	}

	key, value = envKeyValue("POLYBOT_BOT__ALLOW_FROM", "1,2")
	list, ok := value.([]string)
	if key != "bot.allow_from" || !ok || len(list) != 2 {
		t.Fatalf("envKeyValue = %q, %#v", key, value)
	}
}

func TestEmptyBotTypeSelectsImage(t *testing.T) {
	cfg := validConfig()
	cfg.Bot.Type = "  "
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate error: %v", err)
	}
	if got := cfg.Bot.Kind(); got != BotTypeImage {
		t.Fatalf("Kind = %q, want %q", got, BotTypeImage)
	}
	if got := (BotConfig{Type: " Quote "}).Kind(); got != BotTypeQuote {
		t.Fatalf("Kind = %q, want %q", got, BotTypeQuote)
	}
}
