package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"polybot/pkg/bot"
	"polybot/pkg/config"
	"polybot/pkg/dispatch"
	"polybot/pkg/gateway"
	"polybot/pkg/logger"
	"polybot/pkg/telegram"
)

var skipRegister bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the webhook server",
	Long:  "Registers the webhook with Telegram and serves update deliveries until interrupted.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}

		log, err := newLogger(cfg)
		if err != nil {
			return err
		}

		runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return runServe(runCtx, cfg, log)
	},
}

func init() {
	serveCmd.Flags().BoolVar(&skipRegister, "skip-register", false, "serve without calling setWebhook")
	rootCmd.AddCommand(serveCmd)
}

// newLogger installs the process logger with every configured secret redacted.
func newLogger(cfg *config.Config) (*slog.Logger, error) {
	appLogger, err := logger.New(cfg.Logging, cfg.Telegram.Token, cfg.Telegram.PathToken(), cfg.Telegram.SecretToken)
	if err != nil {
		return nil, fmt.Errorf("initialize logger: %w", err)
	}
	slog.SetDefault(appLogger)

	return appLogger, nil
}

func runServe(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	log = log.With("component", "cmd.serve")

	api, err := telegram.NewBot(cfg.Telegram, log)
	if err != nil {
		return err
	}

	server, err := buildServer(cfg, api, log)
	if err != nil {
		return err
	}

	listener, err := server.Listen(ctx)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Serve(gctx, listener)
	})
	if skipRegister {
		server.MarkRegistered()
	} else {
		g.Go(func() error {
			if err := telegram.Register(gctx, api, cfg.Telegram); err != nil {
				return err
			}
			server.MarkRegistered()
			log.Info("Webhook registered", "url", telegram.RedactURL(cfg.Telegram.WebhookURL(), cfg.Telegram.PathToken()))
			return nil
		})
	}

	log.Info("Polybot started", "bot_type", cfg.Bot.Type, "address", server.Addr())
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("Polybot stopped", "error", err)
		return err
	}

	return nil
}

// buildServer wires the configured bot behind the router and the webhook server.
func buildServer(cfg *config.Config, client bot.Client, log *slog.Logger) (*gateway.Server, error) {
	handler, err := bot.New(cfg.Bot, client, log)
	if err != nil {
		return nil, fmt.Errorf("configure bot: %w", err)
	}

	router, err := dispatch.NewRouter(handler, log)
	if err != nil {
		return nil, fmt.Errorf("configure router: %w", err)
	}

	return gateway.NewServer(cfg, router, log)
}
