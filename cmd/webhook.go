package cmd

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/mymmrac/telego"
	"github.com/spf13/cobra"

	"polybot/pkg/config"
	"polybot/pkg/telegram"
)

var dropPending bool

var webhookCmd = &cobra.Command{
	Use:   "webhook",
	Short: "Inspect or remove the Telegram webhook registration",
}

var webhookInfoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show the current webhook registration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, api, err := webhookClient()
		if err != nil {
			return err
		}

		info, err := telegram.Info(cmd.Context(), api)
		if err != nil {
			return err
		}

		printWebhookInfo(cmd.OutOrStdout(), info, cfg.Telegram)
		return nil
	},
}

var webhookDeleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Remove the webhook registration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		_, api, err := webhookClient()
		if err != nil {
			return err
		}

		if err := telegram.Delete(cmd.Context(), api, dropPending); err != nil {
			return err
		}

		fmt.Fprintln(cmd.OutOrStdout(), "Webhook deleted")
		return nil
	},
}

func init() {
	webhookDeleteCmd.Flags().BoolVar(&dropPending, "drop-pending", false, "discard updates Telegram has queued")
	webhookCmd.AddCommand(webhookInfoCmd, webhookDeleteCmd)
	rootCmd.AddCommand(webhookCmd)
}

func webhookClient() (*config.Config, *telego.Bot, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	if strings.TrimSpace(cfg.Telegram.Token) == "" {
		return nil, nil, errors.New("telegram.token is required")
	}

	log, err := newLogger(cfg)
	if err != nil {
		return nil, nil, err
	}

	api, err := telegram.NewBot(cfg.Telegram, log)
	if err != nil {
		return nil, nil, err
	}

	return cfg, api, nil
}

func printWebhookInfo(w io.Writer, info *telego.WebhookInfo, cfg config.TelegramConfig) {
	if info.URL == "" {
		fmt.Fprintln(w, "No webhook registered")
		return
	}

	fmt.Fprintf(w, "URL: %s\n", telegram.RedactURL(info.URL, cfg.PathToken()))
	fmt.Fprintf(w, "Pending updates: %d\n", info.PendingUpdateCount)
	if info.MaxConnections > 0 {
		fmt.Fprintf(w, "Max connections: %d\n", info.MaxConnections)
	}
	if len(info.AllowedUpdates) > 0 {
		fmt.Fprintf(w, "Allowed updates: %s\n", strings.Join(info.AllowedUpdates, ","))
	}
	if info.LastErrorMessage != "" {
		fmt.Fprintf(w, "Last error: %s (%s)\n", info.LastErrorMessage, time.Unix(info.LastErrorDate, 0).UTC().Format(time.RFC3339))
	}
}
