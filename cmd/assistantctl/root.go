package main

import (
	"context"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/kirillkom/support-assistant/internal/bootstrap"
	"github.com/kirillkom/support-assistant/internal/config"
	"github.com/kirillkom/support-assistant/internal/observability/logging"
)

var rootCmd = &cobra.Command{
	Use:   "assistantctl",
	Short: "Operator console for the support assistant",
	Long: `assistantctl talks to the support assistant pipeline directly.

It can hold a chat session in the terminal, load knowledge documents into the
hybrid index and answer one-off questions from the knowledge base.

Configuration is read from the environment and an optional .env file.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var cfgLogLevel string

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgLogLevel, "log-level", "", "Override LOG_LEVEL for this run")
}

// openApp builds the pipeline with logs on stderr so stdout only carries replies.
func openApp(ctx context.Context) (*bootstrap.App, error) {
	cfg := config.Load()
	level := cfg.LogLevel
	if cfgLogLevel != "" {
		level = cfgLogLevel
	}
	slog.SetDefault(logging.NewConsoleLogger("assistantctl", level))
	return bootstrap.New(ctx, cfg, bootstrap.Observers{})
}
