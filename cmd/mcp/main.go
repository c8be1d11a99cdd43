package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	mcpadapter "github.com/kirillkom/support-assistant/internal/adapters/mcp"
	"github.com/kirillkom/support-assistant/internal/bootstrap"
	"github.com/kirillkom/support-assistant/internal/config"
	"github.com/kirillkom/support-assistant/internal/observability/logging"
)

var version = "dev"

func main() {
	cfg := config.Load()
	slog.SetDefault(logging.NewConsoleLogger("mcp", cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, bootstrap.Observers{})
	if err != nil {
		log.Fatalf("bootstrap error: %v", err)
	}
	defer app.Close()

	go app.RunLexicalRefresh(ctx)

	if err := mcpadapter.New(app.Chat, app.Knowledge, cfg.RAGTopK).ServeStdio(version); err != nil {
		log.Fatalf("mcp server error: %v", err)
	}
}
