package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var chatVerbose bool

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Hold a support conversation in the terminal",
	Long: `Start a new session and chat with the assistant as a customer would.

Type "quit" or "exit" to leave. The session is closed on exit.`,
	Args: cobra.NoArgs,
	RunE: runChat,
}

func init() {
	rootCmd.AddCommand(chatCmd)
	chatCmd.Flags().BoolVar(&chatVerbose, "verbose", false, "Show flow stage and retrieval fallbacks")
}

func runChat(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	app, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer app.Close()

	started, err := app.Chat.StartSession(ctx)
	if err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	sessionID := started.SessionID
	defer func() { _ = app.Chat.EndSession(ctx, sessionID) }()

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, mutedStyle.Render("session "+sessionID))
	fmt.Fprintln(out, renderReply(started.Reply, chatVerbose))

	scanner := bufio.NewScanner(cmd.InOrStdin())
	for {
		fmt.Fprint(out, userStyle.Render("You: "))
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if isQuit(line) {
			break
		}

		result, err := app.Chat.Send(ctx, sessionID, line)
		if err != nil {
			fmt.Fprintln(os.Stderr, errorStyle.Render("Error:"), err)
			continue
		}
		fmt.Fprintln(out, renderReply(result.Reply, chatVerbose))
	}
	fmt.Fprintln(out)
	return scanner.Err()
}
