package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var askVerbose bool

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Answer a question from the knowledge base",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		app, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer app.Close()

		question := strings.Join(args, " ")
		out := cmd.OutOrStdout()
		fmt.Fprintln(out, headerStyle.Render("Question:"), userStyle.Render(question))
		fmt.Fprintln(out, renderReply(app.Knowledge.Answer(ctx, question), askVerbose))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(askCmd)
	askCmd.Flags().BoolVar(&askVerbose, "verbose", false, "Show retrieval fallbacks")
}
