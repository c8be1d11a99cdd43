package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [path]",
	Short: "Load a document or directory into the knowledge index",
	Long: `Extract, chunk and embed knowledge documents (pdf, xlsx, md, txt).

A directory is walked recursively. Re-ingesting a file replaces its chunks.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		app, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer app.Close()

		report, err := app.Ingest.IngestPath(ctx, args[0])
		if err != nil {
			return fmt.Errorf("ingest %s: %w", args[0], err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), renderIngestReport(report))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(ingestCmd)
}
