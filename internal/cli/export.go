package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	exportFormat string
	exportOutput string
)

var exportCmd = &cobra.Command{
	Use:   "export <conversation-id>",
	Short: "Export a conversation to JSON or Markdown",
	Long: `Export a conversation with its full history for backup or sharing.

Examples:
  parley export 0198a3...
  parley export 0198a3... --format markdown
  parley export 0198a3... --format markdown -o notes.md`,
	Args: cobra.ExactArgs(1),
	RunE: runExport,
}

func init() {
	exportCmd.Flags().StringVarP(&exportFormat, "format", "f", "json", "export format: json or markdown")
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "write to this file instead of stdout")
}

func runExport(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	id := args[0]

	var content []byte
	switch exportFormat {
	case "markdown":
		export, err := api.ExportConversationMarkdown(ctx, id)
		if err != nil {
			return fmt.Errorf("export conversation: %w", err)
		}
		content = []byte(export.Content)
	case "json":
		export, err := api.ExportConversation(ctx, id)
		if err != nil {
			return fmt.Errorf("export conversation: %w", err)
		}
		data, err := json.MarshalIndent(export, "", "  ")
		if err != nil {
			return fmt.Errorf("encode export: %w", err)
		}
		content = data
	default:
		return fmt.Errorf("unknown format %q, want json or markdown", exportFormat)
	}

	if exportOutput == "" {
		fmt.Println(string(content))
		return nil
	}
	if err := os.WriteFile(exportOutput, content, 0644); err != nil {
		return fmt.Errorf("write export: %w", err)
	}
	fmt.Printf("Exported to %s\n", exportOutput)
	return nil
}
