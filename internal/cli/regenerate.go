package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/parley-go/internal/models"
)

var regenerateModel string

var regenerateCmd = &cobra.Command{
	Use:   "regenerate <message-id>",
	Short: "Recompute an assistant message in place",
	Long: `Recompute an assistant message using the same mode it was produced
with. The message keeps its id and position in the conversation; only its
content changes.

Examples:
  parley regenerate 0198a3...
  parley regenerate --model llama3.2 0198a3...`,
	Args: cobra.ExactArgs(1),
	RunE: runRegenerate,
}

func init() {
	regenerateCmd.Flags().StringVar(&regenerateModel, "model", "", "model to use")
}

func runRegenerate(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	resp, err := api.Regenerate(ctx, models.RegenerateRequest{
		MessageID: args[0],
		Model:     regenerateModel,
	})
	if err != nil {
		return fmt.Errorf("regenerate: %w", err)
	}

	fmt.Println(resp.Message.Content)
	return nil
}
