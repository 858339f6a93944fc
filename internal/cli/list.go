package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List conversations",
	Long: `List your conversations, most recently updated first.

Examples:
  parley list
  parley list -v`,
	RunE: runListConversations,
}

func runListConversations(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	convs, err := api.ListConversations(ctx)
	if err != nil {
		return fmt.Errorf("list conversations: %w", err)
	}

	if len(convs) == 0 {
		fmt.Println("No conversations yet.")
		return nil
	}

	fmt.Printf("Conversations (%d):\n\n", len(convs))
	for _, conv := range convs {
		fmt.Printf("- %s\n", conv.Title)
		if verbose {
			fmt.Printf("  id: %s\n", conv.ID)
			fmt.Printf("  updated: %s\n", conv.UpdatedAt.Format("2006-01-02 15:04"))
		}
	}
	return nil
}
