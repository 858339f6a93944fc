package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/parley-go/internal/models"
)

var showCmd = &cobra.Command{
	Use:   "show <conversation-id>",
	Short: "Show a conversation's messages",
	Args:  cobra.ExactArgs(1),
	RunE:  runShow,
}

func runShow(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	conv, err := api.GetConversation(ctx, args[0])
	if err != nil {
		return fmt.Errorf("get conversation: %w", err)
	}
	messages, err := api.ListMessages(ctx, args[0])
	if err != nil {
		return fmt.Errorf("list messages: %w", err)
	}

	fmt.Printf("%s\n\n", conv.Title)
	for _, msg := range messages {
		switch msg.Role {
		case models.RoleUser:
			fmt.Printf("you: %s\n", msg.Content)
		case models.RoleAssistant:
			tag := ""
			if msg.ToolUsed != "" && msg.ToolUsed != "none" {
				tag = " [" + msg.ToolUsed + "]"
			}
			fmt.Printf("assistant%s: %s\n", tag, msg.Content)
		default:
			fmt.Printf("%s: %s\n", msg.Role, msg.Content)
		}
		if verbose {
			fmt.Printf("  id: %s\n", msg.ID)
		}
		fmt.Println()
	}
	return nil
}
