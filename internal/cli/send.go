package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/parley-go/internal/models"
)

var (
	sendConversation string
	sendMode         string
	sendModel        string
)

var sendCmd = &cobra.Command{
	Use:   "send <message>",
	Short: "Send a single chat message",
	Long: `Send one message and print the assistant reply.

Modes:
  none      direct inference from the model (default)
  internet  answer assembled from a live web search
  auto      a bounded agent decides when to search

Examples:
  parley send "What is a goroutine?"
  parley send --mode internet "latest go release"
  parley send --conversation 0198... "and how do channels fit in?"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSend,
}

func init() {
	sendCmd.Flags().StringVarP(&sendConversation, "conversation", "c", "", "continue an existing conversation")
	sendCmd.Flags().StringVarP(&sendMode, "mode", "m", "", "response mode: none, internet or auto")
	sendCmd.Flags().StringVar(&sendModel, "model", "", "model to use")
}

func runSend(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	mode := sendMode
	if mode == "" {
		mode = fileCfg.DefaultMode
	}
	model := sendModel
	if model == "" {
		model = fileCfg.DefaultModel
	}

	resp, err := api.Send(ctx, models.ChatRequest{
		Message:        strings.Join(args, " "),
		ConversationID: sendConversation,
		Mode:           mode,
		Model:          model,
	})
	if err != nil {
		return fmt.Errorf("send: %w", err)
	}

	fmt.Println(resp.Message.Content)
	if verbose {
		fmt.Printf("\nconversation: %s\n", resp.ConversationID)
		fmt.Printf("message:      %s\n", resp.Message.ID)
		fmt.Printf("tool used:    %s\n", resp.Message.ToolUsed)
	}
	return nil
}
