package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var (
	deleteMessage bool
	deleteYes     bool
)

var deleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a conversation or a single message",
	Long: `Delete a conversation and all of its messages, or with --message a
single message.

Examples:
  parley delete 0198a3...
  parley delete --message 0198b7...
  parley delete -y 0198a3...`,
	Args: cobra.ExactArgs(1),
	RunE: runDelete,
}

func init() {
	deleteCmd.Flags().BoolVar(&deleteMessage, "message", false, "delete a single message instead of a conversation")
	deleteCmd.Flags().BoolVarP(&deleteYes, "yes", "y", false, "skip confirmation")
}

func runDelete(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	id := args[0]

	if !deleteYes {
		what := "conversation and all its messages"
		if deleteMessage {
			what = "message"
		}
		fmt.Printf("Delete %s %s? [y/N] ", what, id)
		reader := bufio.NewReader(os.Stdin)
		answer, _ := reader.ReadString('\n')
		if strings.ToLower(strings.TrimSpace(answer)) != "y" {
			fmt.Println("Aborted.")
			return nil
		}
	}

	if deleteMessage {
		if err := api.DeleteMessage(ctx, id); err != nil {
			return fmt.Errorf("delete message: %w", err)
		}
	} else {
		if err := api.DeleteConversation(ctx, id); err != nil {
			return fmt.Errorf("delete conversation: %w", err)
		}
	}

	fmt.Println("Deleted.")
	return nil
}
