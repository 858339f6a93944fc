package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/raphaelgruber/parley-go/internal/tui"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Open the interactive chat UI",
	Long: `Open the interactive terminal chat UI.

Keys:
  enter            send the typed message
  ctrl+t           cycle mode (none / internet / auto)
  ctrl+n           start a new conversation
  ctrl+p / ctrl+o  switch between conversations
  ctrl+c           quit`,
	RunE: runChat,
}

func runChat(cmd *cobra.Command, args []string) error {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return fmt.Errorf("chat requires an interactive terminal, use 'parley send' for scripted use")
	}
	return tui.Run(api)
}
