// Package cli provides the command-line interface for parley.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/raphaelgruber/parley-go/internal/client"
)

var (
	// Version is set at build time.
	Version = "0.1.0"

	// Global flags
	verbose   bool
	serverURL string
	authToken string

	// api is the server client, built before every command.
	api *client.Client

	// fileCfg is the loaded client config file, zero when absent.
	fileCfg FileConfig
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "parley",
	Short: "Chat client for the Parley conversation server",
	Long: `Parley is a chat client for the Parley conversation server.

Talk to an LLM directly, answer from a live web search, or let a bounded
agent decide when to search. Conversations are stored server-side and can
be browsed, continued and regenerated from any terminal.`,
	Version: Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" || cmd.Name() == "help" {
			return nil
		}

		fileCfg = LoadFileConfig()

		endpoint := serverURL
		if endpoint == "" {
			endpoint = fileCfg.ServerURL
		}
		token := authToken
		if token == "" {
			token = fileCfg.Token
		}

		api = client.New(endpoint, token)
		return nil
	},
}

// Execute adds all child commands to the root command and runs it.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "server URL (default from config file or PARLEY_SERVER_URL)")
	rootCmd.PersistentFlags().StringVar(&authToken, "token", "", "bearer token (default from config file or PARLEY_TOKEN)")

	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(sendCmd)
	rootCmd.AddCommand(regenerateCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(modelsCmd)
}
