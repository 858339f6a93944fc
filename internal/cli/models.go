package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List selectable models and tools",
	RunE:  runModels,
}

func runModels(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	list, err := api.ListModels(ctx)
	if err != nil {
		return fmt.Errorf("list models: %w", err)
	}

	fmt.Printf("Available (%d):\n\n", len(list))
	for _, m := range list {
		if m.Description != "" {
			fmt.Printf("- %s [%s] %s\n", m.Name, m.Type, m.Description)
		} else {
			fmt.Printf("- %s [%s]\n", m.Name, m.Type)
		}
	}
	return nil
}
