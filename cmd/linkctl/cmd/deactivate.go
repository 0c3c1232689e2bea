package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var deactivateCmd = &cobra.Command{
	Use:   "deactivate <token>",
	Short: "Deactivate an upload link",
	Long:  `Deactivates a link so it stops authorizing uploads. Links are never deleted; the usage record stays auditable.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		store, database, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer database.Close()

		if err := store.Deactivate(ctx, args[0]); err != nil {
			return fmt.Errorf("deactivating link: %w", err)
		}
		fmt.Println("Link deactivated.")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(deactivateCmd)
}
