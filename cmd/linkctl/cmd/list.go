package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List upload links",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		store, database, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer database.Close()

		links, err := store.List(ctx)
		if err != nil {
			return fmt.Errorf("listing links: %w", err)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "TOKEN\tCLIENT\tPROJECT\tEXPIRES\tUSES\tACTIVE")
		now := time.Now()
		for _, link := range links {
			uses := fmt.Sprintf("%d", link.UsedCount)
			if link.MaxUses != nil {
				uses = fmt.Sprintf("%d/%d", link.UsedCount, *link.MaxUses)
			}
			expires := link.ExpiresAt.Format(time.RFC3339)
			if !now.Before(link.ExpiresAt) {
				expires += " (expired)"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%v\n",
				link.Token, link.ClientRef, link.ProjectRef, expires, uses, link.IsActive)
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(listCmd)
}
