package cmd

import (
	"fmt"
	"time"

	"github.com/chaos-dotcom/colourstream-sub003/pkg/uplink"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var (
	createClient  string
	createProject string
	createExpiry  time.Duration
	createMaxUses int
)

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Create an upload link",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		store, database, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer database.Close()

		link := &uplink.Link{
			Token:      uuid.NewString(),
			ClientRef:  createClient,
			ProjectRef: createProject,
			ExpiresAt:  time.Now().Add(createExpiry),
			IsActive:   true,
			CreatedAt:  time.Now(),
		}
		if createMaxUses > 0 {
			link.MaxUses = &createMaxUses
		}

		if err := store.Create(ctx, link); err != nil {
			return fmt.Errorf("creating link: %w", err)
		}

		fmt.Printf("Token:    %s\n", link.Token)
		fmt.Printf("Client:   %s\n", link.ClientRef)
		fmt.Printf("Project:  %s\n", link.ProjectRef)
		fmt.Printf("Expires:  %s\n", link.ExpiresAt.Format(time.RFC3339))
		if link.MaxUses != nil {
			fmt.Printf("Max uses: %d\n", *link.MaxUses)
		} else {
			fmt.Printf("Max uses: unlimited\n")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(createCmd)
	createCmd.Flags().StringVar(&createClient, "client", "", "Client display name")
	createCmd.Flags().StringVar(&createProject, "project", "", "Project display name")
	createCmd.Flags().DurationVar(&createExpiry, "expires-in", 7*24*time.Hour, "Lifetime of the link")
	createCmd.Flags().IntVar(&createMaxUses, "max-uses", 0, "Maximum uploads the link allows (0 = unlimited)")
	_ = createCmd.MarkFlagRequired("client")
	_ = createCmd.MarkFlagRequired("project")
}
