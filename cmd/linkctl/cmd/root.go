package cmd

import (
	"context"
	"errors"
	"os"

	"github.com/chaos-dotcom/colourstream-sub003/pkg/db"
	"github.com/chaos-dotcom/colourstream-sub003/pkg/uplink"
	"github.com/spf13/cobra"
	"github.com/uptrace/bun"
)

var (
	cfgFile string
	rootCmd = &cobra.Command{
		Use:   "linkctl",
		Short: "Manage colourstream upload links",
		Long: `linkctl manages the capability-token upload links the coordinator
hands out to clients. Create a link for a client/project pair, list
existing links, or deactivate one that should stop accepting uploads.`,
	}
)

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML). Searches: linkctl.yaml, .linkctl.yaml; env: COLOURSTREAM_DB_*")
}

// openStore connects to the database and returns the link store. The
// caller owns the database handle and must close it.
func openStore(ctx context.Context) (uplink.Store, *bun.DB, error) {
	cfg, err := LoadConfig(cfgFile)
	if err != nil {
		return nil, nil, err
	}

	database, err := db.New(ctx, db.Config{
		Host:     cfg.DBHost,
		Port:     cfg.DBPort,
		User:     cfg.DBUser,
		Password: cfg.DBPassword,
		Database: cfg.DBName,
		SSLMode:  cfg.DBSSLMode,
	})
	if err != nil {
		return nil, nil, errors.Join(errors.New("connecting to database"), err)
	}

	return uplink.NewBunStore(database), database, nil
}
