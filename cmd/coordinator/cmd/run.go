package cmd

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/chaos-dotcom/colourstream-sub003/pkg/api"
	"github.com/chaos-dotcom/colourstream-sub003/pkg/api/config"
	"github.com/chaos-dotcom/colourstream-sub003/pkg/api/routes"
	"github.com/chaos-dotcom/colourstream-sub003/pkg/api/services"
	"github.com/chaos-dotcom/colourstream-sub003/pkg/blobstore"
	"github.com/chaos-dotcom/colourstream-sub003/pkg/db"
	"github.com/chaos-dotcom/colourstream-sub003/pkg/kv"
	"github.com/chaos-dotcom/colourstream-sub003/pkg/uplog"
	"github.com/spf13/cobra"
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the upload coordinator server",
	Run:   run,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func run(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	cfg, err := config.ValidateEnv()
	if err != nil {
		log.Fatalf("❌ %v\n", err)
	}

	cfg.Print(log.Printf)

	logger := uplog.NewDefault()

	database, err := db.New(ctx, db.Config{
		Host:     cfg.DBHost,
		Port:     cfg.DBPort,
		User:     cfg.DBUser,
		Password: cfg.DBPassword,
		Database: cfg.DBName,
		SSLMode:  cfg.DBSSLMode,
	})
	if err != nil {
		log.Fatalf("failed to initialize database: %v", err)
	}
	defer database.Close()

	var kvStore kv.Store
	if cfg.ValkeyAddr != "" {
		kvStore, err = kv.NewValkeyStore(kv.ValkeyConfig{
			Addr:     cfg.ValkeyAddr,
			Password: cfg.ValkeyPassword,
			DB:       cfg.ValkeyDB,
		})
		if err != nil {
			log.Fatalf("failed to connect to valkey: %v", err)
		}
	} else {
		kvStore = kv.NewMemoryStore()
	}
	defer kvStore.Close()

	gateway, err := blobstore.NewS3Gateway(blobstore.S3Config{
		Endpoint:  cfg.S3Endpoint,
		AccessKey: cfg.S3AccessKey,
		SecretKey: cfg.S3SecretKey,
		Bucket:    cfg.S3Bucket,
		Region:    cfg.S3Region,
		UseSSL:    cfg.S3UseSSL,
	})
	if err != nil {
		log.Fatalf("failed to initialize storage gateway: %v", err)
	}
	if err := gateway.EnsureBucket(ctx); err != nil {
		log.Fatalf("failed to ensure bucket: %v", err)
	}

	svcs, err := services.NewServices(cfg, database, kvStore, gateway, logger)
	if err != nil {
		log.Fatalf("failed to initialize services: %v", err)
	}

	if cfg.SessionIdleReapMinutes > 0 {
		idleFor := time.Duration(cfg.SessionIdleReapMinutes) * time.Minute
		go func() {
			ticker := time.NewTicker(idleFor / 4)
			defer ticker.Stop()
			for range ticker.C {
				svcs.Sessions.ReapIdle(ctx, idleFor)
			}
		}()
	}

	a := api.NewApi()
	routes.RegisterAPI(a.Api, svcs)
	routes.RegisterDashboard(a.Router, svcs.Dashboard)

	addr := fmt.Sprintf(":%s", cfg.Port)

	log.Printf("🚀 Coordinator starting on %s\n", addr)
	log.Printf("📚 OpenAPI docs: http://localhost%s/docs\n", addr)
	log.Printf("📡 Dashboard websocket: ws://localhost%s/api/dashboard/uploads/ws\n", addr)

	if err := http.ListenAndServe(addr, a.Router); err != nil {
		fmt.Fprintf(os.Stderr, "Server error: %v\n", err)
		os.Exit(1)
	}
}
