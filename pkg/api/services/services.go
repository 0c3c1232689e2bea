package services

import (
	"time"

	"github.com/chaos-dotcom/colourstream-sub003/pkg/api/config"
	"github.com/chaos-dotcom/colourstream-sub003/pkg/api/services/upload"
	"github.com/chaos-dotcom/colourstream-sub003/pkg/blobstore"
	"github.com/chaos-dotcom/colourstream-sub003/pkg/kv"
	"github.com/chaos-dotcom/colourstream-sub003/pkg/notify"
	"github.com/chaos-dotcom/colourstream-sub003/pkg/progress"
	"github.com/chaos-dotcom/colourstream-sub003/pkg/session"
	"github.com/chaos-dotcom/colourstream-sub003/pkg/uplink"
	"github.com/chaos-dotcom/colourstream-sub003/pkg/uplog"
	"github.com/uptrace/bun"
)

type Services struct {
	Upload    *upload.Service
	Sessions  *session.Manager
	Dashboard *notify.Dashboard
	Publisher *notify.Publisher
	Links     uplink.Store
}

func NewServices(cfg *config.EnvConfig, db *bun.DB, kvStore kv.Store, gateway blobstore.Gateway, logger *uplog.Logger) (*Services, error) {
	links := uplink.NewBunStore(db)
	authority := uplink.NewAuthority(links)

	sessions := session.NewManager(gateway, logger, session.Config{})

	aggregator := progress.NewAggregator(progress.Config{
		MinInterval:     time.Duration(cfg.ProgressMinIntervalSeconds) * time.Second,
		MinPercentDelta: cfg.ProgressMinPercentDelta,
		Grace:           time.Duration(cfg.ProgressGraceSeconds) * time.Second,
	})

	dashboard := notify.NewDashboard(logger)
	publisher := notify.NewPublisher(logger, dashboard)

	if cfg.TelegramBotToken != "" {
		telegram := notify.NewTelegramClient(notify.TelegramConfig{
			BotToken: cfg.TelegramBotToken,
			ChatID:   cfg.TelegramChatID,
		})
		grace := time.Duration(cfg.ProgressGraceSeconds) * time.Second
		publisher.Register(notify.NewChat(telegram, kvStore, grace, logger))
	}

	uploadSvc := upload.NewService(authority, sessions, gateway, aggregator, publisher, logger, upload.Config{
		MultipartThresholdBytes: cfg.MultipartThresholdBytes,
		StorageAttempts:         cfg.StorageRetryAttempts,
	})

	return &Services{
		Upload:    uploadSvc,
		Sessions:  sessions,
		Dashboard: dashboard,
		Publisher: publisher,
		Links:     links,
	}, nil
}
