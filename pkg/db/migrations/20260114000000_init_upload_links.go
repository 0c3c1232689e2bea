package migrations

import (
	"context"
	"fmt"

	"github.com/chaos-dotcom/colourstream-sub003/pkg/db/models"
	"github.com/uptrace/bun"
)

func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		fmt.Print(" [up migration] ")

		// Create upload schema
		_, err := db.NewRaw("CREATE SCHEMA IF NOT EXISTS upload").Exec(ctx)
		if err != nil {
			return err
		}

		// Create links table from struct
		_, err = db.NewCreateTable().
			Model((*models.UploadLink)(nil)).
			IfNotExists().
			Exec(ctx)
		if err != nil {
			return err
		}

		return nil
	}, func(ctx context.Context, db *bun.DB) error {
		fmt.Print(" [down migration] ")

		_, err := db.NewDropTable().Model((*models.UploadLink)(nil)).IfExists().Exec(ctx)
		if err != nil {
			return err
		}

		_, err = db.NewRaw("DROP SCHEMA IF EXISTS upload").Exec(ctx)
		if err != nil {
			return err
		}

		return nil
	})
}
