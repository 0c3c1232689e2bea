// Package migrations registers the coordinator's schema migrations.
package migrations

import "github.com/uptrace/bun/migrate"

// Migrations is the registry consumed by db.Migrate.
var Migrations = migrate.NewMigrations()
