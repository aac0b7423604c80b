// Package migrations embeds the registry schema into the binary so the
// service can create its tables without SQL files on disk.
package migrations

import (
	"embed"

	"github.com/nerrad567/gray-logic-gateways/internal/infrastructure/database"
)

//go:embed *.sql
var migrationsFS embed.FS

func init() {
	database.MigrationsFS = migrationsFS
	database.MigrationsDir = "."
}
