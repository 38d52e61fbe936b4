// Package migrations embeds SQL migration files into the binary so the
// snapshot store can be created without SQL files on disk.
package migrations

import (
	"embed"

	"github.com/nerrad567/carewatch-core/internal/infrastructure/database"
)

//go:embed *.sql
var migrationsFS embed.FS

func init() {
	database.MigrationsFS = migrationsFS
	database.MigrationsDir = "."
}
