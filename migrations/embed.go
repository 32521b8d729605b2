// Package migrations embeds the auth core's SQL migrations into the binary.
//
// Importing this package for its side effect registers the files with the
// database package, so Migrate works without the SQL on disk.
package migrations

import (
	"embed"

	"github.com/cashi/auth-core/internal/infrastructure/database"
)

//go:embed *.sql
var migrationsFS embed.FS

func init() {
	database.MigrationsFS = migrationsFS
	database.MigrationsDir = "."
}
