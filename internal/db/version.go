package db

import (
	"github.com/persistorai/auditseal/internal/db/migrations"
)

// SchemaVersion returns the number of SQL migration files, which equals the
// current schema version. The readiness endpoint reports it so operators can
// tell which schema a running instance expects.
func SchemaVersion() int {
	entries, err := migrations.FS.ReadDir(".")
	if err != nil {
		return 0
	}

	count := 0
	for _, e := range entries {
		if !e.IsDir() {
			count++
		}
	}

	return count
}
