package conversation

import (
	"context"
	"fmt"
	"strings"
)

// NewPersister picks a snapshot backend by driver name: memory, file, sqlite
// or postgres. An empty driver selects postgres when a database URL is set,
// otherwise files.
func NewPersister(ctx context.Context, driver, dir, sqlitePath, databaseURL string) (Persister, error) {
	driver = strings.ToLower(strings.TrimSpace(driver))
	if driver == "" {
		driver = "file"
		if strings.TrimSpace(databaseURL) != "" {
			driver = "postgres"
		}
	}
	switch driver {
	case "memory":
		return NewMemoryPersister(), nil
	case "file":
		return NewFilePersister(dir)
	case "sqlite":
		return NewSQLitePersister(ctx, sqlitePath)
	case "postgres":
		if strings.TrimSpace(databaseURL) == "" {
			return nil, fmt.Errorf("postgres persistence requires a database URL")
		}
		return NewPostgresPersister(ctx, databaseURL)
	default:
		return nil, fmt.Errorf("unknown persistence driver %q", driver)
	}
}
