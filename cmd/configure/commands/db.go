package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/benvon/membership-api/internal/cache"
	"github.com/benvon/membership-api/internal/config"
	"github.com/benvon/membership-api/internal/database"
	"github.com/benvon/membership-api/internal/invalidation"
)

// openDB connects to DATABASE_URL and applies the schema. The returned func closes it.
func openDB(ctx context.Context) (*database.DB, func(), error) {
	url, err := config.LoadDatabaseURL()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	db, err := database.New(url)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	closeDB := func() {
		if err := db.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to close database: %v\n", err)
		}
	}
	if err := db.Migrate(ctx); err != nil {
		closeDB()
		return nil, nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return db, closeDB, nil
}

// viewPurger returns a notifier that purges the server's cached user views when
// REDIS_URL is reachable, and a no-op notifier otherwise.
func viewPurger(ctx context.Context) (invalidation.Notifier, func()) {
	url := os.Getenv("REDIS_URL")
	if url == "" {
		return invalidation.Nop, func() {}
	}
	client, err := cache.Connect(ctx, url)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: cached user views will expire on their own: %v\n", err)
		return invalidation.Nop, func() {}
	}
	return cache.NewViewCache(client, 0, nil), func() { _ = client.Close() }
}
