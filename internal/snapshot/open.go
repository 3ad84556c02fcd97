package snapshot

import (
	"context"
	"log/slog"

	"github.com/inamate/nestbox/internal/db"
)

// Open connects the repository selected by databaseURL.
func Open(ctx context.Context, databaseURL string) (Repository, error) {
	kind, err := KindOf(databaseURL)
	if err != nil {
		return nil, err
	}

	switch kind {
	case KindPostgres:
		pool, err := db.NewPool(ctx, databaseURL)
		if err != nil {
			return nil, err
		}
		slog.Info("snapshot store", "kind", kind)
		return NewPostgres(pool), nil
	case KindSQLite:
		path := sqlitePath(databaseURL)
		sqlDB, err := db.OpenSQLite(ctx, path)
		if err != nil {
			return nil, err
		}
		slog.Info("snapshot store", "kind", kind, "path", path)
		return NewSQLite(sqlDB), nil
	default:
		slog.Warn("snapshot store is in memory, documents are lost on restart")
		return NewMemory(), nil
	}
}
