package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

var ErrNotFound = errors.New("snapshot not found")

// maxVersionRetries bounds how often Create retries after losing a race for
// the next version number.
const maxVersionRetries = 3

// Snapshot is one saved version of a session's document.
type Snapshot struct {
	ID        string          `json:"id"`
	SessionID string          `json:"sessionId"`
	Version   int             `json:"version"`
	Document  json.RawMessage `json:"document"`
	CreatedAt time.Time       `json:"createdAt"`
}

// Repository stores document snapshots. Versions count up from 1 per
// session.
type Repository interface {
	Create(ctx context.Context, sessionID string, doc json.RawMessage) (*Snapshot, error)
	Latest(ctx context.Context, sessionID string) (*Snapshot, error)
	Close() error
}

// Kind names the backend a database URL selects.
type Kind string

const (
	KindMemory   Kind = "memory"
	KindPostgres Kind = "postgres"
	KindSQLite   Kind = "sqlite"
)

// KindOf picks the backend for databaseURL: postgres URLs, sqlite file
// paths, or memory when empty.
func KindOf(databaseURL string) (Kind, error) {
	switch {
	case databaseURL == "":
		return KindMemory, nil
	case strings.HasPrefix(databaseURL, "postgres://"), strings.HasPrefix(databaseURL, "postgresql://"):
		return KindPostgres, nil
	case strings.HasPrefix(databaseURL, "file:"), strings.HasSuffix(databaseURL, ".db"):
		return KindSQLite, nil
	default:
		return "", fmt.Errorf("unsupported database url %q", databaseURL)
	}
}

// sqlitePath strips the file: scheme and query from a sqlite url.
func sqlitePath(databaseURL string) string {
	p := strings.TrimPrefix(databaseURL, "file:")
	if i := strings.IndexByte(p, '?'); i >= 0 {
		p = p[:i]
	}
	return p
}
