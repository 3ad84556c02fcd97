package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"

	"github.com/inamate/nestbox/internal/db"
)

func newSQLite(t *testing.T) Repository {
	t.Helper()
	sqlDB, err := db.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "nested", "snapshots.db"))
	if err != nil {
		t.Fatalf("OpenSQLite() error = %v", err)
	}
	repo := NewSQLite(sqlDB)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestRepository(t *testing.T) {
	backends := map[string]func(t *testing.T) Repository{
		"memory": func(t *testing.T) Repository { return NewMemory() },
		"sqlite": newSQLite,
	}

	for name, open := range backends {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			repo := open(t)

			if _, err := repo.Latest(ctx, "sess_missing"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("Latest() on empty session error = %v, want ErrNotFound", err)
			}

			first, err := repo.Create(ctx, "sess_a", json.RawMessage(`{"rectangles":{},"order":[]}`))
			if err != nil {
				t.Fatalf("Create() error = %v", err)
			}
			if first.Version != 1 {
				t.Errorf("first Version = %d, want 1", first.Version)
			}

			second, err := repo.Create(ctx, "sess_a", json.RawMessage(`{"rectangles":{"r1":{"id":"r1"}},"order":["r1"]}`))
			if err != nil {
				t.Fatalf("Create() error = %v", err)
			}
			if second.Version != 2 {
				t.Errorf("second Version = %d, want 2", second.Version)
			}

			other, err := repo.Create(ctx, "sess_b", json.RawMessage(`{}`))
			if err != nil {
				t.Fatalf("Create() error = %v", err)
			}
			if other.Version != 1 {
				t.Errorf("other session Version = %d, want 1", other.Version)
			}

			latest, err := repo.Latest(ctx, "sess_a")
			if err != nil {
				t.Fatalf("Latest() error = %v", err)
			}
			if latest.ID != second.ID || latest.Version != 2 {
				t.Errorf("Latest() = %s v%d, want %s v2", latest.ID, latest.Version, second.ID)
			}
			if string(latest.Document) != string(second.Document) {
				t.Errorf("Latest().Document = %s, want %s", latest.Document, second.Document)
			}
			if latest.CreatedAt.IsZero() {
				t.Error("Latest().CreatedAt is zero")
			}
		})
	}
}

func TestKindOf(t *testing.T) {
	tests := map[string]struct {
		url     string
		want    Kind
		wantErr bool
	}{
		"empty":        {url: "", want: KindMemory},
		"postgres":     {url: "postgres://u:p@localhost/nestbox", want: KindPostgres},
		"postgresql":   {url: "postgresql://localhost/nestbox", want: KindPostgres},
		"file url":     {url: "file:data/nestbox.db?mode=rwc", want: KindSQLite},
		"bare db path": {url: "data/nestbox.db", want: KindSQLite},
		"unknown":      {url: "mysql://localhost/db", wantErr: true},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			got, err := KindOf(tt.url)
			if (err != nil) != tt.wantErr {
				t.Fatalf("KindOf(%q) error = %v, wantErr %v", tt.url, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("KindOf(%q) = %q, want %q", tt.url, got, tt.want)
			}
		})
	}
}

func TestSQLitePath(t *testing.T) {
	if got := sqlitePath("file:data/nestbox.db?mode=rwc"); got != "data/nestbox.db" {
		t.Errorf("sqlitePath() = %q, want data/nestbox.db", got)
	}
	if got := sqlitePath("nestbox.db"); got != "nestbox.db" {
		t.Errorf("sqlitePath() = %q, want nestbox.db", got)
	}
}

func TestOpen_Memory(t *testing.T) {
	repo, err := Open(context.Background(), "")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer repo.Close()
	if _, ok := repo.(*Memory); !ok {
		t.Errorf("Open(\"\") = %T, want *Memory", repo)
	}
}
