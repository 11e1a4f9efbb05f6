// Package testutil provides fixtures shared by package tests.
package testutil

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"cctracker/internal/storage/sqlstore"
)

// NewSQLiteDB returns a private in-memory database with the schema applied.
func NewSQLiteDB(t testing.TB) *sqlx.DB {
	t.Helper()

	db, err := sqlx.Open("sqlite", ":memory:")
	require.NoError(t, err)
	// every new connection to :memory: is a fresh database
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, sqlstore.InitSQLite(context.Background(), db))
	return db
}

func Ptr[T any](v T) *T {
	return &v
}

func DiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
