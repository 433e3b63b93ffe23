package store

import (
	"context"
	"database/sql"
	"testing"

	"github.com/gaa1973/memo-platform/internal/database"
	"github.com/gaa1973/memo-platform/internal/model"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func mustCreateUser(t *testing.T, us *UserStore, email string) *model.User {
	t.Helper()
	u, err := us.Create(context.Background(), email, "", "hash")
	if err != nil {
		t.Fatalf("create user %s: %v", email, err)
	}
	return u
}
