// Package testing provides testing utilities and helpers for the depgraph project.
package testing

import (
	"path/filepath"
	"testing"

	"github.com/aristath/depgraph/internal/database"
)

// NewTestDB creates a file-backed SQLite database in a test temp directory with the market data
// schema applied. It returns the database and its path; the connection is closed when the test
// ends.
func NewTestDB(t *testing.T, name string) (*database.DB, string) {
	t.Helper()

	// Each test gets its own file so parallel tests stay isolated
	path := filepath.Join(t.TempDir(), name+".db")
	db, err := database.New(database.Config{
		Path:    path,
		Profile: database.ProfileSnapshot,
		Name:    name,
	})
	if err != nil {
		t.Fatalf("Failed to create test database %s: %v", name, err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			// Log error but don't fail test
			t.Logf("Warning: Failed to close test database %s: %v", name, err)
		}
	})

	if err := db.Migrate(); err != nil {
		t.Fatalf("Failed to migrate test database %s: %v", name, err)
	}
	return db, path
}

// NewTestDBWithSchema creates a test database and executes schema instead of the market data
// schema.
func NewTestDBWithSchema(t *testing.T, name string, schema string) *database.DB {
	t.Helper()

	path := filepath.Join(t.TempDir(), name+".db")
	db, err := database.New(database.Config{
		Path:    path,
		Profile: database.ProfileStandard,
		Name:    name,
	})
	if err != nil {
		t.Fatalf("Failed to create test database %s: %v", name, err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Logf("Warning: Failed to close test database %s: %v", name, err)
		}
	})

	if schema != "" {
		if _, err := db.Conn().Exec(schema); err != nil {
			t.Fatalf("Failed to execute custom schema for test database %s: %v", name, err)
		}
	}
	return db
}
