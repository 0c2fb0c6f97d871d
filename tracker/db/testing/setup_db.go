// Package testing allows for spinning up a real tracker database for unit
// tests.
package testing

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/derad-network/derad/tracker/db"
	"github.com/derad-network/derad/tracker/db/sqlite"
)

// SetupDB instantiates and returns a database backed by a fresh sqlite file
// that is removed with the test's temp directory.
func SetupDB(t testing.TB) db.Database {
	s, err := sqlite.NewStore(context.Background(), filepath.Join(t.TempDir(), "tracker.sqlite"))
	if err != nil {
		t.Fatalf("could not open test database: %v", err)
	}
	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("could not close test database: %v", err)
		}
	})
	return s
}
