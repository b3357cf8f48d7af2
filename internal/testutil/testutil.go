// Package testutil provides shared test helpers for AIMS packages: an
// in-memory store, a settable clock, a recording event bus and device
// fixtures.
package testutil

import (
	"testing"

	"go.uber.org/zap"

	"github.com/HerbHall/aims/internal/store"
)

// Logger returns a development logger. Tests that do not care about log
// output should use zap.NewNop instead.
func Logger() *zap.Logger {
	l, err := zap.NewDevelopment()
	if err != nil {
		panic("testutil.Logger: " + err.Error())
	}
	return l
}

// NewStore opens a private in-memory database that is closed with the test.
// Every module migrates its own tables on Init, so the store starts empty.
func NewStore(t testing.TB) *store.SQLiteStore {
	t.Helper()
	s, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("open test store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}
