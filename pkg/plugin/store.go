package plugin

import (
	"context"
	"database/sql"
)

// Store is the shared persistence handle given to modules.
type Store interface {
	// DB returns the underlying database for direct queries.
	DB() *sql.DB

	// Tx executes fn in a transaction, committing when fn returns nil.
	Tx(ctx context.Context, fn func(tx *sql.Tx) error) error

	// Migrate applies the named module's pending migrations in order.
	Migrate(ctx context.Context, module string, migrations []Migration) error
}

// Migration is a single versioned schema change owned by a module.
type Migration struct {
	Version     int
	Description string
	Up          func(tx *sql.Tx) error
}
