package services

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/HerbHall/aims/pkg/plugin"
)

// HistoryEntry is one audit record of a change made through the API.
type HistoryEntry struct {
	ID           string          `json:"id"`
	Actor        string          `json:"actor"`
	Role         string          `json:"role,omitempty"`
	Action       string          `json:"action"`
	ResourceType string          `json:"resource_type"`
	ResourceID   string          `json:"resource_id"`
	Metadata     json.RawMessage `json:"metadata,omitempty"`
	Digest       string          `json:"digest,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

// HistoryFilter narrows History.List.
type HistoryFilter struct {
	ResourceType string
	ResourceID   string
	Actor        string
	Since        time.Time
}

// HistoryRepository is an append-only audit log.
type HistoryRepository interface {
	// Append stores e, filling in ID, CreatedAt and Digest when empty.
	Append(ctx context.Context, e *HistoryEntry) error

	// List returns entries newest first.
	List(ctx context.Context, filter HistoryFilter, opts ListOptions) (*ListResult[HistoryEntry], error)
}

// Compile-time interface guard.
var _ HistoryRepository = (*SQLiteHistoryRepository)(nil)

// SQLiteHistoryRepository implements HistoryRepository using SQLite.
type SQLiteHistoryRepository struct {
	db *sql.DB
}

// NewSQLiteHistoryRepository creates a HistoryRepository and runs the
// history migrations.
func NewSQLiteHistoryRepository(ctx context.Context, store plugin.Store) (*SQLiteHistoryRepository, error) {
	if err := store.Migrate(ctx, "history", historyMigrations); err != nil {
		return nil, fmt.Errorf("history migrations: %w", err)
	}
	return &SQLiteHistoryRepository{db: store.DB()}, nil
}

// DigestJSON returns the hex SHA-256 of a metadata payload, or "" when empty.
func DigestJSON(data []byte) string {
	if len(data) == 0 {
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func (r *SQLiteHistoryRepository) Append(ctx context.Context, e *HistoryEntry) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	if e.Digest == "" {
		e.Digest = DigestJSON(e.Metadata)
	}
	meta := string(e.Metadata)
	if meta == "" {
		meta = "{}"
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO history (id, actor, role, action, resource_type, resource_id, metadata, digest, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Actor, e.Role, e.Action, e.ResourceType, e.ResourceID, meta, e.Digest, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("append history: %w", err)
	}
	return nil
}

func (r *SQLiteHistoryRepository) List(ctx context.Context, filter HistoryFilter, opts ListOptions) (*ListResult[HistoryEntry], error) {
	opts = normalizeListOptions(opts)

	where := "1=1"
	var args []any
	if filter.ResourceType != "" {
		where += " AND resource_type = ?"
		args = append(args, filter.ResourceType)
	}
	if filter.ResourceID != "" {
		where += " AND resource_id = ?"
		args = append(args, filter.ResourceID)
	}
	if filter.Actor != "" {
		where += " AND actor = ?"
		args = append(args, filter.Actor)
	}
	if !filter.Since.IsZero() {
		where += " AND created_at >= ?"
		args = append(args, filter.Since.UTC())
	}

	var total int
	//nolint:gosec // where uses parameterized placeholders only
	if err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM history WHERE "+where, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("count history: %w", err)
	}

	orderDir := "DESC"
	if opts.SortOrder == "asc" {
		orderDir = "ASC"
	}
	args = append(args, opts.Limit, opts.Offset)
	//nolint:gosec // where and orderDir are built above, not user input
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, actor, role, action, resource_type, resource_id, metadata, digest, created_at
		FROM history WHERE `+where+` ORDER BY created_at `+orderDir+`, rowid `+orderDir+` LIMIT ? OFFSET ?`,
		args...)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	defer rows.Close()

	items := []HistoryEntry{}
	for rows.Next() {
		var e HistoryEntry
		var meta string
		if err := rows.Scan(&e.ID, &e.Actor, &e.Role, &e.Action, &e.ResourceType,
			&e.ResourceID, &meta, &e.Digest, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		if meta != "" && meta != "{}" {
			e.Metadata = json.RawMessage(meta)
		}
		items = append(items, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}
	return &ListResult[HistoryEntry]{Items: items, Total: total}, nil
}

// historyMigrations defines the schema for the audit log.
var historyMigrations = []plugin.Migration{
	{
		Version:     1,
		Description: "create history table",
		Up: func(tx *sql.Tx) error {
			stmts := []string{
				`CREATE TABLE history (
					id            TEXT PRIMARY KEY,
					actor         TEXT NOT NULL DEFAULT '',
					role          TEXT NOT NULL DEFAULT '',
					action        TEXT NOT NULL,
					resource_type TEXT NOT NULL,
					resource_id   TEXT NOT NULL DEFAULT '',
					metadata      TEXT NOT NULL DEFAULT '{}',
					digest        TEXT NOT NULL DEFAULT '',
					created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
				)`,
				`CREATE INDEX idx_history_resource ON history(resource_type, resource_id)`,
				`CREATE INDEX idx_history_created_at ON history(created_at)`,
			}
			for _, stmt := range stmts {
				if _, err := tx.Exec(stmt); err != nil {
					return err
				}
			}
			return nil
		},
	},
}
