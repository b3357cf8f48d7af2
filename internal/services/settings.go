package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/HerbHall/aims/pkg/plugin"
)

// Setting is one runtime key/value pair. Structured values are stored as
// JSON text (see GetJSON and SetJSON).
type Setting struct {
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SettingsRepository stores runtime settings.
type SettingsRepository interface {
	Get(ctx context.Context, key string) (*Setting, error)

	// List returns settings whose key starts with prefix, ordered by key.
	// An empty prefix lists everything.
	List(ctx context.Context, prefix string) ([]Setting, error)

	// Set upserts key and returns the stored row.
	Set(ctx context.Context, key, value string) (*Setting, error)

	Delete(ctx context.Context, key string) error
}

var _ SettingsRepository = (*SQLiteSettingsRepository)(nil)

// SQLiteSettingsRepository implements SettingsRepository using SQLite.
type SQLiteSettingsRepository struct {
	db  querier
	now func() time.Time
}

// NewSQLiteSettingsRepository migrates the settings table and returns a
// repository over it.
func NewSQLiteSettingsRepository(ctx context.Context, store plugin.Store) (*SQLiteSettingsRepository, error) {
	if err := store.Migrate(ctx, "settings", settingsMigrations); err != nil {
		return nil, fmt.Errorf("settings migrations: %w", err)
	}
	return &SQLiteSettingsRepository{db: store.DB(), now: time.Now}, nil
}

func (r *SQLiteSettingsRepository) Get(ctx context.Context, key string) (*Setting, error) {
	s, err := scanSetting(r.db.QueryRowContext(ctx,
		`SELECT key, value, updated_at FROM settings WHERE key = ?`, key))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get setting %q: %w", key, err)
	}
	return s, nil
}

func (r *SQLiteSettingsRepository) List(ctx context.Context, prefix string) ([]Setting, error) {
	query := `SELECT key, value, updated_at FROM settings`
	var args []any
	if prefix != "" {
		// substr keeps LIKE wildcards in the prefix literal.
		query += ` WHERE substr(key, 1, ?) = ?`
		args = append(args, len(prefix), prefix)
	}
	rows, err := r.db.QueryContext(ctx, query+` ORDER BY key`, args...)
	if err != nil {
		return nil, fmt.Errorf("list settings: %w", err)
	}
	defer rows.Close()

	out := []Setting{}
	for rows.Next() {
		s, err := scanSetting(rows)
		if err != nil {
			return nil, fmt.Errorf("scan setting row: %w", err)
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

func (r *SQLiteSettingsRepository) Set(ctx context.Context, key, value string) (*Setting, error) {
	if strings.TrimSpace(key) == "" {
		return nil, errors.New("setting key must not be empty")
	}
	s := &Setting{Key: key, Value: value, UpdatedAt: r.now().UTC()}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		s.Key, s.Value, s.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("set setting %q: %w", key, err)
	}
	return s, nil
}

func (r *SQLiteSettingsRepository) Delete(ctx context.Context, key string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM settings WHERE key = ?`, key)
	if err != nil {
		return fmt.Errorf("delete setting %q: %w", key, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanSetting(row rowScanner) (*Setting, error) {
	var s Setting
	if err := row.Scan(&s.Key, &s.Value, &s.UpdatedAt); err != nil {
		return nil, err
	}
	return &s, nil
}

// GetJSON decodes the JSON value stored under key into v.
func GetJSON(ctx context.Context, repo SettingsRepository, key string, v any) error {
	s, err := repo.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(s.Value), v); err != nil {
		return fmt.Errorf("decode setting %q: %w", key, err)
	}
	return nil
}

// SetJSON stores v under key as JSON.
func SetJSON(ctx context.Context, repo SettingsRepository, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode setting %q: %w", key, err)
	}
	_, err = repo.Set(ctx, key, string(raw))
	return err
}

var settingsMigrations = []plugin.Migration{
	{
		Version:     1,
		Description: "create settings table",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
				CREATE TABLE settings (
					key        TEXT PRIMARY KEY,
					value      TEXT NOT NULL,
					updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
				)`)
			return err
		},
	},
}
