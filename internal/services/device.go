package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/HerbHall/aims/internal/store"
	"github.com/HerbHall/aims/pkg/models"
	"github.com/HerbHall/aims/pkg/plugin"
)

// DeviceFilter controls which devices are returned by List.
type DeviceFilter struct {
	Status     string // Filter by MaintenanceStatus value.
	DeviceType string // Filter by DeviceType, case-insensitive.
	Condition  string // Filter by Condition value.
	AssignedTo string // Filter by employee ID.
	Search     string // Search tag, brand, model or serial number.
}

// DeviceRepository provides document-style access to devices in the
// inventory and deployed collections. A tag is unique across both.
type DeviceRepository interface {
	// Get returns a single device by tag from the given collection.
	Get(ctx context.Context, coll models.Collection, tag string) (*models.Device, error)

	// Locate returns the collection currently holding tag.
	Locate(ctx context.Context, tag string) (models.Collection, error)

	// List returns a filtered, paginated list of devices in a collection.
	List(ctx context.Context, coll models.Collection, filter DeviceFilter, opts ListOptions) (*ListResult[models.Device], error)

	// All returns every device in a collection ordered by tag.
	All(ctx context.Context, coll models.Collection) ([]models.Device, error)

	// Create inserts a new device. The tag must not exist in either collection.
	// Zero DateAdded and UpdatedAt are stamped with the wall clock; set
	// values are stored as given.
	Create(ctx context.Context, coll models.Collection, device *models.Device) error

	// Update replaces the stored document for device.Tag. UpdatedAt is
	// stored as given unless zero.
	Update(ctx context.Context, coll models.Collection, device *models.Device) error

	// Delete removes a device by tag.
	Delete(ctx context.Context, coll models.Collection, tag string) error

	// CountByStatus tallies the persisted status field of a collection.
	// Statuses with no devices are reported as zero.
	CountByStatus(ctx context.Context, coll models.Collection) (map[models.MaintenanceStatus]int, error)

	// Atomic runs fn against a repository bound to a single transaction.
	// Nothing fn writes is visible unless fn returns nil.
	Atomic(ctx context.Context, fn func(repo DeviceRepository) error) error
}

// Compile-time interface guard.
var _ DeviceRepository = (*SQLiteDeviceRepository)(nil)

// SQLiteDeviceRepository implements DeviceRepository using SQLite. Each
// device is stored as a JSON document with its indexed fields duplicated
// into columns.
type SQLiteDeviceRepository struct {
	db *sql.DB
	q  querier
	tx bool
}

// NewSQLiteDeviceRepository creates a DeviceRepository and runs the
// devices migrations.
func NewSQLiteDeviceRepository(ctx context.Context, s plugin.Store) (*SQLiteDeviceRepository, error) {
	if err := s.Migrate(ctx, "devices", deviceMigrations); err != nil {
		return nil, fmt.Errorf("devices migrations: %w", err)
	}
	return &SQLiteDeviceRepository{db: s.DB(), q: s.DB()}, nil
}

func (r *SQLiteDeviceRepository) Atomic(ctx context.Context, fn func(repo DeviceRepository) error) error {
	if r.tx {
		return fn(r)
	}
	return store.RunTx(ctx, r.db, func(tx *sql.Tx) error {
		return fn(&SQLiteDeviceRepository{db: r.db, q: tx, tx: true})
	})
}

func (r *SQLiteDeviceRepository) Get(ctx context.Context, coll models.Collection, tag string) (*models.Device, error) {
	var doc string
	err := r.q.QueryRowContext(ctx,
		`SELECT doc FROM devices WHERE collection = ? AND tag = ?`, string(coll), tag,
	).Scan(&doc)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get device %q: %w", tag, err)
	}
	return decodeDevice(doc)
}

func (r *SQLiteDeviceRepository) Locate(ctx context.Context, tag string) (models.Collection, error) {
	var coll string
	err := r.q.QueryRowContext(ctx,
		`SELECT collection FROM devices WHERE tag = ?`, tag,
	).Scan(&coll)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("locate device %q: %w", tag, err)
	}
	return models.Collection(coll), nil
}

func (r *SQLiteDeviceRepository) List(ctx context.Context, coll models.Collection, filter DeviceFilter, opts ListOptions) (*ListResult[models.Device], error) {
	opts = normalizeListOptions(opts)

	sortCol := "updated_at"
	allowedSorts := map[string]string{
		"tag":         "tag",
		"status":      "status",
		"device_type": "device_type",
		"condition":   "condition",
		"date_added":  "date_added",
		"updated_at":  "updated_at",
	}
	if opts.SortBy != "" {
		if col, ok := allowedSorts[opts.SortBy]; ok {
			sortCol = col
		}
	}

	where := "collection = ?"
	args := []any{string(coll)}

	if filter.Status != "" {
		where += " AND status = ?"
		args = append(args, filter.Status)
	}
	if filter.DeviceType != "" {
		where += " AND device_type = ? COLLATE NOCASE"
		args = append(args, filter.DeviceType)
	}
	if filter.Condition != "" {
		where += " AND condition = ?"
		args = append(args, filter.Condition)
	}
	if filter.AssignedTo != "" {
		where += " AND assigned_to = ?"
		args = append(args, filter.AssignedTo)
	}
	if filter.Search != "" {
		where += ` AND (tag LIKE ? OR json_extract(doc, '$.brand') LIKE ?
			OR json_extract(doc, '$.model') LIKE ? OR json_extract(doc, '$.serial_number') LIKE ?)`
		pattern := "%" + filter.Search + "%"
		args = append(args, pattern, pattern, pattern, pattern)
	}

	var total int
	//nolint:gosec // where uses parameterized placeholders only
	err := r.q.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM devices WHERE "+where, args...,
	).Scan(&total)
	if err != nil {
		return nil, fmt.Errorf("count devices: %w", err)
	}

	queryArgs := make([]any, 0, len(args)+2)
	queryArgs = append(queryArgs, args...)
	queryArgs = append(queryArgs, opts.Limit, opts.Offset)

	orderDir := "DESC"
	if opts.SortOrder == "asc" {
		orderDir = "ASC"
	}

	//nolint:gosec // where and sortCol are validated above, not user input
	query := fmt.Sprintf(
		"SELECT doc FROM devices WHERE %s ORDER BY %s %s, tag ASC LIMIT ? OFFSET ?",
		where, sortCol, orderDir,
	)
	devices, err := r.queryDevices(ctx, query, queryArgs...)
	if err != nil {
		return nil, err
	}
	return &ListResult[models.Device]{Items: devices, Total: total}, nil
}

func (r *SQLiteDeviceRepository) All(ctx context.Context, coll models.Collection) ([]models.Device, error) {
	return r.queryDevices(ctx,
		`SELECT doc FROM devices WHERE collection = ? ORDER BY tag`, string(coll))
}

func (r *SQLiteDeviceRepository) Create(ctx context.Context, coll models.Collection, device *models.Device) error {
	if device.Tag == "" {
		return errors.New("create device: tag is required")
	}
	now := time.Now().UTC()
	if device.DateAdded.IsZero() {
		device.DateAdded = now
	}
	if device.UpdatedAt.IsZero() {
		device.UpdatedAt = now
	}

	doc, err := json.Marshal(device)
	if err != nil {
		return fmt.Errorf("encode device %q: %w", device.Tag, err)
	}

	_, err = r.q.ExecContext(ctx, `
		INSERT INTO devices (
			tag, collection, device_type, status, condition, assigned_to,
			date_added, updated_at, doc
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		device.Tag, string(coll), string(device.DeviceType), string(device.Status),
		string(device.Condition), device.AssignedTo,
		device.DateAdded.UTC(), device.UpdatedAt, string(doc),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("create device: %w", err)
	}
	return nil
}

func (r *SQLiteDeviceRepository) Update(ctx context.Context, coll models.Collection, device *models.Device) error {
	if device.UpdatedAt.IsZero() {
		device.UpdatedAt = time.Now().UTC()
	}

	doc, err := json.Marshal(device)
	if err != nil {
		return fmt.Errorf("encode device %q: %w", device.Tag, err)
	}

	res, err := r.q.ExecContext(ctx, `
		UPDATE devices SET
			device_type = ?, status = ?, condition = ?, assigned_to = ?,
			date_added = ?, updated_at = ?, doc = ?
		WHERE collection = ? AND tag = ?`,
		string(device.DeviceType), string(device.Status), string(device.Condition), device.AssignedTo,
		device.DateAdded.UTC(), device.UpdatedAt, string(doc),
		string(coll), device.Tag,
	)
	if err != nil {
		return fmt.Errorf("update device: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *SQLiteDeviceRepository) Delete(ctx context.Context, coll models.Collection, tag string) error {
	res, err := r.q.ExecContext(ctx,
		`DELETE FROM devices WHERE collection = ? AND tag = ?`, string(coll), tag)
	if err != nil {
		return fmt.Errorf("delete device: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *SQLiteDeviceRepository) CountByStatus(ctx context.Context, coll models.Collection) (map[models.MaintenanceStatus]int, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM devices WHERE collection = ? GROUP BY status`, string(coll))
	if err != nil {
		return nil, fmt.Errorf("count devices by status: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.MaintenanceStatus]int, len(models.Statuses))
	for _, s := range models.Statuses {
		counts[s] = 0
	}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan status count: %w", err)
		}
		counts[models.MaintenanceStatus(status)] += n
	}
	return counts, rows.Err()
}

func (r *SQLiteDeviceRepository) queryDevices(ctx context.Context, query string, args ...any) ([]models.Device, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	defer rows.Close()

	devices := []models.Device{}
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("scan device row: %w", err)
		}
		d, err := decodeDevice(doc)
		if err != nil {
			return nil, err
		}
		devices = append(devices, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate devices: %w", err)
	}
	return devices, nil
}

func decodeDevice(doc string) (*models.Device, error) {
	var d models.Device
	if err := json.Unmarshal([]byte(doc), &d); err != nil {
		return nil, fmt.Errorf("decode device document: %w", err)
	}
	return &d, nil
}

// deviceMigrations defines the database schema for devices.
var deviceMigrations = []plugin.Migration{
	{
		Version:     1,
		Description: "create devices table",
		Up: func(tx *sql.Tx) error {
			stmts := []string{
				`CREATE TABLE devices (
					tag         TEXT PRIMARY KEY,
					collection  TEXT NOT NULL CHECK (collection IN ('inventory', 'deployed')),
					device_type TEXT NOT NULL DEFAULT '',
					status      TEXT NOT NULL DEFAULT '',
					condition   TEXT NOT NULL DEFAULT '',
					assigned_to TEXT NOT NULL DEFAULT '',
					date_added  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
					updated_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
					doc         TEXT NOT NULL
				)`,
				`CREATE INDEX idx_devices_collection_status ON devices(collection, status)`,
				`CREATE INDEX idx_devices_assigned_to ON devices(assigned_to)`,
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
