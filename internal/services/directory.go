package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/HerbHall/aims/pkg/models"
	"github.com/HerbHall/aims/pkg/plugin"
)

// EmployeeRepository provides CRUD access to employees.
type EmployeeRepository interface {
	Get(ctx context.Context, id string) (*models.Employee, error)
	// List returns employees matching search (name, email or department),
	// ordered by last name.
	List(ctx context.Context, search string, opts ListOptions) (*ListResult[models.Employee], error)
	Create(ctx context.Context, e *models.Employee) error
	Update(ctx context.Context, e *models.Employee) error
	Delete(ctx context.Context, id string) error
}

// ClientRepository provides CRUD access to clients.
type ClientRepository interface {
	Get(ctx context.Context, id string) (*models.Client, error)
	List(ctx context.Context) ([]models.Client, error)
	Create(ctx context.Context, c *models.Client) error
	Update(ctx context.Context, c *models.Client) error
	Delete(ctx context.Context, id string) error
}

// Compile-time interface guards.
var (
	_ EmployeeRepository = (*SQLiteEmployeeRepository)(nil)
	_ ClientRepository   = (*SQLiteClientRepository)(nil)
)

// SQLiteEmployeeRepository implements EmployeeRepository using SQLite.
type SQLiteEmployeeRepository struct {
	db *sql.DB
}

// NewSQLiteEmployeeRepository creates an EmployeeRepository and runs the
// directory migrations.
func NewSQLiteEmployeeRepository(ctx context.Context, store plugin.Store) (*SQLiteEmployeeRepository, error) {
	if err := store.Migrate(ctx, "directory", directoryMigrations); err != nil {
		return nil, fmt.Errorf("directory migrations: %w", err)
	}
	return &SQLiteEmployeeRepository{db: store.DB()}, nil
}

const employeeColumns = `id, first_name, last_name, email, position, department, client_id, created_at`

func (r *SQLiteEmployeeRepository) Get(ctx context.Context, id string) (*models.Employee, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+employeeColumns+` FROM employees WHERE id = ?`, id)
	e, err := scanEmployee(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get employee %q: %w", id, err)
	}
	return e, nil
}

func (r *SQLiteEmployeeRepository) List(ctx context.Context, search string, opts ListOptions) (*ListResult[models.Employee], error) {
	opts = normalizeListOptions(opts)

	where := "1=1"
	var args []any
	if search != "" {
		where = `(first_name LIKE ? OR last_name LIKE ? OR email LIKE ? OR department LIKE ?)`
		pattern := "%" + search + "%"
		args = append(args, pattern, pattern, pattern, pattern)
	}

	var total int
	//nolint:gosec // where uses parameterized placeholders only
	if err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM employees WHERE "+where, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("count employees: %w", err)
	}

	args = append(args, opts.Limit, opts.Offset)
	//nolint:gosec // where uses parameterized placeholders only
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+employeeColumns+` FROM employees WHERE `+where+
			` ORDER BY last_name, first_name LIMIT ? OFFSET ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("list employees: %w", err)
	}
	defer rows.Close()

	items := []models.Employee{}
	for rows.Next() {
		e, err := scanEmployee(rows)
		if err != nil {
			return nil, fmt.Errorf("scan employee row: %w", err)
		}
		items = append(items, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate employees: %w", err)
	}
	return &ListResult[models.Employee]{Items: items, Total: total}, nil
}

func (r *SQLiteEmployeeRepository) Create(ctx context.Context, e *models.Employee) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO employees (`+employeeColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.FirstName, e.LastName, e.Email, e.Position, e.Department, e.ClientID, e.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("create employee: %w", err)
	}
	return nil
}

func (r *SQLiteEmployeeRepository) Update(ctx context.Context, e *models.Employee) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE employees SET first_name = ?, last_name = ?, email = ?, position = ?,
			department = ?, client_id = ?
		WHERE id = ?`,
		e.FirstName, e.LastName, e.Email, e.Position, e.Department, e.ClientID, e.ID,
	)
	if err != nil {
		return fmt.Errorf("update employee: %w", err)
	}
	return expectOne(res)
}

func (r *SQLiteEmployeeRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM employees WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete employee: %w", err)
	}
	return expectOne(res)
}

func scanEmployee(row rowScanner) (*models.Employee, error) {
	var e models.Employee
	err := row.Scan(&e.ID, &e.FirstName, &e.LastName, &e.Email, &e.Position,
		&e.Department, &e.ClientID, &e.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// SQLiteClientRepository implements ClientRepository using SQLite.
type SQLiteClientRepository struct {
	db *sql.DB
}

// NewSQLiteClientRepository creates a ClientRepository and runs the
// directory migrations.
func NewSQLiteClientRepository(ctx context.Context, store plugin.Store) (*SQLiteClientRepository, error) {
	if err := store.Migrate(ctx, "directory", directoryMigrations); err != nil {
		return nil, fmt.Errorf("directory migrations: %w", err)
	}
	return &SQLiteClientRepository{db: store.DB()}, nil
}

const clientColumns = `id, name, contact_person, email, phone, address, created_at`

func (r *SQLiteClientRepository) Get(ctx context.Context, id string) (*models.Client, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+clientColumns+` FROM clients WHERE id = ?`, id)
	c, err := scanClient(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get client %q: %w", id, err)
	}
	return c, nil
}

func (r *SQLiteClientRepository) List(ctx context.Context) ([]models.Client, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+clientColumns+` FROM clients ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list clients: %w", err)
	}
	defer rows.Close()

	clients := []models.Client{}
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, fmt.Errorf("scan client row: %w", err)
		}
		clients = append(clients, *c)
	}
	return clients, rows.Err()
}

func (r *SQLiteClientRepository) Create(ctx context.Context, c *models.Client) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO clients (`+clientColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.Name, c.ContactPerson, c.Email, c.Phone, c.Address, c.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("create client: %w", err)
	}
	return nil
}

func (r *SQLiteClientRepository) Update(ctx context.Context, c *models.Client) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE clients SET name = ?, contact_person = ?, email = ?, phone = ?, address = ?
		WHERE id = ?`,
		c.Name, c.ContactPerson, c.Email, c.Phone, c.Address, c.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("update client: %w", err)
	}
	return expectOne(res)
}

func (r *SQLiteClientRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM clients WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete client: %w", err)
	}
	return expectOne(res)
}

func scanClient(row rowScanner) (*models.Client, error) {
	var c models.Client
	err := row.Scan(&c.ID, &c.Name, &c.ContactPerson, &c.Email, &c.Phone, &c.Address, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// directoryMigrations defines the schema for employees and clients.
var directoryMigrations = []plugin.Migration{
	{
		Version:     1,
		Description: "create employees and clients tables",
		Up: func(tx *sql.Tx) error {
			stmts := []string{
				`CREATE TABLE clients (
					id             TEXT PRIMARY KEY,
					name           TEXT NOT NULL UNIQUE COLLATE NOCASE,
					contact_person TEXT NOT NULL DEFAULT '',
					email          TEXT NOT NULL DEFAULT '',
					phone          TEXT NOT NULL DEFAULT '',
					address        TEXT NOT NULL DEFAULT '',
					created_at     DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
				)`,
				`CREATE TABLE employees (
					id         TEXT PRIMARY KEY,
					first_name TEXT NOT NULL,
					last_name  TEXT NOT NULL DEFAULT '',
					email      TEXT NOT NULL DEFAULT '',
					position   TEXT NOT NULL DEFAULT '',
					department TEXT NOT NULL DEFAULT '',
					client_id  TEXT NOT NULL DEFAULT '',
					created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
				)`,
				`CREATE INDEX idx_employees_last_name ON employees(last_name)`,
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
