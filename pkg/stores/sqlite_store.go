package stores

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	// SQLite driver
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db   *sql.DB
	path string
	cfg  Config
}

// Config holds SQLite store configuration
type Config struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// NewSQLiteStore creates a new SQLite store instance
func NewSQLiteStore(cfg Config) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	// Set defaults
	if cfg.MaxOpenConns == 0 {
		cfg.MaxOpenConns = 25
	}
	if cfg.MaxIdleConns == 0 {
		cfg.MaxIdleConns = 5
	}
	if cfg.ConnMaxLifetime == 0 {
		cfg.ConnMaxLifetime = 5 * time.Minute
	}

	return &SQLiteStore{
		path: cfg.Path,
		cfg:  cfg,
	}, nil
}

// Init initializes the database connection and enables WAL mode.
func (s *SQLiteStore) Init(ctx context.Context) error {
	// Open database with SQLite-specific connection parameters
	dsn := fmt.Sprintf("%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL&_txlock=immediate", s.path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(s.cfg.MaxOpenConns)
	db.SetMaxIdleConns(s.cfg.MaxIdleConns)
	db.SetConnMaxLifetime(s.cfg.ConnMaxLifetime)

	// Verify connection
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	// Ensure foreign keys are enabled (connection-level setting)
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	s.db = db
	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Migrate runs database migrations.
func (s *SQLiteStore) Migrate(_ context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	// Create migration source from embedded FS
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	// Create database driver
	driver, err := sqlite3.WithInstance(s.db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}

	// Create migration instance
	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	// Run migrations
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// CreateServer creates a new server record
func (s *SQLiteStore) CreateServer(ctx context.Context, server *Server) error {
	query := `
		INSERT INTO servers (id, name, address, port, user, auth_method, key_path, labels, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		server.ID,
		server.Name,
		server.Address,
		server.Port,
		server.User,
		server.AuthMethod,
		server.KeyPath,
		server.Labels,
		server.CreatedAt,
		server.UpdatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	return nil
}

// GetServer retrieves a server by name
func (s *SQLiteStore) GetServer(ctx context.Context, name string) (*Server, error) {
	query := `
		SELECT id, name, address, port, user, auth_method, key_path, labels, created_at, updated_at
		FROM servers
		WHERE name = ?
	`

	server := &Server{}
	err := s.db.QueryRowContext(ctx, query, name).Scan(
		&server.ID,
		&server.Name,
		&server.Address,
		&server.Port,
		&server.User,
		&server.AuthMethod,
		&server.KeyPath,
		&server.Labels,
		&server.CreatedAt,
		&server.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("server not found: %s", name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get server: %w", err)
	}

	return server, nil
}

// ListServers lists all registered servers ordered by name
func (s *SQLiteStore) ListServers(ctx context.Context) ([]*Server, error) {
	query := `
		SELECT id, name, address, port, user, auth_method, key_path, labels, created_at, updated_at
		FROM servers
		ORDER BY name ASC
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list servers: %w", err)
	}
	defer rows.Close()

	servers := []*Server{}
	for rows.Next() {
		server := &Server{}
		err := rows.Scan(
			&server.ID,
			&server.Name,
			&server.Address,
			&server.Port,
			&server.User,
			&server.AuthMethod,
			&server.KeyPath,
			&server.Labels,
			&server.CreatedAt,
			&server.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan server: %w", err)
		}
		servers = append(servers, server)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating servers: %w", err)
	}

	return servers, nil
}

// UpdateServer updates a server record by name
func (s *SQLiteStore) UpdateServer(ctx context.Context, server *Server) error {
	query := `
		UPDATE servers
		SET address = ?, port = ?, user = ?, auth_method = ?, key_path = ?, labels = ?, updated_at = ?
		WHERE name = ?
	`

	result, err := s.db.ExecContext(ctx, query,
		server.Address,
		server.Port,
		server.User,
		server.AuthMethod,
		server.KeyPath,
		server.Labels,
		time.Now(),
		server.Name,
	)
	if err != nil {
		return fmt.Errorf("failed to update server: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rows == 0 {
		return fmt.Errorf("server not found: %s", server.Name)
	}

	return nil
}

// DeleteServer deletes a server by name
func (s *SQLiteStore) DeleteServer(ctx context.Context, name string) error {
	query := `DELETE FROM servers WHERE name = ?`

	result, err := s.db.ExecContext(ctx, query, name)
	if err != nil {
		return fmt.Errorf("failed to delete server: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rows == 0 {
		return fmt.Errorf("server not found: %s", name)
	}

	return nil
}

// AppendOperation appends an entry to the operation log
func (s *SQLiteStore) AppendOperation(ctx context.Context, entry *OperationEntry) error {
	query := `
		INSERT INTO operations (server, kind, deployment, outcome, message, timestamp)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}

	result, err := s.db.ExecContext(ctx, query,
		entry.Server,
		entry.Kind,
		entry.Deployment,
		entry.Outcome,
		entry.Message,
		entry.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to append operation: %w", err)
	}

	id, err := result.LastInsertId()
	if err == nil {
		entry.ID = id
	}

	return nil
}

// ListOperations lists operation log entries, most recent first.
// If server is non-nil, only entries for that server are returned.
func (s *SQLiteStore) ListOperations(ctx context.Context, server *string, limit, offset int) ([]*OperationEntry, error) {
	query := `
		SELECT id, server, kind, deployment, outcome, message, timestamp
		FROM operations
	`
	args := []interface{}{}

	if server != nil {
		query += ` WHERE server = ?`
		args = append(args, *server)
	}

	query += ` ORDER BY timestamp DESC, id DESC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list operations: %w", err)
	}
	defer rows.Close()

	entries := []*OperationEntry{}
	for rows.Next() {
		entry := &OperationEntry{}
		err := rows.Scan(
			&entry.ID,
			&entry.Server,
			&entry.Kind,
			&entry.Deployment,
			&entry.Outcome,
			&entry.Message,
			&entry.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan operation: %w", err)
		}
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating operations: %w", err)
	}

	return entries, nil
}

// HealthCheck verifies the database connection is alive
func (s *SQLiteStore) HealthCheck(ctx context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}
	return s.db.PingContext(ctx)
}
