package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/eldtechnologies/sendmessage/internal/crypto"
	"github.com/eldtechnologies/sendmessage/internal/models"
)

// SQLiteStore handles SQLite database operations. A SQLite file has a single
// writer, so change events are delivered in-process after each commit.
type SQLiteStore struct {
	listeners

	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store.
// If dbPath is empty, defaults to "./data/sendmessage.db"
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	if dbPath == "" {
		dbPath = "./data/sendmessage.db"
	}

	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}

	store := &SQLiteStore{db: db}

	if err := store.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

// initSchema creates tables if they don't exist.
func (s *SQLiteStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS properties (
		name TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		username TEXT UNIQUE NOT NULL,
		name TEXT DEFAULT '',
		confirmed INTEGER DEFAULT 1,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() {
	s.db.Close()
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// GetProperty retrieves a property by name.
func (s *SQLiteStore) GetProperty(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM properties WHERE name = ?`, key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, err
	}
	return value, true, nil
}

// SetProperty upserts a property and notifies listeners.
func (s *SQLiteStore) SetProperty(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO properties (name, value) VALUES (?, ?)
		ON CONFLICT(name) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return err
	}

	s.fireSet(key, value)
	return nil
}

// DeleteProperty removes a property and notifies listeners if it existed.
func (s *SQLiteStore) DeleteProperty(ctx context.Context, key string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM properties WHERE name = ?`, key)
	if err != nil {
		return err
	}

	if n, _ := res.RowsAffected(); n > 0 {
		s.fireDeleted(key)
	}
	return nil
}

// CreateUser creates a new user record.
func (s *SQLiteStore) CreateUser(ctx context.Context, username, name string, confirmed bool) (*models.User, error) {
	username, err := validateUsername(username)
	if err != nil {
		return nil, err
	}

	id := crypto.NewUserID().String()
	res, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO users (id, username, name, confirmed, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, id, username, name, confirmed, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, fmt.Errorf("%w: %s", ErrUserExists, username)
	}

	return s.getUser(ctx, username, false)
}

// GetUser retrieves a confirmed user by username.
func (s *SQLiteStore) GetUser(ctx context.Context, username string) (*models.User, error) {
	username, err := validateUsername(username)
	if err != nil {
		return nil, err
	}
	return s.getUser(ctx, username, true)
}

func (s *SQLiteStore) getUser(ctx context.Context, username string, confirmedOnly bool) (*models.User, error) {
	user := &models.User{}
	var idStr string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, username, name, confirmed, created_at
		FROM users WHERE username = ?
	`, username).Scan(
		&idStr,
		&user.Username,
		&user.Name,
		&user.Confirmed,
		&user.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, userNotFound(username)
		}
		return nil, err
	}
	if confirmedOnly && !user.Confirmed {
		return nil, userNotFound(username)
	}

	id, err := uuid.Parse(idStr)
	if err != nil {
		return nil, fmt.Errorf("user %s: %w", username, err)
	}
	user.ID = id
	return user, nil
}
