package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/eldtechnologies/sendmessage/internal/metrics"
	"github.com/eldtechnologies/sendmessage/internal/models"
)

// propertyNotifyChannel is the LISTEN/NOTIFY channel for property changes.
const propertyNotifyChannel = "sendmessage_properties"

const schema = `
CREATE TABLE IF NOT EXISTS properties (
	name  TEXT PRIMARY KEY,
	value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS users (
	id         UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	username   TEXT UNIQUE NOT NULL,
	name       TEXT NOT NULL DEFAULT '',
	confirmed  BOOLEAN NOT NULL DEFAULT TRUE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`

// RunMigrations creates the tables used by PostgresStore.
func RunMigrations(ctx context.Context, databaseURL string) error {
	conn, err := pgx.Connect(ctx, databaseURL)
	if err != nil {
		return err
	}
	defer conn.Close(ctx)

	_, err = conn.Exec(ctx, schema)
	return err
}

// PostgresStore handles PostgreSQL database operations.
type PostgresStore struct {
	listeners

	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL store with a connection pool.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

// Close closes the database connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// Ping checks the database connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// GetProperty retrieves a property by name.
func (s *PostgresStore) GetProperty(ctx context.Context, key string) (string, bool, error) {
	start := time.Now()
	defer func() { metrics.PostgresLatency.Observe(time.Since(start).Seconds()) }()

	var value string
	err := s.pool.QueryRow(ctx, `SELECT value FROM properties WHERE name = $1`, key).Scan(&value)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", false, nil
		}
		return "", false, err
	}
	return value, true, nil
}

// SetProperty upserts a property and notifies listeners on commit.
func (s *PostgresStore) SetProperty(ctx context.Context, key, value string) error {
	return s.writeProperty(ctx, propertyEvent{Op: opSet, Key: key, Value: value}, `
		INSERT INTO properties (name, value) VALUES ($1, $2)
		ON CONFLICT (name) DO UPDATE SET value = EXCLUDED.value
	`, key, value)
}

// DeleteProperty removes a property and notifies listeners on commit.
func (s *PostgresStore) DeleteProperty(ctx context.Context, key string) error {
	return s.writeProperty(ctx, propertyEvent{Op: opDelete, Key: key}, `
		DELETE FROM properties WHERE name = $1
	`, key)
}

func (s *PostgresStore) writeProperty(ctx context.Context, ev propertyEvent, query string, args ...any) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, query, args...)
		if err != nil {
			return err
		}
		if !notifies(ev, tag.RowsAffected()) {
			return nil
		}
		_, err = tx.Exec(ctx, `SELECT pg_notify($1, $2)`, propertyNotifyChannel, string(payload))
		return err
	})
}

// notifies reports whether a write announces itself. Deleting a missing
// property changes nothing and stays silent.
func notifies(ev propertyEvent, rowsAffected int64) bool {
	return ev.Op != opDelete || rowsAffected > 0
}

// Watch listens for property notifications on a dedicated connection until
// ctx is cancelled or the connection fails.
func (s *PostgresStore) Watch(ctx context.Context, subscribed func()) error {
	pooled, err := s.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	// The session keeps its LISTEN, so it never goes back to the pool
	conn := pooled.Hijack()
	defer conn.Close(context.Background())

	if _, err := conn.Exec(ctx, "LISTEN "+propertyNotifyChannel); err != nil {
		return err
	}
	subscribed()

	for {
		n, err := conn.WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("wait for notification: %w", err)
		}
		s.handleNotification(n)
	}
}

func (s *PostgresStore) handleNotification(n *pgconn.Notification) {
	if n.Channel != propertyNotifyChannel {
		return
	}
	s.firePayload(n.Payload)
}

// CreateUser creates a new user record.
func (s *PostgresStore) CreateUser(ctx context.Context, username, name string, confirmed bool) (*models.User, error) {
	username, err := validateUsername(username)
	if err != nil {
		return nil, err
	}

	user := &models.User{}
	err = s.pool.QueryRow(ctx, `
		INSERT INTO users (username, name, confirmed)
		VALUES ($1, $2, $3)
		ON CONFLICT (username) DO NOTHING
		RETURNING id, username, name, confirmed, created_at
	`, username, name, confirmed).Scan(
		&user.ID,
		&user.Username,
		&user.Name,
		&user.Confirmed,
		&user.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrUserExists, username)
		}
		return nil, err
	}
	return user, nil
}

// GetUser retrieves a confirmed user by username.
func (s *PostgresStore) GetUser(ctx context.Context, username string) (*models.User, error) {
	username, err := validateUsername(username)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	defer func() { metrics.PostgresLatency.Observe(time.Since(start).Seconds()) }()

	user := &models.User{}
	err = s.pool.QueryRow(ctx, `
		SELECT id, username, name, confirmed, created_at
		FROM users WHERE username = $1 AND confirmed
	`, username).Scan(
		&user.ID,
		&user.Username,
		&user.Name,
		&user.Confirmed,
		&user.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, userNotFound(username)
		}
		return nil, err
	}
	return user, nil
}
