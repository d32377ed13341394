package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/eldtechnologies/sendmessage/internal/models"
)

var (
	ErrUserNotFound = errors.New("user not found")
	ErrUserExists   = errors.New("user already exists")
)

// PropertyListener receives change notifications from a PropertyStore.
// Notifications cover every write to the store, including writes made by
// the listener itself.
type PropertyListener interface {
	PropertySet(key, value string)
	PropertyDeleted(key string)
}

// PropertyStore is a durable key/value store with change notifications.
// RedisStore, PostgresStore, SQLiteStore and MemoryStore implement it.
type PropertyStore interface {
	Ping(ctx context.Context) error

	// GetProperty returns the stored value and whether the key exists.
	GetProperty(ctx context.Context, key string) (string, bool, error)
	SetProperty(ctx context.Context, key, value string) error
	DeleteProperty(ctx context.Context, key string) error

	AddListener(l PropertyListener)
	RemoveListener(l PropertyListener)
}

// Watcher is implemented by stores whose notifications come from the
// backend rather than from in-process writes. Watch calls subscribed once the
// backend confirms the subscription, then blocks until ctx is cancelled or the
// feed fails. Notifications sent before subscribed runs are not delivered.
type Watcher interface {
	Watch(ctx context.Context, subscribed func()) error
}

// Directory resolves usernames to confirmed local accounts.
// PostgresStore, SQLiteStore and MemoryStore implement it.
type Directory interface {
	Ping(ctx context.Context) error

	// GetUser returns the confirmed user or an error wrapping ErrUserNotFound.
	GetUser(ctx context.Context, username string) (*models.User, error)
	CreateUser(ctx context.Context, username, name string, confirmed bool) (*models.User, error)
}

// NormalizeUsername lowercases and trims a username the way the directory
// stores it.
func NormalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

// UserNotFoundError reports a username the directory could not resolve.
// It matches ErrUserNotFound with errors.Is.
type UserNotFoundError struct {
	Username string
	Reason   string
}

func (e *UserNotFoundError) Error() string {
	return fmt.Sprintf("%s: %s", ErrUserNotFound, e.Reason)
}

func (e *UserNotFoundError) Is(target error) bool {
	return target == ErrUserNotFound
}

func validateUsername(username string) (string, error) {
	username = NormalizeUsername(username)
	if username == "" {
		return "", &UserNotFoundError{Reason: "username is empty"}
	}
	if strings.ContainsAny(username, "@/ ") {
		return "", &UserNotFoundError{Username: username, Reason: fmt.Sprintf("%q is not a local username", username)}
	}
	return username, nil
}

func userNotFound(username string) error {
	return &UserNotFoundError{Username: username, Reason: "no confirmed user named " + username}
}
