package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/eldtechnologies/sendmessage/internal/crypto"
	"github.com/eldtechnologies/sendmessage/internal/models"
)

// MemoryStore keeps properties and users in process memory. Events are
// delivered synchronously after each write.
type MemoryStore struct {
	listeners

	mu         sync.RWMutex
	properties map[string]string
	users      map[string]*models.User
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		properties: make(map[string]string),
		users:      make(map[string]*models.User),
	}
}

// Ping always succeeds.
func (s *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

// GetProperty returns a property value.
func (s *MemoryStore) GetProperty(ctx context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.properties[key]
	return v, ok, nil
}

// SetProperty stores a property and notifies listeners.
func (s *MemoryStore) SetProperty(ctx context.Context, key, value string) error {
	s.mu.Lock()
	s.properties[key] = value
	s.mu.Unlock()

	s.fireSet(key, value)
	return nil
}

// DeleteProperty removes a property and notifies listeners if it existed.
func (s *MemoryStore) DeleteProperty(ctx context.Context, key string) error {
	s.mu.Lock()
	_, existed := s.properties[key]
	delete(s.properties, key)
	s.mu.Unlock()

	if existed {
		s.fireDeleted(key)
	}
	return nil
}

// CreateUser adds a user to the directory.
func (s *MemoryStore) CreateUser(ctx context.Context, username, name string, confirmed bool) (*models.User, error) {
	username, err := validateUsername(username)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[username]; ok {
		return nil, fmt.Errorf("%w: %s", ErrUserExists, username)
	}
	user := &models.User{
		ID:        crypto.NewUserID(),
		Username:  username,
		Name:      name,
		Confirmed: confirmed,
		CreatedAt: time.Now().UTC(),
	}
	s.users[username] = user

	cp := *user
	return &cp, nil
}

// GetUser returns a confirmed user.
func (s *MemoryStore) GetUser(ctx context.Context, username string) (*models.User, error) {
	username, err := validateUsername(username)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.users[username]
	if !ok || !user.Confirmed {
		return nil, userNotFound(username)
	}
	cp := *user
	return &cp, nil
}
