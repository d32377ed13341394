package store

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
)

type recordingListener struct {
	mu     sync.Mutex
	events []propertyEvent
}

func (l *recordingListener) PropertySet(key, value string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, propertyEvent{Op: opSet, Key: key, Value: value})
}

func (l *recordingListener) PropertyDeleted(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, propertyEvent{Op: opDelete, Key: key})
}

func (l *recordingListener) all() []propertyEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]propertyEvent(nil), l.events...)
}

type testStore interface {
	PropertyStore
	Directory
}

func newSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(s.Close)
	return s
}

func forEachStore(t *testing.T, fn func(t *testing.T, s testStore)) {
	t.Run("memory", func(t *testing.T) { fn(t, NewMemoryStore()) })
	t.Run("sqlite", func(t *testing.T) { fn(t, newSQLiteStore(t)) })
}

func TestPropertyRoundTrip(t *testing.T) {
	forEachStore(t, func(t *testing.T, s testStore) {
		ctx := context.Background()

		if _, ok, err := s.GetProperty(ctx, "k"); err != nil || ok {
			t.Fatalf("expected missing key, got ok=%v err=%v", ok, err)
		}
		if err := s.SetProperty(ctx, "k", "v1"); err != nil {
			t.Fatal(err)
		}
		if err := s.SetProperty(ctx, "k", "v2"); err != nil {
			t.Fatal(err)
		}
		v, ok, err := s.GetProperty(ctx, "k")
		if err != nil || !ok || v != "v2" {
			t.Fatalf("expected v2, got %q ok=%v err=%v", v, ok, err)
		}
		if err := s.DeleteProperty(ctx, "k"); err != nil {
			t.Fatal(err)
		}
		if _, ok, _ := s.GetProperty(ctx, "k"); ok {
			t.Fatal("expected key to be deleted")
		}
	})
}

func TestPropertyEvents(t *testing.T) {
	forEachStore(t, func(t *testing.T, s testStore) {
		ctx := context.Background()
		l := &recordingListener{}
		s.AddListener(l)
		s.AddListener(l) // duplicate registration is ignored

		s.SetProperty(ctx, "a", "1")
		s.DeleteProperty(ctx, "a")
		s.DeleteProperty(ctx, "missing")

		s.RemoveListener(l)
		s.SetProperty(ctx, "a", "2")

		want := []propertyEvent{
			{Op: opSet, Key: "a", Value: "1"},
			{Op: opDelete, Key: "a"},
		}
		got := l.all()
		if len(got) != len(want) {
			t.Fatalf("expected %d events, got %d: %+v", len(want), len(got), got)
		}
		for i := range want {
			if got[i] != want[i] {
				t.Fatalf("event %d: expected %+v, got %+v", i, want[i], got[i])
			}
		}
	})
}

func TestDirectory(t *testing.T) {
	forEachStore(t, func(t *testing.T, s testStore) {
		ctx := context.Background()

		alice, err := s.CreateUser(ctx, "Alice", "Alice A.", true)
		if err != nil {
			t.Fatal(err)
		}
		if alice.Username != "alice" {
			t.Fatalf("expected normalized username, got %q", alice.Username)
		}
		if _, err := s.CreateUser(ctx, "alice", "", true); !errors.Is(err, ErrUserExists) {
			t.Fatalf("expected ErrUserExists, got %v", err)
		}
		if _, err := s.CreateUser(ctx, "pending", "", false); err != nil {
			t.Fatal(err)
		}

		got, err := s.GetUser(ctx, " ALICE ")
		if err != nil {
			t.Fatal(err)
		}
		if got.ID != alice.ID {
			t.Fatalf("expected id %s, got %s", alice.ID, got.ID)
		}

		for _, name := range []string{"nobody", "pending", "", "bob@remote.example"} {
			if _, err := s.GetUser(ctx, name); !errors.Is(err, ErrUserNotFound) {
				t.Fatalf("GetUser(%q): expected ErrUserNotFound, got %v", name, err)
			}
		}
	})
}
