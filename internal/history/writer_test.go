package history

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/solvemate/solvemate-api/internal/analyzer"
	"github.com/solvemate/solvemate-api/internal/logger"
)

// memStore is an in-memory Store for tests.
type memStore struct {
	mu        sync.Mutex
	items     map[string][]Item // ownerID -> items
	appendErr error
}

func newMemStore() *memStore {
	return &memStore{items: make(map[string][]Item)}
}

func (m *memStore) List(ctx context.Context, ownerID string) ([]Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Item, len(m.items[ownerID]))
	copy(out, m.items[ownerID])
	return out, nil
}

func (m *memStore) Append(ctx context.Context, ownerID string, item Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.appendErr != nil {
		return m.appendErr
	}
	m.items[ownerID] = append(m.items[ownerID], item)
	return nil
}

func (m *memStore) DeleteMany(ctx context.Context, ownerID string, ids []string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	idSet := make(map[string]bool, len(ids))
	for _, id := range ids {
		idSet[id] = true
	}

	var kept []Item
	var deleted int64
	for _, item := range m.items[ownerID] {
		if idSet[item.ID] {
			deleted++
			continue
		}
		kept = append(kept, item)
	}
	m.items[ownerID] = kept
	return deleted, nil
}

func testItem(id string) Item {
	return Item{
		ID:              id,
		Timestamp:       time.Now(),
		ImageURL:        "data:image/jpeg;base64,/9j/4AAQ",
		UserDescription: "my PC won't turn on",
		Result: analyzer.AnalysisResult{
			Summary:           "PC does not power on",
			LikelyCause:       "PSU failure",
			SolutionSteps:     []string{"check outlet"},
			AlternativeCauses: []string{},
			SearchQueries:     []string{},
			Warnings:          []string{},
		},
	}
}

func testLogger() *logger.Logger {
	return logger.New(logger.Config{Level: slog.LevelError})
}

func TestWriterAppendsInBackground(t *testing.T) {
	store := newMemStore()
	w := NewWriter(store, 2, 16, time.Second, testLogger())

	if err := w.AppendAsync("user-1", testItem("a")); err != nil {
		t.Fatalf("AppendAsync: %v", err)
	}
	if err := w.AppendAsync("user-1", testItem("b")); err != nil {
		t.Fatalf("AppendAsync: %v", err)
	}

	// Close drains the queue.
	w.Close()

	items, _ := store.List(context.Background(), "user-1")
	if len(items) != 2 {
		t.Fatalf("expected 2 items persisted, got %d", len(items))
	}
}

func TestWriterFailureDoesNotPropagate(t *testing.T) {
	store := newMemStore()
	store.appendErr = errors.New("db down")
	w := NewWriter(store, 1, 16, time.Second, testLogger())

	// Queueing succeeds even though the store will fail: the caller is
	// never exposed to persistence errors.
	if err := w.AppendAsync("user-1", testItem("a")); err != nil {
		t.Fatalf("AppendAsync should not surface store errors: %v", err)
	}
	w.Close()

	items, _ := store.List(context.Background(), "user-1")
	if len(items) != 0 {
		t.Fatalf("expected no items, got %d", len(items))
	}
}

func TestWriterRejectsAfterClose(t *testing.T) {
	w := NewWriter(newMemStore(), 1, 1, time.Second, testLogger())
	w.Close()

	if err := w.AppendAsync("user-1", testItem("a")); err == nil {
		t.Fatalf("expected error after Close")
	}
}

func TestDeleteManyIsIdempotent(t *testing.T) {
	store := newMemStore()
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		if err := store.Append(ctx, "user-1", testItem(id)); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	deleted, err := store.DeleteMany(ctx, "user-1", []string{"a", "c"})
	if err != nil {
		t.Fatalf("DeleteMany: %v", err)
	}
	if deleted != 2 {
		t.Errorf("expected 2 deleted, got %d", deleted)
	}

	items, _ := store.List(ctx, "user-1")
	if len(items) != 1 || items[0].ID != "b" {
		t.Errorf("expected only item b to remain, got %+v", items)
	}

	// Deleting the same set again is a harmless no-op.
	deleted, err = store.DeleteMany(ctx, "user-1", []string{"a", "c"})
	if err != nil {
		t.Fatalf("DeleteMany repeat: %v", err)
	}
	if deleted != 0 {
		t.Errorf("expected 0 deleted on repeat, got %d", deleted)
	}
}
