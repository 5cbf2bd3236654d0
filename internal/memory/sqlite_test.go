package memory

import (
	"context"
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSQLiteStore_AddAndGetAll(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	recs, err := store.Add(ctx, "u1", "prefers jazz radio", map[string]any{"category": "preference"})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if len(recs) != 1 || recs[0].ID == "" {
		t.Fatalf("Add returned %+v", recs)
	}

	if _, err := store.Add(ctx, "u1", "allergic to peanuts", nil); err != nil {
		t.Fatalf("Add: %v", err)
	}
	// Other users' records stay invisible.
	if _, err := store.Add(ctx, "u2", "lives in Austin", nil); err != nil {
		t.Fatalf("Add: %v", err)
	}

	all, err := store.GetAll(ctx, "u1")
	if err != nil {
		t.Fatalf("GetAll: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("GetAll = %d records, want 2", len(all))
	}
	if all[0].Memory != "prefers jazz radio" {
		t.Errorf("first record = %q, want oldest first", all[0].Memory)
	}
	if cat := all[0].Metadata["category"]; cat != "preference" {
		t.Errorf("metadata category = %v", cat)
	}
}

func TestSQLiteStore_Search(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if _, err := store.Add(ctx, "u1", "takes the coastal road home", nil); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if _, err := store.Add(ctx, "u1", "dentist appointments on Mondays", nil); err != nil {
		t.Fatalf("Add: %v", err)
	}

	out, err := store.Search(ctx, "u1", "coastal road")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(out) == 0 || out[0].Memory != "takes the coastal road home" {
		t.Fatalf("Search = %+v", out)
	}
	if out[0].Score <= rankFloor {
		t.Errorf("score = %v, want above floor", out[0].Score)
	}
}

func TestSQLiteStore_Validation(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if _, err := store.Add(ctx, "", "text", nil); err == nil {
		t.Error("Add with empty user id should fail")
	}
	if _, err := store.Add(ctx, "u1", "", nil); err == nil {
		t.Error("Add with empty text should fail")
	}
	if _, err := store.GetAll(ctx, ""); err == nil {
		t.Error("GetAll with empty user id should fail")
	}
}
