package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func openIntegrationStore(t *testing.T) *PostgresStore {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	db, err := Connect(context.Background(), testDatabaseURL(), filepath.Join("..", "..", "db", "migrations"))
	if err != nil {
		t.Fatalf("connect database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewPostgresStore(db)
}

// createIntegrationUser inserts a throwaway owner; deleting the user row on
// cleanup cascades through notes and notes_tags.
func createIntegrationUser(ctx context.Context, t *testing.T, s *PostgresStore, label string) User {
	t.Helper()
	id := fmt.Sprintf("usr_%s_%d", label, time.Now().UnixNano())
	user := User{ID: id, Email: id + "@example.com", DisplayName: "Integration", PasswordHash: "not-a-real-hash"}
	if err := s.CreateUser(ctx, user); err != nil {
		t.Fatalf("create user: %v", err)
	}
	t.Cleanup(func() {
		_, _ = s.db.ExecContext(context.Background(), `DELETE FROM users WHERE id=$1`, id)
	})
	return user
}

func TestUpdateReplacesTagSetExactly(t *testing.T) {
	s := openIntegrationStore(t)
	ctx := context.Background()
	owner := createIntegrationUser(ctx, t, s, "replace")

	note, err := s.CreateNoteWithTags(ctx, owner.ID, "Groceries", "milk, eggs", []string{"errands", "food"})
	if err != nil {
		t.Fatalf("create note: %v", err)
	}
	if !reflect.DeepEqual(note.Tags, []string{"errands", "food"}) {
		t.Fatalf("unexpected tags after create: %v", note.Tags)
	}

	updated, err := s.UpdateNoteWithTags(ctx, note.ID, owner.ID, "Groceries", "milk, eggs, bread", []string{"food", "urgent"})
	if err != nil {
		t.Fatalf("update note: %v", err)
	}
	if !reflect.DeepEqual(updated.Tags, []string{"food", "urgent"}) {
		t.Fatalf("unexpected tags after update: %v", updated.Tags)
	}

	notes, err := s.ListNotesByOwner(ctx, owner.ID)
	if err != nil {
		t.Fatalf("list notes: %v", err)
	}
	if len(notes) != 1 {
		t.Fatalf("expected 1 note, got %d", len(notes))
	}
	if !reflect.DeepEqual(notes[0].Tags, []string{"food", "urgent"}) {
		t.Fatalf("expected old tag set fully replaced, got %v", notes[0].Tags)
	}

	var links int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM notes_tags WHERE note_id=$1`, note.ID).Scan(&links); err != nil {
		t.Fatalf("count associations: %v", err)
	}
	if links != 2 {
		t.Fatalf("expected exactly 2 associations, got %d", links)
	}
}

func TestListNotesNewestFirstWithFoldedTags(t *testing.T) {
	s := openIntegrationStore(t)
	ctx := context.Background()
	owner := createIntegrationUser(ctx, t, s, "list")

	first, err := s.CreateNoteWithTags(ctx, owner.ID, "First", "", nil)
	if err != nil {
		t.Fatalf("create first note: %v", err)
	}
	second, err := s.CreateNoteWithTags(ctx, owner.ID, "Second", "", []string{"beta", "alpha"})
	if err != nil {
		t.Fatalf("create second note: %v", err)
	}
	third, err := s.CreateNoteWithTags(ctx, owner.ID, "Third", "", []string{"alpha"})
	if err != nil {
		t.Fatalf("create third note: %v", err)
	}

	notes, err := s.ListNotesByOwner(ctx, owner.ID)
	if err != nil {
		t.Fatalf("list notes: %v", err)
	}
	if len(notes) != 3 {
		t.Fatalf("expected 3 notes, got %d", len(notes))
	}
	if notes[0].ID != third.ID || notes[1].ID != second.ID || notes[2].ID != first.ID {
		t.Fatalf("expected newest-first order %d,%d,%d, got %d,%d,%d",
			third.ID, second.ID, first.ID, notes[0].ID, notes[1].ID, notes[2].ID)
	}
	if !reflect.DeepEqual(notes[1].Tags, []string{"alpha", "beta"}) {
		t.Fatalf("expected multi-tag note folded into one row with sorted tags, got %v", notes[1].Tags)
	}
	if notes[2].Tags == nil || len(notes[2].Tags) != 0 {
		t.Fatalf("expected empty non-nil tag list for tagless note, got %v", notes[2].Tags)
	}
}

func TestCrossTenantAccessLooksLikeMissingNote(t *testing.T) {
	s := openIntegrationStore(t)
	ctx := context.Background()
	owner := createIntegrationUser(ctx, t, s, "owner")
	other := createIntegrationUser(ctx, t, s, "other")

	note, err := s.CreateNoteWithTags(ctx, owner.ID, "Private", "mine", []string{"secret"})
	if err != nil {
		t.Fatalf("create note: %v", err)
	}

	if _, err := s.UpdateNoteWithTags(ctx, note.ID, other.ID, "Hijacked", "", []string{"stolen"}); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected sql.ErrNoRows for cross-tenant update, got %v", err)
	}
	if err := s.DeleteNote(ctx, note.ID, other.ID); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected sql.ErrNoRows for cross-tenant delete, got %v", err)
	}

	// The failed update must not have touched the note or its tag set.
	notes, err := s.ListNotesByOwner(ctx, owner.ID)
	if err != nil {
		t.Fatalf("list notes: %v", err)
	}
	if len(notes) != 1 || notes[0].Title != "Private" {
		t.Fatalf("expected note untouched, got %+v", notes)
	}
	if !reflect.DeepEqual(notes[0].Tags, []string{"secret"}) {
		t.Fatalf("expected tag set untouched, got %v", notes[0].Tags)
	}

	if err := s.DeleteNote(ctx, note.ID, owner.ID); err != nil {
		t.Fatalf("owner delete should succeed: %v", err)
	}
}

// testDatabaseURL reads TEST_DATABASE_URL, falling back to the standard
// Postgres environment variables for CI.
func testDatabaseURL() string {
	if url := os.Getenv("TEST_DATABASE_URL"); url != "" {
		return url
	}
	host := envOr("POSTGRES_HOST", "localhost")
	port := envOr("POSTGRES_PORT", "5432")
	user := envOr("POSTGRES_USER", "jotter")
	pass := envOr("POSTGRES_PASSWORD", "jotter")
	dbname := envOr("POSTGRES_DB", "jotter_test")
	return "postgres://" + user + ":" + pass + "@" + host + ":" + port + "/" + dbname + "?sslmode=disable"
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
