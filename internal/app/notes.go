package app

import (
	"context"
	"strings"
	"time"

	"jotter/api/internal/store"
)

type NoteInput struct {
	Title string   `json:"title"`
	Body  string   `json:"body"`
	Tags  []string `json:"tags"`
}

// ListNotes returns the owner's notes newest-first. An identity with no notes
// gets an empty list, never an error.
func (s *Service) ListNotes(ctx context.Context, ownerID string) (map[string]any, error) {
	notes, err := s.store.ListNotesByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(notes))
	for _, note := range notes {
		items = append(items, noteProjection(note))
	}
	return map[string]any{"notes": items}, nil
}

func (s *Service) CreateNote(ctx context.Context, ownerID string, input NoteInput) (map[string]any, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, validationError("Title is required.")
	}
	note, err := s.store.CreateNoteWithTags(ctx, ownerID, title, input.Body, normalizeTags(input.Tags))
	if err != nil {
		return nil, err
	}
	return noteProjection(note), nil
}

// UpdateNote rewrites title/body and replaces the tag set. A miss on
// (noteID, ownerID) comes back from the store as sql.ErrNoRows, whether the
// note is absent or owned by someone else.
func (s *Service) UpdateNote(ctx context.Context, ownerID string, noteID int64, input NoteInput) (map[string]any, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, validationError("Title is required.")
	}
	note, err := s.store.UpdateNoteWithTags(ctx, noteID, ownerID, title, input.Body, normalizeTags(input.Tags))
	if err != nil {
		return nil, err
	}
	return noteProjection(note), nil
}

func (s *Service) DeleteNote(ctx context.Context, ownerID string, noteID int64) error {
	return s.store.DeleteNote(ctx, noteID, ownerID)
}

// normalizeTags trims, lower-cases, drops empties, and deduplicates while
// keeping first-occurrence order. Only normalized names ever reach storage.
func normalizeTags(raw []string) []string {
	tags := make([]string, 0, len(raw))
	seen := make(map[string]struct{}, len(raw))
	for _, value := range raw {
		tag := strings.ToLower(strings.TrimSpace(value))
		if tag == "" {
			continue
		}
		if _, dup := seen[tag]; dup {
			continue
		}
		seen[tag] = struct{}{}
		tags = append(tags, tag)
	}
	return tags
}

func noteProjection(note store.Note) map[string]any {
	tags := note.Tags
	if tags == nil {
		tags = []string{}
	}
	return map[string]any{
		"id":         note.ID,
		"title":      note.Title,
		"body":       note.Body,
		"created_at": note.CreatedAt.UTC().Format(time.RFC3339),
		"tags":       tags,
	}
}
