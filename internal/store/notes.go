package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
)

// ListNotesByOwner returns every note owned by ownerID, newest first, with
// its tag names attached. A single join keeps note order authoritative; tags
// within a note come back alphabetical.
func (s *PostgresStore) ListNotesByOwner(ctx context.Context, ownerID string) ([]Note, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT n.id, n.owner_id, n.title, n.body, n.created_at, t.tag_name
		FROM notes n
		LEFT JOIN notes_tags nt ON nt.note_id = n.id
		LEFT JOIN tags t ON t.id = nt.tag_id
		WHERE n.owner_id = $1
		ORDER BY n.created_at DESC, n.id DESC, t.tag_name
	`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list notes: %w", err)
	}
	defer rows.Close()

	items := make([]Note, 0)
	index := make(map[int64]int)
	for rows.Next() {
		var (
			note    Note
			tagName sql.NullString
		)
		if err := rows.Scan(&note.ID, &note.OwnerID, &note.Title, &note.Body, &note.CreatedAt, &tagName); err != nil {
			return nil, fmt.Errorf("scan note: %w", err)
		}
		pos, seen := index[note.ID]
		if !seen {
			note.Tags = []string{}
			index[note.ID] = len(items)
			items = append(items, note)
			pos = index[note.ID]
		}
		if tagName.Valid {
			items[pos].Tags = append(items[pos].Tags, tagName.String)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate notes: %w", err)
	}
	return items, nil
}

// CreateNoteWithTags inserts the note row and its tag associations as one
// transaction. tagNames must already be normalized and deduplicated.
func (s *PostgresStore) CreateNoteWithTags(ctx context.Context, ownerID, title, body string, tagNames []string) (Note, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Note{}, fmt.Errorf("begin create note tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	note := Note{OwnerID: ownerID, Title: title, Body: body}
	err = tx.QueryRowContext(ctx, `
		INSERT INTO notes (owner_id, title, body)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`, ownerID, title, body).Scan(&note.ID, &note.CreatedAt)
	if err != nil {
		return Note{}, fmt.Errorf("insert note: %w", err)
	}

	if err := insertTagAssociations(ctx, tx, note.ID, tagNames); err != nil {
		return Note{}, err
	}

	if err := tx.Commit(); err != nil {
		return Note{}, fmt.Errorf("commit create note tx: %w", err)
	}
	note.Tags = sortedTags(tagNames)
	return note, nil
}

// UpdateNoteWithTags rewrites title/body and replaces the full association
// set, all inside one transaction. A (noteID, ownerID) miss reports
// sql.ErrNoRows without distinguishing "absent" from "not yours".
func (s *PostgresStore) UpdateNoteWithTags(ctx context.Context, noteID int64, ownerID, title, body string, tagNames []string) (Note, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Note{}, fmt.Errorf("begin update note tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	note := Note{ID: noteID, OwnerID: ownerID, Title: title, Body: body}
	err = tx.QueryRowContext(ctx, `
		UPDATE notes
		SET title=$3, body=$4
		WHERE id=$1 AND owner_id=$2
		RETURNING created_at
	`, noteID, ownerID, title, body).Scan(&note.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Note{}, sql.ErrNoRows
	}
	if err != nil {
		return Note{}, fmt.Errorf("update note: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM notes_tags WHERE note_id=$1`, noteID); err != nil {
		return Note{}, fmt.Errorf("clear note tags: %w", err)
	}
	if err := insertTagAssociations(ctx, tx, noteID, tagNames); err != nil {
		return Note{}, err
	}

	if err := tx.Commit(); err != nil {
		return Note{}, fmt.Errorf("commit update note tx: %w", err)
	}
	note.Tags = sortedTags(tagNames)
	return note, nil
}

// DeleteNote removes the note only when ownerID matches; associations go with
// it via ON DELETE CASCADE. Zero affected rows surfaces as sql.ErrNoRows.
func (s *PostgresStore) DeleteNote(ctx context.Context, noteID int64, ownerID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM notes WHERE id=$1 AND owner_id=$2`, noteID, ownerID)
	if err != nil {
		return fmt.Errorf("delete note: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete note rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// insertTagAssociations upserts each tag row and links it to the note. The
// DO UPDATE no-op makes RETURNING yield the winning row's id even when a
// concurrent request inserts the same name first; the uniqueness constraint
// on tag_name is the only serialization needed.
func insertTagAssociations(ctx context.Context, tx *sql.Tx, noteID int64, tagNames []string) error {
	for _, tagName := range tagNames {
		var tagID int64
		err := tx.QueryRowContext(ctx, `
			INSERT INTO tags (tag_name)
			VALUES ($1)
			ON CONFLICT (tag_name) DO UPDATE SET tag_name=EXCLUDED.tag_name
			RETURNING id
		`, tagName).Scan(&tagID)
		if err != nil {
			return fmt.Errorf("upsert tag %q: %w", tagName, err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO notes_tags (note_id, tag_id)
			VALUES ($1, $2)
			ON CONFLICT (note_id, tag_id) DO NOTHING
		`, noteID, tagID); err != nil {
			return fmt.Errorf("link tag %q: %w", tagName, err)
		}
	}
	return nil
}

func sortedTags(tagNames []string) []string {
	tags := make([]string, len(tagNames))
	copy(tags, tagNames)
	sort.Strings(tags)
	return tags
}
