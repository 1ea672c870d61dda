package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/document-archive-api/internal/models"
)

// NoteRepository persists document notes.
type NoteRepository struct {
	db *sqlx.DB
}

// NewNoteRepository constructs the repository.
func NewNoteRepository(db *sqlx.DB) *NoteRepository {
	return &NoteRepository{db: db}
}

// Create inserts a note and fills in its id.
func (r *NoteRepository) Create(ctx context.Context, note *models.Note) error {
	if note.Created.IsZero() {
		note.Created = time.Now().UTC()
	}
	const query = `INSERT INTO notes (document_id, note, user_id, created) VALUES ($1, $2, $3, $4) RETURNING id`
	if err := r.db.QueryRowxContext(ctx, query, note.DocumentID, note.Note, note.UserID, note.Created).Scan(&note.ID); err != nil {
		return fmt.Errorf("create note: %w", err)
	}
	return nil
}

// ListByDocument returns active notes of a document, oldest first.
func (r *NoteRepository) ListByDocument(ctx context.Context, documentID int64) ([]models.Note, error) {
	const query = `SELECT id, document_id, note, user_id, created, deleted_at FROM notes
	WHERE document_id = $1 AND deleted_at IS NULL ORDER BY created ASC, id ASC`
	notes := make([]models.Note, 0)
	if err := r.db.SelectContext(ctx, &notes, query, documentID); err != nil {
		return nil, fmt.Errorf("list notes: %w", err)
	}
	return notes, nil
}

// SoftDelete tombstones a note belonging to documentID.
func (r *NoteRepository) SoftDelete(ctx context.Context, documentID, noteID int64, deletedAt time.Time) error {
	const query = `UPDATE notes SET deleted_at = $3 WHERE id = $2 AND document_id = $1 AND deleted_at IS NULL`
	res, err := r.db.ExecContext(ctx, query, documentID, noteID, deletedAt)
	if err != nil {
		return fmt.Errorf("delete note: %w", err)
	}
	return expectOneRow(res, "delete note")
}
