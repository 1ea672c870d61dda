package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/document-archive-api/internal/dto"
	"github.com/noah-isme/document-archive-api/internal/models"
	appErrors "github.com/noah-isme/document-archive-api/pkg/errors"
)

type noteStoreStub struct {
	notes   []models.Note
	deleted []int64
}

func (s *noteStoreStub) Create(ctx context.Context, note *models.Note) error {
	note.ID = int64(len(s.notes) + 1)
	s.notes = append(s.notes, *note)
	return nil
}

func (s *noteStoreStub) ListByDocument(ctx context.Context, documentID int64) ([]models.Note, error) {
	out := make([]models.Note, 0)
	for _, n := range s.notes {
		if n.DocumentID == documentID {
			out = append(out, n)
		}
	}
	return out, nil
}

func (s *noteStoreStub) SoftDelete(ctx context.Context, documentID, noteID int64, deletedAt time.Time) error {
	for _, n := range s.notes {
		if n.ID == noteID && n.DocumentID == documentID {
			s.deleted = append(s.deleted, noteID)
			return nil
		}
	}
	return sql.ErrNoRows
}

func TestNoteServiceAddAndList(t *testing.T) {
	repo := newDocumentRepoStub()
	repo.docs[1] = &models.Document{ID: 1}
	notes := &noteStoreStub{}
	svc := NewNoteService(notes, repo, nil, nil)

	user := int64(77)
	note, err := svc.Add(context.Background(), 1, &user, dto.CreateNoteRequest{Note: "  check signature page "})
	require.NoError(t, err)
	assert.Equal(t, "check signature page", note.Note)
	assert.Equal(t, &user, note.UserID)

	list, err := svc.List(context.Background(), 1)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	_, err = svc.Add(context.Background(), 1, nil, dto.CreateNoteRequest{Note: "   "})
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	_, err = svc.Add(context.Background(), 2, nil, dto.CreateNoteRequest{Note: "orphan"})
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestNoteServiceDelete(t *testing.T) {
	notes := &noteStoreStub{notes: []models.Note{{ID: 1, DocumentID: 3, Note: "x"}}}
	svc := NewNoteService(notes, newDocumentRepoStub(), nil, nil)

	require.NoError(t, svc.Delete(context.Background(), 3, 1))
	assert.Equal(t, []int64{1}, notes.deleted)

	err := svc.Delete(context.Background(), 4, 1)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}
