package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/document-archive-api/internal/dto"
	"github.com/noah-isme/document-archive-api/internal/models"
	appErrors "github.com/noah-isme/document-archive-api/pkg/errors"
)

type noteStore interface {
	Create(ctx context.Context, note *models.Note) error
	ListByDocument(ctx context.Context, documentID int64) ([]models.Note, error)
	SoftDelete(ctx context.Context, documentID, noteID int64, deletedAt time.Time) error
}

type documentGetter interface {
	GetByID(ctx context.Context, id int64) (*models.Document, error)
}

// NoteService manages annotations on documents.
type NoteService struct {
	notes     noteStore
	documents documentGetter
	validator *validator.Validate
	logger    *zap.Logger
}

// NewNoteService constructs the service.
func NewNoteService(notes noteStore, documents documentGetter, validate *validator.Validate, logger *zap.Logger) *NoteService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NoteService{notes: notes, documents: documents, validator: validate, logger: logger}
}

// List returns the notes of a document oldest first.
func (s *NoteService) List(ctx context.Context, documentID int64) ([]models.Note, error) {
	if err := s.ensureDocument(ctx, documentID); err != nil {
		return nil, err
	}
	notes, err := s.notes.ListByDocument(ctx, documentID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load notes")
	}
	return notes, nil
}

// Add attaches a note written by userID, which may be nil for anonymous callers.
func (s *NoteService) Add(ctx context.Context, documentID int64, userID *int64, req dto.CreateNoteRequest) (*models.Note, error) {
	req.Note = strings.TrimSpace(req.Note)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid note payload")
	}
	if err := s.ensureDocument(ctx, documentID); err != nil {
		return nil, err
	}

	note := &models.Note{DocumentID: documentID, Note: req.Note, UserID: userID, Created: time.Now().UTC()}
	if err := s.notes.Create(ctx, note); err != nil {
		return nil, appErrors.Internal(err, "failed to create note")
	}
	return note, nil
}

// Delete removes a note from a document.
func (s *NoteService) Delete(ctx context.Context, documentID, noteID int64) error {
	if err := s.notes.SoftDelete(ctx, documentID, noteID, time.Now().UTC()); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.ErrNotFound
		}
		return appErrors.Internal(err, "failed to delete note")
	}
	return nil
}

func (s *NoteService) ensureDocument(ctx context.Context, id int64) error {
	if _, err := s.documents.GetByID(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.ErrNotFound
		}
		return appErrors.Internal(err, "failed to load document")
	}
	return nil
}
