package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/document-archive-api/internal/dto"
	"github.com/noah-isme/document-archive-api/internal/models"
	appErrors "github.com/noah-isme/document-archive-api/pkg/errors"
	"github.com/noah-isme/document-archive-api/pkg/response"
)

type noteService interface {
	List(ctx context.Context, documentID int64) ([]models.Note, error)
	Add(ctx context.Context, documentID int64, userID *int64, req dto.CreateNoteRequest) (*models.Note, error)
	Delete(ctx context.Context, documentID, noteID int64) error
}

// NoteHandler manages document notes.
type NoteHandler struct {
	service noteService
}

// NewNoteHandler constructs the handler.
func NewNoteHandler(service noteService) *NoteHandler {
	return &NoteHandler{service: service}
}

// List godoc
// @Summary List document notes
// @Tags Notes
// @Produce json
// @Param id path int true "Document ID"
// @Success 200 {object} response.Envelope
// @Router /documents/{id}/notes [get]
func (h *NoteHandler) List(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	notes, err := h.service.List(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, notes)
}

// Create godoc
// @Summary Add a note
// @Tags Notes
// @Accept json
// @Produce json
// @Param id path int true "Document ID"
// @Param payload body dto.CreateNoteRequest true "Note"
// @Success 201 {object} response.Envelope
// @Router /documents/{id}/notes [post]
func (h *NoteHandler) Create(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req dto.CreateNoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid note payload"))
		return
	}
	note, err := h.service.Add(c.Request.Context(), id, currentUserID(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, note)
}

// Delete godoc
// @Summary Delete a note
// @Tags Notes
// @Param id path int true "Document ID"
// @Param noteId path int true "Note ID"
// @Success 204
// @Router /documents/{id}/notes/{noteId} [delete]
func (h *NoteHandler) Delete(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	noteID, ok := pathID(c, "noteId")
	if !ok {
		return
	}
	if err := h.service.Delete(c.Request.Context(), id, noteID); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
