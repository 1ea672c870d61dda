package handler

import (
	"context"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/document-archive-api/internal/dto"
	"github.com/noah-isme/document-archive-api/internal/service"
	appErrors "github.com/noah-isme/document-archive-api/pkg/errors"
	"github.com/noah-isme/document-archive-api/pkg/response"
)

type documentService interface {
	Upload(ctx context.Context, meta dto.UploadDocumentRequest, upload service.DocumentUpload) (*dto.UploadResult, error)
	Get(ctx context.Context, id int64) (*dto.DocumentDetail, error)
	Update(ctx context.Context, id int64, req dto.UpdateDocumentRequest) (*dto.DocumentDetail, error)
	Delete(ctx context.Context, id int64) error
	OpenOriginal(ctx context.Context, id int64) (*service.FileDownload, error)
	OpenArchive(ctx context.Context, id int64) (*service.FileDownload, error)
	OpenThumbnail(ctx context.Context, id int64) (*service.FileDownload, error)
	Reprocess(ctx context.Context, id int64) (*dto.ProcessResult, error)
	ShareLink(ctx context.Context, id int64) (*dto.ShareLinkResponse, error)
	OpenShared(ctx context.Context, token string) (*service.FileDownload, error)
}

// DocumentHandler exposes document ingestion and retrieval endpoints.
type DocumentHandler struct {
	service documentService
}

// NewDocumentHandler constructs the handler.
func NewDocumentHandler(service documentService) *DocumentHandler {
	return &DocumentHandler{service: service}
}

// Upload godoc
// @Summary Upload a document
// @Description Stores the original and queues archive and thumbnail generation.
// @Tags Documents
// @Accept multipart/form-data
// @Produce json
// @Param document formData file true "Document"
// @Param title formData string false "Title"
// @Param correspondent formData int false "Correspondent ID"
// @Param document_type formData int false "Document type ID"
// @Param project formData int false "Project ID"
// @Param tags formData []int false "Tag IDs" collectionFormat(multi)
// @Param created formData string false "Created date (YYYY-MM-DD or RFC3339)"
// @Success 201 {object} response.Envelope
// @Success 200 {object} response.Envelope "Duplicate content"
// @Failure 400 {object} response.Envelope
// @Failure 503 {object} response.Envelope "Concurrent upload of the same content, retry"
// @Router /documents [post]
func (h *DocumentHandler) Upload(c *gin.Context) {
	var form dto.UploadDocumentForm
	if err := c.ShouldBind(&form); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid document metadata"))
		return
	}
	req, err := form.Request()
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, err.Error()))
		return
	}
	fileHeader, err := formFile(c, "document", "file")
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "document file is required"))
		return
	}
	src, err := fileHeader.Open()
	if err != nil {
		response.Error(c, appErrors.Internal(err, "failed to open file"))
		return
	}
	defer src.Close()

	result, err := h.service.Upload(c.Request.Context(), req, service.DocumentUpload{
		Filename: fileHeader.Filename,
		Size:     fileHeader.Size,
		Content:  src,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	status := http.StatusCreated
	if result.Status == dto.UploadStatusDuplicate {
		status = http.StatusOK
	}
	response.JSON(c, status, result)
}

// Get godoc
// @Summary Get document
// @Tags Documents
// @Produce json
// @Param id path int true "Document ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /documents/{id} [get]
func (h *DocumentHandler) Get(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	detail, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, detail)
}

// Update godoc
// @Summary Update document metadata
// @Tags Documents
// @Accept json
// @Produce json
// @Param id path int true "Document ID"
// @Param payload body dto.UpdateDocumentRequest true "Changes"
// @Success 200 {object} response.Envelope
// @Router /documents/{id} [patch]
func (h *DocumentHandler) Update(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req dto.UpdateDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid document payload"))
		return
	}
	detail, err := h.service.Update(c.Request.Context(), id, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, detail)
}

// Delete godoc
// @Summary Delete document
// @Tags Documents
// @Param id path int true "Document ID"
// @Success 204
// @Router /documents/{id} [delete]
func (h *DocumentHandler) Delete(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := h.service.Delete(c.Request.Context(), id); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// DownloadOriginal godoc
// @Summary Download the original upload
// @Tags Documents
// @Produce octet-stream
// @Param id path int true "Document ID"
// @Success 200 {file} binary
// @Router /documents/{id}/download-original [get]
func (h *DocumentHandler) DownloadOriginal(c *gin.Context) {
	h.stream(c, h.service.OpenOriginal)
}

// DownloadArchive godoc
// @Summary Download the PDF/A archive version
// @Tags Documents
// @Produce application/pdf
// @Param id path int true "Document ID"
// @Success 200 {file} binary
// @Failure 404 {object} response.Envelope "ARCHIVE_NOT_AVAILABLE"
// @Router /documents/{id}/download-archive [get]
func (h *DocumentHandler) DownloadArchive(c *gin.Context) {
	h.stream(c, h.service.OpenArchive)
}

// Thumbnail godoc
// @Summary Get the first-page thumbnail
// @Tags Documents
// @Produce image/webp
// @Param id path int true "Document ID"
// @Success 200 {file} binary
// @Router /documents/{id}/thumbnail [get]
func (h *DocumentHandler) Thumbnail(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	file, err := h.service.OpenThumbnail(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	defer file.File.Close()
	c.Header("Cache-Control", "private, max-age=3600")
	c.DataFromReader(http.StatusOK, file.SizeBytes, file.ContentType, file.File, nil)
}

// Reprocess godoc
// @Summary Queue a document for conversion again
// @Tags Documents
// @Produce json
// @Param id path int true "Document ID"
// @Success 202 {object} response.Envelope
// @Router /documents/{id}/reprocess [post]
func (h *DocumentHandler) Reprocess(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	result, err := h.service.Reprocess(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Accepted(c, result)
}

// Share godoc
// @Summary Create a time-limited archive link
// @Tags Documents
// @Produce json
// @Param id path int true "Document ID"
// @Success 200 {object} response.Envelope
// @Router /documents/{id}/share [get]
func (h *DocumentHandler) Share(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	link, err := h.service.ShareLink(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, link)
}

// Shared godoc
// @Summary Download an archive through a share link
// @Tags Documents
// @Produce application/pdf
// @Param token path string true "Share token"
// @Success 200 {file} binary
// @Failure 403 {object} response.Envelope
// @Router /shared/{token} [get]
func (h *DocumentHandler) Shared(c *gin.Context) {
	file, err := h.service.OpenShared(c.Request.Context(), c.Param("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	defer file.File.Close()
	response.Attachment(c, file.Filename, file.ContentType, file.SizeBytes, file.File)
}

func (h *DocumentHandler) stream(c *gin.Context, open func(context.Context, int64) (*service.FileDownload, error)) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	file, err := open(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	defer file.File.Close()
	response.Attachment(c, file.Filename, file.ContentType, file.SizeBytes, file.File)
}

func formFile(c *gin.Context, fields ...string) (*multipart.FileHeader, error) {
	var lastErr error
	for _, field := range fields {
		header, err := c.FormFile(field)
		if err == nil {
			return header, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid "+name))
		return 0, false
	}
	return id, true
}
