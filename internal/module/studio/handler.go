package studio

import (
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/gemkit/server/internal/shared/response"
)

// Handler exposes the upload, generate and run endpoints.
type Handler struct {
	service *Service
	manager *Manager
}

// NewHandler creates a handler.
func NewHandler(service *Service, manager *Manager) *Handler {
	return &Handler{
		service: service,
		manager: manager,
	}
}

// RegisterRoutes registers studio routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/upload", h.Upload)
	r.POST("/generate", h.Generate)
	r.POST("/runs", h.CreateRun)
	r.GET("/runs/:id", h.GetRun)
	r.GET("/runs/:id/export", h.ExportRun)
}

// UploadResponse is the upload endpoint payload. Both fields carry the same
// URL; imageUrl exists for older clients.
type UploadResponse struct {
	URL      string `json:"url"`
	ImageURL string `json:"imageUrl"`
}

// Upload handles single-file uploads.
// POST /api/upload
func (h *Handler) Upload(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		response.BadRequest(c, "No file provided")
		return
	}

	file, err := readFileHeader(fileHeader)
	if err != nil {
		response.BadRequest(c, "could not read file")
		return
	}

	url, err := h.service.Upload(c.Request.Context(), file.Name, file.ContentType, file.Data)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.OK(c, UploadResponse{URL: url, ImageURL: url})
}

// GenerateRequest is the single-shot generation request body.
type GenerateRequest struct {
	Prompt     string   `json:"prompt"`
	URLs       []string `json:"urls"`
	References []string `json:"references"`
	Type       string   `json:"type"`
}

// GenerateResponse is the single-shot generation payload.
type GenerateResponse struct {
	ProcessedImage string `json:"processedImage"`
	Type           string `json:"type,omitempty"`
}

// Generate handles one synchronous generation call.
// POST /api/generate
func (h *Handler) Generate(c *gin.Context) {
	var req GenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		response.BadRequest(c, "prompt is required")
		return
	}
	if len(req.URLs) == 0 {
		response.BadRequest(c, "at least one image URL is required")
		return
	}

	url, err := h.service.Generate(c.Request.Context(), GenerateParams{
		Prompt:     req.Prompt,
		URLs:       req.URLs,
		References: req.References,
		Type:       GenType(req.Type),
	})
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.OK(c, GenerateResponse{ProcessedImage: url, Type: req.Type})
}

// CreateRun starts an asset-kit run from a multipart batch.
// POST /api/runs
func (h *Handler) CreateRun(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		response.BadRequest(c, "invalid multipart form")
		return
	}

	images, err := readFileHeaders(form.File["images"])
	if err != nil {
		response.BadRequest(c, "could not read image files")
		return
	}
	if len(images) == 0 {
		response.BadRequest(c, "at least one image is required")
		return
	}

	references, err := readFileHeaders(form.File["references"])
	if err != nil {
		response.BadRequest(c, "could not read reference files")
		return
	}

	run, err := h.manager.Submit(c.Request.Context(), RunInput{
		Images:     images,
		References: references,
	})
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Accepted(c, run)
}

// GetRun returns a run snapshot.
// GET /api/runs/:id
func (h *Handler) GetRun(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid run id")
		return
	}

	run, err := h.manager.Get(id)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.OK(c, run)
}

// ExportRun returns the plain-text listing of a completed run.
// GET /api/runs/:id/export
func (h *Handler) ExportRun(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid run id")
		return
	}

	text, err := h.manager.Export(id)
	if err != nil {
		response.FromError(c, err)
		return
	}

	c.Data(http.StatusOK, "text/plain; charset=utf-8", []byte(text))
}

func readFileHeader(fh *multipart.FileHeader) (FileInput, error) {
	f, err := fh.Open()
	if err != nil {
		return FileInput{}, err
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return FileInput{}, err
	}

	return FileInput{
		Name:        fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}

func readFileHeaders(fhs []*multipart.FileHeader) ([]FileInput, error) {
	if len(fhs) == 0 {
		return nil, nil
	}
	files := make([]FileInput, 0, len(fhs))
	for _, fh := range fhs {
		file, err := readFileHeader(fh)
		if err != nil {
			return nil, err
		}
		files = append(files, file)
	}
	return files, nil
}
