package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/soundscapes/server/internal/admin"
	"github.com/soundscapes/server/internal/middleware"
)

// NamespaceHandler serves the category/file admin endpoints
type NamespaceHandler struct {
	admin          *admin.Service
	maxUploadBytes int64
	logger         *slog.Logger
}

// NewNamespaceHandler creates a new namespace handler
func NewNamespaceHandler(svc *admin.Service, maxUploadBytes int64, logger *slog.Logger) *NamespaceHandler {
	return &NamespaceHandler{admin: svc, maxUploadBytes: maxUploadBytes, logger: logger}
}

// uploadMemoryBytes is how much of a multipart body is held in memory
// before parts spill to temporary files.
const uploadMemoryBytes = 8 << 20

type okResponse struct {
	OK bool `json:"ok"`
}

type nameResponse struct {
	OK   bool   `json:"ok"`
	Name string `json:"name"`
}

type filenameResponse struct {
	OK       bool   `json:"ok"`
	Filename string `json:"filename"`
}

// HandleCreateCategory handles POST /api/admin/create_category
func (h *NamespaceHandler) HandleCreateCategory(w http.ResponseWriter, r *http.Request) {
	token, _ := middleware.GetToken(r.Context())
	var in admin.CreateCategoryInput
	if err := decodeJSON(r, &in); err != nil {
		respondWithAppError(w, h.logger, r, err)
		return
	}
	name, err := h.admin.CreateCategory(token, in)
	if err != nil {
		respondWithAppError(w, h.logger, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, nameResponse{OK: true, Name: name})
}

// HandleRenameCategory handles POST /api/admin/rename_category
func (h *NamespaceHandler) HandleRenameCategory(w http.ResponseWriter, r *http.Request) {
	token, _ := middleware.GetToken(r.Context())
	var in admin.RenameCategoryInput
	if err := decodeJSON(r, &in); err != nil {
		respondWithAppError(w, h.logger, r, err)
		return
	}
	if err := h.admin.RenameCategory(token, in); err != nil {
		respondWithAppError(w, h.logger, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, okResponse{OK: true})
}

// HandleDeleteCategory handles POST /api/admin/delete_category
func (h *NamespaceHandler) HandleDeleteCategory(w http.ResponseWriter, r *http.Request) {
	token, _ := middleware.GetToken(r.Context())
	var in admin.DeleteCategoryInput
	if err := decodeJSON(r, &in); err != nil {
		respondWithAppError(w, h.logger, r, err)
		return
	}
	if err := h.admin.DeleteCategory(token, in); err != nil {
		respondWithAppError(w, h.logger, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, okResponse{OK: true})
}

// HandleUpload handles POST /api/admin/upload (multipart form fields "category" and "file",
// in any order)
func (h *NamespaceHandler) HandleUpload(w http.ResponseWriter, r *http.Request) {
	token, _ := middleware.GetToken(r.Context())
	// Reject bad credentials before reading a potentially large body.
	if _, err := h.admin.Authorize(token); err != nil {
		respondWithAppError(w, h.logger, r, err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	if err := r.ParseMultipartForm(uploadMemoryBytes); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			respondWithError(w, http.StatusRequestEntityTooLarge, "upload too large")
			return
		}
		respondWithError(w, http.StatusBadRequest, "expected multipart form")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile("file")
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "missing file")
		return
	}
	defer file.Close()
	if header.Filename == "" {
		respondWithError(w, http.StatusBadRequest, "empty filename")
		return
	}

	stored, err := h.admin.UploadFile(token, admin.UploadInput{
		Category: r.PostFormValue("category"),
		Filename: header.Filename,
		Content:  file,
	})
	if err != nil {
		respondWithAppError(w, h.logger, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, filenameResponse{OK: true, Filename: stored})
}

// HandleRenameFile handles POST /api/admin/rename_file
func (h *NamespaceHandler) HandleRenameFile(w http.ResponseWriter, r *http.Request) {
	token, _ := middleware.GetToken(r.Context())
	var in admin.RenameFileInput
	if err := decodeJSON(r, &in); err != nil {
		respondWithAppError(w, h.logger, r, err)
		return
	}
	name, err := h.admin.RenameFile(token, in)
	if err != nil {
		respondWithAppError(w, h.logger, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, filenameResponse{OK: true, Filename: name})
}

// HandleMoveFile handles POST /api/admin/move_file
func (h *NamespaceHandler) HandleMoveFile(w http.ResponseWriter, r *http.Request) {
	token, _ := middleware.GetToken(r.Context())
	var in admin.MoveFileInput
	if err := decodeJSON(r, &in); err != nil {
		respondWithAppError(w, h.logger, r, err)
		return
	}
	if err := h.admin.MoveFile(token, in); err != nil {
		respondWithAppError(w, h.logger, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, okResponse{OK: true})
}

// HandleDeleteFile handles POST /api/admin/delete_file
func (h *NamespaceHandler) HandleDeleteFile(w http.ResponseWriter, r *http.Request) {
	token, _ := middleware.GetToken(r.Context())
	var in admin.DeleteFileInput
	if err := decodeJSON(r, &in); err != nil {
		respondWithAppError(w, h.logger, r, err)
		return
	}
	if err := h.admin.DeleteFile(token, in); err != nil {
		respondWithAppError(w, h.logger, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, okResponse{OK: true})
}
