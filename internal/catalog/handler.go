// internal/catalog/handler.go
package catalog

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// maxBodyBytes caps request bodies on write routes.
const maxBodyBytes = 1 << 20

// Error codes carried in ErrorResponse.Code.
const (
	CodeNotFound           = "NOT_FOUND"
	CodeInvalidID          = "INVALID_ID"
	CodeMissingFields      = "MISSING_FIELDS"
	CodeValidationFailed   = "VALIDATION_FAILED"
	CodeDuplicateISBN      = "DUPLICATE_ISBN"
	CodeStorageUnavailable = "STORAGE_UNAVAILABLE"
	CodeInternal           = "INTERNAL_ERROR"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Message string            `json:"message"`
	Code    string            `json:"code"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// MessageResponse acknowledges operations that return no record.
type MessageResponse struct {
	Message string `json:"message"`
}

type Handler struct {
	service Service
	logger  *zap.Logger
}

func NewHandler(service Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{service: service, logger: logger.Named("http")}
}

// Routes returns the book routes, meant to be mounted under /api/books.
// writeMiddleware wraps only the routes that modify the catalog.
func (h *Handler) Routes(writeMiddleware ...func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.handleList)
	r.Get("/stats", h.handleStats)
	r.Get("/{id}", h.handleGet)

	r.Group(func(r chi.Router) {
		r.Use(writeMiddleware...)
		r.Post("/", h.handleCreate)
		r.Put("/{id}", h.handleUpdate)
		r.Delete("/{id}", h.handleDelete)
	})
	return r
}

// HandleHealth reports whether the catalog can reach its storage.
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Health(r.Context()); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("search")
	if query == "" {
		query = r.URL.Query().Get("q")
	}

	books, err := h.service.ListOrSearch(r.Context(), query)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, books)
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.Stats(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	book, err := h.service.Fetch(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, book)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	in, ok := h.decode(w, r)
	if !ok {
		return
	}

	book, err := h.service.Create(r.Context(), in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, book)
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	in, ok := h.decode(w, r)
	if !ok {
		return
	}

	book, err := h.service.Replace(r.Context(), chi.URLParam(r, "id"), in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, book)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Remove(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: "Book deleted"})
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request) (BookInput, bool) {
	var in BookInput
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&in); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Message: "Request body must be a JSON object",
			Code:    CodeValidationFailed,
		})
		return BookInput{}, false
	}
	return in, true
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, body := errorResponse(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
	}
	writeJSON(w, status, body)
}

// errorResponse maps err onto a status code and response body. Internal
// failures are reported without detail.
func errorResponse(err error) (int, ErrorResponse) {
	var verr *ValidationError
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound, ErrorResponse{Message: "Book not found", Code: CodeNotFound}
	case errors.Is(err, ErrInvalidID):
		return http.StatusBadRequest, ErrorResponse{Message: "Invalid book ID", Code: CodeInvalidID}
	case errors.Is(err, ErrMissingFields):
		resp := ErrorResponse{Message: "Missing required fields", Code: CodeMissingFields}
		if errors.As(err, &verr) {
			resp.Fields = verr.Fields
		}
		return http.StatusBadRequest, resp
	case errors.Is(err, ErrValidation):
		resp := ErrorResponse{Message: "Validation failed", Code: CodeValidationFailed}
		if errors.As(err, &verr) {
			resp.Fields = verr.Fields
		}
		return http.StatusBadRequest, resp
	case errors.Is(err, ErrDuplicateISBN):
		return http.StatusConflict, ErrorResponse{Message: "A book with this ISBN already exists", Code: CodeDuplicateISBN}
	case errors.Is(err, ErrStorageUnavailable):
		return http.StatusServiceUnavailable, ErrorResponse{Message: "Storage unavailable", Code: CodeStorageUnavailable}
	}
	return http.StatusInternalServerError, ErrorResponse{Message: "Internal server error", Code: CodeInternal}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
