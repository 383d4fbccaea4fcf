package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"docshare/internal/document/model"
	"docshare/internal/document/service"
	"docshare/middleware"
	"docshare/pkg/logger"

	"github.com/gorilla/mux"
)

// DocumentService is the use-case surface the handler depends on.
type DocumentService interface {
	ListDocuments(ctx context.Context, userID string) ([]*model.Document, error)
	GetDocument(ctx context.Context, docID, userID string) (*model.Document, error)
	CreateDocument(ctx context.Context, input model.DocumentInput, userID string) (*model.Document, error)
	UpdateDocument(ctx context.Context, docID string, input model.DocumentInput, userID string) (*model.Document, error)
	DeleteDocument(ctx context.Context, docID, userID string) error
	AddCollaborator(ctx context.Context, docID, collaboratorID, userID string) (*model.Document, error)
	RemoveCollaborator(ctx context.Context, docID, collaboratorID, userID string) (*model.Document, error)
}

// DocumentHandler maps service outcomes to HTTP responses. It makes no access decisions.
type DocumentHandler struct {
	Service DocumentService
}

func NewDocumentHandler(service DocumentService) *DocumentHandler {
	return &DocumentHandler{Service: service}
}

func (h *DocumentHandler) GetDocuments(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())

	docs, err := h.Service.ListDocuments(r.Context(), userID)
	if err != nil {
		h.fail(w, "list documents", err)
		return
	}
	writeJSON(w, http.StatusOK, docs)
}

func (h *DocumentHandler) GetDocument(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())
	docID := mux.Vars(r)["docId"]

	doc, err := h.Service.GetDocument(r.Context(), docID, userID)
	if err != nil {
		h.fail(w, "get document", err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (h *DocumentHandler) CreateDocument(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())

	var req model.DocumentInput
	if !decodeBody(w, r, &req) {
		return
	}

	doc, err := h.Service.CreateDocument(r.Context(), req, userID)
	if err != nil {
		h.fail(w, "create document", err)
		return
	}
	writeJSON(w, http.StatusCreated, doc)
}

func (h *DocumentHandler) UpdateDocument(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())
	docID := mux.Vars(r)["docId"]

	var req model.DocumentInput
	if !decodeBody(w, r, &req) {
		return
	}

	doc, err := h.Service.UpdateDocument(r.Context(), docID, req, userID)
	if err != nil {
		h.fail(w, "update document", err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (h *DocumentHandler) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())
	docID := mux.Vars(r)["docId"]

	if err := h.Service.DeleteDocument(r.Context(), docID, userID); err != nil {
		h.fail(w, "delete document", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Document deleted successfully"})
}

func (h *DocumentHandler) AddCollaborator(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())
	docID := mux.Vars(r)["docId"]

	var req model.CollaboratorRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	doc, err := h.Service.AddCollaborator(r.Context(), docID, req.UserID, userID)
	if err != nil {
		h.fail(w, "add collaborator", err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (h *DocumentHandler) RemoveCollaborator(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())
	vars := mux.Vars(r)

	doc, err := h.Service.RemoveCollaborator(r.Context(), vars["docId"], vars["collaboratorId"], userID)
	if err != nil {
		h.fail(w, "remove collaborator", err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// fail writes the response for a service error. Missing and inaccessible documents both
// arrive as ErrForbidden and produce the same 403 body.
func (h *DocumentHandler) fail(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, service.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden")
	case errors.Is(err, service.ErrUserNotFound):
		writeError(w, http.StatusUnauthorized, "unknown user")
	case errors.Is(err, service.ErrCollaboratorNotFound):
		writeError(w, http.StatusNotFound, "collaborator not found")
	default:
		logger.Sugar.Errorf("Handler: Failed to %s: %v", op, err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

// decodeBody decodes a JSON body into dst. An empty body leaves dst zero-valued.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Sugar.Warnf("Failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, model.ErrorResponse{Error: message})
}
