package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/veritas-labs/lorebase/internal/api"
	"github.com/veritas-labs/lorebase/internal/api/middleware"
	"github.com/veritas-labs/lorebase/internal/domain"
	"github.com/veritas-labs/lorebase/internal/service"
)

type ConceptServiceInterface interface {
	Create(ctx context.Context, input service.ConceptCreateInput, userID string) (*domain.Concept, error)
	Get(ctx context.Context, id string) (*domain.Concept, error)
	GetByPath(ctx context.Context, path string) (*domain.Concept, error)
	GetHierarchy(ctx context.Context, rootID *string) ([]*domain.ConceptNode, error)
	GetAncestors(ctx context.Context, conceptID string) ([]*domain.Concept, error)
	GetDescendants(ctx context.Context, conceptID string) ([]*domain.Concept, error)
	ListRoots(ctx context.Context) ([]*domain.Concept, error)
	Update(ctx context.Context, id string, input service.ConceptUpdateInput) (*domain.Concept, error)
	Reparent(ctx context.Context, conceptID string, newParentID *string) (*domain.Concept, error)
	Delete(ctx context.Context, id string) error
}

type ConceptHandler struct {
	svc ConceptServiceInterface
}

func NewConceptHandler(svc ConceptServiceInterface) *ConceptHandler {
	return &ConceptHandler{svc: svc}
}

type CreateConceptRequest struct {
	Name        string  `json:"name"`
	ParentID    *string `json:"parent_id"`
	Description string  `json:"description"`
}

type UpdateConceptRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
}

type ReparentConceptRequest struct {
	ParentID *string `json:"parent_id"`
}

type ConceptResponse struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	ParentID    *string `json:"parent_id"`
	Level       int     `json:"level"`
	Description string  `json:"description,omitempty"`
	CreatedBy   string  `json:"created_by,omitempty"`
	CreatedAt   string  `json:"created_at"`
	UpdatedAt   string  `json:"updated_at"`
}

func conceptToResponse(c *domain.Concept) *ConceptResponse {
	return &ConceptResponse{
		ID:          c.ID,
		Name:        c.Name,
		ParentID:    c.ParentID,
		Level:       c.Level,
		Description: c.Description,
		CreatedBy:   c.CreatedBy,
		CreatedAt:   c.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:   c.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func (h *ConceptHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateConceptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Name == "" {
		api.Error(w, http.StatusBadRequest, "name is required")
		return
	}

	input := service.ConceptCreateInput{
		Name:        req.Name,
		ParentID:    req.ParentID,
		Description: req.Description,
	}

	concept, err := h.svc.Create(r.Context(), input, middleware.GetUserID(r.Context()))
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusCreated, conceptToResponse(concept))
}

func (h *ConceptHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		api.Error(w, http.StatusBadRequest, "id is required")
		return
	}

	concept, err := h.svc.Get(r.Context(), id)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, conceptToResponse(concept))
}

// GetByPath resolves a slash-separated name path, e.g. "animals/dogs/terriers".
func (h *ConceptHandler) GetByPath(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		api.Error(w, http.StatusBadRequest, "path is required")
		return
	}

	concept, err := h.svc.GetByPath(r.Context(), path)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, conceptToResponse(concept))
}

func (h *ConceptHandler) Hierarchy(w http.ResponseWriter, r *http.Request) {
	var rootID *string
	if root := r.URL.Query().Get("root"); root != "" {
		rootID = &root
	}

	nodes, err := h.svc.GetHierarchy(r.Context(), rootID)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, nodes)
}

func (h *ConceptHandler) Ancestors(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		api.Error(w, http.StatusBadRequest, "id is required")
		return
	}

	ancestors, err := h.svc.GetAncestors(r.Context(), id)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, conceptsToResponses(ancestors))
}

func (h *ConceptHandler) Descendants(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		api.Error(w, http.StatusBadRequest, "id is required")
		return
	}

	descendants, err := h.svc.GetDescendants(r.Context(), id)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, conceptsToResponses(descendants))
}

func (h *ConceptHandler) List(w http.ResponseWriter, r *http.Request) {
	roots, err := h.svc.ListRoots(r.Context())
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, conceptsToResponses(roots))
}

func (h *ConceptHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		api.Error(w, http.StatusBadRequest, "id is required")
		return
	}

	var req UpdateConceptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	input := service.ConceptUpdateInput{
		Name:        req.Name,
		Description: req.Description,
	}

	concept, err := h.svc.Update(r.Context(), id, input)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, conceptToResponse(concept))
}

// Reparent moves a concept under a new parent. A null parent_id makes
// the concept a root.
func (h *ConceptHandler) Reparent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		api.Error(w, http.StatusBadRequest, "id is required")
		return
	}

	var req ReparentConceptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	concept, err := h.svc.Reparent(r.Context(), id, req.ParentID)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, conceptToResponse(concept))
}

func (h *ConceptHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		api.Error(w, http.StatusBadRequest, "id is required")
		return
	}

	if err := h.svc.Delete(r.Context(), id); err != nil {
		api.HandleError(w, err)
		return
	}

	api.JSON(w, http.StatusNoContent, nil)
}

func conceptsToResponses(concepts []*domain.Concept) []*ConceptResponse {
	responses := make([]*ConceptResponse, len(concepts))
	for i, c := range concepts {
		responses[i] = conceptToResponse(c)
	}
	return responses
}
