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
)

type TagServiceInterface interface {
	GetOrCreate(ctx context.Context, name, description, userID string) (*domain.Tag, error)
	Get(ctx context.Context, id string) (*domain.Tag, error)
	GetByName(ctx context.Context, name string) (*domain.Tag, error)
	List(ctx context.Context) ([]*domain.Tag, error)
	Rename(ctx context.Context, id, newName string) (*domain.Tag, error)
	Delete(ctx context.Context, id string) error
}

type TagHandler struct {
	svc TagServiceInterface
}

func NewTagHandler(svc TagServiceInterface) *TagHandler {
	return &TagHandler{svc: svc}
}

type CreateTagRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type RenameTagRequest struct {
	Name string `json:"name"`
}

type TagResponse struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	CreatedBy   string `json:"created_by,omitempty"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
}

func tagToResponse(t *domain.Tag) *TagResponse {
	return &TagResponse{
		ID:          t.ID,
		Name:        t.Name,
		Description: t.Description,
		CreatedBy:   t.CreatedBy,
		CreatedAt:   t.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:   t.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

// Create returns the existing tag when the name is already registered,
// so repeated creates are idempotent.
func (h *TagHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateTagRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Name == "" {
		api.Error(w, http.StatusBadRequest, "name is required")
		return
	}

	tag, err := h.svc.GetOrCreate(r.Context(), req.Name, req.Description, middleware.GetUserID(r.Context()))
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusCreated, tagToResponse(tag))
}

func (h *TagHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		api.Error(w, http.StatusBadRequest, "id is required")
		return
	}

	tag, err := h.svc.Get(r.Context(), id)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, tagToResponse(tag))
}

func (h *TagHandler) List(w http.ResponseWriter, r *http.Request) {
	if name := r.URL.Query().Get("name"); name != "" {
		tag, err := h.svc.GetByName(r.Context(), name)
		if err != nil {
			api.HandleError(w, err)
			return
		}
		api.Success(w, http.StatusOK, []*TagResponse{tagToResponse(tag)})
		return
	}

	tags, err := h.svc.List(r.Context())
	if err != nil {
		api.HandleError(w, err)
		return
	}

	responses := make([]*TagResponse, len(tags))
	for i, t := range tags {
		responses[i] = tagToResponse(t)
	}

	api.Success(w, http.StatusOK, responses)
}

func (h *TagHandler) Rename(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		api.Error(w, http.StatusBadRequest, "id is required")
		return
	}

	var req RenameTagRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Name == "" {
		api.Error(w, http.StatusBadRequest, "name is required")
		return
	}

	tag, err := h.svc.Rename(r.Context(), id, req.Name)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, tagToResponse(tag))
}

func (h *TagHandler) Delete(w http.ResponseWriter, r *http.Request) {
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
