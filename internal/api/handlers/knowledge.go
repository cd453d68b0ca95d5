package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/veritas-labs/lorebase/internal/api"
	"github.com/veritas-labs/lorebase/internal/api/middleware"
	"github.com/veritas-labs/lorebase/internal/domain"
	"github.com/veritas-labs/lorebase/internal/service"
)

type KnowledgeServiceInterface interface {
	Create(ctx context.Context, input service.KnowledgeCreateInput, userID string) (*domain.KnowledgeEntry, error)
	Get(ctx context.Context, id, userID string) (*domain.KnowledgeEntry, error)
	GetByTopic(ctx context.Context, topic, userID string) (*domain.KnowledgeEntry, error)
	List(ctx context.Context, cursor string, limit int) (*service.EntryPage, error)
	ListByTag(ctx context.Context, tagName string, limit, offset int) ([]*domain.KnowledgeEntry, error)
	ListByConcept(ctx context.Context, conceptPath string, limit, offset int) ([]*domain.KnowledgeEntry, error)
	ListAudit(ctx context.Context, knowledgeID string) ([]*domain.AuditRecord, error)
	Update(ctx context.Context, id string, input service.KnowledgeUpdateInput, userID string) (*domain.KnowledgeEntry, error)
	Delete(ctx context.Context, id, userID string) error
}

type KnowledgeHandler struct {
	svc KnowledgeServiceInterface
}

func NewKnowledgeHandler(svc KnowledgeServiceInterface) *KnowledgeHandler {
	return &KnowledgeHandler{svc: svc}
}

// CreateEntryRequest carries a new entry. Concepts are slash-separated
// paths of existing concepts; a non-empty embedding skips provider
// vectorization.
type CreateEntryRequest struct {
	Topic     string         `json:"topic"`
	Content   string         `json:"content"`
	Question  string         `json:"question"`
	Answer    string         `json:"answer"`
	Metadata  map[string]any `json:"metadata"`
	Tags      []string       `json:"tags"`
	Concepts  []string       `json:"concepts"`
	Embedding []float32      `json:"embedding"`
}

type UpdateEntryRequest struct {
	Topic    *string        `json:"topic"`
	Content  *string        `json:"content"`
	Question *string        `json:"question"`
	Answer   *string        `json:"answer"`
	Metadata map[string]any `json:"metadata"`
	Tags     *[]string      `json:"tags"`
	Concepts *[]string      `json:"concepts"`
}

type EntryResponse struct {
	ID             string         `json:"id"`
	Topic          string         `json:"topic"`
	Content        string         `json:"content"`
	Question       string         `json:"question,omitempty"`
	Answer         string         `json:"answer,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	HasEmbedding   bool           `json:"has_embedding"`
	Tags           []string       `json:"tags"`
	Concepts       []string       `json:"concepts"`
	CreatedBy      string         `json:"created_by,omitempty"`
	CreatedAt      string         `json:"created_at"`
	UpdatedAt      string         `json:"updated_at"`
	LastAccessedAt string         `json:"last_accessed_at,omitempty"`
}

func entryToResponse(e *domain.KnowledgeEntry) *EntryResponse {
	resp := &EntryResponse{
		ID:           e.ID,
		Topic:        e.Topic,
		Content:      e.Content,
		Question:     e.Question,
		Answer:       e.Answer,
		Metadata:     e.Metadata,
		HasEmbedding: e.HasEmbedding(),
		Tags:         e.Tags,
		Concepts:     e.Concepts,
		CreatedBy:    e.CreatedBy,
		CreatedAt:    e.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:    e.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if e.LastAccessedAt != nil {
		resp.LastAccessedAt = e.LastAccessedAt.UTC().Format(time.RFC3339)
	}
	if resp.Tags == nil {
		resp.Tags = []string{}
	}
	if resp.Concepts == nil {
		resp.Concepts = []string{}
	}
	return resp
}

func (h *KnowledgeHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateEntryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Topic == "" {
		api.Error(w, http.StatusBadRequest, "topic is required")
		return
	}
	if req.Content == "" {
		api.Error(w, http.StatusBadRequest, "content is required")
		return
	}

	input := service.KnowledgeCreateInput{
		Topic:     req.Topic,
		Content:   req.Content,
		Question:  req.Question,
		Answer:    req.Answer,
		Metadata:  req.Metadata,
		Tags:      req.Tags,
		Concepts:  req.Concepts,
		Embedding: req.Embedding,
	}

	entry, err := h.svc.Create(r.Context(), input, middleware.GetUserID(r.Context()))
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusCreated, entryToResponse(entry))
}

func (h *KnowledgeHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		api.Error(w, http.StatusBadRequest, "id is required")
		return
	}

	entry, err := h.svc.Get(r.Context(), id, middleware.GetUserID(r.Context()))
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, entryToResponse(entry))
}

func (h *KnowledgeHandler) GetByTopic(w http.ResponseWriter, r *http.Request) {
	topic := r.URL.Query().Get("topic")
	if topic == "" {
		api.Error(w, http.StatusBadRequest, "topic is required")
		return
	}

	entry, err := h.svc.GetByTopic(r.Context(), topic, middleware.GetUserID(r.Context()))
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, entryToResponse(entry))
}

type EntryListResponse struct {
	Items   []*EntryResponse `json:"items"`
	Cursor  string           `json:"cursor,omitempty"`
	HasMore bool             `json:"has_more"`
}

func (h *KnowledgeHandler) List(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	limit := queryInt(query.Get("limit"), 0)
	offset := queryInt(query.Get("offset"), 0)

	if tagName := query.Get("tag"); tagName != "" {
		entries, err := h.svc.ListByTag(r.Context(), tagName, limit, offset)
		if err != nil {
			api.HandleError(w, err)
			return
		}
		api.Success(w, http.StatusOK, EntryListResponse{Items: entriesToResponses(entries)})
		return
	}

	if conceptPath := query.Get("concept"); conceptPath != "" {
		entries, err := h.svc.ListByConcept(r.Context(), conceptPath, limit, offset)
		if err != nil {
			api.HandleError(w, err)
			return
		}
		api.Success(w, http.StatusOK, EntryListResponse{Items: entriesToResponses(entries)})
		return
	}

	page, err := h.svc.List(r.Context(), query.Get("cursor"), limit)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, EntryListResponse{
		Items:   entriesToResponses(page.Items),
		Cursor:  page.NextCursor,
		HasMore: page.HasMore,
	})
}

func (h *KnowledgeHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		api.Error(w, http.StatusBadRequest, "id is required")
		return
	}

	var req UpdateEntryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	input := service.KnowledgeUpdateInput{
		Topic:    req.Topic,
		Content:  req.Content,
		Question: req.Question,
		Answer:   req.Answer,
		Metadata: req.Metadata,
		Tags:     req.Tags,
		Concepts: req.Concepts,
	}

	entry, err := h.svc.Update(r.Context(), id, input, middleware.GetUserID(r.Context()))
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, entryToResponse(entry))
}

func (h *KnowledgeHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		api.Error(w, http.StatusBadRequest, "id is required")
		return
	}

	if err := h.svc.Delete(r.Context(), id, middleware.GetUserID(r.Context())); err != nil {
		api.HandleError(w, err)
		return
	}

	api.JSON(w, http.StatusNoContent, nil)
}

type AuditRecordResponse struct {
	ID          string         `json:"id"`
	KnowledgeID string         `json:"knowledge_id"`
	UserID      string         `json:"user_id,omitempty"`
	Action      string         `json:"action"`
	Details     map[string]any `json:"details,omitempty"`
	Timestamp   string         `json:"timestamp"`
}

func (h *KnowledgeHandler) Audit(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		api.Error(w, http.StatusBadRequest, "id is required")
		return
	}

	records, err := h.svc.ListAudit(r.Context(), id)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	responses := make([]*AuditRecordResponse, len(records))
	for i, rec := range records {
		responses[i] = &AuditRecordResponse{
			ID:          rec.ID,
			KnowledgeID: rec.KnowledgeID,
			UserID:      rec.UserID,
			Action:      string(rec.Action),
			Details:     rec.Details,
			Timestamp:   rec.Timestamp.UTC().Format(time.RFC3339),
		}
	}

	api.Success(w, http.StatusOK, responses)
}

func entriesToResponses(entries []*domain.KnowledgeEntry) []*EntryResponse {
	responses := make([]*EntryResponse, len(entries))
	for i, e := range entries {
		responses[i] = entryToResponse(e)
	}
	return responses
}

func queryInt(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return parsed
}
