package handlers

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/veritas-labs/lorebase/internal/api"
	"github.com/veritas-labs/lorebase/internal/api/middleware"
	"github.com/veritas-labs/lorebase/internal/service"
)

type BatchServiceInterface interface {
	CreateMany(ctx context.Context, inputs []service.KnowledgeCreateInput, userID string) (*service.BatchCreateResult, error)
	CleanupOrphaned(ctx context.Context) (*service.CleanupResult, error)
	ReindexEmbeddings(ctx context.Context) (int, error)
}

type CleanupServiceInterface interface {
	CleanupOldEntries(ctx context.Context, maxAge time.Duration, userID string) (int, error)
}

type MaintenanceHandler struct {
	batch   BatchServiceInterface
	cleanup CleanupServiceInterface

	reindexTimeout time.Duration
}

func NewMaintenanceHandler(batch BatchServiceInterface, cleanup CleanupServiceInterface) *MaintenanceHandler {
	return &MaintenanceHandler{
		batch:          batch,
		cleanup:        cleanup,
		reindexTimeout: 10 * time.Minute,
	}
}

type BatchCreateRequest struct {
	Entries []CreateEntryRequest `json:"entries"`
}

type BatchCreateResponse struct {
	Created []*EntryResponse       `json:"created"`
	Failed  []service.BatchFailure `json:"failed"`
}

func (h *MaintenanceHandler) BatchCreate(w http.ResponseWriter, r *http.Request) {
	var req BatchCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if len(req.Entries) == 0 {
		api.Error(w, http.StatusBadRequest, "entries are required")
		return
	}

	inputs := make([]service.KnowledgeCreateInput, len(req.Entries))
	for i, e := range req.Entries {
		inputs[i] = service.KnowledgeCreateInput{
			Topic:    e.Topic,
			Content:  e.Content,
			Question: e.Question,
			Answer:   e.Answer,
			Metadata: e.Metadata,
			Tags:     e.Tags,
			Concepts: e.Concepts,
		}
	}

	result, err := h.batch.CreateMany(r.Context(), inputs, middleware.GetUserID(r.Context()))
	if err != nil {
		api.HandleError(w, err)
		return
	}

	resp := BatchCreateResponse{
		Created: entriesToResponses(result.Created),
		Failed:  result.Failed,
	}
	if resp.Failed == nil {
		resp.Failed = []service.BatchFailure{}
	}

	status := http.StatusCreated
	if len(resp.Failed) > 0 {
		status = http.StatusMultiStatus
	}
	api.Success(w, status, resp)
}

func (h *MaintenanceHandler) CleanupOrphaned(w http.ResponseWriter, r *http.Request) {
	result, err := h.batch.CleanupOrphaned(r.Context())
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, result)
}

type CleanupStaleRequest struct {
	MaxAgeDays int `json:"max_age_days"`
}

type CleanupStaleResponse struct {
	Flagged int `json:"flagged"`
}

// CleanupStale flags entries not accessed within the given window.
// Entries are never deleted, only marked in the audit trail.
func (h *MaintenanceHandler) CleanupStale(w http.ResponseWriter, r *http.Request) {
	var req CleanupStaleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.MaxAgeDays <= 0 {
		api.Error(w, http.StatusBadRequest, "max_age_days must be positive")
		return
	}

	maxAge := time.Duration(req.MaxAgeDays) * 24 * time.Hour
	flagged, err := h.cleanup.CleanupOldEntries(r.Context(), maxAge, middleware.GetUserID(r.Context()))
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, CleanupStaleResponse{Flagged: flagged})
}

// Reindex restores missing embeddings in the background. The request
// returns immediately; progress is visible in the logs.
func (h *MaintenanceHandler) Reindex(w http.ResponseWriter, r *http.Request) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), h.reindexTimeout)
		defer cancel()

		updated, err := h.batch.ReindexEmbeddings(ctx)
		if err != nil {
			log.Printf("maintenance: reindex failed: %v", err)
			return
		}
		log.Printf("maintenance: reindexed embeddings for %d entries", updated)
	}()

	api.Success(w, http.StatusAccepted, map[string]string{"status": "reindex started"})
}
