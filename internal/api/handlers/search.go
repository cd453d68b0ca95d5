package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/veritas-labs/lorebase/internal/api"
	"github.com/veritas-labs/lorebase/internal/api/middleware"
	"github.com/veritas-labs/lorebase/internal/service"
)

type SearchServiceInterface interface {
	SearchSimilar(ctx context.Context, input service.SearchInput, userID string) ([]service.SearchResult, error)
}

type SearchHandler struct {
	svc SearchServiceInterface
}

func NewSearchHandler(svc SearchServiceInterface) *SearchHandler {
	return &SearchHandler{svc: svc}
}

// SearchRequest accepts either free text or a precomputed query vector.
type SearchRequest struct {
	Query         string    `json:"query"`
	Embedding     []float32 `json:"embedding"`
	Limit         int       `json:"limit"`
	MinSimilarity float64   `json:"min_similarity"`
	Tags          []string  `json:"tags"`
	Concepts      []string  `json:"concepts"`
}

type SearchResultResponse struct {
	Entry *EntryResponse `json:"entry"`
	Score float64        `json:"score"`
}

type SearchResponse struct {
	Results []*SearchResultResponse `json:"results"`
}

const defaultSearchLimit = 10

func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Query == "" && len(req.Embedding) == 0 {
		api.Error(w, http.StatusBadRequest, "query or embedding is required")
		return
	}
	if req.Limit <= 0 {
		req.Limit = defaultSearchLimit
	}

	input := service.SearchInput{
		Query:         req.Query,
		Embedding:     req.Embedding,
		Limit:         req.Limit,
		MinSimilarity: req.MinSimilarity,
		Tags:          req.Tags,
		Concepts:      req.Concepts,
	}

	results, err := h.svc.SearchSimilar(r.Context(), input, middleware.GetUserID(r.Context()))
	if err != nil {
		api.HandleError(w, err)
		return
	}

	responses := make([]*SearchResultResponse, len(results))
	for i, res := range results {
		responses[i] = &SearchResultResponse{
			Entry: entryToResponse(res.Entry),
			Score: res.Score,
		}
	}

	api.Success(w, http.StatusOK, SearchResponse{Results: responses})
}
