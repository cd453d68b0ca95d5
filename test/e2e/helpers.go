//go:build e2e

package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/veritas-labs/lorebase/internal/api/handlers"
	"github.com/veritas-labs/lorebase/internal/cache"
	"github.com/veritas-labs/lorebase/internal/embedding"
	"github.com/veritas-labs/lorebase/internal/repository"
	"github.com/veritas-labs/lorebase/internal/server"
	"github.com/veritas-labs/lorebase/internal/service"
	"github.com/veritas-labs/lorebase/internal/testutil"
)

// wordProvider is a deterministic embedding stand-in: each text maps to a
// fixed-dimension vector derived from its bytes, so similar texts are not
// semantically close but search plumbing is fully exercised.
type wordProvider struct{}

func (wordProvider) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vec := make([]float32, 8)
		for j, b := range []byte(text) {
			vec[j%8] += float32(b) / 255
		}
		vectors[i] = vec
	}
	return vectors, nil
}

// E2ETestEnv holds all resources needed for E2E tests
type E2ETestEnv struct {
	T          *testing.T
	Ctx        context.Context
	PostgresC  *testutil.PostgresContainer
	Pool       *pgxpool.Pool
	Server     *httptest.Server
	HTTPClient *http.Client
}

// SetupE2EEnv starts a PostgreSQL container, migrates it, and serves the
// full HTTP stack in-process with a deterministic embedding provider.
func SetupE2EEnv(t *testing.T) *E2ETestEnv {
	ctx := context.Background()

	pgC := testutil.NewPostgresContainer(ctx, t)
	pool := testutil.NewTestPool(ctx, t, pgC, "../../migrations")

	knowledgeRepo := repository.NewKnowledgeRepository(pool)
	tagRepo := repository.NewTagRepository(pool)
	conceptRepo := repository.NewConceptRepository(pool)
	auditRepo := repository.NewAuditRepository(pool)
	txRunner := repository.NewTxRunner(pool)

	embedder := embedding.NewService(wordProvider{}, embedding.NewVectorCache())
	store := cache.NewMemoryStore()

	knowledgeSvc := service.NewKnowledgeService(txRunner, knowledgeRepo, conceptRepo, auditRepo, embedder, store, log.Default())
	tagSvc := service.NewTagService(tagRepo)
	conceptSvc := service.NewConceptService(conceptRepo)
	batchSvc := service.NewBatchService(knowledgeSvc, txRunner, knowledgeRepo, embedder, embedding.DefaultChunkSize, log.Default())

	router := server.NewRouter(server.RouterConfig{
		KnowledgeHandler:   handlers.NewKnowledgeHandler(knowledgeSvc),
		SearchHandler:      handlers.NewSearchHandler(knowledgeSvc),
		TagHandler:         handlers.NewTagHandler(tagSvc),
		ConceptHandler:     handlers.NewConceptHandler(conceptSvc),
		MaintenanceHandler: handlers.NewMaintenanceHandler(batchSvc, knowledgeSvc),
	})

	srv := httptest.NewServer(router)

	return &E2ETestEnv{
		T:          t,
		Ctx:        ctx,
		PostgresC:  pgC,
		Pool:       pool,
		Server:     srv,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Cleanup releases all resources
func (e *E2ETestEnv) Cleanup() {
	if e.Server != nil {
		e.Server.Close()
	}
	if e.Pool != nil {
		e.Pool.Close()
	}
	if e.PostgresC != nil {
		e.PostgresC.Terminate(e.Ctx)
	}
}

// APIResponse represents a standard API response
type APIResponse struct {
	Data  json.RawMessage `json:"data"`
	Error string          `json:"error,omitempty"`
}

// Get performs a GET request
func (e *E2ETestEnv) Get(path, userID string) (*APIResponse, error) {
	return e.doRequest("GET", path, nil, userID)
}

// Post performs a POST request
func (e *E2ETestEnv) Post(path string, body interface{}, userID string) (*APIResponse, error) {
	return e.doRequest("POST", path, body, userID)
}

// Patch performs a PATCH request
func (e *E2ETestEnv) Patch(path string, body interface{}, userID string) (*APIResponse, error) {
	return e.doRequest("PATCH", path, body, userID)
}

// Put performs a PUT request
func (e *E2ETestEnv) Put(path string, body interface{}, userID string) (*APIResponse, error) {
	return e.doRequest("PUT", path, body, userID)
}

// Delete performs a DELETE request
func (e *E2ETestEnv) Delete(path, userID string) (*APIResponse, error) {
	return e.doRequest("DELETE", path, nil, userID)
}

func (e *E2ETestEnv) doRequest(method, path string, body interface{}, userID string) (*APIResponse, error) {
	url := e.Server.URL + path

	var reqBody io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal body: %w", err)
		}
		reqBody = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequest(method, url, reqBody)
	if err != nil {
		return nil, err
	}

	if userID != "" {
		req.Header.Set("X-User-ID", userID)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusNoContent {
		return &APIResponse{}, nil
	}

	var apiResp APIResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		if resp.StatusCode >= 400 {
			return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(respBody))
		}
		return nil, err
	}

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, apiResp.Error)
	}

	return &apiResp, nil
}
