// Package embedding wraps the third-party text-embedding provider with
// caching, rate-limit retry and chunked batch generation.
package embedding

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/veritas-labs/lorebase/internal/domain"
)

const (
	// DefaultChunkSize is the number of texts sent per provider call in batch mode
	DefaultChunkSize = 20
	// DefaultChunkPause is the pause inserted between outbound chunks
	DefaultChunkPause = 100 * time.Millisecond
)

// Config controls retry and batching behavior.
type Config struct {
	ChunkSize   int
	ChunkPause  time.Duration
	MaxAttempts int           // provider calls per rate-limited request
	BackoffMin  time.Duration // first backoff interval
	BackoffMax  time.Duration // backoff cap
}

// DefaultConfig returns the production retry schedule: 3 attempts with
// exponential backoff between 4 and 10 seconds.
func DefaultConfig() Config {
	return Config{
		ChunkSize:   DefaultChunkSize,
		ChunkPause:  DefaultChunkPause,
		MaxAttempts: 3,
		BackoffMin:  4 * time.Second,
		BackoffMax:  10 * time.Second,
	}
}

// Service generates embeddings through a Provider, consulting the vector
// cache before every network call.
//
// Failure handling is deliberately asymmetric: rate limits are transient
// and retried with backoff, surfacing only after retry exhaustion; any
// other provider failure is logged and degrades to an empty vector so
// batch operations can make partial progress.
type Service struct {
	provider Provider
	cache    *VectorCache
	cfg      Config
}

func NewService(provider Provider, cache *VectorCache) *Service {
	return NewServiceWithConfig(provider, cache, DefaultConfig())
}

func NewServiceWithConfig(provider Provider, cache *VectorCache, cfg Config) *Service {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultChunkSize
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	return &Service{
		provider: provider,
		cache:    cache,
		cfg:      cfg,
	}
}

// Embed returns the embedding vector for text. A cache hit bypasses the
// provider entirely. On a non-rate-limit provider failure the returned
// vector is empty and the error is nil.
func (s *Service) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, domain.ErrEmptyText
	}

	key := Key(text)
	if vector, ok := s.cache.Get(key); ok {
		return vector, nil
	}

	vectors, err := s.callProvider(ctx, []string{text})
	if err != nil {
		if errors.Is(err, domain.ErrRateLimited) || ctx.Err() != nil {
			return nil, err
		}
		log.Printf("embedding generation failed, degrading to empty vector: %v", err)
		return []float32{}, nil
	}

	s.cache.Put(key, vectors[0])
	return vectors[0], nil
}

// EmbedBatch returns one vector per input text, preserving input order.
// Texts are sent in chunks of chunkSize (default 20) with a short pause
// between chunks to respect provider rate limits; cached texts are never
// re-sent. A chunk that fails for a non-rate-limit reason degrades to
// empty vectors for its uncached items.
func (s *Service) EmbedBatch(ctx context.Context, texts []string, chunkSize int) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	if chunkSize <= 0 {
		chunkSize = s.cfg.ChunkSize
	}

	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += chunkSize {
		end := start + chunkSize
		if end > len(texts) {
			end = len(texts)
		}

		vectors, err := s.embedChunk(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		out = append(out, vectors...)

		if end < len(texts) && s.cfg.ChunkPause > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(s.cfg.ChunkPause):
			}
		}
	}
	return out, nil
}

func (s *Service) embedChunk(ctx context.Context, chunk []string) ([][]float32, error) {
	vectors := make([][]float32, len(chunk))

	var missTexts []string
	var missIdx []int
	var missKeys []string
	for i, text := range chunk {
		key := Key(text)
		if cached, ok := s.cache.Get(key); ok {
			vectors[i] = cached
			continue
		}
		missTexts = append(missTexts, text)
		missIdx = append(missIdx, i)
		missKeys = append(missKeys, key)
	}

	if len(missTexts) == 0 {
		return vectors, nil
	}

	fresh, err := s.callProvider(ctx, missTexts)
	if err != nil {
		if errors.Is(err, domain.ErrRateLimited) || ctx.Err() != nil {
			return nil, err
		}
		log.Printf("batch embedding chunk failed, degrading %d items to empty vectors: %v", len(missTexts), err)
		for _, i := range missIdx {
			vectors[i] = []float32{}
		}
		return vectors, nil
	}

	for j, i := range missIdx {
		vectors[i] = fresh[j]
		s.cache.Put(missKeys[j], fresh[j])
	}
	return vectors, nil
}

// callProvider performs the network call, retrying rate-limit errors with
// exponential backoff. Non-rate-limit errors are permanent and returned as
// is after the first attempt.
func (s *Service) callProvider(ctx context.Context, texts []string) ([][]float32, error) {
	var out [][]float32

	op := func() error {
		vectors, err := s.provider.EmbedTexts(ctx, texts)
		if err != nil {
			if errors.Is(err, domain.ErrRateLimited) {
				log.Printf("embedding provider rate limited, retrying with backoff")
				return err
			}
			return backoff.Permanent(err)
		}
		out = vectors
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = s.cfg.BackoffMin
	policy.MaxInterval = s.cfg.BackoffMax
	policy.Multiplier = 2
	policy.RandomizationFactor = 0
	policy.MaxElapsedTime = 0

	bounded := backoff.WithMaxRetries(policy, uint64(s.cfg.MaxAttempts-1))
	if err := backoff.Retry(op, backoff.WithContext(bounded, ctx)); err != nil {
		return nil, err
	}
	return out, nil
}
