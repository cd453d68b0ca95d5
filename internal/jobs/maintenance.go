package jobs

import (
	"context"
	"log"
)

// Reindexer restores missing embeddings for stored entries.
type Reindexer interface {
	ReindexEmbeddings(ctx context.Context) (int, error)
}

// MaintenanceProcessor periodically reindexes entries whose embeddings
// are missing, typically after the embedding provider was unavailable.
type MaintenanceProcessor struct {
	reindexer Reindexer
}

// NewMaintenanceProcessor creates a new MaintenanceProcessor instance
func NewMaintenanceProcessor(reindexer Reindexer) *MaintenanceProcessor {
	return &MaintenanceProcessor{reindexer: reindexer}
}

// ProcessJobs reindexes entries missing embeddings.
func (p *MaintenanceProcessor) ProcessJobs(ctx context.Context) error {
	updated, err := p.reindexer.ReindexEmbeddings(ctx)
	if err != nil {
		return err
	}
	if updated > 0 {
		log.Printf("worker: reindexed embeddings for %d entries", updated)
	}
	return nil
}
