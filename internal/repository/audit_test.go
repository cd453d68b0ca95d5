//go:build integration

package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veritas-labs/lorebase/internal/domain"
	"github.com/veritas-labs/lorebase/internal/service"
	"github.com/veritas-labs/lorebase/internal/testutil"
)

func TestAuditRepository_CreateAndList(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	repo := NewAuditRepository(pool)
	knowledgeID := uuid.NewString()

	base := time.Now().UTC().Truncate(time.Microsecond)
	actions := []string{domain.AuditActionCreate, domain.AuditActionUpdate, domain.AuditActionAccess}
	for i, action := range actions {
		require.NoError(t, repo.Create(ctx, &domain.AuditRecord{
			ID:          uuid.NewString(),
			KnowledgeID: knowledgeID,
			UserID:      "user-1",
			Action:      action,
			Details:     map[string]any{"step": i},
			Timestamp:   base.Add(time.Duration(i) * time.Second),
		}))
	}

	records, err := repo.ListByKnowledgeID(ctx, knowledgeID)
	require.NoError(t, err)
	require.Len(t, records, 3)
	// Newest first.
	assert.Equal(t, domain.AuditActionAccess, records[0].Action)
	assert.Equal(t, domain.AuditActionCreate, records[2].Action)
	assert.Equal(t, "user-1", records[0].UserID)
	assert.EqualValues(t, 2, records[0].Details["step"])
}

func TestAuditRepository_SurvivesEntryDeletion(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	auditRepo := NewAuditRepository(pool)
	knowledgeRepo := NewKnowledgeRepository(pool)

	k := newEntry("ephemeral")
	require.NoError(t, knowledgeRepo.Create(ctx, k))

	require.NoError(t, auditRepo.Create(ctx, &domain.AuditRecord{
		ID:          uuid.NewString(),
		KnowledgeID: k.ID,
		Action:      domain.AuditActionDelete,
		Timestamp:   time.Now().UTC(),
	}))
	require.NoError(t, knowledgeRepo.Delete(ctx, k.ID))

	records, err := auditRepo.ListByKnowledgeID(ctx, k.ID)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Empty(t, records[0].UserID)
}

func TestTxRunner_RollbackOnError(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	runner := NewTxRunner(pool)
	knowledgeRepo := NewKnowledgeRepository(pool)

	k := newEntry("rolled-back")
	err := runner.WithTx(ctx, func(repos service.TxRepositories) error {
		if err := repos.Entries().Create(ctx, k); err != nil {
			return err
		}
		return domain.ErrPersistenceFailure
	})
	assert.ErrorIs(t, err, domain.ErrPersistenceFailure)

	_, err = knowledgeRepo.GetByID(ctx, k.ID)
	assert.ErrorIs(t, err, domain.ErrEntryNotFound)
}

func TestTxRunner_Commit(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	runner := NewTxRunner(pool)
	knowledgeRepo := NewKnowledgeRepository(pool)

	k := newEntry("committed")
	tag := newTag("tx-tag")
	require.NoError(t, runner.WithTx(ctx, func(repos service.TxRepositories) error {
		if err := repos.Entries().Create(ctx, k); err != nil {
			return err
		}
		if err := repos.Tags().Create(ctx, tag); err != nil {
			return err
		}
		return repos.Entries().ReplaceTags(ctx, k.ID, []string{tag.ID})
	}))

	retrieved, err := knowledgeRepo.GetByID(ctx, k.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"tx-tag"}, retrieved.Tags)
}
