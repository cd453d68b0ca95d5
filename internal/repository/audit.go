package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/veritas-labs/lorebase/internal/domain"
)

// AuditRepository persists the append-only audit trail. The knowledge_id
// column carries no foreign key so that history survives entry deletion.
type AuditRepository struct {
	db dbtx
}

func NewAuditRepository(pool *pgxpool.Pool) *AuditRepository {
	return &AuditRepository{db: pool}
}

func NewAuditRepositoryWithTx(tx pgx.Tx) *AuditRepository {
	return &AuditRepository{db: tx}
}

func (r *AuditRepository) Create(ctx context.Context, a *domain.AuditRecord) error {
	details := a.Details
	if details == nil {
		details = map[string]any{}
	}
	_, err := r.db.Exec(ctx,
		`INSERT INTO knowledge_audit (id, knowledge_id, user_id, action, details, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		a.ID, a.KnowledgeID, nullableString(a.UserID), a.Action, details, a.Timestamp,
	)
	return err
}

func (r *AuditRepository) ListByKnowledgeID(ctx context.Context, knowledgeID string) ([]*domain.AuditRecord, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, knowledge_id, user_id, action, details, created_at
		 FROM knowledge_audit
		 WHERE knowledge_id = $1
		 ORDER BY created_at DESC, id DESC`,
		knowledgeID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := []*domain.AuditRecord{}
	for rows.Next() {
		var a domain.AuditRecord
		var userID *string
		if err := rows.Scan(&a.ID, &a.KnowledgeID, &userID, &a.Action, &a.Details, &a.Timestamp); err != nil {
			return nil, err
		}
		if userID != nil {
			a.UserID = *userID
		}
		records = append(records, &a)
	}
	return records, rows.Err()
}
