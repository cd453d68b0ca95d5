package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/veritas-labs/lorebase/internal/domain"
)

const conceptColumns = `id, name, parent_id, level, description, created_by, created_at, updated_at`

type ConceptRepository struct {
	db dbtx
}

func NewConceptRepository(pool *pgxpool.Pool) *ConceptRepository {
	return &ConceptRepository{db: pool}
}

func NewConceptRepositoryWithTx(tx pgx.Tx) *ConceptRepository {
	return &ConceptRepository{db: tx}
}

func (r *ConceptRepository) Create(ctx context.Context, c *domain.Concept) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO concepts (id, name, parent_id, level, description, created_by, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		c.ID, c.Name, c.ParentID, c.Level, c.Description, c.CreatedBy, c.CreatedAt, c.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return domain.ErrConceptAlreadyExists
	}
	return err
}

func (r *ConceptRepository) GetByID(ctx context.Context, id string) (*domain.Concept, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+conceptColumns+` FROM concepts WHERE id = $1`, id)
	return scanConcept(row)
}

func (r *ConceptRepository) GetByNameAndParent(ctx context.Context, name string, parentID *string) (*domain.Concept, error) {
	var row pgx.Row
	if parentID == nil {
		row = r.db.QueryRow(ctx,
			`SELECT `+conceptColumns+` FROM concepts WHERE name = $1 AND parent_id IS NULL`, name)
	} else {
		row = r.db.QueryRow(ctx,
			`SELECT `+conceptColumns+` FROM concepts WHERE name = $1 AND parent_id = $2`, name, *parentID)
	}
	return scanConcept(row)
}

func (r *ConceptRepository) ListChildren(ctx context.Context, parentID *string) ([]*domain.Concept, error) {
	var rows pgx.Rows
	var err error
	if parentID == nil {
		rows, err = r.db.Query(ctx,
			`SELECT `+conceptColumns+` FROM concepts WHERE parent_id IS NULL ORDER BY name`)
	} else {
		rows, err = r.db.Query(ctx,
			`SELECT `+conceptColumns+` FROM concepts WHERE parent_id = $1 ORDER BY name`, *parentID)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	concepts := []*domain.Concept{}
	for rows.Next() {
		c, err := scanConcept(rows)
		if err != nil {
			return nil, err
		}
		concepts = append(concepts, c)
	}
	return concepts, rows.Err()
}

func (r *ConceptRepository) Update(ctx context.Context, c *domain.Concept) error {
	cmdTag, err := r.db.Exec(ctx,
		`UPDATE concepts SET name = $1, parent_id = $2, level = $3, description = $4, updated_at = $5
		 WHERE id = $6`,
		c.Name, c.ParentID, c.Level, c.Description, c.UpdatedAt, c.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrConceptAlreadyExists
		}
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrConceptNotFound
	}
	return nil
}

func (r *ConceptRepository) UpdateLevel(ctx context.Context, id string, level int) error {
	cmdTag, err := r.db.Exec(ctx,
		`UPDATE concepts SET level = $1 WHERE id = $2`, level, id)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrConceptNotFound
	}
	return nil
}

func (r *ConceptRepository) Delete(ctx context.Context, id string) error {
	cmdTag, err := r.db.Exec(ctx, `DELETE FROM concepts WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrConceptNotFound
	}
	return nil
}

func (r *ConceptRepository) CountChildren(ctx context.Context, id string) (int64, error) {
	var count int64
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM concepts WHERE parent_id = $1`, id).Scan(&count)
	return count, err
}

func (r *ConceptRepository) CountEntryLinks(ctx context.Context, id string) (int64, error) {
	var count int64
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM knowledge_concepts WHERE concept_id = $1`, id).Scan(&count)
	return count, err
}

// DeleteOrphaned removes concepts with no entry links and no children.
// One pass only; callers loop to collect parents orphaned by the pass.
func (r *ConceptRepository) DeleteOrphaned(ctx context.Context) (int64, error) {
	cmdTag, err := r.db.Exec(ctx,
		`DELETE FROM concepts c
		 WHERE NOT EXISTS (SELECT 1 FROM knowledge_concepts kc WHERE kc.concept_id = c.id)
		   AND NOT EXISTS (SELECT 1 FROM concepts ch WHERE ch.parent_id = c.id)`)
	if err != nil {
		return 0, err
	}
	return cmdTag.RowsAffected(), nil
}

func scanConcept(row pgx.Row) (*domain.Concept, error) {
	var c domain.Concept
	err := row.Scan(&c.ID, &c.Name, &c.ParentID, &c.Level, &c.Description, &c.CreatedBy, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrConceptNotFound
		}
		return nil, err
	}
	return &c, nil
}
