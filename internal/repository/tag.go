package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/veritas-labs/lorebase/internal/domain"
)

type TagRepository struct {
	db dbtx
}

func NewTagRepository(pool *pgxpool.Pool) *TagRepository {
	return &TagRepository{db: pool}
}

func NewTagRepositoryWithTx(tx pgx.Tx) *TagRepository {
	return &TagRepository{db: tx}
}

func (r *TagRepository) Create(ctx context.Context, t *domain.Tag) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO tags (id, name, description, created_by, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		t.ID, t.Name, t.Description, t.CreatedBy, t.CreatedAt, t.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return domain.ErrTagAlreadyExists
	}
	return err
}

func (r *TagRepository) GetByID(ctx context.Context, id string) (*domain.Tag, error) {
	var t domain.Tag
	err := r.db.QueryRow(ctx,
		`SELECT id, name, description, created_by, created_at, updated_at FROM tags WHERE id = $1`, id,
	).Scan(&t.ID, &t.Name, &t.Description, &t.CreatedBy, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrTagNotFound
		}
		return nil, err
	}
	return &t, nil
}

func (r *TagRepository) GetByName(ctx context.Context, name string) (*domain.Tag, error) {
	var t domain.Tag
	err := r.db.QueryRow(ctx,
		`SELECT id, name, description, created_by, created_at, updated_at FROM tags WHERE name = $1`, name,
	).Scan(&t.ID, &t.Name, &t.Description, &t.CreatedBy, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrTagNotFound
		}
		return nil, err
	}
	return &t, nil
}

func (r *TagRepository) List(ctx context.Context) ([]*domain.Tag, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, name, description, created_by, created_at, updated_at FROM tags ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tags []*domain.Tag
	for rows.Next() {
		var t domain.Tag
		if err := rows.Scan(&t.ID, &t.Name, &t.Description, &t.CreatedBy, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, err
		}
		tags = append(tags, &t)
	}
	return tags, rows.Err()
}

func (r *TagRepository) Update(ctx context.Context, t *domain.Tag) error {
	cmdTag, err := r.db.Exec(ctx,
		`UPDATE tags SET name = $1, updated_at = $2 WHERE id = $3`,
		t.Name, t.UpdatedAt, t.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrTagAlreadyExists
		}
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrTagNotFound
	}
	return nil
}

func (r *TagRepository) Delete(ctx context.Context, id string) error {
	cmdTag, err := r.db.Exec(ctx, `DELETE FROM tags WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrTagNotFound
	}
	return nil
}

func (r *TagRepository) DeleteOrphaned(ctx context.Context) (int64, error) {
	cmdTag, err := r.db.Exec(ctx,
		`DELETE FROM tags t
		 WHERE NOT EXISTS (SELECT 1 FROM knowledge_tags kt WHERE kt.tag_id = t.id)`)
	if err != nil {
		return 0, err
	}
	return cmdTag.RowsAffected(), nil
}
