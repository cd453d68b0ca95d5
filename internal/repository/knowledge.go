package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/veritas-labs/lorebase/internal/domain"
	"github.com/veritas-labs/lorebase/internal/pagination"
	"github.com/veritas-labs/lorebase/internal/service"
)

const entryColumns = `id, topic, content, question, answer, metadata, embedding, created_by, created_at, updated_at, last_accessed_at`

type KnowledgeRepository struct {
	db dbtx
}

func NewKnowledgeRepository(pool *pgxpool.Pool) *KnowledgeRepository {
	return &KnowledgeRepository{db: pool}
}

func NewKnowledgeRepositoryWithTx(tx pgx.Tx) *KnowledgeRepository {
	return &KnowledgeRepository{db: tx}
}

func (r *KnowledgeRepository) Create(ctx context.Context, k *domain.KnowledgeEntry) error {
	metadata := k.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	_, err := r.db.Exec(ctx,
		`INSERT INTO knowledge (id, topic, content, question, answer, metadata, embedding, created_by, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		k.ID, k.Topic, k.Content, k.Question, k.Answer, metadata, nullableVector(k.Embedding), k.CreatedBy, k.CreatedAt, k.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return domain.ErrTopicAlreadyExists
	}
	return err
}

func (r *KnowledgeRepository) GetByID(ctx context.Context, id string) (*domain.KnowledgeEntry, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+entryColumns+` FROM knowledge WHERE id = $1`, id)
	entry, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrEntryNotFound
		}
		return nil, err
	}
	if err := r.loadRelations(ctx, []*domain.KnowledgeEntry{entry}); err != nil {
		return nil, err
	}
	return entry, nil
}

func (r *KnowledgeRepository) GetByTopic(ctx context.Context, topic string) (*domain.KnowledgeEntry, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+entryColumns+` FROM knowledge WHERE topic = $1`, topic)
	entry, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrEntryNotFound
		}
		return nil, err
	}
	if err := r.loadRelations(ctx, []*domain.KnowledgeEntry{entry}); err != nil {
		return nil, err
	}
	return entry, nil
}

func (r *KnowledgeRepository) List(ctx context.Context, cursor *pagination.Cursor, limit int) (*service.EntryPage, error) {
	if limit <= 0 {
		limit = 20
	}

	var rows pgx.Rows
	var err error

	if cursor != nil {
		rows, err = r.db.Query(ctx,
			`SELECT `+entryColumns+`
			 FROM knowledge
			 WHERE (created_at, id) < ($1, $2)
			 ORDER BY created_at DESC, id DESC
			 LIMIT $3`,
			cursor.Timestamp, cursor.LastID, limit+1,
		)
	} else {
		rows, err = r.db.Query(ctx,
			`SELECT `+entryColumns+`
			 FROM knowledge
			 ORDER BY created_at DESC, id DESC
			 LIMIT $1`,
			limit+1,
		)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items, err := scanEntryRows(rows)
	if err != nil {
		return nil, err
	}

	hasMore := len(items) > limit
	if hasMore {
		items = items[:limit]
	}

	if err := r.loadRelations(ctx, items); err != nil {
		return nil, err
	}

	var nextCursor string
	if hasMore && len(items) > 0 {
		last := items[len(items)-1]
		nextCursor = pagination.EncodeCursor(last.ID, last.CreatedAt)
	}

	return &service.EntryPage{
		Items:      items,
		NextCursor: nextCursor,
		HasMore:    hasMore,
	}, nil
}

func (r *KnowledgeRepository) ListByTag(ctx context.Context, tagName string, limit, offset int) ([]*domain.KnowledgeEntry, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+prefixedEntryColumns("k")+`
		 FROM knowledge k
		 JOIN knowledge_tags kt ON kt.knowledge_id = k.id
		 JOIN tags t ON t.id = kt.tag_id
		 WHERE t.name = $1
		 ORDER BY k.created_at DESC, k.id DESC
		 LIMIT $2 OFFSET $3`,
		tagName, limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items, err := scanEntryRows(rows)
	if err != nil {
		return nil, err
	}
	if err := r.loadRelations(ctx, items); err != nil {
		return nil, err
	}
	return items, nil
}

func (r *KnowledgeRepository) ListByConcept(ctx context.Context, conceptID string, limit, offset int) ([]*domain.KnowledgeEntry, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+prefixedEntryColumns("k")+`
		 FROM knowledge k
		 JOIN knowledge_concepts kc ON kc.knowledge_id = k.id
		 WHERE kc.concept_id = $1
		 ORDER BY k.created_at DESC, k.id DESC
		 LIMIT $2 OFFSET $3`,
		conceptID, limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items, err := scanEntryRows(rows)
	if err != nil {
		return nil, err
	}
	if err := r.loadRelations(ctx, items); err != nil {
		return nil, err
	}
	return items, nil
}

func (r *KnowledgeRepository) Update(ctx context.Context, k *domain.KnowledgeEntry) error {
	metadata := k.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	cmdTag, err := r.db.Exec(ctx,
		`UPDATE knowledge SET topic = $1, content = $2, question = $3, answer = $4, metadata = $5, embedding = $6, updated_at = $7
		 WHERE id = $8`,
		k.Topic, k.Content, k.Question, k.Answer, metadata, nullableVector(k.Embedding), k.UpdatedAt, k.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrTopicAlreadyExists
		}
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrEntryNotFound
	}
	return nil
}

func (r *KnowledgeRepository) Delete(ctx context.Context, id string) error {
	cmdTag, err := r.db.Exec(ctx, `DELETE FROM knowledge WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrEntryNotFound
	}
	return nil
}

func (r *KnowledgeRepository) UpdateEmbedding(ctx context.Context, id string, embedding []float32) error {
	cmdTag, err := r.db.Exec(ctx,
		`UPDATE knowledge SET embedding = $1, updated_at = $2 WHERE id = $3`,
		nullableVector(embedding), time.Now().UTC(), id,
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrEntryNotFound
	}
	return nil
}

// ReplaceTags swaps the entry's tag links for exactly tagIDs.
func (r *KnowledgeRepository) ReplaceTags(ctx context.Context, knowledgeID string, tagIDs []string) error {
	_, err := r.db.Exec(ctx, `DELETE FROM knowledge_tags WHERE knowledge_id = $1`, knowledgeID)
	if err != nil {
		return err
	}
	for _, tagID := range tagIDs {
		_, err := r.db.Exec(ctx,
			`INSERT INTO knowledge_tags (knowledge_id, tag_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
			knowledgeID, tagID,
		)
		if err != nil {
			return err
		}
	}
	return nil
}

// ReplaceConcepts swaps the entry's concept links for exactly conceptIDs.
func (r *KnowledgeRepository) ReplaceConcepts(ctx context.Context, knowledgeID string, conceptIDs []string) error {
	_, err := r.db.Exec(ctx, `DELETE FROM knowledge_concepts WHERE knowledge_id = $1`, knowledgeID)
	if err != nil {
		return err
	}
	for _, conceptID := range conceptIDs {
		_, err := r.db.Exec(ctx,
			`INSERT INTO knowledge_concepts (knowledge_id, concept_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
			knowledgeID, conceptID,
		)
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *KnowledgeRepository) ListEmbedded(ctx context.Context, filterTags, filterConcepts []string) ([]*domain.KnowledgeEntry, error) {
	query := `SELECT ` + prefixedEntryColumns("k") + `
		 FROM knowledge k
		 WHERE k.embedding IS NOT NULL`
	args := []any{}

	if len(filterTags) > 0 {
		args = append(args, filterTags)
		query += `
		 AND EXISTS (
			SELECT 1 FROM knowledge_tags kt
			JOIN tags t ON t.id = kt.tag_id
			WHERE kt.knowledge_id = k.id AND t.name = ANY($1))`
	}
	if len(filterConcepts) > 0 {
		args = append(args, filterConcepts)
		if len(args) == 1 {
			query += `
		 AND EXISTS (
			SELECT 1 FROM knowledge_concepts kc
			JOIN concepts c ON c.id = kc.concept_id
			WHERE kc.knowledge_id = k.id AND c.name = ANY($1))`
		} else {
			query += `
		 AND EXISTS (
			SELECT 1 FROM knowledge_concepts kc
			JOIN concepts c ON c.id = kc.concept_id
			WHERE kc.knowledge_id = k.id AND c.name = ANY($2))`
		}
	}
	query += `
		 ORDER BY k.created_at DESC, k.id DESC`

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items, err := scanEntryRows(rows)
	if err != nil {
		return nil, err
	}
	if err := r.loadRelations(ctx, items); err != nil {
		return nil, err
	}
	return items, nil
}

func (r *KnowledgeRepository) ListMissingEmbedding(ctx context.Context) ([]*domain.KnowledgeEntry, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+entryColumns+` FROM knowledge WHERE embedding IS NULL ORDER BY created_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEntryRows(rows)
}

func (r *KnowledgeRepository) ListNotAccessedSince(ctx context.Context, cutoff time.Time) ([]*domain.KnowledgeEntry, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+entryColumns+`
		 FROM knowledge
		 WHERE COALESCE(last_accessed_at, created_at) < $1
		 ORDER BY COALESCE(last_accessed_at, created_at) ASC`,
		cutoff,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEntryRows(rows)
}

func (r *KnowledgeRepository) TouchLastAccessed(ctx context.Context, ids []string, ts time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := r.db.Exec(ctx,
		`UPDATE knowledge SET last_accessed_at = $1 WHERE id = ANY($2)`,
		ts, ids,
	)
	return err
}

// loadRelations fills Tags and Concepts (both by name) for the given
// entries in two batched queries.
func (r *KnowledgeRepository) loadRelations(ctx context.Context, entries []*domain.KnowledgeEntry) error {
	if len(entries) == 0 {
		return nil
	}

	byID := make(map[string]*domain.KnowledgeEntry, len(entries))
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		e.Tags = []string{}
		e.Concepts = []string{}
		byID[e.ID] = e
		ids = append(ids, e.ID)
	}

	tagRows, err := r.db.Query(ctx,
		`SELECT kt.knowledge_id, t.name
		 FROM knowledge_tags kt
		 JOIN tags t ON t.id = kt.tag_id
		 WHERE kt.knowledge_id = ANY($1)
		 ORDER BY t.name`,
		ids,
	)
	if err != nil {
		return err
	}
	defer tagRows.Close()
	for tagRows.Next() {
		var knowledgeID, tagName string
		if err := tagRows.Scan(&knowledgeID, &tagName); err != nil {
			return err
		}
		if e, ok := byID[knowledgeID]; ok {
			e.Tags = append(e.Tags, tagName)
		}
	}
	if err := tagRows.Err(); err != nil {
		return err
	}

	conceptRows, err := r.db.Query(ctx,
		`SELECT kc.knowledge_id, c.name
		 FROM knowledge_concepts kc
		 JOIN concepts c ON c.id = kc.concept_id
		 WHERE kc.knowledge_id = ANY($1)
		 ORDER BY c.name`,
		ids,
	)
	if err != nil {
		return err
	}
	defer conceptRows.Close()
	for conceptRows.Next() {
		var knowledgeID, conceptName string
		if err := conceptRows.Scan(&knowledgeID, &conceptName); err != nil {
			return err
		}
		if e, ok := byID[knowledgeID]; ok {
			e.Concepts = append(e.Concepts, conceptName)
		}
	}
	return conceptRows.Err()
}

func prefixedEntryColumns(alias string) string {
	return alias + `.id, ` + alias + `.topic, ` + alias + `.content, ` + alias + `.question, ` + alias + `.answer, ` +
		alias + `.metadata, ` + alias + `.embedding, ` + alias + `.created_by, ` + alias + `.created_at, ` +
		alias + `.updated_at, ` + alias + `.last_accessed_at`
}

func scanEntry(row pgx.Row) (*domain.KnowledgeEntry, error) {
	var k domain.KnowledgeEntry
	var embedding *pgvector.Vector
	err := row.Scan(&k.ID, &k.Topic, &k.Content, &k.Question, &k.Answer, &k.Metadata,
		&embedding, &k.CreatedBy, &k.CreatedAt, &k.UpdatedAt, &k.LastAccessedAt)
	if err != nil {
		return nil, err
	}
	if embedding != nil {
		k.Embedding = embedding.Slice()
	}
	return &k, nil
}

func scanEntryRows(rows pgx.Rows) ([]*domain.KnowledgeEntry, error) {
	var results []*domain.KnowledgeEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, entry)
	}
	return results, rows.Err()
}

func nullableVector(embedding []float32) any {
	if len(embedding) == 0 {
		return nil
	}
	return pgvector.NewVector(embedding)
}
