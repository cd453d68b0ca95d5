package service

import (
	"context"
	"errors"
	"time"

	"github.com/veritas-labs/lorebase/internal/domain"
	"github.com/veritas-labs/lorebase/internal/telemetry"
)

// ConceptService maintains the concept taxonomy: a forest of named,
// leveled nodes. All structural mutations preserve the forest invariant
// that no concept is its own ancestor.
type ConceptService struct {
	repo    ConceptRepositoryInterface
	uuidGen UUIDGenerator
}

func NewConceptService(repo ConceptRepositoryInterface) *ConceptService {
	return &ConceptService{repo: repo, uuidGen: &DefaultUUIDGenerator{}}
}

func NewConceptServiceWithUUIDGen(repo ConceptRepositoryInterface, uuidGen UUIDGenerator) *ConceptService {
	return &ConceptService{repo: repo, uuidGen: uuidGen}
}

// ConceptCreateInput represents the input for creating a concept
type ConceptCreateInput struct {
	Name        string
	ParentID    *string
	Description string
}

// ConceptUpdateInput carries optional name/description changes. Nil
// fields are left untouched. Reparenting is a separate operation.
type ConceptUpdateInput struct {
	Name        *string
	Description *string
}

// Create adds a concept under the given parent. The (name, parent) pair
// must be unique; the level is derived from the parent.
func (s *ConceptService) Create(ctx context.Context, input ConceptCreateInput, userID string) (*domain.Concept, error) {
	ctx, span := telemetry.StartSpan(ctx, "ConceptService.Create", telemetry.SpanAttributes{
		UserID:    userID,
		Operation: "create",
	})
	defer span.End()

	if !domain.ValidConceptName(input.Name) {
		return nil, domain.ErrInvalidConceptName
	}

	if err := s.ensureNameFree(ctx, input.Name, input.ParentID, ""); err != nil {
		return nil, err
	}

	level := 0
	if input.ParentID != nil {
		parent, err := s.repo.GetByID(ctx, *input.ParentID)
		if err != nil {
			if errors.Is(err, domain.ErrConceptNotFound) {
				return nil, domain.ErrParentConceptNotFound
			}
			return nil, err
		}
		level = parent.Level + 1
	}

	now := time.Now().UTC()
	concept := &domain.Concept{
		ID:          s.uuidGen.NewString(),
		Name:        input.Name,
		ParentID:    input.ParentID,
		Level:       level,
		Description: input.Description,
		CreatedBy:   userID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := domain.ValidateConcept(concept); err != nil {
		return nil, err
	}

	if err := s.repo.Create(ctx, concept); err != nil {
		return nil, err
	}
	return concept, nil
}

// Get retrieves a concept by ID.
func (s *ConceptService) Get(ctx context.Context, id string) (*domain.Concept, error) {
	return s.repo.GetByID(ctx, id)
}

// ListRoots returns all root concepts.
func (s *ConceptService) ListRoots(ctx context.Context) ([]*domain.Concept, error) {
	return s.repo.ListChildren(ctx, nil)
}

// Update changes a concept's name and/or description. A new name must be
// unique among siblings.
func (s *ConceptService) Update(ctx context.Context, id string, input ConceptUpdateInput) (*domain.Concept, error) {
	concept, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if input.Name != nil && *input.Name != concept.Name {
		if !domain.ValidConceptName(*input.Name) {
			return nil, domain.ErrInvalidConceptName
		}
		if err := s.ensureNameFree(ctx, *input.Name, concept.ParentID, concept.ID); err != nil {
			return nil, err
		}
		concept.Name = *input.Name
	}
	if input.Description != nil {
		concept.Description = *input.Description
	}

	concept.UpdatedAt = time.Now().UTC()
	if err := s.repo.Update(ctx, concept); err != nil {
		return nil, err
	}
	return concept, nil
}

// Reparent moves a concept under newParentID (nil makes it a root).
// It fails with a cycle error when the concept is the new parent or one
// of its ancestors. The concept's level is recomputed from its new parent
// and descendant levels are recomputed to match.
func (s *ConceptService) Reparent(ctx context.Context, conceptID string, newParentID *string) (*domain.Concept, error) {
	ctx, span := telemetry.StartSpan(ctx, "ConceptService.Reparent", telemetry.SpanAttributes{
		Operation: "reparent",
	})
	defer span.End()

	concept, err := s.repo.GetByID(ctx, conceptID)
	if err != nil {
		return nil, err
	}

	level := 0
	if newParentID != nil {
		cycle, err := s.wouldCreateCycle(ctx, conceptID, *newParentID)
		if err != nil {
			return nil, err
		}
		if cycle {
			return nil, domain.ErrConceptCycle
		}

		parent, err := s.repo.GetByID(ctx, *newParentID)
		if err != nil {
			if errors.Is(err, domain.ErrConceptNotFound) {
				return nil, domain.ErrParentConceptNotFound
			}
			return nil, err
		}
		level = parent.Level + 1
	}

	if err := s.ensureNameFree(ctx, concept.Name, newParentID, concept.ID); err != nil {
		return nil, err
	}

	concept.ParentID = newParentID
	concept.Level = level
	concept.UpdatedAt = time.Now().UTC()
	if err := s.repo.Update(ctx, concept); err != nil {
		return nil, err
	}

	if err := s.cascadeLevels(ctx, concept.ID, concept.Level); err != nil {
		return nil, err
	}
	return concept, nil
}

// Delete removes a concept that has no children and no entry links.
func (s *ConceptService) Delete(ctx context.Context, id string) error {
	if _, err := s.repo.GetByID(ctx, id); err != nil {
		return err
	}

	children, err := s.repo.CountChildren(ctx, id)
	if err != nil {
		return err
	}
	if children > 0 {
		return domain.ErrConceptHasChildren
	}

	links, err := s.repo.CountEntryLinks(ctx, id)
	if err != nil {
		return err
	}
	if links > 0 {
		return domain.NewDomainError(domain.ErrCodeValidation, "concept is still referenced by knowledge entries")
	}

	return s.repo.Delete(ctx, id)
}

// GetByPath resolves a slash-separated path like "animal/dog", matching
// each segment's name scoped to the previous segment's concept.
func (s *ConceptService) GetByPath(ctx context.Context, path string) (*domain.Concept, error) {
	return conceptByPath(ctx, s.repo, path)
}

// conceptByPath walks a slash-separated path segment by segment. It is
// shared with the knowledge entry manager, which resolves concept paths
// against transaction-bound repositories.
func conceptByPath(ctx context.Context, repo ConceptRepositoryInterface, path string) (*domain.Concept, error) {
	segments := splitPath(path)
	if len(segments) == 0 {
		return nil, domain.ErrConceptPathNotFound
	}

	var parentID *string
	var current *domain.Concept
	for _, segment := range segments {
		concept, err := repo.GetByNameAndParent(ctx, segment, parentID)
		if err != nil {
			if errors.Is(err, domain.ErrConceptNotFound) {
				return nil, domain.ErrConceptPathNotFound
			}
			return nil, err
		}
		current = concept
		parentID = &concept.ID
	}
	return current, nil
}

// GetHierarchy builds the nested concept tree from rootID, or from all
// roots when rootID is nil. The build is iterative so pathological depth
// cannot exhaust the call stack.
func (s *ConceptService) GetHierarchy(ctx context.Context, rootID *string) ([]*domain.ConceptNode, error) {
	type frame struct {
		node *domain.ConceptNode
		id   string
	}

	var roots []*domain.ConceptNode
	var worklist []frame

	push := func(c *domain.Concept) *domain.ConceptNode {
		node := &domain.ConceptNode{
			ID:          c.ID,
			Name:        c.Name,
			Description: c.Description,
			Level:       c.Level,
			Children:    []*domain.ConceptNode{},
		}
		worklist = append(worklist, frame{node: node, id: c.ID})
		return node
	}

	if rootID != nil {
		root, err := s.repo.GetByID(ctx, *rootID)
		if err != nil {
			return nil, err
		}
		roots = append(roots, push(root))
	} else {
		rootConcepts, err := s.repo.ListChildren(ctx, nil)
		if err != nil {
			return nil, err
		}
		for _, c := range rootConcepts {
			roots = append(roots, push(c))
		}
	}

	for len(worklist) > 0 {
		f := worklist[len(worklist)-1]
		worklist = worklist[:len(worklist)-1]

		children, err := s.repo.ListChildren(ctx, &f.id)
		if err != nil {
			return nil, err
		}
		for _, child := range children {
			f.node.Children = append(f.node.Children, push(child))
		}
	}

	if roots == nil {
		roots = []*domain.ConceptNode{}
	}
	return roots, nil
}

// GetAncestors walks parent pointers from conceptID to its root,
// returning the chain nearest-first. A root concept yields an empty
// result.
func (s *ConceptService) GetAncestors(ctx context.Context, conceptID string) ([]*domain.Concept, error) {
	concept, err := s.repo.GetByID(ctx, conceptID)
	if err != nil {
		return nil, err
	}

	ancestors := []*domain.Concept{}
	visited := map[string]bool{conceptID: true}
	current := concept
	for current.ParentID != nil {
		if visited[*current.ParentID] {
			// Corrupted parent chain; stop rather than loop forever.
			break
		}
		visited[*current.ParentID] = true

		parent, err := s.repo.GetByID(ctx, *current.ParentID)
		if err != nil {
			if errors.Is(err, domain.ErrConceptNotFound) {
				break
			}
			return nil, err
		}
		ancestors = append(ancestors, parent)
		current = parent
	}
	return ancestors, nil
}

// GetDescendants returns every concept below conceptID via breadth-first
// traversal. A leaf concept yields an empty result.
func (s *ConceptService) GetDescendants(ctx context.Context, conceptID string) ([]*domain.Concept, error) {
	if _, err := s.repo.GetByID(ctx, conceptID); err != nil {
		return nil, err
	}

	descendants := []*domain.Concept{}
	queue := []string{conceptID}
	for len(queue) > 0 {
		currentID := queue[0]
		queue = queue[1:]

		children, err := s.repo.ListChildren(ctx, &currentID)
		if err != nil {
			return nil, err
		}
		for _, child := range children {
			descendants = append(descendants, child)
			queue = append(queue, child.ID)
		}
	}
	return descendants, nil
}

// wouldCreateCycle walks upward from newParentID following parent links;
// finding conceptID on the way (or at the start) means the reparent would
// close a cycle. The visited set guards against already-corrupted chains.
func (s *ConceptService) wouldCreateCycle(ctx context.Context, conceptID, newParentID string) (bool, error) {
	visited := make(map[string]bool)
	current := newParentID
	for {
		if current == conceptID {
			return true, nil
		}
		if visited[current] {
			return false, nil
		}
		visited[current] = true

		node, err := s.repo.GetByID(ctx, current)
		if err != nil {
			if errors.Is(err, domain.ErrConceptNotFound) {
				return false, nil
			}
			return false, err
		}
		if node.ParentID == nil {
			return false, nil
		}
		current = *node.ParentID
	}
}

// cascadeLevels recomputes levels for every descendant of conceptID after
// its own level changed.
func (s *ConceptService) cascadeLevels(ctx context.Context, conceptID string, level int) error {
	type item struct {
		id    string
		level int
	}

	queue := []item{{id: conceptID, level: level}}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		children, err := s.repo.ListChildren(ctx, &current.id)
		if err != nil {
			return err
		}
		for _, child := range children {
			childLevel := current.level + 1
			if child.Level != childLevel {
				if err := s.repo.UpdateLevel(ctx, child.ID, childLevel); err != nil {
					return err
				}
			}
			queue = append(queue, item{id: child.ID, level: childLevel})
		}
	}
	return nil
}

func (s *ConceptService) ensureNameFree(ctx context.Context, name string, parentID *string, selfID string) error {
	existing, err := s.repo.GetByNameAndParent(ctx, name, parentID)
	if err != nil {
		if errors.Is(err, domain.ErrConceptNotFound) {
			return nil
		}
		return err
	}
	if existing.ID != selfID {
		return domain.ErrConceptAlreadyExists
	}
	return nil
}

func splitPath(path string) []string {
	var segments []string
	start := 0
	for i := 0; i <= len(path); i++ {
		if i == len(path) || path[i] == '/' {
			if i > start {
				segments = append(segments, path[start:i])
			}
			start = i + 1
		}
	}
	return segments
}
