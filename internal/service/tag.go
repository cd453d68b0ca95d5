package service

import (
	"context"
	"errors"
	"time"

	"github.com/veritas-labs/lorebase/internal/domain"
)

// TagService manages the flat tag registry. Tag names are normalized
// nowhere: callers get exactly the casing they stored.
type TagService struct {
	repo    TagRepositoryInterface
	uuidGen UUIDGenerator
}

func NewTagService(repo TagRepositoryInterface) *TagService {
	return &TagService{repo: repo, uuidGen: &DefaultUUIDGenerator{}}
}

func NewTagServiceWithUUIDGen(repo TagRepositoryInterface, uuidGen UUIDGenerator) *TagService {
	return &TagService{repo: repo, uuidGen: uuidGen}
}

// GetOrCreate returns the tag with the given name, creating it with the
// description when it does not exist yet. Repeated calls with the same
// name return the same tag; an existing tag's description is left alone.
func (s *TagService) GetOrCreate(ctx context.Context, name, description, userID string) (*domain.Tag, error) {
	return getOrCreateTag(ctx, s.repo, s.uuidGen, name, description, userID)
}

// Get retrieves a tag by ID.
func (s *TagService) Get(ctx context.Context, id string) (*domain.Tag, error) {
	return s.repo.GetByID(ctx, id)
}

// GetByName retrieves a tag by its exact name.
func (s *TagService) GetByName(ctx context.Context, name string) (*domain.Tag, error) {
	return s.repo.GetByName(ctx, name)
}

// List returns all tags.
func (s *TagService) List(ctx context.Context) ([]*domain.Tag, error) {
	return s.repo.List(ctx)
}

// Rename changes a tag's name. The new name must be valid and not taken
// by another tag; entry links follow the tag ID and are unaffected.
func (s *TagService) Rename(ctx context.Context, id, newName string) (*domain.Tag, error) {
	if !domain.ValidTagName(newName) {
		return nil, domain.ErrInvalidTagName
	}

	tag, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if tag.Name == newName {
		return tag, nil
	}

	existing, err := s.repo.GetByName(ctx, newName)
	if err != nil && !errors.Is(err, domain.ErrTagNotFound) {
		return nil, err
	}
	if existing != nil && existing.ID != tag.ID {
		return nil, domain.ErrTagAlreadyExists
	}

	tag.Name = newName
	tag.UpdatedAt = time.Now().UTC()
	if err := s.repo.Update(ctx, tag); err != nil {
		return nil, err
	}
	return tag, nil
}

// Delete removes a tag. Entry links are removed with it.
func (s *TagService) Delete(ctx context.Context, id string) error {
	if _, err := s.repo.GetByID(ctx, id); err != nil {
		return err
	}
	return s.repo.Delete(ctx, id)
}

// getOrCreateTag is the shared get-or-create primitive, usable both
// directly and against transactional repositories.
func getOrCreateTag(ctx context.Context, repo TagRepositoryInterface, uuidGen UUIDGenerator, name, description, userID string) (*domain.Tag, error) {
	if !domain.ValidTagName(name) {
		return nil, domain.ErrInvalidTagName
	}

	tag, err := repo.GetByName(ctx, name)
	if err == nil {
		return tag, nil
	}
	if !errors.Is(err, domain.ErrTagNotFound) {
		return nil, err
	}

	now := time.Now().UTC()
	tag = &domain.Tag{
		ID:          uuidGen.NewString(),
		Name:        name,
		Description: description,
		CreatedBy:   userID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := repo.Create(ctx, tag); err != nil {
		// Lost a create race; the winner's row is what we wanted anyway.
		if errors.Is(err, domain.ErrTagAlreadyExists) {
			return repo.GetByName(ctx, name)
		}
		return nil, err
	}
	return tag, nil
}
