package inmemdb

import (
	"cmp"
	"context"
	"strings"

	"github.com/trezcool/tathmini/core"
	"github.com/trezcool/tathmini/core/scale"
)

var scaleComparators = comparators[scale.Scale]{
	"title":      func(a, b scale.Scale) int { return cmp.Compare(strings.ToLower(a.Title), strings.ToLower(b.Title)) },
	"created_at": func(a, b scale.Scale) int { return compareTimes(a.CreatedAt, b.CreatedAt) },
	"updated_at": func(a, b scale.Scale) int { return compareTimes(a.UpdatedAt, b.UpdatedAt) },
}

func scalesByCreation(a, b scale.Scale) int { return byCreation(a.CreatedAt, b.CreatedAt, a.ID, b.ID) }

type scaleRepository struct {
	db *DB
}

var _ scale.Repository = (*scaleRepository)(nil)

func NewScaleRepository(db *DB) scale.Repository {
	return &scaleRepository{db: db}
}

func copyScale(s scale.Scale) scale.Scale {
	s.Options = copyStrings(s.Options)
	return s
}

func (repo *scaleRepository) CreateScale(_ context.Context, s scale.Scale) (scale.Scale, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	s.ID = newID()
	repo.db.scales[s.ID] = copyScale(s)
	return s, nil
}

func (repo *scaleRepository) GetScaleByID(_ context.Context, id string) (scale.Scale, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if s, ok := repo.db.scales[id]; ok {
		return copyScale(s), nil
	}
	return scale.Scale{}, scale.ErrNotFound
}

func (repo *scaleRepository) GetScalesByID(_ context.Context, ids ...string) ([]scale.Scale, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	scales := make([]scale.Scale, 0, len(ids))
	for _, id := range ids {
		if s, ok := repo.db.scales[id]; ok {
			scales = append(scales, copyScale(s))
		}
	}
	sortRecords(scales, nil, nil, scalesByCreation)
	return scales, nil
}

func (repo *scaleRepository) FilterScales(_ context.Context, filter scale.QueryFilter, ordering ...core.DBOrdering) ([]scale.Scale, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	scales := values(repo.db.scales, filter.Match)
	for i := range scales {
		scales[i] = copyScale(scales[i])
	}
	sortRecords(scales, ordering, scaleComparators, scalesByCreation)
	return scales, nil
}

func (repo *scaleRepository) UpdateScale(_ context.Context, s scale.Scale) (scale.Scale, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.scales[s.ID]; !ok {
		return scale.Scale{}, scale.ErrNotFound
	}
	repo.db.scales[s.ID] = copyScale(s)
	return s, nil
}

func (repo *scaleRepository) SetScaleLocked(_ context.Context, id string, locked bool) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	s, ok := repo.db.scales[id]
	if !ok {
		return scale.ErrNotFound
	}
	s.Locked = locked
	repo.db.scales[id] = s
	return nil
}

func (repo *scaleRepository) DeleteScale(_ context.Context, id string) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()
	delete(repo.db.scales, id)
	return nil
}

func (repo *scaleRepository) CountScalesByTitle(_ context.Context, title, excludedID string) (int, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	return count(repo.db.scales, func(s scale.Scale) bool {
		return s.ID != excludedID && s.Mode == scale.ModeScale && strings.EqualFold(s.Title, title)
	}), nil
}
