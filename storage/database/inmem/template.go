package inmemdb

import (
	"cmp"
	"context"
	"strings"

	"github.com/trezcool/tathmini/core"
	"github.com/trezcool/tathmini/core/template"
)

var (
	templateComparators = comparators[template.Template]{
		"title":      func(a, b template.Template) int { return cmp.Compare(strings.ToLower(a.Title), strings.ToLower(b.Title)) },
		"created_at": func(a, b template.Template) int { return compareTimes(a.CreatedAt, b.CreatedAt) },
		"updated_at": func(a, b template.Template) int { return compareTimes(a.UpdatedAt, b.UpdatedAt) },
	}
	itemComparators = comparators[template.Item]{
		"text":       func(a, b template.Item) int { return cmp.Compare(strings.ToLower(a.Text), strings.ToLower(b.Text)) },
		"created_at": func(a, b template.Item) int { return compareTimes(a.CreatedAt, b.CreatedAt) },
		"updated_at": func(a, b template.Item) int { return compareTimes(a.UpdatedAt, b.UpdatedAt) },
	}
)

func templatesByCreation(a, b template.Template) int {
	return byCreation(a.CreatedAt, b.CreatedAt, a.ID, b.ID)
}

func itemsByCreation(a, b template.Item) int { return byCreation(a.CreatedAt, b.CreatedAt, a.ID, b.ID) }

func byDisplayOrder(a, b template.TemplateItem) int {
	if c := cmp.Compare(a.DisplayOrder, b.DisplayOrder); c != 0 {
		return c
	}
	return cmp.Compare(a.ID, b.ID)
}

type templateRepository struct {
	db *DB
}

var _ template.Repository = (*templateRepository)(nil)

func NewTemplateRepository(db *DB) template.Repository {
	return &templateRepository{db: db}
}

// templates

func (repo *templateRepository) CreateTemplate(_ context.Context, t template.Template) (template.Template, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	t.ID = newID()
	repo.db.templates[t.ID] = t
	return t, nil
}

func (repo *templateRepository) GetTemplateByID(_ context.Context, id string) (template.Template, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if t, ok := repo.db.templates[id]; ok {
		return t, nil
	}
	return template.Template{}, template.ErrNotFound
}

func (repo *templateRepository) FilterTemplates(_ context.Context, filter template.QueryFilter, ordering ...core.DBOrdering) ([]template.Template, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	ts := values(repo.db.templates, filter.MatchTemplate)
	sortRecords(ts, ordering, templateComparators, templatesByCreation)
	return ts, nil
}

func (repo *templateRepository) UpdateTemplate(_ context.Context, t template.Template) (template.Template, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.templates[t.ID]; !ok {
		return template.Template{}, template.ErrNotFound
	}
	repo.db.templates[t.ID] = t
	return t, nil
}

func (repo *templateRepository) SetTemplateLocked(_ context.Context, id string, locked bool) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	t, ok := repo.db.templates[id]
	if !ok {
		return template.ErrNotFound
	}
	t.Locked = locked
	repo.db.templates[id] = t
	return nil
}

func (repo *templateRepository) DeleteTemplate(_ context.Context, id string) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	delete(repo.db.templates, id)
	for tiID, ti := range repo.db.templateItems {
		if ti.TemplateID == id {
			delete(repo.db.templateItems, tiID)
		}
	}
	return nil
}

func (repo *templateRepository) CountTemplatesByTitle(_ context.Context, title string) (int, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	return count(repo.db.templates, func(t template.Template) bool {
		return strings.EqualFold(t.Title, title)
	}), nil
}

// items

func (repo *templateRepository) CreateItem(_ context.Context, it template.Item) (template.Item, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	it.ID = newID()
	repo.db.items[it.ID] = it
	return it, nil
}

func (repo *templateRepository) GetItemByID(_ context.Context, id string) (template.Item, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if it, ok := repo.db.items[id]; ok {
		return it, nil
	}
	return template.Item{}, template.ErrItemNotFound
}

func (repo *templateRepository) GetItemsByID(_ context.Context, ids ...string) ([]template.Item, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	its := make([]template.Item, 0, len(ids))
	for _, id := range ids {
		if it, ok := repo.db.items[id]; ok {
			its = append(its, it)
		}
	}
	sortRecords(its, nil, nil, itemsByCreation)
	return its, nil
}

func (repo *templateRepository) FilterItems(_ context.Context, filter template.QueryFilter, ordering ...core.DBOrdering) ([]template.Item, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	its := values(repo.db.items, filter.MatchItem)
	sortRecords(its, ordering, itemComparators, itemsByCreation)
	return its, nil
}

func (repo *templateRepository) UpdateItem(_ context.Context, it template.Item) (template.Item, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.items[it.ID]; !ok {
		return template.Item{}, template.ErrItemNotFound
	}
	repo.db.items[it.ID] = it
	return it, nil
}

func (repo *templateRepository) SetItemLocked(_ context.Context, id string, locked bool) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	it, ok := repo.db.items[id]
	if !ok {
		return template.ErrItemNotFound
	}
	it.Locked = locked
	repo.db.items[id] = it
	return nil
}

func (repo *templateRepository) DeleteItem(_ context.Context, id string) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()
	delete(repo.db.items, id)
	return nil
}

func (repo *templateRepository) CountItemsByScale(_ context.Context, scaleID string) (int, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()
	return count(repo.db.items, func(it template.Item) bool { return it.ScaleID == scaleID }), nil
}

func (repo *templateRepository) CountLockedItemsByScale(_ context.Context, scaleID string) (int, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()
	return count(repo.db.items, func(it template.Item) bool { return it.ScaleID == scaleID && it.Locked }), nil
}

// template items

func (repo *templateRepository) CreateTemplateItem(_ context.Context, ti template.TemplateItem) (template.TemplateItem, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	ti.ID = newID()
	repo.db.templateItems[ti.ID] = ti
	return ti, nil
}

func (repo *templateRepository) GetTemplateItemByID(_ context.Context, id string) (template.TemplateItem, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if ti, ok := repo.db.templateItems[id]; ok {
		return ti, nil
	}
	return template.TemplateItem{}, template.ErrTemplateItemNotFound
}

func (repo *templateRepository) ListTemplateItems(_ context.Context, templateID string) ([]template.TemplateItem, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	tis := values(repo.db.templateItems, func(ti template.TemplateItem) bool { return ti.TemplateID == templateID })
	sortRecords(tis, nil, nil, byDisplayOrder)
	return tis, nil
}

func (repo *templateRepository) UpdateTemplateItem(_ context.Context, ti template.TemplateItem) (template.TemplateItem, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.templateItems[ti.ID]; !ok {
		return template.TemplateItem{}, template.ErrTemplateItemNotFound
	}
	repo.db.templateItems[ti.ID] = ti
	return ti, nil
}

func (repo *templateRepository) DeleteTemplateItem(_ context.Context, id string) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()
	delete(repo.db.templateItems, id)
	return nil
}

func (repo *templateRepository) CountTemplateItemsByItem(_ context.Context, itemID string) (int, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()
	return count(repo.db.templateItems, func(ti template.TemplateItem) bool { return ti.ItemID == itemID }), nil
}

func (repo *templateRepository) CountLockedTemplatesByItem(_ context.Context, itemID string) (int, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	return count(repo.db.templateItems, func(ti template.TemplateItem) bool {
		return ti.ItemID == itemID && repo.db.templates[ti.TemplateID].Locked
	}), nil
}
