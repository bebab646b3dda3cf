package inmemdb

import (
	"cmp"
	"context"

	"github.com/trezcool/tathmini/core"
	"github.com/trezcool/tathmini/core/notification"
)

var emailTemplateComparators = comparators[notification.EmailTemplate]{
	"type":       func(a, b notification.EmailTemplate) int { return cmp.Compare(a.Type, b.Type) },
	"subject":    func(a, b notification.EmailTemplate) int { return cmp.Compare(a.Subject, b.Subject) },
	"created_at": func(a, b notification.EmailTemplate) int { return compareTimes(a.CreatedAt, b.CreatedAt) },
}

func emailTemplatesByCreation(a, b notification.EmailTemplate) int {
	return byCreation(a.CreatedAt, b.CreatedAt, a.ID, b.ID)
}

type emailTemplateRepository struct {
	db *DB
}

var _ notification.Repository = (*emailTemplateRepository)(nil)

func NewEmailTemplateRepository(db *DB) notification.Repository {
	return &emailTemplateRepository{db: db}
}

func (repo *emailTemplateRepository) CreateEmailTemplate(_ context.Context, et notification.EmailTemplate) (notification.EmailTemplate, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	et.ID = newID()
	repo.db.emailTemplates[et.ID] = et
	return et, nil
}

func (repo *emailTemplateRepository) GetEmailTemplateByID(_ context.Context, id string) (notification.EmailTemplate, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if et, ok := repo.db.emailTemplates[id]; ok {
		return et, nil
	}
	return notification.EmailTemplate{}, notification.ErrNotFound
}

func (repo *emailTemplateRepository) FilterEmailTemplates(_ context.Context, filter notification.QueryFilter, ordering ...core.DBOrdering) ([]notification.EmailTemplate, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	ets := values(repo.db.emailTemplates, filter.Match)
	sortRecords(ets, ordering, emailTemplateComparators, emailTemplatesByCreation)
	return ets, nil
}

func (repo *emailTemplateRepository) UpdateEmailTemplate(_ context.Context, et notification.EmailTemplate) (notification.EmailTemplate, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.emailTemplates[et.ID]; !ok {
		return notification.EmailTemplate{}, notification.ErrNotFound
	}
	repo.db.emailTemplates[et.ID] = et
	return et, nil
}

func (repo *emailTemplateRepository) DeleteEmailTemplate(_ context.Context, id string) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()
	delete(repo.db.emailTemplates, id)
	return nil
}

func (repo *emailTemplateRepository) GetDefaultEmailTemplate(_ context.Context, typ string) (notification.EmailTemplate, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	for _, et := range repo.db.emailTemplates {
		if et.IsDefault && et.Type == typ {
			return et, nil
		}
	}
	return notification.EmailTemplate{}, notification.ErrNotFound
}

func (repo *emailTemplateRepository) UnsetDefaultEmailTemplate(_ context.Context, typ string) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	for id, et := range repo.db.emailTemplates {
		if et.IsDefault && et.Type == typ {
			et.IsDefault = false
			repo.db.emailTemplates[id] = et
		}
	}
	return nil
}
