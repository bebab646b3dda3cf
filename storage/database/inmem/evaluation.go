package inmemdb

import (
	"cmp"
	"context"
	"strings"
	"time"

	"github.com/trezcool/tathmini/core"
	"github.com/trezcool/tathmini/core/evaluation"
)

var evaluationComparators = comparators[evaluation.Evaluation]{
	"title": func(a, b evaluation.Evaluation) int {
		return cmp.Compare(strings.ToLower(a.Title), strings.ToLower(b.Title))
	},
	"start_date": func(a, b evaluation.Evaluation) int { return compareTimes(a.StartDate, b.StartDate) },
	"due_date":   func(a, b evaluation.Evaluation) int { return compareTimePtrs(a.DueDate, b.DueDate) },
	"created_at": func(a, b evaluation.Evaluation) int { return compareTimes(a.CreatedAt, b.CreatedAt) },
}

func evaluationsByCreation(a, b evaluation.Evaluation) int {
	return byCreation(a.CreatedAt, b.CreatedAt, a.ID, b.ID)
}

func assignGroupsByCreation(a, b evaluation.AssignGroup) int {
	return byCreation(a.CreatedAt, b.CreatedAt, a.ID, b.ID)
}

// compareTimePtrs sorts nil times last.
func compareTimePtrs(a, b *time.Time) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	}
	return compareTimes(*a, *b)
}

func copyTimePtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

func copyEvaluation(e evaluation.Evaluation) evaluation.Evaluation {
	e.DueDate = copyTimePtr(e.DueDate)
	e.StopDate = copyTimePtr(e.StopDate)
	e.ViewDate = copyTimePtr(e.ViewDate)
	return e
}

type evaluationRepository struct {
	db *DB
}

var _ evaluation.Repository = (*evaluationRepository)(nil)

func NewEvaluationRepository(db *DB) evaluation.Repository {
	return &evaluationRepository{db: db}
}

func (repo *evaluationRepository) CreateEvaluation(_ context.Context, e evaluation.Evaluation) (evaluation.Evaluation, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	e.ID = newID()
	repo.db.evaluations[e.ID] = copyEvaluation(e)
	return e, nil
}

func (repo *evaluationRepository) GetEvaluationByID(_ context.Context, id string) (evaluation.Evaluation, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if e, ok := repo.db.evaluations[id]; ok {
		return copyEvaluation(e), nil
	}
	return evaluation.Evaluation{}, evaluation.ErrNotFound
}

func (repo *evaluationRepository) GetEvaluationsByID(_ context.Context, ids ...string) ([]evaluation.Evaluation, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	evals := make([]evaluation.Evaluation, 0, len(ids))
	for _, id := range ids {
		if e, ok := repo.db.evaluations[id]; ok {
			evals = append(evals, copyEvaluation(e))
		}
	}
	sortRecords(evals, nil, nil, evaluationsByCreation)
	return evals, nil
}

func (repo *evaluationRepository) FilterEvaluations(_ context.Context, filter evaluation.QueryFilter, ordering ...core.DBOrdering) ([]evaluation.Evaluation, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	evals := values(repo.db.evaluations, filter.Match)
	for i := range evals {
		evals[i] = copyEvaluation(evals[i])
	}
	sortRecords(evals, ordering, evaluationComparators, evaluationsByCreation)
	return evals, nil
}

func (repo *evaluationRepository) UpdateEvaluation(_ context.Context, e evaluation.Evaluation) (evaluation.Evaluation, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.evaluations[e.ID]; !ok {
		return evaluation.Evaluation{}, evaluation.ErrNotFound
	}
	repo.db.evaluations[e.ID] = copyEvaluation(e)
	return e, nil
}

func (repo *evaluationRepository) DeleteEvaluation(_ context.Context, id string) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	delete(repo.db.evaluations, id)
	for agID, ag := range repo.db.assignGroups {
		if ag.EvaluationID == id {
			delete(repo.db.assignGroups, agID)
		}
	}
	return nil
}

func (repo *evaluationRepository) CountEvaluationsByTemplate(_ context.Context, templateID string) (int, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	return count(repo.db.evaluations, func(e evaluation.Evaluation) bool {
		return e.TemplateID == templateID
	}), nil
}

func (repo *evaluationRepository) CountEvaluationsByEmailTemplate(_ context.Context, emailTemplateID string) (int, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	return count(repo.db.evaluations, func(e evaluation.Evaluation) bool {
		return e.AvailableEmailTemplateID == emailTemplateID || e.ReminderEmailTemplateID == emailTemplateID
	}), nil
}

// assign groups

func (repo *evaluationRepository) CreateAssignGroup(_ context.Context, ag evaluation.AssignGroup) (evaluation.AssignGroup, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	ag.ID = newID()
	repo.db.assignGroups[ag.ID] = ag
	return ag, nil
}

func (repo *evaluationRepository) GetAssignGroupByID(_ context.Context, id string) (evaluation.AssignGroup, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if ag, ok := repo.db.assignGroups[id]; ok {
		return ag, nil
	}
	return evaluation.AssignGroup{}, evaluation.ErrAssignGroupNotFound
}

func (repo *evaluationRepository) GetAssignGroup(_ context.Context, evalID, groupID string) (evaluation.AssignGroup, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	for _, ag := range repo.db.assignGroups {
		if ag.EvaluationID == evalID && ag.GroupID == groupID {
			return ag, nil
		}
	}
	return evaluation.AssignGroup{}, evaluation.ErrAssignGroupNotFound
}

func (repo *evaluationRepository) ListAssignGroups(_ context.Context, evalID string) ([]evaluation.AssignGroup, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	ags := values(repo.db.assignGroups, func(ag evaluation.AssignGroup) bool { return ag.EvaluationID == evalID })
	sortRecords(ags, nil, nil, assignGroupsByCreation)
	return ags, nil
}

func (repo *evaluationRepository) ListAssignGroupsByGroups(_ context.Context, groupIDs ...string) ([]evaluation.AssignGroup, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	ags := values(repo.db.assignGroups, func(ag evaluation.AssignGroup) bool {
		return core.StringInSlice(ag.GroupID, groupIDs)
	})
	sortRecords(ags, nil, nil, assignGroupsByCreation)
	return ags, nil
}

func (repo *evaluationRepository) UpdateAssignGroup(_ context.Context, ag evaluation.AssignGroup) (evaluation.AssignGroup, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.assignGroups[ag.ID]; !ok {
		return evaluation.AssignGroup{}, evaluation.ErrAssignGroupNotFound
	}
	repo.db.assignGroups[ag.ID] = ag
	return ag, nil
}

func (repo *evaluationRepository) DeleteAssignGroup(_ context.Context, id string) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()
	delete(repo.db.assignGroups, id)
	return nil
}

func (repo *evaluationRepository) CountAssignGroupsByGroup(_ context.Context, groupID string) (int, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()
	return count(repo.db.assignGroups, func(ag evaluation.AssignGroup) bool { return ag.GroupID == groupID }), nil
}
