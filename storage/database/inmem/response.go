package inmemdb

import (
	"context"

	"github.com/trezcool/tathmini/core/response"
)

func responsesByStart(a, b response.Response) int {
	return byCreation(a.StartTime, b.StartTime, a.ID, b.ID)
}

type responseRepository struct {
	db *DB
}

var _ response.Repository = (*responseRepository)(nil)

func NewResponseRepository(db *DB) response.Repository {
	return &responseRepository{db: db}
}

func copyResponse(r response.Response) response.Response {
	r.EndTime = copyTimePtr(r.EndTime)
	answers := make([]response.Answer, 0, len(r.Answers))
	for _, ans := range r.Answers {
		if ans.Numeric != nil {
			n := *ans.Numeric
			ans.Numeric = &n
		}
		if ans.Multi != nil {
			ans.Multi = append([]int(nil), ans.Multi...)
		}
		answers = append(answers, ans)
	}
	r.Answers = answers
	return r
}

// withAnswerIDs sets the IDs of the answers of r.
func withAnswerIDs(r response.Response) response.Response {
	r = copyResponse(r)
	for i := range r.Answers {
		r.Answers[i].ID = newID()
		r.Answers[i].ResponseID = r.ID
	}
	return r
}

func (repo *responseRepository) CreateResponse(_ context.Context, r response.Response) (response.Response, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	r.ID = newID()
	r = withAnswerIDs(r)
	repo.db.responses[r.ID] = r
	return copyResponse(r), nil
}

func (repo *responseRepository) UpdateResponse(_ context.Context, r response.Response) (response.Response, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.responses[r.ID]; !ok {
		return response.Response{}, response.ErrNotFound
	}
	r = withAnswerIDs(r)
	repo.db.responses[r.ID] = r
	return copyResponse(r), nil
}

func (repo *responseRepository) GetResponseByID(_ context.Context, id string) (response.Response, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if r, ok := repo.db.responses[id]; ok {
		return copyResponse(r), nil
	}
	return response.Response{}, response.ErrNotFound
}

func (repo *responseRepository) GetResponseForUser(_ context.Context, evalID, groupID, userID string) (response.Response, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	for _, r := range repo.db.responses {
		if r.EvaluationID == evalID && r.GroupID == groupID && r.OwnerID == userID {
			return copyResponse(r), nil
		}
	}
	return response.Response{}, response.ErrNotFound
}

func (repo *responseRepository) matcher(evalID, groupID string) func(response.Response) bool {
	return func(r response.Response) bool {
		return r.EvaluationID == evalID && (groupID == "" || r.GroupID == groupID)
	}
}

func (repo *responseRepository) ListResponses(_ context.Context, evalID, groupID string) ([]response.Response, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	rs := values(repo.db.responses, repo.matcher(evalID, groupID))
	for i := range rs {
		rs[i] = copyResponse(rs[i])
	}
	sortRecords(rs, nil, nil, responsesByStart)
	return rs, nil
}

func (repo *responseRepository) CountResponses(_ context.Context, evalID, groupID string) (int, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()
	return count(repo.db.responses, repo.matcher(evalID, groupID)), nil
}
