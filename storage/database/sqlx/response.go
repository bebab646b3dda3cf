package sqlxrepos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/tathmini/core/response"
)

const (
	responseColumns = `id, evaluation_id, group_id, owner_id, start_time, end_time`
	answerColumns   = `id, response_id, template_item_id, "numeric", text, multi`
)

type (
	responseRow struct {
		ID           string    `db:"id"`
		EvaluationID string    `db:"evaluation_id"`
		GroupID      string    `db:"group_id"`
		OwnerID      string    `db:"owner_id"`
		StartTime    time.Time `db:"start_time"`
		EndTime      null.Time `db:"end_time"`
	}

	answerRow struct {
		ID             string        `db:"id"`
		ResponseID     string        `db:"response_id"`
		TemplateItemID string        `db:"template_item_id"`
		Numeric        null.Int      `db:"numeric"`
		Text           string        `db:"text"`
		Multi          pq.Int64Array `db:"multi"`
	}
)

func (r responseRow) response() response.Response {
	return response.Response{
		ID:           r.ID,
		EvaluationID: r.EvaluationID,
		GroupID:      r.GroupID,
		OwnerID:      r.OwnerID,
		StartTime:    r.StartTime.UTC(),
		EndTime:      timePtr(r.EndTime),
	}
}

func newAnswerRow(responseID string, ans response.Answer) answerRow {
	row := answerRow{
		ID:             uuid.New().String(),
		ResponseID:     responseID,
		TemplateItemID: ans.TemplateItemID,
		Numeric:        null.IntFromPtr(ans.Numeric),
		Text:           ans.Text,
	}
	if ans.Multi != nil {
		row.Multi = make(pq.Int64Array, 0, len(ans.Multi))
		for _, idx := range ans.Multi {
			row.Multi = append(row.Multi, int64(idx))
		}
	}
	return row
}

func (r answerRow) answer() response.Answer {
	ans := response.Answer{
		ID:             r.ID,
		ResponseID:     r.ResponseID,
		TemplateItemID: r.TemplateItemID,
		Numeric:        r.Numeric.Ptr(),
		Text:           r.Text,
	}
	if r.Multi != nil {
		ans.Multi = make([]int, 0, len(r.Multi))
		for _, idx := range r.Multi {
			ans.Multi = append(ans.Multi, int(idx))
		}
	}
	return ans
}

type responseRepository struct {
	base
}

var _ response.Repository = (*responseRepository)(nil)

func NewResponseRepository(db *sqlx.DB) response.Repository {
	return &responseRepository{base{db: db}}
}

func (repo *responseRepository) insertAnswers(ctx context.Context, responseID string, answers []response.Answer) ([]response.Answer, error) {
	saved := make([]response.Answer, 0, len(answers))
	q := `INSERT INTO answer (` + answerColumns + `) VALUES (:id, :response_id, :template_item_id, :numeric, :text, :multi)`
	for _, ans := range answers {
		row := newAnswerRow(responseID, ans)
		if _, err := repo.exec(ctx).NamedExecContext(ctx, q, row); err != nil {
			return nil, errors.Wrap(err, "inserting answer")
		}
		saved = append(saved, row.answer())
	}
	return saved, nil
}

// withAnswers loads the answers of rs.
func (repo *responseRepository) withAnswers(ctx context.Context, rows []responseRow) ([]response.Response, error) {
	if len(rows) == 0 {
		return []response.Response{}, nil
	}
	ids := make([]string, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.ID)
	}
	var ansRows []answerRow
	q := `SELECT ` + answerColumns + ` FROM answer WHERE response_id = ANY($1) ORDER BY response_id, id`
	if err := repo.exec(ctx).SelectContext(ctx, &ansRows, q, pq.Array(ids)); err != nil {
		return nil, errors.Wrap(err, "listing answers")
	}
	byResponse := make(map[string][]response.Answer, len(rows))
	for _, a := range ansRows {
		byResponse[a.ResponseID] = append(byResponse[a.ResponseID], a.answer())
	}

	rs := make([]response.Response, 0, len(rows))
	for _, row := range rows {
		r := row.response()
		r.Answers = byResponse[r.ID]
		rs = append(rs, r)
	}
	return rs, nil
}

func (repo *responseRepository) getResponse(ctx context.Context, cond string, args ...interface{}) (response.Response, error) {
	var row responseRow
	q := sqlx.Rebind(sqlx.DOLLAR, `SELECT `+responseColumns+` FROM response WHERE `+cond)
	if err := repo.get(ctx, &row, response.ErrNotFound, q, args...); err != nil {
		return response.Response{}, err
	}
	rs, err := repo.withAnswers(ctx, []responseRow{row})
	if err != nil {
		return response.Response{}, err
	}
	return rs[0], nil
}

func (repo *responseRepository) CreateResponse(ctx context.Context, r response.Response) (response.Response, error) {
	r.ID = uuid.New().String()
	_, err := repo.exec(ctx).ExecContext(ctx,
		`INSERT INTO response (`+responseColumns+`) VALUES ($1, $2, $3, $4, $5, $6)`,
		r.ID, r.EvaluationID, r.GroupID, r.OwnerID, r.StartTime.UTC(), nullTime(r.EndTime))
	if err != nil {
		return response.Response{}, errors.Wrap(err, "inserting response")
	}
	if r.Answers, err = repo.insertAnswers(ctx, r.ID, r.Answers); err != nil {
		return response.Response{}, err
	}
	return r, nil
}

func (repo *responseRepository) UpdateResponse(ctx context.Context, r response.Response) (response.Response, error) {
	err := repo.execOne(ctx, response.ErrNotFound,
		`UPDATE response SET end_time = $1 WHERE id = $2`, nullTime(r.EndTime), r.ID)
	if err != nil {
		return response.Response{}, errors.Wrap(err, "updating response")
	}
	if _, err = repo.exec(ctx).ExecContext(ctx, `DELETE FROM answer WHERE response_id = $1`, r.ID); err != nil {
		return response.Response{}, errors.Wrap(err, "deleting answers")
	}
	if r.Answers, err = repo.insertAnswers(ctx, r.ID, r.Answers); err != nil {
		return response.Response{}, err
	}
	return r, nil
}

func (repo *responseRepository) GetResponseByID(ctx context.Context, id string) (response.Response, error) {
	if !isUUID(id) {
		return response.Response{}, response.ErrNotFound
	}
	r, err := repo.getResponse(ctx, "id = ?", id)
	return r, errors.Wrap(err, "finding response by ID")
}

func (repo *responseRepository) GetResponseForUser(ctx context.Context, evalID, groupID, userID string) (response.Response, error) {
	if !isUUID(evalID) || !isUUID(groupID) || !isUUID(userID) {
		return response.Response{}, response.ErrNotFound
	}
	r, err := repo.getResponse(ctx, "evaluation_id = ? AND group_id = ? AND owner_id = ?", evalID, groupID, userID)
	return r, errors.Wrap(err, "finding user response")
}

func responsesWhere(evalID, groupID string) where {
	var w where
	w.add("evaluation_id = ?", evalID)
	if groupID != "" {
		w.add("group_id = ?", groupID)
	}
	return w
}

func (repo *responseRepository) ListResponses(ctx context.Context, evalID, groupID string) ([]response.Response, error) {
	if !isUUID(evalID) || (groupID != "" && !isUUID(groupID)) {
		return []response.Response{}, nil
	}
	w := responsesWhere(evalID, groupID)
	var rows []responseRow
	if err := repo.exec(ctx).SelectContext(ctx, &rows, w.query(`SELECT `+responseColumns+` FROM response`, "start_time, id"), w.args...); err != nil {
		return nil, errors.Wrap(err, "listing responses")
	}
	return repo.withAnswers(ctx, rows)
}

func (repo *responseRepository) CountResponses(ctx context.Context, evalID, groupID string) (int, error) {
	if !isUUID(evalID) || (groupID != "" && !isUUID(groupID)) {
		return 0, nil
	}
	w := responsesWhere(evalID, groupID)
	n, err := repo.count(ctx, w.query(`SELECT COUNT(*) FROM response`, ""), w.args...)
	return n, errors.Wrap(err, "counting responses")
}
