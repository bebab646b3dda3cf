package sqlxrepos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/tathmini/core"
	"github.com/trezcool/tathmini/core/evaluation"
)

const (
	evaluationColumns = `id, owner_id, title, instructions, template_id, start_date, due_date, stop_date, view_date,
		state, results_sharing, students_view_results, instructors_view_results, blank_responses_allowed,
		modify_responses_allowed, reminder_days, available_email_template_id, reminder_email_template_id, locked,
		created_at, updated_at`
	assignGroupColumns = `id, evaluation_id, group_id, instructor_approval, instructors_view_results,
		students_view_results, created_at`
)

var evaluationOrderColumns = map[string]string{
	"title":      "LOWER(title)",
	"start_date": "start_date",
	"due_date":   "due_date",
	"created_at": "created_at",
}

type (
	evaluationRow struct {
		ID                       string      `db:"id"`
		OwnerID                  string      `db:"owner_id"`
		Title                    string      `db:"title"`
		Instructions             string      `db:"instructions"`
		TemplateID               string      `db:"template_id"`
		StartDate                time.Time   `db:"start_date"`
		DueDate                  null.Time   `db:"due_date"`
		StopDate                 null.Time   `db:"stop_date"`
		ViewDate                 null.Time   `db:"view_date"`
		State                    string      `db:"state"`
		ResultsSharing           string      `db:"results_sharing"`
		StudentsViewResults      bool        `db:"students_view_results"`
		InstructorsViewResults   bool        `db:"instructors_view_results"`
		BlankResponsesAllowed    bool        `db:"blank_responses_allowed"`
		ModifyResponsesAllowed   bool        `db:"modify_responses_allowed"`
		ReminderDays             int         `db:"reminder_days"`
		AvailableEmailTemplateID null.String `db:"available_email_template_id"`
		ReminderEmailTemplateID  null.String `db:"reminder_email_template_id"`
		Locked                   bool        `db:"locked"`
		CreatedAt                time.Time   `db:"created_at"`
		UpdatedAt                time.Time   `db:"updated_at"`
	}

	assignGroupRow struct {
		ID                     string    `db:"id"`
		EvaluationID           string    `db:"evaluation_id"`
		GroupID                string    `db:"group_id"`
		InstructorApproval     bool      `db:"instructor_approval"`
		InstructorsViewResults bool      `db:"instructors_view_results"`
		StudentsViewResults    bool      `db:"students_view_results"`
		CreatedAt              time.Time `db:"created_at"`
	}
)

func nullTime(t *time.Time) null.Time {
	if t == nil {
		return null.Time{}
	}
	return null.TimeFrom(t.UTC())
}

func timePtr(t null.Time) *time.Time {
	if !t.Valid {
		return nil
	}
	utc := t.Time.UTC()
	return &utc
}

func newEvaluationRow(e evaluation.Evaluation) evaluationRow {
	return evaluationRow{
		ID:                       e.ID,
		OwnerID:                  e.OwnerID,
		Title:                    e.Title,
		Instructions:             e.Instructions,
		TemplateID:               e.TemplateID,
		StartDate:                e.StartDate.UTC(),
		DueDate:                  nullTime(e.DueDate),
		StopDate:                 nullTime(e.StopDate),
		ViewDate:                 nullTime(e.ViewDate),
		State:                    e.State,
		ResultsSharing:           e.ResultsSharing,
		StudentsViewResults:      e.StudentsViewResults,
		InstructorsViewResults:   e.InstructorsViewResults,
		BlankResponsesAllowed:    e.BlankResponsesAllowed,
		ModifyResponsesAllowed:   e.ModifyResponsesAllowed,
		ReminderDays:             e.ReminderDays,
		AvailableEmailTemplateID: null.NewString(e.AvailableEmailTemplateID, e.AvailableEmailTemplateID != ""),
		ReminderEmailTemplateID:  null.NewString(e.ReminderEmailTemplateID, e.ReminderEmailTemplateID != ""),
		Locked:                   e.Locked,
		CreatedAt:                e.CreatedAt.UTC(),
		UpdatedAt:                e.UpdatedAt.UTC(),
	}
}

func (r evaluationRow) evaluation() evaluation.Evaluation {
	return evaluation.Evaluation{
		ID:                       r.ID,
		OwnerID:                  r.OwnerID,
		Title:                    r.Title,
		Instructions:             r.Instructions,
		TemplateID:               r.TemplateID,
		StartDate:                r.StartDate.UTC(),
		DueDate:                  timePtr(r.DueDate),
		StopDate:                 timePtr(r.StopDate),
		ViewDate:                 timePtr(r.ViewDate),
		State:                    r.State,
		ResultsSharing:           r.ResultsSharing,
		StudentsViewResults:      r.StudentsViewResults,
		InstructorsViewResults:   r.InstructorsViewResults,
		BlankResponsesAllowed:    r.BlankResponsesAllowed,
		ModifyResponsesAllowed:   r.ModifyResponsesAllowed,
		ReminderDays:             r.ReminderDays,
		AvailableEmailTemplateID: r.AvailableEmailTemplateID.String,
		ReminderEmailTemplateID:  r.ReminderEmailTemplateID.String,
		Locked:                   r.Locked,
		CreatedAt:                r.CreatedAt.UTC(),
		UpdatedAt:                r.UpdatedAt.UTC(),
	}
}

func (r assignGroupRow) assignGroup() evaluation.AssignGroup {
	return evaluation.AssignGroup{
		ID:                     r.ID,
		EvaluationID:           r.EvaluationID,
		GroupID:                r.GroupID,
		InstructorApproval:     r.InstructorApproval,
		InstructorsViewResults: r.InstructorsViewResults,
		StudentsViewResults:    r.StudentsViewResults,
		CreatedAt:              r.CreatedAt.UTC(),
	}
}

type evaluationRepository struct {
	base
}

var _ evaluation.Repository = (*evaluationRepository)(nil)

func NewEvaluationRepository(db *sqlx.DB) evaluation.Repository {
	return &evaluationRepository{base{db: db}}
}

func (repo *evaluationRepository) selectEvaluations(ctx context.Context, q string, args ...interface{}) ([]evaluation.Evaluation, error) {
	var rows []evaluationRow
	if err := repo.exec(ctx).SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, err
	}
	evals := make([]evaluation.Evaluation, 0, len(rows))
	for _, r := range rows {
		evals = append(evals, r.evaluation())
	}
	return evals, nil
}

func (repo *evaluationRepository) CreateEvaluation(ctx context.Context, e evaluation.Evaluation) (evaluation.Evaluation, error) {
	e.ID = uuid.New().String()
	q := `INSERT INTO evaluation (` + evaluationColumns + `)
		VALUES (:id, :owner_id, :title, :instructions, :template_id, :start_date, :due_date, :stop_date, :view_date,
		:state, :results_sharing, :students_view_results, :instructors_view_results, :blank_responses_allowed,
		:modify_responses_allowed, :reminder_days, :available_email_template_id, :reminder_email_template_id, :locked,
		:created_at, :updated_at)`
	if _, err := repo.exec(ctx).NamedExecContext(ctx, q, newEvaluationRow(e)); err != nil {
		return evaluation.Evaluation{}, errors.Wrap(err, "inserting evaluation")
	}
	return e, nil
}

func (repo *evaluationRepository) GetEvaluationByID(ctx context.Context, id string) (evaluation.Evaluation, error) {
	if !isUUID(id) {
		return evaluation.Evaluation{}, evaluation.ErrNotFound
	}
	var row evaluationRow
	q := `SELECT ` + evaluationColumns + ` FROM evaluation WHERE id = $1`
	if err := repo.get(ctx, &row, evaluation.ErrNotFound, q, id); err != nil {
		return evaluation.Evaluation{}, errors.Wrap(err, "finding evaluation by ID")
	}
	return row.evaluation(), nil
}

func (repo *evaluationRepository) GetEvaluationsByID(ctx context.Context, ids ...string) ([]evaluation.Evaluation, error) {
	evals, err := repo.selectEvaluations(ctx,
		`SELECT `+evaluationColumns+` FROM evaluation WHERE id = ANY($1) ORDER BY created_at, id`, pq.Array(uuids(ids)))
	return evals, errors.Wrap(err, "finding evaluations by ID")
}

func (repo *evaluationRepository) FilterEvaluations(ctx context.Context, filter evaluation.QueryFilter, ordering ...core.DBOrdering) ([]evaluation.Evaluation, error) {
	var w where
	if filter.Search != "" {
		w.add("title ILIKE ?", likePattern(filter.Search))
	}
	if filter.OwnerID != "" {
		w.add("owner_id::text = ?", filter.OwnerID)
	}
	if filter.TemplateID != "" {
		w.add("template_id::text = ?", filter.TemplateID)
	}
	q := w.query(`SELECT `+evaluationColumns+` FROM evaluation`, orderBy(ordering, evaluationOrderColumns, "created_at, id"))
	evals, err := repo.selectEvaluations(ctx, q, w.args...)
	return evals, errors.Wrap(err, "querying evaluations")
}

func (repo *evaluationRepository) UpdateEvaluation(ctx context.Context, e evaluation.Evaluation) (evaluation.Evaluation, error) {
	q := `UPDATE evaluation SET title = :title, instructions = :instructions, template_id = :template_id,
		start_date = :start_date, due_date = :due_date, stop_date = :stop_date, view_date = :view_date,
		state = :state, results_sharing = :results_sharing, students_view_results = :students_view_results,
		instructors_view_results = :instructors_view_results, blank_responses_allowed = :blank_responses_allowed,
		modify_responses_allowed = :modify_responses_allowed, reminder_days = :reminder_days,
		available_email_template_id = :available_email_template_id,
		reminder_email_template_id = :reminder_email_template_id, locked = :locked, updated_at = :updated_at
		WHERE id = :id`
	res, err := repo.exec(ctx).NamedExecContext(ctx, q, newEvaluationRow(e))
	if err != nil {
		return evaluation.Evaluation{}, errors.Wrap(err, "updating evaluation")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return evaluation.Evaluation{}, evaluation.ErrNotFound
	}
	return e, nil
}

func (repo *evaluationRepository) DeleteEvaluation(ctx context.Context, id string) error {
	// assign groups are deleted on cascade
	_, err := repo.exec(ctx).ExecContext(ctx, `DELETE FROM evaluation WHERE id = $1`, id)
	return errors.Wrap(err, "deleting evaluation")
}

func (repo *evaluationRepository) CountEvaluationsByTemplate(ctx context.Context, templateID string) (int, error) {
	if !isUUID(templateID) {
		return 0, nil
	}
	n, err := repo.count(ctx, `SELECT COUNT(*) FROM evaluation WHERE template_id = $1`, templateID)
	return n, errors.Wrap(err, "counting evaluations by template")
}

func (repo *evaluationRepository) CountEvaluationsByEmailTemplate(ctx context.Context, emailTemplateID string) (int, error) {
	if !isUUID(emailTemplateID) {
		return 0, nil
	}
	n, err := repo.count(ctx,
		`SELECT COUNT(*) FROM evaluation WHERE available_email_template_id = $1 OR reminder_email_template_id = $1`,
		emailTemplateID)
	return n, errors.Wrap(err, "counting evaluations by email template")
}

// assign groups

func (repo *evaluationRepository) selectAssignGroups(ctx context.Context, q string, args ...interface{}) ([]evaluation.AssignGroup, error) {
	var rows []assignGroupRow
	if err := repo.exec(ctx).SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, err
	}
	ags := make([]evaluation.AssignGroup, 0, len(rows))
	for _, r := range rows {
		ags = append(ags, r.assignGroup())
	}
	return ags, nil
}

func (repo *evaluationRepository) CreateAssignGroup(ctx context.Context, ag evaluation.AssignGroup) (evaluation.AssignGroup, error) {
	ag.ID = uuid.New().String()
	q := `INSERT INTO assign_group (` + assignGroupColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := repo.exec(ctx).ExecContext(ctx, q, ag.ID, ag.EvaluationID, ag.GroupID, ag.InstructorApproval,
		ag.InstructorsViewResults, ag.StudentsViewResults, ag.CreatedAt.UTC())
	if err != nil {
		return evaluation.AssignGroup{}, errors.Wrap(err, "inserting assign group")
	}
	return ag, nil
}

func (repo *evaluationRepository) GetAssignGroupByID(ctx context.Context, id string) (evaluation.AssignGroup, error) {
	if !isUUID(id) {
		return evaluation.AssignGroup{}, evaluation.ErrAssignGroupNotFound
	}
	var row assignGroupRow
	q := `SELECT ` + assignGroupColumns + ` FROM assign_group WHERE id = $1`
	if err := repo.get(ctx, &row, evaluation.ErrAssignGroupNotFound, q, id); err != nil {
		return evaluation.AssignGroup{}, errors.Wrap(err, "finding assign group by ID")
	}
	return row.assignGroup(), nil
}

func (repo *evaluationRepository) GetAssignGroup(ctx context.Context, evalID, groupID string) (evaluation.AssignGroup, error) {
	if !isUUID(evalID) || !isUUID(groupID) {
		return evaluation.AssignGroup{}, evaluation.ErrAssignGroupNotFound
	}
	var row assignGroupRow
	q := `SELECT ` + assignGroupColumns + ` FROM assign_group WHERE evaluation_id = $1 AND group_id = $2`
	if err := repo.get(ctx, &row, evaluation.ErrAssignGroupNotFound, q, evalID, groupID); err != nil {
		return evaluation.AssignGroup{}, errors.Wrap(err, "finding assign group")
	}
	return row.assignGroup(), nil
}

func (repo *evaluationRepository) ListAssignGroups(ctx context.Context, evalID string) ([]evaluation.AssignGroup, error) {
	if !isUUID(evalID) {
		return nil, nil
	}
	ags, err := repo.selectAssignGroups(ctx,
		`SELECT `+assignGroupColumns+` FROM assign_group WHERE evaluation_id = $1 ORDER BY created_at, id`, evalID)
	return ags, errors.Wrap(err, "listing assign groups")
}

func (repo *evaluationRepository) ListAssignGroupsByGroups(ctx context.Context, groupIDs ...string) ([]evaluation.AssignGroup, error) {
	ags, err := repo.selectAssignGroups(ctx,
		`SELECT `+assignGroupColumns+` FROM assign_group WHERE group_id = ANY($1) ORDER BY created_at, id`,
		pq.Array(uuids(groupIDs)))
	return ags, errors.Wrap(err, "listing assign groups by groups")
}

func (repo *evaluationRepository) UpdateAssignGroup(ctx context.Context, ag evaluation.AssignGroup) (evaluation.AssignGroup, error) {
	q := `UPDATE assign_group SET instructor_approval = $1, instructors_view_results = $2, students_view_results = $3
		WHERE id = $4`
	err := repo.execOne(ctx, evaluation.ErrAssignGroupNotFound, q,
		ag.InstructorApproval, ag.InstructorsViewResults, ag.StudentsViewResults, ag.ID)
	if err != nil {
		return evaluation.AssignGroup{}, errors.Wrap(err, "updating assign group")
	}
	return ag, nil
}

func (repo *evaluationRepository) DeleteAssignGroup(ctx context.Context, id string) error {
	_, err := repo.exec(ctx).ExecContext(ctx, `DELETE FROM assign_group WHERE id = $1`, id)
	return errors.Wrap(err, "deleting assign group")
}

func (repo *evaluationRepository) CountAssignGroupsByGroup(ctx context.Context, groupID string) (int, error) {
	if !isUUID(groupID) {
		return 0, nil
	}
	n, err := repo.count(ctx, `SELECT COUNT(*) FROM assign_group WHERE group_id = $1`, groupID)
	return n, errors.Wrap(err, "counting assign groups by group")
}
