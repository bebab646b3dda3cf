package evaluation

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/tathmini/core"
	"github.com/trezcool/tathmini/core/group"
	"github.com/trezcool/tathmini/core/template"
	"github.com/trezcool/tathmini/core/user"
)

var (
	// errors
	ErrNotFound            = core.NewNotFoundError("evaluation")
	ErrAssignGroupNotFound = core.NewNotFoundError("assign group")

	errDueBeforeStart  = core.NewFieldError("due_date", "due date must be after start date")
	errStopWithoutDue  = core.NewFieldError("stop_date", "a stop date requires a due date")
	errStopBeforeDue   = core.NewFieldError("stop_date", "stop date cannot precede due date")
	errViewBeforeStop  = core.NewFieldError("view_date", "view date cannot precede stop date")
	errViewBeforeStart = core.NewFieldError("view_date", "view date cannot precede start date")
	errTemplateType    = core.NewFieldError("template_id", "evaluations require a standard template")
	errTemplateEmpty   = core.NewFieldError("template_id", "the template must contain at least one item")

	errNoCreate          = core.NewPermissionError("only admins and instructors can create evaluations")
	errNoControl         = core.NewPermissionError("only the owner or an admin can change this evaluation")
	errTemplateNotUsable = core.NewPermissionError("the evaluation owner cannot use this template")
	errEmailNotUsable    = core.NewPermissionError("the evaluation owner cannot use this email template")
	errNotGroupInstr     = core.NewPermissionError("only admins and instructors of this group can assign it")

	errStartedChange   = core.NewStateError("you may not change the start date or template of an evaluation that has started")
	errLockedChange    = core.NewStateError("you may not change dates on a locked evaluation")
	errClosedChange    = core.NewStateError("only the view date and results settings of a closed evaluation can change")
	errDeleteStarted   = core.NewStateError("an evaluation with responses cannot be deleted once started")
	errNotOpen         = core.NewStateError("only active evaluations can be closed")
	errAssignClosed    = core.NewStateError("groups cannot be assigned to a closed evaluation")
	errAlreadyAssigned = core.NewStateError("this group is already assigned to the evaluation")
	errUnassignStarted = core.NewStateError("a group with responses cannot be removed once the evaluation started")
)

type (
	Repository interface {
		CreateEvaluation(ctx context.Context, e Evaluation) (Evaluation, error)
		GetEvaluationByID(ctx context.Context, id string) (Evaluation, error)
		GetEvaluationsByID(ctx context.Context, ids ...string) ([]Evaluation, error)
		FilterEvaluations(ctx context.Context, filter QueryFilter, ordering ...core.DBOrdering) ([]Evaluation, error)
		UpdateEvaluation(ctx context.Context, e Evaluation) (Evaluation, error)
		// DeleteEvaluation deletes the evaluation and its assign groups.
		DeleteEvaluation(ctx context.Context, id string) error
		CountEvaluationsByTemplate(ctx context.Context, templateID string) (int, error)
		CountEvaluationsByEmailTemplate(ctx context.Context, emailTemplateID string) (int, error)

		CreateAssignGroup(ctx context.Context, ag AssignGroup) (AssignGroup, error)
		GetAssignGroupByID(ctx context.Context, id string) (AssignGroup, error)
		GetAssignGroup(ctx context.Context, evalID, groupID string) (AssignGroup, error)
		ListAssignGroups(ctx context.Context, evalID string) ([]AssignGroup, error)
		ListAssignGroupsByGroups(ctx context.Context, groupIDs ...string) ([]AssignGroup, error)
		UpdateAssignGroup(ctx context.Context, ag AssignGroup) (AssignGroup, error)
		DeleteAssignGroup(ctx context.Context, id string) error
		CountAssignGroupsByGroup(ctx context.Context, groupID string) (int, error)
	}

	// ResponseCounter counts the responses of an evaluation; an empty groupID counts all groups.
	ResponseCounter interface {
		CountResponses(ctx context.Context, evalID, groupID string) (int, error)
	}

	// EmailTemplateRef is what an evaluation needs to know of the email templates it references.
	EmailTemplateRef struct {
		ID        string
		OwnerID   string
		Type      string
		IsDefault bool
	}

	// EmailTemplateGetter returns a NotFoundError for unknown email templates.
	EmailTemplateGetter interface {
		GetEmailTemplateRef(ctx context.Context, id string) (EmailTemplateRef, error)
	}

	// Scheduler plans the lifecycle jobs (state syncs, reminders) of evaluations.
	Scheduler interface {
		Schedule(ctx context.Context, e Evaluation) error
	}

	Service interface {
		Create(ctx context.Context, actor user.User, ne NewEvaluation) (Evaluation, error)
		GetByID(ctx context.Context, id string) (Evaluation, error)
		Query(ctx context.Context, actor user.User, filter *QueryFilter, ordering []core.DBOrdering) ([]Evaluation, error)
		ListByTemplate(ctx context.Context, templateID string) ([]Evaluation, error)
		CountByTemplate(ctx context.Context, templateID string) (int, error)
		// ListTakeable lists the open evaluations assigned to the groups where actor is a student.
		ListTakeable(ctx context.Context, actor user.User) ([]Assignment, error)
		Update(ctx context.Context, actor user.User, id string, ue UpdateEvaluation) (Evaluation, error)
		Delete(ctx context.Context, actor user.User, id string) error
		// Close ends an open evaluation now.
		Close(ctx context.Context, actor user.User, id string) (Evaluation, error)
		// SyncState persists the derived state of the evaluation and returns the previous and new states.
		SyncState(ctx context.Context, id string) (prev, next string, err error)
		Lock(ctx context.Context, id string) error
		CanControl(actor user.User, e Evaluation) bool

		AssignGroup(ctx context.Context, actor user.User, evalID string, nag NewAssignGroup) (AssignGroup, error)
		UpdateAssignGroup(ctx context.Context, actor user.User, id string, uag UpdateAssignGroup) (AssignGroup, error)
		RemoveAssignGroup(ctx context.Context, actor user.User, id string) error
		GetAssignGroup(ctx context.Context, evalID, groupID string) (AssignGroup, error)
		ListAssignGroups(ctx context.Context, evalID string) ([]AssignGroup, error)
	}

	Deps struct {
		Tx        core.Transactor
		Repo      Repository
		Templates template.Service
		Groups    group.Service
		Users     group.UserGetter
		Responses ResponseCounter
		Emails    EmailTemplateGetter
		Scheduler Scheduler
		Logger    core.Logger
	}

	service struct {
		Deps
		reminderDays int
	}
)

var _ Service = (*service)(nil)

func NewService(conf *core.Config, deps Deps) Service {
	if deps.Scheduler == nil {
		deps.Scheduler = NoopScheduler{}
	}
	return &service{Deps: deps, reminderDays: conf.Evaluation.ReminderDays}
}

// NoopScheduler is used when no job queue is configured.
type NoopScheduler struct{}

func (NoopScheduler) Schedule(context.Context, Evaluation) error { return nil }

func (svc *service) CanControl(actor user.User, e Evaluation) bool {
	return actor.IsAdmin() || (actor.ID != "" && actor.ID == e.OwnerID)
}

func (svc *service) schedule(ctx context.Context, e Evaluation) {
	if e.State == StatePartial {
		return
	}
	if err := svc.Scheduler.Schedule(ctx, e); err != nil {
		svc.Logger.Error("scheduling evaluation jobs", errors.Wrapf(err, "evaluation %s", e.ID))
	}
}

// savedState is the state stored on create and update. An evaluation is never
// stored past inqueue before SyncState opens it, so opening always notifies.
func savedState(e Evaluation, now time.Time) string {
	next := DeriveState(e, now)
	if IsBefore(e.State, StateActive) && IsAfter(next, StateInQueue) && next != StateDeleted {
		return StateInQueue
	}
	return next
}

// withState returns e with its state derived at the current time.
func withState(e Evaluation) Evaluation {
	e.State = DeriveState(e, core.Now())
	return e
}

func (svc *service) checkTemplate(ctx context.Context, ownerID, templateID string) error {
	t, err := svc.Templates.GetByID(ctx, templateID)
	if err != nil {
		if errors.Cause(err) == template.ErrNotFound {
			return core.NewFieldError("template_id", err.Error())
		}
		return errors.Wrap(err, "finding template by ID")
	}
	if t.Type != template.TypeStandard {
		return errTemplateType
	}
	owner, err := svc.Users.GetByID(ctx, ownerID)
	if err != nil {
		return errors.Wrap(err, "finding owner by ID")
	}
	if !svc.Templates.CanUse(owner, t) {
		return errTemplateNotUsable
	}
	items, err := svc.Templates.ListItems(ctx, t.ID)
	if err != nil {
		return errors.Wrap(err, "listing template items")
	}
	if len(items) == 0 {
		return errTemplateEmpty
	}
	return nil
}

// checkEmailTemplate verifies that id, when set, is an email template of typ the owner may use.
func (svc *service) checkEmailTemplate(ctx context.Context, owner user.User, field, id, typ string) error {
	if id == "" {
		return nil
	}
	et, err := svc.Emails.GetEmailTemplateRef(ctx, id)
	if err != nil {
		if core.IsNotFound(err) {
			return core.NewFieldError(field, "email template not found")
		}
		return errors.Wrap(err, "finding email template by ID")
	}
	if et.Type != typ {
		return core.NewFieldError(field, fmt.Sprintf("must be a %s email template", typ))
	}
	if !(et.IsDefault || owner.IsAdmin() || owner.ID == et.OwnerID) {
		return errEmailNotUsable
	}
	return nil
}

func (svc *service) checkEmailTemplates(ctx context.Context, e Evaluation) error {
	if e.AvailableEmailTemplateID == "" && e.ReminderEmailTemplateID == "" {
		return nil
	}
	owner, err := svc.Users.GetByID(ctx, e.OwnerID)
	if err != nil {
		return errors.Wrap(err, "finding owner by ID")
	}
	if err := svc.checkEmailTemplate(ctx, owner, "available_email_template_id", e.AvailableEmailTemplateID, EmailAvailable); err != nil {
		return err
	}
	return svc.checkEmailTemplate(ctx, owner, "reminder_email_template_id", e.ReminderEmailTemplateID, EmailReminder)
}

// releaseTemplate unlocks the template when no evaluation uses it anymore.
func (svc *service) releaseTemplate(ctx context.Context, templateID string) error {
	count, err := svc.Repo.CountEvaluationsByTemplate(ctx, templateID)
	if err != nil {
		return errors.Wrap(err, "counting evaluations by template")
	}
	if count > 0 {
		return nil
	}
	return errors.Wrap(svc.Templates.Unlock(ctx, templateID), "unlocking template")
}

func (svc *service) Create(ctx context.Context, actor user.User, ne NewEvaluation) (Evaluation, error) {
	if !(actor.IsAdmin() || actor.IsInstructor()) {
		return Evaluation{}, errNoCreate
	}

	now := core.Now()
	e := Evaluation{
		OwnerID:                  actor.ID,
		Title:                    ne.Title,
		Instructions:             ne.Instructions,
		TemplateID:               ne.TemplateID,
		StartDate:                ne.StartDate,
		DueDate:                  ne.DueDate,
		StopDate:                 ne.StopDate,
		ViewDate:                 ne.ViewDate,
		ResultsSharing:           ne.ResultsSharing,
		StudentsViewResults:      ne.StudentsViewResults,
		InstructorsViewResults:   true,
		BlankResponsesAllowed:    ne.BlankResponsesAllowed,
		ModifyResponsesAllowed:   ne.ModifyResponsesAllowed,
		ReminderDays:             svc.reminderDays,
		AvailableEmailTemplateID: ne.AvailableEmailTemplateID,
		ReminderEmailTemplateID:  ne.ReminderEmailTemplateID,
		CreatedAt:                now,
		UpdatedAt:                now,
	}
	if ne.InstructorsViewResults != nil {
		e.InstructorsViewResults = *ne.InstructorsViewResults
	}
	if ne.ReminderDays != nil {
		e.ReminderDays = *ne.ReminderDays
	}
	normalizeDates(&e)
	if err := checkDates(&e, now, true); err != nil {
		return Evaluation{}, err
	}
	if err := svc.checkTemplate(ctx, e.OwnerID, e.TemplateID); err != nil {
		return Evaluation{}, err
	}
	if err := svc.checkEmailTemplates(ctx, e); err != nil {
		return Evaluation{}, err
	}
	if ne.Partial {
		e.State = StatePartial
	} else {
		e.State = savedState(e, now)
	}

	err := svc.Tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		if e, err = svc.Repo.CreateEvaluation(ctx, e); err != nil {
			return errors.Wrap(err, "creating evaluation")
		}
		if e.State != StatePartial {
			return errors.Wrap(svc.Templates.Lock(ctx, e.TemplateID), "locking template")
		}
		return nil
	})
	if err != nil {
		return Evaluation{}, err
	}
	svc.schedule(ctx, e)
	return withState(e), nil
}

func (svc *service) GetByID(ctx context.Context, id string) (Evaluation, error) {
	e, err := svc.Repo.GetEvaluationByID(ctx, id)
	if err != nil {
		return Evaluation{}, err
	}
	return withState(e), nil
}

func (svc *service) Query(ctx context.Context, actor user.User, filter *QueryFilter, ordering []core.DBOrdering) ([]Evaluation, error) {
	if filter == nil {
		filter = new(QueryFilter)
	}
	if !actor.IsAdmin() {
		filter.OwnerID = actor.ID
	}
	evals, err := svc.Repo.FilterEvaluations(ctx, *filter, ordering...)
	if err != nil {
		return nil, err
	}
	result := make([]Evaluation, 0, len(evals))
	for _, e := range evals {
		e = withState(e)
		if filter.State == "" || e.State == filter.State {
			result = append(result, e)
		}
	}
	return result, nil
}

func (svc *service) ListByTemplate(ctx context.Context, templateID string) ([]Evaluation, error) {
	evals, err := svc.Repo.FilterEvaluations(ctx, QueryFilter{TemplateID: templateID})
	if err != nil {
		return nil, err
	}
	for i := range evals {
		evals[i] = withState(evals[i])
	}
	return evals, nil
}

func (svc *service) CountByTemplate(ctx context.Context, templateID string) (int, error) {
	return svc.Repo.CountEvaluationsByTemplate(ctx, templateID)
}

func (svc *service) ListTakeable(ctx context.Context, actor user.User) ([]Assignment, error) {
	groups, err := svc.Groups.GroupsForUser(ctx, actor.ID, group.RoleStudent)
	if err != nil {
		return nil, errors.Wrap(err, "listing groups for user")
	}
	if len(groups) == 0 {
		return []Assignment{}, nil
	}
	groupsByID := make(map[string]group.Group, len(groups))
	groupIDs := make([]string, len(groups))
	for i, grp := range groups {
		groupsByID[grp.ID] = grp
		groupIDs[i] = grp.ID
	}

	ags, err := svc.Repo.ListAssignGroupsByGroups(ctx, groupIDs...)
	if err != nil {
		return nil, errors.Wrap(err, "listing assign groups by groups")
	}
	evalIDs := make([]string, 0, len(ags))
	for _, ag := range ags {
		evalIDs = append(evalIDs, ag.EvaluationID)
	}
	evals, err := svc.Repo.GetEvaluationsByID(ctx, evalIDs...)
	if err != nil {
		return nil, errors.Wrap(err, "finding evaluations by ID")
	}
	evalsByID := make(map[string]Evaluation, len(evals))
	for _, e := range evals {
		evalsByID[e.ID] = withState(e)
	}

	assignments := make([]Assignment, 0, len(ags))
	for _, ag := range ags {
		e, ok := evalsByID[ag.EvaluationID]
		if !ok || !ag.InstructorApproval || !IsOpen(e.State) {
			continue
		}
		assignments = append(assignments, Assignment{Evaluation: e, Group: groupsByID[ag.GroupID]})
	}
	return assignments, nil
}

func (svc *service) getControlled(ctx context.Context, actor user.User, id string) (Evaluation, error) {
	e, err := svc.Repo.GetEvaluationByID(ctx, id)
	if err != nil {
		return Evaluation{}, err
	}
	if !svc.CanControl(actor, e) {
		return Evaluation{}, errNoControl
	}
	return e, nil
}

func (svc *service) Update(ctx context.Context, actor user.User, id string, ue UpdateEvaluation) (Evaluation, error) {
	e, err := svc.getControlled(ctx, actor, id)
	if err != nil {
		return Evaluation{}, err
	}

	now := core.Now()
	state := DeriveState(e, now)
	startOrTemplateChanged := timeChanged(ue.StartDate, &e.StartDate) ||
		(ue.TemplateID != nil && *ue.TemplateID != e.TemplateID)
	switch {
	case IsClosed(state):
		if !ue.onlyResultsChanges(e) {
			return Evaluation{}, errClosedChange
		}
	case IsOpen(state):
		if startOrTemplateChanged {
			return Evaluation{}, errStartedChange
		}
	case e.Locked:
		if startOrTemplateChanged {
			return Evaluation{}, errLockedChange
		}
	}

	orig := e
	origTemplateID := e.TemplateID
	if ue.Title != nil {
		e.Title = *ue.Title
	}
	if ue.Instructions != nil {
		e.Instructions = *ue.Instructions
	}
	if ue.TemplateID != nil {
		e.TemplateID = *ue.TemplateID
	}
	if ue.StartDate != nil {
		e.StartDate = *ue.StartDate
	}
	if ue.DueDate != nil {
		e.DueDate = ue.DueDate
	}
	if ue.StopDate != nil {
		e.StopDate = ue.StopDate
	}
	if ue.ViewDate != nil {
		e.ViewDate = ue.ViewDate
	}
	if ue.ResultsSharing != nil {
		e.ResultsSharing = *ue.ResultsSharing
	}
	if ue.StudentsViewResults != nil {
		e.StudentsViewResults = *ue.StudentsViewResults
	}
	if ue.InstructorsViewResults != nil {
		e.InstructorsViewResults = *ue.InstructorsViewResults
	}
	if ue.BlankResponsesAllowed != nil {
		e.BlankResponsesAllowed = *ue.BlankResponsesAllowed
	}
	if ue.ModifyResponsesAllowed != nil {
		e.ModifyResponsesAllowed = *ue.ModifyResponsesAllowed
	}
	if ue.ReminderDays != nil {
		e.ReminderDays = *ue.ReminderDays
	}
	if ue.AvailableEmailTemplateID != nil {
		e.AvailableEmailTemplateID = *ue.AvailableEmailTemplateID
	}
	if ue.ReminderEmailTemplateID != nil {
		e.ReminderEmailTemplateID = *ue.ReminderEmailTemplateID
	}

	normalizeDates(&e)
	if err := checkDates(&e, now, false); err != nil {
		return Evaluation{}, err
	}
	templateChanged := e.TemplateID != origTemplateID
	if templateChanged {
		if err := svc.checkTemplate(ctx, e.OwnerID, e.TemplateID); err != nil {
			return Evaluation{}, err
		}
	}
	// references kept from before are not checked again
	emails := Evaluation{OwnerID: e.OwnerID}
	if e.AvailableEmailTemplateID != orig.AvailableEmailTemplateID {
		emails.AvailableEmailTemplateID = e.AvailableEmailTemplateID
	}
	if e.ReminderEmailTemplateID != orig.ReminderEmailTemplateID {
		emails.ReminderEmailTemplateID = e.ReminderEmailTemplateID
	}
	if err := svc.checkEmailTemplates(ctx, emails); err != nil {
		return Evaluation{}, err
	}
	wasPartial := e.State == StatePartial
	if wasPartial && ue.Publish {
		e.State = ""
	}
	e.State = savedState(e, now)
	e.UpdatedAt = now

	err = svc.Tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		if e, err = svc.Repo.UpdateEvaluation(ctx, e); err != nil {
			return errors.Wrap(err, "updating evaluation")
		}
		if e.State == StatePartial {
			return nil
		}
		if templateChanged || wasPartial {
			if err := svc.Templates.Lock(ctx, e.TemplateID); err != nil {
				return errors.Wrap(err, "locking template")
			}
		}
		if templateChanged {
			return svc.releaseTemplate(ctx, origTemplateID)
		}
		return nil
	})
	if err != nil {
		return Evaluation{}, err
	}
	svc.schedule(ctx, e)
	return withState(e), nil
}

func (svc *service) Delete(ctx context.Context, actor user.User, id string) error {
	e, err := svc.getControlled(ctx, actor, id)
	if err != nil {
		return err
	}
	state := DeriveState(e, core.Now())
	if IsAfter(state, StateInQueue) {
		count, err := svc.Responses.CountResponses(ctx, e.ID, "")
		if err != nil {
			return errors.Wrap(err, "counting responses")
		}
		if count > 0 {
			return errDeleteStarted
		}
	}

	return svc.Tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := svc.Repo.DeleteEvaluation(ctx, e.ID); err != nil {
			return errors.Wrap(err, "deleting evaluation")
		}
		return svc.releaseTemplate(ctx, e.TemplateID)
	})
}

func (svc *service) Close(ctx context.Context, actor user.User, id string) (Evaluation, error) {
	e, err := svc.getControlled(ctx, actor, id)
	if err != nil {
		return Evaluation{}, err
	}
	now := core.Now()
	if !IsOpen(DeriveState(e, now)) {
		return Evaluation{}, errNotOpen
	}

	e.DueDate = &now
	e.StopDate = &now
	if e.ViewDate == nil || e.ViewDate.Before(now) {
		e.ViewDate = &now
	}
	e.State = DeriveState(e, now)
	e.UpdatedAt = now

	if e, err = svc.Repo.UpdateEvaluation(ctx, e); err != nil {
		return Evaluation{}, errors.Wrap(err, "updating evaluation")
	}
	svc.schedule(ctx, e)
	return e, nil
}

func (svc *service) SyncState(ctx context.Context, id string) (string, string, error) {
	e, err := svc.Repo.GetEvaluationByID(ctx, id)
	if err != nil {
		return "", "", err
	}
	prev := e.State
	next := DeriveState(e, core.Now())
	lock := IsAfter(next, StateInQueue) && next != StateDeleted && !e.Locked
	if next == prev && !lock {
		return prev, next, nil
	}

	e.State = next
	if lock {
		e.Locked = true
	}
	if _, err := svc.Repo.UpdateEvaluation(ctx, e); err != nil {
		return "", "", errors.Wrap(err, "updating evaluation state")
	}
	return prev, next, nil
}

func (svc *service) Lock(ctx context.Context, id string) error {
	e, err := svc.Repo.GetEvaluationByID(ctx, id)
	if err != nil {
		return err
	}
	if e.Locked {
		return nil
	}
	e.Locked = true
	_, err = svc.Repo.UpdateEvaluation(ctx, e)
	return errors.Wrap(err, "locking evaluation")
}

// normalizeDates stores every date in UTC.
func normalizeDates(e *Evaluation) {
	utc := func(t *time.Time) *time.Time {
		if t == nil {
			return nil
		}
		u := t.UTC().Truncate(time.Microsecond)
		return &u
	}
	if !e.StartDate.IsZero() {
		e.StartDate = e.StartDate.UTC().Truncate(time.Microsecond)
	}
	e.DueDate = utc(e.DueDate)
	e.StopDate = utc(e.StopDate)
	e.ViewDate = utc(e.ViewDate)
}
