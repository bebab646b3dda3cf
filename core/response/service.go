package response

import (
	"context"

	"github.com/pkg/errors"

	"github.com/trezcool/tathmini/core"
	"github.com/trezcool/tathmini/core/evaluation"
	"github.com/trezcool/tathmini/core/group"
	"github.com/trezcool/tathmini/core/template"
	"github.com/trezcool/tathmini/core/user"
)

var (
	// errors
	ErrNotFound = core.NewNotFoundError("response")

	errNotOpen        = core.NewStateError("this evaluation is not open for responses")
	errNotAssigned    = core.NewPermissionError("this evaluation is not assigned to the group")
	errNotApproved    = core.NewStateError("this evaluation has not been released to the group yet")
	errNotStudent     = core.NewPermissionError("only students of the group can take this evaluation")
	errAlreadyTaken   = core.NewStateError("you already completed this evaluation")
	errNoView         = core.NewPermissionError("you cannot view this response")
	errNoViewAll      = core.NewPermissionError("only the evaluation owner or an admin can list its responses")
	errNotOwnResponse = core.NewPermissionError("you can only change your own response")
)

type (
	Repository interface {
		// CreateResponse stores the response and its answers.
		CreateResponse(ctx context.Context, r Response) (Response, error)
		// UpdateResponse updates the response and replaces its answers.
		UpdateResponse(ctx context.Context, r Response) (Response, error)
		GetResponseByID(ctx context.Context, id string) (Response, error)
		GetResponseForUser(ctx context.Context, evalID, groupID, userID string) (Response, error)
		// ListResponses lists the responses (with answers) of an evaluation; an empty groupID lists all groups.
		ListResponses(ctx context.Context, evalID, groupID string) ([]Response, error)
		CountResponses(ctx context.Context, evalID, groupID string) (int, error)
	}

	Service interface {
		// CanTake reports whether actor may respond to the evaluation in the group now.
		CanTake(ctx context.Context, actor user.User, evalID, groupID string) (bool, error)
		Save(ctx context.Context, actor user.User, evalID string, sr SaveResponse) (Response, error)
		GetByID(ctx context.Context, actor user.User, id string) (Response, error)
		GetForUser(ctx context.Context, userID, evalID, groupID string) (Response, error)
		ListByEvaluation(ctx context.Context, actor user.User, evalID, groupID string) ([]Response, error)
		CountByEvaluation(ctx context.Context, evalID, groupID string) (int, error)
	}

	service struct {
		tx        core.Transactor
		repo      Repository
		evals     evaluation.Service
		templates template.Service
		groups    group.Service
	}
)

var _ Service = (*service)(nil)

func NewService(
	tx core.Transactor,
	repo Repository,
	evals evaluation.Service,
	templates template.Service,
	groups group.Service,
) Service {
	return &service{tx: tx, repo: repo, evals: evals, templates: templates, groups: groups}
}

// checkCanTake returns why actor cannot respond to e in the group, if they cannot.
func (svc *service) checkCanTake(ctx context.Context, actor user.User, e evaluation.Evaluation, groupID string) error {
	if !evaluation.IsOpen(e.State) {
		return errNotOpen
	}
	ag, err := svc.evals.GetAssignGroup(ctx, e.ID, groupID)
	if err != nil {
		if errors.Cause(err) == evaluation.ErrAssignGroupNotFound {
			return errNotAssigned
		}
		return errors.Wrap(err, "finding assign group")
	}
	if !ag.InstructorApproval {
		return errNotApproved
	}
	if !actor.IsAdmin() {
		isStudent, err := svc.groups.IsStudent(ctx, actor.ID, groupID)
		if err != nil {
			return errors.Wrap(err, "checking group student")
		}
		if !isStudent {
			return errNotStudent
		}
	}
	if e.ModifyResponsesAllowed {
		return nil
	}
	r, err := svc.repo.GetResponseForUser(ctx, e.ID, groupID, actor.ID)
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return nil
		}
		return errors.Wrap(err, "finding user response")
	}
	if r.IsComplete() {
		return errAlreadyTaken
	}
	return nil
}

func (svc *service) CanTake(ctx context.Context, actor user.User, evalID, groupID string) (bool, error) {
	e, err := svc.evals.GetByID(ctx, evalID)
	if err != nil {
		return false, err
	}
	if err := svc.checkCanTake(ctx, actor, e, groupID); err != nil {
		if core.IsStateError(err) || core.IsPermissionError(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (svc *service) Save(ctx context.Context, actor user.User, evalID string, sr SaveResponse) (Response, error) {
	e, err := svc.evals.GetByID(ctx, evalID)
	if err != nil {
		return Response{}, err
	}
	if err := svc.checkCanTake(ctx, actor, e, sr.GroupID); err != nil {
		return Response{}, err
	}
	items, err := svc.templates.FullItems(ctx, e.TemplateID)
	if err != nil {
		return Response{}, errors.Wrap(err, "listing template items")
	}
	answers, err := checkAnswers(items, sr.Answers, e.BlankResponsesAllowed, sr.Draft)
	if err != nil {
		return Response{}, err
	}

	var r Response
	err = svc.tx.WithinTx(ctx, func(ctx context.Context) error {
		now := core.Now()
		existing, err := svc.repo.GetResponseForUser(ctx, e.ID, sr.GroupID, actor.ID)
		switch {
		case err == nil:
			if existing.OwnerID != actor.ID {
				return errNotOwnResponse
			}
			r = existing
		case errors.Cause(err) == ErrNotFound:
			r = Response{
				EvaluationID: e.ID,
				GroupID:      sr.GroupID,
				OwnerID:      actor.ID,
				StartTime:    now,
			}
		default:
			return errors.Wrap(err, "finding user response")
		}

		r.Answers = answers
		if sr.Draft {
			r.EndTime = nil
		} else {
			r.EndTime = &now
		}
		if r.ID == "" {
			r, err = svc.repo.CreateResponse(ctx, r)
		} else {
			r, err = svc.repo.UpdateResponse(ctx, r)
		}
		if err != nil {
			return errors.Wrap(err, "saving response")
		}

		if !e.Locked {
			return errors.Wrap(svc.evals.Lock(ctx, e.ID), "locking evaluation")
		}
		return nil
	})
	return r, err
}

func (svc *service) GetByID(ctx context.Context, actor user.User, id string) (Response, error) {
	r, err := svc.repo.GetResponseByID(ctx, id)
	if err != nil {
		return Response{}, err
	}
	if r.OwnerID == actor.ID {
		return r, nil
	}
	e, err := svc.evals.GetByID(ctx, r.EvaluationID)
	if err != nil {
		return Response{}, errors.Wrap(err, "finding evaluation by ID")
	}
	if !svc.evals.CanControl(actor, e) {
		return Response{}, errNoView
	}
	return r, nil
}

func (svc *service) GetForUser(ctx context.Context, userID, evalID, groupID string) (Response, error) {
	return svc.repo.GetResponseForUser(ctx, evalID, groupID, userID)
}

func (svc *service) ListByEvaluation(ctx context.Context, actor user.User, evalID, groupID string) ([]Response, error) {
	e, err := svc.evals.GetByID(ctx, evalID)
	if err != nil {
		return nil, err
	}
	if !svc.evals.CanControl(actor, e) {
		return nil, errNoViewAll
	}
	return svc.repo.ListResponses(ctx, e.ID, groupID)
}

func (svc *service) CountByEvaluation(ctx context.Context, evalID, groupID string) (int, error) {
	return svc.repo.CountResponses(ctx, evalID, groupID)
}
