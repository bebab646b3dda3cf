package evaluation

import (
	"context"

	"github.com/pkg/errors"

	"github.com/trezcool/tathmini/core"
	"github.com/trezcool/tathmini/core/group"
	"github.com/trezcool/tathmini/core/user"
)

func (svc *service) AssignGroup(ctx context.Context, actor user.User, evalID string, nag NewAssignGroup) (AssignGroup, error) {
	e, err := svc.getControlled(ctx, actor, evalID)
	if err != nil {
		return AssignGroup{}, err
	}
	grp, err := svc.Groups.GetByID(ctx, nag.GroupID)
	if err != nil {
		if errors.Cause(err) == group.ErrNotFound {
			return AssignGroup{}, core.NewFieldError("group_id", err.Error())
		}
		return AssignGroup{}, errors.Wrap(err, "finding group by ID")
	}
	if !actor.IsAdmin() {
		isInstr, err := svc.Groups.IsInstructor(ctx, actor.ID, grp.ID)
		if err != nil {
			return AssignGroup{}, errors.Wrap(err, "checking group instructor")
		}
		if !isInstr {
			return AssignGroup{}, errNotGroupInstr
		}
	}
	if IsClosed(DeriveState(e, core.Now())) {
		return AssignGroup{}, errAssignClosed
	}

	if _, err := svc.Repo.GetAssignGroup(ctx, e.ID, grp.ID); err == nil {
		return AssignGroup{}, errAlreadyAssigned
	} else if errors.Cause(err) != ErrAssignGroupNotFound {
		return AssignGroup{}, errors.Wrap(err, "finding assign group")
	}

	ag := AssignGroup{
		EvaluationID:           e.ID,
		GroupID:                grp.ID,
		InstructorApproval:     true,
		InstructorsViewResults: e.InstructorsViewResults,
		StudentsViewResults:    e.StudentsViewResults,
		CreatedAt:              core.Now(),
	}
	if nag.InstructorApproval != nil {
		ag.InstructorApproval = *nag.InstructorApproval
	}
	if nag.InstructorsViewResults != nil {
		ag.InstructorsViewResults = *nag.InstructorsViewResults
	}
	if nag.StudentsViewResults != nil {
		ag.StudentsViewResults = *nag.StudentsViewResults
	}
	return svc.Repo.CreateAssignGroup(ctx, ag)
}

func (svc *service) getControlledAssignGroup(ctx context.Context, actor user.User, id string) (AssignGroup, Evaluation, error) {
	ag, err := svc.Repo.GetAssignGroupByID(ctx, id)
	if err != nil {
		return AssignGroup{}, Evaluation{}, err
	}
	e, err := svc.getControlled(ctx, actor, ag.EvaluationID)
	if err != nil {
		return AssignGroup{}, Evaluation{}, err
	}
	return ag, e, nil
}

func (svc *service) UpdateAssignGroup(ctx context.Context, actor user.User, id string, uag UpdateAssignGroup) (AssignGroup, error) {
	ag, _, err := svc.getControlledAssignGroup(ctx, actor, id)
	if err != nil {
		return AssignGroup{}, err
	}
	if uag.InstructorApproval != nil {
		ag.InstructorApproval = *uag.InstructorApproval
	}
	if uag.InstructorsViewResults != nil {
		ag.InstructorsViewResults = *uag.InstructorsViewResults
	}
	if uag.StudentsViewResults != nil {
		ag.StudentsViewResults = *uag.StudentsViewResults
	}
	return svc.Repo.UpdateAssignGroup(ctx, ag)
}

func (svc *service) RemoveAssignGroup(ctx context.Context, actor user.User, id string) error {
	ag, e, err := svc.getControlledAssignGroup(ctx, actor, id)
	if err != nil {
		return err
	}
	if IsAfter(DeriveState(e, core.Now()), StateInQueue) {
		count, err := svc.Responses.CountResponses(ctx, e.ID, ag.GroupID)
		if err != nil {
			return errors.Wrap(err, "counting responses")
		}
		if count > 0 {
			return errUnassignStarted
		}
	}
	return svc.Repo.DeleteAssignGroup(ctx, ag.ID)
}

func (svc *service) GetAssignGroup(ctx context.Context, evalID, groupID string) (AssignGroup, error) {
	return svc.Repo.GetAssignGroup(ctx, evalID, groupID)
}

func (svc *service) ListAssignGroups(ctx context.Context, evalID string) ([]AssignGroup, error) {
	if _, err := svc.Repo.GetEvaluationByID(ctx, evalID); err != nil {
		return nil, err
	}
	return svc.Repo.ListAssignGroups(ctx, evalID)
}
