package results

import (
	"context"
	"io"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/tathmini/core"
	"github.com/trezcool/tathmini/core/evaluation"
	"github.com/trezcool/tathmini/core/group"
	"github.com/trezcool/tathmini/core/response"
	"github.com/trezcool/tathmini/core/template"
	"github.com/trezcool/tathmini/core/user"
)

var (
	errNotStarted  = core.NewPermissionError("results are not available before the evaluation starts")
	errNoView      = core.NewPermissionError("you cannot view the results of this evaluation")
	errNotAssigned = core.NewFieldError("group", "this group is not assigned to the evaluation")
)

type (
	Service interface {
		// CanView reports whether actor may view the results of the evaluation.
		CanView(ctx context.Context, actor user.User, evalID string) (bool, error)
		// Get aggregates the results of the evaluation; a non-empty groupID restricts them to one group.
		Get(ctx context.Context, actor user.User, evalID, groupID string) (Results, error)
		ExportCSV(ctx context.Context, actor user.User, evalID, groupID string, w io.Writer) error
	}

	Deps struct {
		Evals     evaluation.Service
		Templates template.Service
		Responses response.Repository
		Groups    group.Service
		Cache     core.Cache // optional
		Logger    core.Logger
	}

	service struct {
		Deps
		cacheTTL time.Duration
	}
)

var _ Service = (*service)(nil)

func NewService(conf *core.Config, deps Deps) Service {
	return &service{Deps: deps, cacheTTL: conf.Evaluation.ResultsCacheTTL}
}

func cacheKey(evalID, groupID string) string {
	return "results:" + evalID + ":" + groupID
}

// checkCanView returns why actor cannot view the results of e, if they cannot.
func (svc *service) checkCanView(ctx context.Context, actor user.User, e evaluation.Evaluation, groupID string) error {
	if svc.Evals.CanControl(actor, e) {
		if !evaluation.IsAfter(e.State, evaluation.StateInQueue) {
			return errNotStarted
		}
		return nil
	}
	if e.State != evaluation.StateViewable || e.ResultsSharing != evaluation.ResultsVisible {
		return errNoView
	}

	ags, err := svc.Evals.ListAssignGroups(ctx, e.ID)
	if err != nil {
		return errors.Wrap(err, "listing assign groups")
	}
	for _, ag := range ags {
		if groupID != "" && ag.GroupID != groupID {
			continue
		}
		if e.InstructorsViewResults && ag.InstructorsViewResults {
			ok, err := svc.Groups.IsInstructor(ctx, actor.ID, ag.GroupID)
			if err != nil {
				return errors.Wrap(err, "checking group instructor")
			}
			if ok {
				return nil
			}
		}
		if e.StudentsViewResults && ag.StudentsViewResults {
			ok, err := svc.Groups.IsStudent(ctx, actor.ID, ag.GroupID)
			if err != nil {
				return errors.Wrap(err, "checking group student")
			}
			if ok {
				return nil
			}
		}
	}
	return errNoView
}

func (svc *service) CanView(ctx context.Context, actor user.User, evalID string) (bool, error) {
	e, err := svc.Evals.GetByID(ctx, evalID)
	if err != nil {
		return false, err
	}
	if err := svc.checkCanView(ctx, actor, e, ""); err != nil {
		if core.IsPermissionError(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (svc *service) Get(ctx context.Context, actor user.User, evalID, groupID string) (Results, error) {
	e, err := svc.Evals.GetByID(ctx, evalID)
	if err != nil {
		return Results{}, err
	}
	if err := svc.checkCanView(ctx, actor, e, groupID); err != nil {
		return Results{}, err
	}

	// viewable results no longer change
	cacheable := svc.Cache != nil && e.State == evaluation.StateViewable
	if cacheable {
		var res Results
		found, err := svc.Cache.Get(ctx, cacheKey(e.ID, groupID), &res)
		if err != nil {
			svc.Logger.Warn("reading results cache", errors.Wrapf(err, "evaluation %s", e.ID))
		} else if found {
			return res, nil
		}
	}

	res, err := svc.compute(ctx, e, groupID)
	if err != nil {
		return Results{}, err
	}

	if cacheable {
		if err := svc.Cache.Set(ctx, cacheKey(e.ID, groupID), res, svc.cacheTTL); err != nil {
			svc.Logger.Warn("writing results cache", errors.Wrapf(err, "evaluation %s", e.ID))
		}
	}
	return res, nil
}

func (svc *service) compute(ctx context.Context, e evaluation.Evaluation, groupID string) (Results, error) {
	ags, err := svc.Evals.ListAssignGroups(ctx, e.ID)
	if err != nil {
		return Results{}, errors.Wrap(err, "listing assign groups")
	}
	var enrolled int
	var assigned bool
	for _, ag := range ags {
		if groupID != "" && ag.GroupID != groupID {
			continue
		}
		assigned = true
		count, err := svc.Groups.CountMembers(ctx, ag.GroupID, group.RoleStudent)
		if err != nil {
			return Results{}, errors.Wrap(err, "counting group students")
		}
		enrolled += count
	}
	if groupID != "" && !assigned {
		return Results{}, errNotAssigned
	}

	items, err := svc.Templates.FullItems(ctx, e.TemplateID)
	if err != nil {
		return Results{}, errors.Wrap(err, "listing template items")
	}
	responses, err := svc.Responses.ListResponses(ctx, e.ID, groupID)
	if err != nil {
		return Results{}, errors.Wrap(err, "listing responses")
	}

	var completed int
	for _, r := range responses {
		if r.IsComplete() {
			completed++
		}
	}
	res := Results{
		EvaluationID: e.ID,
		Title:        e.Title,
		GroupID:      groupID,
		Responses:    completed,
		Enrolled:     enrolled,
		Items:        aggregate(items, responses),
		GeneratedAt:  core.Now(),
	}
	if enrolled > 0 {
		res.ResponseRate = round(float64(completed) / float64(enrolled))
	}
	return res, nil
}

func (svc *service) ExportCSV(ctx context.Context, actor user.User, evalID, groupID string, w io.Writer) error {
	res, err := svc.Get(ctx, actor, evalID, groupID)
	if err != nil {
		return err
	}
	return WriteCSV(w, res)
}
