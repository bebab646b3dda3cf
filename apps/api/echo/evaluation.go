package echoapi

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/tathmini/core/evaluation"
	"github.com/trezcool/tathmini/core/group"
	"github.com/trezcool/tathmini/core/notification"
	"github.com/trezcool/tathmini/core/response"
	"github.com/trezcool/tathmini/core/results"
)

type evaluationApi struct {
	svc           evaluation.Service
	groups        group.Service
	responses     response.Service
	results       results.Service
	notifications notification.Service
	validate      *validator.Validate
}

func (s *Server) registerEvaluationAPI(g *echo.Group) {
	api := evaluationApi{
		svc:           s.EvaluationSvc,
		groups:        s.GroupSvc,
		responses:     s.ResponseSvc,
		results:       s.ResultsSvc,
		notifications: s.NotificationSvc,
		validate:      s.Validate,
	}

	g.POST("", api.create)
	g.GET("", api.query)

	dg := g.Group("/:id")
	dg.GET("", api.retrieve)
	dg.PUT("", api.update)
	dg.DELETE("", api.destroy)
	dg.POST("/close", api.close)
	dg.POST("/notify", api.notify)

	dg.GET("/groups", api.listAssignGroups)
	dg.POST("/groups", api.assignGroup)
	dg.PUT("/groups/:agID", api.updateAssignGroup)
	dg.DELETE("/groups/:agID", api.removeAssignGroup)

	dg.GET("/responses", api.listResponses)
	dg.POST("/responses", api.saveResponse)
	dg.GET("/can-take", api.canTake)

	dg.GET("/results", api.getResults)
	dg.GET("/results.csv", api.exportResults)
}

func (api *evaluationApi) create(ctx echo.Context) error {
	var data evaluation.NewEvaluation
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewEvaluation")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	e, err := api.svc.Create(ctx.Request().Context(), actor(ctx), data)
	if err != nil {
		return errors.Wrap(err, "creating evaluation")
	}
	return ctx.JSON(http.StatusCreated, e)
}

func (api *evaluationApi) query(ctx echo.Context) error {
	filter := new(evaluation.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []evaluation.Evaluation{})
	}
	filter.Clean()
	ordering := new(Ordering)
	ordering.Bind(ctx)

	evals, err := api.svc.Query(ctx.Request().Context(), actor(ctx), filter, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying evaluations")
	}
	if evals == nil {
		evals = []evaluation.Evaluation{}
	}
	return ctx.JSON(http.StatusOK, evals)
}

// canSee reports whether the actor controls the evaluation, or is a member of
// one of its assigned groups: an instructor, or a student once approved.
func (api *evaluationApi) canSee(ctx echo.Context, e evaluation.Evaluation) (bool, error) {
	usr := actor(ctx)
	if api.svc.CanControl(usr, e) {
		return true, nil
	}
	reqCtx := ctx.Request().Context()
	ags, err := api.svc.ListAssignGroups(reqCtx, e.ID)
	if err != nil {
		return false, errors.Wrap(err, "listing assign groups")
	}
	for _, ag := range ags {
		isInstr, err := api.groups.IsInstructor(reqCtx, usr.ID, ag.GroupID)
		if err != nil {
			return false, errors.Wrap(err, "checking group instructor")
		}
		if isInstr {
			return true, nil
		}
		if !ag.InstructorApproval {
			continue
		}
		isStud, err := api.groups.IsStudent(reqCtx, usr.ID, ag.GroupID)
		if err != nil {
			return false, errors.Wrap(err, "checking group student")
		}
		if isStud {
			return true, nil
		}
	}
	return false, nil
}

func (api *evaluationApi) retrieve(ctx echo.Context) error {
	e, err := api.svc.GetByID(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding evaluation by ID")
	}
	ok, err := api.canSee(ctx, e)
	if err != nil {
		return err
	}
	if !ok {
		return errHttpNotFound
	}
	return ctx.JSON(http.StatusOK, e)
}

func (api *evaluationApi) update(ctx echo.Context) error {
	var data evaluation.UpdateEvaluation
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateEvaluation")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	e, err := api.svc.Update(ctx.Request().Context(), actor(ctx), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating evaluation")
	}
	return ctx.JSON(http.StatusOK, e)
}

func (api *evaluationApi) destroy(ctx echo.Context) error {
	if err := api.svc.Delete(ctx.Request().Context(), actor(ctx), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting evaluation")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *evaluationApi) close(ctx echo.Context) error {
	e, err := api.svc.Close(ctx.Request().Context(), actor(ctx), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "closing evaluation")
	}
	return ctx.JSON(http.StatusOK, e)
}

func (api *evaluationApi) notify(ctx echo.Context) error {
	var data notification.Notify
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to Notify")
	}
	if err := api.validate.Struct(&data); err != nil {
		return err
	}

	sent, err := api.notifications.Notify(ctx.Request().Context(), actor(ctx), ctx.Param("id"), data.Type)
	if err != nil {
		return errors.Wrap(err, "notifying evaluation takers")
	}
	return ctx.JSON(http.StatusOK, NotifyResponse{Sent: sent})
}

// assign groups

func (api *evaluationApi) listAssignGroups(ctx echo.Context) error {
	reqCtx := ctx.Request().Context()
	e, err := api.svc.GetByID(reqCtx, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding evaluation by ID")
	}
	if !api.svc.CanControl(actor(ctx), e) {
		return errHttpForbidden
	}
	ags, err := api.svc.ListAssignGroups(reqCtx, e.ID)
	if err != nil {
		return errors.Wrap(err, "listing assign groups")
	}
	if ags == nil {
		ags = []evaluation.AssignGroup{}
	}
	return ctx.JSON(http.StatusOK, ags)
}

func (api *evaluationApi) assignGroup(ctx echo.Context) error {
	var data evaluation.NewAssignGroup
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewAssignGroup")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	ag, err := api.svc.AssignGroup(ctx.Request().Context(), actor(ctx), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "assigning group")
	}
	return ctx.JSON(http.StatusCreated, ag)
}

// checkAssignGroup ensures the assign group of the path belongs to the evaluation of the path.
func (api *evaluationApi) checkAssignGroup(ctx echo.Context) error {
	ags, err := api.svc.ListAssignGroups(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "listing assign groups")
	}
	for _, ag := range ags {
		if ag.ID == ctx.Param("agID") {
			return nil
		}
	}
	return errHttpNotFound
}

func (api *evaluationApi) updateAssignGroup(ctx echo.Context) error {
	if err := api.checkAssignGroup(ctx); err != nil {
		return err
	}

	var data evaluation.UpdateAssignGroup
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateAssignGroup")
	}

	ag, err := api.svc.UpdateAssignGroup(ctx.Request().Context(), actor(ctx), ctx.Param("agID"), data)
	if err != nil {
		return errors.Wrap(err, "updating assign group")
	}
	return ctx.JSON(http.StatusOK, ag)
}

func (api *evaluationApi) removeAssignGroup(ctx echo.Context) error {
	if err := api.checkAssignGroup(ctx); err != nil {
		return err
	}
	if err := api.svc.RemoveAssignGroup(ctx.Request().Context(), actor(ctx), ctx.Param("agID")); err != nil {
		return errors.Wrap(err, "removing assign group")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// responses

func (api *evaluationApi) listResponses(ctx echo.Context) error {
	resps, err := api.responses.ListByEvaluation(ctx.Request().Context(), actor(ctx), ctx.Param("id"), ctx.QueryParam("group"))
	if err != nil {
		return errors.Wrap(err, "listing responses")
	}
	if resps == nil {
		resps = []response.Response{}
	}
	return ctx.JSON(http.StatusOK, resps)
}

func (api *evaluationApi) saveResponse(ctx echo.Context) error {
	var data response.SaveResponse
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to SaveResponse")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	resp, err := api.responses.Save(ctx.Request().Context(), actor(ctx), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "saving response")
	}
	return ctx.JSON(http.StatusOK, resp)
}

func (api *evaluationApi) canTake(ctx echo.Context) error {
	ok, err := api.responses.CanTake(ctx.Request().Context(), actor(ctx), ctx.Param("id"), ctx.QueryParam("group"))
	if err != nil {
		return errors.Wrap(err, "checking whether the evaluation can be taken")
	}
	return ctx.JSON(http.StatusOK, CanTakeResponse{CanTake: ok})
}

// results

func (api *evaluationApi) getResults(ctx echo.Context) error {
	res, err := api.results.Get(ctx.Request().Context(), actor(ctx), ctx.Param("id"), ctx.QueryParam("group"))
	if err != nil {
		return errors.Wrap(err, "getting results")
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api *evaluationApi) exportResults(ctx echo.Context) error {
	var buf bytes.Buffer
	err := api.results.ExportCSV(ctx.Request().Context(), actor(ctx), ctx.Param("id"), ctx.QueryParam("group"), &buf)
	if err != nil {
		return errors.Wrap(err, "exporting results")
	}
	ctx.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", "results-"+ctx.Param("id")+".csv"))
	return ctx.Blob(http.StatusOK, "text/csv; charset=utf-8", buf.Bytes())
}

type (
	NotifyResponse struct {
		Sent int `json:"sent"`
	}

	CanTakeResponse struct {
		CanTake bool `json:"can_take"`
	}
)
