package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/tathmini/core/evaluation"
	"github.com/trezcool/tathmini/core/response"
)

type responseApi struct {
	svc   response.Service
	evals evaluation.Service
}

func (s *Server) registerResponseAPI(g *echo.Group) {
	api := responseApi{svc: s.ResponseSvc, evals: s.EvaluationSvc}
	g.GET("/:id", api.retrieve)
}

func (s *Server) registerMyAPI(g *echo.Group) {
	api := responseApi{svc: s.ResponseSvc, evals: s.EvaluationSvc}
	g.GET("", api.me)
	g.GET("/evaluations", api.myEvaluations)
	g.GET("/evaluations/:id/response", api.myResponse)
}

func (api *responseApi) retrieve(ctx echo.Context) error {
	resp, err := api.svc.GetByID(ctx.Request().Context(), actor(ctx), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding response by ID")
	}
	return ctx.JSON(http.StatusOK, resp)
}

func (api *responseApi) me(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, actor(ctx))
}

// myEvaluations lists the open evaluations the user can take, one per group.
func (api *responseApi) myEvaluations(ctx echo.Context) error {
	assignments, err := api.evals.ListTakeable(ctx.Request().Context(), actor(ctx))
	if err != nil {
		return errors.Wrap(err, "listing takeable evaluations")
	}
	if assignments == nil {
		assignments = []evaluation.Assignment{}
	}
	return ctx.JSON(http.StatusOK, assignments)
}

// myResponse returns the response of the user to an evaluation in a group, draft or complete.
func (api *responseApi) myResponse(ctx echo.Context) error {
	resp, err := api.svc.GetForUser(ctx.Request().Context(), actor(ctx).ID, ctx.Param("id"), ctx.QueryParam("group"))
	if err != nil {
		return errors.Wrap(err, "finding user response")
	}
	return ctx.JSON(http.StatusOK, resp)
}
