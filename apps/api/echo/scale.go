package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/tathmini/core/scale"
)

type scaleApi struct {
	svc      scale.Service
	validate *validator.Validate
}

func (s *Server) registerScaleAPI(g *echo.Group) {
	api := scaleApi{svc: s.ScaleSvc, validate: s.Validate}

	g.POST("", api.create)
	g.GET("", api.query)

	dg := g.Group("/:id")
	dg.GET("", api.retrieve)
	dg.PUT("", api.update)
	dg.DELETE("", api.destroy)
	dg.POST("/copy", api.copy)
}

func (api *scaleApi) create(ctx echo.Context) error {
	var data scale.NewScale
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewScale")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	sc, err := api.svc.Create(ctx.Request().Context(), actor(ctx), data)
	if err != nil {
		return errors.Wrap(err, "creating scale")
	}
	return ctx.JSON(http.StatusCreated, sc)
}

func (api *scaleApi) query(ctx echo.Context) error {
	filter := new(scale.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []scale.Scale{})
	}
	filter.Clean()
	ordering := new(Ordering)
	ordering.Bind(ctx)

	scales, err := api.svc.Query(ctx.Request().Context(), actor(ctx), filter, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying scales")
	}
	if scales == nil {
		scales = []scale.Scale{}
	}
	return ctx.JSON(http.StatusOK, scales)
}

func (api *scaleApi) retrieve(ctx echo.Context) error {
	sc, err := api.svc.GetByID(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding scale by ID")
	}
	if !api.svc.CanUse(actor(ctx), sc) {
		return errHttpNotFound
	}
	return ctx.JSON(http.StatusOK, sc)
}

func (api *scaleApi) update(ctx echo.Context) error {
	reqCtx := ctx.Request().Context()
	sc, err := api.svc.GetByID(reqCtx, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding scale by ID")
	}

	var data scale.UpdateScale
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateScale")
	}
	if err = data.Validate(sc, api.validate); err != nil {
		return err
	}

	sc, err = api.svc.Update(reqCtx, actor(ctx), sc.ID, data)
	if err != nil {
		return errors.Wrap(err, "updating scale")
	}
	return ctx.JSON(http.StatusOK, sc)
}

func (api *scaleApi) destroy(ctx echo.Context) error {
	if err := api.svc.Delete(ctx.Request().Context(), actor(ctx), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting scale")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *scaleApi) copy(ctx echo.Context) error {
	sc, err := api.svc.Copy(ctx.Request().Context(), actor(ctx), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "copying scale")
	}
	return ctx.JSON(http.StatusCreated, sc)
}
