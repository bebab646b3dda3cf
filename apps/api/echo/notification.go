package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/tathmini/core/notification"
)

type emailTemplateApi struct {
	svc      notification.Service
	validate *validator.Validate
}

func (s *Server) registerEmailTemplateAPI(g *echo.Group) {
	api := emailTemplateApi{svc: s.NotificationSvc, validate: s.Validate}

	g.POST("", api.create)
	g.GET("", api.query)
	g.GET("/defaults/:type", api.defaultFor)

	dg := g.Group("/:id")
	dg.GET("", api.retrieve)
	dg.PUT("", api.update)
	dg.DELETE("", api.destroy)
}

func (api *emailTemplateApi) create(ctx echo.Context) error {
	var data notification.NewEmailTemplate
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewEmailTemplate")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	et, err := api.svc.Create(ctx.Request().Context(), actor(ctx), data)
	if err != nil {
		return errors.Wrap(err, "creating email template")
	}
	return ctx.JSON(http.StatusCreated, et)
}

func (api *emailTemplateApi) query(ctx echo.Context) error {
	filter := new(notification.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []notification.EmailTemplate{})
	}
	filter.Clean()
	ordering := new(Ordering)
	ordering.Bind(ctx)

	ets, err := api.svc.Query(ctx.Request().Context(), actor(ctx), filter, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying email templates")
	}
	if ets == nil {
		ets = []notification.EmailTemplate{}
	}
	return ctx.JSON(http.StatusOK, ets)
}

func (api *emailTemplateApi) defaultFor(ctx echo.Context) error {
	et, err := api.svc.DefaultFor(ctx.Request().Context(), ctx.Param("type"))
	if err != nil {
		return errors.Wrap(err, "finding default email template")
	}
	return ctx.JSON(http.StatusOK, et)
}

// visibleTemplate hides the templates of other users, except the defaults.
func (api *emailTemplateApi) visibleTemplate(ctx echo.Context) (notification.EmailTemplate, error) {
	et, err := api.svc.GetByID(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return notification.EmailTemplate{}, errors.Wrap(err, "finding email template by ID")
	}
	if !et.IsDefault && !api.svc.CanControl(actor(ctx), et) {
		return notification.EmailTemplate{}, errHttpNotFound
	}
	return et, nil
}

func (api *emailTemplateApi) retrieve(ctx echo.Context) error {
	et, err := api.visibleTemplate(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, et)
}

func (api *emailTemplateApi) update(ctx echo.Context) error {
	et, err := api.visibleTemplate(ctx)
	if err != nil {
		return err
	}

	var data notification.UpdateEmailTemplate
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateEmailTemplate")
	}
	if err = data.Validate(et, api.validate); err != nil {
		return err
	}

	et, err = api.svc.Update(ctx.Request().Context(), actor(ctx), et.ID, data)
	if err != nil {
		return errors.Wrap(err, "updating email template")
	}
	return ctx.JSON(http.StatusOK, et)
}

func (api *emailTemplateApi) destroy(ctx echo.Context) error {
	if err := api.svc.Delete(ctx.Request().Context(), actor(ctx), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting email template")
	}
	return ctx.NoContent(http.StatusNoContent)
}
