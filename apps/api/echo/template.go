package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/tathmini/core/template"
)

type templateApi struct {
	svc      template.Service
	validate *validator.Validate
}

func (s *Server) registerItemAPI(g *echo.Group) {
	api := templateApi{svc: s.TemplateSvc, validate: s.Validate}

	g.POST("", api.createItem)
	g.GET("", api.queryItems)

	dg := g.Group("/:id")
	dg.GET("", api.retrieveItem)
	dg.PUT("", api.updateItem)
	dg.DELETE("", api.destroyItem)
}

func (s *Server) registerTemplateAPI(g *echo.Group) {
	api := templateApi{svc: s.TemplateSvc, validate: s.Validate}

	g.POST("", api.create)
	g.GET("", api.query)

	dg := g.Group("/:id")
	dg.GET("", api.retrieve)
	dg.PUT("", api.update)
	dg.DELETE("", api.destroy)
	dg.POST("/copy", api.copy)
	dg.GET("/items", api.listItems)
	dg.POST("/items", api.addItem)
	dg.PUT("/items/order", api.reorderItems)
	dg.PUT("/items/:tiID", api.updateTemplateItem)
	dg.DELETE("/items/:tiID", api.removeItem)
}

// templates

func (api *templateApi) create(ctx echo.Context) error {
	var data template.NewTemplate
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewTemplate")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	tmpl, err := api.svc.Create(ctx.Request().Context(), actor(ctx), data)
	if err != nil {
		return errors.Wrap(err, "creating template")
	}
	return ctx.JSON(http.StatusCreated, tmpl)
}

func (api *templateApi) query(ctx echo.Context) error {
	filter := new(template.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []template.Template{})
	}
	filter.Clean()
	ordering := new(Ordering)
	ordering.Bind(ctx)

	tmpls, err := api.svc.Query(ctx.Request().Context(), actor(ctx), filter, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying templates")
	}
	if tmpls == nil {
		tmpls = []template.Template{}
	}
	return ctx.JSON(http.StatusOK, tmpls)
}

// visibleTemplate finds the template of the path, hiding it from users who cannot use it.
func (api *templateApi) visibleTemplate(ctx echo.Context) (template.Template, error) {
	tmpl, err := api.svc.GetByID(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return template.Template{}, errors.Wrap(err, "finding template by ID")
	}
	if !api.svc.CanUse(actor(ctx), tmpl) {
		return template.Template{}, errHttpNotFound
	}
	return tmpl, nil
}

func (api *templateApi) retrieve(ctx echo.Context) error {
	tmpl, err := api.visibleTemplate(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, tmpl)
}

func (api *templateApi) update(ctx echo.Context) error {
	tmpl, err := api.visibleTemplate(ctx)
	if err != nil {
		return err
	}

	var data template.UpdateTemplate
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateTemplate")
	}
	if err = data.Validate(tmpl, api.validate); err != nil {
		return err
	}

	tmpl, err = api.svc.Update(ctx.Request().Context(), actor(ctx), tmpl.ID, data)
	if err != nil {
		return errors.Wrap(err, "updating template")
	}
	return ctx.JSON(http.StatusOK, tmpl)
}

func (api *templateApi) destroy(ctx echo.Context) error {
	if err := api.svc.Delete(ctx.Request().Context(), actor(ctx), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting template")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *templateApi) copy(ctx echo.Context) error {
	tmpl, err := api.svc.Copy(ctx.Request().Context(), actor(ctx), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "copying template")
	}
	return ctx.JSON(http.StatusCreated, tmpl)
}

// template items

func (api *templateApi) listItems(ctx echo.Context) error {
	tmpl, err := api.visibleTemplate(ctx)
	if err != nil {
		return err
	}
	items, err := api.svc.FullItems(ctx.Request().Context(), tmpl.ID)
	if err != nil {
		return errors.Wrap(err, "listing template items")
	}
	if items == nil {
		items = []template.FullItem{}
	}
	return ctx.JSON(http.StatusOK, items)
}

func (api *templateApi) addItem(ctx echo.Context) error {
	var data template.NewTemplateItem
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewTemplateItem")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	ti, err := api.svc.AddItem(ctx.Request().Context(), actor(ctx), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "adding template item")
	}
	return ctx.JSON(http.StatusCreated, ti)
}

func (api *templateApi) reorderItems(ctx echo.Context) error {
	var data template.ReorderItems
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ReorderItems")
	}
	if err := api.validate.Struct(data); err != nil {
		return err
	}

	tis, err := api.svc.ReorderItems(ctx.Request().Context(), actor(ctx), ctx.Param("id"), data.TemplateItemIDs)
	if err != nil {
		return errors.Wrap(err, "reordering template items")
	}
	return ctx.JSON(http.StatusOK, tis)
}

// checkTemplateItem ensures the template item of the path belongs to the template of the path.
func (api *templateApi) checkTemplateItem(ctx echo.Context) error {
	tis, err := api.svc.ListItems(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "listing template items")
	}
	for _, ti := range tis {
		if ti.ID == ctx.Param("tiID") {
			return nil
		}
	}
	return errHttpNotFound
}

func (api *templateApi) updateTemplateItem(ctx echo.Context) error {
	if err := api.checkTemplateItem(ctx); err != nil {
		return err
	}

	var data template.UpdateTemplateItem
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateTemplateItem")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	ti, err := api.svc.UpdateTemplateItem(ctx.Request().Context(), actor(ctx), ctx.Param("tiID"), data)
	if err != nil {
		return errors.Wrap(err, "updating template item")
	}
	return ctx.JSON(http.StatusOK, ti)
}

func (api *templateApi) removeItem(ctx echo.Context) error {
	if err := api.checkTemplateItem(ctx); err != nil {
		return err
	}
	if err := api.svc.RemoveItem(ctx.Request().Context(), actor(ctx), ctx.Param("tiID")); err != nil {
		return errors.Wrap(err, "removing template item")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// items

func (api *templateApi) createItem(ctx echo.Context) error {
	var data template.NewItem
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewItem")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	it, err := api.svc.CreateItem(ctx.Request().Context(), actor(ctx), data)
	if err != nil {
		return errors.Wrap(err, "creating item")
	}
	return ctx.JSON(http.StatusCreated, it)
}

func (api *templateApi) queryItems(ctx echo.Context) error {
	filter := new(template.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []template.Item{})
	}
	filter.Clean()
	ordering := new(Ordering)
	ordering.Bind(ctx)

	items, err := api.svc.QueryItems(ctx.Request().Context(), actor(ctx), filter, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying items")
	}
	if items == nil {
		items = []template.Item{}
	}
	return ctx.JSON(http.StatusOK, items)
}

func (api *templateApi) retrieveItem(ctx echo.Context) error {
	it, err := api.svc.GetItemByID(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding item by ID")
	}
	return ctx.JSON(http.StatusOK, it)
}

func (api *templateApi) updateItem(ctx echo.Context) error {
	reqCtx := ctx.Request().Context()
	it, err := api.svc.GetItemByID(reqCtx, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding item by ID")
	}

	var data template.UpdateItem
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateItem")
	}
	if err = data.Validate(it, api.validate); err != nil {
		return err
	}

	it, err = api.svc.UpdateItem(reqCtx, actor(ctx), it.ID, data)
	if err != nil {
		return errors.Wrap(err, "updating item")
	}
	return ctx.JSON(http.StatusOK, it)
}

func (api *templateApi) destroyItem(ctx echo.Context) error {
	if err := api.svc.DeleteItem(ctx.Request().Context(), actor(ctx), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting item")
	}
	return ctx.NoContent(http.StatusNoContent)
}
