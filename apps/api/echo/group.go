package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/tathmini/core/group"
)

type groupApi struct {
	svc      group.Service
	validate *validator.Validate
}

func (s *Server) registerGroupAPI(g *echo.Group) {
	api := groupApi{svc: s.GroupSvc, validate: s.Validate}

	g.POST("", api.create, adminMiddleware())
	g.GET("", api.query)

	dg := g.Group("/:id")
	dg.GET("", api.retrieve)
	dg.PUT("", api.update, adminMiddleware())
	dg.DELETE("", api.destroy, adminMiddleware())
	dg.GET("/members", api.members)
	dg.POST("/members", api.addMember, adminMiddleware())
	dg.DELETE("/members/:userID", api.removeMember, adminMiddleware())
}

func (api *groupApi) create(ctx echo.Context) error {
	var data group.NewGroup
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewGroup")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	grp, err := api.svc.Create(ctx.Request().Context(), actor(ctx), data)
	if err != nil {
		return errors.Wrap(err, "creating group")
	}
	return ctx.JSON(http.StatusCreated, grp)
}

// query lists every group to admins, and their own groups to other users.
func (api *groupApi) query(ctx echo.Context) error {
	filter := new(group.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []group.Group{})
	}
	filter.Clean()
	ordering := new(Ordering)
	ordering.Bind(ctx)

	reqCtx := ctx.Request().Context()
	usr := actor(ctx)
	var grps []group.Group
	var err error
	if usr.IsAdmin() {
		grps, err = api.svc.Query(reqCtx, filter, ordering.Orderings)
	} else {
		var mine []group.Group
		mine, err = api.svc.GroupsForUser(reqCtx, usr.ID, "")
		for _, grp := range mine {
			if filter.Match(grp) {
				grps = append(grps, grp)
			}
		}
	}
	if err != nil {
		return errors.Wrap(err, "querying groups")
	}
	if grps == nil {
		grps = []group.Group{}
	}
	return ctx.JSON(http.StatusOK, grps)
}

// canSee reports whether the actor is an admin or a member of the group.
func (api *groupApi) canSee(ctx echo.Context, groupID string) (bool, error) {
	usr := actor(ctx)
	if usr.IsAdmin() {
		return true, nil
	}
	reqCtx := ctx.Request().Context()
	isInstr, err := api.svc.IsInstructor(reqCtx, usr.ID, groupID)
	if err != nil || isInstr {
		return isInstr, err
	}
	return api.svc.IsStudent(reqCtx, usr.ID, groupID)
}

func (api *groupApi) retrieve(ctx echo.Context) error {
	ok, err := api.canSee(ctx, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "checking group membership")
	}
	if !ok {
		return errHttpNotFound
	}
	grp, err := api.svc.GetByID(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding group by ID")
	}
	return ctx.JSON(http.StatusOK, grp)
}

func (api *groupApi) update(ctx echo.Context) error {
	reqCtx := ctx.Request().Context()
	grp, err := api.svc.GetByID(reqCtx, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding group by ID")
	}

	var data group.UpdateGroup
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateGroup")
	}
	if err = data.Validate(grp, api.validate); err != nil {
		return err
	}

	grp, err = api.svc.Update(reqCtx, actor(ctx), grp.ID, data)
	if err != nil {
		return errors.Wrap(err, "updating group")
	}
	return ctx.JSON(http.StatusOK, grp)
}

func (api *groupApi) destroy(ctx echo.Context) error {
	if err := api.svc.Delete(ctx.Request().Context(), actor(ctx), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting group")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *groupApi) members(ctx echo.Context) error {
	ok, err := api.canSee(ctx, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "checking group membership")
	}
	if !ok {
		return errHttpNotFound
	}
	ms, err := api.svc.Members(ctx.Request().Context(), ctx.Param("id"), ctx.QueryParam("role"))
	if err != nil {
		return errors.Wrap(err, "listing group members")
	}
	if ms == nil {
		ms = []group.Membership{}
	}
	return ctx.JSON(http.StatusOK, ms)
}

func (api *groupApi) addMember(ctx echo.Context) error {
	var data group.NewMember
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewMember")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	m, err := api.svc.AddMember(ctx.Request().Context(), actor(ctx), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "adding group member")
	}
	return ctx.JSON(http.StatusCreated, m)
}

func (api *groupApi) removeMember(ctx echo.Context) error {
	err := api.svc.RemoveMember(ctx.Request().Context(), actor(ctx), ctx.Param("id"), ctx.Param("userID"))
	if err != nil {
		return errors.Wrap(err, "removing group member")
	}
	return ctx.NoContent(http.StatusNoContent)
}
