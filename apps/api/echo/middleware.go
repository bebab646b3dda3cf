package echoapi

import (
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/tathmini/core/user"
)

func adminMiddleware(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			claims, err := getContextClaims(ctx)
			if err != nil {
				return errors.Wrap(err, "getting context claims")
			}
			if claims.IsAdmin && contextHasAnyRole(ctx, roles) {
				return next(ctx)
			}
			return errHttpForbidden
		}
	}
}

// activeUserMiddleware loads the authenticated user and rejects deactivated accounts.
func (s *Server) activeUserMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		usr, err := s.auth.contextUser(ctx)
		if err != nil {
			return errors.Wrap(err, "getting context user")
		}
		if !usr.IsActive {
			return errAccountDeactivated
		}
		return next(ctx)
	}
}

// actor returns the user loaded by activeUserMiddleware.
func actor(ctx echo.Context) user.User {
	usr, _ := ctx.Get(contextUserKey).(user.User)
	return usr
}
