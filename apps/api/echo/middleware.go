package echoapi

import (
	"github.com/labstack/echo/v4"

	"github.com/schoolms/backend/core/user"
)

func adminMiddleware() echo.MiddlewareFunc {
	return rolesMiddleware(user.RoleAdmin)
}

// roleParamMiddleware resolves the `:role` path parameter (singular, e.g. "teacher") and stores it in the context.
func roleParamMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		role, err := user.ParseRole(ctx.Param("role"))
		if err != nil {
			return echo.ErrNotFound
		}
		ctx.Set(contextRoleKey, role)
		return next(ctx)
	}
}

var contextRoleKey = "role"

func getContextRole(ctx echo.Context) user.Role {
	role, _ := ctx.Get(contextRoleKey).(user.Role)
	return role
}
