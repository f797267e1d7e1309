package echoapi

import (
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/schoolms/backend/core/auth"
	"github.com/schoolms/backend/core/user"
)

var (
	contextClaimsKey = "claims"
	contextUserKey   = "user"
)

// authMiddleware authenticates requests with a bearer token: no token, or an invalid or expired one, is rejected
// with 401 before any later handler or middleware runs.
func authMiddleware(tokens *auth.TokenService) echo.MiddlewareFunc {
	return middleware.KeyAuthWithConfig(middleware.KeyAuthConfig{
		KeyLookup:  "header:" + echo.HeaderAuthorization,
		AuthScheme: "Bearer",
		Validator: func(token string, ctx echo.Context) (bool, error) {
			claims, err := tokens.Verify(token)
			if err != nil {
				return false, err
			}
			ctx.Set(contextClaimsKey, claims)
			return true, nil
		},
		ErrorHandler: func(err error, ctx echo.Context) error {
			switch {
			case errors.Is(err, auth.ErrTokenExpired):
				return errTokenExpired
			case errors.Is(err, auth.ErrTokenInvalid):
				return errTokenInvalid
			default: // missing header or another scheme
				return errAuthRequired
			}
		},
	})
}

// rolesMiddleware lets through authenticated requests whose role is one of roles.
// It must be mounted after authMiddleware.
func rolesMiddleware(roles ...user.Role) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			claims, err := getContextClaims(ctx)
			if err != nil {
				return err
			}
			for _, role := range roles {
				if claims.Role == role {
					return next(ctx)
				}
			}
			return errForbidden
		}
	}
}

func getContextClaims(ctx echo.Context) (*auth.Claims, error) {
	if claims, ok := ctx.Get(contextClaimsKey).(*auth.Claims); ok {
		return claims, nil
	}
	return nil, errAuthRequired
}

// getContextUser loads the authenticated user once per request.
// A token whose user no longer exists is treated as invalid.
func getContextUser(ctx echo.Context, svc user.Service) (user.User, error) {
	if usr, ok := ctx.Get(contextUserKey).(user.User); ok {
		return usr, nil
	}

	claims, err := getContextClaims(ctx)
	if err != nil {
		return user.User{}, err
	}
	usr, err := svc.GetByID(ctx.Request().Context(), claims.UserID)
	if err != nil {
		if errors.Cause(err) == user.ErrNotFound {
			return user.User{}, errTokenInvalid
		}
		return user.User{}, errors.Wrap(err, "finding user by ID")
	}
	ctx.Set(contextUserKey, usr)
	return usr, nil
}
