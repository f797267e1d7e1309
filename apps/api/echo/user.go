package echoapi

import (
	"context"
	"mime/multipart"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/schoolms/backend/core"
	"github.com/schoolms/backend/core/user"
)

var (
	errUsrNotFoundInCtx = errors.New("user object not found in echo.Context")
	errUploadsDisabled  = core.NewValidationError(nil, core.FieldError{Field: profileImageField, Error: "file uploads are disabled"})

	contextObjectKey = "object"
)

type userApi struct {
	svc      user.Service
	files    core.FileStorage
	logger   core.Logger
	validate *validator.Validate
	metrics  *metrics
}

// registerUserAPI mounts the admin-only account endpoints:
//
//	POST   /users/{teacher|student|parent}
//	GET    /users/{teachers|students|parents|admins}
//	GET    /users/{role}/:id
//	PUT    /users/{role}/:id
//	DELETE /users/{role}/:id
func registerUserAPI(g *echo.Group, authn echo.MiddlewareFunc, deps *Deps, mtr *metrics) {
	api := userApi{
		svc:      deps.UserSvc,
		files:    deps.Files,
		logger:   deps.Logger,
		validate: deps.Validate,
		metrics:  mtr,
	}

	mw := []echo.MiddlewareFunc{authn, adminMiddleware()}
	if limit := deps.Conf.Server.BodyLimit; limit != "" {
		mw = append([]echo.MiddlewareFunc{middleware.BodyLimit(limit)}, mw...)
	}
	ug := g.Group("/users", mw...)
	for _, role := range user.ProvisionedRoles {
		ug.POST("/"+string(role), api.provision(role))
	}
	for _, role := range user.AllRoles {
		ug.GET("/"+string(role)+"s", api.query(role))
	}

	// detail endpoints
	dg := ug.Group("/:role/:id", roleParamMiddleware, api.objectMiddleware)
	dg.GET("", api.retrieve)
	dg.PUT("", api.update)
	dg.DELETE("", api.destroy)
}

// Handlers

func (api *userApi) provision(role user.Role) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		var data user.ProvisionUser
		file, err := bindUserData(ctx, &data)
		if err != nil {
			return errors.Wrap(err, "binding to ProvisionUser")
		}
		data.Role = role
		data.Profile.ProfileImage = ""
		if err := data.Validate(api.validate); err != nil {
			return err
		}

		rctx := ctx.Request().Context()
		if file != nil {
			ref, err := api.saveProfileImage(rctx, file)
			if err != nil {
				return err
			}
			data.Profile.ProfileImage = ref
		}

		usr, err := api.svc.Provision(rctx, data)
		if err != nil {
			api.removeProfileImage(rctx, data.Profile.ProfileImage)
			return errors.Wrap(err, "provisioning user")
		}
		api.metrics.provisioned.WithLabelValues(string(role)).Inc()
		return ctx.JSON(http.StatusCreated, usr)
	}
}

func (api *userApi) query(role user.Role) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		var filter user.QueryFilter
		if err := ctx.Bind(&filter); err != nil {
			return errors.Wrap(err, "binding to QueryFilter")
		}
		filter.Clean()
		filter.Roles = []user.Role{role}

		users, err := api.svc.Query(ctx.Request().Context(), filter, bindOrderings(ctx, user.OrderingFields...)...)
		if err != nil {
			return errors.Wrap(err, "querying users")
		}
		if users == nil {
			users = []user.User{}
		}
		return ctx.JSON(http.StatusOK, users)
	}
}

func (api *userApi) retrieve(ctx echo.Context) error {
	usr, ok := ctx.Get(contextObjectKey).(user.User)
	if !ok {
		return errors.Wrap(errUsrNotFoundInCtx, "retrieving object from context")
	}
	return ctx.JSON(http.StatusOK, usr)
}

func (api *userApi) update(ctx echo.Context) error {
	usr, ok := ctx.Get(contextObjectKey).(user.User)
	if !ok {
		return errors.Wrap(errUsrNotFoundInCtx, "retrieving object from context")
	}

	var data user.UpdateUser
	file, err := bindUserData(ctx, &data)
	if err != nil {
		return errors.Wrap(err, "binding to UpdateUser")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	rctx := ctx.Request().Context()
	var newRef string
	if file != nil {
		if newRef, err = api.saveProfileImage(rctx, file); err != nil {
			return err
		}
		if data.Profile == nil {
			data.Profile = new(user.ProfileUpdate)
		}
		data.Profile.ProfileImage = &newRef
	}

	updated, err := api.svc.Update(rctx, usr, data)
	if err != nil {
		api.removeProfileImage(rctx, newRef)
		return errors.Wrap(err, "updating user")
	}
	if newRef != "" && usr.Profile.ProfileImage != newRef {
		api.removeProfileImage(rctx, usr.Profile.ProfileImage)
	}
	return ctx.JSON(http.StatusOK, updated)
}

func (api *userApi) destroy(ctx echo.Context) error {
	usr, ok := ctx.Get(contextObjectKey).(user.User)
	if !ok {
		return errors.Wrap(errUsrNotFoundInCtx, "retrieving object from context")
	}

	// an admin cannot delete themselves
	ctxUsr, err := getContextUser(ctx, api.svc)
	if err != nil {
		return err
	}
	if usr.ID == ctxUsr.ID {
		return errForbidden
	}

	rctx := ctx.Request().Context()
	if err := api.svc.Delete(rctx, usr.ID); err != nil {
		return errors.Wrap(err, "deleting user")
	}
	api.removeProfileImage(rctx, usr.Profile.ProfileImage)
	return ctx.NoContent(http.StatusNoContent)
}

// objectMiddleware loads the `:id` user and checks it has the `:role` role.
func (api *userApi) objectMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		usr, err := api.svc.GetByID(ctx.Request().Context(), ctx.Param("id"))
		if err != nil {
			return errors.Wrap(err, "finding user by ID")
		}
		if usr.Role != getContextRole(ctx) {
			return user.ErrNotFound
		}
		ctx.Set(contextObjectKey, usr)
		return next(ctx)
	}
}

func (api *userApi) saveProfileImage(ctx context.Context, fh *multipart.FileHeader) (string, error) {
	if api.files == nil {
		return "", errUploadsDisabled
	}
	src, err := fh.Open()
	if err != nil {
		return "", errors.Wrap(err, "opening uploaded file")
	}
	defer src.Close()

	ref, err := api.files.Save(ctx, fh.Filename, src)
	if err != nil {
		return "", errors.Wrap(err, "saving profile image")
	}
	return ref, nil
}

// removeProfileImage deletes a stored image; failures are only logged.
func (api *userApi) removeProfileImage(ctx context.Context, ref string) {
	if ref == "" || api.files == nil {
		return
	}
	if err := api.files.Remove(ctx, ref); err != nil {
		api.logger.Warn("removing profile image", errors.Wrap(err, ref))
	}
}
