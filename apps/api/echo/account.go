package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/schoolms/backend/core"
	"github.com/schoolms/backend/core/auth"
	"github.com/schoolms/backend/core/user"
)

const (
	msgResetRequested = "If the email address supplied is associated with an account on this system, " +
		"an email will arrive in your inbox shortly with instructions to reset your password."
	msgResetDone       = "Password has been reset with the new password."
	msgPasswordChanged = "Password changed successfully."
)

type authApi struct {
	svc      user.Service
	tokens   *auth.TokenService
	conf     *core.Config
	logger   core.Logger
	validate *validator.Validate
	metrics  *metrics
}

func registerAuthAPI(g *echo.Group, authn echo.MiddlewareFunc, deps *Deps, mtr *metrics) {
	api := authApi{
		svc:      deps.UserSvc,
		tokens:   deps.Tokens,
		conf:     deps.Conf,
		logger:   deps.Logger,
		validate: deps.Validate,
		metrics:  mtr,
	}

	ag := g.Group("/auth")

	// un-authed endpoints
	ag.POST("/login", api.login)
	ag.POST("/register", api.register)
	ag.POST("/reset-password", api.requestPasswordReset)
	ag.POST("/reset-password/:token", api.confirmPasswordReset)

	// authed endpoints
	ag.GET("/me", api.me, authn)
	ag.POST("/change-password", api.changePassword, authn)
}

// Handlers

func (api *authApi) login(ctx echo.Context) error {
	var data LoginRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to LoginRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	usr, err := api.svc.Authenticate(ctx.Request().Context(), data.identifier(), data.Password)
	if err != nil {
		api.metrics.logins.WithLabelValues("failure").Inc()
		return errors.Wrap(err, "authenticating")
	}
	api.metrics.logins.WithLabelValues("success").Inc()
	return api.respondWithToken(ctx, http.StatusOK, usr)
}

// register creates an admin account with a chosen password. It is closed once an admin exists,
// unless registration is configured to stay open.
func (api *authApi) register(ctx echo.Context) error {
	rctx := ctx.Request().Context()
	allowed, err := api.svc.CanRegister(rctx)
	if err != nil {
		return errors.Wrap(err, "checking registration")
	}
	if !allowed {
		return errForbidden
	}

	var data user.NewUser
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewUser")
	}
	data.Role = user.RoleAdmin
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	usr, err := api.svc.Create(rctx, data)
	if err != nil {
		return errors.Wrap(err, "creating admin")
	}
	return api.respondWithToken(ctx, http.StatusCreated, usr)
}

func (api *authApi) me(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.svc)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, usr)
}

func (api *authApi) changePassword(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.svc)
	if err != nil {
		return err
	}

	var data user.ChangePassword
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ChangePassword")
	}
	if err := data.Validate(api.validate, usr); err != nil {
		return err
	}

	if err := api.svc.ChangePassword(ctx.Request().Context(), usr, data); err != nil {
		return errors.Wrap(err, "changing password")
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{Message: msgPasswordChanged})
}

func (api *authApi) requestPasswordReset(ctx echo.Context) error {
	var data PasswordResetRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to PasswordResetRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	if err := api.svc.RequestPasswordReset(ctx.Request().Context(), data.Email); err != nil {
		// unknown emails look like known ones when configured so
		if !(errors.Cause(err) == user.ErrNotFound && api.conf.Server.HideAccountExistence) {
			return errors.Wrap(err, "requesting password reset")
		}
	} else {
		api.metrics.resets.WithLabelValues("requested").Inc()
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{Message: msgResetRequested})
}

func (api *authApi) confirmPasswordReset(ctx echo.Context) error {
	var data user.ResetUserPassword
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ResetUserPassword")
	}
	data.Token = ctx.Param("token")
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	if err := api.svc.ResetPassword(ctx.Request().Context(), data); err != nil {
		return errors.Wrap(err, "resetting password")
	}
	api.metrics.resets.WithLabelValues("completed").Inc()
	return ctx.JSON(http.StatusOK, SuccessResponse{Message: msgResetDone})
}

func (api *authApi) respondWithToken(ctx echo.Context, code int, usr user.User) error {
	token, err := api.tokens.Issue(usr.ID, usr.Role)
	if err != nil {
		return errors.Wrap(err, "issuing token")
	}
	return ctx.JSON(code, LoginResponse{Token: token, User: usr})
}

type (
	// LoginRequest identifies the user by email; a username is accepted in either field.
	LoginRequest struct {
		Email    string `json:"email"`
		Username string `json:"username"`
		Password string `json:"password" validate:"required"`
	}

	LoginResponse struct {
		Token string    `json:"token"`
		User  user.User `json:"user"`
	}

	PasswordResetRequest struct {
		Email string `json:"email" validate:"required,email"`
	}

	SuccessResponse struct {
		Message string `json:"message"`
	}
)

func (lr *LoginRequest) Validate(validate *validator.Validate) error {
	lr.Email = core.CleanString(lr.Email, true /* lower */)
	lr.Username = core.CleanString(lr.Username, true /* lower */)
	if lr.Email == "" && lr.Username == "" {
		return core.NewValidationError(nil, core.FieldError{Field: "email", Error: "this field is required"})
	}
	return validate.Struct(lr)
}

func (lr LoginRequest) identifier() string {
	if lr.Email != "" {
		return lr.Email
	}
	return lr.Username
}

func (pr *PasswordResetRequest) Validate(validate *validator.Validate) error {
	pr.Email = core.CleanString(pr.Email, true /* lower */)
	return validate.Struct(pr)
}
