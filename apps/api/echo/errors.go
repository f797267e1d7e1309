package echoapi

import (
	"net/http"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/schoolms/backend/core"
	"github.com/schoolms/backend/core/auth"
	"github.com/schoolms/backend/core/class"
	"github.com/schoolms/backend/core/user"
)

var (
	errAuthRequired = echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	errTokenInvalid = echo.NewHTTPError(http.StatusUnauthorized, auth.ErrTokenInvalid.Error())
	errTokenExpired = echo.NewHTTPError(http.StatusUnauthorized, auth.ErrTokenExpired.Error())
	errForbidden    = echo.NewHTTPError(http.StatusForbidden, "access denied")
)

// newAppHTTPErrorHandler returns a custom echo.HTTPErrorHandler that knows how to handle our errors.
func newAppHTTPErrorHandler(translator ut.Translator, logger core.Logger) echo.HTTPErrorHandler {
	return func(err error, ctx echo.Context) {
		var code int
		var message interface{}

		switch origErr := errors.Cause(err).(type) {
		case *echo.HTTPError:
			if origErr.Internal != nil {
				if herr, ok := origErr.Internal.(*echo.HTTPError); ok {
					origErr = herr
				}
			}
			code = origErr.Code
			message = origErr.Message
		case validator.ValidationErrors:
			fldErrs := make(map[string]string, len(origErr))
			for _, vErr := range origErr {
				fldErrs[vErr.Field()] = vErr.Translate(translator)
			}
			code = http.StatusBadRequest
			message = fldErrs
		case *core.ValidationError:
			if origErr.Fields != nil {
				fldErrs := make(map[string]string, len(origErr.Fields))
				for _, fErr := range origErr.Fields {
					fldErrs[fErr.Field] = fErr.Error
				}
				message = fldErrs
			} else {
				message = origErr.Error()
			}
			code = http.StatusBadRequest
		case *user.DuplicateIdentityError:
			code = http.StatusConflict
			message = map[string]string{origErr.Field: origErr.Error()}
		default:
			switch origErr {
			case user.ErrDuplicateIdentity:
				code = http.StatusConflict
			case user.ErrNotFound, class.ErrNotFound:
				code = http.StatusNotFound
			case user.ErrInvalidCredentials, user.ErrResetTokenInvalid, user.ErrIncorrectPassword,
				user.ErrInvalidRole, user.ErrPasswordHashed:
				code = http.StatusBadRequest
			case auth.ErrTokenInvalid, auth.ErrTokenExpired:
				code = http.StatusUnauthorized
			}
			if code != 0 {
				message = origErr.Error()
				break
			}

			// any other error is a server error
			code = http.StatusInternalServerError
			msg := http.StatusText(http.StatusInternalServerError)
			message = msg
			if ctx.Echo().Debug {
				message = err.Error()
			}

			args := []interface{}{errors.Wrap(err, msg)}
			if claims, cErr := getContextClaims(ctx); cErr == nil {
				args = append(args, user.User{ID: claims.UserID, Role: claims.Role})
			}
			logger.Error(msg, args...)
		}

		if m, ok := message.(string); ok {
			message = echo.Map{"error": m}
		}

		// Send response
		if !ctx.Response().Committed {
			if ctx.Request().Method == http.MethodHead { // Issue #608
				err = ctx.NoContent(code)
			} else {
				err = ctx.JSON(code, message)
			}
			if err != nil {
				ctx.Echo().Logger.Error(err)
			}
		}
	}
}
