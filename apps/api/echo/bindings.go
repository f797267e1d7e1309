package echoapi

import (
	"encoding/json"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/schoolms/backend/core"
)

var (
	orderingParam     = "ordering"
	dataFormField     = "data"
	profileImageField = "profileImage"
)

// bindOrderings reads the `ordering` query param, e.g. `?ordering=-created_at,username`.
func bindOrderings(ctx echo.Context, allowed ...string) []core.DBOrdering {
	return core.ParseOrderings(ctx.QueryParam(orderingParam), allowed...)
}

// bindUserData binds a JSON body into dest, or, for multipart requests, the JSON `data` field
// alongside an optional `profileImage` file which is returned.
func bindUserData(ctx echo.Context, dest interface{}) (*multipart.FileHeader, error) {
	ctype := ctx.Request().Header.Get(echo.HeaderContentType)
	if !strings.HasPrefix(ctype, echo.MIMEMultipartForm) {
		if err := ctx.Bind(dest); err != nil {
			return nil, err
		}
		return nil, nil
	}

	if data := ctx.FormValue(dataFormField); data != "" {
		if err := json.Unmarshal([]byte(data), dest); err != nil {
			return nil, echo.NewHTTPError(http.StatusBadRequest, "invalid `data` field").SetInternal(err)
		}
	}
	file, err := ctx.FormFile(profileImageField)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return nil, nil
		}
		return nil, echo.NewHTTPError(http.StatusBadRequest, "invalid `profileImage` file").SetInternal(err)
	}
	return file, nil
}
