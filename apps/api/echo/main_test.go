package echoapi_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	. "github.com/schoolms/backend/apps/api/echo"
	"github.com/schoolms/backend/apps/shared"
	"github.com/schoolms/backend/core"
	"github.com/schoolms/backend/core/auth"
	"github.com/schoolms/backend/core/class"
	"github.com/schoolms/backend/core/user"
	emailsvc "github.com/schoolms/backend/services/email"
	filesvc "github.com/schoolms/backend/services/files"
	inmemdb "github.com/schoolms/backend/storage/database/inmem"
	"github.com/schoolms/backend/tests"
)

var (
	errAuthRequired = httpErr{Error: "authentication required"}
	errInvalidToken = httpErr{Error: "invalid token"}
	errForbidden    = httpErr{Error: "access denied"}
)

type fixture struct {
	app     Server
	conf    *core.Config
	usrRepo user.Repository
	usrSvc  user.Service
	mailSvc *emailsvc.ConsoleServiceMock
	tokens  *auth.TokenService
	fs      afero.Fs
}

func setup(t *testing.T) fixture {
	conf := testutil.NewTestConfig(t)
	logger := testutil.NewLogger()

	// set up DB & repos
	db := inmemdb.Open()
	usrRepo := inmemdb.NewUserRepository(db)

	// set up services
	validate, translator := shared.NewValidation()
	mailSvc := emailsvc.NewConsoleServiceMock(conf, logger)
	usrSvc := user.NewService(usrRepo, mailSvc, conf, logger)
	clsSvc := class.NewService(inmemdb.NewClassRepository(db), usrSvc)
	tokens := auth.NewTokenService(conf.SecretKey, conf.AppName, conf.JWTExpirationDelta)

	fs := afero.NewMemMapFs()
	files, err := filesvc.NewStorage(fs, conf.Server.UploadDir)
	require.NoError(t, err)

	// set up server
	app := NewServer(
		"", /* addr */
		&Deps{
			Conf:       conf,
			Logger:     logger,
			Validate:   validate,
			Translator: translator,
			Tokens:     tokens,
			Files:      files,
			UserSvc:    usrSvc,
			ClassSvc:   clsSvc,
		},
	)
	return fixture{
		app:     app,
		conf:    conf,
		usrRepo: usrRepo,
		usrSvc:  usrSvc,
		mailSvc: mailSvc,
		tokens:  tokens,
		fs:      fs,
	}
}

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func newRequest(method, path string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	return newAuthRequest(method, path, "", data...)
}

func (f fixture) serve(req *http.Request, rec *httptest.ResponseRecorder) *httptest.ResponseRecorder {
	f.app.ServeHTTP(rec, req)
	return rec
}

func (f fixture) getToken(t *testing.T, usr user.User) string {
	t.Helper()
	token, err := f.tokens.Issue(usr.ID, usr.Role)
	require.NoError(t, err)
	return token
}

func marshallObj(t *testing.T, obj interface{}) []byte {
	t.Helper()
	data, err := json.Marshal(obj)
	require.NoError(t, err)
	return data
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	t.Helper()
	assert.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
	if tt.wantData != nil {
		assert.JSONEq(t, string(tt.wantData), rec.Body.String())
	}
}

func runHTTPTests(t *testing.T, f fixture, tests []httpTest) {
	t.Helper()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.serve(newAuthRequest(tt.method, tt.path, tt.token, tt.body))
			checkCodeAndData(t, tt, rec)
		})
	}
}
