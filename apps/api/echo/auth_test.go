package echoapi_test

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	. "github.com/schoolms/backend/apps/api/echo"
	"github.com/schoolms/backend/core/auth"
	"github.com/schoolms/backend/core/user"
	"github.com/schoolms/backend/tests"
)

func TestGate(t *testing.T) {
	f := setup(t)
	admin := testutil.CreateUser(t, f.usrRepo, user.RoleAdmin, "Ada", "ada", "ada@x.com", "adminpass1")
	teacher := testutil.CreateUser(t, f.usrRepo, user.RoleTeacher, "Tom", "tom", "tom@x.com", "teacherpass1")

	expiredTokens := auth.NewTokenService(f.conf.SecretKey, f.conf.AppName, time.Hour)
	expiredTokens.NowFunc = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	expired, err := expiredTokens.Issue(admin.ID, admin.Role)
	require.NoError(t, err)

	forged, err := auth.NewTokenService("not-the-secret", f.conf.AppName, time.Hour).Issue(admin.ID, admin.Role)
	require.NoError(t, err)

	ghost, err := f.tokens.Issue("ghost-id", user.RoleAdmin)
	require.NoError(t, err)

	tests := []httpTest{
		{
			name:     "protected: no token",
			method:   http.MethodGet,
			path:     "/api/protected",
			wantCode: http.StatusUnauthorized,
			wantData: marshallObj(t, errAuthRequired),
		},
		{
			name:     "protected: malformed token",
			method:   http.MethodGet,
			path:     "/api/protected",
			token:    "not.a.jwt",
			wantCode: http.StatusUnauthorized,
			wantData: marshallObj(t, errInvalidToken),
		},
		{
			name:     "protected: wrong secret",
			method:   http.MethodGet,
			path:     "/api/protected",
			token:    forged,
			wantCode: http.StatusUnauthorized,
			wantData: marshallObj(t, errInvalidToken),
		},
		{
			name:     "protected: expired token",
			method:   http.MethodGet,
			path:     "/api/protected",
			token:    expired,
			wantCode: http.StatusUnauthorized,
			wantData: marshallObj(t, httpErr{Error: "token expired"}),
		},
		{
			name:     "protected: valid token",
			method:   http.MethodGet,
			path:     "/api/protected",
			token:    f.getToken(t, teacher),
			wantCode: http.StatusOK,
			wantData: []byte(`{"message":"access granted","user":{"id":"tom-id","role":"teacher"}}`),
		},
		{
			name:     "admin route: no token is rejected before the role check",
			method:   http.MethodPost,
			path:     "/api/users/teacher",
			body:     []byte(`{}`),
			wantCode: http.StatusUnauthorized,
			wantData: marshallObj(t, errAuthRequired),
		},
		{
			name:     "admin route: wrong role",
			method:   http.MethodPost,
			path:     "/api/users/teacher",
			body:     []byte(`{}`),
			token:    f.getToken(t, teacher),
			wantCode: http.StatusForbidden,
			wantData: marshallObj(t, errForbidden),
		},
		{
			name:     "admin route: wrong role on list",
			method:   http.MethodGet,
			path:     "/api/users/teachers",
			token:    f.getToken(t, teacher),
			wantCode: http.StatusForbidden,
			wantData: marshallObj(t, errForbidden),
		},
		{
			name:     "admin route: admin passes the gate",
			method:   http.MethodGet,
			path:     "/api/users/admins",
			token:    f.getToken(t, admin),
			wantCode: http.StatusOK,
		},
		{
			name:     "me: user no longer exists",
			method:   http.MethodGet,
			path:     "/api/auth/me",
			token:    ghost,
			wantCode: http.StatusUnauthorized,
			wantData: marshallObj(t, errInvalidToken),
		},
	}
	runHTTPTests(t, f, tests)

	t.Run("protected: another scheme", func(t *testing.T) {
		req, rec := newRequest(http.MethodGet, "/api/protected")
		req.Header.Set("Authorization", "Basic "+f.getToken(t, admin))
		checkCodeAndData(t, httpTest{wantCode: http.StatusUnauthorized, wantData: marshallObj(t, errAuthRequired)}, f.serve(req, rec))
	})
	t.Run("protected: scheme is case-insensitive", func(t *testing.T) {
		req, rec := newRequest(http.MethodGet, "/api/protected")
		req.Header.Set("Authorization", "bearer "+f.getToken(t, admin))
		assert.Equal(t, http.StatusOK, f.serve(req, rec).Code)
	})
}

func TestLogin(t *testing.T) {
	f := setup(t)
	admin := testutil.CreateUser(t, f.usrRepo, user.RoleAdmin, "Ada", "ada", "ada@x.com", "adminpass1")

	tests := []struct {
		name     string
		body     string
		wantCode int
		wantData []byte
	}{
		{
			name:     "by email",
			body:     `{"email":" ADA@x.com ","password":"adminpass1"}`,
			wantCode: http.StatusOK,
		},
		{
			name:     "by username",
			body:     `{"username":"ada","password":"adminpass1"}`,
			wantCode: http.StatusOK,
		},
		{
			name:     "username in the email field",
			body:     `{"email":"ada","password":"adminpass1"}`,
			wantCode: http.StatusOK,
		},
		{
			name:     "wrong password",
			body:     `{"email":"ada@x.com","password":"nope"}`,
			wantCode: http.StatusBadRequest,
			wantData: marshallObj(t, httpErr{Error: "invalid credentials"}),
		},
		{
			name:     "unknown user",
			body:     `{"email":"who@x.com","password":"adminpass1"}`,
			wantCode: http.StatusNotFound,
			wantData: marshallObj(t, httpErr{Error: "user not found"}),
		},
		{
			name:     "missing identifier",
			body:     `{"password":"adminpass1"}`,
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{"email":"this field is required"}`),
		},
		{
			name:     "missing password",
			body:     `{"email":"ada@x.com"}`,
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{"password":"this field is required"}`),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.serve(newRequest(http.MethodPost, "/api/auth/login", []byte(tt.body)))
			checkCodeAndData(t, httpTest{wantCode: tt.wantCode, wantData: tt.wantData}, rec)
			if tt.wantCode != http.StatusOK {
				return
			}

			var resp LoginResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, admin.ID, resp.User.ID)
			assert.NotContains(t, rec.Body.String(), "passwordHash")
			assert.NotNil(t, resp.User.LastLogin)

			claims, err := f.tokens.Verify(resp.Token)
			require.NoError(t, err)
			assert.Equal(t, admin.ID, claims.UserID)
			assert.Equal(t, user.RoleAdmin, claims.Role)
		})
	}
}

func TestRegister(t *testing.T) {
	f := setup(t)
	body := func(uname, email string) []byte {
		return []byte(`{"username":"` + uname + `","email":"` + email + `","password":"S3cure-pass!","profile":{"name":"Root"}}`)
	}

	// bootstrap: no admin yet
	rec := f.serve(newRequest(http.MethodPost, "/api/auth/register", body("root", "root@x.com")))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var resp LoginResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, user.RoleAdmin, resp.User.Role)
	assert.NotEmpty(t, resp.Token)

	// closed once an admin exists
	rec = f.serve(newRequest(http.MethodPost, "/api/auth/register", body("root2", "root2@x.com")))
	checkCodeAndData(t, httpTest{wantCode: http.StatusForbidden, wantData: marshallObj(t, errForbidden)}, rec)

	// unless open
	f.conf.Server.OpenRegistration = true
	rec = f.serve(newRequest(http.MethodPost, "/api/auth/register", body("root2", "root2@x.com")))
	assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	tests := []httpTest{
		{
			name:     "duplicate email",
			body:     body("root3", "root@x.com"),
			wantCode: http.StatusConflict,
			wantData: []byte(`{"email":"a user with this email already exists"}`),
		},
		{
			name:     "weak password",
			body:     []byte(`{"email":"root4@x.com","password":"short","profile":{"name":"Root"}}`),
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{"password":"password must contain at least 8 characters"}`),
		},
		{
			name:     "password longer than 72 bytes",
			body:     []byte(`{"email":"root4@x.com","password":"` + strings.Repeat("Lo0ng-", 14) + `","profile":{"name":"Root"}}`),
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{"password":"password must not be longer than 72 bytes"}`),
		},
		{
			name:     "missing name",
			body:     []byte(`{"email":"root4@x.com","password":"S3cure-pass!"}`),
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{"name":"this field is required"}`),
		},
	}
	for _, tt := range tests {
		tt.method, tt.path = http.MethodPost, "/api/auth/register"
		t.Run(tt.name, func(t *testing.T) {
			checkCodeAndData(t, tt, f.serve(newRequest(tt.method, tt.path, tt.body)))
		})
	}
}

func TestMe(t *testing.T) {
	f := setup(t)
	student := testutil.CreateUser(t, f.usrRepo, user.RoleStudent, "Sam", "sam", "sam@x.com", "studentpass1")

	runHTTPTests(t, f, []httpTest{
		{
			name:     "returns the authenticated user",
			method:   http.MethodGet,
			path:     "/api/auth/me",
			token:    f.getToken(t, student),
			wantCode: http.StatusOK,
			wantData: marshallObj(t, student),
		},
	})
}

func TestPasswordReset(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	usr := testutil.CreateUser(t, f.usrRepo, user.RoleTeacher, "Tom", "tom", "tom@x.com", "teacherpass1")

	// unknown email
	rec := f.serve(newRequest(http.MethodPost, "/api/auth/reset-password", []byte(`{"email":"who@x.com"}`)))
	checkCodeAndData(t, httpTest{wantCode: http.StatusNotFound, wantData: marshallObj(t, httpErr{Error: "user not found"})}, rec)

	f.conf.Server.HideAccountExistence = true
	rec = f.serve(newRequest(http.MethodPost, "/api/auth/reset-password", []byte(`{"email":"who@x.com"}`)))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, f.mailSvc.SentMessages())

	rec = f.serve(newRequest(http.MethodPost, "/api/auth/reset-password", []byte(`{"email":"not-an-email"}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// request
	rec = f.serve(newRequest(http.MethodPost, "/api/auth/reset-password", []byte(`{"email":"TOM@x.com"}`)))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	msg, ok := f.mailSvc.LastMessageTo("tom@x.com")
	require.True(t, ok)
	resetURL := msg.TemplateData.(map[string]string)["ResetURL"]
	require.True(t, strings.HasPrefix(resetURL, f.conf.FrontendBaseURL))
	token := strings.TrimPrefix(resetURL, f.conf.FrontendBaseURL)
	require.NotEmpty(t, token)

	confirmPath := "/api/auth/reset-password/" + token
	tests := []httpTest{
		{
			name:     "unknown token",
			method:   http.MethodPost,
			path:     "/api/auth/reset-password/deadbeef",
			body:     []byte(`{"password":"Brand-new-pass1"}`),
			wantCode: http.StatusBadRequest,
			wantData: marshallObj(t, httpErr{Error: user.ErrResetTokenInvalid.Error()}),
		},
		{
			name:     "weak password keeps the token",
			method:   http.MethodPost,
			path:     confirmPath,
			body:     []byte(`{"password":"12345678"}`),
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{"password":"password cannot be entirely numeric"}`),
		},
		{
			name:     "too long password keeps the token",
			method:   http.MethodPost,
			path:     confirmPath,
			body:     []byte(`{"password":"` + strings.Repeat("Lo0ng-", 14) + `"}`),
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{"password":"password must not be longer than 72 bytes"}`),
		},
		{
			name:     "valid",
			method:   http.MethodPost,
			path:     confirmPath,
			body:     []byte(`{"password":"Brand-new-pass1"}`),
			wantCode: http.StatusOK,
		},
		{
			name:     "single use",
			method:   http.MethodPost,
			path:     confirmPath,
			body:     []byte(`{"password":"Other-new-pass2"}`),
			wantCode: http.StatusBadRequest,
			wantData: marshallObj(t, httpErr{Error: user.ErrResetTokenInvalid.Error()}),
		},
	}
	runHTTPTests(t, f, tests)

	stored, err := f.usrRepo.GetUser(ctx, user.GetFilter{ID: usr.ID})
	require.NoError(t, err)
	assert.True(t, stored.CheckPassword("Brand-new-pass1"))
	assert.False(t, stored.CheckPassword("teacherpass1"))
	assert.Nil(t, stored.ResetToken)

	rec = f.serve(newRequest(http.MethodPost, "/api/auth/login", []byte(`{"email":"tom@x.com","password":"Brand-new-pass1"}`)))
	assert.Equal(t, http.StatusOK, rec.Code)
}
