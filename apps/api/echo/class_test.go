package echoapi_test

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schoolms/backend/core/class"
	"github.com/schoolms/backend/core/user"
	"github.com/schoolms/backend/tests"
)

func TestClassAPI(t *testing.T) {
	f := setup(t)
	admin := testutil.CreateUser(t, f.usrRepo, user.RoleAdmin, "Ada", "ada", "ada@x.com", "adminpass1")
	teacher := testutil.CreateUser(t, f.usrRepo, user.RoleTeacher, "Tom", "tom", "tom@x.com", "")
	student := testutil.CreateUser(t, f.usrRepo, user.RoleStudent, "Sam", "sam", "sam@x.com", "")
	adminToken, teacherToken := f.getToken(t, admin), f.getToken(t, teacher)

	body := []byte(`{"name":"5A","gradeLevel":"5","subjects":[{"name":"Maths","teacher":"` + teacher.ID + `"}],"students":["` + student.ID + `"]}`)

	// create
	rec := f.serve(newAuthRequest(http.MethodPost, "/api/classes", adminToken, body))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var cls class.Class
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cls))
	assert.NotEmpty(t, cls.ID)
	assert.Equal(t, []string{teacher.ID}, cls.TeacherIDs())

	tests := []httpTest{
		{
			name:     "create: not an admin",
			method:   http.MethodPost,
			path:     "/api/classes",
			body:     body,
			token:    teacherToken,
			wantCode: http.StatusForbidden,
			wantData: marshallObj(t, errForbidden),
		},
		{
			name:     "create: student as teacher and unknown student",
			method:   http.MethodPost,
			path:     "/api/classes",
			body:     []byte(`{"name":"5B","subjects":[{"name":"Maths","teacher":"` + student.ID + `"}],"students":["ghost"]}`),
			token:    adminToken,
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{"subjects":"unknown teacher(s): ` + student.ID + `","students":"unknown student(s): ghost"}`),
		},
		{
			name:     "create: missing name",
			method:   http.MethodPost,
			path:     "/api/classes",
			body:     []byte(`{"subjects":[]}`),
			token:    adminToken,
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{"name":"this field is required"}`),
		},
		{
			name:     "list: any authenticated user",
			method:   http.MethodGet,
			path:     "/api/classes",
			token:    teacherToken,
			wantCode: http.StatusOK,
			wantData: marshallObj(t, []class.Class{cls}),
		},
		{
			name:     "list: unauthenticated",
			method:   http.MethodGet,
			path:     "/api/classes",
			wantCode: http.StatusUnauthorized,
			wantData: marshallObj(t, errAuthRequired),
		},
		{
			name:     "retrieve",
			method:   http.MethodGet,
			path:     "/api/classes/" + cls.ID,
			token:    teacherToken,
			wantCode: http.StatusOK,
			wantData: marshallObj(t, cls),
		},
		{
			name:     "retrieve unknown",
			method:   http.MethodGet,
			path:     "/api/classes/ghost",
			token:    teacherToken,
			wantCode: http.StatusNotFound,
			wantData: marshallObj(t, httpErr{Error: "class not found"}),
		},
		{
			name:     "update: references are checked again",
			method:   http.MethodPut,
			path:     "/api/classes/" + cls.ID,
			body:     []byte(`{"name":"5A","students":["` + teacher.ID + `"]}`),
			token:    adminToken,
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{"students":"unknown student(s): ` + teacher.ID + `"}`),
		},
		{
			name:     "update",
			method:   http.MethodPut,
			path:     "/api/classes/" + cls.ID,
			body:     []byte(`{"name":"5A bis","students":["` + student.ID + `"]}`),
			token:    adminToken,
			wantCode: http.StatusOK,
		},
		{
			name:     "delete: not an admin",
			method:   http.MethodDelete,
			path:     "/api/classes/" + cls.ID,
			token:    teacherToken,
			wantCode: http.StatusForbidden,
		},
		{
			name:     "delete",
			method:   http.MethodDelete,
			path:     "/api/classes/" + cls.ID,
			token:    adminToken,
			wantCode: http.StatusNoContent,
		},
		{
			name:     "delete: gone",
			method:   http.MethodDelete,
			path:     "/api/classes/" + cls.ID,
			token:    adminToken,
			wantCode: http.StatusNotFound,
		},
	}
	runHTTPTests(t, f, tests)
}
