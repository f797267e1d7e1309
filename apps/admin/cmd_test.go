package main

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schoolms/backend/apps/shared"
	"github.com/schoolms/backend/core/user"
	emailsvc "github.com/schoolms/backend/services/email"
	"github.com/schoolms/backend/tests"
)

func setup(t *testing.T) *commandLine {
	conf := testutil.NewTestConfig(t)
	logger := testutil.NewLogger()

	// set up DB & repos
	stores, err := shared.OpenStores(context.Background(), conf)
	require.NoError(t, err)

	// start CLI
	validate, _ := shared.NewValidation()
	return &commandLine{
		stores:   stores,
		usrSvc:   user.NewService(stores.Users, emailsvc.NewConsoleServiceMock(conf, logger), conf, logger),
		validate: validate,
	}
}

type cliTest struct {
	name    string
	args    []string // without program name
	pwd     string
	wantErr error
}

func mockPassword(pwd string) {
	readPasswordFunc = func(int) ([]byte, error) {
		return []byte(pwd), nil
	}
}

func runCLITests(t *testing.T, cli *commandLine, tests []cliTest, check func(t *testing.T, tt cliTest)) {
	t.Helper()
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)
		mockPassword(tt.pwd)

		t.Run(tt.name, func(t *testing.T) {
			err := cli.run(args)
			if tt.wantErr != nil {
				assert.Equal(t, tt.wantErr, errors.Cause(err))
				return
			}
			require.NoError(t, err)
			if check != nil {
				check(t, tt)
			}
		})
	}
}

func Test_commandLine_usage(t *testing.T) {
	cli := setup(t)
	runCLITests(t, cli, []cliTest{
		{name: "no command", wantErr: errHelp},
		{name: "unknown command", args: []string{"lol"}, wantErr: errHelp},
	}, nil)
}

func Test_commandLine_migrate(t *testing.T) {
	cli := setup(t)
	runCLITests(t, cli, []cliTest{
		{name: "no subcommand", args: []string{"migrate"}, wantErr: errHelp},
		{name: "up", args: []string{"migrate", "up"}},
		{name: "status", args: []string{"migrate", "status"}},
	}, nil)
}

func Test_commandLine_addUser(t *testing.T) {
	cli := setup(t)
	ctx := context.Background()
	testutil.CreateUser(t, cli.stores.Users, user.RoleTeacher, "Tom", "tom", "tom@x.com", "teacherpass1")

	tests := []cliTest{
		{name: "no args", args: []string{"adduser"}, wantErr: errHelp},
		{name: "no email", args: []string{"adduser", "-username", "root"}, pwd: "S3cure-pass!", wantErr: errHelp},
		{name: "no password", args: []string{"adduser", "-username", "root", "-email", "root@x.com"}, wantErr: errHelp},
		{name: "existing non admin", args: []string{"adduser", "-username", "tom", "-email", "tom@x.com"}, pwd: "S3cure-pass!", wantErr: errNotAdmin},
		{name: "create", args: []string{"adduser", "-username", "root", "-email", "root@x.com", "-name", "Root"}, pwd: "S3cure-pass!"},
		{name: "set password of an existing admin", args: []string{"adduser", "-username", "root", "-email", "root@x.com"}, pwd: "An0ther-pass!"},
	}
	runCLITests(t, cli, tests, func(t *testing.T, tt cliTest) {
		usr, err := cli.usrSvc.GetByUsernameOrEmail(ctx, "root@x.com")
		require.NoError(t, err)
		assert.Equal(t, user.RoleAdmin, usr.Role)
		assert.Equal(t, "Root", usr.Profile.Name)
		assert.True(t, usr.CheckPassword(tt.pwd))
	})

	t.Run("weak password", func(t *testing.T) {
		mockPassword("12345678")
		err := cli.run([]string{"admin", "adduser", "-username", "root2", "-email", "root2@x.com"})
		require.Error(t, err)
		_, err = cli.usrSvc.GetByUsernameOrEmail(ctx, "root2")
		assert.Equal(t, user.ErrNotFound, errors.Cause(err))
	})
}

func Test_commandLine_resetPassword(t *testing.T) {
	cli := setup(t)
	ctx := context.Background()
	usr := testutil.CreateUser(t, cli.stores.Users, user.RoleStudent, "User", "awe", "awe@test.cd", "mdr")

	tests := []cliTest{
		{name: "no args", args: []string{"resetpassword"}, wantErr: errHelp},
		{name: "username but no password", args: []string{"resetpassword", "-username", "lol"}, wantErr: errHelp},
		{name: "user not found", args: []string{"resetpassword", "-username", "lol"}, pwd: "lol", wantErr: user.ErrNotFound},
		{name: "reset with username", args: []string{"resetpassword", "-username", usr.Username}, pwd: "lol"},
		{name: "reset with email", args: []string{"resetpassword", "-username", usr.Email}, pwd: "lmao"},
	}
	runCLITests(t, cli, tests, func(t *testing.T, tt cliTest) {
		refreshed, err := cli.stores.Users.GetUser(ctx, user.GetFilter{ID: usr.ID})
		require.NoError(t, err)
		assert.NotEqual(t, usr.PasswordHash, refreshed.PasswordHash)
		assert.True(t, refreshed.CheckPassword(tt.pwd))
	})
}
