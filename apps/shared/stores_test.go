package shared_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schoolms/backend/apps/shared"
	"github.com/schoolms/backend/core/user"
	"github.com/schoolms/backend/tests"
)

func TestOpenStores(t *testing.T) {
	ctx := context.Background()

	t.Run("memory", func(t *testing.T) {
		conf := testutil.NewTestConfig(t)
		stores, err := shared.OpenStores(ctx, conf)
		require.NoError(t, err)
		defer func() { assert.NoError(t, stores.Close(ctx)) }()

		assert.Equal(t, "memory", stores.Engine)
		assert.NoError(t, stores.Migrate(ctx, "up"))

		// users and classes share one store
		testutil.CreateUser(t, stores.Users, user.RoleTeacher, "Tom", "tom", "tom@x.com", "")
		n, err := stores.Users.CountUsers(ctx, user.QueryFilter{Roles: []user.Role{user.RoleTeacher}})
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})

	t.Run("unknown engine", func(t *testing.T) {
		conf := testutil.NewTestConfig(t)
		conf.Database.Engine = "sqlite"
		_, err := shared.OpenStores(ctx, conf)
		assert.EqualError(t, err, `unknown database engine "sqlite"`)
	})
}

func TestNewValidation(t *testing.T) {
	validate, translator := shared.NewValidation()
	require.NotNil(t, translator)

	nu := user.NewUser{Role: user.RoleAdmin, Email: "root@x.com", Password: "12345678", Profile: user.Profile{Name: "Root"}}
	err := nu.Validate(validate)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pwdnotallnum")
}
