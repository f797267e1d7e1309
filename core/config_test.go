package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfig_Defaults(t *testing.T) {
	t.Setenv("ENV", "test")

	conf := NewConfig()
	assert.Equal(t, "TEST", conf.Env)
	assert.True(t, conf.TestMode)
	assert.False(t, conf.Debug)
	assert.Equal(t, time.Hour, conf.JWTExpirationDelta)
	assert.Equal(t, time.Hour, conf.PasswordResetTimeoutDelta)
	assert.Equal(t, 8, conf.TempPasswordLength)
	assert.Equal(t, "noreply@localhost", conf.DefaultFromEmail.Address)
	assert.Equal(t, "mongo", conf.Database.Engine)
	assert.Equal(t, "localhost:5432", conf.Database.Address())
	assert.Equal(t, "5M", conf.Server.BodyLimit)
	assert.False(t, conf.Server.OpenRegistration)
	assert.False(t, conf.Server.HideAccountExistence)
	assert.NotEmpty(t, conf.WorkDir)
	assert.NoError(t, conf.Validate())
}

func TestNewConfig_EnvOverrides(t *testing.T) {
	t.Setenv("ENV", "test")
	t.Setenv("TEST_DATABASE_ENGINE", "memory")
	t.Setenv("TEST_SERVER_HIDEACCOUNTEXISTENCE", "true")
	t.Setenv("TEST_JWTEXPIRATIONDELTA", "30m")

	conf := NewConfig()
	assert.Equal(t, "memory", conf.Database.Engine)
	assert.True(t, conf.Server.HideAccountExistence)
	assert.Equal(t, 30*time.Minute, conf.JWTExpirationDelta)
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		return &Config{SecretKey: "s3cr3t", TempPasswordLength: 8, Database: DatabaseConfig{Engine: "postgres"}}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{
			name:    "default secret in prod",
			mutate:  func(c *Config) { c.SecretKey = defaultSecretKey },
			wantErr: errInsecureSecretKey.Error(),
		},
		{
			name:   "default secret in debug",
			mutate: func(c *Config) { c.SecretKey = defaultSecretKey; c.Debug = true },
		},
		{
			name:    "unknown engine",
			mutate:  func(c *Config) { c.Database.Engine = "sqlite" },
			wantErr: `unknown database engine "sqlite"`,
		},
		{
			name:    "short temp password",
			mutate:  func(c *Config) { c.TempPasswordLength = 4 },
			wantErr: "tempPasswordLength must be at least 6, got 4",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conf := valid()
			tt.mutate(conf)
			err := conf.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			assert.EqualError(t, err, tt.wantErr)
		})
	}
}
