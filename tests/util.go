package testutil

import (
	"context"
	"io"
	"log"
	"net/mail"
	"testing"
	"time"

	"github.com/schoolms/backend/core"
	"github.com/schoolms/backend/core/user"
	logsvc "github.com/schoolms/backend/services/logger"
)

// NewTestConfig returns the configuration used by tests: in-memory store, default TTLs, no external services.
func NewTestConfig(t *testing.T) *core.Config {
	t.Helper()
	return &core.Config{
		Env:                       "TEST",
		TestMode:                  true,
		AppName:                   "School Management System",
		SecretKey:                 "test-secret-key",
		DefaultFromEmail:          mail.Address{Name: "School Management System", Address: "noreply@localhost"},
		FrontendBaseURL:           "http://localhost:5000/api/auth/reset-password/",
		JWTExpirationDelta:        time.Hour,
		PasswordResetTimeoutDelta: time.Hour,
		TempPasswordLength:        8,
		Server: core.ServerConfig{
			Host:            "localhost",
			ShutdownTimeout: time.Second,
			UploadDir:       "/uploads",
			BodyLimit:       "64K",
		},
		Database: core.DatabaseConfig{Engine: "memory"},
	}
}

// NewLogger returns a logger discarding everything.
func NewLogger() core.Logger {
	return logsvc.NewRollbarLogger(log.New(io.Discard, "", 0), &core.Config{Env: "TEST"})
}

// CreateUser stores a user with a chosen password directly through repo.
func CreateUser(
	t *testing.T,
	repo user.Repository,
	role user.Role,
	name, uname, email, pwd string,
	createdAt ...time.Time,
) user.User {
	t.Helper()
	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	usr := user.User{
		ID:        uname + "-id",
		Username:  uname,
		Email:     email,
		Role:      role,
		Profile:   user.Profile{Name: name},
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	}
	switch role {
	case user.RoleStudent:
		usr.Profile.StudentInfo = &user.StudentInfo{StudentID: "STD-" + uname}
	case user.RoleTeacher:
		usr.Profile.TeacherInfo = &user.TeacherInfo{EmployeeID: "EMP-" + uname}
	}
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("CreateUser() failed: %v", err)
		}
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	return usr
}
