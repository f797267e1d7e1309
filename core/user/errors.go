package user

import "errors"

var (
	ErrNotFound           = errors.New("user not found")
	ErrDuplicateIdentity  = errors.New("a user with this identity already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrResetTokenInvalid  = errors.New("password reset token is invalid or has expired")
	ErrIncorrectPassword  = errors.New("incorrect current password")
	ErrPasswordHashed     = errors.New("password must not be a password hash")
	ErrInvalidRole        = errors.New("invalid role")
)

// Identity fields that must be unique; DuplicateIdentityError.Field is one of them.
const (
	FieldUsername   = "username"
	FieldEmail      = "email"
	FieldEmployeeID = "employeeId"
	FieldStudentID  = "studentId"
)

// DuplicateIdentityError reports which unique identity field is already taken.
// It matches ErrDuplicateIdentity with errors.Is.
type DuplicateIdentityError struct {
	Field string
}

func NewDuplicateIdentityError(field string) error {
	return &DuplicateIdentityError{Field: field}
}

func (e *DuplicateIdentityError) Error() string {
	return "a user with this " + e.Field + " already exists"
}

func (e *DuplicateIdentityError) Is(target error) bool {
	return target == ErrDuplicateIdentity
}
