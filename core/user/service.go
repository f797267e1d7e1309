package user

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/schoolms/backend/core"
)

type (
	Repository interface {
		// CheckUniqueness returns a *DuplicateIdentityError naming the first identity field of usr
		// already held by another user. excludeID is ignored when empty.
		CheckUniqueness(ctx context.Context, usr User, excludeID string) error
		// CreateUser persists usr. The store enforces uniqueness as well and returns a *DuplicateIdentityError.
		CreateUser(ctx context.Context, usr User) (User, error)
		GetUser(ctx context.Context, filter GetFilter) (User, error)
		// FilterUsers applies AND operation on available QueryFilter fields.
		// QueryFilter.Search does a case-insensitive match on one of Profile.Name, Username or Email.
		FilterUsers(ctx context.Context, filter QueryFilter, orderings ...core.DBOrdering) ([]User, error)
		CountUsers(ctx context.Context, filter QueryFilter) (int, error)
		// UpdateUser writes usr's username, email and profile. Role and credentials are never written.
		UpdateUser(ctx context.Context, usr User) (User, error)
		// SetPasswordHash replaces the password hash and clears any reset token in the same write.
		SetPasswordHash(ctx context.Context, id string, hash []byte, updatedAt time.Time) error
		SetResetToken(ctx context.Context, id string, token ResetToken) error
		// ResetPassword sets hash on the user holding a reset token matching tokenHash and expiring after now,
		// clearing the token in the same write. It returns ErrResetTokenInvalid if there is no such user.
		ResetPassword(ctx context.Context, tokenHash string, now time.Time, hash []byte) (User, error)
		SetLastLogin(ctx context.Context, id string, at time.Time) error
		DeleteUser(ctx context.Context, id string) error
	}

	Service interface {
		CanRegister(ctx context.Context) (bool, error)
		Create(ctx context.Context, nu NewUser) (User, error)
		Provision(ctx context.Context, pu ProvisionUser) (User, error)
		Authenticate(ctx context.Context, identifier, pwd string) (User, error)
		ChangePassword(ctx context.Context, usr User, cp ChangePassword) error
		SetPassword(ctx context.Context, id, pwd string) error
		RequestPasswordReset(ctx context.Context, email string) error
		ResetPassword(ctx context.Context, rp ResetUserPassword) error
		GetByID(ctx context.Context, id string) (User, error)
		GetByUsernameOrEmail(ctx context.Context, identifier string) (User, error)
		Query(ctx context.Context, filter QueryFilter, orderings ...core.DBOrdering) ([]User, error)
		Update(ctx context.Context, usr User, uu UpdateUser) (User, error)
		Delete(ctx context.Context, id string) error
		MissingWithRole(ctx context.Context, role Role, ids ...string) ([]string, error)
	}

	service struct {
		repo    Repository
		mailSvc core.EmailService
		conf    *core.Config
		logger  core.Logger

		now func() time.Time
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository, mailSvc core.EmailService, conf *core.Config, logger core.Logger) Service {
	return &service{
		repo:    repo,
		mailSvc: mailSvc,
		conf:    conf,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// CanRegister reports whether an admin may self-register: either registration is open,
// or no admin exists yet.
func (svc *service) CanRegister(ctx context.Context) (bool, error) {
	if svc.conf.Server.OpenRegistration {
		return true, nil
	}
	n, err := svc.repo.CountUsers(ctx, QueryFilter{Roles: []Role{RoleAdmin}})
	if err != nil {
		return false, errors.Wrap(err, "counting admins")
	}
	return n == 0, nil
}

// Create creates a user with a chosen password. nu must be validated.
func (svc *service) Create(ctx context.Context, nu NewUser) (User, error) {
	if !nu.Role.Valid() {
		return User{}, ErrInvalidRole
	}
	if err := checkRoleInfo(nu.Role, nu.Profile); err != nil {
		return User{}, err
	}
	usr := svc.newUser(nu.Role, nu.Username, nu.Email, nu.Profile)
	if err := usr.SetPassword(nu.Password); err != nil {
		return User{}, errors.Wrap(err, "hashing password")
	}
	return svc.create(ctx, usr)
}

// Provision creates a teacher, student or parent account with a generated temporary password,
// and emails the password to the new user. pu must be validated.
func (svc *service) Provision(ctx context.Context, pu ProvisionUser) (User, error) {
	if !pu.Role.IsProvisioned() {
		return User{}, ErrInvalidRole
	}
	if err := checkRoleInfo(pu.Role, pu.Profile); err != nil {
		return User{}, err
	}
	if pu.Role == RoleParent && pu.Profile.ParentInfo != nil && len(pu.Profile.ParentInfo.Children) > 0 {
		missing, err := svc.MissingWithRole(ctx, RoleStudent, pu.Profile.ParentInfo.Children...)
		if err != nil {
			return User{}, errors.Wrap(err, "checking children")
		}
		if len(missing) > 0 {
			return User{}, core.NewValidationError(nil, core.FieldError{
				Field: "children",
				Error: "unknown student(s): " + strings.Join(missing, ", "),
			})
		}
	}

	usr := svc.newUser(pu.Role, pu.Username, pu.Email, pu.Profile)
	pwd, err := GenerateTempPassword(svc.conf.TempPasswordLength)
	if err != nil {
		return User{}, errors.Wrap(err, "generating temporary password")
	}
	if err := usr.SetPassword(pwd); err != nil {
		return User{}, errors.Wrap(err, "hashing password")
	}

	usr, err = svc.create(ctx, usr)
	if err != nil {
		return User{}, err
	}
	svc.sendAccountCreatedMail(usr, pwd)
	return usr, nil
}

func (svc *service) newUser(role Role, uname, email string, profile Profile) User {
	if uname == "" {
		uname = email
	}
	now := svc.now()
	usr := User{
		ID:        uuid.NewString(),
		Username:  uname,
		Email:     email,
		Role:      role,
		Profile:   profile,
		CreatedAt: now,
		UpdatedAt: now,
	}
	usr.normalize()
	return usr
}

func (svc *service) create(ctx context.Context, usr User) (User, error) {
	// fast path; the store's unique indexes settle concurrent creations
	if err := svc.repo.CheckUniqueness(ctx, usr, ""); err != nil {
		return User{}, err
	}
	usr, err := svc.repo.CreateUser(ctx, usr)
	if err != nil {
		return User{}, errors.Wrap(err, "creating user")
	}
	return usr, nil
}

// Authenticate verifies pwd against the user identified by email or username, and records the login.
func (svc *service) Authenticate(ctx context.Context, identifier, pwd string) (User, error) {
	usr, err := svc.GetByUsernameOrEmail(ctx, identifier)
	if err != nil {
		return User{}, err
	}
	if !usr.CheckPassword(pwd) {
		return User{}, ErrInvalidCredentials
	}
	now := svc.now()
	if err := svc.repo.SetLastLogin(ctx, usr.ID, now); err != nil {
		return User{}, errors.Wrap(err, "setting lastLogin")
	}
	usr.LastLogin = &now
	return usr, nil
}

// ChangePassword sets a new password after verifying the current one. cp must be validated.
func (svc *service) ChangePassword(ctx context.Context, usr User, cp ChangePassword) error {
	if !usr.CheckPassword(cp.CurrentPassword) {
		return ErrIncorrectPassword
	}
	if err := usr.SetPassword(cp.NewPassword); err != nil {
		return errors.Wrap(err, "hashing password")
	}
	if err := svc.repo.SetPasswordHash(ctx, usr.ID, usr.PasswordHash, svc.now()); err != nil {
		return errors.Wrap(err, "saving password")
	}
	svc.sendPasswordChangedMail(usr)
	return nil
}

// SetPassword sets a password without verification nor policy checks (admin CLI).
func (svc *service) SetPassword(ctx context.Context, id, pwd string) error {
	hash, err := HashPassword(pwd)
	if err != nil {
		return errors.Wrap(err, "hashing password")
	}
	return svc.repo.SetPasswordHash(ctx, id, hash, svc.now())
}

// RequestPasswordReset stores a new single-use reset token on the user with this email
// and emails them a reset link. Any previous token is replaced.
func (svc *service) RequestPasswordReset(ctx context.Context, email string) error {
	usr, err := svc.repo.GetUser(ctx, GetFilter{Email: core.CleanString(email, true /* lower */)})
	if err != nil {
		return err
	}
	token, hash, err := GenerateResetToken()
	if err != nil {
		return err
	}
	rt := ResetToken{Hash: hash, ExpiresAt: svc.now().Add(svc.conf.PasswordResetTimeoutDelta)}
	if err := svc.repo.SetResetToken(ctx, usr.ID, rt); err != nil {
		return errors.Wrap(err, "saving reset token")
	}
	svc.sendPasswordResetMail(usr, token)
	return nil
}

// ResetPassword consumes a reset token and sets the new password. rp must be validated.
func (svc *service) ResetPassword(ctx context.Context, rp ResetUserPassword) error {
	hash, err := HashPassword(rp.Password)
	if err != nil {
		return errors.Wrap(err, "hashing password")
	}
	usr, err := svc.repo.ResetPassword(ctx, HashResetToken(rp.Token), svc.now(), hash)
	if err != nil {
		return err
	}
	svc.sendPasswordChangedMail(usr)
	return nil
}

func (svc *service) GetByID(ctx context.Context, id string) (User, error) {
	if id == "" {
		return User{}, ErrNotFound
	}
	return svc.repo.GetUser(ctx, GetFilter{ID: id})
}

func (svc *service) GetByUsernameOrEmail(ctx context.Context, identifier string) (User, error) {
	identifier = core.CleanString(identifier, true /* lower */)
	if identifier == "" {
		return User{}, ErrNotFound
	}
	return svc.repo.GetUser(ctx, GetFilter{UsernameOrEmail: identifier})
}

func (svc *service) Query(ctx context.Context, filter QueryFilter, orderings ...core.DBOrdering) ([]User, error) {
	return svc.repo.FilterUsers(ctx, filter, orderings...)
}

// Update merges uu into usr and saves it. uu must be validated.
// The password hash is carried over untouched.
func (svc *service) Update(ctx context.Context, usr User, uu UpdateUser) (User, error) {
	if uu.Profile != nil {
		if err := checkRoleInfo(usr.Role, Profile{
			AdminInfo:   uu.Profile.AdminInfo,
			TeacherInfo: uu.Profile.TeacherInfo,
			StudentInfo: orStudentInfo(uu.Profile.StudentInfo, usr.Profile.StudentInfo),
			ParentInfo:  uu.Profile.ParentInfo,
		}); err != nil {
			return User{}, err
		}
		if uu.Profile.ParentInfo != nil && len(uu.Profile.ParentInfo.Children) > 0 {
			missing, err := svc.MissingWithRole(ctx, RoleStudent, uu.Profile.ParentInfo.Children...)
			if err != nil {
				return User{}, errors.Wrap(err, "checking children")
			}
			if len(missing) > 0 {
				return User{}, core.NewValidationError(nil, core.FieldError{
					Field: "children",
					Error: "unknown student(s): " + strings.Join(missing, ", "),
				})
			}
		}
	}

	uu.apply(&usr)
	usr.normalize()
	if err := svc.repo.CheckUniqueness(ctx, usr, usr.ID); err != nil {
		return User{}, err
	}
	usr.UpdatedAt = svc.now()
	updated, err := svc.repo.UpdateUser(ctx, usr)
	if err != nil {
		return User{}, errors.Wrap(err, "updating user")
	}
	return updated, nil
}

func (svc *service) Delete(ctx context.Context, id string) error {
	return svc.repo.DeleteUser(ctx, id)
}

// MissingWithRole returns the ids that do not belong to a user with this role.
func (svc *service) MissingWithRole(ctx context.Context, role Role, ids ...string) ([]string, error) {
	ids = uniqueIDs(ids)
	if len(ids) == 0 {
		return nil, nil
	}
	users, err := svc.repo.FilterUsers(ctx, QueryFilter{Roles: []Role{role}, IDs: ids})
	if err != nil {
		return nil, errors.Wrap(err, "filtering users")
	}
	found := make(map[string]struct{}, len(users))
	for _, usr := range users {
		found[usr.ID] = struct{}{}
	}
	var missing []string
	for _, id := range ids {
		if _, ok := found[id]; !ok {
			missing = append(missing, id)
		}
	}
	return missing, nil
}

func orStudentInfo(a, b *StudentInfo) *StudentInfo {
	if a != nil {
		return a
	}
	return b
}

func uniqueIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok || id == "" {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
