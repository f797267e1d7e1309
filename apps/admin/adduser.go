package main

import (
	"context"

	"github.com/pkg/errors"

	"github.com/schoolms/backend/core/user"
)

var errNotAdmin = errors.New("user exists and is not an admin")

// addUser creates an admin, or sets the password of the existing admin with this username or email.
// The password policy applies to new admins only.
func (cli *commandLine) addUser(ctx context.Context, uname, email, name, pwd string) error {
	usr, err := cli.findUser(ctx, uname, email)
	switch {
	case err == nil:
		if !usr.IsAdmin() {
			return errors.Wrap(errNotAdmin, usr.Username)
		}
		return cli.usrSvc.SetPassword(ctx, usr.ID, pwd)
	case errors.Cause(err) != user.ErrNotFound:
		return err
	}

	if name == "" {
		name = uname
	}
	nu := user.NewUser{
		Role:     user.RoleAdmin,
		Username: uname,
		Email:    email,
		Password: pwd,
		Profile:  user.Profile{Name: name},
	}
	if err := nu.Validate(cli.validate); err != nil {
		return err
	}
	_, err = cli.usrSvc.Create(ctx, nu)
	return err
}

func (cli *commandLine) findUser(ctx context.Context, identifiers ...string) (user.User, error) {
	for _, ident := range identifiers {
		usr, err := cli.usrSvc.GetByUsernameOrEmail(ctx, ident)
		if errors.Cause(err) == user.ErrNotFound {
			continue
		}
		return usr, err
	}
	return user.User{}, user.ErrNotFound
}
