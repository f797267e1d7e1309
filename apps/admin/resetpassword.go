package main

import "context"

func (cli *commandLine) resetPassword(ctx context.Context, uname, pwd string) error {
	usr, err := cli.usrSvc.GetByUsernameOrEmail(ctx, uname)
	if err != nil {
		return err
	}
	return cli.usrSvc.SetPassword(ctx, usr.ID, pwd)
}
