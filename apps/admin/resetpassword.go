package main

import (
	"context"
)

func (cli *commandLine) resetPassword(uname, pwd string) error {
	ctx := context.Background()
	usr, err := cli.users.GetByUsernameOrEmail(ctx, uname)
	if err != nil {
		return err
	}
	return cli.users.SetPassword(ctx, usr, pwd)
}
