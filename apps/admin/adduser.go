package main

import (
	"context"

	"github.com/trezcool/tathmini/core"
	"github.com/trezcool/tathmini/core/user"
)

var activated = true

// addUser creates a user, or reactivates an existing one with the new password.
func (cli *commandLine) addUser(name, uname, email, pwd string, isAdmin bool) error {
	ctx := context.Background()

	var roles []string
	if isAdmin {
		roles = user.AllRoles
	}

	usr, err := cli.findUser(ctx, uname, email)
	if err != nil {
		if !core.IsNotFound(err) {
			return err
		}
		nu := user.NewUser{
			Name:            name,
			Username:        uname,
			Email:           email,
			Password:        pwd,
			PasswordConfirm: pwd,
			Roles:           roles,
		}
		if nu.Name == "" {
			nu.Name = uname
		}
		if err := nu.Validate(ctx, cli.validate, cli.users); err != nil {
			return err
		}
		_, err = cli.users.Create(ctx, nu)
		return err
	}

	uu := user.UpdateUser{
		Name:     usr.Name,
		Username: usr.Username,
		Email:    usr.Email,
		IsActive: &activated,
		Roles:    roles,
		Password: pwd,
	}
	if name != "" {
		uu.Name = core.CleanString(name)
	}
	_, err = cli.users.Update(ctx, usr.ID, uu)
	return err
}

func (cli *commandLine) findUser(ctx context.Context, uname, email string) (user.User, error) {
	for _, key := range []string{uname, email} {
		if key == "" {
			continue
		}
		usr, err := cli.users.GetByUsernameOrEmail(ctx, key)
		if err == nil || !core.IsNotFound(err) {
			return usr, err
		}
	}
	return user.User{}, user.ErrNotFound
}
