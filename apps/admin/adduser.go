package main

import (
	"context"
	"fmt"

	"github.com/shuleapp/shule/core/user"
)

func (cli *commandLine) addUser(slug, name, uname, email, role, pwd string) error {
	ctx := context.Background()

	tnt, err := cli.tenantSvc.GetBySlug(ctx, slug)
	if err != nil {
		return err
	}

	nu := user.NewUser{
		Name:            name,
		Username:        uname,
		Email:           email,
		Role:            role,
		Password:        pwd,
		PasswordConfirm: pwd,
	}
	if err = nu.Validate(cli.validate, cli.userSvc, tnt.ID); err != nil {
		return err
	}
	usr, err := cli.userSvc.Create(ctx, tnt, nu)
	if err != nil {
		return err
	}
	fmt.Printf("%s %q added to %q\n", usr.Role, usr.Email, tnt.Name)
	return nil
}

func (cli *commandLine) createSuperuser(name, uname, email, pwd string) error {
	usr, err := cli.userSvc.CreateSuperuser(context.Background(), name, uname, email, pwd)
	if err != nil {
		return err
	}
	fmt.Printf("superuser %q created\n", usr.Email)
	return nil
}
