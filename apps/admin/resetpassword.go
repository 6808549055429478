package main

import (
	"context"
	"fmt"

	"github.com/shuleapp/shule/core/user"
)

func (cli *commandLine) resetPassword(slug, uname, pwd string) error {
	ctx := context.Background()

	tenantID := ""
	if slug != "" {
		tnt, err := cli.tenantSvc.GetBySlug(ctx, slug)
		if err != nil {
			return err
		}
		tenantID = tnt.ID
	}

	usr, err := cli.userSvc.GetByUsernameOrEmail(ctx, tenantID, uname)
	if err != nil {
		return err
	}

	uu := user.UpdateUser{Password: pwd, PasswordConfirm: pwd}
	if err = uu.Validate(cli.validate, cli.userSvc, usr); err != nil {
		return err
	}
	if _, err = cli.userSvc.Update(ctx, usr.ID, uu); err != nil {
		return err
	}
	fmt.Printf("password reset for %q\n", usr.Email)
	return nil
}
