package main

import (
	"context"
	"fmt"

	"github.com/shuleapp/shule/core/tenant"
	"github.com/shuleapp/shule/core/user"
)

func (cli *commandLine) createTenant(name, domain, adminEmail, adminName, adminPwd, subType string, maxStudents, maxStaff int) error {
	ctx := context.Background()

	nt := tenant.NewTenant{
		Name:             name,
		Email:            adminEmail,
		Domain:           domain,
		SubscriptionType: subType,
		MaxStudents:      maxStudents,
		MaxStaff:         maxStaff,
	}
	if err := nt.Validate(cli.validate, cli.tenantSvc); err != nil {
		return err
	}
	tnt, err := cli.tenantSvc.Create(ctx, nt)
	if err != nil {
		return err
	}

	generated := adminPwd == ""
	if generated {
		if adminPwd, err = generatePassword(12); err != nil {
			return err
		}
	}
	nu := user.NewUser{
		Name:            adminName,
		Email:           adminEmail,
		Role:            user.RoleAdmin,
		Password:        adminPwd,
		PasswordConfirm: adminPwd,
	}
	if err = nu.Validate(cli.validate, cli.userSvc, tnt.ID); err != nil {
		return err
	}
	admin, err := cli.userSvc.Create(ctx, tnt, nu)
	if err != nil {
		return err
	}

	fmt.Printf("tenant %q created with slug %q and domain %q\n", tnt.Name, tnt.Slug, domain)
	fmt.Printf("admin account: %s\n", admin.Email)
	if generated {
		// shown once; it is only stored hashed
		fmt.Printf("admin password: %s\n", adminPwd)
	}
	return nil
}
