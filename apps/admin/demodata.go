package main

import (
	"context"
	"fmt"
	"time"

	"github.com/shuleapp/shule/core/event"
	"github.com/shuleapp/shule/core/library"
	"github.com/shuleapp/shule/core/tenant"
	"github.com/shuleapp/shule/core/user"
)

const demoPassword = "demopass1234"

// demoData seeds a small school for local development: one tenant on
// demo.localhost with a user per role, a couple of events and a
// borrowed library book. All accounts share demoPassword.
func (cli *commandLine) demoData() error {
	ctx := context.Background()

	nt := tenant.NewTenant{
		Name:   "Demo High School",
		Email:  "admin@demo.localhost",
		Domain: "demo.localhost",
		City:   "Kinshasa",
	}
	if err := nt.Validate(cli.validate, cli.tenantSvc); err != nil {
		return err
	}
	tnt, err := cli.tenantSvc.Create(ctx, nt)
	if err != nil {
		return err
	}

	users := []user.NewUser{
		{Name: "Demo Admin", Email: "admin@demo.localhost", Role: user.RoleAdmin},
		{Name: "Demo Director", Email: "director@demo.localhost", Role: user.RoleDirection},
		{Name: "Demo Professor", Email: "professor@demo.localhost", Role: user.RoleProfessor},
		{Name: "Demo Student", Email: "student@demo.localhost", Role: user.RoleStudent},
		{Name: "Demo Parent", Email: "parent@demo.localhost", Role: user.RoleParent},
	}
	var professor, student user.User
	for _, nu := range users {
		nu.Password = demoPassword
		nu.PasswordConfirm = demoPassword
		if err = nu.Validate(cli.validate, cli.userSvc, tnt.ID); err != nil {
			return err
		}
		usr, err := cli.userSvc.Create(ctx, tnt, nu)
		if err != nil {
			return err
		}
		switch usr.Role {
		case user.RoleProfessor:
			professor = usr
		case user.RoleStudent:
			student = usr
		}
	}

	now := time.Now().UTC()
	events := []event.NewEvent{
		{
			Title:          "Parents' evening",
			Description:    "Term progress review with the teaching staff.",
			Location:       "Main hall",
			StartsAt:       now.AddDate(0, 0, 7),
			TargetAudience: event.AudienceParents,
		},
		{
			Title:          "End of term exams",
			StartsAt:       now.AddDate(0, 0, 21),
			TargetAudience: event.AudienceStudents,
		},
	}
	for _, ne := range events {
		if err = ne.Validate(cli.validate); err != nil {
			return err
		}
		if _, err = cli.eventSvc.Create(ctx, tnt.ID, professor.ID, ne); err != nil {
			return err
		}
	}

	books := []library.NewBook{
		{Title: "Things Fall Apart", Author: "Chinua Achebe", Copies: 3},
		{Title: "A Brief History of Time", Author: "Stephen Hawking", Copies: 2},
	}
	var first library.Book
	for i, nb := range books {
		if err = nb.Validate(cli.validate); err != nil {
			return err
		}
		book, err := cli.librarySvc.AddBook(ctx, tnt.ID, nb)
		if err != nil {
			return err
		}
		if i == 0 {
			first = book
		}
	}
	if _, err = cli.librarySvc.Borrow(ctx, tnt.ID, library.BorrowRequest{
		BookID: first.ID,
		UserID: student.ID,
	}); err != nil {
		return err
	}

	fmt.Printf("demo school %q seeded on %s\n", tnt.Name, "demo.localhost")
	fmt.Printf("all accounts use the password %q\n", demoPassword)
	return nil
}
