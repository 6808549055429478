package main

import (
	"crypto/rand"
	"errors"
	"flag"
	"fmt"
	"math/big"
	"syscall"

	"github.com/go-playground/validator/v10"
	ut "github.com/go-playground/universal-translator"
	"github.com/jmoiron/sqlx"
	"golang.org/x/term"

	"github.com/shuleapp/shule/core"
	"github.com/shuleapp/shule/core/event"
	"github.com/shuleapp/shule/core/library"
	"github.com/shuleapp/shule/core/tenant"
	"github.com/shuleapp/shule/core/user"
)

var (
	readPasswordFunc = term.ReadPassword // mockable

	errHelp = errors.New("help provided")
)

type commandLine struct {
	conf       *core.Config
	db         *sqlx.DB
	validate   *validator.Validate
	translator ut.Translator
	tenantSvc  *tenant.Service
	userSvc    *user.Service
	eventSvc   *event.Service
	librarySvc *library.Service
}

func (cli *commandLine) printUsage() {
	fmt.Println("Usage:")
	fmt.Println("  createtenant -name NAME -domain HOST -admin EMAIL - register a school with its primary domain and admin")
	fmt.Println("  adduser -tenant SLUG -name NAME -email EMAIL -role ROLE - create a user (password prompted)")
	fmt.Println("  createsuperuser -name NAME -email EMAIL - create a superuser (password prompted)")
	fmt.Println("  resetpassword -username USERNAME|EMAIL [-tenant SLUG] - reset a user's password")
	fmt.Println("  migrate COMMAND [ARGS] - run a goose migration command (up, down, status, ...)")
	fmt.Println("  demodata - create a demo school with sample data")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	switch args[1] {
	case "createtenant":
		cmd := flag.NewFlagSet("createtenant", flag.ExitOnError)
		name := cmd.String("name", "", "The school's name.")
		domain := cmd.String("domain", "", "The school's primary domain host.")
		admin := cmd.String("admin", "", "The school admin's email. A password is generated and printed once unless -admin-password is set.")
		adminName := cmd.String("admin-name", "Administrator", "The school admin's full name.")
		adminPwd := cmd.String("admin-password", "", "The school admin's password.")
		subType := cmd.String("subscription-type", "", "monthly or yearly.")
		maxStudents := cmd.Int("max-students", 0, "Student capacity.")
		maxStaff := cmd.Int("max-staff", 0, "Staff capacity.")
		if err := cmd.Parse(args[2:]); err != nil {
			return err
		}
		if *name == "" || *domain == "" || *admin == "" {
			cmd.Usage()
			return errHelp
		}
		return cli.createTenant(*name, *domain, *admin, *adminName, *adminPwd, *subType, *maxStudents, *maxStaff)

	case "adduser":
		cmd := flag.NewFlagSet("adduser", flag.ExitOnError)
		slug := cmd.String("tenant", "", "The school's slug.")
		name := cmd.String("name", "", "The user's full name.")
		uname := cmd.String("username", "", "The user's username (optional).")
		email := cmd.String("email", "", "The user's email.")
		role := cmd.String("role", user.RoleStudent, "One of: student, parent, professor, direction, admin.")
		if err := cmd.Parse(args[2:]); err != nil {
			return err
		}
		if *slug == "" || *name == "" || *email == "" {
			cmd.Usage()
			return errHelp
		}
		pwd, err := cli.promptPassword()
		if err != nil {
			return err
		}
		return cli.addUser(*slug, *name, *uname, *email, *role, pwd)

	case "createsuperuser":
		cmd := flag.NewFlagSet("createsuperuser", flag.ExitOnError)
		name := cmd.String("name", "", "The superuser's full name.")
		uname := cmd.String("username", "", "The superuser's username (optional).")
		email := cmd.String("email", "", "The superuser's email.")
		if err := cmd.Parse(args[2:]); err != nil {
			return err
		}
		if *name == "" || *email == "" {
			cmd.Usage()
			return errHelp
		}
		pwd, err := cli.promptPassword()
		if err != nil {
			return err
		}
		return cli.createSuperuser(*name, *uname, *email, pwd)

	case "resetpassword":
		cmd := flag.NewFlagSet("resetpassword", flag.ExitOnError)
		uname := cmd.String("username", "", "The user's username or email. The password will be prompted next.")
		slug := cmd.String("tenant", "", "The school's slug. Omit for superusers.")
		if err := cmd.Parse(args[2:]); err != nil {
			return err
		}
		if *uname == "" {
			cmd.Usage()
			return errHelp
		}
		pwd, err := cli.promptPassword()
		if err != nil {
			return err
		}
		return cli.resetPassword(*slug, *uname, pwd)

	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])

	case "demodata":
		return cli.demoData()

	default:
		cli.printUsage()
		return errHelp
	}
}

func (cli *commandLine) promptPassword() (string, error) {
	fmt.Print("Enter password:")
	pwd, err := readPasswordFunc(syscall.Stdin)
	fmt.Println()
	if err != nil {
		return "", err
	}
	if len(pwd) == 0 {
		return "", errHelp
	}
	return string(pwd), nil
}

const passwordCharset = "abcdefghijkmnpqrstuvwxyzABCDEFGHJKLMNPQRSTUVWXYZ23456789"

func generatePassword(n int) (string, error) {
	pwd := make([]byte, n)
	for i := range pwd {
		idx, err := rand.Int(rand.Reader, big.NewInt(int64(len(passwordCharset))))
		if err != nil {
			return "", err
		}
		pwd[i] = passwordCharset[idx.Int64()]
	}
	return string(pwd), nil
}
