package main

import (
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"syscall"

	"golang.org/x/term"

	"github.com/CloudcraveAcademy/switch2tech-76f708d3-sub001/core/auth"
	"github.com/CloudcraveAcademy/switch2tech-76f708d3-sub001/core/enrollment"
	"github.com/CloudcraveAcademy/switch2tech-76f708d3-sub001/storage/database"
)

var (
	readPasswordFunc = term.ReadPassword      // mockable
	gooseRunFunc     = database.RunMigrations // mockable

	errHelp = errors.New("help provided")
)

type commandLine struct {
	db       *sql.DB
	auth     *auth.Service
	recovery enrollment.Purger
}

func (cli *commandLine) printUsage() {
	fmt.Println("Usage:")
	fmt.Println("  migrate COMMAND [ARGS]                                     - run a goose command (up, down, status, ...)")
	fmt.Println("  adduser -email EMAIL [-role ROLE] [-first-name] [-last-name] - create a user or update its role & password")
	fmt.Println("  resetpassword -email EMAIL                                 - reset a user's password")
	fmt.Println("  purgepending                                               - delete expired pending enrollments")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	addUserCmd := flag.NewFlagSet("adduser", flag.ContinueOnError)
	addUserEmail := addUserCmd.String("email", "", "The user's email. The password will be prompted next.")
	addUserRole := addUserCmd.String("role", auth.RoleAdmin, "The user's role: student, instructor or admin.")
	addUserFirstName := addUserCmd.String("first-name", "", "The user's first name.")
	addUserLastName := addUserCmd.String("last-name", "", "The user's last name.")

	resetPasswordCmd := flag.NewFlagSet("resetpassword", flag.ContinueOnError)
	resetPasswordEmail := resetPasswordCmd.String("email", "", "The user's email. The password will be prompted next.")

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])

	case "adduser":
		if err := addUserCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *addUserEmail == "" || !validRole(*addUserRole) {
			addUserCmd.Usage()
			return errHelp
		}
		pwd, err := promptPassword()
		if err != nil {
			return err
		}
		if pwd == "" {
			addUserCmd.Usage()
			return errHelp
		}
		return cli.addUser(userInput{
			email:     *addUserEmail,
			password:  pwd,
			role:      *addUserRole,
			firstName: *addUserFirstName,
			lastName:  *addUserLastName,
		})

	case "resetpassword":
		if err := resetPasswordCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *resetPasswordEmail == "" {
			resetPasswordCmd.Usage()
			return errHelp
		}
		pwd, err := promptPassword()
		if err != nil {
			return err
		}
		if pwd == "" {
			resetPasswordCmd.Usage()
			return errHelp
		}
		return cli.resetPassword(*resetPasswordEmail, pwd)

	case "purgepending":
		return cli.purgePending()

	default:
		cli.printUsage()
		return errHelp
	}
}

func promptPassword() (string, error) {
	fmt.Print("Enter password:")
	pwd, err := readPasswordFunc(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return "", err
	}
	return string(pwd), nil
}

func validRole(role string) bool {
	switch role {
	case auth.RoleStudent, auth.RoleInstructor, auth.RoleAdmin:
		return true
	}
	return false
}
