package main

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"github.com/CloudcraveAcademy/switch2tech-76f708d3-sub001/core/auth"
)

type userInput struct {
	email     string
	password  string
	role      string
	firstName string
	lastName  string
}

// addUser creates an account, or updates the role and password of the existing one.
func (cli *commandLine) addUser(in userInput) error {
	ctx := context.Background()

	_, err := cli.auth.SignUp(ctx, auth.SignUpRequest{
		Email:     in.email,
		Password:  in.password,
		FirstName: in.firstName,
		LastName:  in.lastName,
	})
	switch errors.Cause(err) {
	case nil:
		fmt.Printf("created %s\n", in.email)
	case auth.ErrAlreadyRegistered:
		if err = cli.auth.SetPassword(ctx, in.email, in.password); err != nil {
			return err
		}
		fmt.Printf("updated %s\n", in.email)
	default:
		return err
	}
	return cli.auth.SetRole(ctx, in.email, in.role)
}

func (cli *commandLine) resetPassword(email, pwd string) error {
	return cli.auth.SetPassword(context.Background(), email, pwd)
}

func (cli *commandLine) purgePending() error {
	n, err := cli.recovery.PurgeExpired(context.Background())
	if err != nil {
		return err
	}
	fmt.Printf("purged %d expired pending enrollments\n", n)
	return nil
}
