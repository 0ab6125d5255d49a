package main

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CloudcraveAcademy/switch2tech-76f708d3-sub001/core"
	"github.com/CloudcraveAcademy/switch2tech-76f708d3-sub001/core/auth"
	"github.com/CloudcraveAcademy/switch2tech-76f708d3-sub001/core/enrollment"
	inmemdb "github.com/CloudcraveAcademy/switch2tech-76f708d3-sub001/storage/database/inmem"
	"github.com/CloudcraveAcademy/switch2tech-76f708d3-sub001/tests/testutil"
)

func setup(t *testing.T) (*commandLine, *inmemdb.Gateway, *auth.Service) {
	t.Helper()
	gw := inmemdb.NewGateway()
	svc := auth.NewService(gw, testutil.NewValidator(), core.NewTestConfig())
	return &commandLine{
		auth:     svc,
		recovery: enrollment.NewGatewayRecoveryStore(gw),
	}, gw, svc
}

type cliTest struct {
	name       string
	args       []string // without program name
	wantErr    error
	wantErrStr string
	extra      interface{}
}

func Test_commandLine_migrate(t *testing.T) {
	cli, _, _ := setup(t)

	gooseRunFunc = func(command string, db *sql.DB, args ...string) error {
		switch command {
		case "up", "up-by-one", "down", "fix", "redo", "reset", "status", "version": // pass
		case "up-to":
			if len(args) == 0 {
				return fmt.Errorf("up-to must be of form: goose [OPTIONS] DRIVER DBSTRING up-to VERSION")
			}
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("version must be a number (got '%s')", args[0])
			}
		case "create":
			if len(args) == 0 {
				return fmt.Errorf("create must be of form: goose [OPTIONS] DRIVER DBSTRING create NAME [go|sql]")
			}
		case "down-to":
			if len(args) == 0 {
				return fmt.Errorf("down-to must be of form: goose [OPTIONS] DRIVER DBSTRING down-to VERSION")
			}
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("version must be a number (got '%s')", args[0])
			}
		default:
			return fmt.Errorf("%q: no such command", command)
		}
		return nil
	}

	tests := []cliTest{
		{name: "no subcommand", args: []string{"migrate"}, wantErr: errHelp},
		{name: "unknown subcommand", args: []string{"migrate", "lol"}, wantErrStr: "\"lol\": no such command"},
		{name: "up-to: no args", args: []string{"migrate", "up-to"}, wantErrStr: "up-to must be of form: goose [OPTIONS] DRIVER DBSTRING up-to VERSION"},
		{name: "up-to: non-int arg", args: []string{"migrate", "up-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "create: no args", args: []string{"migrate", "create"}, wantErrStr: "create must be of form: goose [OPTIONS] DRIVER DBSTRING create NAME [go|sql]"},
		{name: "down-to: non-int arg", args: []string{"migrate", "down-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "up", args: []string{"migrate", "up"}},
		{name: "up-to", args: []string{"migrate", "up-to", "2"}},
		{name: "down-to", args: []string{"migrate", "down-to", "1"}},
		{name: "status", args: []string{"migrate", "status"}},
		{name: "create", args: []string{"migrate", "create", "certificates", "sql"}},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		t.Run(tt.name, func(t *testing.T) {
			err := cli.run(args)
			switch {
			case tt.wantErr != nil:
				assert.Equal(t, tt.wantErr, err)
			case tt.wantErrStr != "":
				require.Error(t, err)
				assert.Equal(t, tt.wantErrStr, err.Error())
			default:
				assert.NoError(t, err)
			}
		})
	}
}

func Test_commandLine_users(t *testing.T) {
	cli, gw, svc := setup(t)
	testutil.CreateUser(t, gw, "tobi@test.local", "old-secret", auth.RoleStudent, "Tobi")

	type extra struct {
		pwd string
	}
	tests := []struct {
		cliTest
		email    string
		wantRole string
	}{
		{cliTest: cliTest{name: "no command", wantErr: errHelp}},
		{cliTest: cliTest{name: "unknown command", args: []string{"lol"}, wantErr: errHelp}},
		{cliTest: cliTest{name: "adduser: no email", args: []string{"adduser"}, extra: extra{pwd: "secret1"}, wantErr: errHelp}},
		{cliTest: cliTest{name: "adduser: bad role", args: []string{"adduser", "-email", "ada@test.local", "-role", "root"}, extra: extra{pwd: "secret1"}, wantErr: errHelp}},
		{cliTest: cliTest{name: "adduser: no password", args: []string{"adduser", "-email", "ada@test.local"}, wantErr: errHelp}},
		{
			cliTest:  cliTest{name: "adduser: new admin", args: []string{"adduser", "-email", "Ada@test.local", "-first-name", "Ada"}, extra: extra{pwd: "secret1"}},
			email:    "ada@test.local",
			wantRole: auth.RoleAdmin,
		},
		{
			cliTest:  cliTest{name: "adduser: existing user", args: []string{"adduser", "-email", "tobi@test.local", "-role", "instructor"}, extra: extra{pwd: "new-secret"}},
			email:    "tobi@test.local",
			wantRole: auth.RoleInstructor,
		},
		{cliTest: cliTest{name: "resetpassword: no args", args: []string{"resetpassword"}, wantErr: errHelp}},
		{cliTest: cliTest{name: "resetpassword: no password", args: []string{"resetpassword", "-email", "ada@test.local"}, wantErr: errHelp}},
		{cliTest: cliTest{name: "resetpassword: user not found", args: []string{"resetpassword", "-email", "lol@test.local"}, extra: extra{pwd: "lol-lol"}, wantErr: auth.ErrNotFound}},
		{
			cliTest: cliTest{name: "resetpassword", args: []string{"resetpassword", "-email", "ada@test.local"}, extra: extra{pwd: "lmao-lmao"}},
			email:   "ada@test.local",
		},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		readPasswordFunc = func(fd int) ([]byte, error) {
			if extra, ok := tt.extra.(extra); ok {
				return []byte(extra.pwd), nil
			}
			return nil, nil
		}

		t.Run(tt.name, func(t *testing.T) {
			err := cli.run(args)
			if tt.wantErr != nil {
				assert.Equal(t, tt.wantErr, err)
				return
			}
			require.NoError(t, err)

			idt, err := svc.SignIn(context.Background(), tt.email, tt.extra.(extra).pwd)
			require.NoError(t, err, "signing in with the new password")
			if tt.wantRole != "" {
				assert.Equal(t, tt.wantRole, idt.Profile.Role)
			}
		})
	}
}

func Test_commandLine_purgePending(t *testing.T) {
	cli, gw, _ := setup(t)
	now := time.Now().UTC()
	testutil.MustInsert(t, gw, core.CollPendingEnrollments,
		&enrollment.PendingEnrollment{ID: "c1:ada@test.local", CourseID: "c1", ExpiresAt: now.Add(-time.Minute), CreatedAt: now},
		&enrollment.PendingEnrollment{ID: "c1:tobi@test.local", CourseID: "c1", ExpiresAt: now.Add(time.Hour), CreatedAt: now},
	)

	require.NoError(t, cli.run([]string{"admin", "purgepending"}))

	var left []enrollment.PendingEnrollment
	require.NoError(t, gw.Select(context.Background(), core.CollPendingEnrollments, &left, core.Filter{}))
	require.Len(t, left, 1)
	assert.Equal(t, "c1:tobi@test.local", left[0].ID)
}
