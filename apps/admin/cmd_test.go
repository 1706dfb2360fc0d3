package main

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"strconv"
	"testing"

	"github.com/jmoiron/sqlx"

	"github.com/trezcool/malipo/core/user"
	dummydb "github.com/trezcool/malipo/storage/database/dummy"
	testutil "github.com/trezcool/malipo/tests"
)

func setup(t *testing.T) *commandLine {
	db, err := dummydb.Open()
	if err != nil {
		t.Fatalf("setup() failed: %v", err)
	}

	return &commandLine{
		db:      &sqlx.DB{},
		usrRepo: dummydb.NewUserRepository(db),
		crsRepo: dummydb.NewCourseRepository(db),
	}
}

func createUser(t *testing.T, cli *commandLine, email string, roles []string) user.User {
	return testutil.CreateUser(t, cli.usrRepo, "", "", email, "", roles, true)
}

type cliTest struct {
	name       string
	args       []string // without program name
	wantErr    error
	wantErrStr string
	extra      interface{}
}

func runTests(t *testing.T, cli *commandLine, tests []cliTest) {
	t.Helper()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := cli.run(append([]string{"admin"}, tt.args...))
			if tt.wantErr != nil {
				if err != tt.wantErr {
					t.Errorf("run() error = %v, wantErr %v", err, tt.wantErr)
				}
				return
			}
			if tt.wantErrStr != "" {
				if err == nil || err.Error() != tt.wantErrStr {
					t.Errorf("run() error = %v, wantErrStr %q", err, tt.wantErrStr)
				}
				return
			}
			if err != nil {
				t.Errorf("run() unexpected error = %v", err)
			}
		})
	}
}

func Test_commandLine_migrate(t *testing.T) {
	cli := setup(t)

	gooseRunFunc = func(command string, db *sql.DB, fsys fs.FS, dir string, args ...string) error {
		switch command {
		case "up", "up-by-one", "down", "fix", "redo", "reset", "status", "version": // pass
		case "up-to", "down-to":
			if len(args) == 0 {
				return fmt.Errorf("%s requires a VERSION argument", command)
			}
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("version must be a number (got '%s')", args[0])
			}
		case "create":
			if len(args) == 0 {
				return fmt.Errorf("create requires a NAME argument")
			}
		default:
			return fmt.Errorf("%q: no such command", command)
		}
		return nil
	}

	tests := []cliTest{
		{name: "no subcommand", args: []string{"migrate"}, wantErr: errHelp},
		{name: "unknown subcommand", args: []string{"migrate", "lol"}, wantErrStr: "\"lol\": no such command"},
		{name: "up-to: no args", args: []string{"migrate", "up-to"}, wantErrStr: "up-to requires a VERSION argument"},
		{name: "up-to: non-int arg", args: []string{"migrate", "up-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "create: no args", args: []string{"migrate", "create"}, wantErrStr: "create requires a NAME argument"},
		{name: "up", args: []string{"migrate", "up"}},
		{name: "up-to", args: []string{"migrate", "up-to", "2"}},
		{name: "down", args: []string{"migrate", "down"}},
		{name: "status", args: []string{"migrate", "status"}},
	}
	runTests(t, cli, tests)
}

func Test_commandLine_adduser(t *testing.T) {
	cli := setup(t)
	readPasswordFunc = func(fd int) ([]byte, error) { return []byte("s3cret"), nil }

	tests := []cliTest{
		{name: "no args", args: []string{"adduser"}, wantErr: errHelp},
		{name: "ok", args: []string{"adduser", "-email", "admin@test.test", "-admin"}},
	}
	runTests(t, cli, tests)

	usr, err := cli.usrRepo.GetUserByUsernameOrEmail(context.Background(), "admin@test.test")
	if err != nil {
		t.Fatalf("GetUserByUsernameOrEmail() failed: %v", err)
	}
	if !usr.IsAdmin() {
		t.Errorf("expected an admin; got roles %v", usr.Roles)
	}
	if err = usr.CheckPassword("s3cret"); err != nil {
		t.Errorf("CheckPassword() failed: %v", err)
	}

	// empty password aborts
	readPasswordFunc = func(fd int) ([]byte, error) { return nil, nil }
	runTests(t, cli, []cliTest{
		{name: "empty password", args: []string{"adduser", "-email", "other@test.test"}, wantErr: errHelp},
	})
}

func Test_commandLine_addcourse(t *testing.T) {
	cli := setup(t)
	teacher := createUser(t, cli, "teacher@test.test", []string{user.RoleTeacher})
	student := createUser(t, cli, "student@test.test", []string{user.RoleStudent})

	tests := []cliTest{
		{name: "no args", args: []string{"addcourse"}, wantErr: errHelp},
		{name: "missing instructor", args: []string{"addcourse", "-title", "Go"}, wantErr: errHelp},
		{name: "negative price", args: []string{"addcourse", "-title", "Go", "-instructor", teacher.ID, "-price", "-5"}, wantErr: errHelp},
		{name: "student instructor", args: []string{"addcourse", "-title", "Go", "-instructor", student.ID},
			wantErrStr: fmt.Sprintf("user %s cannot instruct courses", student.Email)},
		{name: "ok", args: []string{"addcourse", "-title", "Go Deep", "-instructor", teacher.ID, "-price", "499.00"}},
	}
	runTests(t, cli, tests)

	crss, err := cli.crsRepo.QueryAllCourses(context.Background())
	if err != nil {
		t.Fatalf("QueryAllCourses() failed: %v", err)
	}
	if len(crss) != 1 {
		t.Fatalf("expected 1 course; got %d", len(crss))
	}
	if crss[0].Price != 499.00 {
		t.Errorf("price = %v; want 499.00", crss[0].Price)
	}
}

func Test_commandLine_resetpassword(t *testing.T) {
	cli := setup(t)
	usr := createUser(t, cli, "student@test.test", []string{user.RoleStudent})
	readPasswordFunc = func(fd int) ([]byte, error) { return []byte("n3w-pwd"), nil }

	tests := []cliTest{
		{name: "no args", args: []string{"resetpassword"}, wantErr: errHelp},
		{name: "unknown user", args: []string{"resetpassword", "-username", "nobody@test.test"}, wantErr: user.ErrNotFound},
		{name: "ok", args: []string{"resetpassword", "-username", usr.Email}},
	}
	runTests(t, cli, tests)

	usr, err := cli.usrRepo.GetUserByUsernameOrEmail(context.Background(), usr.Email)
	if err != nil {
		t.Fatalf("GetUserByUsernameOrEmail() failed: %v", err)
	}
	if err = usr.CheckPassword("n3w-pwd"); err != nil {
		t.Errorf("CheckPassword() failed: %v", err)
	}
}
