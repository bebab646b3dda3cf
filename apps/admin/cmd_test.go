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

	"github.com/trezcool/tathmini/core"
	"github.com/trezcool/tathmini/core/evaluation"
	"github.com/trezcool/tathmini/core/user"
	"github.com/trezcool/tathmini/services/email"
	"github.com/trezcool/tathmini/services/scheduler"
	"github.com/trezcool/tathmini/tests"
)

func setup(t *testing.T) (*commandLine, *testutil.Env) {
	env := testutil.NewEnv(nil)
	return &commandLine{
		validate: env.Validate,
		users:    env.Users,
		evals:    env.Evals,
		handlers: &schedulersvc.Handlers{Evals: env.Evals, Notifications: env.Notifications, Logger: env.Logger},
	}, env
}

type cliTest struct {
	name       string
	args       []string // without program name
	wantErr    error
	wantErrStr string
	extra      interface{}
}

func mockPassword(pwd string) {
	readPasswordFunc = func(fd int) ([]byte, error) {
		return []byte(pwd), nil
	}
}

func Test_commandLine_migrate(t *testing.T) {
	cli, _ := setup(t)

	migrateFunc = func(db *sql.DB, command string, args ...string) error {
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
		{name: "down-to: no args", args: []string{"migrate", "down-to"}, wantErrStr: "down-to must be of form: goose [OPTIONS] DRIVER DBSTRING down-to VERSION"},
		{name: "down-to: non-int arg", args: []string{"migrate", "down-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "up", args: []string{"migrate", "up"}},
		{name: "up-by-one", args: []string{"migrate", "up-by-one"}},
		{name: "up-to", args: []string{"migrate", "up-to", "2"}},
		{name: "down", args: []string{"migrate", "down"}},
		{name: "down-to", args: []string{"migrate", "down-to", "1"}},
		{name: "redo", args: []string{"migrate", "redo"}},
		{name: "reset", args: []string{"migrate", "reset"}},
		{name: "status", args: []string{"migrate", "status"}},
		{name: "version", args: []string{"migrate", "version"}},
		{name: "create", args: []string{"migrate", "create", "course", "sql"}},
		{name: "fix", args: []string{"migrate", "fix"}},
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

func Test_commandLine_resetPassword(t *testing.T) {
	cli, env := setup(t)

	usr := testutil.CreateUser(t, env.UserRepo, "User", "awe", "awe@test.cd", "mdr", nil, true)

	tests := []cliTest{
		{name: "no command", wantErr: errHelp},
		{name: "unknown command", args: []string{"lol"}, wantErr: errHelp},
		{name: "no args", args: []string{"resetpassword"}, wantErr: errHelp},
		{name: "username but no password", args: []string{"resetpassword", "-username", "lol"}, wantErr: errHelp},
		{name: "user not found", args: []string{"resetpassword", "-username", "lol"}, extra: "lol", wantErr: user.ErrNotFound},
		{name: "reset with username", args: []string{"resetpassword", "-username", usr.Username}, extra: "lol"},
		{name: "reset with email", args: []string{"resetpassword", "-username", usr.Email}, extra: "lmao"},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)
		pwd, _ := tt.extra.(string)
		mockPassword(pwd)

		t.Run(tt.name, func(t *testing.T) {
			err := cli.run(args)
			if tt.wantErr != nil {
				assert.Equal(t, tt.wantErr, err)
				return
			}
			require.NoError(t, err)

			refreshed, err := env.UserRepo.GetUserByID(context.Background(), usr.ID)
			require.NoError(t, err)
			assert.NoError(t, refreshed.CheckPassword(pwd))
		})
	}
}

func Test_commandLine_addUser(t *testing.T) {
	cli, env := setup(t)
	ctx := context.Background()

	naughty := testutil.CreateUser(t, env.UserRepo, "N Dog", "ndog", "ndog@test.cd", "old", []string{user.RoleStudent}, false)

	t.Run("no identity", func(t *testing.T) {
		mockPassword("LolC@t123")
		assert.Equal(t, errHelp, cli.run([]string{"admin", "adduser", "-name", "Boss"}))
	})

	t.Run("no password", func(t *testing.T) {
		mockPassword("")
		assert.Equal(t, errHelp, cli.run([]string{"admin", "adduser", "-username", "boss"}))
	})

	t.Run("invalid email", func(t *testing.T) {
		mockPassword("LolC@t123")
		assert.Error(t, cli.run([]string{"admin", "adduser", "-username", "bad", "-email", "lol"}))
	})

	t.Run("new admin", func(t *testing.T) {
		mockPassword("LolC@t123")
		args := []string{"admin", "adduser", "-name", "Big Boss", "-username", " Boss ", "-email", "boss@test.cd", "-admin"}
		require.NoError(t, cli.run(args))

		usr, err := env.Users.GetByUsername(ctx, "boss")
		require.NoError(t, err)
		assert.Equal(t, "Big Boss", usr.Name)
		assert.Equal(t, "boss@test.cd", usr.Email)
		assert.True(t, usr.IsActive)
		assert.True(t, usr.IsAdmin())
		assert.NoError(t, usr.CheckPassword("LolC@t123"))
	})

	t.Run("existing user reactivated", func(t *testing.T) {
		mockPassword("n3wP@ss")
		require.NoError(t, cli.run([]string{"admin", "adduser", "-email", naughty.Email}))

		usr, err := env.UserRepo.GetUserByID(ctx, naughty.ID)
		require.NoError(t, err)
		assert.Equal(t, naughty.Name, usr.Name)
		assert.True(t, usr.IsActive)
		assert.False(t, usr.IsAdmin())
		assert.NoError(t, usr.CheckPassword("n3wP@ss"))
	})
}

func Test_commandLine_syncStates(t *testing.T) {
	cli, env := setup(t)
	ctx := context.Background()

	instr := env.Instructor(t, "instr")
	stud := env.Student(t, "stud")
	grp := env.Group(t, "Physics", []user.User{instr}, []user.User{stud})

	store := func(title string, start time.Time, due *time.Time, state string) evaluation.Evaluation {
		tmpl, _ := env.Template(t, instr, title)
		e := env.Evaluation(t, instr, tmpl, start, due, nil, nil, grp)
		e.State = state
		e, err := env.EvalRepo.UpdateEvaluation(ctx, e)
		require.NoError(t, err)
		return e
	}
	opening := store("Opening", core.Now().Add(-time.Minute), testutil.TimePtr(24*time.Hour), evaluation.StateInQueue)
	closing := store("Closing", core.Now().Add(-48*time.Hour), testutil.TimePtr(-time.Minute), evaluation.StateActive)
	emailsvc.ResetSentMessages()

	require.NoError(t, cli.run([]string{"admin", "syncstates"}))

	stored, err := env.EvalRepo.GetEvaluationByID(ctx, opening.ID)
	require.NoError(t, err)
	assert.Equal(t, evaluation.StateActive, stored.State)

	stored, err = env.EvalRepo.GetEvaluationByID(ctx, closing.ID)
	require.NoError(t, err)
	assert.True(t, evaluation.IsClosed(stored.State), "got %s", stored.State)

	// only the opened evaluation notifies
	assert.Len(t, emailsvc.SentTo(stud.Email), 1)

	// already synced
	require.NoError(t, cli.run([]string{"admin", "syncstates"}))
	assert.Len(t, emailsvc.SentTo(stud.Email), 1)
}
