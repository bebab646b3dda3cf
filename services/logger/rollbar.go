package logsvc

import (
	"log"

	"github.com/rollbar/rollbar-go"
	"github.com/rollbar/rollbar-go/errors"

	"github.com/trezcool/tathmini/core"
	"github.com/trezcool/tathmini/core/user"
)

type RollbarLogger struct {
	std     *log.Logger
	enabled bool
}

var _ core.Logger = (*RollbarLogger)(nil)

// NewRollbarLogger reports to rollbar when a token is configured, and always prints to std.
func NewRollbarLogger(std *log.Logger, conf *core.Config) *RollbarLogger {
	enabled := conf.RollbarToken != "" && !conf.TestMode
	rollbar.SetEnabled(enabled)
	if enabled {
		rollbar.SetToken(conf.RollbarToken)
		rollbar.SetEnvironment(conf.Env)
		rollbar.SetServerHost(conf.Server.Host)
		rollbar.SetCodeVersion(conf.Build)
		rollbar.SetStackTracer(errors.StackTracer)
	}
	return &RollbarLogger{std: std, enabled: enabled}
}

// Close waits for the queued reports to be sent.
func (l RollbarLogger) Close() {
	if l.enabled {
		rollbar.Close()
	}
}

// prepare sets the person of the report and returns the remaining args.
// expected fmt: msg | error, map[string]interface{}, user.User
func (l RollbarLogger) prepare(msg string, args []interface{}) []interface{} {
	var usrSet bool
	newArgs := make([]interface{}, 0, len(args)+1)
	newArgs = append(newArgs, msg)
	for _, arg := range args {
		usr, ok := arg.(user.User)
		if !ok {
			newArgs = append(newArgs, arg)
			continue
		}
		if !usrSet { // only set one User
			rollbar.SetPerson(usr.ID, usr.Username, usr.Email)
			usrSet = true
		}
	}
	if !usrSet {
		rollbar.ClearPerson()
	}
	return newArgs
}

func (l RollbarLogger) print(level, msg string, args []interface{}) {
	l.std.Printf("[%s] %s", level, msg)
	for _, arg := range args {
		if _, ok := arg.(user.User); ok {
			continue
		}
		l.std.Printf("%+v\n", arg)
	}
}

func (l RollbarLogger) report(level, msg string, args []interface{}, fn func(...interface{})) {
	if l.enabled {
		fn(l.prepare(msg, args)...)
	}
	l.print(level, msg, args)
}

func (l RollbarLogger) Debug(msg string, args ...interface{}) {
	l.report("DEBUG", msg, args, rollbar.Debug)
}

func (l RollbarLogger) Info(msg string, args ...interface{}) {
	l.report("INFO", msg, args, rollbar.Info)
}

func (l RollbarLogger) Warn(msg string, args ...interface{}) {
	l.report("WARN", msg, args, rollbar.Warning)
}

func (l RollbarLogger) Error(msg string, args ...interface{}) {
	l.report("ERROR", msg, args, rollbar.Error)
}

func (l RollbarLogger) Fatal(msg string, args ...interface{}) {
	l.report("FATAL", msg, args, rollbar.Critical)
	l.Close()
	l.std.Fatal(msg)
}
