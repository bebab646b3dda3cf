package main

import (
	"database/sql"
	"log"
	"os"

	"github.com/go-playground/validator/v10"
	"go.uber.org/dig"

	"github.com/trezcool/tathmini/apps/container"
	"github.com/trezcool/tathmini/core"
	"github.com/trezcool/tathmini/core/evaluation"
	"github.com/trezcool/tathmini/core/user"
	schedulersvc "github.com/trezcool/tathmini/services/scheduler"
)

type adminParams struct {
	dig.In
	Logger    core.Logger
	DB        *sql.DB
	Validate  *validator.Validate
	Users     user.Service
	Evals     evaluation.Service
	Scheduler evaluation.Scheduler
	Handlers  *schedulersvc.Handlers
}

func main() {
	c := container.New(container.Options{Name: "ADMIN"})

	var code int
	if err := c.Invoke(func(p adminParams) {
		defer p.DB.Close()
		defer container.CloseScheduler(p.Scheduler, p.Logger)

		cli := commandLine{
			db:       p.DB,
			validate: p.Validate,
			users:    p.Users,
			evals:    p.Evals,
			handlers: p.Handlers,
		}
		if err := cli.run(os.Args); err != nil {
			if err != errHelp {
				p.Logger.Error("command failed", err)
			}
			code = 1
		}
	}); err != nil {
		log.Fatal(err)
	}
	os.Exit(code)
}
