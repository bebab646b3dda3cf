package main

import (
	"context"
	"fmt"
	"log"

	"github.com/hibiken/asynq"
	"github.com/jmoiron/sqlx"
	"go.uber.org/dig"

	"github.com/trezcool/tathmini/apps/container"
	"github.com/trezcool/tathmini/core"
	"github.com/trezcool/tathmini/core/evaluation"
	schedulersvc "github.com/trezcool/tathmini/services/scheduler"
)

const concurrency = 10

type workerParams struct {
	dig.In
	Conf      *core.Config
	Logger    core.Logger
	DBLogger  core.Logger `name:"dbLogger"`
	DB        *sqlx.DB
	Scheduler evaluation.Scheduler
	Handlers  *schedulersvc.Handlers
}

func main() {
	c := container.New(container.Options{Name: "WORKER"})
	if err := c.Invoke(run); err != nil {
		log.Fatal(err)
	}
}

func run(p workerParams) {
	conf, logger := p.Conf, p.Logger

	logger.Info(fmt.Sprintf("Worker initializing : version %q", conf.Build))
	if flusher, ok := logger.(interface{ Close() }); ok {
		defer flusher.Close()
	}
	defer func() {
		if err := p.DB.Close(); err != nil {
			p.DBLogger.Error("Failed to close", err)
		}
	}()
	defer container.CloseScheduler(p.Scheduler, logger)
	defer logger.Info("Worker stopped")

	if conf.Redis.Addr == "" {
		logger.Fatal("the worker needs redis: set " + conf.Env + "_REDISADDR")
	}

	srv := asynq.NewServer(schedulersvc.RedisOpt(conf), asynq.Config{
		Concurrency:     concurrency,
		ShutdownTimeout: conf.Server.ShutdownTimeout,
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			logger.Error(fmt.Sprintf("task %s failed: %v", task.Type(), err), err)
		}),
	})

	mux := asynq.NewServeMux()
	p.Handlers.Register(mux)

	// Run blocks until SIGTERM or SIGINT, then waits for the running tasks
	if err := srv.Run(mux); err != nil {
		logger.Error(fmt.Sprintf("worker error: %v", err), err)
	}
}
