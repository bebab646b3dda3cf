package main

import (
	"context"
	"expvar"
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof"

	"github.com/jmoiron/sqlx"
	"go.uber.org/dig"

	echoapi "github.com/trezcool/tathmini/apps/api/echo"
	"github.com/trezcool/tathmini/apps/container"
	"github.com/trezcool/tathmini/core"
	"github.com/trezcool/tathmini/core/evaluation"
)

type apiParams struct {
	dig.In
	Conf      *core.Config
	Logger    core.Logger
	DBLogger  core.Logger `name:"dbLogger"`
	DB        *sqlx.DB
	Scheduler evaluation.Scheduler
	Server    *echoapi.Server
}

func main() {
	c := container.New(container.Options{Name: "API", Migrate: true})
	must(c.Invoke(run))
}

func run(p apiParams) {
	conf, apiLogger, server := p.Conf, p.Logger, p.Server

	// =========================================================================
	// Initialize App

	apiLogger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))

	// flush the pending rollbar reports
	if flusher, ok := apiLogger.(interface{ Close() }); ok {
		defer flusher.Close()
	}
	defer func() {
		if err := p.DB.Close(); err != nil {
			p.DBLogger.Error("Failed to close", err)
		}
	}()
	defer container.CloseScheduler(p.Scheduler, apiLogger)
	defer apiLogger.Info("Application stopped")

	// =========================================================================
	// Start Debug Service
	//
	// /debug/pprof - Added to the default mux by importing the net/http/pprof package.
	// /debug/vars - Added to the default mux by importing the expvar package.

	// Expose important info under /debug/vars.
	expvar.NewString("build").Set(conf.Build)
	expvar.NewString("env").Set(conf.Env)

	go func() {
		if err := http.ListenAndServe(conf.Server.DebugHost, http.DefaultServeMux); err != nil {
			apiLogger.Error(fmt.Sprintf("debug server closed: %v", err), err)
		}
	}()

	// =========================================================================
	// Start API Service

	go func() {
		server.Start()
	}()

	// =========================================================================
	// Shutdown

	select {
	case err := <-server.Errors():
		apiLogger.Error(fmt.Sprintf("server error: %v", err), err)

	case sig := <-server.ShutdownSignal():
		apiLogger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

		// give outstanding requests a deadline for completion
		ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
		defer cancel()

		// asking listener to shut down and shed load
		if err := server.Shutdown(ctx); err != nil {
			apiLogger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)

			if err = server.Close(); err != nil {
				apiLogger.Error(fmt.Sprintf("could not force stop server: %v", err), err)
			}
		}
	}
}

func must(err error) {
	if err != nil {
		log.Fatal(err)
	}
}
