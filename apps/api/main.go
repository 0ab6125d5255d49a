package main

import (
	"context"
	"database/sql"
	"expvar"
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof"

	dig_container "github.com/CloudcraveAcademy/switch2tech-76f708d3-sub001/apps/api/di/dig"
	echoapi "github.com/CloudcraveAcademy/switch2tech-76f708d3-sub001/apps/api/echo"
	"github.com/CloudcraveAcademy/switch2tech-76f708d3-sub001/core"
	"github.com/CloudcraveAcademy/switch2tech-76f708d3-sub001/core/auth"
	"github.com/CloudcraveAcademy/switch2tech-76f708d3-sub001/core/enrollment"
	"github.com/CloudcraveAcademy/switch2tech-76f708d3-sub001/core/quiz"
	appfs "github.com/CloudcraveAcademy/switch2tech-76f708d3-sub001/fs"
	"github.com/CloudcraveAcademy/switch2tech-76f708d3-sub001/services/events"
)

func main() {
	c := dig_container.New()

	must(c.Invoke(func(
		conf *core.Config,
		apiLogger core.Logger,
		dbLoggerParam dig_container.DBLoggerParam,
		db *sql.DB,
		mailer core.EmailService,
		recovery enrollment.RecoveryStore,
		publisher *events.Publisher,
		quizzes *quiz.Registry,
		server *echoapi.Server,
	) {
		// =========================================================================
		// Initialize App

		apiLogger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))

		core.ParseEmailTemplates(appfs.FS, apiLogger, !conf.Debug)

		auth.LoadCommonPasswords(appfs.FS, apiLogger)

		dbLogger := dbLoggerParam.Logger
		defer func() {
			if err := db.Close(); err != nil {
				dbLogger.Fatal("Failed to close", err)
			}
		}()
		defer func() {
			if err := publisher.Close(); err != nil {
				apiLogger.Error(fmt.Sprintf("closing event publisher: %v", err), err)
			}
		}()
		// let queued emails go out
		if w, ok := mailer.(interface{ Wait() }); ok {
			defer w.Wait()
		}
		defer quizzes.Close()
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
		// Start Scheduled Jobs

		scheduler, err := newScheduler(conf, recovery, apiLogger)
		if err != nil {
			apiLogger.Fatal(fmt.Sprintf("scheduler error: %v", err), err)
		}
		if scheduler != nil {
			scheduler.Start()
			defer func() { <-scheduler.Stop().Done() }()
		}

		// =========================================================================
		// Start API Service

		go func() {
			server.Start()
		}()

		// =========================================================================
		// Shutdown

		select {
		case err := <-server.Errors():
			apiLogger.Fatal(fmt.Sprintf("server error: %v", err), err)

		case sig := <-server.ShutdownSignal():
			apiLogger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

			// give outstanding requests a deadline for completion
			ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
			defer cancel()

			// asking listener to shut down and shed load
			if err := server.Shutdown(ctx); err != nil {
				apiLogger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)

				if err = server.Close(); err != nil {
					apiLogger.Fatal(fmt.Sprintf("could not force stop server: %v", err), err)
				}
			}
		}
	}))
}

func must(err error) {
	if err != nil {
		log.Fatal(err)
	}
}
