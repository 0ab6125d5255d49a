package echoapi

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"

	"github.com/CloudcraveAcademy/switch2tech-76f708d3-sub001/core"
	"github.com/CloudcraveAcademy/switch2tech-76f708d3-sub001/core/auth"
	"github.com/CloudcraveAcademy/switch2tech-76f708d3-sub001/core/enrollment"
	"github.com/CloudcraveAcademy/switch2tech-76f708d3-sub001/core/progress"
	"github.com/CloudcraveAcademy/switch2tech-76f708d3-sub001/core/quiz"
)

// Deps are the services the API serves.
type Deps struct {
	Auth       *auth.Service
	Enrollment enrollment.Deps
	Quizzes    *quiz.Registry
	Progress   *progress.Service
	Mailer     core.EmailService
	Validate   *validator.Validate
	Translator ut.Translator
}

type Server struct {
	app      *echo.Echo
	addr     string
	errors   chan error
	shutdown chan os.Signal
}

func NewServer(conf *core.Config, logger core.Logger, deps Deps) *Server {
	s := &Server{
		app:      echo.New(),
		addr:     conf.Server.Addr,
		errors:   make(chan error, 1),
		shutdown: make(chan os.Signal, 1),
	}
	s.app.HideBanner = true
	s.app.Debug = conf.Debug
	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(logger, deps.Translator, s.signalShutdown)

	mtr := newMetrics("switch2tech")

	s.app.Pre(middleware.RemoveTrailingSlash())
	if !conf.TestMode {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(conf.Debug || conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}
	s.app.Use(mtr.middleware())
	s.app.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{conf.FrontendBaseURL},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
	}))

	s.app.GET("/", home)
	s.app.GET("/metrics", mtr.handler())

	v1 := s.app.Group("/v1")
	jwt := newJWTMiddleware(deps.Auth, false)
	optionalJWT := newJWTMiddleware(deps.Auth, true)

	registerAuthAPI(v1, jwt, &authApi{svc: deps.Auth, validate: deps.Validate, metrics: mtr})
	registerEnrollmentAPI(v1, optionalJWT, &enrollmentApi{auth: deps.Auth, deps: deps.Enrollment, metrics: mtr})
	registerQuizAPI(v1, jwt, &quizApi{registry: deps.Quizzes, mailer: deps.Mailer, metrics: mtr})
	registerProgressAPI(v1, jwt, &progressApi{svc: deps.Progress})

	return s
}

// Start listens until the server is shut down; listening errors are sent to Errors.
func (s *Server) Start() {
	if err := s.app.Start(s.addr); err != nil && err != http.ErrServerClosed {
		s.errors <- err
	}
}

func (s *Server) Errors() <-chan error {
	return s.errors
}

// ShutdownSignal receives SIGINT, SIGTERM and the shutdowns requested by the error handler.
func (s *Server) ShutdownSignal() <-chan os.Signal {
	signal.Notify(s.shutdown, os.Interrupt, syscall.SIGTERM)
	return s.shutdown
}

func (s *Server) signalShutdown() {
	select {
	case s.shutdown <- syscall.SIGTERM:
	default:
	}
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.Shutdown(ctx)
}

func (s *Server) Close() error {
	return s.app.Close()
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

func home(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "Welcome to the Switch2Tech API!")
}
