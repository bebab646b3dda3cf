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

	"github.com/trezcool/tathmini/core"
	"github.com/trezcool/tathmini/core/evaluation"
	"github.com/trezcool/tathmini/core/group"
	"github.com/trezcool/tathmini/core/notification"
	"github.com/trezcool/tathmini/core/response"
	"github.com/trezcool/tathmini/core/results"
	"github.com/trezcool/tathmini/core/scale"
	"github.com/trezcool/tathmini/core/template"
	"github.com/trezcool/tathmini/core/user"
)

type (
	ServerDeps struct {
		Conf           *core.Config
		Logger         core.Logger
		Validate       *validator.Validate
		Translator     ut.Translator
		DisableReqLogs bool

		UserSvc         user.Service
		GroupSvc        group.Service
		ScaleSvc        scale.Service
		TemplateSvc     template.Service
		EvaluationSvc   evaluation.Service
		ResponseSvc     response.Service
		ResultsSvc      results.Service
		NotificationSvc notification.Service
	}

	Server struct {
		ServerDeps
		app      *echo.Echo
		auth     *authenticator
		errors   chan error
		shutdown chan os.Signal
	}
)

func NewServer(deps ServerDeps) *Server {
	s := &Server{
		ServerDeps: deps,
		app:        echo.New(),
		auth:       newAuthenticator(deps.Conf, deps.UserSvc),
		errors:     make(chan error, 1),
		shutdown:   make(chan os.Signal, 1),
	}
	signal.Notify(s.shutdown, os.Interrupt, syscall.SIGTERM)
	s.setup()
	return s
}

func (s *Server) setup() {
	s.app.Pre(middleware.RemoveTrailingSlash())
	if !s.DisableReqLogs {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(s.Conf.Debug || s.Conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}

	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.Logger, s.Translator, s.SignalShutdown)
	s.app.Debug = s.Conf.Debug
	s.app.HideBanner = true

	s.app.GET("/", s.home)

	v1 := s.app.Group("/api/v1")
	jwt := s.auth.middleware()
	authed := []echo.MiddlewareFunc{jwt, s.activeUserMiddleware}

	s.registerUserAPI(v1, jwt)
	s.registerGroupAPI(v1.Group("/groups", authed...))
	s.registerScaleAPI(v1.Group("/scales", authed...))
	s.registerItemAPI(v1.Group("/items", authed...))
	s.registerTemplateAPI(v1.Group("/templates", authed...))
	s.registerEvaluationAPI(v1.Group("/evaluations", authed...))
	s.registerResponseAPI(v1.Group("/responses", authed...))
	s.registerEmailTemplateAPI(v1.Group("/email-templates", authed...))
	s.registerMyAPI(v1.Group("/me", authed...))
}

// Start runs the server until it is shut down; failures are sent to Errors.
func (s *Server) Start() {
	if err := s.app.Start(s.Conf.Server.Host); err != nil && err != http.ErrServerClosed {
		s.errors <- err
	}
}

func (s *Server) Errors() <-chan error {
	return s.errors
}

func (s *Server) ShutdownSignal() <-chan os.Signal {
	return s.shutdown
}

// SignalShutdown asks the owner of the server to shut it down gracefully.
func (s *Server) SignalShutdown() {
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

func (s *Server) home(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "Welcome to "+s.Conf.AppName+" API!")
}
