package echoapi

import (
	"context"
	"net/http"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/schoolms/backend/core"
	"github.com/schoolms/backend/core/auth"
	"github.com/schoolms/backend/core/class"
	"github.com/schoolms/backend/core/user"
	filesvc "github.com/schoolms/backend/services/files"
)

type (
	Deps struct {
		Conf       *core.Config
		Logger     core.Logger
		Validate   *validator.Validate
		Translator ut.Translator
		Tokens     *auth.TokenService
		Files      core.FileStorage     // uploads are disabled when nil
		Registry   *prometheus.Registry // a new one is created when nil
		UserSvc    user.Service
		ClassSvc   *class.Service
	}

	Server interface {
		http.Handler
		Start() error
		Shutdown(context.Context) error
	}

	server struct {
		address string
		deps    *Deps
		app     *echo.Echo
	}
)

var _ Server = (*server)(nil)

func NewServer(address string, deps *Deps) Server {
	s := &server{
		address: address,
		deps:    deps,
		app:     echo.New(),
	}
	s.setup()
	return s
}

func (s *server) setup() {
	conf := s.deps.Conf
	if s.deps.Registry == nil {
		s.deps.Registry = prometheus.NewRegistry()
	}
	mtr := newMetrics(s.deps.Registry)

	s.app.HideBanner = true
	s.app.Pre(middleware.RemoveTrailingSlash())
	if !conf.TestMode {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(conf.Debug || conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}
	s.app.Use(mtr.middleware)

	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.deps.Translator, s.deps.Logger)
	s.app.Debug = conf.Debug

	s.app.GET("/", s.home)
	s.app.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(s.deps.Registry, promhttp.HandlerOpts{})))
	if s.deps.Files != nil {
		s.app.GET(filesvc.URLPrefix+"*", echo.WrapHandler(http.StripPrefix(filesvc.URLPrefix, s.deps.Files.Handler())))
	}

	api := s.app.Group("/api")
	authn := authMiddleware(s.deps.Tokens)

	api.GET("/protected", protected, authn)
	registerAuthAPI(api, authn, s.deps, mtr)
	registerUserAPI(api, authn, s.deps, mtr)
	registerClassAPI(api, authn, s.deps)
}

func (s *server) Start() error {
	err := s.app.Start(s.address)
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *server) Shutdown(ctx context.Context) error {
	return s.app.Shutdown(ctx)
}

func (s *server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

func (s *server) home(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "Welcome to "+s.deps.Conf.AppName+" API!")
}

// protected echoes the identity carried by the bearer token.
func protected(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, echo.Map{
		"message": "access granted",
		"user":    echo.Map{"id": claims.UserID, "role": claims.Role},
	})
}
