// Package web serves the sign-in front: server rendered pages driving a
// signin.Form per request, with browser sessions kept in the kv store.
package web

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	echo_middleware "github.com/labstack/echo/v4/middleware"
	infra "github.com/pot-code/go-signin/internal/infrastructure"
	"github.com/pot-code/go-signin/internal/infrastructure/driver"
	"github.com/pot-code/go-signin/internal/infrastructure/validate"
	"github.com/pot-code/go-signin/internal/interfaces/http/middleware"
	"github.com/pot-code/go-signin/internal/session"
	"github.com/pot-code/go-signin/internal/signin"
	"go.elastic.co/apm/module/apmechov4"
	"go.uber.org/zap"
)

// NewServer create the sign-in front
func NewServer(
	rdb driver.KeyValueDB,
	option *infra.WebConfig,
	auth signin.Authenticator,
	store *session.Store,
	logger *zap.Logger,
) (*echo.Echo, error) {
	renderer, err := NewTemplateRenderer()
	if err != nil {
		return nil, err
	}

	app := echo.New()
	app.HideBanner = true
	app.HidePort = true
	app.Renderer = renderer

	app.Pre(echo_middleware.RequestID())
	app.Use(middleware.Logging(logger, &middleware.LoggingConfig{
		Skipper: func(e echo.Context) bool {
			return strings.HasPrefix(e.Request().RequestURI, "/healthz")
		},
	}))
	app.Use(middleware.ErrorHandling(&middleware.ErrorHandlingOption{
		Logger: logger,
		Handler: func(c echo.Context, traceID string, err error) {
			code := http.StatusInternalServerError
			if he, ok := err.(*echo.HTTPError); ok {
				code = he.Code
			}
			c.String(code, http.StatusText(code))
		},
	}))
	app.Use(middleware.PanicHandling(&middleware.PanicHandlingOption{
		Logger: logger,
		Handler: func(c echo.Context, err error) {
			c.String(http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
		},
	}))
	app.Use(echo_middleware.Secure())
	if option.DevOP.APM {
		app.Use(apmechov4.Middleware())
	}
	app.Use(middleware.SetTraceLogger(logger))

	// the watch socket outlives any request deadline
	timeout := middleware.AbortRequest(&middleware.AbortRequestOption{Timeout: option.RequestTimeout})

	handler := NewSignInHandler(auth, store, validate.NewValidator("en"), SessionCookie{
		Name:     option.Session.CookieName,
		Secure:   option.Session.CookieSecure,
		Lifetime: option.Session.Lifetime,
	})
	if option.RequestTimeout > 0 {
		handler.SubmitLock = option.RequestTimeout
	}
	app.GET("/", handler.HandleHome, timeout)
	app.GET("/signin", handler.HandleShowForm, timeout)
	app.POST("/signin", handler.HandleSubmit, timeout)
	app.GET("/signin/watch", handler.HandleWatch)
	app.POST("/signout", handler.HandleSignOut, timeout)
	app.GET("/healthz", func(c echo.Context) error {
		if rdb.Ping(c.Request().Context()) == nil {
			return c.NoContent(http.StatusOK)
		}
		return c.NoContent(http.StatusServiceUnavailable)
	})

	return app, nil
}
