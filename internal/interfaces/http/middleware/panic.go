package middleware

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	infra "github.com/pot-code/go-signin/internal/infrastructure"
	"go.uber.org/zap"
)

// PanicHandlingOption options for panic handling
type PanicHandlingOption struct {
	Handler func(c echo.Context, err error)
	Logger  *zap.Logger
}

// PanicHandling recover from panics in handlers
func PanicHandling(options ...*PanicHandlingOption) echo.MiddlewareFunc {
	custom := &PanicHandlingOption{
		Handler: func(c echo.Context, err error) {
			c.JSON(http.StatusInternalServerError,
				infra.NewRESTStandardError(http.StatusInternalServerError).
					SetTraceID(c.Response().Header().Get(echo.HeaderXRequestID)),
			)
		},
		Logger: zap.NewNop(),
	}
	if len(options) > 0 {
		option := options[0]
		if option.Handler != nil {
			custom.Handler = option.Handler
		}
		if option.Logger != nil {
			custom.Logger = option.Logger
		}
	}
	handler := custom.Handler
	logger := custom.Logger
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			defer func() {
				if any := recover(); any != nil {
					perr, ok := any.(error)
					if !ok {
						perr = fmt.Errorf("%v", any)
					}
					logger.Error(perr.Error(),
						zap.String("url.path", c.Request().RequestURI),
						zap.String("http.request.method", c.Request().Method),
						zap.String("http.request.body.content", c.Request().Header.Get(echo.HeaderContentType)),
						zap.Int64("http.request.body.bytes", c.Request().ContentLength),
						zap.Strings("route.params.name", c.ParamNames()),
						zap.Strings("route.params.value", c.ParamValues()),
						zap.Int("http.response.status_code", http.StatusInternalServerError),
						zap.Stack("error.stack_trace"),
					)
					handler(c, perr)
					err = nil
				}
			}()
			return next(c)
		}
	}
}
