package middleware

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	infra "github.com/pot-code/go-signin/internal/infrastructure"
	"go.uber.org/zap"
)

// ErrorHandlingOption options for error handling
type ErrorHandlingOption struct {
	Handler func(c echo.Context, traceID string, err error)
	Logger  *zap.Logger
}

// ErrorHandling turns errors returned from handlers into RESTStandardError responses
// **DO NOT return error anymore**
func ErrorHandling(options ...*ErrorHandlingOption) echo.MiddlewareFunc {
	custom := &ErrorHandlingOption{
		Handler: func(c echo.Context, traceID string, err error) {
			code := http.StatusInternalServerError
			message := err.Error()
			var he *echo.HTTPError
			if errors.As(err, &he) {
				code = he.Code
				message = fmt.Sprint(he.Message)
			}
			c.JSON(code, infra.NewRESTStandardError(code, message).SetTraceID(traceID))
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
		return func(c echo.Context) error {
			err := next(c)
			if err == nil {
				return nil
			}
			traceID := c.Response().Header().Get(echo.HeaderXRequestID)
			var he *echo.HTTPError
			if !errors.As(err, &he) || he.Code >= http.StatusInternalServerError {
				logger.Error(err.Error(),
					zap.String("url.path", c.Request().RequestURI),
					zap.String("http.request.method", c.Request().Method),
					zap.String("trace.id", traceID),
				)
			}
			if c.Response().Committed {
				return nil
			}
			handler(c, traceID, err)
			return nil
		}
	}
}
