package middleware

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	infra "github.com/pot-code/go-signin/internal/infrastructure"
)

// NoRouteMatched answer unknown routes and methods with a RESTStandardError body
func NoRouteMatched() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			err := next(c)
			var he *echo.HTTPError
			if errors.As(err, &he) && (he.Code == http.StatusNotFound || he.Code == http.StatusMethodNotAllowed) {
				return c.JSON(he.Code, infra.NewRESTStandardError(he.Code, c.Request().Method+" "+c.Request().URL.Path))
			}
			return err
		}
	}
}
