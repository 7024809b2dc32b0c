package middleware

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	infra "github.com/pot-code/go-signin/internal/infrastructure"
	"github.com/pot-code/go-signin/internal/infrastructure/auth"
)

// ValidateTokenOption ...
type ValidateTokenOption struct {
	InBlackList func(ctx context.Context, token string) (bool, error)
}

// VerifyToken accept requests carrying a valid, not revoked access token
func VerifyToken(ju *auth.JWTUtil, options ...*ValidateTokenOption) echo.MiddlewareFunc {
	inBlacklist := func(context.Context, string) (bool, error) { return false, nil }
	if len(options) > 0 && options[0].InBlackList != nil {
		inBlacklist = options[0].InBlackList
	}
	unauthorized := func(c echo.Context, reason string) error {
		return c.JSON(http.StatusUnauthorized, infra.NewRESTStandardError(http.StatusUnauthorized, reason))
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			tokenStr, err := ju.ExtractToken(c)
			if err != nil {
				return unauthorized(c, err.Error())
			}

			if ok, err := inBlacklist(c.Request().Context(), tokenStr); err != nil {
				return err
			} else if ok {
				return unauthorized(c, "token has been revoked")
			}

			token, err := ju.ValidateAccess(tokenStr)
			if err != nil {
				return unauthorized(c, "invalid token")
			}
			ju.SetContextToken(c, token)
			return next(c)
		}
	}
}
