package http

import (
	"github.com/labstack/echo/v4"
)

func v1Endpoint(
	UserHandler *UserHandler,
	jwtMiddleware echo.MiddlewareFunc,
	traceLoggerMiddleware echo.MiddlewareFunc,
) *endpoint {
	return &endpoint{
		apiVersion:  "api/v1",
		middlewares: []echo.MiddlewareFunc{traceLoggerMiddleware},
		groups: []*apiGroup{
			{
				prefix: "/user",
				routes: []*route{
					{"POST", "/login/", UserHandler.HandleSignIn, nil},
					{"POST", "/login", UserHandler.HandleSignIn, nil},
					{"POST", "/register/", UserHandler.HandleSignUp, nil},
					{"POST", "/register", UserHandler.HandleSignUp, nil},
					{"GET", "/profile/", UserHandler.HandleProfile, []echo.MiddlewareFunc{jwtMiddleware}},
					{"GET", "/profile", UserHandler.HandleProfile, []echo.MiddlewareFunc{jwtMiddleware}},
					{"PUT", "/sign-out/", UserHandler.HandleSignOut, []echo.MiddlewareFunc{jwtMiddleware}},
					{"PUT", "/sign-out", UserHandler.HandleSignOut, []echo.MiddlewareFunc{jwtMiddleware}},
				},
			},
		},
	}
}
