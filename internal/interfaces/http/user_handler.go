package http

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pot-code/go-signin/internal/domain"
	infra "github.com/pot-code/go-signin/internal/infrastructure"
	"github.com/pot-code/go-signin/internal/infrastructure/auth"
	"github.com/pot-code/go-signin/internal/infrastructure/driver"
	"github.com/pot-code/go-signin/internal/infrastructure/logging"
	"github.com/pot-code/go-signin/internal/infrastructure/validate"
	"go.uber.org/zap"
)

func blacklistKey(token string) string {
	return "blacklist:" + token
}

type signInRequest struct {
	Credential string `json:"credential"`
	Password   string `json:"password"`
}

type signUpRequest struct {
	Username string `json:"username" validate:"required,max=64"`
	Email    string `json:"email" validate:"required,email"`
	CellNo   string `json:"cell_no" validate:"omitempty,max=32"`
	Password string `json:"password" validate:"required"`
}

type messageResponse struct {
	Message string `json:"message"`
}

// UserHandler user related operations
type UserHandler struct {
	JWTUtil     *auth.JWTUtil
	KVStore     driver.KeyValueDB
	UserUseCase domain.UserUseCase
	Validator   validate.Validator
}

// NewUserHandler create an user controller instance
func NewUserHandler(
	JWTUtil *auth.JWTUtil,
	KVStore driver.KeyValueDB,
	UserUseCase domain.UserUseCase,
	Validator validate.Validator,
) *UserHandler {
	return &UserHandler{
		JWTUtil:     JWTUtil,
		KVStore:     KVStore,
		UserUseCase: UserUseCase,
		Validator:   Validator,
	}
}

func restError(c echo.Context, code int, messages ...string) error {
	traceID := c.Response().Header().Get(echo.HeaderXRequestID)
	return c.JSON(code, infra.NewRESTStandardError(code, messages...).SetTraceID(traceID))
}

// HandleSignIn exchange a credential and password for an access/refresh token pair
func (uh *UserHandler) HandleSignIn(c echo.Context) (err error) {
	post := new(signInRequest)
	if err = c.Bind(post); err != nil {
		return restError(c, http.StatusBadRequest, "Failed to parse request body")
	}

	ctx := c.Request().Context()
	user, err := uh.UserUseCase.SignIn(ctx, post.Credential, post.Password)
	switch {
	case errors.Is(err, domain.ErrCredentialMissing):
		return restError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNoSuchUser):
		return restError(c, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrInvalidPassword):
		return restError(c, http.StatusUnauthorized, err.Error())
	case errors.Is(err, domain.ErrTooManyAttempts):
		return restError(c, http.StatusForbidden, err.Error())
	case err != nil:
		return err
	}

	pair, err := uh.JWTUtil.IssuePair(user)
	if err != nil {
		return err
	}
	logging.ExtractLoggerFromContext(ctx).Debug("user signed in", zap.String("user.id", user.ID))
	return c.JSON(http.StatusOK, pair)
}

// HandleSignUp ...
func (uh *UserHandler) HandleSignUp(c echo.Context) (err error) {
	post := new(signUpRequest)
	if err = c.Bind(post); err != nil {
		return restError(c, http.StatusBadRequest, "Failed to parse request body")
	}

	// validation
	if errs := uh.Validator.Struct(post); len(errs) > 0 {
		traceID := c.Response().Header().Get(echo.HeaderXRequestID)
		return c.JSON(http.StatusBadRequest,
			infra.NewRESTValidationError(http.StatusBadRequest, errs).SetTraceID(traceID))
	}

	// register
	_, err = uh.UserUseCase.SignUp(c.Request().Context(), &domain.UserModel{
		Username: post.Username,
		Email:    post.Email,
		CellNo:   post.CellNo,
		Password: post.Password,
	})
	if errors.Is(err, domain.ErrDuplicatedUser) {
		return restError(c, http.StatusBadRequest, err.Error())
	}
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, messageResponse{"User registered successfully"})
}

// HandleProfile return the signed in user, must be chained after VerifyToken
func (uh *UserHandler) HandleProfile(c echo.Context) (err error) {
	claims := uh.JWTUtil.GetContextToken(c)
	if claims == nil {
		return restError(c, http.StatusUnauthorized, auth.ErrMissingToken.Error())
	}

	user, err := uh.UserUseCase.Profile(c.Request().Context(), claims.UID)
	if errors.Is(err, domain.ErrNoSuchUser) {
		return restError(c, http.StatusNotFound, err.Error())
	}
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, user)
}

// HandleSignOut revoke the presented access token for the rest of its lifetime
func (uh *UserHandler) HandleSignOut(c echo.Context) (err error) {
	ju := uh.JWTUtil
	claims := ju.GetContextToken(c)
	tokenStr, err := ju.ExtractToken(c)
	if claims == nil || err != nil {
		return restError(c, http.StatusUnauthorized, auth.ErrMissingToken.Error())
	}

	if remaining := claims.TimeRemaining(); remaining > 0 {
		if err := uh.KVStore.SetEX(c.Request().Context(), blacklistKey(tokenStr), claims.UID, remaining); err != nil {
			return err
		}
	}
	return c.NoContent(http.StatusNoContent)
}
