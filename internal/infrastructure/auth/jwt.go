package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/labstack/echo/v4"
	"github.com/pot-code/go-signin/internal/domain"
)

// token types
const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

const contextTokenKey = "auth.token"

// ErrMissingToken no bearer token in request
var ErrMissingToken = errors.New("missing bearer token")

// ErrWrongTokenType e.g. a refresh token presented where an access token is expected
var ErrWrongTokenType = errors.New("unexpected token type")

// AppTokenClaims .
type AppTokenClaims struct {
	UID       string `json:"uid"`
	Email     string `json:"email,omitempty"`
	Name      string `json:"name,omitempty"`
	TokenType string `json:"token_type"`

	jwt.StandardClaims
}

// TimeRemaining remaining time before the token get expired
func (tk *AppTokenClaims) TimeRemaining() time.Duration {
	if tk.ExpiresAt == 0 {
		return 0
	}
	remaining := time.Until(time.Unix(tk.ExpiresAt, 0))
	if remaining < 0 {
		return 0
	}
	return remaining
}

// TokenPair the access/refresh pair handed out on login
type TokenPair struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

// JWTUtil .
type JWTUtil struct {
	secret         []byte
	method         jwt.SigningMethod
	accessTimeout  time.Duration
	refreshTimeout time.Duration
	now            func() time.Time
}

// NewJWTUtil create a JWTUtil instance
func NewJWTUtil(method, secret string, accessTimeout, refreshTimeout time.Duration) *JWTUtil {
	var signMethod jwt.SigningMethod
	switch method {
	case "HS384":
		signMethod = jwt.SigningMethodHS384
	case "HS512":
		signMethod = jwt.SigningMethodHS512
	default:
		signMethod = jwt.SigningMethodHS256
	}
	return &JWTUtil{
		method:         signMethod,
		secret:         []byte(secret),
		accessTimeout:  accessTimeout,
		refreshTimeout: refreshTimeout,
		now:            time.Now,
	}
}

// Sign sign token
func (ju *JWTUtil) Sign(claims *AppTokenClaims) (string, error) {
	token := jwt.NewWithClaims(ju.method, claims)
	return token.SignedString(ju.secret)
}

// Validate validate token string with secret and return AppTokenClaims
func (ju *JWTUtil) Validate(tokenStr string) (*AppTokenClaims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &AppTokenClaims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method.Alg() != ju.method.Alg() {
			return nil, fmt.Errorf("unexpected signing method: %s", token.Method.Alg())
		}
		return ju.secret, nil
	})
	if err != nil {
		return nil, err
	}
	return token.Claims.(*AppTokenClaims), nil
}

// ValidateAccess like Validate, but only accepts access tokens
func (ju *JWTUtil) ValidateAccess(tokenStr string) (*AppTokenClaims, error) {
	claims, err := ju.Validate(tokenStr)
	if err != nil {
		return nil, err
	}
	if claims.TokenType != TokenTypeAccess {
		return nil, ErrWrongTokenType
	}
	return claims, nil
}

// IssuePair generate an access/refresh token pair for the user
func (ju *JWTUtil) IssuePair(user *domain.UserModel) (*TokenPair, error) {
	now := ju.now()
	access, err := ju.Sign(ju.claimsFor(user, TokenTypeAccess, now, ju.accessTimeout))
	if err != nil {
		return nil, err
	}
	refresh, err := ju.Sign(ju.claimsFor(user, TokenTypeRefresh, now, ju.refreshTimeout))
	if err != nil {
		return nil, err
	}
	return &TokenPair{Access: access, Refresh: refresh}, nil
}

func (ju *JWTUtil) claimsFor(user *domain.UserModel, tokenType string, now time.Time, ttl time.Duration) *AppTokenClaims {
	return &AppTokenClaims{
		UID:       user.ID,
		Email:     user.Email,
		Name:      user.Username,
		TokenType: tokenType,
		StandardClaims: jwt.StandardClaims{
			Subject:   user.ID,
			IssuedAt:  now.Unix(),
			ExpiresAt: now.Add(ttl).Unix(),
		},
	}
}

// SetContextToken set token in App context
func (ju *JWTUtil) SetContextToken(c echo.Context, token *AppTokenClaims) {
	c.Set(contextTokenKey, token)
}

// GetContextToken get token from App context
func (ju *JWTUtil) GetContextToken(c echo.Context) *AppTokenClaims {
	v, ok := c.Get(contextTokenKey).(*AppTokenClaims)
	if ok {
		return v
	}
	return nil
}

// ExtractToken get bearer token string from request
func (ju *JWTUtil) ExtractToken(c echo.Context) (string, error) {
	header := c.Request().Header.Get(echo.HeaderAuthorization)
	if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
		if token := strings.TrimSpace(header[7:]); token != "" {
			return token, nil
		}
	}
	return "", ErrMissingToken
}

// PeekClaims decode claims without verifying the signature.
//
// Only for callers that don't own the secret and need metadata such as expiry.
func PeekClaims(tokenStr string) (*AppTokenClaims, error) {
	claims := new(AppTokenClaims)
	if _, _, err := new(jwt.Parser).ParseUnverified(tokenStr, claims); err != nil {
		return nil, err
	}
	return claims, nil
}
