// Package signin implements the client side of the sign-in handshake: it
// collects credentials, exchanges them for a token pair at the login
// endpoint, hands the pair to a session store and navigates away, or reports
// why it could not.
package signin

import (
	"context"
	"errors"
)

// RootPath where the user is sent once signed in
const RootPath = "/"

// FailedToSignIn shown when the server rejects the attempt without saying why
const FailedToSignIn = "Failed to sign in"

// ErrSubmitInProgress a submit is already waiting for its response
var ErrSubmitInProgress = errors.New("sign-in already in progress")

// ErrUnmounted the form was torn down, its result is discarded
var ErrUnmounted = errors.New("sign-in form is unmounted")

// Credentials what the user typed, identifier is an email, cell number or username
type Credentials struct {
	Identifier string `json:"credential" validate:"required"`
	Password   string `json:"password" validate:"required"`
}

// SessionTokens token pair issued by the authentication endpoint
type SessionTokens struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

// Complete both tokens are present
func (st *SessionTokens) Complete() bool {
	return st != nil && st.Access != "" && st.Refresh != ""
}

// Authenticator exchanges credentials for session tokens
type Authenticator interface {
	Login(ctx context.Context, credentials Credentials) (*SessionTokens, error)
}

// Revoker invalidates an access token at the issuer
type Revoker interface {
	Logout(ctx context.Context, access string) error
}

// SessionStore holds the authentication state outside the form
type SessionStore interface {
	Login(ctx context.Context, access, refresh string) error
	IsLoggedIn(ctx context.Context) (bool, error)
}

// Navigator moves the user to another page
type Navigator interface {
	Navigate(path string)
}

// NavigatorFunc adapts a plain function to Navigator
type NavigatorFunc func(path string)

// Navigate implements Navigator
func (fn NavigatorFunc) Navigate(path string) {
	fn(path)
}
