package domain

import "errors"

// messages below are part of the login API contract, clients show them verbatim

// ErrCredentialMissing login request carries no credential
var ErrCredentialMissing = errors.New("Log in credential missing.")

// ErrNoSuchUser no user matches the credential
var ErrNoSuchUser = errors.New("User not found.")

// ErrInvalidPassword the password does not match
var ErrInvalidPassword = errors.New("Invalid password")

// ErrTooManyAttempts the account is locked after repeated failures
var ErrTooManyAttempts = errors.New("Too many failed login attempts, try again later.")

// ErrDuplicatedUser unique key constraint violation
var ErrDuplicatedUser = errors.New("Username, email or cell number is already registered")
