package domain

import (
	"context"
	"time"
)

// CredentialField column a login credential is matched against
type CredentialField string

// credential fields, in lookup order
const (
	CredentialEmail    CredentialField = "email"
	CredentialCellNo   CredentialField = "cell_no"
	CredentialUsername CredentialField = "username"
)

// CredentialLookupOrder a credential is tried against each field in turn, first hit wins
var CredentialLookupOrder = []CredentialField{CredentialEmail, CredentialCellNo, CredentialUsername}

type UserModel struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	CellNo    string    `json:"cell_no,omitempty"`
	Password  string    `json:"-"`
	CreatedAt time.Time `json:"created_at"`
}

type UserUseCase interface {
	SignIn(ctx context.Context, credential, password string) (*UserModel, error)
	SignUp(ctx context.Context, post *UserModel) (*UserModel, error)
	Profile(ctx context.Context, id string) (*UserModel, error)
}

type UserRepository interface {
	// FindByCredential returns nil, nil when no user matches
	FindByCredential(ctx context.Context, field CredentialField, value string) (*UserModel, error)
	FindByID(ctx context.Context, id string) (*UserModel, error)
	SaveUser(ctx context.Context, post *UserModel) error
	// WithTx runs fn on a repository bound to one transaction, committed when fn returns nil
	WithTx(ctx context.Context, fn func(repo UserRepository) error) error
}
