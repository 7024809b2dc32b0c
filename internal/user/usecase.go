package user

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/pot-code/go-signin/internal/domain"
	"github.com/pot-code/go-signin/internal/infrastructure/logging"
	"github.com/pot-code/go-signin/internal/infrastructure/uuid"
	"go.elastic.co/apm"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// UseCase ...
type UseCase struct {
	UserRepository domain.UserRepository
	UUIDGenerator  uuid.Generator
	Limiter        *LoginLimiter // optional
	HashCost       int
}

var _ domain.UserUseCase = &UseCase{}

// NewUserUseCase ...
func NewUserUseCase(
	UserRepository domain.UserRepository,
	UUIDGenerator uuid.Generator,
	Limiter *LoginLimiter,
) *UseCase {
	return &UseCase{
		UserRepository: UserRepository,
		UUIDGenerator:  UUIDGenerator,
		Limiter:        Limiter,
		HashCost:       bcrypt.DefaultCost,
	}
}

// SignIn match credential against email, cell number and username in that order, then check the password
func (uu *UseCase) SignIn(ctx context.Context, credential, password string) (*domain.UserModel, error) {
	apmSpan, ctx := apm.StartSpan(ctx, "UserUseCase.SignIn", "service")
	defer apmSpan.End()

	if credential == "" {
		return nil, domain.ErrCredentialMissing
	}
	// blank credentials are looked up like any other and match nobody
	credential = strings.TrimSpace(credential)
	if credential == "" {
		return nil, domain.ErrNoSuchUser
	}

	user, err := uu.lookup(ctx, credential)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, domain.ErrNoSuchUser
	}

	if uu.Limiter != nil {
		allowed, err := uu.Limiter.Reserve(ctx, user.ID)
		if err != nil {
			return nil, err
		}
		if !allowed {
			return nil, domain.ErrTooManyAttempts
		}
	}

	err = bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return nil, domain.ErrInvalidPassword
	}
	if err != nil {
		return nil, err
	}

	if uu.Limiter != nil {
		if err := uu.Limiter.Reset(ctx, user.ID); err != nil {
			logging.ExtractLoggerFromContext(ctx).Warn("failed to reset login attempts", zap.Error(err))
		}
	}
	return user, nil
}

func (uu *UseCase) lookup(ctx context.Context, credential string) (*domain.UserModel, error) {
	for _, field := range domain.CredentialLookupOrder {
		user, err := uu.UserRepository.FindByCredential(ctx, field, credential)
		if err != nil {
			return nil, err
		}
		if user != nil {
			return user, nil
		}
	}
	return nil, nil
}

// SignUp create a user
func (uu *UseCase) SignUp(ctx context.Context, post *domain.UserModel) (*domain.UserModel, error) {
	apmSpan, ctx := apm.StartSpan(ctx, "UserUseCase.SignUp", "service")
	defer apmSpan.End()

	// generate id
	id, err := uu.UUIDGenerator.Generate()
	if err != nil {
		return nil, err
	}
	post.ID = id

	// hash password
	password, err := bcrypt.GenerateFromPassword([]byte(post.Password), uu.HashCost)
	if err != nil {
		return nil, err
	}
	post.Password = string(password)
	post.CreatedAt = time.Now().UTC().Truncate(time.Second)

	err = uu.UserRepository.WithTx(ctx, func(ur domain.UserRepository) error {
		// search for existence
		for _, unique := range []struct {
			field domain.CredentialField
			value string
		}{
			{domain.CredentialUsername, post.Username},
			{domain.CredentialEmail, post.Email},
			{domain.CredentialCellNo, post.CellNo},
		} {
			if unique.value == "" {
				continue
			}
			if m, err := ur.FindByCredential(ctx, unique.field, unique.value); err != nil {
				return err
			} else if m != nil {
				return domain.ErrDuplicatedUser
			}
		}
		return ur.SaveUser(ctx, post)
	})
	if err != nil {
		return nil, err
	}
	return post, nil
}

// Profile .
func (uu *UseCase) Profile(ctx context.Context, id string) (*domain.UserModel, error) {
	apmSpan, ctx := apm.StartSpan(ctx, "UserUseCase.Profile", "service")
	defer apmSpan.End()

	user, err := uu.UserRepository.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, domain.ErrNoSuchUser
	}
	return user, nil
}
