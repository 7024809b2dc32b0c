package user

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pot-code/go-signin/internal/domain"
	"github.com/pot-code/go-signin/internal/infrastructure/driver"
)

// statements are written postgres style, the mysql wrapper rewrites quotes and placeholders
const selectUser = `SELECT id, username, email, cell_no, password, created_at FROM "user"`

var findByField = map[domain.CredentialField]string{
	domain.CredentialEmail:    selectUser + ` WHERE email = $1`,
	domain.CredentialCellNo:   selectUser + ` WHERE cell_no = $1`,
	domain.CredentialUsername: selectUser + ` WHERE username = $1`,
}

// Repository domain.UserRepository on a mysql or postgres connection
type Repository struct {
	Conn driver.ITransactionalDB
}

var _ domain.UserRepository = &Repository{}

// NewUserRepository .
func NewUserRepository(conn driver.ITransactionalDB) *Repository {
	return &Repository{Conn: conn}
}

// FindByCredential query user whose field equals value
func (repo *Repository) FindByCredential(ctx context.Context, field domain.CredentialField, value string) (*domain.UserModel, error) {
	query, ok := findByField[field]
	if !ok {
		return nil, fmt.Errorf("unknown credential field: %s", field)
	}
	return repo.findOne(ctx, query, value)
}

// FindByID .
func (repo *Repository) FindByID(ctx context.Context, id string) (*domain.UserModel, error) {
	return repo.findOne(ctx, selectUser+` WHERE id = $1`, id)
}

func (repo *Repository) findOne(ctx context.Context, query string, arg interface{}) (user *domain.UserModel, err error) {
	rows, err := repo.Conn.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil && err == nil {
			user, err = nil, cerr
		}
	}()

	if !rows.Next() {
		return nil, rows.Err()
	}
	user = new(domain.UserModel)
	var cellNo sql.NullString
	if err := rows.Scan(&user.ID, &user.Username, &user.Email, &cellNo, &user.Password, &user.CreatedAt); err != nil {
		return nil, err
	}
	user.CellNo = cellNo.String
	return user, nil
}

// SaveUser insert a new user, ID and CreatedAt must be set
func (repo *Repository) SaveUser(ctx context.Context, post *domain.UserModel) error {
	var cellNo sql.NullString
	if post.CellNo != "" {
		cellNo = sql.NullString{String: post.CellNo, Valid: true}
	}

	_, err := repo.Conn.ExecContext(ctx, `INSERT INTO "user"(id, username, email, cell_no, password, created_at)
	VALUES($1, $2, $3, $4, $5, $6)`, post.ID, post.Username, post.Email, cellNo, post.Password, post.CreatedAt)
	if driver.IsUniqueViolation(err) {
		return domain.ErrDuplicatedUser
	}
	return err
}

// WithTx implement domain.UserRepository
func (repo *Repository) WithTx(ctx context.Context, fn func(domain.UserRepository) error) error {
	tx, err := repo.Conn.BeginTx(ctx, &driver.TxOptions{
		Isolation:      sql.LevelReadCommitted,
		AccessMode:     driver.AccessReadWrite,
		DeferrableMode: driver.NotDeferrable,
	})
	if err != nil {
		return err
	}

	if err := fn(&Repository{Conn: tx}); err != nil {
		if rerr := tx.Rollback(ctx); rerr != nil {
			return fmt.Errorf("%w (rollback: %v)", err, rerr)
		}
		return err
	}
	return tx.Commit(ctx)
}
