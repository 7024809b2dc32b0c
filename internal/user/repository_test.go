package user

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgconn"
	"github.com/pot-code/go-signin/internal/domain"
	"github.com/pot-code/go-signin/internal/infrastructure/driver"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRows struct {
	rows     [][]interface{}
	pos      int
	err      error
	closeErr error
}

func (fr *fakeRows) Next() bool {
	fr.pos++
	return fr.pos <= len(fr.rows)
}

func (fr *fakeRows) Scan(dest ...interface{}) error {
	row := fr.rows[fr.pos-1]
	for i, d := range dest {
		switch p := d.(type) {
		case *string:
			*p = row[i].(string)
		case *sql.NullString:
			if err := p.Scan(row[i]); err != nil {
				return err
			}
		case *time.Time:
			*p = row[i].(time.Time)
		default:
			return errors.New("unsupported scan destination")
		}
	}
	return nil
}

func (fr *fakeRows) Err() error { return fr.err }

func (fr *fakeRows) Close() error { return fr.closeErr }

type fakeConn struct {
	driver.ITransactionalDB
	queries  []string
	args     [][]interface{}
	rows     [][]interface{}
	rowsErr  error
	closeErr error
	execErr  error
	beginErr error
	txCalls  []string
}

func (fc *fakeConn) QueryContext(ctx context.Context, query string, args ...interface{}) (driver.ISQLRows, error) {
	fc.queries = append(fc.queries, query)
	fc.args = append(fc.args, args)
	return &fakeRows{rows: fc.rows, err: fc.rowsErr, closeErr: fc.closeErr}, nil
}

func (fc *fakeConn) BeginTx(ctx context.Context, opts *driver.TxOptions) (driver.ITransactionalDB, error) {
	fc.txCalls = append(fc.txCalls, "BeginTx")
	if fc.beginErr != nil {
		return nil, fc.beginErr
	}
	return fc, nil
}

func (fc *fakeConn) Commit(ctx context.Context) error {
	fc.txCalls = append(fc.txCalls, "Commit")
	return nil
}

func (fc *fakeConn) Rollback(ctx context.Context) error {
	fc.txCalls = append(fc.txCalls, "Rollback")
	return nil
}

func (fc *fakeConn) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	fc.queries = append(fc.queries, query)
	fc.args = append(fc.args, args)
	return nil, fc.execErr
}

func TestRepository_FindByCredential(t *testing.T) {
	created := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	conn := &fakeConn{rows: [][]interface{}{{"u-1", "alice", "alice@example.com", nil, "hash", created}}}
	repo := NewUserRepository(conn)

	user, err := repo.FindByCredential(context.Background(), domain.CredentialCellNo, "5550100")
	require.NoError(t, err)
	assert.Equal(t, &domain.UserModel{ID: "u-1", Username: "alice", Email: "alice@example.com", Password: "hash", CreatedAt: created}, user)
	assert.Contains(t, conn.queries[0], "WHERE cell_no = $1")
	assert.Equal(t, []interface{}{"5550100"}, conn.args[0])

	_, err = repo.FindByCredential(context.Background(), domain.CredentialField("password"), "x")
	assert.Error(t, err)
	assert.Len(t, conn.queries, 1)
}

func TestRepository_FindNothing(t *testing.T) {
	repo := NewUserRepository(&fakeConn{})

	user, err := repo.FindByID(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, user)
}

func TestRepository_FindReportsQueryFailure(t *testing.T) {
	missing := errors.New(`relation "user" does not exist`)

	repo := NewUserRepository(&fakeConn{rowsErr: missing})
	user, err := repo.FindByCredential(context.Background(), domain.CredentialEmail, "alice@example.com")
	assert.ErrorIs(t, err, missing)
	assert.Nil(t, user)

	repo = NewUserRepository(&fakeConn{closeErr: missing})
	user, err = repo.FindByID(context.Background(), "u-1")
	assert.ErrorIs(t, err, missing)
	assert.Nil(t, user)
}

func TestRepository_WithTx(t *testing.T) {
	conn := &fakeConn{}
	repo := NewUserRepository(conn)

	err := repo.WithTx(context.Background(), func(tx domain.UserRepository) error {
		return tx.SaveUser(context.Background(), &domain.UserModel{ID: "u-1", Username: "alice"})
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"BeginTx", "Commit"}, conn.txCalls)
	assert.Len(t, conn.queries, 1)

	conn.txCalls = nil
	err = repo.WithTx(context.Background(), func(tx domain.UserRepository) error {
		return domain.ErrDuplicatedUser
	})
	assert.ErrorIs(t, err, domain.ErrDuplicatedUser)
	assert.Equal(t, []string{"BeginTx", "Rollback"}, conn.txCalls)

	down := errors.New("connection refused")
	conn = &fakeConn{beginErr: down}
	called := false
	err = NewUserRepository(conn).WithTx(context.Background(), func(tx domain.UserRepository) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, down)
	assert.False(t, called)
}

func TestRepository_SaveUserDuplicate(t *testing.T) {
	for name, execErr := range map[string]error{
		"mysql":    &mysql.MySQLError{Number: 1062, Message: "Duplicate entry"},
		"postgres": &pgconn.PgError{Code: "23505"},
	} {
		t.Run(name, func(t *testing.T) {
			repo := NewUserRepository(&fakeConn{execErr: execErr})
			err := repo.SaveUser(context.Background(), &domain.UserModel{ID: "u-1", Username: "alice"})
			assert.ErrorIs(t, err, domain.ErrDuplicatedUser)
		})
	}
}

func TestRepository_SaveUserNullableCellNo(t *testing.T) {
	conn := &fakeConn{}
	repo := NewUserRepository(conn)

	require.NoError(t, repo.SaveUser(context.Background(), &domain.UserModel{ID: "u-1", Username: "alice", Email: "a@example.com"}))
	assert.Equal(t, sql.NullString{}, conn.args[0][3])
}
