package driver

import (
	"database/sql"
	"fmt"
	"strings"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/stretchr/testify/assert"
)

func TestMySQLAdapter(t *testing.T) {
	query := `SELECT id, "password"
	FROM "user"
	WHERE email = $1`
	assert.Equal(t, "SELECT id, `password` FROM `user` WHERE email = ?", mysqlAdapter(query))
}

func TestGetDSN(t *testing.T) {
	cfg := &DBConfig{User: "root", Password: "pw", Host: "db", Port: 3306, Schema: "blog", Protocol: "tcp", Query: "parseTime=true"}
	assert.Equal(t, "root:pw@tcp(db:3306)/blog?parseTime=true", getDSN(cfg))

	cfg.Protocol = ""
	cfg.Query = ""
	assert.Equal(t, "root:pw@db:3306/blog", getDSN(cfg))
}

func TestIsUniqueViolation(t *testing.T) {
	assert.True(t, IsUniqueViolation(&mysql.MySQLError{Number: 1062}))
	assert.True(t, IsUniqueViolation(fmt.Errorf("save: %w", &pgconn.PgError{Code: "23505"})))
	assert.False(t, IsUniqueViolation(&mysql.MySQLError{Number: 1045}))
	assert.False(t, IsUniqueViolation(sql.ErrNoRows))
}

func TestLogQueryArgs_Truncates(t *testing.T) {
	long := strings.Repeat("a", 80)
	args := logQueryArgs([]interface{}{long, []byte{0x01, 0x02}, 7})
	assert.Equal(t, strings.Repeat("a", 64)+" (truncated 16 bytes)", args[0])
	assert.Equal(t, "0102", args[1])
	assert.Equal(t, 7, args[2])
}

func TestPGTxOptionAdapter(t *testing.T) {
	opts := pgTxOptionAdapter(&TxOptions{
		Isolation:      sql.LevelRepeatableRead,
		AccessMode:     AccessReadOnly,
		DeferrableMode: NotDeferrable,
	})
	assert.Equal(t, pgx.RepeatableRead, opts.IsoLevel)
	assert.Equal(t, pgx.ReadOnly, opts.AccessMode)
	assert.Equal(t, pgx.NotDeferrable, opts.DeferrableMode)
}
