package repository

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"github.com/go-sql-driver/mysql"
	"math"
	"time"
)

const (
	errDupEntry         = 1062
	errRowIsReferenced  = 1451
	errNoReferencedRow  = 1452
	errLockWaitTimeout  = 1205
	errLockDeadlock     = 1213
	errRowIsReferenced2 = 1217
	errNoReferencedRow2 = 1216
)

type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type queries struct {
	db dbtx
}

// MySQLStore persists the catalog, carts and orders in a single MySQL database.
type MySQLStore struct {
	*queries
	db          *sql.DB
	lockTimeout time.Duration
}

func NewMySQLStore(db *sql.DB, lockTimeout time.Duration) *MySQLStore {
	return &MySQLStore{queries: &queries{db: db}, db: db, lockTimeout: lockTimeout}
}

func (s *MySQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Atomic runs fn on a connection of its own so that session settings changed
// by LockCart can be reset before the connection returns to the pool.
func (s *MySQLStore) Atomic(ctx context.Context, fn func(tx Tx) error) error {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("get connection: %w", err)
	}
	defer conn.Close()

	// Start a transaction
	sqlTx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	tx := &mysqlTx{queries: &queries{db: sqlTx}, lockTimeout: s.lockTimeout}
	defer tx.resetSession(conn)

	err = fn(tx)
	if err != nil {
		sqlTx.Rollback()
		return err
	}

	// Commit the transaction
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", mapError(err))
	}
	return nil
}

type mysqlTx struct {
	*queries
	lockTimeout    time.Duration
	sessionChanged bool
}

// LockCart takes the row lock on the cart. InnoDB only accepts whole seconds
// for the wait, so the timeout is rounded up.
func (t *mysqlTx) LockCart(ctx context.Context, id string) error {
	seconds := int(math.Ceil(t.lockTimeout.Seconds()))
	if seconds < 1 {
		seconds = 1
	}
	t.sessionChanged = true
	if _, err := t.db.ExecContext(ctx, fmt.Sprintf("SET SESSION innodb_lock_wait_timeout = %d", seconds)); err != nil {
		return fmt.Errorf("set lock wait timeout: %w", err)
	}

	var locked string
	err := t.db.QueryRowContext(ctx, `SELECT id FROM carts WHERE id = ? FOR UPDATE`, id).Scan(&locked)
	if err != nil {
		return mapError(err)
	}
	return nil
}

// resetSession restores the server default lock wait timeout once the
// transaction has ended. A connection that cannot be reset is discarded
// instead of being reused with the checkout timeout.
func (t *mysqlTx) resetSession(conn *sql.Conn) {
	if !t.sessionChanged {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := conn.ExecContext(ctx, "SET SESSION innodb_lock_wait_timeout = DEFAULT"); err != nil {
		conn.Raw(func(any) error { return driver.ErrBadConn })
	}
}

// mapError translates driver errors into the package sentinels, keeping the
// original error in the chain.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}

	var myErr *mysql.MySQLError
	if !errors.As(err, &myErr) {
		return err
	}
	switch myErr.Number {
	case errDupEntry:
		return fmt.Errorf("%w: %w", ErrDuplicate, err)
	case errRowIsReferenced, errRowIsReferenced2:
		return fmt.Errorf("%w: %w", ErrReferenced, err)
	case errNoReferencedRow, errNoReferencedRow2:
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	case errLockWaitTimeout, errLockDeadlock:
		return fmt.Errorf("%w: %w", ErrLockTimeout, err)
	}
	return err
}

func affectedOne(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
